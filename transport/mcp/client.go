package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/qiaoqiao/match3-server/game/engine"
	"github.com/qiaoqiao/match3-server/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Match Three",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Match Three - MCP Interface

This is a thin client that proxies all requests to the REST API server.

GAME OBJECTIVE:
Swap adjacent tiles to line up three or more of the same color. Matched tiles clear,
tiles above fall, new tiles drop in, and chains score again. Score as much as you can
before the move budget runs out.

AVAILABLE TOOLS:
- create_session: Start a new game (optionally choose a preset and user id)
- list_sessions / session_info: Inspect games
- board_state: Show the board with row and column indices
- swap_tiles: Swap two adjacent tiles - requires intent explanation
- hint: Get the first legal swap
- reshuffle_board: Rearrange the tiles without spending a move
- pause_game / resume_game: Pause and resume a game in progress
- list_configs: Board presets
- leaderboard: Best finished games
- game_instructions: Full rules

NOTE: The 'intent' parameter on swap_tiles serves as rubber duck debugging - explain your reasoning!`),
	)

	c.registerTools()
}

func sessionIDSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}
}

func sessionOnly(name, description string) mcp.Tool {
	return mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDSchema(),
			},
			Required: []string{"session_id"},
		},
	}
}

func coordinate(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"minimum":     0,
		"description": description,
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new game session with optional preset selection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"config_name": map[string]interface{}{
					"type":        "string",
					"description": "Name of the preset to use (optional, see list_configs)",
				},
				"user_id": map[string]interface{}{
					"type":        "integer",
					"description": "Account id the score is recorded for (optional, guest otherwise)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active game sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(sessionOnly("session_info", "Get details of a specific session"), c.handleSessionInfo)

	// Game operations
	c.mcpServer.AddTool(sessionOnly("board_state", "Show the current board, score and moves left"), c.handleBoardState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "swap_tiles",
		Description: "Swap two adjacent tiles. The swap only counts if it lines up three or more of a color.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDSchema(),
				"row1":       coordinate("Row of the first tile (0-based, top row is 0)"),
				"col1":       coordinate("Column of the first tile (0-based)"),
				"row2":       coordinate("Row of the second tile"),
				"col2":       coordinate("Column of the second tile"),
				"intent": map[string]interface{}{
					"type":        "string",
					"description": "Brief explanation of the intent behind this swap (serves as a rubber duck to help explain your reasoning)",
				},
			},
			Required: []string{"session_id", "row1", "col1", "row2", "col2"},
		},
	}, c.handleSwapTiles)

	c.mcpServer.AddTool(sessionOnly("pause_game", "Pause a game in progress"), c.stateChange("pause", "Game paused"))
	c.mcpServer.AddTool(sessionOnly("resume_game", "Resume a paused game"), c.stateChange("resume", "Game resumed"))
	c.mcpServer.AddTool(sessionOnly("reshuffle_board", "Rearrange the board's tiles without spending a move"), c.stateChange("reshuffle", "Board reshuffled"))
	c.mcpServer.AddTool(sessionOnly("hint", "Get the first legal swap on the board"), c.handleHint)

	// Presets and scores
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available board presets",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListConfigs)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "leaderboard",
		Description: "Show the best finished games",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "How many scores to show (default 20, max 100)",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Only games of this mode (classic, timed, challenge)",
				},
			},
		},
	}, c.handleLeaderboard)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get comprehensive game instructions and rules",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

// intArg reads a JSON number argument
func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

func sessionPath(sessionID, suffix string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + suffix
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	configName, _ := args["config_name"].(string)

	body := map[string]interface{}{}
	if configName != "" {
		body["config"] = configName
	}
	if userID, ok := intArg(args, "user_id"); ok && userID > 0 {
		body["user_id"] = userID
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		score, movesLeft := 0, 0
		if s.Board != nil {
			score, movesLeft = s.Board.Score, s.Board.MovesLeft
		}
		fmt.Fprintf(&b, "- %s (Config: %s, State: %s, Score: %d, Moves left: %d, Created: %s)\n",
			s.ID, s.ConfigName, s.State, score, movesLeft, s.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleSessionInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, ""), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleBoardState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var board engine.Snapshot
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/board"), nil, &board); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatBoard(&board)), nil
}

func (c *Client) handleSwapTiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)

	body := map[string]int{}
	for _, key := range []string{"row1", "col1", "row2", "col2"} {
		v, ok := intArg(args, key)
		if !ok {
			return mcp.NewToolResultError(key + " is required"), nil
		}
		body[key] = v
	}

	var result service.MoveResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/move"), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatMoveResult(&result)), nil
}

// stateChange builds a handler for the pause, resume and reshuffle endpoints
func (c *Client) stateChange(action, done string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, _ := arguments(request)["session_id"].(string)

		var session service.SessionInfo
		if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/"+action), nil, &session); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(done + "\n\n" + formatSessionInfo(&session)), nil
	}
}

func (c *Client) handleHint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var hint service.HintResult
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/hint"), nil, &hint); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatHint(&hint)), nil
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []*service.ConfigInfo
	if err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Presets:\n\n")
	for _, cfg := range configs {
		fmt.Fprintf(&b, "- %s: %s (%dx%d, %d moves, %d colors)\n",
			cfg.ConfigID, cfg.Description, cfg.Rows, cfg.Columns, cfg.Moves, cfg.TileKinds)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleLeaderboard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	query := url.Values{}
	if limit, ok := intArg(args, "limit"); ok && limit > 0 {
		query.Set("limit", fmt.Sprint(limit))
	}
	if mode, _ := args["mode"].(string); mode != "" {
		query.Set("mode", mode)
	}
	path := "/api/leaderboard"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var response struct {
		Count  int                    `json:"count"`
		Scores []*service.ScoreRecord `json:"scores"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatLeaderboard(response.Scores)), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(instructions), nil
}

const instructions = `MATCH THREE - GAME INSTRUCTIONS

BOARD
- The board is a grid of colored tiles. board_state shows one letter per tile:
  R red, B blue, G green, Y yellow, P purple, W white, K black, N brown, O orange.
- Rows are numbered from 0 at the top, columns from 0 at the left.
- Special tiles (when the preset enables them) are shown in lowercase.

MOVES
- A move swaps two tiles that share an edge (up, down, left or right).
- The swap is kept only if it lines up three or more tiles of one color in a row
  or column. Otherwise the tiles swap back and no move is spent.
- Swaps that are out of bounds or not adjacent are rejected as invalid.

CASCADES
- Matched tiles clear, tiles above fall into the gaps and new tiles drop in from
  the top. New lines formed by the fall clear too, and score again.

SCORING
- Each cleared tile is worth 10 points times a multiplier for the longest line it
  was part of: 1x for three, 2x for four, 3x for five or more.

SPECIAL TILES (preset dependent)
- Four in a line leaves a row clearer, five leaves a color bomb and six or more
  leaves a bomb. Matching a special tile triggers its effect.

GAME STATES
- ready: no move made yet. playing: in progress. paused: moves are refused until
  resumed. game_over: the move budget is spent or no legal move remains.

TIPS
- Use hint when stuck and reshuffle_board when the board looks hopeless.
- Matches near the bottom move more tiles and tend to start cascades.
`

// Formatting helpers

func formatSessionInfo(session *service.SessionInfo) string {
	owner := "guest"
	if id, ok := session.Owner.AccountID(); ok {
		owner = fmt.Sprintf("user %d", id)
	}
	header := fmt.Sprintf("Session: %s\nConfig: %s\nOwner: %s\nState: %s\nCreated: %s\n\n",
		session.ID, session.ConfigName, owner, session.State,
		session.CreatedAt.Format("2006-01-02 15:04:05"))
	return header + formatBoard(session.Board)
}

// formatBoard draws the grid with row and column indices
func formatBoard(board *engine.Snapshot) string {
	if board == nil {
		return "No board available"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Score: %d | Moves left: %d | Moves used: %d\n\n", board.Score, board.MovesLeft, board.MovesUsed)

	b.WriteString("    ")
	for col := 0; col < board.Columns; col++ {
		fmt.Fprintf(&b, "%2d", col)
	}
	b.WriteString("\n")

	for row, tiles := range board.Tiles {
		fmt.Fprintf(&b, "%2d  ", row)
		for _, t := range tiles {
			letter := string(t.Kind.Letter())
			if t.Special != engine.EffectNone {
				letter = strings.ToLower(letter)
			}
			b.WriteString(" " + letter)
		}
		b.WriteString("\n")
	}

	var specials []string
	for row, tiles := range board.Tiles {
		for col, t := range tiles {
			if t.Special != engine.EffectNone {
				specials = append(specials, fmt.Sprintf("(%d,%d) %s %s", row, col, t.Kind, t.Special))
			}
		}
	}
	if len(specials) > 0 {
		b.WriteString("\nSpecial tiles: " + strings.Join(specials, ", ") + "\n")
	}
	return b.String()
}

func formatMoveResult(result *service.MoveResult) string {
	var b strings.Builder
	m := result.Move
	switch {
	case result.Success:
		fmt.Fprintf(&b, "✓ Swap (%d,%d) <-> (%d,%d) matched %d tiles for %d points",
			m.FromRow, m.FromCol, m.ToRow, m.ToCol, m.Outcome.TilesMatched, m.Outcome.ScoreDelta)
		if m.Outcome.Cascades > 1 {
			fmt.Fprintf(&b, " over %d cascades", m.Outcome.Cascades)
		}
		if m.Outcome.SpecialEffect != engine.EffectNone {
			fmt.Fprintf(&b, " (triggered %s)", m.Outcome.SpecialEffect)
		}
		b.WriteString("\n")
	default:
		fmt.Fprintf(&b, "✗ Swap (%d,%d) <-> (%d,%d) made no match; no move spent\n",
			m.FromRow, m.FromCol, m.ToRow, m.ToCol)
	}

	if result.GameOver {
		fmt.Fprintf(&b, "GAME OVER - final score %d\n", result.Score)
	}
	fmt.Fprintf(&b, "State: %s | Move #%d\n\n", result.State, result.Sequence)
	b.WriteString(formatBoard(result.Board))
	return b.String()
}

func formatHint(hint *service.HintResult) string {
	if !hint.Available || hint.Move == nil {
		return "No legal swap on the board. Try reshuffle_board."
	}
	m := hint.Move
	return fmt.Sprintf("Try swapping (%d,%d) %s with (%d,%d)", m.FromRow, m.FromCol, hint.Direction, m.ToRow, m.ToCol)
}

func formatLeaderboard(scores []*service.ScoreRecord) string {
	if len(scores) == 0 {
		return "No finished games yet"
	}
	var b strings.Builder
	b.WriteString("Leaderboard:\n\n")
	for i, s := range scores {
		name := s.Username
		if name == "" {
			name = "guest"
			if id, ok := s.Owner.AccountID(); ok {
				name = fmt.Sprintf("user %d", id)
			}
		}
		status := ""
		if s.Completed {
			status = " ✓"
		}
		fmt.Fprintf(&b, "%d. %s - %d (%s, %dx%d board, %d moves)%s\n",
			i+1, name, s.Score, s.GameMode, s.BoardSize, s.BoardSize, s.MovesUsed, status)
	}
	return b.String()
}
