package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/qiaoqiao/match3-server/game/engine"
	"github.com/qiaoqiao/match3-server/game/service"
)

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080"
	client := NewClient(baseURL + "/")

	if client == nil {
		t.Fatal("Expected client to be created")
	}
	if client.baseURL != baseURL {
		t.Errorf("Expected baseURL %s, got %s", baseURL, client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if client.mcpServer == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("Expected tool result content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("Expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func testBoard() *engine.Snapshot {
	return &engine.Snapshot{
		Rows:    3,
		Columns: 3,
		Tiles: [][]engine.Tile{
			{{ID: 1, Kind: engine.Red}, {ID: 2, Kind: engine.Red}, {ID: 3, Kind: engine.Blue}},
			{{ID: 4, Kind: engine.Green}, {ID: 5, Kind: engine.Blue}, {ID: 6, Kind: engine.Red, Special: engine.EffectBomb}},
			{{ID: 7, Kind: engine.Blue}, {ID: 8, Kind: engine.Green}, {ID: 9, Kind: engine.Yellow}},
		},
		Score:     40,
		MovesLeft: 3,
		MovesUsed: 1,
	}
}

// apiRecorder is a fake REST API remembering the last request
type apiRecorder struct {
	method string
	path   string
	query  string
	body   map[string]interface{}
}

func newFakeAPI(t *testing.T, rec *apiRecorder, respond func(w http.ResponseWriter, r *http.Request)) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.body = nil
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&rec.body)
		}
		w.Header().Set("Content-Type", "application/json")
		respond(w, r)
	}))
	t.Cleanup(server.Close)
	return NewClient(server.URL)
}

func TestClient_apiCallError(t *testing.T) {
	rec := &apiRecorder{}
	client := newFakeAPI(t, rec, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "illegal session state: session s1 is paused"})
	})

	err := client.apiCall(context.Background(), "POST", "/api/sessions/s1/move", map[string]int{"row1": 0}, nil)
	if err == nil || !strings.Contains(err.Error(), "paused") {
		t.Errorf("Expected API error message, got %v", err)
	}
}

func TestHandleCreateSession(t *testing.T) {
	rec := &apiRecorder{}
	client := newFakeAPI(t, rec, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(service.SessionInfo{
			ID:         "abc",
			Owner:      service.Account(7),
			ConfigName: "hard",
			Board:      testBoard(),
		})
	})

	result, err := client.handleCreateSession(context.Background(), callRequest(map[string]interface{}{
		"config_name": "hard",
		"user_id":     float64(7),
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if rec.method != "POST" || rec.path != "/api/sessions" {
		t.Errorf("Unexpected request %s %s", rec.method, rec.path)
	}
	if rec.body["config"] != "hard" || rec.body["user_id"] != float64(7) {
		t.Errorf("Unexpected body %v", rec.body)
	}

	text := resultText(t, result)
	for _, want := range []string{"Session: abc", "Config: hard", "Owner: user 7", "Score: 40"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output:\n%s", want, text)
		}
	}
}

func TestHandleSwapTiles(t *testing.T) {
	rec := &apiRecorder{}
	client := newFakeAPI(t, rec, func(w http.ResponseWriter, r *http.Request) {
		move := engine.NewMove(0, 2, 1, 2)
		move.Outcome = engine.Outcome{Accepted: true, TilesMatched: 3, ScoreDelta: 30, Cascades: 1}
		json.NewEncoder(w).Encode(service.MoveResult{
			Success:   true,
			State:     service.StatePlaying,
			Score:     30,
			MovesLeft: 2,
			Sequence:  1,
			Move:      move,
			Board:     testBoard(),
		})
	})

	result, err := client.handleSwapTiles(context.Background(), callRequest(map[string]interface{}{
		"session_id": "s 1",
		"row1":       float64(0),
		"col1":       float64(2),
		"row2":       float64(1),
		"col2":       float64(2),
		"intent":     "line up the reds",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if rec.path != "/api/sessions/s 1/move" {
		t.Errorf("Unexpected path %s", rec.path)
	}
	if rec.body["row1"] != float64(0) || rec.body["col2"] != float64(2) {
		t.Errorf("Unexpected body %v", rec.body)
	}

	text := resultText(t, result)
	if !strings.Contains(text, "matched 3 tiles for 30 points") {
		t.Errorf("Expected match summary, got:\n%s", text)
	}
	if !strings.Contains(text, "State: playing") {
		t.Errorf("Expected state, got:\n%s", text)
	}
}

func TestHandleSwapTiles_MissingCoordinate(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")

	result, err := client.handleSwapTiles(context.Background(), callRequest(map[string]interface{}{
		"session_id": "s1",
		"row1":       float64(0),
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("Expected a tool error")
	}
	if !strings.Contains(resultText(t, result), "col1 is required") {
		t.Errorf("Unexpected message %q", resultText(t, result))
	}
}

func TestStateChangeTools(t *testing.T) {
	rec := &apiRecorder{}
	client := newFakeAPI(t, rec, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(service.SessionInfo{ID: "s1", State: service.StatePaused, Board: testBoard()})
	})

	tests := []struct {
		action string
		done   string
	}{
		{"pause", "Game paused"},
		{"resume", "Game resumed"},
		{"reshuffle", "Board reshuffled"},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			handler := client.stateChange(tt.action, tt.done)
			result, err := handler(context.Background(), callRequest(map[string]interface{}{"session_id": "s1"}))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if rec.method != "POST" || rec.path != "/api/sessions/s1/"+tt.action {
				t.Errorf("Unexpected request %s %s", rec.method, rec.path)
			}
			if !strings.HasPrefix(resultText(t, result), tt.done) {
				t.Errorf("Expected %q prefix", tt.done)
			}
		})
	}
}

func TestHandleLeaderboard(t *testing.T) {
	rec := &apiRecorder{}
	client := newFakeAPI(t, rec, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count": 2,
			"scores": []*service.ScoreRecord{
				{Owner: service.Account(1), Username: "ann", Score: 900, BoardSize: 8, MovesUsed: 20, Completed: true, GameMode: "classic"},
				{Owner: service.Guest(), Score: 300, BoardSize: 6, MovesUsed: 12, GameMode: "blitz"},
			},
		})
	})

	result, err := client.handleLeaderboard(context.Background(), callRequest(map[string]interface{}{"limit": float64(5)}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rec.query != "limit=5" {
		t.Errorf("Expected limit query, got %q", rec.query)
	}

	text := resultText(t, result)
	if !strings.Contains(text, "1. ann - 900") || !strings.Contains(text, "2. guest - 300") {
		t.Errorf("Unexpected leaderboard:\n%s", text)
	}

	if _, err := client.handleLeaderboard(context.Background(), callRequest(map[string]interface{}{"mode": "timed", "limit": float64(3)})); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rec.query != "limit=3&mode=timed" {
		t.Errorf("Expected mode and limit query, got %q", rec.query)
	}
}

func TestFormatBoard(t *testing.T) {
	text := formatBoard(testBoard())

	lines := strings.Split(strings.TrimSpace(text), "\n")
	var grid []string
	for _, line := range lines {
		if strings.HasPrefix(line, " 0  ") || strings.HasPrefix(line, " 1  ") || strings.HasPrefix(line, " 2  ") {
			grid = append(grid, strings.TrimSpace(line[4:]))
		}
	}

	want := []string{"R R B", "G B r", "B G Y"}
	if len(grid) != len(want) {
		t.Fatalf("Expected %d grid rows, got %d:\n%s", len(want), len(grid), text)
	}
	for i := range want {
		if grid[i] != want[i] {
			t.Errorf("Row %d: expected %q, got %q", i, want[i], grid[i])
		}
	}

	if !strings.Contains(text, "(1,2) red bomb") {
		t.Errorf("Expected special tile listing, got:\n%s", text)
	}
	if formatBoard(nil) != "No board available" {
		t.Error("Expected placeholder for nil board")
	}
}

func TestFormatMoveResult_NoMatch(t *testing.T) {
	text := formatMoveResult(&service.MoveResult{
		Success: false,
		Reason:  service.ReasonNoMatch,
		State:   service.StatePlaying,
		Move:    engine.NewMove(0, 0, 1, 0),
	})
	if !strings.Contains(text, "made no match") {
		t.Errorf("Unexpected output:\n%s", text)
	}
}

func TestFormatHint(t *testing.T) {
	move := engine.NewMove(2, 3, 2, 4)
	text := formatHint(&service.HintResult{Available: true, Move: &move, Direction: "right"})
	if text != "Try swapping (2,3) right with (2,4)" {
		t.Errorf("Unexpected hint %q", text)
	}
	if !strings.Contains(formatHint(&service.HintResult{}), "reshuffle_board") {
		t.Error("Expected reshuffle suggestion")
	}
}
