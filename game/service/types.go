package service

import (
	"time"

	"github.com/qiaoqiao/match3-server/game/engine"
)

const (
	// DefaultLeaderboardLimit is used when no limit is given
	DefaultLeaderboardLimit = 20
	// DefaultUserScoresLimit is used when no limit is given
	DefaultUserScoresLimit = 10
	// MaxScoresLimit caps any score query
	MaxScoresLimit = 100
	// DefaultRecentDays is the window for recent scores when none is given
	DefaultRecentDays = 7
	// MaxRecentDays caps the recent scores window
	MaxRecentDays = 365
)

// CreateSessionRequest describes a new game
type CreateSessionRequest struct {
	ConfigName string `json:"config,omitempty"`
	Owner      Owner  `json:"owner"`
}

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string             `json:"id"`
	Owner          Owner              `json:"owner_id"`
	ConfigName     string             `json:"config_name"`
	State          State              `json:"state"`
	Moves          int                `json:"moves"`
	CreatedAt      time.Time          `json:"created_at"`
	LastAccessedAt time.Time          `json:"last_accessed_at"`
	Board          *engine.Snapshot   `json:"board"`
	GameConfig     *engine.GameConfig `json:"game_config"`
}

// Reason explains a move that was evaluated but not applied
type Reason string

const (
	ReasonNone    Reason = ""
	ReasonNoMatch Reason = "no_match"
)

// MoveResult contains the result of a move operation
type MoveResult struct {
	Success   bool             `json:"success"`
	Reason    Reason           `json:"reason,omitempty"`
	GameOver  bool             `json:"game_over"`
	State     State            `json:"state"`
	Score     int              `json:"score"`
	MovesLeft int              `json:"moves_left"`
	Sequence  int              `json:"sequence"`
	Move      engine.Move      `json:"move"`
	Board     *engine.Snapshot `json:"board"`
	Message   string           `json:"message"`
}

// HintResult is the first legal swap on the board, if any
type HintResult struct {
	Available bool         `json:"available"`
	Move      *engine.Move `json:"move,omitempty"`
	Direction string       `json:"direction,omitempty"`
}

// EventType is the kind of a pushed event
type EventType string

const (
	EventGameState    EventType = "gameState"
	EventGameOver     EventType = "gameOver"
	EventError        EventType = "error"
	EventNotification EventType = "notification"
)

// Event is what the core hands to push channels
type Event struct {
	Type      EventType        `json:"type"`
	SessionID string           `json:"game_id"`
	Owner     Owner            `json:"user_id"`
	Board     *engine.Snapshot `json:"board,omitempty"`
	Score     int              `json:"score"`
	MovesLeft int              `json:"moves_left"`
	State     State            `json:"state"`
	Message   string           `json:"message,omitempty"`
	Success   bool             `json:"success"`
	GameOver  bool             `json:"game_over"`
	Timestamp time.Time        `json:"timestamp"`
}

// ScoreRecord is one finished game
type ScoreRecord struct {
	ID        int64     `json:"id,omitempty"`
	Owner     Owner     `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Score     int       `json:"score"`
	BoardSize int       `json:"board_size"`
	MovesUsed int       `json:"moves_used"`
	Completed bool      `json:"completed"`
	GameMode  string    `json:"game_mode"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a registered player
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	Nickname     string    `json:"nickname,omitempty"`
	HighestScore int       `json:"highest_score"`
	TotalGames   int       `json:"total_games"`
	CreatedAt    time.Time `json:"created_at"`
	LastLogin    time.Time `json:"last_login,omitempty"`
}

// ScoreStats aggregates one account's recorded games
type ScoreStats struct {
	GamesPlayed  int     `json:"games_played"`
	AverageScore float64 `json:"average_score"`
	BestScore    int     `json:"best_score"`
}

// UserProfile is an account with its score aggregates
type UserProfile struct {
	User
	Stats ScoreStats `json:"stats"`
}

// ConfigInfo provides information about a board preset
type ConfigInfo struct {
	Filename     string `json:"filename"`
	ConfigID     string `json:"config_id"` // The identifier to use for session creation
	Name         string `json:"name"`      // Display name
	Description  string `json:"description"`
	Mode         string `json:"mode"`
	Rows         int    `json:"rows"`
	Columns      int    `json:"columns"`
	Moves        int    `json:"moves"`
	TileKinds    int    `json:"tile_kinds"`
	SpecialTiles bool   `json:"special_tiles"`
}

// NewConfigInfo summarizes a preset
func NewConfigInfo(configID, filename string, config *engine.GameConfig) *ConfigInfo {
	return &ConfigInfo{
		Filename:     filename,
		ConfigID:     configID,
		Name:         config.Name,
		Description:  config.Description,
		Mode:         config.Mode,
		Rows:         config.Rows,
		Columns:      config.Columns,
		Moves:        config.Moves,
		TileKinds:    config.TileKinds,
		SpecialTiles: config.SpecialTiles,
	}
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxScoresLimit {
		return MaxScoresLimit
	}
	return limit
}
