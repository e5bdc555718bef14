package service

import (
	"context"
	"time"

	"github.com/qiaoqiao/match3-server/game/engine"
)

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Game Operations
	ApplyMove(ctx context.Context, sessionID string, move engine.Move) (*MoveResult, error)
	Pause(ctx context.Context, sessionID string) (*SessionInfo, error)
	Resume(ctx context.Context, sessionID string) (*SessionInfo, error)
	Reshuffle(ctx context.Context, sessionID string) (*SessionInfo, error)
	Hint(ctx context.Context, sessionID string) (*HintResult, error)

	// Game State
	GetBoard(ctx context.Context, sessionID string) (*engine.Snapshot, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*ConfigInfo, error)
	LoadConfig(ctx context.Context, configName string) (*engine.GameConfig, error)

	// Scores
	Leaderboard(ctx context.Context, limit int) ([]*ScoreRecord, error)
	LeaderboardByMode(ctx context.Context, mode string, limit int) ([]*ScoreRecord, error)
	RecentScores(ctx context.Context, days, limit int) ([]*ScoreRecord, error)
	UserScores(ctx context.Context, userID int64, limit int) ([]*ScoreRecord, error)
	UserProfile(ctx context.Context, userID int64) (*UserProfile, error)
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id string, owner Owner, configID string, config *engine.GameConfig) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// ConfigManager handles board preset loading
type ConfigManager interface {
	LoadConfig(name string) (*engine.GameConfig, error)
	ListConfigs() ([]*ConfigInfo, error)
	GetDefault() *engine.GameConfig
}

// ScoreStore is the append-only record of finished games. Ranked reads order
// by score, highest first, with ties going to the earlier game.
type ScoreStore interface {
	// RecordScore stores a finished game and returns the id assigned to it
	RecordScore(ctx context.Context, record ScoreRecord) (int64, error)
	TopScores(ctx context.Context, limit int) ([]*ScoreRecord, error)
	TopScoresByMode(ctx context.Context, mode string, limit int) ([]*ScoreRecord, error)
	UserScores(ctx context.Context, userID int64, limit int) ([]*ScoreRecord, error)
	// RecentScores returns games recorded at or after since, newest first
	RecentScores(ctx context.Context, since time.Time, limit int) ([]*ScoreRecord, error)
	// UserStats aggregates an account's games; an account with none gets zero stats
	UserStats(ctx context.Context, userID int64) (*ScoreStats, error)
}

// UserStore resolves account owners when attributing scores
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	UpdateStats(ctx context.Context, id int64, score int) error
}

// Notifier delivers events to push channels. Publish must not block.
type Notifier interface {
	Publish(event Event)
}
