package service

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qiaoqiao/match3-server/game/engine"
)

// Session represents an active game session. The board, state and move counter are
// guarded by the session's own mutex; sessions never share a lock.
type Session struct {
	ID        string
	Owner     Owner
	ConfigID  string
	Config    *engine.GameConfig
	CreatedAt time.Time

	lastAccessed atomic.Int64

	mu      sync.Mutex
	board   *engine.Board
	state   State
	moveSeq int
}

// NewSession wraps a board in a Ready session
func NewSession(id string, owner Owner, configID string, config *engine.GameConfig, board *engine.Board) *Session {
	now := time.Now()
	s := &Session{
		ID:        id,
		Owner:     owner,
		ConfigID:  configID,
		Config:    config,
		CreatedAt: now,
		board:     board,
		state:     StateReady,
	}
	s.lastAccessed.Store(now.UnixNano())
	return s
}

// Touch records an access for idle eviction
func (s *Session) Touch() {
	s.lastAccessed.Store(time.Now().UnixNano())
}

// LastAccessed returns the time of the last access
func (s *Session) LastAccessed() time.Time {
	return time.Unix(0, s.lastAccessed.Load())
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a consistent view of the session
func (s *Session) Info() *SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *Session) infoLocked() *SessionInfo {
	return &SessionInfo{
		ID:             s.ID,
		Owner:          s.Owner,
		ConfigName:     s.ConfigID,
		State:          s.state,
		Moves:          s.moveSeq,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessed(),
		Board:          s.board.Snapshot(),
		GameConfig:     s.Config,
	}
}

// SessionSnapshot is the persisted form of a session
type SessionSnapshot struct {
	ID             string             `json:"id" msgpack:"id"`
	OwnerID        *int64             `json:"owner_id,omitempty" msgpack:"owner_id"`
	ConfigID       string             `json:"config_id" msgpack:"config_id"`
	Config         *engine.GameConfig `json:"config" msgpack:"config"`
	State          State              `json:"state" msgpack:"state"`
	MoveSeq        int                `json:"move_seq" msgpack:"move_seq"`
	CreatedAt      time.Time          `json:"created_at" msgpack:"created_at"`
	LastAccessedAt time.Time          `json:"last_accessed_at" msgpack:"last_accessed_at"`
	Board          *engine.Snapshot   `json:"board" msgpack:"board"`
}

// Snapshot captures the session for persistence
func (s *Session) Snapshot() *SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &SessionSnapshot{
		ID:             s.ID,
		OwnerID:        s.Owner.IDPtr(),
		ConfigID:       s.ConfigID,
		Config:         s.Config,
		State:          s.state,
		MoveSeq:        s.moveSeq,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessed(),
		Board:          s.board.Snapshot(),
	}
}

// SessionFromSnapshot rebuilds a session saved with Snapshot
func SessionFromSnapshot(snap *SessionSnapshot, opts ...engine.Option) (*Session, error) {
	if snap == nil || snap.Board == nil {
		return nil, fmt.Errorf("session snapshot is incomplete")
	}

	config := snap.Config
	if config == nil {
		config = engine.DefaultConfig()
	}
	base := []engine.Option{engine.WithTileKinds(config.TileKinds), engine.WithSpecialTiles(config.SpecialTiles)}
	board, err := engine.RestoreBoard(snap.Board, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("restore board for session %s: %w", snap.ID, err)
	}

	s := NewSession(snap.ID, OwnerFromID(snap.OwnerID), snap.ConfigID, config, board)
	s.CreatedAt = snap.CreatedAt
	s.state = snap.State
	s.moveSeq = snap.MoveSeq
	if !snap.LastAccessedAt.IsZero() {
		s.lastAccessed.Store(snap.LastAccessedAt.UnixNano())
	}
	return s, nil
}
