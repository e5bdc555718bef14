package session

import (
	"github.com/qiaoqiao/match3-server/game/service"
)

// SessionPersistence defines the interface for persisting sessions
type SessionPersistence interface {
	// Save persists a session snapshot to storage
	Save(snapshot *service.SessionSnapshot) error

	// Load retrieves a session snapshot from storage by ID
	Load(id string) (*service.SessionSnapshot, error)

	// Delete removes a session from storage
	Delete(id string) error

	// ListAll returns all persisted session IDs
	ListAll() ([]string, error)

	// Exists checks if a session exists in storage
	Exists(id string) bool
}
