package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/qiaoqiao/match3-server/game/engine"
	"github.com/qiaoqiao/match3-server/game/service"
	"github.com/qiaoqiao/match3-server/metrics"
)

var (
	// ErrSessionNotFound is the service sentinel so callers can test either
	ErrSessionNotFound      = service.ErrSessionNotFound
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrInvalidSessionID     = errors.New("invalid session ID")
)

// BoardOptions returns extra board options for a new session, such as a seed
type BoardOptions func(sessionID string) []engine.Option

// Manager is the registry of live sessions. Its lock guards only the map;
// each session carries its own.
type Manager struct {
	sessions     map[string]*service.Session
	persistence  SessionPersistence
	boardOptions BoardOptions
	mu           sync.RWMutex

	// per-session write state, guarded by persistMu
	persisted map[string]*persistState
	persistMu sync.Mutex
}

// persistState serializes writes for one session id and remembers the last
// move sequence that reached storage
type persistState struct {
	mu    sync.Mutex
	seq   int
	saved bool
}

// Option configures a Manager
type Option func(*Manager)

// WithPersistence stores sessions through p
func WithPersistence(p SessionPersistence) Option {
	return func(m *Manager) { m.persistence = p }
}

// WithBoardOptions sets the per-session board option source
func WithBoardOptions(fn BoardOptions) Option {
	return func(m *Manager) { m.boardOptions = fn }
}

// NewManager creates a new session manager
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:  make(map[string]*service.Session),
		persisted: make(map[string]*persistState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewManagerWithPersistence creates a new session manager with persistence
func NewManagerWithPersistence(persistence SessionPersistence, opts ...Option) *Manager {
	return NewManager(append([]Option{WithPersistence(persistence)}, opts...)...)
}

// Create creates a new session with the given ID and configuration.
// An empty id gets a fresh UUID.
func (m *Manager) Create(id string, owner service.Owner, configID string, config *engine.GameConfig) (*service.Session, error) {
	if id == "" {
		id = uuid.NewString()
	} else if strings.TrimSpace(id) != id || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	if config == nil {
		config = engine.DefaultConfig()
	}

	var opts []engine.Option
	if m.boardOptions != nil {
		opts = m.boardOptions(id)
	}
	board, err := engine.NewBoardFromConfig(config, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create board: %w", err)
	}
	session := service.NewSession(id, owner, configID, config, board)

	m.mu.Lock()
	if _, exists := m.sessions[key(id)]; exists {
		m.mu.Unlock()
		return nil, ErrSessionAlreadyExists
	}
	m.sessions[key(id)] = session
	m.mu.Unlock()

	// Auto-save if persistence is enabled. A failed first save leaves the
	// session unpersisted; Persisted reports false until a later save lands.
	if m.persistence != nil {
		if err := m.persist(session); err != nil {
			log.Warn().Err(err).Str("session", id).Msg("failed to persist session")
		}
	}

	return session, nil
}

// Get retrieves a session by ID (case-insensitive)
func (m *Manager) Get(id string) (*service.Session, error) {
	m.mu.RLock()
	session, exists := m.sessions[key(id)]
	m.mu.RUnlock()

	if exists {
		return session, nil
	}

	// Try loading from persistence if not in memory
	if m.persistence != nil && m.persistence.Exists(id) {
		session, err := m.load(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load persisted session: %w", err)
		}

		m.mu.Lock()
		// Another caller may have loaded it first
		if cached, ok := m.sessions[key(id)]; ok {
			session = cached
			m.mu.Unlock()
		} else {
			m.sessions[key(id)] = session
			m.mu.Unlock()
			m.markLoaded(session)
		}

		return session, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// List returns all active sessions
func (m *Manager) List() []*service.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*service.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}

	return result
}

// Delete removes a session from memory and persistence
func (m *Manager) Delete(id string) error {
	ps := m.persistState(id)
	ps.mu.Lock()
	defer func() {
		ps.mu.Unlock()
		m.forget(id)
	}()

	m.mu.Lock()
	_, inMemory := m.sessions[key(id)]
	delete(m.sessions, key(id))
	m.mu.Unlock()

	// Delete from persistence if it exists
	if m.persistence != nil && m.persistence.Exists(id) {
		if err := m.persistence.Delete(id); err != nil {
			return fmt.Errorf("failed to delete persisted session: %w", err)
		}
		return nil
	}

	// If not in persistence and not in memory, it doesn't exist
	if !inMemory {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	return nil
}

// DeleteFromMemory removes a session from memory only (not from persistence)
func (m *Manager) DeleteFromMemory(id string) error {
	m.mu.Lock()
	if _, exists := m.sessions[key(id)]; !exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(m.sessions, key(id))
	m.mu.Unlock()

	m.forget(id)
	return nil
}

// UpdateLastAccessed updates the last accessed time for a session
func (m *Manager) UpdateLastAccessed(id string) error {
	m.mu.RLock()
	session, exists := m.sessions[key(id)]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	session.Touch()
	return nil
}

// Save saves a specific session to persistence
func (m *Manager) Save(id string) error {
	if m.persistence == nil {
		return nil // No persistence configured
	}

	m.mu.RLock()
	session, exists := m.sessions[key(id)]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	return m.persist(session)
}

// Persisted reports whether a snapshot of id has been written or loaded by this manager
func (m *Manager) Persisted(id string) bool {
	m.persistMu.Lock()
	ps, ok := m.persisted[key(id)]
	m.persistMu.Unlock()
	if !ok {
		return false
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.saved
}

// persist writes the session's current snapshot. Writes for one id run one at
// a time with the snapshot taken inside the lock, so storage only moves forward.
// A session that left the registry is not written back.
func (m *Manager) persist(session *service.Session) error {
	ps := m.persistState(session.ID)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	m.mu.RLock()
	current := m.sessions[key(session.ID)]
	m.mu.RUnlock()
	if current != session {
		return nil
	}

	snap := session.Snapshot()
	if ps.saved && snap.MoveSeq < ps.seq {
		log.Debug().Str("session", session.ID).Int("seq", snap.MoveSeq).Int("stored_seq", ps.seq).Msg("skipping stale snapshot")
		return nil
	}
	if err := m.persistence.Save(snap); err != nil {
		return err
	}
	ps.seq, ps.saved = snap.MoveSeq, true
	return nil
}

func (m *Manager) persistState(id string) *persistState {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	ps, ok := m.persisted[key(id)]
	if !ok {
		ps = &persistState{}
		m.persisted[key(id)] = ps
	}
	return ps
}

// markLoaded records a session read from storage as already persisted
func (m *Manager) markLoaded(session *service.Session) {
	ps := m.persistState(session.ID)
	snap := session.Snapshot()

	ps.mu.Lock()
	if !ps.saved || snap.MoveSeq > ps.seq {
		ps.seq, ps.saved = snap.MoveSeq, true
	}
	ps.mu.Unlock()
}

func (m *Manager) forget(id string) {
	m.persistMu.Lock()
	delete(m.persisted, key(id))
	m.persistMu.Unlock()
}

// CleanupExpiredSessions removes sessions that haven't been accessed in the given duration.
// Only the registry lock is taken; access times are read atomically.
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var expired []string
	for k, session := range m.sessions {
		if session.LastAccessed().Before(cutoff) {
			delete(m.sessions, k)
			expired = append(expired, session.ID)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		ps := m.persistState(id)
		ps.mu.Lock()
		if m.persistence != nil && m.persistence.Exists(id) {
			if err := m.persistence.Delete(id); err != nil {
				log.Warn().Err(err).Str("session", id).Msg("failed to delete expired session")
			}
		}
		ps.mu.Unlock()
		m.forget(id)
	}

	if len(expired) > 0 {
		metrics.SessionsEvicted.Add(float64(len(expired)))
		log.Info().Int("count", len(expired)).Dur("max_age", maxAge).Msg("evicted idle sessions")
	}
	return len(expired)
}

// Count returns the number of active sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// LoadPersistedSessions loads all persisted sessions into memory
func (m *Manager) LoadPersistedSessions() error {
	if m.persistence == nil {
		return nil // No persistence configured
	}

	sessionIDs, err := m.persistence.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	loadedCount := 0
	for _, id := range sessionIDs {
		m.mu.RLock()
		_, exists := m.sessions[key(id)]
		m.mu.RUnlock()
		if exists {
			continue
		}

		session, err := m.load(id)
		if err != nil {
			log.Warn().Err(err).Str("session", id).Msg("failed to load persisted session")
			continue
		}

		m.mu.Lock()
		m.sessions[key(id)] = session
		m.mu.Unlock()
		m.markLoaded(session)
		loadedCount++
	}

	if loadedCount > 0 {
		log.Info().Int("count", loadedCount).Msg("loaded persisted sessions")
	}

	return nil
}

// SaveAllSessions saves all in-memory sessions to persistence
func (m *Manager) SaveAllSessions() error {
	if m.persistence == nil {
		return nil // No persistence configured
	}

	errorCount := 0
	for _, session := range m.List() {
		if err := m.persist(session); err != nil {
			log.Warn().Err(err).Str("session", session.ID).Msg("failed to save session")
			errorCount++
		}
	}

	if errorCount > 0 {
		return fmt.Errorf("failed to save %d sessions", errorCount)
	}

	return nil
}

func (m *Manager) load(id string) (*service.Session, error) {
	snap, err := m.persistence.Load(id)
	if err != nil {
		return nil, err
	}
	var opts []engine.Option
	if m.boardOptions != nil {
		opts = m.boardOptions(snap.ID)
	}
	return service.SessionFromSnapshot(snap, opts...)
}

func key(id string) string {
	return strings.ToLower(id)
}

var _ service.SessionManager = (*Manager)(nil)
