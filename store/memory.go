package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/qiaoqiao/match3-server/game/service"
)

// MemoryStore keeps users and scores in process
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[int64]*service.User
	scores     []service.ScoreRecord
	nextUserID int64
	nextScore  int64
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[int64]*service.User)}
}

// AddUser registers an account and assigns its id
func (m *MemoryStore) AddUser(ctx context.Context, user service.User) (*service.User, error) {
	username := strings.TrimSpace(user.Username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, username)
		}
	}

	m.nextUserID++
	user.ID = m.nextUserID
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	m.users[user.ID] = &user

	stored := user
	return &stored, nil
}

// FindByID returns a copy of the account
func (m *MemoryStore) FindByID(ctx context.Context, id int64) (*service.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	found := *u
	return &found, nil
}

// UpdateStats counts a finished game and raises the highest score
func (m *MemoryStore) UpdateStats(ctx context.Context, id int64, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	u.TotalGames++
	if score > u.HighestScore {
		u.HighestScore = score
	}
	return nil
}

// RecordScore appends a finished game
func (m *MemoryStore) RecordScore(ctx context.Context, record service.ScoreRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextScore++
	record.ID = m.nextScore
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	m.scores = append(m.scores, record)
	return record.ID, nil
}

// TopScores returns the best games, highest first
func (m *MemoryStore) TopScores(ctx context.Context, limit int) ([]*service.ScoreRecord, error) {
	return m.query(limit, func(service.ScoreRecord) bool { return true }), nil
}

// TopScoresByMode returns the best games of one mode, highest first
func (m *MemoryStore) TopScoresByMode(ctx context.Context, mode string, limit int) ([]*service.ScoreRecord, error) {
	return m.query(limit, func(r service.ScoreRecord) bool { return r.GameMode == mode }), nil
}

// UserScores returns one account's best games, highest first
func (m *MemoryStore) UserScores(ctx context.Context, userID int64, limit int) ([]*service.ScoreRecord, error) {
	return m.query(limit, ownedBy(userID)), nil
}

// RecentScores returns games recorded since the given time, newest first
func (m *MemoryStore) RecentScores(ctx context.Context, since time.Time, limit int) ([]*service.ScoreRecord, error) {
	result := m.collect(func(r service.ScoreRecord) bool { return !r.CreatedAt.Before(since) })
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return truncate(result, limit), nil
}

// UserStats aggregates one account's games
func (m *MemoryStore) UserStats(ctx context.Context, userID int64) (*service.ScoreStats, error) {
	stats := &service.ScoreStats{}
	total := 0
	for _, r := range m.collect(ownedBy(userID)) {
		stats.GamesPlayed++
		total += r.Score
		if r.Score > stats.BestScore {
			stats.BestScore = r.Score
		}
	}
	if stats.GamesPlayed > 0 {
		stats.AverageScore = float64(total) / float64(stats.GamesPlayed)
	}
	return stats, nil
}

func ownedBy(userID int64) func(service.ScoreRecord) bool {
	return func(r service.ScoreRecord) bool {
		id, ok := r.Owner.AccountID()
		return ok && id == userID
	}
}

func (m *MemoryStore) query(limit int, keep func(service.ScoreRecord) bool) []*service.ScoreRecord {
	result := m.collect(keep)

	// Ties go to the earlier game
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Score > result[j].Score
	})
	return truncate(result, limit)
}

// collect copies matching records in insertion order with usernames filled in
func (m *MemoryStore) collect(keep func(service.ScoreRecord) bool) []*service.ScoreRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*service.ScoreRecord, 0)
	for _, r := range m.scores {
		if !keep(r) {
			continue
		}
		r := r
		if id, ok := r.Owner.AccountID(); ok {
			if u, found := m.users[id]; found {
				r.Username = u.Username
			}
		}
		result = append(result, &r)
	}
	return result
}

func truncate(records []*service.ScoreRecord, limit int) []*service.ScoreRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}
