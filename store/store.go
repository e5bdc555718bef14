// Package store holds the account and score backends used by the game service.
//
// Every backend implements both service.ScoreStore and service.UserStore:
//
//   - MemoryStore keeps everything in process, for tests and single-node demos
//   - SQLiteStore uses mattn/go-sqlite3 with WAL journaling and embedded migrations
//   - PostgresStore uses a pgx connection pool
//
// RedisLeaderboard decorates any ScoreStore with a sorted-set leaderboard so that
// top-score reads never touch the database.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/qiaoqiao/match3-server/game/service"
)

// ErrUserNotFound is the service sentinel, returned for unknown account ids
var ErrUserNotFound = service.ErrUserNotFound

// ErrUsernameTaken is returned by AddUser when the username already exists
var ErrUsernameTaken = errors.New("username already taken")

// Store is a complete account and score backend
type Store interface {
	service.ScoreStore
	service.UserStore

	AddUser(ctx context.Context, user service.User) (*service.User, error)
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

//go:embed migrations
var migrationsFS embed.FS

type migration struct {
	name string
	sql  string
}

// migrations returns the scripts for a dialect in lexical order
func migrations(dialect string) ([]migration, error) {
	dir := "migrations/" + dialect
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var out []migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		raw, err := fs.ReadFile(migrationsFS, dir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		out = append(out, migration{name: e.Name(), sql: string(raw)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}
