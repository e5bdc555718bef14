package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/qiaoqiao/match3-server/game/service"
)

// SQLiteStore persists users and scores in a SQLite file
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if missing) the database at path and applies migrations
func OpenSQLite(path string) (*SQLiteStore, error) {
	// Ensure directory exists for ./data/match3.db, etc.
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	// Open DB with busy timeout and WAL journaling.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// One writer at a time; readers share the WAL.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrate applies embedded migrations, recording each in _migrations
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}

	scripts, err := migrations("sqlite")
	if err != nil {
		return err
	}

	for _, m := range scripts {
		// Skip if already applied
		var done int
		err := s.db.QueryRow(`SELECT 1 FROM _migrations WHERE name=?`, m.name).Scan(&done)
		if err == nil {
			log.Debug().Str("migration", m.name).Msg("already applied")
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query _migrations: %w", err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin %s: %w", m.name, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply %s: %w", m.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO _migrations(name) VALUES (?)`, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("record %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", m.name, err)
		}
		log.Info().Str("migration", m.name).Msg("applied")
	}
	return nil
}

// AddUser registers an account and assigns its id
func (s *SQLiteStore) AddUser(ctx context.Context, user service.User) (*service.User, error) {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(username, email, nickname, created_at) VALUES (?, ?, ?, ?)`,
		user.Username, user.Email, user.Nickname, user.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, user.Username)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if user.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return &user, nil
}

// FindByID loads an account
func (s *SQLiteStore) FindByID(ctx context.Context, id int64) (*service.User, error) {
	var (
		u         service.User
		lastLogin sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, nickname, highest_score, total_games, created_at, last_login
		 FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.Nickname, &u.HighestScore, &u.TotalGames, &u.CreatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
	if lastLogin.Valid {
		u.LastLogin = lastLogin.Time
	}
	return &u, nil
}

// UpdateStats counts a finished game and raises the highest score
func (s *SQLiteStore) UpdateStats(ctx context.Context, id int64, score int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users
		 SET total_games = total_games + 1,
		     highest_score = MAX(highest_score, ?)
		 WHERE id = ?`, score, id)
	if err != nil {
		return fmt.Errorf("update stats for %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	return nil
}

// RecordScore inserts a finished game
func (s *SQLiteStore) RecordScore(ctx context.Context, record service.ScoreRecord) (int64, error) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scores(user_id, score, board_size, moves_used, completed, game_mode, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.Owner.IDPtr(), record.Score, record.BoardSize, record.MovesUsed, record.Completed, record.GameMode, record.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert score: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("score id: %w", err)
	}
	return id, nil
}

const sqliteScoreColumns = `s.id, s.user_id, COALESCE(u.username, ''), s.score, s.board_size,
	s.moves_used, s.completed, s.game_mode, s.created_at
	FROM scores s LEFT JOIN users u ON u.id = s.user_id`

// TopScores returns the best games, highest first
func (s *SQLiteStore) TopScores(ctx context.Context, limit int) ([]*service.ScoreRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteScoreColumns+` ORDER BY s.score DESC, s.id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("top scores: %w", err)
	}
	defer rows.Close()
	return scanSQLiteScores(rows)
}

// UserScores returns one account's best games, highest first
func (s *SQLiteStore) UserScores(ctx context.Context, userID int64, limit int) ([]*service.ScoreRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteScoreColumns+` WHERE s.user_id = ? ORDER BY s.score DESC, s.id ASC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("user scores: %w", err)
	}
	defer rows.Close()
	return scanSQLiteScores(rows)
}

// TopScoresByMode returns the best games of one mode, highest first
func (s *SQLiteStore) TopScoresByMode(ctx context.Context, mode string, limit int) ([]*service.ScoreRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteScoreColumns+` WHERE s.game_mode = ? ORDER BY s.score DESC, s.id ASC LIMIT ?`, mode, limit)
	if err != nil {
		return nil, fmt.Errorf("top scores for %s: %w", mode, err)
	}
	defer rows.Close()
	return scanSQLiteScores(rows)
}

// RecentScores returns games recorded since the given time, newest first
func (s *SQLiteStore) RecentScores(ctx context.Context, since time.Time, limit int) ([]*service.ScoreRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteScoreColumns+` WHERE s.created_at >= ? ORDER BY s.created_at DESC, s.id DESC LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("recent scores: %w", err)
	}
	defer rows.Close()
	return scanSQLiteScores(rows)
}

// UserStats aggregates one account's games
func (s *SQLiteStore) UserStats(ctx context.Context, userID int64) (*service.ScoreStats, error) {
	var stats service.ScoreStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(score), 0), COALESCE(MAX(score), 0)
		 FROM scores WHERE user_id = ?`, userID,
	).Scan(&stats.GamesPlayed, &stats.AverageScore, &stats.BestScore)
	if err != nil {
		return nil, fmt.Errorf("user stats for %d: %w", userID, err)
	}
	return &stats, nil
}

func scanSQLiteScores(rows *sql.Rows) ([]*service.ScoreRecord, error) {
	result := make([]*service.ScoreRecord, 0)
	for rows.Next() {
		var (
			r      service.ScoreRecord
			userID sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &userID, &r.Username, &r.Score, &r.BoardSize,
			&r.MovesUsed, &r.Completed, &r.GameMode, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		if userID.Valid {
			r.Owner = service.Account(userID.Int64)
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
