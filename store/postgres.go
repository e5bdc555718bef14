package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/qiaoqiao/match3-server/game/service"
)

const pgUniqueViolation = "23505"

// PostgresStore persists users and scores through a pgx pool
type PostgresStore struct {
	db *pgxpool.Pool
}

// OpenPostgres connects to databaseURL, checks the connection and applies migrations
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPostgresStore(pool)
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool without migrating
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}

	scripts, err := migrations("postgres")
	if err != nil {
		return err
	}

	for _, m := range scripts {
		tag, err := s.db.Exec(ctx, `INSERT INTO _migrations(name) VALUES ($1) ON CONFLICT DO NOTHING`, m.name)
		if err != nil {
			return fmt.Errorf("record %s: %w", m.name, err)
		}
		if tag.RowsAffected() == 0 {
			log.Debug().Str("migration", m.name).Msg("already applied")
			continue
		}
		if _, err := s.db.Exec(ctx, m.sql); err != nil {
			s.db.Exec(ctx, `DELETE FROM _migrations WHERE name = $1`, m.name)
			return fmt.Errorf("apply %s: %w", m.name, err)
		}
		log.Info().Str("migration", m.name).Msg("applied")
	}
	return nil
}

// AddUser registers an account and assigns its id
func (s *PostgresStore) AddUser(ctx context.Context, user service.User) (*service.User, error) {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO users (username, email, nickname, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		user.Username, user.Email, user.Nickname, user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, user.Username)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &user, nil
}

// FindByID loads an account
func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*service.User, error) {
	var (
		u         service.User
		lastLogin *time.Time
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, username, email, nickname, highest_score, total_games, created_at, last_login
		 FROM users
		 WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.Nickname, &u.HighestScore, &u.TotalGames, &u.CreatedAt, &lastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
	if lastLogin != nil {
		u.LastLogin = *lastLogin
	}
	return &u, nil
}

// UpdateStats counts a finished game and raises the highest score
func (s *PostgresStore) UpdateStats(ctx context.Context, id int64, score int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users
		 SET total_games = total_games + 1,
		     highest_score = GREATEST(highest_score, $1)
		 WHERE id = $2`,
		score, id,
	)
	if err != nil {
		return fmt.Errorf("update stats for %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	return nil
}

// RecordScore inserts a finished game
func (s *PostgresStore) RecordScore(ctx context.Context, record service.ScoreRecord) (int64, error) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO scores (user_id, score, board_size, moves_used, completed, game_mode, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		record.Owner.IDPtr(), record.Score, record.BoardSize, record.MovesUsed, record.Completed, record.GameMode, record.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert score: %w", err)
	}
	return id, nil
}

const pgScoreColumns = `s.id, s.user_id, COALESCE(u.username, ''), s.score, s.board_size,
	s.moves_used, s.completed, s.game_mode, s.created_at
	FROM scores s LEFT JOIN users u ON u.id = s.user_id`

// TopScores returns the best games, highest first
func (s *PostgresStore) TopScores(ctx context.Context, limit int) ([]*service.ScoreRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+pgScoreColumns+` ORDER BY s.score DESC, s.id ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top scores: %w", err)
	}
	defer rows.Close()
	return scanPgScores(rows)
}

// UserScores returns one account's best games, highest first
func (s *PostgresStore) UserScores(ctx context.Context, userID int64, limit int) ([]*service.ScoreRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+pgScoreColumns+` WHERE s.user_id = $1 ORDER BY s.score DESC, s.id ASC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("user scores: %w", err)
	}
	defer rows.Close()
	return scanPgScores(rows)
}

// TopScoresByMode returns the best games of one mode, highest first
func (s *PostgresStore) TopScoresByMode(ctx context.Context, mode string, limit int) ([]*service.ScoreRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+pgScoreColumns+` WHERE s.game_mode = $1 ORDER BY s.score DESC, s.id ASC LIMIT $2`,
		mode, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top scores for %s: %w", mode, err)
	}
	defer rows.Close()
	return scanPgScores(rows)
}

// RecentScores returns games recorded since the given time, newest first
func (s *PostgresStore) RecentScores(ctx context.Context, since time.Time, limit int) ([]*service.ScoreRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+pgScoreColumns+` WHERE s.created_at >= $1 ORDER BY s.created_at DESC, s.id DESC LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent scores: %w", err)
	}
	defer rows.Close()
	return scanPgScores(rows)
}

// UserStats aggregates one account's games
func (s *PostgresStore) UserStats(ctx context.Context, userID int64) (*service.ScoreStats, error) {
	var stats service.ScoreStats
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(score), 0)::float8, COALESCE(MAX(score), 0)
		 FROM scores
		 WHERE user_id = $1`,
		userID,
	).Scan(&stats.GamesPlayed, &stats.AverageScore, &stats.BestScore)
	if err != nil {
		return nil, fmt.Errorf("user stats for %d: %w", userID, err)
	}
	return &stats, nil
}

func scanPgScores(rows pgx.Rows) ([]*service.ScoreRecord, error) {
	result := make([]*service.ScoreRecord, 0)
	for rows.Next() {
		var (
			r      service.ScoreRecord
			userID *int64
		)
		if err := rows.Scan(&r.ID, &userID, &r.Username, &r.Score, &r.BoardSize,
			&r.MovesUsed, &r.Completed, &r.GameMode, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		r.Owner = service.OwnerFromID(userID)
		result = append(result, &r)
	}
	return result, rows.Err()
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
