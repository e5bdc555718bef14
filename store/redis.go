package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/qiaoqiao/match3-server/game/service"
)

// leaderboardCap bounds the sorted set; older low scores fall off
const leaderboardCap = service.MaxScoresLimit * 10

// NewRedisClient parses a redis:// or rediss:// URL and checks the connection
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// RedisLeaderboard mirrors recorded scores into a Redis sorted set and serves
// TopScores from it. Everything else goes to the wrapped store.
//
// The set is filled from the wrapped store the first time it is used, so scores
// recorded before Redis was enabled still rank. Members start with an inverted
// creation time and record id; equal scores therefore come back earlier game first.
type RedisLeaderboard struct {
	service.ScoreStore
	users  service.UserStore
	rdb    *redis.Client
	prefix string
}

// NewRedisLeaderboard decorates inner with a leaderboard under prefix. When inner
// also resolves accounts, usernames are filled in on read.
func NewRedisLeaderboard(inner service.ScoreStore, rdb *redis.Client, prefix string) *RedisLeaderboard {
	if prefix == "" {
		prefix = "match3"
	}
	users, _ := inner.(service.UserStore)
	return &RedisLeaderboard{ScoreStore: inner, users: users, rdb: rdb, prefix: prefix}
}

// memberKeyLen is the ordering prefix in front of every encoded member
const memberKeyLen = 16

// leaderboardEntry is the sorted-set member; the score itself is the set score
type leaderboardEntry struct {
	ID        int64  `msgpack:"i"`
	UserID    *int64 `msgpack:"u"`
	BoardSize int    `msgpack:"b"`
	MovesUsed int    `msgpack:"m"`
	Completed bool   `msgpack:"c"`
	GameMode  string `msgpack:"g"`
	CreatedAt int64  `msgpack:"t"`
}

// RecordScore writes to the wrapped store, then to the sorted set.
// A Redis failure is logged; the wrapped store remains authoritative.
func (l *RedisLeaderboard) RecordScore(ctx context.Context, record service.ScoreRecord) (int64, error) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	id, err := l.ScoreStore.RecordScore(ctx, record)
	if err != nil {
		return 0, err
	}
	record.ID = id
	if err := l.backfill(ctx); err != nil {
		log.Warn().Err(err).Msg("leaderboard backfill failed")
	}
	if err := l.add(ctx, record); err != nil {
		log.Warn().Err(err).Int("score", record.Score).Msg("leaderboard update failed")
	}
	return id, nil
}

func (l *RedisLeaderboard) add(ctx context.Context, records ...service.ScoreRecord) error {
	members := make([]redis.Z, 0, len(records))
	for _, record := range records {
		member, err := encodeEntry(record)
		if err != nil {
			return err
		}
		members = append(members, redis.Z{Score: float64(record.Score), Member: member})
	}
	if len(members) == 0 {
		return nil
	}

	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, l.boardKey(), members...)
	pipe.ZRemRangeByRank(ctx, l.boardKey(), 0, -leaderboardCap-1)
	_, err := pipe.Exec(ctx)
	return err
}

// backfill copies the wrapped store's best games into the set once per set.
// Re-adding a record already present is a no-op since members are deterministic.
func (l *RedisLeaderboard) backfill(ctx context.Context) error {
	first, err := l.rdb.SetNX(ctx, l.filledKey(), time.Now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil || !first {
		return err
	}

	records, err := l.ScoreStore.TopScores(ctx, leaderboardCap)
	if err != nil {
		l.rdb.Del(ctx, l.filledKey())
		return fmt.Errorf("load scores for backfill: %w", err)
	}
	values := make([]service.ScoreRecord, 0, len(records))
	for _, r := range records {
		values = append(values, *r)
	}
	if err := l.add(ctx, values...); err != nil {
		l.rdb.Del(ctx, l.filledKey())
		return fmt.Errorf("backfill leaderboard: %w", err)
	}
	log.Info().Int("count", len(values)).Msg("leaderboard backfilled from score store")
	return nil
}

// TopScores reads the sorted set, falling back to the wrapped store when Redis fails
// or holds nothing yet
func (l *RedisLeaderboard) TopScores(ctx context.Context, limit int) ([]*service.ScoreRecord, error) {
	if err := l.backfill(ctx); err != nil {
		log.Warn().Err(err).Msg("leaderboard backfill failed, using score store")
		return l.ScoreStore.TopScores(ctx, limit)
	}

	entries, err := l.rdb.ZRevRangeWithScores(ctx, l.boardKey(), 0, int64(limit)-1).Result()
	if err != nil {
		log.Warn().Err(err).Msg("leaderboard read failed, using score store")
		return l.ScoreStore.TopScores(ctx, limit)
	}
	if len(entries) == 0 {
		return l.ScoreStore.TopScores(ctx, limit)
	}

	result := make([]*service.ScoreRecord, 0, len(entries))
	for _, z := range entries {
		record, err := decodeEntry(z)
		if err != nil {
			log.Warn().Err(err).Msg("skipping unreadable leaderboard entry")
			continue
		}
		result = append(result, record)
	}
	l.fillUsernames(ctx, result)
	return result, nil
}

func (l *RedisLeaderboard) fillUsernames(ctx context.Context, records []*service.ScoreRecord) {
	if l.users == nil {
		return
	}
	names := make(map[int64]string)
	for _, r := range records {
		id, ok := r.Owner.AccountID()
		if !ok {
			continue
		}
		name, seen := names[id]
		if !seen {
			if u, err := l.users.FindByID(ctx, id); err == nil {
				name = u.Username
			}
			names[id] = name
		}
		r.Username = name
	}
}

// encodeEntry builds the member for record: the ordering prefix, then msgpack
func encodeEntry(record service.ScoreRecord) (string, error) {
	created := record.CreatedAt.UnixMilli()
	raw, err := msgpack.Marshal(leaderboardEntry{
		ID:        record.ID,
		UserID:    record.Owner.IDPtr(),
		BoardSize: record.BoardSize,
		MovesUsed: record.MovesUsed,
		Completed: record.Completed,
		GameMode:  record.GameMode,
		CreatedAt: created,
	})
	if err != nil {
		return "", fmt.Errorf("encode leaderboard entry: %w", err)
	}

	// Equal scores sort by member descending, so invert time and id to put earlier games first
	member := make([]byte, memberKeyLen, memberKeyLen+len(raw))
	binary.BigEndian.PutUint64(member[:8], uint64(math.MaxInt64-created))
	binary.BigEndian.PutUint64(member[8:], uint64(math.MaxInt64-record.ID))
	return string(append(member, raw...)), nil
}

func decodeEntry(z redis.Z) (*service.ScoreRecord, error) {
	raw, ok := z.Member.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected member type %T", z.Member)
	}
	if len(raw) < memberKeyLen {
		return nil, fmt.Errorf("leaderboard member too short (%d bytes)", len(raw))
	}
	var e leaderboardEntry
	if err := msgpack.Unmarshal([]byte(raw[memberKeyLen:]), &e); err != nil {
		return nil, err
	}
	return &service.ScoreRecord{
		ID:        e.ID,
		Owner:     service.OwnerFromID(e.UserID),
		Score:     int(z.Score),
		BoardSize: e.BoardSize,
		MovesUsed: e.MovesUsed,
		Completed: e.Completed,
		GameMode:  e.GameMode,
		CreatedAt: time.UnixMilli(e.CreatedAt).UTC(),
	}, nil
}

func (l *RedisLeaderboard) boardKey() string  { return l.prefix + ":leaderboard" }
func (l *RedisLeaderboard) filledKey() string { return l.prefix + ":leaderboard:filled" }
