package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/qiaoqiao/match3-server/game/service"
)

const redisOpTimeout = 3 * time.Second

// saveScript writes a snapshot unless storage already holds a later move sequence.
// KEYS: session, seq, index. ARGV: blob, seq, ttl ms, id.
var saveScript = redis.NewScript(`
local stored = redis.call('GET', KEYS[2])
if stored and tonumber(stored) > tonumber(ARGV[2]) then
  return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
  redis.call('SET', KEYS[2], ARGV[2], 'PX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[1])
  redis.call('SET', KEYS[2], ARGV[2])
end
redis.call('SADD', KEYS[3], ARGV[4])
return 1
`)

// RedisPersistence implements SessionPersistence with msgpack blobs in Redis.
// Each session lives under its own key; a set indexes the ids.
type RedisPersistence struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisPersistence stores sessions under prefix. A zero ttl keeps them until deleted.
func NewRedisPersistence(rdb *redis.Client, prefix string, ttl time.Duration) *RedisPersistence {
	if prefix == "" {
		prefix = "match3"
	}
	return &RedisPersistence{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Save persists a session snapshot
func (rp *RedisPersistence) Save(snapshot *service.SessionSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("session cannot be nil")
	}
	raw, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	id := strings.ToLower(snapshot.ID)
	keys := []string{rp.sessionKey(id), rp.seqKey(id), rp.indexKey()}
	written, err := saveScript.Run(ctx, rp.rdb, keys, raw, snapshot.MoveSeq, rp.ttl.Milliseconds(), id).Int()
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", id, err)
	}
	if written == 0 {
		log.Debug().Str("session", id).Int("seq", snapshot.MoveSeq).Msg("redis holds a newer snapshot, save skipped")
	}
	return nil
}

// Load retrieves a session snapshot
func (rp *RedisPersistence) Load(id string) (*service.SessionSnapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := rp.rdb.Get(ctx, rp.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}

	var snapshot service.SessionSnapshot
	if err := msgpack.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &snapshot, nil
}

// Delete removes a session
func (rp *RedisPersistence) Delete(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	id = strings.ToLower(id)
	removed, err := rp.rdb.Del(ctx, rp.sessionKey(id), rp.seqKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if err := rp.rdb.SRem(ctx, rp.indexKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to unindex session %s: %w", id, err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// ListAll returns the indexed ids whose keys still exist. Expired entries are pruned.
func (rp *RedisPersistence) ListAll() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	ids, err := rp.rdb.SMembers(ctx, rp.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	live := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := rp.rdb.Exists(ctx, rp.sessionKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check session %s: %w", id, err)
		}
		if n == 0 {
			rp.rdb.SRem(ctx, rp.indexKey(), id)
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

// Exists checks if a session is stored
func (rp *RedisPersistence) Exists(id string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	n, err := rp.rdb.Exists(ctx, rp.sessionKey(id)).Result()
	return err == nil && n > 0
}

func (rp *RedisPersistence) sessionKey(id string) string {
	return rp.prefix + ":session:" + strings.ToLower(strings.TrimSpace(id))
}

func (rp *RedisPersistence) seqKey(id string) string {
	return rp.sessionKey(id) + ":seq"
}

func (rp *RedisPersistence) indexKey() string {
	return rp.prefix + ":sessions"
}
