package lockout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix        = "alo:"
	defaultRedisRetention = 24 * time.Hour
)

// KEYS[1] record hash; ARGV: now ms, threshold, locked-until ms if tripped, ttl ms.
var incrementScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local locked = tonumber(redis.call('HGET', KEYS[1], 'u') or '0')
if locked > 0 and now > locked then
  redis.call('DEL', KEYS[1])
  locked = 0
end
local failures = redis.call('HINCRBY', KEYS[1], 'f', 1)
local tripped = 0
if locked == 0 and failures >= tonumber(ARGV[2]) then
  redis.call('HSET', KEYS[1], 'u', ARGV[3])
  locked = tonumber(ARGV[3])
  tripped = 1
end
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {failures, locked, tripped}
`)

// KEYS[1] record hash; ARGV: now ms.
var clearIfExpiredScript = redis.NewScript(`
local locked = tonumber(redis.call('HGET', KEYS[1], 'u') or '0')
if locked > 0 and tonumber(ARGV[1]) > locked then
  redis.call('DEL', KEYS[1])
  return {0, 0}
end
local failures = tonumber(redis.call('HGET', KEYS[1], 'f') or '0')
return {failures, locked}
`)

// RedisStore keeps one hash per account key so every process in a fleet sees
// the same counts. Lock instants are stored as wall-clock Unix milliseconds
// supplied by the caller.
type RedisStore struct {
	redis     redis.UniversalClient
	retention time.Duration
}

// RedisOption customizes a RedisStore.
type RedisOption func(*RedisStore)

// WithRetention sets how long an idle record survives. Records are always
// kept for at least the lock duration.
func WithRetention(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

// NewRedisStore creates a Redis-backed Store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{redis: client, retention: defaultRedisRetention}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(account string) string {
	return redisKeyPrefix + account
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	vals, err := s.redis.HMGet(ctx, s.key(key), "f", "u").Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	failures, err := hashInt(vals[0])
	if err != nil {
		return Record{}, err
	}
	until, err := hashInt(vals[1])
	if err != nil {
		return Record{}, err
	}
	return toRecord(failures, until), nil
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string, threshold int, duration time.Duration, now time.Time) (Record, bool, error) {
	ttl := s.retention
	if duration > ttl {
		ttl = duration
	}
	res, err := incrementScript.Run(ctx, s.redis, []string{s.key(key)},
		now.UnixMilli(), threshold, now.Add(duration).UnixMilli(), ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) != 3 {
		return Record{}, false, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}
	return toRecord(res[0], res[1]), res[2] == 1, nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ClearIfExpired implements Store.
func (s *RedisStore) ClearIfExpired(ctx context.Context, key string, now time.Time) (Record, error) {
	res, err := clearIfExpiredScript.Run(ctx, s.redis, []string{s.key(key)}, now.UnixMilli()).Int64Slice()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return Record{}, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}
	return toRecord(res[0], res[1]), nil
}

func toRecord(failures, untilMillis int64) Record {
	rec := Record{Failures: int(failures)}
	if untilMillis > 0 {
		rec.LockedUntil = time.UnixMilli(untilMillis)
	}
	return rec
}

func hashInt(v interface{}) (int64, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, errors.New("lockout: unexpected hash value type")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("lockout: corrupt hash value: %w", err)
	}
	return n, nil
}
