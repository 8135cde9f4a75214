package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yldrmabdullah/shopguard/clock"
	"golang.org/x/time/rate"
)

var (
	// ErrRateLimited is returned by middleware-facing helpers when a key is over budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrBackendUnavailable indicates the limiter backend is unreachable.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
)

// Config is a request budget: Limit requests per Window.
type Config struct {
	Limit  int
	Window time.Duration
}

// DefaultConfig allows 100 requests per minute.
func DefaultConfig() Config {
	return Config{Limit: 100, Window: time.Minute}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Limit <= 0 {
		c.Limit = d.Limit
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	return c
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter consumes one unit of budget for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RedisLimiter is a fixed-window counter shared by every process using the
// same Redis.
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client redis.UniversalClient, cfg Config) *RedisLimiter {
	return &RedisLimiter{redis: client, config: cfg.withDefaults()}
}

func windowKey(key string) string {
	return "rl:" + key
}

// KEYS[1] window counter; ARGV: window ms. Returns {count, pttl ms}.
var windowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

// Allow implements Limiter. The counter and its expiry are set atomically.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := windowScript.Run(ctx, l.redis, []string{windowKey(key)}, l.config.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply %v", ErrBackendUnavailable, res)
	}

	count := res[0]
	if count <= int64(l.config.Limit) {
		return Decision{Allowed: true, Remaining: l.config.Limit - int(count)}, nil
	}

	ttl := time.Duration(res[1]) * time.Millisecond
	if ttl <= 0 {
		ttl = l.config.Window
	}
	return Decision{RetryAfter: ttl}, nil
}

// Reset clears the window for key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, windowKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// MemoryLimiter keeps a token bucket per key in process memory. Buckets refill
// at Limit/Window and hold at most Limit tokens.
type MemoryLimiter struct {
	config  Config
	clock   clock.Clock
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
}

// NewMemoryLimiter creates an in-process limiter. A nil clock selects the system clock.
func NewMemoryLimiter(cfg Config, clk clock.Clock) *MemoryLimiter {
	return &MemoryLimiter{
		config:  cfg.withDefaults(),
		clock:   clock.Or(clk),
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *MemoryLimiter) bucket(key string) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[key]; !ok {
		b = rate.NewLimiter(rate.Every(l.config.Window/time.Duration(l.config.Limit)), l.config.Limit)
		l.buckets[key] = b
	}
	return b
}

// Allow implements Limiter. It never returns an error.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.clock.Now()
	b := l.bucket(key)

	res := b.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return Decision{RetryAfter: delay}, nil
	}
	return Decision{Allowed: true, Remaining: int(b.TokensAt(now))}, nil
}

// Sweep drops buckets that have refilled to Limit by now. A dropped key
// starts again with a full bucket, so the result is indistinguishable from
// keeping it. It returns the number of buckets removed.
func (l *MemoryLimiter) Sweep(now time.Time) int {
	full := float64(l.config.Limit)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		if b.TokensAt(now) >= full {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}
