// Package lockout counts failed authentications per account key and refuses
// further attempts for a fixed window once a threshold is reached.
//
// Each key moves through Clear (no failures) → Accumulating (below threshold)
// → Locked (threshold reached, LockedUntil stamped). A lock ends when a success
// is recorded or when a lock check observes that the window has lapsed.
//
// # Architecture boundaries
//
// State lives behind [Store]. [MemoryStore] serves a single process,
// [RedisStore] serves a fleet. [Tracker] owns the policy (threshold, duration,
// clock) and never touches state except through the store's atomic operations.
//
// # What this package must NOT do
//
//   - Serialize a whole signin. Check-then-act between IsLocked and
//     RecordFailure is not transactional.
//   - Know anything about passwords, users or tokens.
package lockout

import (
	"context"
	"time"

	"github.com/yldrmabdullah/shopguard/clock"
)

const (
	// DefaultThreshold is the number of consecutive failures that trips a lock.
	DefaultThreshold = 5
	// DefaultDuration is how long a tripped lock lasts.
	DefaultDuration = 5 * time.Minute
)

// Record is the state of one account key.
// A zero LockedUntil means the key is not locked.
type Record struct {
	Failures    int       `json:"failures"`
	LockedUntil time.Time `json:"locked_until,omitempty"`
}

// Locked reports whether the record is locked at now.
// The lock holds up to and including LockedUntil.
func (r Record) Locked(now time.Time) bool {
	return !r.LockedUntil.IsZero() && !now.After(r.LockedUntil)
}

// Lapsed reports whether the record carries a lock whose window ended before now.
func (r Record) Lapsed(now time.Time) bool {
	return !r.LockedUntil.IsZero() && now.After(r.LockedUntil)
}

// Remaining returns how long the lock still holds, or 0.
func (r Record) Remaining(now time.Time) time.Duration {
	if !r.Locked(now) {
		return 0
	}
	return r.LockedUntil.Sub(now)
}

// Config holds the lockout policy.
type Config struct {
	Threshold int
	Duration  time.Duration
}

// DefaultConfig returns threshold 5 and a five minute window.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, Duration: DefaultDuration}
}

// Tracker applies a lockout policy on top of a Store.
// It is safe for concurrent use.
type Tracker struct {
	store  Store
	config Config
	clock  clock.Clock
}

// New returns a Tracker. A nil store selects a fresh MemoryStore, a nil clock
// selects the system clock, and non-positive config values fall back to defaults.
func New(store Store, cfg Config, clk clock.Clock) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	return &Tracker{store: store, config: cfg, clock: clock.Or(clk)}
}

// Config returns the active policy.
func (t *Tracker) Config() Config {
	return t.config
}

// Status returns the record for key after healing a lapsed lock.
func (t *Tracker) Status(ctx context.Context, key string) (Record, error) {
	if key == "" {
		return Record{}, nil
	}
	return t.store.ClearIfExpired(ctx, key, t.clock.Now())
}

// IsLocked reports whether key is locked. A lock whose window has lapsed is
// cleared, along with its failure count, and reported as unlocked.
func (t *Tracker) IsLocked(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	now := t.clock.Now()
	rec, err := t.store.ClearIfExpired(ctx, key, now)
	if err != nil {
		return false, err
	}
	return rec.Locked(now), nil
}

// Remaining returns how long key stays locked, or 0.
func (t *Tracker) Remaining(ctx context.Context, key string) (time.Duration, error) {
	if key == "" {
		return 0, nil
	}
	now := t.clock.Now()
	rec, err := t.store.ClearIfExpired(ctx, key, now)
	if err != nil {
		return 0, err
	}
	return rec.Remaining(now), nil
}

// RecordFailure counts one failed attempt. It returns the post-increment record
// and whether this call was the one that tripped the lock.
func (t *Tracker) RecordFailure(ctx context.Context, key string) (Record, bool, error) {
	if key == "" {
		return Record{}, false, nil
	}
	return t.store.Increment(ctx, key, t.config.Threshold, t.config.Duration, t.clock.Now())
}

// RecordSuccess clears the failure count and any lock for key.
func (t *Tracker) RecordSuccess(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return t.store.Reset(ctx, key)
}

// FailureCount returns the stored failure count without healing. It is 0 for
// unknown keys.
func (t *Tracker) FailureCount(ctx context.Context, key string) (int, error) {
	if key == "" {
		return 0, nil
	}
	rec, err := t.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return rec.Failures, nil
}
