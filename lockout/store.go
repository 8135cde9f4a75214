package lockout

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStoreUnavailable indicates the lockout backend is unreachable.
var ErrStoreUnavailable = errors.New("lockout store unavailable")

// Store holds lockout records. Every method is atomic per key; operations on
// different keys must not contend.
type Store interface {
	// Get returns the record for key, or a zero Record.
	Get(ctx context.Context, key string) (Record, error)
	// Increment heals a lapsed lock, adds one failure, and stamps
	// LockedUntil = now + duration when the count reaches threshold on an
	// unlocked record. tripped is true only for the call that stamped the lock.
	Increment(ctx context.Context, key string, threshold int, duration time.Duration, now time.Time) (rec Record, tripped bool, err error)
	// Reset clears the record for key.
	Reset(ctx context.Context, key string) error
	// ClearIfExpired clears the record if its lock lapsed before now and
	// returns the resulting record.
	ClearIfExpired(ctx context.Context, key string, now time.Time) (Record, error)
}

type entry struct {
	mu   sync.Mutex
	rec  Record
	dead bool
}

// MemoryStore is an in-process Store. Each key has its own mutex; the map
// itself is a sync.Map so unrelated keys never share a lock.
type MemoryStore struct {
	entries sync.Map // string -> *entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// acquire returns the live entry for key with its mutex held, creating it if needed.
func (s *MemoryStore) acquire(key string) *entry {
	for {
		v, ok := s.entries.Load(key)
		if !ok {
			v, _ = s.entries.LoadOrStore(key, &entry{})
		}
		e := v.(*entry)
		e.mu.Lock()
		if !e.dead {
			return e
		}
		// Swept between Load and Lock.
		e.mu.Unlock()
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (Record, error) {
	v, ok := s.entries.Load(key)
	if !ok {
		return Record{}, nil
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return Record{}, nil
	}
	return e.rec, nil
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, key string, threshold int, duration time.Duration, now time.Time) (Record, bool, error) {
	e := s.acquire(key)
	defer e.mu.Unlock()

	if e.rec.Lapsed(now) {
		e.rec = Record{}
	}
	e.rec.Failures++
	tripped := false
	if e.rec.LockedUntil.IsZero() && e.rec.Failures >= threshold {
		e.rec.LockedUntil = now.Add(duration)
		tripped = true
	}
	return e.rec, tripped, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	v, ok := s.entries.Load(key)
	if !ok {
		return nil
	}
	e := v.(*entry)
	e.mu.Lock()
	e.rec = Record{}
	e.mu.Unlock()
	return nil
}

// ClearIfExpired implements Store.
func (s *MemoryStore) ClearIfExpired(_ context.Context, key string, now time.Time) (Record, error) {
	v, ok := s.entries.Load(key)
	if !ok {
		return Record{}, nil
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return Record{}, nil
	}
	if e.rec.Lapsed(now) {
		e.rec = Record{}
	}
	return e.rec, nil
}

// Sweep removes entries that are clear or whose lock lapsed before now, and
// returns how many were removed. Accumulating and locked entries are kept.
func (s *MemoryStore) Sweep(now time.Time) int {
	removed := 0
	s.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		if e.rec.Failures == 0 || e.rec.Lapsed(now) {
			e.dead = true
			s.entries.CompareAndDelete(k, e)
			removed++
		}
		e.mu.Unlock()
		return true
	})
	return removed
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
