package lockout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/yldrmabdullah/shopguard/clock"
)

var epoch = time.Unix(1_700_000_000, 0)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("redis", func(t *testing.T) {
		_, client := newTestRedis(t)
		fn(t, NewRedisStore(client))
	})
}

func TestThresholdBoundary(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		tr := New(store, DefaultConfig(), clock.NewFake(epoch))

		for i := 0; i < 4; i++ {
			if _, tripped, err := tr.RecordFailure(ctx, "acct"); err != nil || tripped {
				t.Fatalf("failure %d: tripped=%v err=%v", i+1, tripped, err)
			}
		}
		locked, err := tr.IsLocked(ctx, "acct")
		if err != nil {
			t.Fatalf("IsLocked: %v", err)
		}
		if locked {
			t.Fatal("expected account unlocked after 4 failures")
		}

		rec, tripped, err := tr.RecordFailure(ctx, "acct")
		if err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		if !tripped {
			t.Fatal("expected fifth failure to trip the lock")
		}
		if rec.Failures != 5 || !rec.LockedUntil.Equal(epoch.Add(DefaultDuration)) {
			t.Fatalf("unexpected record %+v", rec)
		}
		locked, err = tr.IsLocked(ctx, "acct")
		if err != nil || !locked {
			t.Fatalf("expected account locked after 5 failures, locked=%v err=%v", locked, err)
		}
	})
}

func TestRecordSuccessResets(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		tr := New(store, DefaultConfig(), clock.NewFake(epoch))

		for i := 0; i < 5; i++ {
			if _, _, err := tr.RecordFailure(ctx, "acct"); err != nil {
				t.Fatalf("RecordFailure: %v", err)
			}
		}
		if err := tr.RecordSuccess(ctx, "acct"); err != nil {
			t.Fatalf("RecordSuccess: %v", err)
		}
		if n, err := tr.FailureCount(ctx, "acct"); err != nil || n != 0 {
			t.Fatalf("expected count 0 after success, got %d err=%v", n, err)
		}
		if locked, _ := tr.IsLocked(ctx, "acct"); locked {
			t.Fatal("expected success to clear the lock")
		}

		// Success on an unknown key is a no-op.
		if err := tr.RecordSuccess(ctx, "never-seen"); err != nil {
			t.Fatalf("RecordSuccess unknown: %v", err)
		}
	})
}

func TestLockSelfHealsAfterWindow(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		clk := clock.NewFake(epoch)
		tr := New(store, DefaultConfig(), clk)

		for i := 0; i < 5; i++ {
			if _, _, err := tr.RecordFailure(ctx, "acct"); err != nil {
				t.Fatalf("RecordFailure: %v", err)
			}
		}

		clk.Advance(DefaultDuration)
		if locked, _ := tr.IsLocked(ctx, "acct"); !locked {
			t.Fatal("expected lock to hold at the exact end of the window")
		}
		if rem, _ := tr.Remaining(ctx, "acct"); rem != 0 {
			t.Fatalf("expected no remaining time at window end, got %v", rem)
		}

		clk.Advance(time.Second)
		locked, err := tr.IsLocked(ctx, "acct")
		if err != nil {
			t.Fatalf("IsLocked: %v", err)
		}
		if locked {
			t.Fatal("expected lock to lapse after the window")
		}
		if n, _ := tr.FailureCount(ctx, "acct"); n != 0 {
			t.Fatalf("expected self-heal to reset count, got %d", n)
		}
	})
}

func TestFailuresWhileLockedDoNotExtend(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		clk := clock.NewFake(epoch)
		tr := New(store, DefaultConfig(), clk)

		for i := 0; i < 5; i++ {
			if _, _, err := tr.RecordFailure(ctx, "acct"); err != nil {
				t.Fatalf("RecordFailure: %v", err)
			}
		}
		clk.Advance(time.Minute)
		rec, tripped, err := tr.RecordFailure(ctx, "acct")
		if err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		if tripped {
			t.Fatal("did not expect a second trip while locked")
		}
		if rec.Failures != 6 {
			t.Fatalf("expected count to keep increasing, got %d", rec.Failures)
		}
		if !rec.LockedUntil.Equal(epoch.Add(DefaultDuration)) {
			t.Fatalf("expected lock end unchanged, got %v", rec.LockedUntil)
		}
		if rem, _ := tr.Remaining(ctx, "acct"); rem != 4*time.Minute {
			t.Fatalf("expected 4m remaining, got %v", rem)
		}
	})
}

func TestFailureAfterUnobservedLapseStartsFresh(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		clk := clock.NewFake(epoch)
		tr := New(store, DefaultConfig(), clk)

		for i := 0; i < 5; i++ {
			if _, _, err := tr.RecordFailure(ctx, "acct"); err != nil {
				t.Fatalf("RecordFailure: %v", err)
			}
		}
		clk.Advance(DefaultDuration + time.Second)
		rec, tripped, err := tr.RecordFailure(ctx, "acct")
		if err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		if tripped || rec.Failures != 1 || !rec.LockedUntil.IsZero() {
			t.Fatalf("expected a fresh accumulating record, got %+v tripped=%v", rec, tripped)
		}
	})
}

func TestKeysAreIndependent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		tr := New(store, Config{Threshold: 2, Duration: time.Minute}, clock.NewFake(epoch))

		for i := 0; i < 2; i++ {
			if _, _, err := tr.RecordFailure(ctx, "a"); err != nil {
				t.Fatalf("RecordFailure: %v", err)
			}
		}
		if locked, _ := tr.IsLocked(ctx, "a"); !locked {
			t.Fatal("expected a locked")
		}
		if locked, _ := tr.IsLocked(ctx, "b"); locked {
			t.Fatal("expected b unaffected")
		}
		if n, _ := tr.FailureCount(ctx, "b"); n != 0 {
			t.Fatalf("expected b count 0, got %d", n)
		}
	})
}

func TestConcurrentFailuresTripExactlyOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		tr := New(store, DefaultConfig(), clock.NewFake(epoch))

		const workers = 64
		var trips atomic.Int32
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				_, tripped, err := tr.RecordFailure(ctx, "hot")
				if err != nil {
					t.Errorf("RecordFailure: %v", err)
					return
				}
				if tripped {
					trips.Add(1)
				}
			}()
		}
		wg.Wait()

		if got := trips.Load(); got != 1 {
			t.Fatalf("expected exactly one trip, got %d", got)
		}
		if n, _ := tr.FailureCount(ctx, "hot"); n != workers {
			t.Fatalf("expected %d failures, got %d", workers, n)
		}
	})
}

func TestEmptyKeyIsIgnored(t *testing.T) {
	ctx := context.Background()
	tr := New(nil, DefaultConfig(), nil)
	if _, tripped, err := tr.RecordFailure(ctx, ""); tripped || err != nil {
		t.Fatalf("expected no-op, tripped=%v err=%v", tripped, err)
	}
	if locked, err := tr.IsLocked(ctx, ""); locked || err != nil {
		t.Fatalf("expected unlocked, locked=%v err=%v", locked, err)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	tr := New(nil, Config{}, nil)
	if cfg := tr.Config(); cfg.Threshold != DefaultThreshold || cfg.Duration != DefaultDuration {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clk := clock.NewFake(epoch)
	tr := New(store, Config{Threshold: 2, Duration: time.Minute}, clk)

	tr.RecordFailure(ctx, "accumulating")
	tr.RecordFailure(ctx, "locked")
	tr.RecordFailure(ctx, "locked")
	tr.RecordFailure(ctx, "cleared")
	tr.RecordSuccess(ctx, "cleared")

	if removed := store.Sweep(clk.Now()); removed != 1 {
		t.Fatalf("expected one clear entry swept, got %d", removed)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 entries kept, got %d", store.Len())
	}

	clk.Advance(2 * time.Minute)
	if removed := store.Sweep(clk.Now()); removed != 1 {
		t.Fatalf("expected lapsed lock swept, got %d", removed)
	}

	// A swept key is recreated on the next failure.
	rec, _, err := tr.RecordFailure(ctx, "locked")
	if err != nil || rec.Failures != 1 {
		t.Fatalf("expected fresh record after sweep, got %+v err=%v", rec, err)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	tr := New(NewRedisStore(client), DefaultConfig(), nil)
	mr.Close()

	if _, _, err := tr.RecordFailure(context.Background(), "acct"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := tr.IsLocked(context.Background(), "acct"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestRedisStoreSetsRetention(t *testing.T) {
	mr, client := newTestRedis(t)
	tr := New(NewRedisStore(client, WithRetention(time.Hour)), DefaultConfig(), nil)

	if _, _, err := tr.RecordFailure(context.Background(), "acct"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if ttl := mr.TTL(redisKeyPrefix + "acct"); ttl != time.Hour {
		t.Fatalf("expected 1h retention, got %v", ttl)
	}
}
