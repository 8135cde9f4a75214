package main

import (
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	samples := make([]time.Duration, 100)
	for i := range samples {
		samples[i] = time.Duration(i+1) * time.Millisecond
	}
	cases := map[int]time.Duration{
		0:   time.Millisecond,
		50:  50 * time.Millisecond,
		99:  99 * time.Millisecond,
		100: 100 * time.Millisecond,
	}
	for p, want := range cases {
		if got := percentile(samples, p); got != want {
			t.Fatalf("p%d = %s, want %s", p, got, want)
		}
	}
	if percentile(nil, 50) != 0 {
		t.Fatal("expected zero for no samples")
	}
}

func TestRunPhaseCountsEveryOp(t *testing.T) {
	var calls atomic.Int64
	stats := runPhase(500, 8, 31, func(*rand.Rand) error {
		if calls.Add(1)%5 == 0 {
			return errors.New("boom")
		}
		return nil
	})
	if stats.ops != 500 || calls.Load() != 500 {
		t.Fatalf("expected 500 ops, got %+v calls=%d", stats, calls.Load())
	}
	if stats.failures != 100 {
		t.Fatalf("expected 100 failures, got %d", stats.failures)
	}
	if stats.p50 > stats.p99 {
		t.Fatalf("percentiles out of order %+v", stats)
	}
}
