package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/yldrmabdullah/shopguard/clock"
)

func TestUserKey(t *testing.T) {
	tests := []struct {
		name string
		in   Signals
		want string
	}{
		{"user wins", Signals{UserID: "u-42", RemoteAddr: "10.0.0.5"}, "u-42"},
		{"ip fallback", Signals{RemoteAddr: "10.0.0.5"}, "10.0.0.5"},
		{"ip with port", Signals{RemoteAddr: "10.0.0.5:51234"}, "10.0.0.5"},
		{"ipv6 with port", Signals{RemoteAddr: "[2001:db8::1]:443"}, "2001:db8::1"},
		{"bare ipv6", Signals{RemoteAddr: "2001:db8::1"}, "2001:db8::1"},
		{"mapped ipv4", Signals{RemoteAddr: "[::ffff:10.0.0.5]:80"}, "10.0.0.5"},
		{"blank user", Signals{UserID: "  ", RemoteAddr: "10.0.0.5"}, "10.0.0.5"},
		{"hostname", Signals{RemoteAddr: "localhost:80"}, AnonymousKey},
		{"nothing", Signals{}, AnonymousKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserKey(tt.in); got != tt.want {
				t.Fatalf("UserKey(%+v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIPKey(t *testing.T) {
	if got := IPKey(Signals{UserID: "u-42", RemoteAddr: "10.0.0.5"}); got != "10.0.0.5" {
		t.Fatalf("expected ip resolver to ignore user id, got %q", got)
	}
	if got := IPKey(Signals{UserID: "u-42"}); got != UnknownKey {
		t.Fatalf("expected %q, got %q", UnknownKey, got)
	}
	if got := IPKey(Signals{RemoteAddr: "garbage"}); got != UnknownKey {
		t.Fatalf("expected %q, got %q", UnknownKey, got)
	}
}

func TestResolveKeyUsesUserResolver(t *testing.T) {
	if ResolveKey(Signals{UserID: "u-42"}) != "u-42" {
		t.Fatal("expected user id")
	}
	if ResolveKey(Signals{}) != AnonymousKey {
		t.Fatal("expected anonymous fallback")
	}
}

func TestSignalsFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	r.Header.Set("X-User-Id", "u-7")
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	s := SignalsFromRequest(r, Options{})
	if s.UserID != "" || s.RemoteAddr != "192.0.2.1:1234" {
		t.Fatalf("client headers must be ignored by default, got %+v", s)
	}

	s = SignalsFromRequest(r, Options{UserHeader: "X-User-Id"})
	if s.UserID != "u-7" {
		t.Fatalf("expected trusted gateway header, got %q", s.UserID)
	}

	s = SignalsFromRequest(r, Options{TrustForwardedFor: true})
	if s.RemoteAddr != "203.0.113.9" {
		t.Fatalf("expected first forwarded hop, got %q", s.RemoteAddr)
	}

	s = SignalsFromRequest(r, Options{UserID: func(*http.Request) string { return "verified" }})
	if s.UserID != "verified" {
		t.Fatalf("expected verified id to take priority, got %q", s.UserID)
	}

	r.Header.Set("X-Customer", "c-1")
	s = SignalsFromRequest(r, Options{UserHeader: "X-Customer"})
	if s.UserID != "c-1" {
		t.Fatalf("expected custom header, got %q", s.UserID)
	}
}

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

func TestRedisLimiterFixedWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLimiter(client, Config{Limit: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "u-42")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !d.Allowed || d.Remaining != 2-i {
			t.Fatalf("hit %d: unexpected decision %+v", i+1, d)
		}
	}

	d, err := l.Allow(ctx, "u-42")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed || d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("expected denial with retry-after, got %+v", d)
	}

	if other, _ := l.Allow(ctx, "u-43"); !other.Allowed {
		t.Fatal("expected other key unaffected")
	}

	mr.FastForward(time.Minute + time.Second)
	if d, _ := l.Allow(ctx, "u-42"); !d.Allowed {
		t.Fatal("expected new window to allow")
	}

	if err := l.Reset(ctx, "u-42"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
}

func TestRedisLimiterUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLimiter(client, Config{Limit: 1, Window: time.Minute})
	mr.Close()
	if _, err := l.Allow(context.Background(), "k"); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestRedisLimiterWindowAlwaysExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLimiter(client, Config{Limit: 3, Window: time.Minute})
	ctx := context.Background()

	if _, err := l.Allow(ctx, "k"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ttl := mr.TTL("rl:k"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected window ttl after first hit, got %v", ttl)
	}

	mr.FastForward(20 * time.Second)
	if _, err := l.Allow(ctx, "k"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ttl := mr.TTL("rl:k"); ttl > 40*time.Second {
		t.Fatalf("later hits must not extend the window, got %v", ttl)
	}
}

func TestMemoryLimiterSweepDropsRefilledBuckets(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	l := NewMemoryLimiter(Config{Limit: 2, Window: time.Minute}, clk)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if _, err := l.Allow(ctx, fmt.Sprintf("198.51.100.%d", i)); err != nil {
			t.Fatalf("Allow: %v", err)
		}
	}
	if l.Len() != 50 {
		t.Fatalf("expected 50 buckets, got %d", l.Len())
	}

	if n := l.Sweep(clk.Now()); n != 0 {
		t.Fatalf("partially drained buckets must survive, removed %d", n)
	}

	clk.Advance(31 * time.Second)
	l.Allow(ctx, "198.51.100.0")
	l.Allow(ctx, "198.51.100.0")

	if n := l.Sweep(clk.Now()); n != 49 {
		t.Fatalf("expected 49 refilled buckets removed, got %d", n)
	}
	if l.Len() != 1 {
		t.Fatalf("expected the drained bucket to remain, got %d", l.Len())
	}
	if d, _ := l.Allow(ctx, "198.51.100.0"); d.Allowed {
		t.Fatal("sweep must not reset a drained bucket")
	}
}

func TestMemoryLimiterTokenBucket(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	l := NewMemoryLimiter(Config{Limit: 2, Window: time.Minute}, clk)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d, _ := l.Allow(ctx, "10.0.0.5"); !d.Allowed {
			t.Fatalf("hit %d: expected allow", i+1)
		}
	}
	d, _ := l.Allow(ctx, "10.0.0.5")
	if d.Allowed {
		t.Fatal("expected bucket exhausted")
	}
	if d.RetryAfter < 29*time.Second || d.RetryAfter > 31*time.Second {
		t.Fatalf("expected about 30s until next token, got %v", d.RetryAfter)
	}

	clk.Advance(31 * time.Second)
	if d, _ := l.Allow(ctx, "10.0.0.5"); !d.Allowed {
		t.Fatal("expected refill after one token interval")
	}
	if l.Len() != 1 {
		t.Fatalf("expected one bucket, got %d", l.Len())
	}
}

func TestConfigDefaults(t *testing.T) {
	l := NewMemoryLimiter(Config{}, nil)
	if l.config != DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", l.config)
	}
}
