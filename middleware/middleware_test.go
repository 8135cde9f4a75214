package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/yldrmabdullah/shopguard"
	"github.com/yldrmabdullah/shopguard/clock"
	"github.com/yldrmabdullah/shopguard/ratelimit"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, clk clock.Clock, mutate func(*shopguard.Config)) *shopguard.Engine {
	t.Helper()
	cfg := shopguard.DefaultConfig()
	cfg.Token.Secret = []byte(testSecret)
	if mutate != nil {
		mutate(&cfg)
	}
	engine, err := shopguard.New().WithConfig(cfg).WithClock(clk).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func TestGuard(t *testing.T) {
	clk := clock.NewFake(epoch)
	engine := newEngine(t, clk, nil)
	raw, _, err := engine.IssueToken(context.Background(), "u-42", "u42@example.com")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	var seen *shopguard.VerifiedToken
	h := Guard(engine, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + raw, http.StatusUnauthorized},
		{"empty token", "Bearer   ", http.StatusUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"valid token", "Bearer " + raw, http.StatusOK},
		{"lower case scheme", "bearer " + raw, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusOK && (seen == nil || seen.UserID != "u-42") {
				t.Fatalf("expected claims in context, got %+v", seen)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("expected WWW-Authenticate challenge")
			}
		})
	}

	clk.Advance(25 * time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized || rec.Body.String() != "token expired\n" {
		t.Fatalf("expected expired response, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestGuardNilVerifier(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	Guard(nil, nil)(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

type stubProfiles struct {
	active map[string]bool
}

func (s stubProfiles) Profile(_ context.Context, userID string) (shopguard.UserProfile, error) {
	if !s.active[userID] {
		return shopguard.UserProfile{}, shopguard.ErrUserNotFound
	}
	return shopguard.UserProfile{UserID: userID, Active: true}, nil
}

func TestRequireStrictRefusesInactiveAccounts(t *testing.T) {
	engine := newEngine(t, nil, nil)
	profiles := stubProfiles{active: map[string]bool{"u-1": true}}
	h := RequireStrict(engine, profiles, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := ProfileFromContext(r.Context()); !ok || p.UserID != "u-1" {
			t.Errorf("expected profile in context, got %+v", p)
		}
		w.WriteHeader(http.StatusOK)
	}))

	for _, tc := range []struct {
		userID string
		want   int
	}{
		{"u-1", http.StatusOK},
		{"u-2", http.StatusUnauthorized},
	} {
		raw, _, err := engine.IssueToken(context.Background(), tc.userID, tc.userID+"@example.com")
		if err != nil {
			t.Fatalf("IssueToken failed: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("user %s: expected %d, got %d", tc.userID, tc.want, rec.Code)
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	clk := clock.NewFake(epoch)
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{Limit: 2, Window: time.Minute}, clk)
	h := RateLimit(ratelimit.IPKey, limiter, RateLimitOptions{})(http.HandlerFunc(okHandler))

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do("198.51.100.1:5000"); rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected pass, got %d", i, rec.Code)
		}
	}
	rec := do("198.51.100.1:5001")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "30" {
		t.Fatalf("expected Retry-After 30, got %q", rec.Header().Get("Retry-After"))
	}
	if rec := do("198.51.100.2:5000"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected other address to pass, got %d", rec.Code)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("backend down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	h := RateLimit(nil, failingLimiter{}, RateLimitOptions{})(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected request to pass on limiter error, got %d", rec.Code)
	}
}

func TestThrottleKeysByVerifiedUser(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := shopguard.DefaultConfig()
	cfg.Token.Secret = []byte(testSecret)
	cfg.RateLimit.Limit = 1
	engine, err := shopguard.New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	raw, _, _ := engine.IssueToken(context.Background(), "u-7", "u7@example.com")
	h := Guard(engine, nil)(Throttle(engine, RateLimitOptions{})(http.HandlerFunc(okHandler)))

	// Same user from two addresses shares one budget.
	for i, addr := range []string{"203.0.113.1:1", "203.0.113.2:1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.RemoteAddr = addr
		req.Header.Set("Authorization", "Bearer "+raw)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		want := http.StatusNoContent
		if i == 1 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, rec.Code)
		}
	}
	if !mr.Exists("rl:u-7") {
		t.Fatalf("expected user-keyed window, keys=%v", mr.Keys())
	}
}

func TestOptionalAuth(t *testing.T) {
	clk := clock.NewFake(epoch)
	engine := newEngine(t, clk, nil)
	raw, _, err := engine.IssueToken(context.Background(), "u-42", "u42@example.com")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	var seen string
	h := OptionalAuth(engine, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromRequest(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid token", "Bearer " + raw, "u-42"},
		{"missing header", "", ""},
		{"tampered token", "Bearer " + raw + "x", ""},
		{"wrong scheme", "Basic " + raw, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = "unset"
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusNoContent {
				t.Fatalf("expected request to pass, got %d", rec.Code)
			}
			if seen != tt.want {
				t.Fatalf("expected user %q, got %q", tt.want, seen)
			}
		})
	}
}

func TestThrottleIgnoresUserHeaderUnlessTrusted(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{Limit: 1, Window: time.Minute}, clock.NewFake(epoch))
	h := RateLimit(nil, limiter, RateLimitOptions{})(http.HandlerFunc(okHandler))

	for i, id := range []string{"spoof-1", "spoof-2"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.9:5555"
		req.Header.Set("X-User-Id", id)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		want := http.StatusNoContent
		if i == 1 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, rec.Code)
		}
	}

	trusted := RateLimit(nil, limiter, RateLimitOptions{Request: ratelimit.Options{UserHeader: "X-User-Id"}})(http.HandlerFunc(okHandler))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.9:5555"
	req.Header.Set("X-User-Id", "gw-1")
	rec := httptest.NewRecorder()
	trusted.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected gateway user to get its own budget, got %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders()(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/signin", nil))
	want := map[string]string{
		"X-Frame-Options":                   "DENY",
		"X-Content-Type-Options":            "nosniff",
		"X-XSS-Protection":                  "1; mode=block",
		"Strict-Transport-Security":         "max-age=31536000; includeSubDomains; preload",
		"Referrer-Policy":                   "strict-origin-when-cross-origin",
		"X-Permitted-Cross-Domain-Policies": "none",
		"Cache-Control":                     "no-store, no-cache, must-revalidate, private",
		"Pragma":                            "no-cache",
		"Expires":                           "0",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Fatalf("%s = %q, want %q", k, got, v)
		}
	}
	if rec.Header().Get("Content-Security-Policy") != contentSecurityPolicy {
		t.Fatal("expected content security policy")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	if rec.Header().Get("Cache-Control") != "" {
		t.Fatal("expected catalogue responses to stay cacheable")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("expected hardening headers on every response")
	}
}
