package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/yldrmabdullah/shopguard"
	"github.com/yldrmabdullah/shopguard/ratelimit"
	"go.uber.org/zap"
)

// RateLimitOptions configure RateLimit and Throttle.
type RateLimitOptions struct {
	Request ratelimit.Options
	Logger  *zap.Logger
}

func (o RateLimitOptions) requestOptions() ratelimit.Options {
	opts := o.Request
	if opts.UserID == nil {
		opts.UserID = UserIDFromRequest
	}
	return opts
}

func (o RateLimitOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// RateLimit throttles requests by the key resolver derives from each request.
// A throttled request gets 429 with Retry-After in whole seconds. Limiter
// errors let the request through.
func RateLimit(resolver ratelimit.Resolver, limiter ratelimit.Limiter, opts RateLimitOptions) func(http.Handler) http.Handler {
	if resolver == nil {
		resolver = ratelimit.ResolveKey
	}
	reqOpts := opts.requestOptions()
	logger := opts.logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := resolver(ratelimit.SignalsFromRequest(r, reqOpts))
			d, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Error("rate limiter failure", zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				tooManyRequests(w, d.RetryAfter)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

// Allower consumes request budget. *shopguard.Engine implements it, with
// metrics and audit on throttling.
type Allower interface {
	Allow(ctx context.Context, signals ratelimit.Signals) (shopguard.RateDecision, error)
}

// Throttle is RateLimit driven by an Engine.
func Throttle(a Allower, opts RateLimitOptions) func(http.Handler) http.Handler {
	reqOpts := opts.requestOptions()
	logger := opts.logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a == nil {
				next.ServeHTTP(w, r)
				return
			}
			d, err := a.Allow(WithRequestContext(r), ratelimit.SignalsFromRequest(r, reqOpts))
			if err != nil {
				logger.Error("rate limit check failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				tooManyRequests(w, d.RetryAfter)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

func tooManyRequests(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	http.Error(w, "too many requests", http.StatusTooManyRequests)
}
