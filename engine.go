package shopguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yldrmabdullah/shopguard/clock"
	internalaudit "github.com/yldrmabdullah/shopguard/internal/audit"
	"github.com/yldrmabdullah/shopguard/lockout"
	"github.com/yldrmabdullah/shopguard/password"
	"github.com/yldrmabdullah/shopguard/policy"
	"github.com/yldrmabdullah/shopguard/ratelimit"
	"github.com/yldrmabdullah/shopguard/sanitize"
	"github.com/yldrmabdullah/shopguard/token"
	"go.uber.org/zap"
)

// Engine is the assembled security core. Create it with Builder.Build; it is
// immutable afterwards and safe for concurrent use.
type Engine struct {
	config       Config
	clock        clock.Clock
	logger       *zap.Logger
	tokens       *token.Manager
	hasher       password.Hasher
	dummyHash    string
	lockout      *lockout.Tracker
	limiter      ratelimit.Limiter
	resolver     ratelimit.Resolver
	userProvider UserProvider
	audit        *internalaudit.Dispatcher
	metrics      *Metrics

	// sharedLockout is set when lockout state lives outside the process.
	sharedLockout bool

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Close stops background work and flushes pending audit events. It is idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.done != nil {
			close(e.done)
		}
		e.wg.Wait()
		e.audit.Close()
		if e.logger != nil {
			_ = e.logger.Sync()
		}
	})
}

// AuditDropped reports how many audit events were discarded.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// sweeper drops idle in-process state. It returns the number of entries removed.
type sweeper interface {
	Sweep(now time.Time) int
}

func (e *Engine) startSweeper(every time.Duration, targets map[string]sweeper) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				now := e.clock.Now()
				for name, target := range targets {
					if n := target.Sweep(now); n > 0 {
						e.logger.Debug("idle records swept", zap.String("store", name), zap.Int("count", n))
					}
				}
			case <-e.done:
				return
			}
		}
	}()
}

/*
====================================
TOKENS
====================================
*/

// IssueToken mints a bearer token for userID. It returns the compact token
// and its expiry instant.
func (e *Engine) IssueToken(ctx context.Context, userID, email string) (string, time.Time, error) {
	if e == nil || e.tokens == nil {
		return "", time.Time{}, ErrEngineNotReady
	}
	tok, err := e.tokens.Issue(userID, email)
	if err != nil {
		return "", time.Time{}, err
	}
	e.metricInc(MetricTokenIssued)
	return tok.Raw, tok.Claims.ExpiresAt, nil
}

// TokenTTL is the lifetime of issued tokens.
func (e *Engine) TokenTTL() time.Duration {
	if e == nil || e.tokens == nil {
		return 0
	}
	return e.tokens.ExpiresIn()
}

// VerifyToken checks signature, algorithm and expiry of raw. Failures match
// ErrTokenExpired or ErrTokenInvalid.
func (e *Engine) VerifyToken(ctx context.Context, raw string) (*VerifiedToken, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricVerifyLatency, time.Since(start))
		}()
	}

	claims, err := e.tokens.Verify(raw)
	if err != nil {
		var mapped error
		if errors.Is(err, token.ErrExpired) {
			e.metricInc(MetricTokenExpired)
			mapped = fmt.Errorf("%w: %w", ErrTokenExpired, err)
		} else {
			e.metricInc(MetricTokenInvalid)
			mapped = fmt.Errorf("%w: %w", ErrTokenInvalid, err)
		}
		e.emitAudit(ctx, auditEventTokenRejected, false, "", "", mapped, nil)
		return nil, mapped
	}

	return &VerifiedToken{
		UserID:    claims.Subject,
		Email:     claims.Email,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

/*
====================================
LOCKOUT
====================================
*/

// IsAccountLocked reports whether account is locked, healing a lapsed lock.
func (e *Engine) IsAccountLocked(ctx context.Context, account string) (bool, error) {
	if e == nil || e.lockout == nil {
		return false, ErrEngineNotReady
	}
	locked, err := e.lockout.IsLocked(ctx, account)
	if err != nil {
		return false, e.lockoutError("is_locked", account, err)
	}
	return locked, nil
}

// LockStatus returns the failure count and remaining lock time of account.
func (e *Engine) LockStatus(ctx context.Context, account string) (LockStatus, error) {
	if e == nil || e.lockout == nil {
		return LockStatus{}, ErrEngineNotReady
	}
	rec, err := e.lockout.Status(ctx, account)
	if err != nil {
		return LockStatus{}, e.lockoutError("status", account, err)
	}
	return e.lockStatus(rec), nil
}

// RecordAuthSuccess clears failures and any lock on account.
func (e *Engine) RecordAuthSuccess(ctx context.Context, account string) error {
	if e == nil || e.lockout == nil {
		return ErrEngineNotReady
	}
	if err := e.lockout.RecordSuccess(ctx, account); err != nil {
		return e.lockoutError("record_success", account, err)
	}
	return nil
}

// RecordAuthFailure counts one failed attempt on account and reports the
// resulting status. Tripping the lock is logged and audited.
func (e *Engine) RecordAuthFailure(ctx context.Context, account string) (LockStatus, error) {
	if e == nil || e.lockout == nil {
		return LockStatus{}, ErrEngineNotReady
	}
	rec, tripped, err := e.lockout.RecordFailure(ctx, account)
	if err != nil {
		return LockStatus{}, e.lockoutError("record_failure", account, err)
	}
	status := e.lockStatus(rec)
	if tripped {
		e.metricInc(MetricLockoutTripped)
		e.logger.Warn("account locked",
			zap.String("account", account),
			zap.Int("failures", rec.Failures),
			zap.Time("locked_until", rec.LockedUntil),
		)
		e.emitAudit(ctx, auditEventLockoutTripped, false, "", account, ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"failures":     fmt.Sprint(rec.Failures),
				"locked_until": rec.LockedUntil.UTC().Format(time.RFC3339),
			}
		})
	}
	return status, nil
}

// FailureCount returns the stored failure count for account.
func (e *Engine) FailureCount(ctx context.Context, account string) (int, error) {
	if e == nil || e.lockout == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.lockout.FailureCount(ctx, account)
	if err != nil {
		return 0, e.lockoutError("failure_count", account, err)
	}
	return n, nil
}

func (e *Engine) lockStatus(rec lockout.Record) LockStatus {
	now := e.clock.Now()
	return LockStatus{
		Locked:    rec.Locked(now),
		Failures:  rec.Failures,
		Remaining: rec.Remaining(now),
	}
}

func (e *Engine) lockoutError(op, account string, err error) error {
	e.metricInc(MetricBackendError)
	e.logger.Error("lockout store failure",
		zap.String("op", op),
		zap.String("account", account),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %w", ErrLockoutUnavailable, err)
}

/*
====================================
PASSWORD POLICY / INPUT SCREENING
====================================
*/

// ValidatePassword applies every password rule.
func (e *Engine) ValidatePassword(pw string) policy.Result {
	return policy.Validate(pw)
}

// Classify screens input for injection patterns. A positive result is
// counted and audited with the matched categories only.
func (e *Engine) Classify(ctx context.Context, input string) sanitize.ThreatSignal {
	sig := sanitize.Classify(input)
	if sig.Any() {
		e.metricInc(MetricThreatDetected)
		e.emitAudit(ctx, auditEventThreatDetected, false, "", "", nil, func() map[string]string {
			return map[string]string{"categories": strings.Join(sig.Categories(), ",")}
		})
	}
	return sig
}

// IsSafeInput reports whether input matches no threat category.
func (e *Engine) IsSafeInput(input string) bool {
	return sanitize.IsSafeInput(input)
}

// SanitizeString normalizes a short field.
func (e *Engine) SanitizeString(input string) string { return sanitize.SanitizeString(input) }

// SanitizeText normalizes a long free-text field.
func (e *Engine) SanitizeText(input string) string { return sanitize.SanitizeText(input) }

// SanitizeEmail normalizes an email. Malformed input matches ErrInvalidFormat.
func (e *Engine) SanitizeEmail(input string) (string, error) { return sanitize.SanitizeEmail(input) }

// SanitizeURL normalizes a URL. Malformed input matches ErrInvalidFormat.
func (e *Engine) SanitizeURL(input string) (string, error) { return sanitize.SanitizeURL(input) }

// EscapeHTML escapes markup metacharacters.
func (e *Engine) EscapeHTML(input string) string { return sanitize.EscapeHTML(input) }

// EscapeSQL escapes quote and backslash characters.
func (e *Engine) EscapeSQL(input string) string { return sanitize.EscapeSQL(input) }

/*
====================================
RATE LIMIT
====================================
*/

// ResolveRateLimitKey derives the throttling key for signals using the
// configured key mode. It never fails.
func (e *Engine) ResolveRateLimitKey(signals ratelimit.Signals) string {
	if e == nil || e.resolver == nil {
		return ratelimit.ResolveKey(signals)
	}
	return e.resolver(signals)
}

// RateLimitResolver returns the configured key resolver.
func (e *Engine) RateLimitResolver() ratelimit.Resolver {
	if e == nil || e.resolver == nil {
		return ratelimit.ResolveKey
	}
	return e.resolver
}

// RateLimitOptions returns request extraction options matching Config.RateLimit.
func (e *Engine) RateLimitOptions() ratelimit.Options {
	return ratelimit.Options{
		TrustForwardedFor: e.config.RateLimit.TrustForwardedFor,
		UserHeader:        e.config.RateLimit.TrustedUserHeader,
	}
}

// Allow consumes one unit of the request budget for the key derived from
// signals. With rate limiting disabled every request is allowed.
// Limiter backend errors fail open and are logged.
func (e *Engine) Allow(ctx context.Context, signals ratelimit.Signals) (RateDecision, error) {
	if e == nil {
		return RateDecision{}, ErrEngineNotReady
	}
	key := e.ResolveRateLimitKey(signals)
	if e.limiter == nil {
		return RateDecision{Key: key, Allowed: true}, nil
	}

	d, err := e.limiter.Allow(ctx, key)
	if err != nil {
		e.metricInc(MetricBackendError)
		e.logger.Error("rate limiter failure", zap.String("key", key), zap.Error(err))
		return RateDecision{Key: key, Allowed: true}, nil
	}
	if !d.Allowed {
		e.metricInc(MetricRateLimitHit)
		e.emitAudit(ctx, auditEventRateLimitTriggered, false, signals.UserID, "", nil, func() map[string]string {
			return map[string]string{
				"key":         key,
				"retry_after": d.RetryAfter.String(),
			}
		})
	}
	return RateDecision{
		Key:        key,
		Allowed:    d.Allowed,
		Remaining:  d.Remaining,
		RetryAfter: d.RetryAfter,
	}, nil
}
