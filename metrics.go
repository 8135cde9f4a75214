package shopguard

import (
	internalmetrics "github.com/yldrmabdullah/shopguard/internal/metrics"
)

// MetricID identifies one engine counter.
type MetricID = internalmetrics.ID

const (
	// MetricSigninSuccess counts signins that returned a token.
	MetricSigninSuccess = internalmetrics.SigninSuccess
	// MetricSigninFailure counts signins rejected for bad credentials.
	MetricSigninFailure = internalmetrics.SigninFailure
	// MetricSigninLocked counts signins refused because the account was locked.
	MetricSigninLocked = internalmetrics.SigninLocked
	// MetricLockoutTripped counts failures that started a lock.
	MetricLockoutTripped = internalmetrics.LockoutTripped
	// MetricSignupSuccess counts created accounts.
	MetricSignupSuccess = internalmetrics.SignupSuccess
	// MetricSignupRejected counts signups refused by validation.
	MetricSignupRejected = internalmetrics.SignupRejected
	// MetricSignupDuplicate counts signups for an existing email.
	MetricSignupDuplicate = internalmetrics.SignupDuplicate
	// MetricTokenIssued counts minted bearer tokens.
	MetricTokenIssued = internalmetrics.TokenIssued
	// MetricTokenInvalid counts tokens rejected as malformed, forged or with bad claims.
	MetricTokenInvalid = internalmetrics.TokenInvalid
	// MetricTokenExpired counts tokens rejected as expired.
	MetricTokenExpired = internalmetrics.TokenExpired
	// MetricThreatDetected counts inputs that matched a threat category.
	MetricThreatDetected = internalmetrics.ThreatDetected
	// MetricRateLimitHit counts requests refused by the rate limiter.
	MetricRateLimitHit = internalmetrics.RateLimitHit
	// MetricBackendError counts lockout or limiter store failures.
	MetricBackendError = internalmetrics.BackendError
	// MetricPasswordRehashed counts credentials upgraded on signin.
	MetricPasswordRehashed = internalmetrics.PasswordRehashed
	// MetricVerifyLatency is the token verification latency histogram.
	MetricVerifyLatency = internalmetrics.VerifyLatency
)

// Metrics holds atomic counters and the optional latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a Metrics instance. When cfg.Enabled is false every
// operation is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
