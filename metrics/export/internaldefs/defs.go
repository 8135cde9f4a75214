package internaldefs

import (
	"github.com/yldrmabdullah/shopguard"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   shopguard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   shopguard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: shopguard.MetricSigninSuccess, Name: "shopguard_signin_success_total", Help: "Signins that returned a token."},
	{ID: shopguard.MetricSigninFailure, Name: "shopguard_signin_failure_total", Help: "Signins rejected for bad credentials."},
	{ID: shopguard.MetricSigninLocked, Name: "shopguard_signin_locked_total", Help: "Signins refused because the account was locked."},
	{ID: shopguard.MetricLockoutTripped, Name: "shopguard_lockout_tripped_total", Help: "Failed attempts that started a lock."},
	{ID: shopguard.MetricSignupSuccess, Name: "shopguard_signup_success_total", Help: "Accounts created."},
	{ID: shopguard.MetricSignupRejected, Name: "shopguard_signup_rejected_total", Help: "Signups refused by validation."},
	{ID: shopguard.MetricSignupDuplicate, Name: "shopguard_signup_duplicate_total", Help: "Signups for an email that already exists."},
	{ID: shopguard.MetricTokenIssued, Name: "shopguard_token_issued_total", Help: "Bearer tokens issued."},
	{ID: shopguard.MetricTokenInvalid, Name: "shopguard_token_invalid_total", Help: "Bearer tokens rejected as invalid."},
	{ID: shopguard.MetricTokenExpired, Name: "shopguard_token_expired_total", Help: "Bearer tokens rejected as expired."},
	{ID: shopguard.MetricThreatDetected, Name: "shopguard_threat_detected_total", Help: "Inputs that matched a threat category."},
	{ID: shopguard.MetricRateLimitHit, Name: "shopguard_rate_limit_hit_total", Help: "Requests refused by the rate limiter."},
	{ID: shopguard.MetricBackendError, Name: "shopguard_backend_error_total", Help: "Lockout or rate-limit store failures."},
	{ID: shopguard.MetricPasswordRehashed, Name: "shopguard_password_rehashed_total", Help: "Credentials upgraded to current hash parameters."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: shopguard.MetricVerifyLatency, Name: "shopguard_verify_latency_seconds", Help: "Token verification latency."},
}

// HistogramBounds are the upper bounds of the latency buckets in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
