// Package middleware adapts shopguard to net/http.
//
// # Handlers
//
//   - [Guard] verifies the bearer token and stores the claims in the request context.
//   - [RequireStrict] additionally confirms the account is still active.
//   - [RateLimit] and [Throttle] answer 429 with Retry-After once a key's budget is spent.
//   - [SecurityHeaders] sets browser hardening headers.
//
// Every middleware returns func(http.Handler) http.Handler so it composes with
// the standard mux or any router that accepts that shape.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Token checks,
// key resolution and budgets are decided elsewhere.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly.
//   - Access Redis.
//   - Log raw tokens.
package middleware
