// Package token issues and verifies signed bearer tokens that carry a user
// identity (subject plus email) and an expiry instant.
//
// # Architecture boundaries
//
// [Manager] is configured once and is immutable afterwards. Verification is
// stateless: a token is accepted if and only if its signature verifies under
// the configured key and the clock reading is before its expiry. There is no
// revocation list; a token stays valid until it expires.
//
// # What this package must NOT do
//
//   - Query a user store. The subject in a verified token is trusted as-is.
//   - Accept any algorithm other than the configured one, including "none".
//   - Log or persist raw tokens.
package token
