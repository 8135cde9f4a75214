// Package shopguard is the credential and account-security core of an
// e-commerce platform: bearer tokens, failed-signin lockout, password rules,
// untrusted-input screening and rate-limit key resolution.
//
// Engine methods are safe to call from multiple goroutines once the Engine
// has been created through [Builder.Build].
//
// # Architecture boundaries
//
// shopguard is the public surface. It exposes [Engine], [Builder], [Config]
// and value types, and orchestrates the leaf packages:
//
//   - token: issue and verify signed bearer tokens.
//   - lockout: count failures per account key and lock for a window.
//   - policy: password strength rules.
//   - sanitize: threat classification and text normalization.
//   - ratelimit: key resolution and request budgets.
//   - password: credential hashing.
//
// User persistence is a collaborator behind [UserProvider]; see userstore/.
//
// # What this package must NOT do
//
//   - Log or audit passwords, password hashes or raw tokens.
//   - Serialize a whole signin. The lock check and the failure record are
//     separate store operations.
//   - Perform I/O outside Engine methods (Builder is allocation-only until Build).
package shopguard
