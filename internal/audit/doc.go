// Package audit relays security events from the engine to pluggable sinks.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines, fan-out, no-op).
//   - [Dispatcher]: bounded async relay, dropping or blocking when full.
//   - [Event]: timestamp, type, user, account key, IP, outcome, metadata.
//
// # Architecture boundaries
//
// This package owns buffering and delivery. The engine decides which events
// exist and what they carry.
//
// # What this package must NOT do
//
//   - Filter events on business rules.
//   - Import shopguard or any sibling package.
package audit
