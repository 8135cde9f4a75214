// Package otel publishes shopguard counters through an OpenTelemetry meter.
//
// [New] registers one Int64ObservableCounter per counter and, for the verify
// latency histogram, a bucket gauge keyed by an "le" attribute plus a count
// gauge. One callback reads the engine snapshot per collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
