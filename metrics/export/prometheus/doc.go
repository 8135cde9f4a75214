// Package prometheus renders shopguard counters in Prometheus text format.
//
// [New] takes any [MetricsSource], usually the Engine, and [Exporter.Handler]
// serves the output. Counter names are shopguard_*_total; the verify latency
// histogram is shopguard_verify_latency_seconds and appears only when latency
// histograms are enabled.
//
// # What this package must NOT do
//
//   - Register in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
