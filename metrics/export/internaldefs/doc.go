// Package internaldefs holds the metric names, help strings and bucket bounds
// shared by the exporters, so Prometheus and OpenTelemetry output stay in step.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
