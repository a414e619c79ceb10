// Package otel bridges hallpass metrics into OpenTelemetry.
//
// [NewOTelExporter] registers observable instruments on a caller-supplied
// [metric.Meter] and feeds them from engine snapshots inside a single
// collection callback. Instrument names match the Prometheus exporter's.
//
// # What this package must NOT do
//
//   - Create or configure a MeterProvider — callers own the SDK setup.
//   - Mutate engine state.
package otel
