// Package prometheus provides Prometheus collectors for hallpass metrics.
//
// [NewPrometheusExporter] accepts an [hallpass.Engine] and exposes an [http.Handler]
// that renders all hallpass counters and histograms in Prometheus text exposition
// format. Counter names are prefixed hallpass_*_total; the histograms are
// hallpass_resolve_latency_seconds and hallpass_plan_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
