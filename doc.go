// Package hallpass provides a session-gated route guard and model loader
// for municipal-services admin platforms: it resolves a navigation target
// into either a fully composed view model or a redirect decision.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// hallpass is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (Decision, MetricsSnapshot, AuditEvent, etc.). All internal coordination lives under
// internal/ and is never exported: flow orchestration, fetch-plan execution, audit
// dispatch, and the metrics recorder.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Import any sub-package that re-imports hallpass (no import cycles).
//
// # Performance contract
//
// Resolve is the hot path. Admission checks run before any backend fetch, a cached user
// record costs no backend round-trip, and a fetch plan issues its independent calls
// concurrently. Session reads, saves, and invalidations each stay within a small
// fixed Redis command budget.
package hallpass
