// Package route provides the frozen route table, load-plan validation,
// and path-template expansion used by hallpass navigation checks.
//
// # Route table lifecycle
//
// Routes are registered at startup, either in code via [Registry.Register]
// or from a YAML manifest via [LoadManifest], then the table is frozen.
// [Registry.Freeze] validates every cross-route reference (parents,
// fallbacks, parameter bindings) so a bad table fails the process at
// boot rather than a navigation at runtime. After Freeze the table is
// immutable and safe for concurrent lookups.
//
// # Load plans
//
// Each route may declare a plan: an ordered list of backend calls that
// build the route's model. Calls without dependencies run concurrently;
// a call naming other slots in DependsOn waits for those documents and
// may splice their fields into its own path via "{slot.field}".
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O beyond
// reading manifest files. It does not issue backend calls, evaluate
// sessions, or make redirect decisions. Those responsibilities belong
// to the Engine.
//
// # What this package must NOT do
//
//   - Access Redis or the network.
//   - Import hallpass, session, or client.
//   - Mutate the table after Freeze.
package route
