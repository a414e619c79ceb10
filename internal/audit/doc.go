// Package audit implements async event dispatching for navigation decisions
// and session lifecycle changes.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured audit record with timestamp, type, actor, municipality,
//     navigation ID, route, redirect reason, IP, and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit. That responsibility belongs to the navigation engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import hallpass or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
