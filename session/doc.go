// Package session provides Redis-backed session persistence and compact binary session
// encoding for navigation hot paths.
//
// # Binary encoding
//
// Sessions are stored in Redis as a compact binary format (schema versions v1 and v2)
// with forward migration on read. The encoder is append-only: new versions add fields
// but never reinterpret old ones. v2 added the stored bearer credential that lets an
// expired cookie session be re-established without a fresh sign-in.
//
// # Invalidation
//
// [Store.Invalidate] reports whether the session still existed using an atomic Lua
// delete, so concurrent invalidations of one key observe true exactly once. The engine
// relies on this to emit a single sign-out audit event per session.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It does NOT
// verify credentials, consult the route table, or make redirect decisions. Those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import hallpass, route, or credential (no upward imports).
//   - Perform application-level authorization decisions.
//   - Issue backend API calls.
package session
