// Package middleware exposes net/http adapters that run the hallpass
// navigation guard before a wrapped handler.
//
// # Guards
//
//   - [Guard] — resolves the named route and answers redirects with a
//     302 to the redirect route's path.
//   - [GuardJSON] — same resolution, but answers failures with JSON
//     status codes (401/403/502) for API-style consumers.
//
// Each guard reads the session cookie and Authorization header, calls
// Engine.Resolve, and injects the resulting Decision into the request
// context for the handler to read via [DecisionFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement guard logic itself — all decisions are delegated to
// Engine.Resolve.
//
// # What this package must NOT do
//
//   - Verify credentials or touch the session store directly (the
//     Engine handles both).
//   - Fetch route models (the Engine's plan runner handles I/O).
//   - Make guard decisions beyond rendering what Engine.Resolve
//     returned.
package middleware
