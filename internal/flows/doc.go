// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunResolve, RunPlan, RunHydrate) accepts a typed
// dependency struct and returns results without side-effects beyond those
// dependencies. This design enables exhaustive unit testing with mock
// dependencies and keeps the Engine type thin.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session source, user cache, module
// registry, and backend fetcher. They do NOT own any of these resources.
// Ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import hallpass (to avoid import cycles).
//   - Map failure kinds to redirect targets; that is the Engine's decision.
package flows
