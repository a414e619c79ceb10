// Package internal contains helper utilities that are intentionally private to hallpass,
// including secure session-key generation.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - flows — pure-function flow orchestrators for every Engine operation
//   - metrics — lock-free counters and latency histograms
//
// # What this package must NOT do
//
//   - Export types that appear in the public hallpass API.
//   - Be imported by any package outside the hallpass module.
package internal
