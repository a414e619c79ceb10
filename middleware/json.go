package middleware

import (
	"net/http"

	hallpass "github.com/munihall/hallpass"
)

// GuardJSON is [Guard] for API-style consumers: instead of a 302 it
// answers unauthenticated and expired sessions with 401, disabled
// modules and missing capabilities with 403, and failed model loads
// with 502, each with a small JSON body naming the reason and the
// route the caller should navigate to.
func GuardJSON(engine *hallpass.Engine, route string) func(http.Handler) http.Handler {
	return guard(engine, route, true)
}
