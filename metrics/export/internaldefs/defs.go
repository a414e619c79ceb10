package internaldefs

import (
	hallpass "github.com/munihall/hallpass"
)

// CounterDef defines a public type used by hallpass APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   hallpass.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by hallpass APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   hallpass.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the navigation engine.
var CounterDefs = []CounterDef{
	{ID: hallpass.MetricResolveProceed, Name: "hallpass_resolve_proceed_total", Help: "Navigations that proceeded with a complete model."},
	{ID: hallpass.MetricResolveRedirect, Name: "hallpass_resolve_redirect_total", Help: "Navigations answered with a redirect."},
	{ID: hallpass.MetricRedirectUnauthenticated, Name: "hallpass_redirect_unauthenticated_total", Help: "Redirects to login for navigations without a session."},
	{ID: hallpass.MetricRedirectSessionExpired, Name: "hallpass_redirect_session_expired_total", Help: "Redirects to login after the backend rejected a session."},
	{ID: hallpass.MetricRedirectModuleDisabled, Name: "hallpass_redirect_module_disabled_total", Help: "Redirects for routes gated on a disabled municipality module."},
	{ID: hallpass.MetricRedirectForbidden, Name: "hallpass_redirect_forbidden_total", Help: "Redirects for missing capabilities or staff-only routes."},
	{ID: hallpass.MetricRedirectLoadFailed, Name: "hallpass_redirect_load_failed_total", Help: "Redirects after a fetch plan failed."},
	{ID: hallpass.MetricResolveSuperseded, Name: "hallpass_resolve_superseded_total", Help: "Navigations discarded because a newer one took over."},
	{ID: hallpass.MetricHydrationLoad, Name: "hallpass_hydration_load_total", Help: "User records loaded from the backend."},
	{ID: hallpass.MetricHydrationCoalesced, Name: "hallpass_hydration_coalesced_total", Help: "Hydrations served by a concurrent in-flight load."},
	{ID: hallpass.MetricHydrationFailure, Name: "hallpass_hydration_failure_total", Help: "User loads that proved the session dead."},
	{ID: hallpass.MetricSessionRestored, Name: "hallpass_session_restored_total", Help: "Sessions restored from a bearer credential."},
	{ID: hallpass.MetricSessionInvalidated, Name: "hallpass_session_invalidated_total", Help: "Sessions invalidated in the session store."},
	{ID: hallpass.MetricPlanCallIssued, Name: "hallpass_plan_call_issued_total", Help: "Backend fetches issued by route plans."},
	{ID: hallpass.MetricPlanCallFailed, Name: "hallpass_plan_call_failed_total", Help: "Route plans aborted by a failed fetch."},
}

// HistogramDefs is an exported constant or variable used by the navigation engine.
var HistogramDefs = []HistogramDef{
	{ID: hallpass.MetricResolveLatency, Name: "hallpass_resolve_latency_seconds", Help: "Resolve latency histogram."},
	{ID: hallpass.MetricPlanLatency, Name: "hallpass_plan_latency_seconds", Help: "Fetch plan latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the navigation engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the navigation engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
