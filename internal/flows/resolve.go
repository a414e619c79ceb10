package flows

import (
	"context"
	"encoding/json"
	"time"

	"github.com/munihall/hallpass/identity"
	"github.com/munihall/hallpass/route"
	"github.com/munihall/hallpass/session"
)

// ResolveFailureKind classifies resolution failures for root-level mapping.
type ResolveFailureKind int

const (
	ResolveFailureNone ResolveFailureKind = iota
	ResolveFailureUnauthenticated
	ResolveFailureSessionExpired
	ResolveFailureModuleDisabled
	ResolveFailureForbidden
	ResolveFailureLoad
	ResolveFailureSuperseded
)

// ResolveResult carries either the assembled model or a classified failure,
// plus the accounting the engine turns into metrics and audit metadata.
type ResolveResult struct {
	Failure ResolveFailureKind
	Err     error

	Session *session.Session
	User    *identity.Record
	Model   map[string]json.RawMessage

	// Gate diagnostics, populated for module and capability failures.
	GateRoute  string
	Module     string
	Capability string
	StaffOnly  bool

	// Plan diagnostics.
	FailedSlot   string
	CallsIssued  int
	PlanDuration time.Duration

	// Hydration accounting.
	Loaded      bool
	Coalesced   bool
	Invalidated bool
}

// ResolveDeps captures everything one resolution needs. The engine builds
// this once; Superseded is the only per-navigation closure.
type ResolveDeps struct {
	// Superseded reports whether a newer navigation owns this scope.
	// Checked between stages so a stale resolution stops doing work.
	Superseded func() bool

	// CurrentSession yields the live session or fails. Any failure here
	// means the actor is unauthenticated.
	CurrentSession func(ctx context.Context) (*session.Session, error)

	// CallContext decorates the context for backend calls made on behalf
	// of the session, typically attaching its bearer credential.
	CallContext func(ctx context.Context, sess *session.Session) context.Context

	// Hydrate produces the user record for the session, coalescing
	// concurrent loads.
	Hydrate func(ctx context.Context, sess *session.Session) HydrateResult

	// ModuleEnabled consults the municipality's enabled module set.
	ModuleEnabled func(ctx context.Context, municipalityID, module string) (bool, error)

	// Fetch issues one plan call against the backend.
	Fetch func(ctx context.Context, path string) (json.RawMessage, error)
}

// RunResolve walks the admission checks in their fixed order and then
// executes the chain's fetch plans parent-first. No plan call is issued
// before every gate has passed.
func RunResolve(ctx context.Context, chain []route.Route, params map[string]string, deps ResolveDeps) ResolveResult {
	superseded := func() bool {
		return deps.Superseded != nil && deps.Superseded()
	}

	sess, err := deps.CurrentSession(ctx)
	if err != nil || sess == nil {
		return ResolveResult{Failure: ResolveFailureUnauthenticated, Err: err}
	}
	if superseded() {
		return ResolveResult{Failure: ResolveFailureSuperseded, Session: sess}
	}

	h := deps.Hydrate(ctx, sess)
	res := ResolveResult{
		Session:     sess,
		User:        h.User,
		Loaded:      h.Loaded,
		Coalesced:   h.Coalesced,
		Invalidated: h.Invalidated,
	}
	if h.Err != nil {
		res.Failure = ResolveFailureSessionExpired
		res.Err = h.Err
		return res
	}
	if superseded() {
		res.Failure = ResolveFailureSuperseded
		return res
	}

	if deps.CallContext != nil {
		ctx = deps.CallContext(ctx, sess)
	}

	// Module gates apply outermost-first; one disabled module anywhere in
	// the chain blocks the navigation regardless of capabilities.
	checked := make(map[string]bool, len(chain))
	for _, rt := range chain {
		if rt.Module == "" || checked[rt.Module] {
			continue
		}
		checked[rt.Module] = true

		enabled, err := deps.ModuleEnabled(ctx, sess.MunicipalityID, rt.Module)
		if err != nil {
			res.Failure = ResolveFailureModuleDisabled
			res.Err = err
			res.GateRoute = rt.Name
			res.Module = rt.Module
			return res
		}
		if !enabled {
			res.Failure = ResolveFailureModuleDisabled
			res.GateRoute = rt.Name
			res.Module = rt.Module
			return res
		}
	}

	effModule := ""
	for _, rt := range chain {
		if rt.Module != "" {
			effModule = rt.Module
		}
		if rt.StaffOnly && !res.User.Staff {
			res.Failure = ResolveFailureForbidden
			res.GateRoute = rt.Name
			res.StaffOnly = true
			return res
		}
		if rt.Capability != "" && !res.User.HasCapability(effModule, rt.Capability) {
			res.Failure = ResolveFailureForbidden
			res.GateRoute = rt.Name
			res.Module = effModule
			res.Capability = rt.Capability
			return res
		}
	}
	if superseded() {
		res.Failure = ResolveFailureSuperseded
		return res
	}

	model := make(map[string]json.RawMessage)
	planStart := time.Now()
	for _, rt := range chain {
		if len(rt.Plan) == 0 {
			continue
		}

		pr := RunPlan(ctx, rt.Plan, route.Bindings{
			Params: navigationParams(params, sess),
		}, PlanDeps{Fetch: deps.Fetch})
		res.CallsIssued += pr.CallsIssued
		res.PlanDuration = time.Since(planStart)

		if pr.Err != nil {
			if superseded() {
				res.Failure = ResolveFailureSuperseded
				return res
			}
			res.Failure = ResolveFailureLoad
			res.Err = pr.Err
			res.GateRoute = rt.Name
			res.FailedSlot = pr.FailedSlot
			return res
		}

		// A child slot lands on top of ancestor slots, but never
		// replaces an inherited key unless the call aliases it.
		for _, call := range rt.Plan {
			key := call.ModelKey()
			if _, exists := model[key]; exists && call.As == "" {
				continue
			}
			model[key] = pr.Results[call.Slot]
		}

		if superseded() {
			res.Failure = ResolveFailureSuperseded
			return res
		}
	}

	res.Model = model
	return res
}

// navigationParams merges caller params over the session-derived builtins.
// The caller's map is never mutated.
func navigationParams(params map[string]string, sess *session.Session) map[string]string {
	merged := make(map[string]string, len(params)+2)
	merged[route.ParamMunicipalityID] = sess.MunicipalityID
	merged[route.ParamActorID] = sess.ActorID
	for k, v := range params {
		merged[k] = v
	}
	return merged
}
