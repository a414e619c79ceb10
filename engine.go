package hallpass

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/munihall/hallpass/client"
	"github.com/munihall/hallpass/identity"
	internalaudit "github.com/munihall/hallpass/internal/audit"
	"github.com/munihall/hallpass/internal/flows"
	"github.com/munihall/hallpass/route"
	"github.com/munihall/hallpass/session"
)

// Engine defines a public type used by hallpass APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config   Config
	routes   *route.Registry
	sessions SessionStore
	users    UserProvider
	modules  ModuleRegistry
	api      APIClient
	router   Router
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	flows    flows.Service

	flight singleflight.Group

	cacheMu   sync.RWMutex
	userCache map[string]*identity.Record

	nav *navTracker
}

// navTracker serializes navigations per scope. Beginning a navigation
// cancels the previous one in the same scope and marks it stale; a stale
// navigation's results are dropped instead of applied.
type navTracker struct {
	mu     sync.Mutex
	latest map[string]string
	cancel map[string]context.CancelFunc
}

func newNavTracker() *navTracker {
	return &navTracker{
		latest: make(map[string]string),
		cancel: make(map[string]context.CancelFunc),
	}
}

func (t *navTracker) begin(scope, id string, cancel context.CancelFunc) {
	t.mu.Lock()
	prev := t.cancel[scope]
	t.latest[scope] = id
	t.cancel[scope] = cancel
	t.mu.Unlock()

	if prev != nil {
		prev()
	}
}

func (t *navTracker) isLatest(scope, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest[scope] == id
}

// end releases the scope's entries. A superseded navigation leaves the
// newer owner's entries untouched.
func (t *navTracker) end(scope, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest[scope] != id {
		return
	}
	delete(t.latest, scope)
	delete(t.cancel, scope)
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Routes describes the routes operation and its observable behavior.
//
// Routes may return an error when input validation, dependency calls, or security checks fail.
// Routes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Routes() *route.Registry {
	if e == nil {
		return nil
	}
	return e.routes
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n uint64) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Add(id, n)
}

// Resolve describes the resolve operation and its observable behavior.
//
// Resolve may return an error when input validation, dependency calls, or security checks fail.
// Resolve does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Resolve(ctx context.Context, target string, params map[string]string) (*Decision, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}

	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricResolveLatency, time.Since(start))
		}()
	}

	chain, err := e.routes.Chain(target)
	if err != nil {
		if hint := e.routes.Suggest(target); hint != "" {
			return nil, fmt.Errorf("%w: %q (closest is %q)", ErrUnknownRoute, target, hint)
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoute, target)
	}

	scope := sessionKeyFromContext(ctx)
	navID := uuid.NewString()

	navCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.nav.begin(scope, navID, cancel)
	defer e.nav.end(scope, navID)

	res := e.flows.Resolve(navCtx, chain, params, func() bool {
		return !e.nav.isLatest(scope, navID)
	})

	// Final staleness check. A navigation that lost its scope while the
	// flow was finishing must not surface a model or redirect anyone,
	// whatever the flow reported.
	if res.Failure != flows.ResolveFailureSuperseded && !e.nav.isLatest(scope, navID) {
		res = flows.ResolveResult{
			Failure:      flows.ResolveFailureSuperseded,
			Session:      res.Session,
			User:         res.User,
			CallsIssued:  res.CallsIssued,
			PlanDuration: res.PlanDuration,
			Loaded:       res.Loaded,
			Coalesced:    res.Coalesced,
			Invalidated:  res.Invalidated,
		}
	}

	dec := e.decisionFor(navID, target, chain, res)
	e.recordOutcome(ctx, dec, res)

	if dec.Redirected() && e.router != nil {
		e.router.TransitionTo(ctx, dec.RedirectTo)
	}

	return dec, nil
}

func (e *Engine) decisionFor(navID, target string, chain []route.Route, res flows.ResolveResult) *Decision {
	dec := &Decision{
		NavigationID: navID,
		Target:       target,
	}
	if res.Session != nil {
		dec.SessionKey = res.Session.Key
	}

	switch res.Failure {
	case flows.ResolveFailureNone:
		dec.Model = res.Model
	case flows.ResolveFailureSuperseded:
		dec.Reason = ReasonSuperseded
	case flows.ResolveFailureUnauthenticated:
		dec.Reason = ReasonUnauthenticated
		dec.Cause = res.Err
		dec.RedirectTo = e.config.Routes.Login
	case flows.ResolveFailureSessionExpired:
		dec.Reason = ReasonSessionExpired
		dec.Cause = res.Err
		dec.RedirectTo = e.config.Routes.Login
	case flows.ResolveFailureModuleDisabled:
		dec.Reason = ReasonModuleDisabled
		dec.Cause = res.Err
		dec.RedirectTo = e.config.Routes.Dashboard
	case flows.ResolveFailureForbidden:
		dec.Reason = ReasonForbidden
		dec.Cause = res.Err
		dec.RedirectTo = e.config.Routes.Dashboard
	case flows.ResolveFailureLoad:
		dec.Reason = ReasonLoadFailed
		dec.Cause = res.Err
		dec.RedirectTo = e.fallbackFor(chain, res.GateRoute)
	}

	return dec
}

// fallbackFor picks the redirect target after a failed fetch plan: the
// failing route's declared fallback when it has one, the dashboard
// otherwise. Freeze already verified a declared fallback is registered.
func (e *Engine) fallbackFor(chain []route.Route, failed string) string {
	for _, rt := range chain {
		if rt.Name == failed && rt.Fallback != "" {
			return rt.Fallback
		}
	}
	return e.config.Routes.Dashboard
}

func (e *Engine) recordOutcome(ctx context.Context, dec *Decision, res flows.ResolveResult) {
	if res.Loaded {
		e.metricInc(MetricHydrationLoad)
	}
	if res.Coalesced {
		e.metricInc(MetricHydrationCoalesced)
	}
	if res.Failure == flows.ResolveFailureSessionExpired {
		e.metricInc(MetricHydrationFailure)
	}
	// Joiners of a coalesced failing load also see Invalidated; only the
	// caller whose load performed the teardown counts it.
	if res.Invalidated && res.Loaded {
		e.metricInc(MetricSessionInvalidated)
	}

	if res.CallsIssued > 0 {
		e.metricAdd(MetricPlanCallIssued, uint64(res.CallsIssued))
	}
	if res.Failure == flows.ResolveFailureLoad {
		e.metricInc(MetricPlanCallFailed)
		log.Print("hallpass: route model load failed: ", res.Err)
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() && res.PlanDuration > 0 {
		e.metrics.Observe(MetricPlanLatency, res.PlanDuration)
	}

	switch dec.Reason {
	case ReasonNone:
		e.metricInc(MetricResolveProceed)
	case ReasonSuperseded:
		e.metricInc(MetricResolveSuperseded)
	default:
		e.metricInc(MetricResolveRedirect)
		e.metricInc(redirectMetricFor(dec.Reason))
	}

	e.emitResolveAudit(ctx, dec, res)
}

// Logout describes the logout operation and its observable behavior.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context) (bool, error) {
	if e == nil || e.sessions == nil {
		return false, ErrEngineNotReady
	}

	key := sessionKeyFromContext(ctx)
	if key == "" {
		return false, ErrNoSession
	}

	e.dropUser(key)

	existed, err := e.sessions.Invalidate(ctx, key)
	if err != nil {
		log.Print("hallpass: session invalidation failed on logout")
	}
	if err == nil && existed {
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventSessionInvalidated, err == nil, "", "", nil, ReasonNone, err, nil)

	return existed, err
}

func (e *Engine) flowDeps() flows.Deps {
	hd := flows.HydrateDeps{
		Flight:     &e.flight,
		Cached:     e.cachedUser,
		StoreUser:  e.storeUser,
		DropUser:   e.dropUser,
		Load:       e.users.Load,
		Invalidate: e.invalidateExpired,
	}

	return flows.Deps{
		Hydrate: hd,
		Resolve: flows.ResolveDeps{
			CurrentSession: e.sessions.Current,
			CallContext:    callContext,
			Hydrate: func(ctx context.Context, sess *session.Session) flows.HydrateResult {
				return flows.RunHydrate(ctx, sess, hd)
			},
			ModuleEnabled: e.modules.HasModule,
			Fetch: func(ctx context.Context, path string) (json.RawMessage, error) {
				return e.api.Get(ctx, path, nil)
			},
		},
	}
}

// invalidateExpired tears down a session whose user load proved it
// dead. The hydration flow swallows teardown errors, so the failure is
// logged here.
func (e *Engine) invalidateExpired(ctx context.Context, key string) (bool, error) {
	existed, err := e.sessions.Invalidate(ctx, key)
	if err != nil {
		log.Print("hallpass: session invalidation failed after hydration failure")
	}
	return existed, err
}

// callContext attaches the session's bearer credential so backend calls
// run as the session's actor.
func callContext(ctx context.Context, sess *session.Session) context.Context {
	if sess == nil || sess.Credential == "" {
		return ctx
	}
	return client.WithBearer(ctx, sess.Credential)
}

func (e *Engine) cachedUser(sessionKey string) *identity.Record {
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()
	return e.userCache[sessionKey]
}

func (e *Engine) storeUser(sessionKey string, user *identity.Record) {
	e.cacheMu.Lock()
	e.userCache[sessionKey] = user
	e.cacheMu.Unlock()
}

func (e *Engine) dropUser(sessionKey string) {
	e.cacheMu.Lock()
	delete(e.userCache, sessionKey)
	e.cacheMu.Unlock()
}

func (e *Engine) noteSessionRestored(ctx context.Context, sess *session.Session) {
	e.metricInc(MetricSessionRestored)
	e.emitAudit(ctx, auditEventSessionRestored, true, "", "", sess, ReasonNone, nil, nil)
}
