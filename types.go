package hallpass

import (
	"context"
	"encoding/json"
	"io"

	"github.com/munihall/hallpass/client"
	"github.com/munihall/hallpass/identity"
	internalaudit "github.com/munihall/hallpass/internal/audit"
	internalmetrics "github.com/munihall/hallpass/internal/metrics"
	"github.com/munihall/hallpass/municipality"
	"github.com/munihall/hallpass/session"
)

// Reason classifies why a navigation was redirected or dropped.
// A proceeding decision carries [ReasonNone].
type Reason uint8

const (
	// ReasonNone is an exported constant or variable used by the navigation engine.
	ReasonNone Reason = iota
	// ReasonUnauthenticated is an exported constant or variable used by the navigation engine.
	ReasonUnauthenticated
	// ReasonSessionExpired is an exported constant or variable used by the navigation engine.
	ReasonSessionExpired
	// ReasonModuleDisabled is an exported constant or variable used by the navigation engine.
	ReasonModuleDisabled
	// ReasonForbidden is an exported constant or variable used by the navigation engine.
	ReasonForbidden
	// ReasonLoadFailed is an exported constant or variable used by the navigation engine.
	ReasonLoadFailed
	// ReasonSuperseded is an exported constant or variable used by the navigation engine.
	ReasonSuperseded
)

// String returns the stable label recorded in audit events and exposed
// to callers that render redirect notices.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUnauthenticated:
		return "unauthenticated"
	case ReasonSessionExpired:
		return "session-expired"
	case ReasonModuleDisabled:
		return "module-disabled"
	case ReasonForbidden:
		return "forbidden"
	case ReasonLoadFailed:
		return "load-failed"
	case ReasonSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Decision is returned by [Engine.Resolve]. Exactly one outcome holds:
// the navigation proceeds into Target with a fully composed Model, it
// redirects to RedirectTo, or a newer navigation superseded it and it
// carries neither model nor redirect.
type Decision struct {
	NavigationID string

	// SessionKey names the live session the navigation ran under. When
	// the engine restored a session from a bearer credential, this is
	// the fresh key the caller must hand back to the client.
	SessionKey string

	Target string
	Model  map[string]json.RawMessage

	RedirectTo string
	Reason     Reason
	Cause      error
}

// Proceeded reports whether the navigation may enter Target. Model is
// complete exactly when Proceeded returns true.
func (d *Decision) Proceeded() bool {
	return d.Reason == ReasonNone
}

// Redirected reports whether the caller must navigate to RedirectTo
// instead of Target.
func (d *Decision) Redirected() bool {
	return d.RedirectTo != ""
}

// Superseded reports whether a newer navigation made this one stale.
// Superseded decisions must be discarded without side effects.
func (d *Decision) Superseded() bool {
	return d.Reason == ReasonSuperseded
}

// Session is the live server-side session a navigation runs under.
type Session = session.Session

// UserRecord is the hydrated admin user. It is loaded once per session
// lifetime and cached by the engine.
type UserRecord = identity.Record

// Municipality is the tenant record carrying the enabled module set.
type Municipality = municipality.Municipality

// SessionStore resolves the caller's live session and invalidates it
// when hydration proves it dead. The built-in store reads the session
// key from the request context and keeps sessions in Redis; supply a
// custom implementation with [Builder.WithSessionStore].
type SessionStore interface {
	Current(ctx context.Context) (*Session, error)
	Invalidate(ctx context.Context, key string) (bool, error)
}

// UserProvider loads the full account record for a session's actor.
// [identity.Provider] is the built-in implementation.
type UserProvider interface {
	Load(ctx context.Context, sess *Session) (*UserRecord, error)
}

// ModuleRegistry answers which modules a municipality has enabled.
// [municipality.Registry] is the built-in implementation.
type ModuleRegistry interface {
	HasModule(ctx context.Context, municipalityID, module string) (bool, error)
	Municipality(ctx context.Context, municipalityID string) (*Municipality, error)
}

// APIClient is the backend surface the engine fetches route models
// through. [client.Client] satisfies it.
type APIClient interface {
	Get(ctx context.Context, path string, params map[string]string) (json.RawMessage, error)
	Put(ctx context.Context, path string, body any) (json.RawMessage, error)
}

// Router receives the navigation side effects of a decision. The engine
// calls TransitionTo at most once per Resolve, with the redirect route
// name, and never for superseded navigations. CurrentURL feeds audit
// metadata when the caller did not attach a referrer.
type Router interface {
	TransitionTo(ctx context.Context, route string)
	CurrentURL(ctx context.Context) string
}

var _ APIClient = (*client.Client)(nil)

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific counter or histogram bucket in the
// in-process metrics system.
type MetricID = internalmetrics.ID

const (
	// MetricResolveProceed is an exported constant or variable used by the navigation engine.
	MetricResolveProceed = MetricID(internalmetrics.ResolveProceed)
	// MetricResolveRedirect is an exported constant or variable used by the navigation engine.
	MetricResolveRedirect = MetricID(internalmetrics.ResolveRedirect)
	// MetricRedirectUnauthenticated is an exported constant or variable used by the navigation engine.
	MetricRedirectUnauthenticated = MetricID(internalmetrics.RedirectUnauthenticated)
	// MetricRedirectSessionExpired is an exported constant or variable used by the navigation engine.
	MetricRedirectSessionExpired = MetricID(internalmetrics.RedirectSessionExpired)
	// MetricRedirectModuleDisabled is an exported constant or variable used by the navigation engine.
	MetricRedirectModuleDisabled = MetricID(internalmetrics.RedirectModuleDisabled)
	// MetricRedirectForbidden is an exported constant or variable used by the navigation engine.
	MetricRedirectForbidden = MetricID(internalmetrics.RedirectForbidden)
	// MetricRedirectLoadFailed is an exported constant or variable used by the navigation engine.
	MetricRedirectLoadFailed = MetricID(internalmetrics.RedirectLoadFailed)
	// MetricResolveSuperseded is an exported constant or variable used by the navigation engine.
	MetricResolveSuperseded = MetricID(internalmetrics.ResolveSuperseded)
	// MetricHydrationLoad is an exported constant or variable used by the navigation engine.
	MetricHydrationLoad = MetricID(internalmetrics.HydrationLoad)
	// MetricHydrationCoalesced is an exported constant or variable used by the navigation engine.
	MetricHydrationCoalesced = MetricID(internalmetrics.HydrationCoalesced)
	// MetricHydrationFailure is an exported constant or variable used by the navigation engine.
	MetricHydrationFailure = MetricID(internalmetrics.HydrationFailure)
	// MetricSessionRestored is an exported constant or variable used by the navigation engine.
	MetricSessionRestored = MetricID(internalmetrics.SessionRestored)
	// MetricSessionInvalidated is an exported constant or variable used by the navigation engine.
	MetricSessionInvalidated = MetricID(internalmetrics.SessionInvalidated)
	// MetricPlanCallIssued is an exported constant or variable used by the navigation engine.
	MetricPlanCallIssued = MetricID(internalmetrics.PlanCallIssued)
	// MetricPlanCallFailed is an exported constant or variable used by the navigation engine.
	MetricPlanCallFailed = MetricID(internalmetrics.PlanCallFailed)
	// MetricResolveLatency is an exported constant or variable used by the navigation engine.
	MetricResolveLatency = MetricID(internalmetrics.ResolveLatency)
	// MetricPlanLatency is an exported constant or variable used by the navigation engine.
	MetricPlanLatency = MetricID(internalmetrics.PlanLatency)
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Recorder

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a new [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
