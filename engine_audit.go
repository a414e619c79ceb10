package hallpass

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/munihall/hallpass/client"
	"github.com/munihall/hallpass/internal/flows"
	"github.com/munihall/hallpass/session"
)

const (
	auditEventResolveProceed          = "resolve_proceed"
	auditEventResolveSuperseded       = "resolve_superseded"
	auditEventRedirectUnauthenticated = "redirect_unauthenticated"
	auditEventRedirectSessionExpired  = "redirect_session_expired"
	auditEventRedirectModuleDisabled  = "redirect_module_disabled"
	auditEventRedirectForbidden       = "redirect_forbidden"
	auditEventRedirectLoadFailed      = "redirect_load_failed"
	auditEventSessionRestored         = "session_restored"
	auditEventSessionInvalidated      = "session_invalidated"
)

// AuditErrorCode defines a public type used by hallpass APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrNoSession          AuditErrorCode = "no_session"
	auditErrCredentialRejected AuditErrorCode = "credential_rejected"
	auditErrSessionStoreDown   AuditErrorCode = "session_store_unavailable"
	auditErrTimeout            AuditErrorCode = "timeout"
	auditErrCancelled          AuditErrorCode = "cancelled"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitResolveAudit(ctx context.Context, dec *Decision, res flows.ResolveResult) {
	if e == nil || e.audit == nil {
		return
	}

	eventType := auditEventResolveProceed
	success := true
	switch dec.Reason {
	case ReasonNone:
	case ReasonSuperseded:
		eventType = auditEventResolveSuperseded
		success = false
	default:
		eventType = redirectEventFor(dec.Reason)
		success = false
	}

	e.emitAudit(ctx, eventType, success, dec.NavigationID, dec.Target, res.Session, dec.Reason, dec.Cause, func() map[string]string {
		md := make(map[string]string, 8)
		if dec.RedirectTo != "" {
			md["redirect_to"] = dec.RedirectTo
		}
		if res.GateRoute != "" {
			md["gate_route"] = res.GateRoute
		}
		if res.Module != "" {
			md["module"] = res.Module
		}
		if res.Capability != "" {
			md["capability"] = res.Capability
		}
		if res.StaffOnly {
			md["staff_only"] = "true"
		}
		if res.FailedSlot != "" {
			md["failed_slot"] = res.FailedSlot
		}
		if res.CallsIssued > 0 {
			md["calls_issued"] = strconv.Itoa(res.CallsIssued)
		}
		if from := navigationOrigin(ctx, e.router); from != "" {
			md["from"] = from
		}
		if len(md) == 0 {
			return nil
		}
		return md
	})
}

// navigationOrigin reports where the navigation came from: the caller's
// attached referrer when present, the router's current URL otherwise.
func navigationOrigin(ctx context.Context, router Router) string {
	if from := referrerFromContext(ctx); from != "" {
		return from
	}
	if router != nil {
		return router.CurrentURL(ctx)
	}
	return ""
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	navID string,
	routeName string,
	sess *session.Session,
	reason Reason,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		NavigationID: navID,
		Route:        routeName,
		IP:           clientIPFromContext(ctx),
		Success:      success,
		Metadata:     metadata,
	}
	if sess != nil {
		event.ActorID = sess.ActorID
		event.MunicipalityID = sess.MunicipalityID
		event.SessionKey = sess.Key
	} else {
		event.SessionKey = sessionKeyFromContext(ctx)
	}
	if reason != ReasonNone {
		event.Reason = reason.String()
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func redirectEventFor(reason Reason) string {
	switch reason {
	case ReasonUnauthenticated:
		return auditEventRedirectUnauthenticated
	case ReasonSessionExpired:
		return auditEventRedirectSessionExpired
	case ReasonModuleDisabled:
		return auditEventRedirectModuleDisabled
	case ReasonForbidden:
		return auditEventRedirectForbidden
	default:
		return auditEventRedirectLoadFailed
	}
}

func redirectMetricFor(reason Reason) MetricID {
	switch reason {
	case ReasonUnauthenticated:
		return MetricRedirectUnauthenticated
	case ReasonSessionExpired:
		return MetricRedirectSessionExpired
	case ReasonModuleDisabled:
		return MetricRedirectModuleDisabled
	case ReasonForbidden:
		return MetricRedirectForbidden
	default:
		return MetricRedirectLoadFailed
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrNoSession):
		return auditErrNoSession
	case errors.Is(err, ErrCredentialRejected):
		return auditErrCredentialRejected
	case errors.Is(err, session.ErrRedisUnavailable):
		return auditErrSessionStoreDown
	case errors.Is(err, context.DeadlineExceeded):
		return auditErrTimeout
	case errors.Is(err, context.Canceled):
		return auditErrCancelled
	default:
		if status := client.StatusCode(err); status > 0 {
			return AuditErrorCode("backend_status_" + strconv.Itoa(status))
		}
		return auditErrInternal
	}
}
