package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	hallpass "github.com/munihall/hallpass"
)

// DefaultSessionCookie is the cookie the guards read the session key
// from and write restored session keys back to.
const DefaultSessionCookie = "hp_session"

type decisionContextKey struct{}

// DecisionFromContext returns the Decision a guard injected for the
// current request.
func DecisionFromContext(ctx context.Context) (*hallpass.Decision, bool) {
	dec, ok := ctx.Value(decisionContextKey{}).(*hallpass.Decision)
	return dec, ok
}

// Guard resolves the named route before the wrapped handler runs.
// Redirect decisions answer with a 302 to the redirect route's path;
// proceed decisions reach the handler with the Decision in the request
// context.
func Guard(engine *hallpass.Engine, route string) func(http.Handler) http.Handler {
	return guard(engine, route, false)
}

func guard(engine *hallpass.Engine, route string, jsonMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		var pathParams []string
		if engine != nil {
			pathParams, _ = engine.Routes().PathParams(route)
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "navigation guard unavailable", http.StatusServiceUnavailable)
				return
			}

			ctx := RequestContext(r)
			dec, err := engine.Resolve(ctx, route, requestParams(r, pathParams))
			if err != nil {
				writeResolveError(w, err, jsonMode)
				return
			}

			if dec.Superseded() {
				writeSuperseded(w, dec, jsonMode)
				return
			}

			refreshSessionCookie(w, r, dec)

			if dec.Redirected() {
				if jsonMode {
					writeGuardFailure(w, dec)
					return
				}
				http.Redirect(w, r, redirectLocation(engine, dec), http.StatusFound)
				return
			}

			ctx = context.WithValue(ctx, decisionContextKey{}, dec)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestContext carries the request's session cookie, bearer
// credential, client address and referrer into the engine's context.
// Adapter packages build their Resolve contexts through this.
func RequestContext(r *http.Request) context.Context {
	ctx := r.Context()

	if c, err := r.Cookie(DefaultSessionCookie); err == nil && c.Value != "" {
		ctx = hallpass.WithSessionKey(ctx, c.Value)
	}
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		ctx = hallpass.WithCredential(ctx, token)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ctx = hallpass.WithClientIP(ctx, host)
	} else if r.RemoteAddr != "" {
		ctx = hallpass.WithClientIP(ctx, r.RemoteAddr)
	}
	if ref := r.Referer(); ref != "" {
		ctx = hallpass.WithReferrer(ctx, ref)
	}

	return ctx
}

func requestParams(r *http.Request, names []string) map[string]string {
	if len(names) == 0 {
		return nil
	}

	params := make(map[string]string, len(names))
	for _, name := range names {
		if v := r.PathValue(name); v != "" {
			params[name] = v
		}
	}
	return params
}

// refreshSessionCookie writes the decision's session key back to the
// client when the engine restored the session from a credential and the
// cookie does not name it yet.
func refreshSessionCookie(w http.ResponseWriter, r *http.Request, dec *hallpass.Decision) {
	if dec.SessionKey == "" {
		return
	}
	if c, err := r.Cookie(DefaultSessionCookie); err == nil && c.Value == dec.SessionKey {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     DefaultSessionCookie,
		Value:    dec.SessionKey,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func redirectLocation(engine *hallpass.Engine, dec *hallpass.Decision) string {
	rt, err := engine.Routes().Lookup(dec.RedirectTo)
	if err != nil || rt.Path == "" {
		return "/"
	}
	return rt.Path
}

type guardFailure struct {
	Reason     string `json:"reason"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

func writeGuardFailure(w http.ResponseWriter, dec *hallpass.Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusForReason(dec.Reason))
	_ = json.NewEncoder(w).Encode(guardFailure{
		Reason:     dec.Reason.String(),
		RedirectTo: dec.RedirectTo,
	})
}

func writeSuperseded(w http.ResponseWriter, dec *hallpass.Decision, jsonMode bool) {
	if jsonMode {
		writeGuardFailure(w, dec)
		return
	}
	http.Error(w, "superseded by a newer navigation", http.StatusConflict)
}

// StatusForReason maps a redirect reason to the HTTP status API-style
// guards answer with. Adapter packages share this mapping.
func StatusForReason(reason hallpass.Reason) int {
	switch reason {
	case hallpass.ReasonUnauthenticated, hallpass.ReasonSessionExpired:
		return http.StatusUnauthorized
	case hallpass.ReasonModuleDisabled, hallpass.ReasonForbidden:
		return http.StatusForbidden
	case hallpass.ReasonLoadFailed:
		return http.StatusBadGateway
	default:
		return http.StatusConflict
	}
}

func writeResolveError(w http.ResponseWriter, err error, jsonMode bool) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, hallpass.ErrUnknownRoute):
		status = http.StatusNotFound
	case errors.Is(err, hallpass.ErrEngineNotReady):
		status = http.StatusServiceUnavailable
	}

	if jsonMode {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(guardFailure{Reason: "resolve-error"})
		return
	}
	http.Error(w, http.StatusText(status), status)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
