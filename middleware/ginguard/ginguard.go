// Package ginguard adapts the hallpass navigation guard to gin handler
// chains. It mirrors the net/http middleware package: [Guard] answers
// redirects with a 302 to the redirect route's path, [GuardJSON]
// answers them with 401/403/502 JSON bodies, and both abort the chain
// on anything but a proceed decision.
package ginguard

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	hallpass "github.com/munihall/hallpass"
	"github.com/munihall/hallpass/middleware"
)

// DecisionKey is the gin context key the guards store the Decision
// under.
const DecisionKey = "hallpass.decision"

// Decision returns the Decision a guard stored for the current request.
func Decision(c *gin.Context) (*hallpass.Decision, bool) {
	v, ok := c.Get(DecisionKey)
	if !ok {
		return nil, false
	}
	dec, ok := v.(*hallpass.Decision)
	return dec, ok
}

// Guard resolves the named route before the rest of the chain runs.
// Redirect decisions abort with a 302 to the redirect route's path.
func Guard(engine *hallpass.Engine, route string) gin.HandlerFunc {
	return guard(engine, route, false)
}

// GuardJSON is [Guard] for API-style consumers, answering failures with
// [middleware.StatusForReason] statuses and a JSON body.
func GuardJSON(engine *hallpass.Engine, route string) gin.HandlerFunc {
	return guard(engine, route, true)
}

func guard(engine *hallpass.Engine, route string, jsonMode bool) gin.HandlerFunc {
	var pathParams []string
	if engine != nil {
		pathParams, _ = engine.Routes().PathParams(route)
	}

	return func(c *gin.Context) {
		if engine == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}

		var params map[string]string
		if len(pathParams) > 0 {
			params = make(map[string]string, len(pathParams))
			for _, name := range pathParams {
				if v := c.Param(name); v != "" {
					params[name] = v
				}
			}
		}

		ctx := middleware.RequestContext(c.Request)
		dec, err := engine.Resolve(ctx, route, params)
		if err != nil {
			abortResolveError(c, err, jsonMode)
			return
		}

		if dec.Superseded() {
			abortSuperseded(c, dec, jsonMode)
			return
		}

		refreshSessionCookie(c, dec)

		if dec.Redirected() {
			if jsonMode {
				c.AbortWithStatusJSON(middleware.StatusForReason(dec.Reason), gin.H{
					"reason":      dec.Reason.String(),
					"redirect_to": dec.RedirectTo,
				})
				return
			}
			c.Redirect(http.StatusFound, redirectLocation(engine, dec))
			c.Abort()
			return
		}

		c.Set(DecisionKey, dec)
		c.Next()
	}
}

func refreshSessionCookie(c *gin.Context, dec *hallpass.Decision) {
	if dec.SessionKey == "" {
		return
	}
	if v, err := c.Cookie(middleware.DefaultSessionCookie); err == nil && v == dec.SessionKey {
		return
	}
	c.SetCookie(middleware.DefaultSessionCookie, dec.SessionKey, 0, "/", "", false, true)
}

func redirectLocation(engine *hallpass.Engine, dec *hallpass.Decision) string {
	rt, err := engine.Routes().Lookup(dec.RedirectTo)
	if err != nil || rt.Path == "" {
		return "/"
	}
	return rt.Path
}

func abortSuperseded(c *gin.Context, dec *hallpass.Decision, jsonMode bool) {
	if jsonMode {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"reason": dec.Reason.String()})
		return
	}
	c.String(http.StatusConflict, "superseded by a newer navigation")
	c.Abort()
}

func abortResolveError(c *gin.Context, err error, jsonMode bool) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, hallpass.ErrUnknownRoute):
		status = http.StatusNotFound
	case errors.Is(err, hallpass.ErrEngineNotReady):
		status = http.StatusServiceUnavailable
	}

	if jsonMode {
		c.AbortWithStatusJSON(status, gin.H{"reason": "resolve-error"})
		return
	}
	c.String(status, http.StatusText(status))
	c.Abort()
}
