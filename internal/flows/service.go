package flows

import (
	"context"

	"github.com/munihall/hallpass/route"
	"github.com/munihall/hallpass/session"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Resolve.CurrentSession != nil
}

// Resolve runs one navigation. superseded is the per-navigation staleness
// probe; nil means the resolution can never be superseded.
func (s Service) Resolve(ctx context.Context, chain []route.Route, params map[string]string, superseded func() bool) ResolveResult {
	deps := s.deps.Resolve
	deps.Superseded = superseded
	return RunResolve(ctx, chain, params, deps)
}

func (s Service) Hydrate(ctx context.Context, sess *session.Session) HydrateResult {
	return RunHydrate(ctx, sess, s.deps.Hydrate)
}
