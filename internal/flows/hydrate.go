package flows

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/munihall/hallpass/identity"
	"github.com/munihall/hallpass/session"
)

// HydrateDeps captures user-hydration dependencies. Flight, Cached,
// StoreUser, DropUser, and Load are required; Invalidate may be nil when
// the caller has no session teardown (stub harnesses).
type HydrateDeps struct {
	Flight     *singleflight.Group
	Cached     func(sessionKey string) *identity.Record
	StoreUser  func(sessionKey string, user *identity.Record)
	DropUser   func(sessionKey string)
	Load       func(ctx context.Context, sess *session.Session) (*identity.Record, error)
	Invalidate func(ctx context.Context, sessionKey string) (bool, error)
}

// HydrateResult reports a hydration attempt. Loaded is set only for the
// caller whose attempt actually hit the backend; Coalesced marks callers
// that joined another attempt's in-flight load.
type HydrateResult struct {
	User        *identity.Record
	Err         error
	Loaded      bool
	Coalesced   bool
	Invalidated bool
}

type hydrateOutcome struct {
	user        *identity.Record
	invalidated bool
	loaded      bool
}

// RunHydrate returns the cached user record or loads it, coalescing
// concurrent loads for one session into a single backend call. A failed
// load invalidates the session inside the coalesced call, so concurrent
// failing navigations share one invalidation.
func RunHydrate(ctx context.Context, sess *session.Session, deps HydrateDeps) HydrateResult {
	if u := deps.Cached(sess.Key); u != nil {
		return HydrateResult{User: u}
	}

	ran := false
	v, err, shared := deps.Flight.Do(sess.Key, func() (any, error) {
		ran = true

		// Another leader may have filled the cache between the fast path
		// and this call.
		if u := deps.Cached(sess.Key); u != nil {
			return hydrateOutcome{user: u}, nil
		}

		// The load and any teardown are shared across navigations, so
		// they must not die with one caller's cancellation.
		loadCtx := context.WithoutCancel(ctx)

		u, loadErr := deps.Load(loadCtx, sess)
		if loadErr != nil {
			deps.DropUser(sess.Key)
			invalidated := false
			if deps.Invalidate != nil {
				invalidated, _ = deps.Invalidate(loadCtx, sess.Key)
			}
			return hydrateOutcome{invalidated: invalidated, loaded: true}, loadErr
		}

		deps.StoreUser(sess.Key, u)
		return hydrateOutcome{user: u, loaded: true}, nil
	})

	out, _ := v.(hydrateOutcome)
	return HydrateResult{
		User:        out.user,
		Err:         err,
		Loaded:      ran && out.loaded,
		Coalesced:   shared && !ran,
		Invalidated: out.invalidated,
	}
}
