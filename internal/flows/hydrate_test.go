package flows

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/munihall/hallpass/identity"
	"github.com/munihall/hallpass/session"
)

type userCache struct {
	mu    sync.Mutex
	users map[string]*identity.Record
}

func newUserCache() *userCache {
	return &userCache{users: make(map[string]*identity.Record)}
}

func (c *userCache) get(key string) *identity.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.users[key]
}

func (c *userCache) put(key string, u *identity.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[key] = u
}

func (c *userCache) drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, key)
}

func hydrateSession() *session.Session {
	return &session.Session{
		Key:            "key-1",
		ActorID:        "u-1",
		MunicipalityID: "oakdale",
		Credential:     "bearer-token-1",
	}
}

func newHydrateDeps(cache *userCache, load func(ctx context.Context, sess *session.Session) (*identity.Record, error)) HydrateDeps {
	return HydrateDeps{
		Flight:    &singleflight.Group{},
		Cached:    cache.get,
		StoreUser: cache.put,
		DropUser:  cache.drop,
		Load:      load,
	}
}

func TestRunHydrateCacheHitSkipsLoad(t *testing.T) {
	cache := newUserCache()
	cache.put("key-1", &identity.Record{ID: "u-1"})

	deps := newHydrateDeps(cache, func(ctx context.Context, sess *session.Session) (*identity.Record, error) {
		t.Fatal("load must not run on cache hit")
		return nil, nil
	})

	res := RunHydrate(context.Background(), hydrateSession(), deps)
	if res.Err != nil || res.User == nil || res.User.ID != "u-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Loaded || res.Coalesced {
		t.Fatalf("cache hit must not count as load or join: %+v", res)
	}
}

func TestRunHydrateLoadsAndCaches(t *testing.T) {
	cache := newUserCache()
	var loads atomic.Int32

	deps := newHydrateDeps(cache, func(ctx context.Context, sess *session.Session) (*identity.Record, error) {
		loads.Add(1)
		return &identity.Record{ID: sess.ActorID}, nil
	})

	res := RunHydrate(context.Background(), hydrateSession(), deps)
	if res.Err != nil || res.User == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.Loaded {
		t.Fatal("expected the first hydration to load")
	}
	if cache.get("key-1") == nil {
		t.Fatal("expected loaded record to be cached")
	}

	// Second attempt is a pure cache hit.
	res = RunHydrate(context.Background(), hydrateSession(), deps)
	if res.Loaded || loads.Load() != 1 {
		t.Fatalf("expected exactly one backend load, got %d", loads.Load())
	}
}

func TestRunHydrateCoalescesConcurrentLoads(t *testing.T) {
	cache := newUserCache()
	gate := make(chan struct{})
	var loads atomic.Int32

	deps := newHydrateDeps(cache, func(ctx context.Context, sess *session.Session) (*identity.Record, error) {
		loads.Add(1)
		<-gate
		return &identity.Record{ID: sess.ActorID}, nil
	})

	const workers = 12
	results := make([]HydrateResult, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			results[idx] = RunHydrate(context.Background(), hydrateSession(), deps)
		}(i)
	}

	// Let every worker join the in-flight load before it completes.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if got := loads.Load(); got != 1 {
		t.Fatalf("expected a single coalesced backend load, got %d", got)
	}

	loaded, joined := 0, 0
	for _, res := range results {
		if res.Err != nil || res.User == nil {
			t.Fatalf("unexpected worker result: %+v", res)
		}
		if res.Loaded {
			loaded++
		}
		if res.Coalesced {
			joined++
		}
	}
	if loaded != 1 {
		t.Fatalf("expected exactly one loader, got %d", loaded)
	}
	if joined != workers-1 {
		t.Fatalf("expected %d joiners, got %d", workers-1, joined)
	}
}

func TestRunHydrateFailureInvalidatesOnceAcrossCallers(t *testing.T) {
	cache := newUserCache()
	gate := make(chan struct{})
	boom := errors.New("backend status 401: credential expired")
	var invalidations atomic.Int32

	deps := newHydrateDeps(cache, func(ctx context.Context, sess *session.Session) (*identity.Record, error) {
		<-gate
		return nil, boom
	})
	deps.Invalidate = func(ctx context.Context, sessionKey string) (bool, error) {
		return invalidations.Add(1) == 1, nil
	}

	const workers = 8
	results := make([]HydrateResult, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			results[idx] = RunHydrate(context.Background(), hydrateSession(), deps)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if got := invalidations.Load(); got != 1 {
		t.Fatalf("expected one invalidation for all concurrent failures, got %d", got)
	}
	for _, res := range results {
		if !errors.Is(res.Err, boom) {
			t.Fatalf("expected shared load failure, got %v", res.Err)
		}
		if !res.Invalidated {
			t.Fatal("expected all callers to observe the shared invalidation")
		}
	}
}

func TestRunHydrateFailureWithoutInvalidateDep(t *testing.T) {
	cache := newUserCache()
	boom := errors.New("backend down")

	deps := newHydrateDeps(cache, func(ctx context.Context, sess *session.Session) (*identity.Record, error) {
		return nil, boom
	})

	res := RunHydrate(context.Background(), hydrateSession(), deps)
	if !errors.Is(res.Err, boom) || res.Invalidated {
		t.Fatalf("unexpected result without invalidate dep: %+v", res)
	}
}

func TestRunHydrateSurvivesCallerCancellation(t *testing.T) {
	cache := newUserCache()
	deps := newHydrateDeps(cache, func(ctx context.Context, sess *session.Session) (*identity.Record, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
			return &identity.Record{ID: sess.ActorID}, nil
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := RunHydrate(ctx, hydrateSession(), deps)
	if res.Err != nil || res.User == nil {
		t.Fatalf("expected load to outlive caller cancellation, got %+v", res)
	}
}
