//go:build integration
// +build integration

package test

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestInvalidateRaceSingleObserver verifies that concurrent invalidations
// of one session observe existed=true exactly once. Logout semantics
// depend on this: whoever sees true is the one that ended the session.
func TestInvalidateRaceSingleObserver(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newIntegrationStore(t)
	defer cleanup()

	sess := makeSession("mun-1", "u-1", "sid-race")
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	type outcome struct {
		existed bool
		err     error
	}
	results := make(chan outcome, workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			existed, err := store.Invalidate(ctx, "sid-race")
			results <- outcome{existed: existed, err: err}
		}()
	}

	close(start)
	wg.Wait()
	close(results)

	winners := 0
	for res := range results {
		if res.err != nil {
			t.Fatalf("unexpected invalidate error: %v", res.err)
		}
		if res.existed {
			winners++
		}
	}

	if winners != 1 {
		t.Fatalf("expected exactly one invalidation to observe the session, got %d", winners)
	}
}
