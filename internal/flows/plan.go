package flows

import (
	"context"
	"encoding/json"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/munihall/hallpass/route"
)

// PlanDeps captures the single dependency of plan execution.
type PlanDeps struct {
	Fetch func(ctx context.Context, path string) (json.RawMessage, error)
}

// PlanResult reports one plan's outcome. Results is nil whenever Err is
// set; a failed plan never leaks partial payloads.
type PlanResult struct {
	Results     map[string]json.RawMessage
	FailedSlot  string
	Err         error
	CallsIssued int
}

// RunPlan executes one route's calls. Independent calls run concurrently;
// a call that names dependencies waits for each of them to succeed before
// its path template is expanded. The first failure cancels everything
// still in flight and wins the FailedSlot/Err report regardless of
// completion interleaving.
func RunPlan(ctx context.Context, calls []route.Call, bind route.Bindings, deps PlanDeps) PlanResult {
	if len(calls) == 0 {
		return PlanResult{Results: map[string]json.RawMessage{}}
	}
	if bind.Results == nil {
		bind.Results = make(map[string]json.RawMessage, len(calls))
	}

	// done channels close only on success, so dependents of a failed call
	// are released by group cancellation instead.
	done := make(map[string]chan struct{}, len(calls))
	for _, call := range calls {
		done[call.Slot] = make(chan struct{})
	}

	var (
		mu         sync.Mutex
		cause      error
		failedSlot string
		issued     int
	)
	fail := func(slot string, err error) {
		mu.Lock()
		if cause == nil {
			cause = err
			failedSlot = slot
		}
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range calls {
		call := calls[i]
		g.Go(func() error {
			for _, dep := range call.DependsOn {
				select {
				case <-done[dep]:
				case <-gctx.Done():
					return gctx.Err()
				}
			}

			mu.Lock()
			path, err := route.ExpandPath(call, bind)
			if err == nil {
				issued++
			}
			mu.Unlock()
			if err != nil {
				fail(call.Slot, err)
				return err
			}

			payload, err := deps.Fetch(gctx, path)
			if err != nil {
				fail(call.Slot, err)
				return err
			}

			mu.Lock()
			bind.Results[call.Slot] = payload
			mu.Unlock()
			close(done[call.Slot])
			return nil
		})
	}

	waitErr := g.Wait()

	mu.Lock()
	defer mu.Unlock()
	if cause == nil && waitErr != nil {
		// Only possible when the surrounding context was cancelled
		// before any call failed on its own.
		cause = waitErr
	}
	if cause != nil {
		return PlanResult{FailedSlot: failedSlot, Err: cause, CallsIssued: issued}
	}
	return PlanResult{Results: bind.Results, CallsIssued: issued}
}
