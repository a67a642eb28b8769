// Package fanout runs N dispatcher calls concurrently and completes per one
// of three modes: all, first_success, or quorum(k).
package fanout

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coreflux/llmorchestrator/internal/adapter"
	"github.com/coreflux/llmorchestrator/internal/dispatch"
	"github.com/coreflux/llmorchestrator/internal/models"
)

// Call is one sub-call to fan out: a provider/model pair plus its own
// per-call deadline (zero means "no earlier than the group deadline").
type Call struct {
	Provider models.Provider
	ModelID  string
	Deadline time.Time
}

// Result is the outcome of a FanOut invocation.
type Result struct {
	Responses []models.Response
}

// FanOut dispatches Calls concurrently via a Dispatcher.
type FanOut struct {
	dispatcher *dispatch.Dispatcher
}

// New returns a FanOut driving dispatcher for every sub-call.
func New(dispatcher *dispatch.Dispatcher) *FanOut {
	return &FanOut{dispatcher: dispatcher}
}

// Run dispatches calls concurrently, applying prompt/params to every call,
// and completes per mode. groupDeadline bounds every sub-call in addition
// to its own deadline. For mode "all", the result vector preserves the
// original call order. For "first_success" and "quorum", remaining
// in-flight calls are cancelled once the completion condition is met.
func (f *FanOut) Run(ctx context.Context, calls []Call, prompt string, params adapter.Params, groupDeadline time.Time, mode models.FanOutMode, quorum int) Result {
	switch mode {
	case models.FanOutFirstSuccess:
		return f.runFirstSuccess(ctx, calls, prompt, params, groupDeadline)
	case models.FanOutQuorum:
		return f.runQuorum(ctx, calls, prompt, params, groupDeadline, quorum)
	default:
		return f.runAll(ctx, calls, prompt, params, groupDeadline)
	}
}

func effectiveDeadline(group, call time.Time) time.Time {
	if call.IsZero() {
		return group
	}
	if group.IsZero() {
		return call
	}
	if call.Before(group) {
		return call
	}
	return group
}

func (f *FanOut) runAll(ctx context.Context, calls []Call, prompt string, params adapter.Params, groupDeadline time.Time) Result {
	responses := make([]models.Response, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range calls {
		i, c := i, c
		g.Go(func() error {
			start := time.Now()
			deadline := effectiveDeadline(groupDeadline, c.Deadline)
			tokens := f.dispatcher.Dispatch(gctx, c.Provider, c.ModelID, prompt, params, deadline)
			responses[i] = dispatch.Collect(tokens, c.Provider.ID, c.ModelID, start)
			return nil
		})
	}
	_ = g.Wait()

	return Result{Responses: responses}
}

func (f *FanOut) runFirstSuccess(ctx context.Context, calls []Call, prompt string, params adapter.Params, groupDeadline time.Time) Result {
	return f.runUntil(ctx, calls, prompt, params, groupDeadline, 1)
}

func (f *FanOut) runQuorum(ctx context.Context, calls []Call, prompt string, params adapter.Params, groupDeadline time.Time, k int) Result {
	if k <= 0 {
		k = 1
	}
	return f.runUntil(ctx, calls, prompt, params, groupDeadline, k)
}

// runUntil collects responses as they complete and cancels the remaining
// in-flight calls once needed successes successes have accumulated.
func (f *FanOut) runUntil(ctx context.Context, calls []Call, prompt string, params adapter.Params, groupDeadline time.Time, needed int) Result {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		responses []models.Response
		successes int
		wg        sync.WaitGroup
	)

	for _, c := range calls {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			deadline := effectiveDeadline(groupDeadline, c.Deadline)
			tokens := f.dispatcher.Dispatch(cctx, c.Provider, c.ModelID, prompt, params, deadline)
			resp := dispatch.Collect(tokens, c.Provider.ID, c.ModelID, start)

			mu.Lock()
			responses = append(responses, resp)
			if resp.Outcome == models.OutcomeSuccess {
				successes++
				if successes >= needed {
					cancel()
				}
			}
			mu.Unlock()
		}()
	}

	wg.Wait()
	return Result{Responses: responses}
}
