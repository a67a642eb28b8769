package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreflux/llmorchestrator/internal/adapter"
	"github.com/coreflux/llmorchestrator/internal/adapter/mock"
	"github.com/coreflux/llmorchestrator/internal/balancer"
	"github.com/coreflux/llmorchestrator/internal/breaker"
	"github.com/coreflux/llmorchestrator/internal/dispatch"
	"github.com/coreflux/llmorchestrator/internal/health"
	"github.com/coreflux/llmorchestrator/internal/models"
)

func provider() models.Provider {
	return models.Provider{
		ID:        "pA",
		Endpoints: []models.Endpoint{{ID: "e1"}},
		Models:    []models.Model{{ID: "m1"}},
	}
}

func newDispatcher(ad adapter.Adapter) (*dispatch.Dispatcher, *health.Tracker, *breaker.Registry) {
	h := health.New()
	br := breaker.New(breaker.DefaultConfig(), nil, nil)
	lb := balancer.New(models.StrategyRoundRobin, h)
	d := dispatch.New(dispatch.DefaultConfig(), h, lb, br, dispatch.Registry{"pA": ad})
	return d, h, br
}

func TestDispatch_HappyPath(t *testing.T) {
	ad := mock.New(map[string]mock.Script{"m1": {Tokens: []string{"def", " foo", "()"}}})
	d, h, _ := newDispatcher(ad)

	tokens := d.Dispatch(context.Background(), provider(), "m1", "write a function", adapter.Params{}, time.Now().Add(time.Second))
	resp := dispatch.Collect(tokens, "pA", "m1", time.Now())

	require.Equal(t, models.OutcomeSuccess, resp.Outcome)
	assert.Equal(t, "def foo()", resp.Text)
	assert.Equal(t, int64(0), h.InFlight("e1"))
}

func TestDispatch_ShortCircuitsWhenCircuitOpen(t *testing.T) {
	ad := mock.New(nil)
	d, _, br := newDispatcher(ad)
	for i := 0; i < 5; i++ {
		br.ReportFailure("pA")
	}

	tokens := d.Dispatch(context.Background(), provider(), "m1", "hello", adapter.Params{}, time.Now().Add(time.Second))
	resp := dispatch.Collect(tokens, "pA", "m1", time.Now())

	require.NotNil(t, resp.Error)
	assert.Equal(t, models.OutcomeShortCircuited, resp.Outcome)
	assert.Equal(t, models.ErrShortCircuited, resp.Error.Kind)
}

func TestDispatch_DeadlinePastAtEntryTimesOutImmediately(t *testing.T) {
	ad := mock.New(map[string]mock.Script{"m1": {Tokens: []string{"hi"}}})
	d, _, _ := newDispatcher(ad)

	tokens := d.Dispatch(context.Background(), provider(), "m1", "hi", adapter.Params{}, time.Now().Add(-time.Second))
	resp := dispatch.Collect(tokens, "pA", "m1", time.Now())

	require.Equal(t, models.OutcomeTimeout, resp.Outcome)
}

func TestDispatch_CancelDecrementsInFlight(t *testing.T) {
	ad := mock.New(map[string]mock.Script{"m1": {Tokens: []string{"a", "b", "c"}, Delay: 50 * time.Millisecond}})
	d, h, _ := newDispatcher(ad)

	ctx, cancel := context.WithCancel(context.Background())
	tokens := d.Dispatch(ctx, provider(), "m1", "hi", adapter.Params{}, time.Now().Add(5*time.Second))

	<-tokens // first token
	cancel()
	for range tokens {
	}

	assert.Eventually(t, func() bool { return h.InFlight("e1") == 0 }, 200*time.Millisecond, 5*time.Millisecond)
}

func TestDispatch_FailureCountsAgainstCircuit(t *testing.T) {
	ad := mock.New(map[string]mock.Script{"m1": {Err: &adapter.ClassifiedError{Class: adapter.ClassUpstream5xx, Message: "boom"}}})
	d, _, br := newDispatcher(ad)

	for i := 0; i < 5; i++ {
		tokens := d.Dispatch(context.Background(), provider(), "m1", "hi", adapter.Params{}, time.Now().Add(time.Second))
		dispatch.Collect(tokens, "pA", "m1", time.Now())
	}

	assert.Equal(t, models.CircuitOpen, br.State("pA"))
}
