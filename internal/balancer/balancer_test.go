package balancer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coreflux/llmorchestrator/internal/balancer"
	"github.com/coreflux/llmorchestrator/internal/health"
	"github.com/coreflux/llmorchestrator/internal/models"
)

func endpoints() []models.Endpoint {
	return []models.Endpoint{{ID: "e1", URL: "http://e1"}, {ID: "e2", URL: "http://e2"}}
}

func TestLoadBalancer_RoundRobinCyclesEndpoints(t *testing.T) {
	lb := balancer.New(models.StrategyRoundRobin, health.New())

	first, ok := lb.Choose("pA", endpoints())
	assert.True(t, ok)
	second, _ := lb.Choose("pA", endpoints())
	third, _ := lb.Choose("pA", endpoints())

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.ID, third.ID)
}

func TestLoadBalancer_SkipsUnhealthyEndpoint(t *testing.T) {
	h := health.New()
	h.EndCall("e1", 5, false)
	h.EndCall("e1", 5, false)
	h.EndCall("e1", 5, false)

	lb := balancer.New(models.StrategyRoundRobin, h)

	for i := 0; i < 4; i++ {
		chosen, ok := lb.Choose("pA", endpoints())
		assert.True(t, ok)
		assert.Equal(t, "e2", chosen.ID)
	}
}

func TestLoadBalancer_AllUnhealthyStillReturnsAnEndpoint(t *testing.T) {
	h := health.New()
	for _, e := range endpoints() {
		h.EndCall(e.ID, 5, false)
		h.EndCall(e.ID, 5, false)
		h.EndCall(e.ID, 5, false)
	}

	lb := balancer.New(models.StrategyRoundRobin, h)

	_, ok := lb.Choose("pA", endpoints())
	assert.True(t, ok)
	assert.True(t, lb.AllUnhealthy(endpoints()))
}

func TestLoadBalancer_LeastConnectionsPicksLowestInFlight(t *testing.T) {
	h := health.New()
	h.BeginCall("e1")
	h.BeginCall("e1")

	lb := balancer.New(models.StrategyLeastConnection, h)

	chosen, ok := lb.Choose("pA", endpoints())
	assert.True(t, ok)
	assert.Equal(t, "e2", chosen.ID)
}

func TestLoadBalancer_LeastConnectionsTieBreaksByLatencyThenID(t *testing.T) {
	h := health.New()
	h.EndCall("e1", 50, true)
	h.EndCall("e2", 10, true)

	lb := balancer.New(models.StrategyLeastConnection, h)

	chosen, ok := lb.Choose("pA", endpoints())
	assert.True(t, ok)
	assert.Equal(t, "e2", chosen.ID, "equal in-flight counts should break ties toward lower average latency")
}

func TestLoadBalancer_LeastConnectionsTieBreaksByIDWhenLatencyEqual(t *testing.T) {
	h := health.New()

	lb := balancer.New(models.StrategyLeastConnection, h)

	chosen, ok := lb.Choose("pA", endpoints())
	assert.True(t, ok)
	assert.Equal(t, "e1", chosen.ID, "equal in-flight and latency should break ties lexicographically by ID")
}

func TestLoadBalancer_NoEndpointsReturnsFalse(t *testing.T) {
	lb := balancer.New(models.StrategyRoundRobin, health.New())

	_, ok := lb.Choose("pA", nil)
	assert.False(t, ok)
}
