// Package balancer selects a single endpoint among a provider's configured
// endpoints according to one of four strategies: round robin, least
// connections, weighted, and random.
package balancer

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/coreflux/llmorchestrator/internal/health"
	"github.com/coreflux/llmorchestrator/internal/models"
)

// LoadBalancer picks an endpoint for a provider, consulting a health
// Tracker to skip unhealthy endpoints and tracking its own round-robin
// cursor per provider.
type LoadBalancer struct {
	strategy models.Strategy
	health   *health.Tracker

	mu      sync.Mutex
	cursors map[string]*uint64
}

// New returns a LoadBalancer using strategy, consulting tracker for health
// and in-flight counts.
func New(strategy models.Strategy, tracker *health.Tracker) *LoadBalancer {
	return &LoadBalancer{
		strategy: strategy,
		health:   tracker,
		cursors:  make(map[string]*uint64),
	}
}

// Choose selects one endpoint from endpoints. Unhealthy endpoints are
// skipped unless every endpoint is unhealthy, in which case the balancer
// falls back to treating all of them as eligible — the caller (dispatcher)
// is responsible for surfacing AllEndpointsUnhealthy if it wants to refuse
// the call outright instead.
func (b *LoadBalancer) Choose(providerID string, endpoints []models.Endpoint) (models.Endpoint, bool) {
	if len(endpoints) == 0 {
		return models.Endpoint{}, false
	}

	eligible := b.healthyOf(endpoints)
	if len(eligible) == 0 {
		eligible = endpoints
	}

	switch b.strategy {
	case models.StrategyLeastConnection:
		return b.chooseLeastConnections(eligible), true
	case models.StrategyWeighted:
		return b.chooseWeighted(eligible), true
	case models.StrategyRandom:
		return eligible[rand.Intn(len(eligible))], true
	default: // StrategyRoundRobin and unset
		return b.chooseRoundRobin(providerID, eligible), true
	}
}

// AllUnhealthy reports whether every one of endpoints is currently marked
// unhealthy by the tracker.
func (b *LoadBalancer) AllUnhealthy(endpoints []models.Endpoint) bool {
	if len(endpoints) == 0 {
		return false
	}
	return len(b.healthyOf(endpoints)) == 0
}

func (b *LoadBalancer) healthyOf(endpoints []models.Endpoint) []models.Endpoint {
	out := make([]models.Endpoint, 0, len(endpoints))
	for _, e := range endpoints {
		if b.health.Healthy(e.ID) {
			out = append(out, e)
		}
	}
	return out
}

func (b *LoadBalancer) cursorFor(providerID string) *uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.cursors[providerID]
	if !ok {
		c = new(uint64)
		b.cursors[providerID] = c
	}
	return c
}

func (b *LoadBalancer) chooseRoundRobin(providerID string, endpoints []models.Endpoint) models.Endpoint {
	cursor := b.cursorFor(providerID)
	n := atomic.AddUint64(cursor, 1)
	return endpoints[(n-1)%uint64(len(endpoints))]
}

// chooseLeastConnections picks the endpoint with the fewest in-flight
// calls. Ties break by lower average latency, then lexicographically by
// ID, per spec.
func (b *LoadBalancer) chooseLeastConnections(endpoints []models.Endpoint) models.Endpoint {
	best := endpoints[0]
	bestLoad := b.health.InFlight(best.ID)
	bestLatency := b.health.Snapshot(best.ID).AvgLatencyMs
	for _, e := range endpoints[1:] {
		load := b.health.InFlight(e.ID)
		latency := b.health.Snapshot(e.ID).AvgLatencyMs
		switch {
		case load < bestLoad:
			best, bestLoad, bestLatency = e, load, latency
		case load == bestLoad && latency < bestLatency:
			best, bestLoad, bestLatency = e, load, latency
		case load == bestLoad && latency == bestLatency && e.ID < best.ID:
			best, bestLoad, bestLatency = e, load, latency
		}
	}
	return best
}

func (b *LoadBalancer) chooseWeighted(endpoints []models.Endpoint) models.Endpoint {
	total := 0.0
	for _, e := range endpoints {
		w := e.Weight
		if w <= 0 {
			w = 1
		}
		total += w
	}
	if total <= 0 {
		return endpoints[rand.Intn(len(endpoints))]
	}

	pick := rand.Float64() * total
	cum := 0.0
	for _, e := range endpoints {
		w := e.Weight
		if w <= 0 {
			w = 1
		}
		cum += w
		if pick < cum {
			return e
		}
	}
	return endpoints[len(endpoints)-1]
}
