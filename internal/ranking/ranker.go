// Package ranking scores and orders catalog providers against an intent's
// required capabilities and the request's soft preferences.
package ranking

import (
	"sort"

	"github.com/coreflux/llmorchestrator/internal/breaker"
	"github.com/coreflux/llmorchestrator/internal/health"
	"github.com/coreflux/llmorchestrator/internal/models"
)

// Weights holds the five scoring weights. They need not sum to exactly 1;
// the ranker clamps the final score to [0,1] regardless.
type Weights struct {
	Capability float64
	Cost       float64
	Latency    float64
	Health     float64
	Quality    float64
}

// DefaultWeights matches the core's fixed defaults.
func DefaultWeights() Weights {
	return Weights{Capability: 0.40, Cost: 0.15, Latency: 0.15, Health: 0.15, Quality: 0.15}
}

// biasForPreferences adjusts the default weights per the request's
// preference flags. Flags are applied in a fixed order (speed, cost,
// quality) so that combinations are deterministic.
func biasForPreferences(w Weights, prefs models.Preferences) Weights {
	if prefs.PreferSpeed {
		w.Latency = 0.35
		w.Capability = 0.30
	}
	if prefs.PreferCost {
		w.Cost = 0.35
		w.Capability = 0.30
	}
	if prefs.PreferQuality {
		w.Quality = 0.35
	}
	return w
}

// Ranker scores catalog providers, consulting health and circuit state for
// each candidate.
type Ranker struct {
	weights Weights
	health  *health.Tracker
	circuit *breaker.Registry
}

// New returns a Ranker using the given base weights. health/circuit may be
// nil, in which case health defaults to 1.0 and no provider is excluded for
// circuit state.
func New(weights Weights, healthTracker *health.Tracker, circuitRegistry *breaker.Registry) *Ranker {
	return &Ranker{weights: weights, health: healthTracker, circuit: circuitRegistry}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func normalize(v, min, max float64) float64 {
	if max <= min {
		return 0
	}
	return clamp01((v - min) / (max - min))
}

func capabilityMatch(p models.Provider, required []models.Capability) float64 {
	if len(required) == 0 {
		return 1
	}
	matched := 0
	for _, c := range required {
		if p.HasCapability(c) {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// Rank scores candidates against requiredCaps and prefs, returning them
// sorted by score descending, ties broken by lower p95 latency, then lower
// cost, then provider ID lexicographic. Providers with zero capability
// match (when requiredCaps is non-empty) or an open circuit are excluded.
// Returns models.ErrNoEligible (as a *models.CoreError) if the filtered
// list is empty.
func (r *Ranker) Rank(requiredCaps []models.Capability, prefs models.Preferences, candidates []models.Provider) ([]models.Ranking, error) {
	w := biasForPreferences(r.weights, prefs)

	type scored struct {
		provider models.Provider
		ranking  models.Ranking
	}

	eligible := make([]models.Provider, 0, len(candidates))
	for _, p := range candidates {
		cm := capabilityMatch(p, requiredCaps)
		if len(requiredCaps) > 0 && cm == 0 {
			continue
		}
		if r.circuit != nil && r.circuit.State(p.ID) == models.CircuitOpen {
			continue
		}
		eligible = append(eligible, p)
	}

	if len(eligible) == 0 {
		return nil, models.NewError(models.ErrNoEligible, "no provider satisfies required capabilities and circuit state", nil)
	}

	minCost, maxCost := eligible[0].CostPer1K, eligible[0].CostPer1K
	minLat, maxLat := float64(eligible[0].P95LatencyMs), float64(eligible[0].P95LatencyMs)
	for _, p := range eligible[1:] {
		if p.CostPer1K < minCost {
			minCost = p.CostPer1K
		}
		if p.CostPer1K > maxCost {
			maxCost = p.CostPer1K
		}
		lat := float64(p.P95LatencyMs)
		if lat < minLat {
			minLat = lat
		}
		if lat > maxLat {
			maxLat = lat
		}
	}

	results := make([]scored, 0, len(eligible))
	for _, p := range eligible {
		cm := capabilityMatch(p, requiredCaps)
		costComponent := 1 - normalize(p.CostPer1K, minCost, maxCost)
		latencyComponent := 1 - normalize(float64(p.P95LatencyMs), minLat, maxLat)

		healthComponent := 1.0
		if r.health != nil {
			sampled, healthy := 0, 0
			for _, e := range p.Endpoints {
				if snap := r.health.Snapshot(e.ID); snap.SampleCount > 0 {
					sampled++
					if snap.Healthy {
						healthy++
					}
				}
			}
			if sampled > 0 {
				healthComponent = float64(healthy) / float64(sampled)
			}
		}

		qualityComponent := p.QualityPrior

		score := clamp01(
			w.Capability*cm +
				w.Cost*costComponent +
				w.Latency*latencyComponent +
				w.Health*healthComponent +
				w.Quality*qualityComponent,
		)

		results = append(results, scored{
			provider: p,
			ranking: models.Ranking{
				ProviderID:       p.ID,
				Score:            score,
				CapabilityMatch:  cm,
				CostComponent:    costComponent,
				LatencyComponent: latencyComponent,
				HealthComponent:  healthComponent,
				QualityComponent: qualityComponent,
			},
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.ranking.Score != b.ranking.Score {
			return a.ranking.Score > b.ranking.Score
		}
		if a.provider.P95LatencyMs != b.provider.P95LatencyMs {
			return a.provider.P95LatencyMs < b.provider.P95LatencyMs
		}
		if a.provider.CostPer1K != b.provider.CostPer1K {
			return a.provider.CostPer1K < b.provider.CostPer1K
		}
		return a.provider.ID < b.provider.ID
	})

	rankings := make([]models.Ranking, len(results))
	for i, s := range results {
		s.ranking.Reason = reasonFor(s.ranking)
		if i+1 < len(results) {
			for _, fb := range results[i+1:] {
				s.ranking.Fallbacks = append(s.ranking.Fallbacks, fb.provider.ID)
			}
		}
		rankings[i] = s.ranking
	}

	return rankings, nil
}

func reasonFor(rk models.Ranking) string {
	switch {
	case rk.CapabilityMatch == 1 && rk.QualityComponent >= 0.8:
		return "full capability match, high quality prior"
	case rk.CostComponent >= 0.8:
		return "low relative cost"
	case rk.LatencyComponent >= 0.8:
		return "low relative latency"
	default:
		return "best weighted score among eligible providers"
	}
}
