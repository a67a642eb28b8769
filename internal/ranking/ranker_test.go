package ranking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreflux/llmorchestrator/internal/breaker"
	"github.com/coreflux/llmorchestrator/internal/health"
	"github.com/coreflux/llmorchestrator/internal/models"
	"github.com/coreflux/llmorchestrator/internal/ranking"
)

func providers() []models.Provider {
	return []models.Provider{
		{ID: "pA", Capabilities: []models.Capability{models.CapCodeGeneration}, CostPer1K: 0.5, P95LatencyMs: 500, QualityPrior: 0.9},
		{ID: "pB", Capabilities: []models.Capability{models.CapCodeGeneration}, CostPer1K: 1.5, P95LatencyMs: 1500, QualityPrior: 0.6},
	}
}

func TestRanker_ExcludesCapabilityMismatch(t *testing.T) {
	r := ranking.New(ranking.DefaultWeights(), health.New(), breaker.New(breaker.DefaultConfig(), nil, nil))

	candidates := []models.Provider{{ID: "pA", Capabilities: []models.Capability{models.CapCodeGeneration}}}

	_, err := r.Rank([]models.Capability{models.CapVision}, models.Preferences{}, candidates)
	require.Error(t, err)

	var coreErr *models.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, models.ErrNoEligible, coreErr.Kind)
}

func TestRanker_ExcludesOpenCircuit(t *testing.T) {
	br := breaker.New(breaker.Config{FailureThreshold: 1, SuccessThreshold: 2, ResetTimeout: 0}, nil, nil)
	br.ReportFailure("pA")

	r := ranking.New(ranking.DefaultWeights(), health.New(), br)

	rankings, err := r.Rank(nil, models.Preferences{}, providers())
	require.NoError(t, err)

	for _, rk := range rankings {
		assert.NotEqual(t, "pA", rk.ProviderID)
	}
}

func TestRanker_SortedByScoreDescending(t *testing.T) {
	r := ranking.New(ranking.DefaultWeights(), health.New(), breaker.New(breaker.DefaultConfig(), nil, nil))

	rankings, err := r.Rank(nil, models.Preferences{}, providers())
	require.NoError(t, err)
	require.Len(t, rankings, 2)

	assert.GreaterOrEqual(t, rankings[0].Score, rankings[1].Score)
	assert.Equal(t, "pA", rankings[0].ProviderID, "lower cost/latency/higher quality should rank first")
}

func TestRanker_PreferCostBiasesWeights(t *testing.T) {
	r := ranking.New(ranking.DefaultWeights(), health.New(), breaker.New(breaker.DefaultConfig(), nil, nil))

	rankings, err := r.Rank(nil, models.Preferences{PreferCost: true}, providers())
	require.NoError(t, err)

	assert.Equal(t, "pA", rankings[0].ProviderID)
}

func TestRanker_FallbacksExcludeWinner(t *testing.T) {
	r := ranking.New(ranking.DefaultWeights(), health.New(), breaker.New(breaker.DefaultConfig(), nil, nil))

	rankings, err := r.Rank(nil, models.Preferences{}, providers())
	require.NoError(t, err)

	assert.NotContains(t, rankings[0].Fallbacks, rankings[0].ProviderID)
	assert.Contains(t, rankings[0].Fallbacks, rankings[1].ProviderID)
}
