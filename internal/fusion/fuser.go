// Package fusion implements entropy-weighted consensus selection across
// multiple provider responses to the same prompt.
package fusion

import (
	"github.com/coreflux/llmorchestrator/internal/entropy"
	"github.com/coreflux/llmorchestrator/internal/models"
)

// epsilon avoids zero weights when every response scores 0 entropy.
const epsilon = 1e-6

// Fuse drops non-success responses, scores each survivor with the entropy
// scorer, weights them by (q_i+ε)/Σ(q_j+ε), and takes the highest-weighted
// response's text verbatim as the fused text — no token-level merge across
// responses. Returns models.ErrFusionEmpty if no response succeeded.
func Fuse(responses []models.Response) (models.FusedResponse, error) {
	successes := make([]models.Response, 0, len(responses))
	for _, r := range responses {
		if r.Outcome == models.OutcomeSuccess {
			successes = append(successes, r)
		}
	}

	if len(successes) == 0 {
		return models.FusedResponse{}, models.NewError(models.ErrFusionEmpty, "no successful responses to fuse", nil)
	}

	scores := make([]float64, len(successes))
	var sum float64
	for i, r := range successes {
		q := entropy.Score(r.Text)
		scores[i] = q
		sum += q + epsilon
	}

	weights := make([]float64, len(successes))
	contributions := make(map[string]float64, len(successes))
	winner := 0
	var fusedConfidence float64
	for i, r := range successes {
		w := (scores[i] + epsilon) / sum
		weights[i] = w
		contributions[r.ProviderID] = w
		fusedConfidence += w * scores[i]
		if w > weights[winner] {
			winner = i
		}
	}

	return models.FusedResponse{
		Text:            successes[winner].Text,
		Contributions:   contributions,
		FusedConfidence: fusedConfidence,
		Constituents:    responses,
	}, nil
}
