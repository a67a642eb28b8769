// Package entropy scores response text by Shannon entropy over its
// whitespace-tokenized frequency distribution, serving as a cheap,
// provider-agnostic quality proxy.
package entropy

import (
	"math"
	"strings"
)

// Score computes q ∈ [0,1] for text: tokenize by whitespace, compute
// H = -Σ p_i·log2(p_i) over token frequencies, normalize by
// log2(max(2, unique_token_count)). Empty or whitespace-only text scores 0.
// Pure and deterministic: depends only on text.
func Score(text string) float64 {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return 0
	}

	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}

	n := float64(len(tokens))
	var h float64
	for _, c := range counts {
		p := float64(c) / n
		h -= p * math.Log2(p)
	}

	denom := math.Log2(math.Max(2, float64(len(counts))))
	q := h / denom
	if q > 1 {
		q = 1
	}
	if q < 0 {
		q = 0
	}
	return q
}
