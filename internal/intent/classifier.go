// Package intent implements the core's prompt classifier: a pure,
// deterministic, I/O-free function from prompt text to an intent label plus
// the capability set it requires downstream.
package intent

import (
	"sort"
	"strings"

	"github.com/coreflux/llmorchestrator/internal/models"
)

// Result is the classifier's output for a single prompt.
type Result struct {
	Intent               models.Intent
	Confidence           float64
	RequiredCapabilities []models.Capability
	Alternates           []Alternate
}

// Alternate is a secondary intent candidate with its own confidence.
type Alternate struct {
	Intent     models.Intent
	Confidence float64
}

// declaredOrder fixes the tie-break order named in spec §4.2: ties between
// lexicons with equal match counts resolve to whichever intent is declared
// first here.
var declaredOrder = []models.Intent{
	models.IntentCodeGeneration,
	models.IntentReasoningLogic,
	models.IntentCreativeTasks,
	models.IntentSecurityAnalysis,
	models.IntentMathProofs,
	models.IntentMultiModal,
	models.IntentGeneral,
}

var lexicons = map[models.Intent][]string{
	models.IntentCodeGeneration: {
		"code", "function", "python", "golang", "javascript", "typescript",
		"compile", "bug", "refactor", "algorithm", "class", "variable",
		"program", "script", "api", "implement", "debug",
	},
	models.IntentReasoningLogic: {
		"reason", "logic", "deduce", "infer", "why", "explain step by step",
		"chain of thought", "analyze", "conclusion", "premise", "argument",
	},
	models.IntentCreativeTasks: {
		"story", "poem", "creative", "imagine", "write a", "fiction",
		"song", "lyrics", "novel", "character", "plot",
	},
	models.IntentSecurityAnalysis: {
		"vulnerability", "exploit", "cve", "security", "penetration",
		"malware", "attack surface", "threat model", "encrypt", "injection",
	},
	models.IntentMathProofs: {
		"prove", "theorem", "lemma", "equation", "integral", "derivative",
		"mathematical", "proof", "calculus", "algebra",
	},
	models.IntentMultiModal: {
		"image", "picture", "photo", "video", "audio", "vision", "diagram",
		"screenshot", "describe this image",
	},
}

// requiredCapsByIntent is the fixed table mapping intent to capability set.
var requiredCapsByIntent = map[models.Intent][]models.Capability{
	models.IntentCodeGeneration:   {models.CapCodeGeneration},
	models.IntentReasoningLogic:   {models.CapReasoning},
	models.IntentCreativeTasks:    {},
	models.IntentSecurityAnalysis: {models.CapReasoning},
	models.IntentMathProofs:       {models.CapReasoning},
	models.IntentMultiModal:       {models.CapVision},
	models.IntentGeneral:          {},
}

// Classify maps a prompt to an intent, confidence, required capabilities,
// and up to 3 alternates. Deterministic, pure, performs no I/O.
func Classify(prompt string) Result {
	lower := strings.ToLower(prompt)

	type scored struct {
		intent  models.Intent
		matches int
	}
	var candidates []scored
	for _, in := range declaredOrder {
		if in == models.IntentGeneral {
			continue
		}
		matches := 0
		for _, phrase := range lexicons[in] {
			if strings.Contains(lower, phrase) {
				matches++
			}
		}
		if matches > 0 {
			candidates = append(candidates, scored{intent: in, matches: matches})
		}
	}

	if len(candidates) == 0 {
		return Result{
			Intent:               models.IntentGeneral,
			Confidence:           0.5,
			RequiredCapabilities: requiredCapsByIntent[models.IntentGeneral],
		}
	}

	// Stable sort by matches desc, ties broken by declared order (the
	// candidates slice is already in declared order, so a stable sort on
	// matches alone preserves that tie-break).
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].matches > candidates[j].matches
	})

	confidence := func(m int) float64 {
		c := 0.5 + 0.1*float64(m)
		if c > 1.0 {
			c = 1.0
		}
		return c
	}

	primary := candidates[0]
	result := Result{
		Intent:               primary.intent,
		Confidence:           confidence(primary.matches),
		RequiredCapabilities: requiredCapsByIntent[primary.intent],
	}

	for i := 1; i < len(candidates) && i <= 3; i++ {
		result.Alternates = append(result.Alternates, Alternate{
			Intent:     candidates[i].intent,
			Confidence: confidence(candidates[i].matches),
		})
	}

	return result
}
