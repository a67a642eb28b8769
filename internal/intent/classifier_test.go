package intent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coreflux/llmorchestrator/internal/intent"
	"github.com/coreflux/llmorchestrator/internal/models"
)

func TestClassify_CodeGeneration(t *testing.T) {
	result := intent.Classify("please write a Python function to reverse a string")

	assert.Equal(t, models.IntentCodeGeneration, result.Intent)
	assert.Contains(t, result.RequiredCapabilities, models.CapCodeGeneration)
	assert.GreaterOrEqual(t, result.Confidence, 0.5)
}

func TestClassify_DefaultsToGeneral(t *testing.T) {
	result := intent.Classify("hello there, how is your day going")

	assert.Equal(t, models.IntentGeneral, result.Intent)
	assert.Equal(t, 0.5, result.Confidence)
	assert.Empty(t, result.RequiredCapabilities)
}

func TestClassify_MultiModalRequiresVision(t *testing.T) {
	result := intent.Classify("describe this image for me")

	assert.Equal(t, models.IntentMultiModal, result.Intent)
	assert.Contains(t, result.RequiredCapabilities, models.CapVision)
}

func TestClassify_Deterministic(t *testing.T) {
	prompt := "explain step by step why this proof of the theorem holds, and write code to verify it"

	first := intent.Classify(prompt)
	second := intent.Classify(prompt)

	assert.Equal(t, first, second)
}

func TestClassify_ConfidenceCapsAtOne(t *testing.T) {
	prompt := "code function python golang javascript typescript compile bug refactor algorithm class variable program script api implement debug"

	result := intent.Classify(prompt)

	assert.Equal(t, 1.0, result.Confidence)
}
