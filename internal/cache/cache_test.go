package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/coreflux/llmorchestrator/internal/cache"
	"github.com/coreflux/llmorchestrator/internal/models"
)

func TestKey_IsStableAcrossProviderOrder(t *testing.T) {
	reqA := models.Request{Prompt: "hi", Providers: []string{"pA", "pB"}, Temperature: 0.5, MaxTokens: 100}
	reqB := models.Request{Prompt: "hi", Providers: []string{"pB", "pA"}, Temperature: 0.5, MaxTokens: 100}

	assert.Equal(t, cache.Key(reqA), cache.Key(reqB))
}

func TestKey_DiffersOnPrompt(t *testing.T) {
	reqA := models.Request{Prompt: "hi", Providers: []string{"pA"}}
	reqB := models.Request{Prompt: "bye", Providers: []string{"pA"}}

	assert.NotEqual(t, cache.Key(reqA), cache.Key(reqB))
}

func TestDisabled_GetAlwaysMisses(t *testing.T) {
	c := cache.Disabled()

	_, ok := c.Get(context.Background(), models.Request{Prompt: "hi"})
	assert.False(t, ok)
}

func TestDisabled_PutIsNoop(t *testing.T) {
	c := cache.Disabled()
	c.Put(context.Background(), models.Request{Prompt: "hi"}, models.FusedResponse{})

	_, ok := c.Get(context.Background(), models.Request{Prompt: "hi"})
	assert.False(t, ok)
}

func TestNew_DisablesWhenRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	c := cache.New(ctx, "127.0.0.1:1", "", 0, time.Minute, nil)

	_, ok := c.Get(context.Background(), models.Request{Prompt: "hi"})
	assert.False(t, ok)
}
