// Package mock provides a deterministic adapter.Adapter implementation for
// tests: no network I/O, scripted token sequences or errors per model ID.
package mock

import (
	"context"
	"strings"
	"time"

	"github.com/coreflux/llmorchestrator/internal/adapter"
)

// Script is a scripted response for one model ID: either a sequence of
// tokens to emit, or an error to fail with. Delay, if non-zero, is waited
// before each token to simulate latency.
type Script struct {
	Tokens []string
	Err    *adapter.ClassifiedError
	Delay  time.Duration
}

// Adapter replays Scripts keyed by model ID. Models with no script echo the
// prompt back, split on whitespace, as a trivial default.
type Adapter struct {
	Scripts map[string]Script
}

// New returns an Adapter with the given scripts.
func New(scripts map[string]Script) *Adapter {
	return &Adapter{Scripts: scripts}
}

func (a *Adapter) Invoke(ctx context.Context, model, prompt string, params adapter.Params) (<-chan adapter.Token, error) {
	script, ok := a.Scripts[model]
	if !ok {
		script = Script{Tokens: strings.Fields(prompt)}
	}

	out := make(chan adapter.Token)
	go func() {
		defer close(out)

		if script.Err != nil {
			select {
			case out <- adapter.Token{Kind: adapter.TokenErr, Err: script.Err}:
			case <-ctx.Done():
			}
			return
		}

		for _, tok := range script.Tokens {
			if script.Delay > 0 {
				select {
				case <-time.After(script.Delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- adapter.Token{Kind: adapter.TokenText, Text: tok}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case out <- adapter.Token{Kind: adapter.TokenEnd, TotalTokens: len(script.Tokens), FinishReason: "stop"}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}
