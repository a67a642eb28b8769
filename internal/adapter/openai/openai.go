// Package openai implements the adapter.Adapter contract against the
// OpenAI chat completions API via go-openai.
package openai

import (
	"context"
	"errors"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/coreflux/llmorchestrator/internal/adapter"
)

// Client adapts go-openai's streaming chat completions to adapter.Adapter.
type Client struct {
	client *goopenai.Client
	logger *zap.Logger
}

// New returns a Client authenticated with apiKey. logger may be nil.
func New(apiKey string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{client: goopenai.NewClient(apiKey), logger: logger}
}

// Invoke streams a chat completion, translating go-openai's stream events
// and errors into adapter.Token events on the returned channel.
func (c *Client) Invoke(ctx context.Context, model, prompt string, params adapter.Params) (<-chan adapter.Token, error) {
	req := goopenai.ChatCompletionRequest{
		Model: model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(params.Temperature),
		MaxTokens:   params.MaxTokens,
		Stream:      true,
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, classify(err)
	}

	out := make(chan adapter.Token)
	go func() {
		defer close(out)
		defer stream.Close()

		totalTokens := 0
		finishReason := ""

		for {
			resp, err := stream.Recv()
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			if isStreamEOF(err) {
				select {
				case out <- adapter.Token{Kind: adapter.TokenEnd, TotalTokens: totalTokens, FinishReason: finishReason}:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				select {
				case out <- adapter.Token{Kind: adapter.TokenErr, Err: classify(err)}:
				case <-ctx.Done():
				}
				return
			}

			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			if choice.FinishReason != "" {
				finishReason = string(choice.FinishReason)
			}
			if choice.Delta.Content == "" {
				continue
			}
			totalTokens++
			select {
			case out <- adapter.Token{Kind: adapter.TokenText, Text: choice.Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func isStreamEOF(err error) bool {
	return err != nil && err.Error() == "EOF"
}

func classify(err error) *adapter.ClassifiedError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &adapter.ClassifiedError{Class: adapter.ClassTimeout, Message: "openai call deadline exceeded", Cause: err}
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode >= 500:
			return &adapter.ClassifiedError{Class: adapter.ClassUpstream5xx, Message: apiErr.Message, Cause: err}
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests, apiErr.HTTPStatusCode >= 400:
			return &adapter.ClassifiedError{Class: adapter.ClassUpstream4xx, Message: apiErr.Message, Cause: err}
		}
	}

	return &adapter.ClassifiedError{Class: adapter.ClassTransport, Message: "openai transport error", Cause: err}
}
