package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coreflux/llmorchestrator/internal/adapter"
	mockadapter "github.com/coreflux/llmorchestrator/internal/adapter/mock"
	openaiadapter "github.com/coreflux/llmorchestrator/internal/adapter/openai"
	"github.com/coreflux/llmorchestrator/internal/balancer"
	"github.com/coreflux/llmorchestrator/internal/breaker"
	"github.com/coreflux/llmorchestrator/internal/catalog"
	"github.com/coreflux/llmorchestrator/internal/config"
	"github.com/coreflux/llmorchestrator/internal/dispatch"
	"github.com/coreflux/llmorchestrator/internal/fusion"
	"github.com/coreflux/llmorchestrator/internal/health"
	"github.com/coreflux/llmorchestrator/internal/intent"
	"github.com/coreflux/llmorchestrator/internal/metrics"
	"github.com/coreflux/llmorchestrator/internal/models"
	"github.com/coreflux/llmorchestrator/internal/ranking"
)

// newCompleteCmd builds the one-shot "complete" subcommand: a single
// classify-rank-dispatch-fuse pass against a provider catalog loaded from
// a file, with no HTTP server involved. Its exit codes are the only place
// exitAllShortCirc and exitNoEligible are ever produced.
func newCompleteCmd(configPath *string) *cobra.Command {
	var prompt string
	var providersFile string
	var timeoutMs int

	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Run a single completion against a provider catalog file and print the fused response",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComplete(*configPath, prompt, providersFile, timeoutMs)
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt text to classify, rank, and dispatch (required)")
	cmd.Flags().StringVar(&providersFile, "providers", "", "path to a JSON file containing an array of providers (required)")
	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 0, "overall deadline in milliseconds (defaults to the configured call timeout)")
	cmd.MarkFlagRequired("prompt")
	cmd.MarkFlagRequired("providers")

	return cmd
}

func runComplete(configPath, prompt, providersFile string, timeoutMs int) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(exitConfigError)
	}

	providers, err := loadProviders(providersFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid providers file:", err)
		os.Exit(exitConfigError)
	}

	healthTracker := health.New()
	circuitRegistry := breaker.New(breaker.Config{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		SuccessThreshold: cfg.Circuit.SuccessThreshold,
		ResetTimeout:     time.Duration(cfg.Circuit.TimeoutMs) * time.Millisecond,
	}, logger, nil)
	lb := balancer.New(models.Strategy(cfg.LoadBalancer.DefaultStrategy), healthTracker)
	ranker := ranking.New(ranking.Weights{
		Capability: cfg.Ranker.Weights.Capability,
		Cost:       cfg.Ranker.Weights.Cost,
		Latency:    cfg.Ranker.Weights.Latency,
		Health:     cfg.Ranker.Weights.Health,
		Quality:    cfg.Ranker.Weights.Quality,
	}, healthTracker, circuitRegistry)

	adapters := dispatch.Registry{}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		adapters["openai"] = openaiadapter.New(apiKey, logger)
	}
	adapters["mock"] = mockadapter.New(map[string]mockadapter.Script{})

	dispatcher := dispatch.New(dispatch.Config{
		MaxRetries:         cfg.MaxRetries,
		DefaultCallTimeout: time.Duration(cfg.DefaultCallTimeoutMs) * time.Millisecond,
	}, healthTracker, lb, circuitRegistry, adapters)

	providerCatalog := catalog.New(providers...)

	deadline := time.Now().Add(time.Duration(cfg.DefaultCallTimeoutMs) * time.Millisecond)
	if timeoutMs > 0 {
		deadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	}

	resp, exitCode := complete(context.Background(), dispatcher, ranker, providerCatalog, prompt, deadline)
	if exitCode != exitOK {
		os.Exit(exitCode)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshaling response: %w", err)
	}
	fmt.Println(string(out))
	os.Exit(exitOK)
	return nil
}

// complete runs one classify-rank-dispatch-fuse pass against the top-ranked
// provider and, if that attempt yields no usable response, once against the
// next-ranked alternate. Unlike the public API's completeSingle, it moves to
// the alternate after any failed attempt, not only a short-circuited one,
// and returns exitAllShortCirc when both attempts fail, whatever the cause.
// The returned exit code maps directly to the public configuration
// surface's process exit codes.
func complete(ctx context.Context, dispatcher *dispatch.Dispatcher, ranker *ranking.Ranker, providerCatalog *catalog.Catalog, prompt string, deadline time.Time) (models.FusedResponse, int) {
	classification := intent.Classify(prompt)
	candidates := providerCatalog.List()

	rankings, err := ranker.Rank(classification.RequiredCapabilities, models.Preferences{}, candidates)
	if err != nil {
		if ce, ok := err.(*models.CoreError); ok && ce.Kind == models.ErrNoEligible {
			return models.FusedResponse{}, exitNoEligible
		}
		return models.FusedResponse{}, exitConfigError
	}

	for i := 0; i < len(rankings) && i < 2; i++ {
		provider, err := providerCatalog.Get(rankings[i].ProviderID)
		if err != nil {
			continue
		}
		modelID := ""
		if len(provider.Models) > 0 {
			modelID = provider.Models[0].ID
		}

		start := time.Now()
		tokens := dispatcher.Dispatch(ctx, provider, modelID, prompt, adapter.Params{}, deadline)
		resp := dispatch.Collect(tokens, provider.ID, modelID, start)

		fused, err := fusion.Fuse([]models.Response{resp})
		if err != nil {
			// Neither candidate produced a usable response (short-circuited
			// or otherwise); try the next ranked alternate.
			continue
		}
		metrics.FusionConfidence.WithLabelValues("single").Observe(fused.FusedConfidence)
		return fused, exitOK
	}

	return models.FusedResponse{}, exitAllShortCirc
}

func loadProviders(path string) ([]models.Provider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var providers []models.Provider
	if err := json.Unmarshal(raw, &providers); err != nil {
		return nil, fmt.Errorf("parsing providers file: %w", err)
	}
	return providers, nil
}
