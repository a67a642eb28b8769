package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	mockadapter "github.com/coreflux/llmorchestrator/internal/adapter/mock"
	openaiadapter "github.com/coreflux/llmorchestrator/internal/adapter/openai"
	"github.com/coreflux/llmorchestrator/internal/api"
	"github.com/coreflux/llmorchestrator/internal/balancer"
	"github.com/coreflux/llmorchestrator/internal/breaker"
	"github.com/coreflux/llmorchestrator/internal/cache"
	"github.com/coreflux/llmorchestrator/internal/catalog"
	"github.com/coreflux/llmorchestrator/internal/config"
	"github.com/coreflux/llmorchestrator/internal/dispatch"
	"github.com/coreflux/llmorchestrator/internal/fanout"
	"github.com/coreflux/llmorchestrator/internal/health"
	"github.com/coreflux/llmorchestrator/internal/models"
	"github.com/coreflux/llmorchestrator/internal/ranking"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration core's HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("configuration error", zap.Error(err))
		os.Exit(exitConfigError)
	}

	healthTracker := health.New()
	circuitRegistry := breaker.New(breaker.Config{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		SuccessThreshold: cfg.Circuit.SuccessThreshold,
		ResetTimeout:     time.Duration(cfg.Circuit.TimeoutMs) * time.Millisecond,
	}, logger, func(dest string, from, to models.CircuitState) {
		logger.Info("circuit transition", zap.String("destination", dest), zap.String("from", string(from)), zap.String("to", string(to)))
	})
	lb := balancer.New(models.Strategy(cfg.LoadBalancer.DefaultStrategy), healthTracker)
	ranker := ranking.New(ranking.Weights{
		Capability: cfg.Ranker.Weights.Capability,
		Cost:       cfg.Ranker.Weights.Cost,
		Latency:    cfg.Ranker.Weights.Latency,
		Health:     cfg.Ranker.Weights.Health,
		Quality:    cfg.Ranker.Weights.Quality,
	}, healthTracker, circuitRegistry)

	providerCatalog := catalog.New()

	adapters := dispatch.Registry{}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		adapters["openai"] = openaiadapter.New(apiKey, logger)
	}
	adapters["mock"] = mockadapter.New(map[string]mockadapter.Script{})

	dispatcher := dispatch.New(dispatch.Config{
		MaxRetries:         cfg.MaxRetries,
		DefaultCallTimeout: time.Duration(cfg.DefaultCallTimeoutMs) * time.Millisecond,
	}, healthTracker, lb, circuitRegistry, adapters)

	fanOut := fanout.New(dispatcher)

	var responseCache *cache.Cache
	if cfg.Redis.Enabled {
		responseCache = cache.New(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, 5*time.Minute, logger)
	} else {
		responseCache = cache.Disabled()
	}

	server := api.NewServer(api.Deps{
		Logger:             logger,
		Catalog:            providerCatalog,
		Ranker:             ranker,
		Health:             healthTracker,
		Balancer:           lb,
		Circuit:            circuitRegistry,
		Dispatcher:         dispatcher,
		FanOut:             fanOut,
		Cache:              responseCache,
		DefaultCallTimeout: time.Duration(cfg.DefaultCallTimeoutMs) * time.Millisecond,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Engine(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("starting orchestrator", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}
