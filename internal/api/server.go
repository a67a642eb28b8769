// Package api exposes the core's three public entry points — complete,
// stream, and auto-select — plus health/readiness/metrics, over HTTP via
// gin.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/coreflux/llmorchestrator/internal/adapter"
	"github.com/coreflux/llmorchestrator/internal/balancer"
	"github.com/coreflux/llmorchestrator/internal/breaker"
	"github.com/coreflux/llmorchestrator/internal/cache"
	"github.com/coreflux/llmorchestrator/internal/catalog"
	"github.com/coreflux/llmorchestrator/internal/dispatch"
	"github.com/coreflux/llmorchestrator/internal/fanout"
	"github.com/coreflux/llmorchestrator/internal/fusion"
	"github.com/coreflux/llmorchestrator/internal/health"
	"github.com/coreflux/llmorchestrator/internal/intent"
	"github.com/coreflux/llmorchestrator/internal/metrics"
	"github.com/coreflux/llmorchestrator/internal/middleware"
	"github.com/coreflux/llmorchestrator/internal/models"
	"github.com/coreflux/llmorchestrator/internal/ranking"
)

// Server wires the core's subsystems behind gin routes.
type Server struct {
	engine *gin.Engine
	logger *zap.Logger

	catalog    *catalog.Catalog
	ranker     *ranking.Ranker
	health     *health.Tracker
	balancer   *balancer.LoadBalancer
	circuit    *breaker.Registry
	dispatcher *dispatch.Dispatcher
	fanout     *fanout.FanOut
	cache      *cache.Cache

	defaultCallTimeout time.Duration
	rateLimitPerMinute int
}

// Deps bundles the wired subsystem instances a Server needs. Constructed
// at startup (cmd/orchestrator) and passed in whole — the server itself
// never constructs its dependencies.
type Deps struct {
	Logger             *zap.Logger
	Catalog            *catalog.Catalog
	Ranker             *ranking.Ranker
	Health             *health.Tracker
	Balancer           *balancer.LoadBalancer
	Circuit            *breaker.Registry
	Dispatcher         *dispatch.Dispatcher
	FanOut             *fanout.FanOut
	Cache              *cache.Cache
	DefaultCallTimeout time.Duration
	RateLimitPerMinute int
}

// NewServer builds a gin engine with the full middleware chain and routes
// per the public API contract, wired to deps.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Cache == nil {
		deps.Cache = cache.Disabled()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery(deps.Logger))
	engine.Use(middleware.Logger(deps.Logger))
	engine.Use(middleware.CORS())
	engine.Use(middleware.Metrics())
	engine.Use(middleware.RateLimit(deps.RateLimitPerMinute))

	s := &Server{
		engine:             engine,
		logger:             deps.Logger,
		catalog:            deps.Catalog,
		ranker:             deps.Ranker,
		health:             deps.Health,
		balancer:           deps.Balancer,
		circuit:            deps.Circuit,
		dispatcher:         deps.Dispatcher,
		fanout:             deps.FanOut,
		cache:              deps.Cache,
		defaultCallTimeout: deps.DefaultCallTimeout,
		rateLimitPerMinute: deps.RateLimitPerMinute,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ready", s.handleReady)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/complete", s.handleComplete)
		v1.POST("/stream", s.handleStream)
		v1.POST("/auto-select", s.handleAutoSelect)
	}

	admin := s.engine.Group("/admin")
	{
		admin.GET("/providers", s.handleListProviders)
		admin.PUT("/providers", s.handleUpsertProvider)
		admin.DELETE("/providers/:id", s.handleRemoveProvider)
	}
}

// Engine exposes the underlying gin engine, e.g. for httptest or Run.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) handleComplete(c *gin.Context) {
	var req models.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.NewError(models.ErrInvalidRequest, err.Error(), nil)})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	if cached, ok := s.cache.Get(c.Request.Context(), req); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	resp, err := s.complete(c.Request.Context(), req)
	if err != nil {
		s.logger.Error("complete failed", zap.String("request_id", req.ID), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err, "request_id": req.ID})
		return
	}

	s.cache.Put(c.Request.Context(), req, resp)
	c.JSON(http.StatusOK, resp)
}

// complete implements PublicAPI.complete: single top-ranked provider
// unless the request explicitly lists providers, in which case it fans out
// with mode "all" and fuses.
func (s *Server) complete(ctx context.Context, req models.Request) (models.FusedResponse, error) {
	classification := intent.Classify(req.Prompt)
	requiredCaps := req.RequiredCapabilities
	if len(requiredCaps) == 0 {
		requiredCaps = classification.RequiredCapabilities
	}

	candidates, err := s.candidateProviders(req)
	if err != nil {
		return models.FusedResponse{}, err
	}

	rankings, err := s.ranker.Rank(requiredCaps, req.Preferences, candidates)
	if err != nil {
		return models.FusedResponse{}, err
	}

	deadline := deadlineFor(req, s.defaultCallTimeout)

	if len(req.Providers) > 1 {
		calls := make([]fanout.Call, 0, len(rankings))
		for _, rk := range rankings {
			p, err := s.catalog.Get(rk.ProviderID)
			if err != nil {
				continue
			}
			calls = append(calls, fanout.Call{Provider: p, ModelID: firstModelID(p), Deadline: deadline})
		}
		result := s.fanout.Run(ctx, calls, req.Prompt, paramsFor(req), deadline, models.FanOutAll, 0)
		return observeFusion(string(models.FanOutAll), fusion.Fuse(result.Responses))
	}

	return s.completeSingle(ctx, rankings, req, deadline)
}

// completeSingle dispatches the top-ranked provider, retrying the next
// alternate exactly once if the first short-circuits (per the error
// handling design's ShortCircuited rule).
func (s *Server) completeSingle(ctx context.Context, rankings []models.Ranking, req models.Request, deadline time.Time) (models.FusedResponse, error) {
	for i := 0; i < len(rankings) && i < 2; i++ {
		provider, err := s.catalog.Get(rankings[i].ProviderID)
		if err != nil {
			continue
		}
		start := time.Now()
		tokens := s.dispatcher.Dispatch(ctx, provider, firstModelID(provider), req.Prompt, paramsFor(req), deadline)
		resp := dispatch.Collect(tokens, provider.ID, firstModelID(provider), start)
		if resp.Outcome != models.OutcomeSuccess && resp.Error != nil && resp.Error.Kind == models.ErrShortCircuited {
			continue
		}
		return observeFusion("single", fusion.Fuse([]models.Response{resp}))
	}
	return models.FusedResponse{}, models.NewError(models.ErrShortCircuited, "top-ranked alternate also short-circuited", nil)
}

// observeFusion records the fused confidence of a successful fusion into
// the fusion_confidence histogram before returning it unchanged.
func observeFusion(mode string, resp models.FusedResponse, err error) (models.FusedResponse, error) {
	if err == nil {
		metrics.FusionConfidence.WithLabelValues(mode).Observe(resp.FusedConfidence)
	}
	return resp, err
}

func (s *Server) handleStream(c *gin.Context) {
	var req models.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.NewError(models.ErrInvalidRequest, err.Error(), nil)})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	classification := intent.Classify(req.Prompt)
	requiredCaps := req.RequiredCapabilities
	if len(requiredCaps) == 0 {
		requiredCaps = classification.RequiredCapabilities
	}

	candidates, err := s.candidateProviders(req)
	if err != nil {
		c.SSEvent("error", gin.H{"kind": err})
		return
	}
	rankings, err := s.ranker.Rank(requiredCaps, req.Preferences, candidates)
	if err != nil {
		c.SSEvent("error", gin.H{"kind": err})
		return
	}

	provider, err := s.catalog.Get(rankings[0].ProviderID)
	if err != nil {
		c.SSEvent("error", gin.H{"kind": models.ErrUnknownProvider})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	deadline := deadlineFor(req, s.defaultCallTimeout)
	start := time.Now()
	modelID := firstModelID(provider)
	tokens := s.dispatcher.Dispatch(c.Request.Context(), provider, modelID, req.Prompt, paramsFor(req), deadline)

	totalTokens := 0
	outcome := models.OutcomeSuccess
	var terminalErr *models.CoreError

	for tok := range tokens {
		switch tok.Kind {
		case adapter.TokenText:
			c.SSEvent("token", gin.H{"text": tok.Text})
			c.Writer.Flush()
		case adapter.TokenEnd:
			totalTokens = tok.TotalTokens
		case adapter.TokenErr:
			outcome = models.OutcomeError
			terminalErr = models.NewError(classifyErrKind(tok.Err), tok.Err.Message, tok.Err.Cause)
		}
	}

	if terminalErr != nil {
		c.SSEvent("error", gin.H{"kind": terminalErr.Kind, "message": terminalErr.Message})
		return
	}
	c.SSEvent("end", gin.H{"outcome": outcome, "total_tokens": totalTokens, "elapsed_ms": time.Since(start).Milliseconds()})
}

func (s *Server) handleAutoSelect(c *gin.Context) {
	var req models.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.NewError(models.ErrInvalidRequest, err.Error(), nil)})
		return
	}

	classification := intent.Classify(req.Prompt)
	requiredCaps := req.RequiredCapabilities
	if len(requiredCaps) == 0 {
		requiredCaps = classification.RequiredCapabilities
	}

	candidates, err := s.candidateProviders(req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err})
		return
	}

	rankings, err := s.ranker.Rank(requiredCaps, req.Preferences, candidates)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"selected":   rankings[0],
		"alternates": rankings[1:],
		"reason":     rankings[0].Reason,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	providers := s.catalog.List()
	out := make(gin.H, len(providers))
	status := "ok"
	for _, p := range providers {
		degraded := false
		for _, e := range p.Endpoints {
			snap := s.health.Snapshot(e.ID)
			if !snap.Healthy {
				degraded = true
			}
		}
		circuitState := s.circuit.State(p.ID)
		if circuitState == models.CircuitOpen {
			status = "degraded"
		}
		out[p.ID] = gin.H{
			"circuit_state": circuitState,
			"degraded":      degraded,
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "providers": out})
}

func (s *Server) handleReady(c *gin.Context) {
	if len(s.catalog.List()) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "empty catalog"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleListProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": s.catalog.List()})
}

func (s *Server) handleUpsertProvider(c *gin.Context) {
	var p models.Provider
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.catalog.Upsert(p)
	c.JSON(http.StatusOK, gin.H{"provider": p})
}

func (s *Server) handleRemoveProvider(c *gin.Context) {
	s.catalog.Remove(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) candidateProviders(req models.Request) ([]models.Provider, error) {
	if len(req.Providers) == 0 {
		return s.catalog.List(), nil
	}
	out := make([]models.Provider, 0, len(req.Providers))
	for _, id := range req.Providers {
		p, err := s.catalog.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func firstModelID(p models.Provider) string {
	if len(p.Models) == 0 {
		return ""
	}
	return p.Models[0].ID
}

func paramsFor(req models.Request) adapter.Params {
	return adapter.Params{Temperature: req.Temperature, MaxTokens: req.MaxTokens}
}

func deadlineFor(req models.Request, defaultTimeout time.Duration) time.Time {
	if req.DeadlineMs > 0 {
		return time.Now().Add(time.Duration(req.DeadlineMs) * time.Millisecond)
	}
	return time.Now().Add(defaultTimeout)
}

func classifyErrKind(ce *adapter.ClassifiedError) models.ErrorKind {
	switch ce.Class {
	case adapter.ClassTimeout:
		return models.ErrTimeout
	case adapter.ClassUpstream5xx:
		return models.ErrUpstream5xx
	case adapter.ClassUpstream4xx:
		return models.ErrUpstream4xx
	case adapter.ClassInvalidRequest:
		return models.ErrInvalidRequest
	case adapter.ClassShortCircuited:
		return models.ErrShortCircuited
	default:
		return models.ErrTransport
	}
}

func statusFor(err error) int {
	ce, ok := err.(*models.CoreError)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ce.Kind {
	case models.ErrUnknownProvider, models.ErrNoEligible:
		return http.StatusNotFound
	case models.ErrInvalidRequest:
		return http.StatusBadRequest
	case models.ErrShortCircuited, models.ErrAllUnhealthy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
