package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreflux/llmorchestrator/internal/adapter/mock"
	"github.com/coreflux/llmorchestrator/internal/api"
	"github.com/coreflux/llmorchestrator/internal/balancer"
	"github.com/coreflux/llmorchestrator/internal/breaker"
	"github.com/coreflux/llmorchestrator/internal/cache"
	"github.com/coreflux/llmorchestrator/internal/catalog"
	"github.com/coreflux/llmorchestrator/internal/dispatch"
	"github.com/coreflux/llmorchestrator/internal/fanout"
	"github.com/coreflux/llmorchestrator/internal/health"
	"github.com/coreflux/llmorchestrator/internal/models"
	"github.com/coreflux/llmorchestrator/internal/ranking"
)

func newTestServer(t *testing.T) *api.Server {
	t.Helper()

	cat := catalog.New()
	cat.Upsert(models.Provider{
		ID:           "mock-provider",
		Capabilities: []models.Capability{models.CapCodeGeneration, models.CapReasoning},
		Endpoints:    []models.Endpoint{{ID: "mock-e1"}},
		Models:       []models.Model{{ID: "m1"}},
		QualityPrior: 0.8,
	})

	h := health.New()
	br := breaker.New(breaker.DefaultConfig(), nil, nil)
	lb := balancer.New(models.StrategyRoundRobin, h)
	r := ranking.New(ranking.DefaultWeights(), h, br)

	ad := mock.New(map[string]mock.Script{"m1": {Tokens: []string{"hello", " world"}}})
	d := dispatch.New(dispatch.DefaultConfig(), h, lb, br, dispatch.Registry{"mock-provider": ad})
	fo := fanout.New(d)

	return api.NewServer(api.Deps{
		Catalog:            cat,
		Ranker:             r,
		Health:             h,
		Balancer:           lb,
		Circuit:            br,
		Dispatcher:         d,
		FanOut:             fo,
		Cache:              cache.Disabled(),
		DefaultCallTimeout: 5 * time.Second,
	})
}

func doJSON(t *testing.T, s *api.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func TestHandleComplete_HappyPath(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/v1/complete", models.Request{Prompt: "write a function"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.FusedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hello world", resp.Text)
}

func TestHandleAutoSelect_DoesNotDispatch(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/v1/auto-select", models.Request{Prompt: "write a function"})
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "selected")
	assert.Contains(t, body, "reason")
}

func TestHandleComplete_UnknownProviderReturnsNotFound(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/v1/complete", models.Request{Prompt: "hi", Providers: []string{"nope"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleHealth_ReportsOKWithNoDegradedProviders(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleReady_NotReadyWithEmptyCatalog(t *testing.T) {
	cat := catalog.New()
	h := health.New()
	br := breaker.New(breaker.DefaultConfig(), nil, nil)
	lb := balancer.New(models.StrategyRoundRobin, h)
	r := ranking.New(ranking.DefaultWeights(), h, br)
	d := dispatch.New(dispatch.DefaultConfig(), h, lb, br, dispatch.Registry{})
	fo := fanout.New(d)

	s := api.NewServer(api.Deps{Catalog: cat, Ranker: r, Health: h, Balancer: lb, Circuit: br, Dispatcher: d, FanOut: fo})

	w := doJSON(t, s, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleUpsertAndRemoveProvider(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPut, "/admin/providers", models.Provider{ID: "new-provider"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/admin/providers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "new-provider")

	w = doJSON(t, s, http.MethodDelete, "/admin/providers/new-provider", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
