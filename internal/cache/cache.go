// Package cache implements the response cache the teacher's router left as
// unfinished hooks (checkCache/cacheResponse/warmupCache): a real
// redis-backed cache keyed by a hash of the request shape, with a
// cleanly-disabled no-op mode when redis is unset or unreachable.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/coreflux/llmorchestrator/internal/metrics"
	"github.com/coreflux/llmorchestrator/internal/models"
)

// Cache fronts the public API's complete() path with a redis-backed
// lookup. A nil *redis.Client (Enabled == false, or a failed ping at
// construction) makes every operation a clean no-op.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// New connects to addr/db with the given password and pings once to
// confirm reachability. On any connection failure it returns a disabled
// Cache rather than an error — caching is an optimization, not a
// dependency the core should fail startup over.
func New(ctx context.Context, addr, password string, db int, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("response cache disabled: redis unreachable", zap.Error(err))
		return &Cache{enabled: false}
	}

	return &Cache{client: client, ttl: ttl, logger: logger, enabled: true}
}

// Disabled returns a Cache that never stores or returns anything.
func Disabled() *Cache {
	return &Cache{enabled: false}
}

type cacheKey struct {
	Prompt      string   `json:"prompt"`
	Providers   []string `json:"providers"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
}

// Key derives a deterministic cache key from the request fields that
// affect its answer. Provider order does not affect the key.
func Key(req models.Request) string {
	providers := append([]string(nil), req.Providers...)
	sort.Strings(providers)

	k := cacheKey{
		Prompt:      req.Prompt,
		Providers:   providers,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	raw, _ := json.Marshal(k)
	sum := sha256.Sum256(raw)
	return "orchestrator:complete:" + hex.EncodeToString(sum[:])
}

// Get returns a previously cached FusedResponse for req, if present.
func (c *Cache) Get(ctx context.Context, req models.Request) (models.FusedResponse, bool) {
	if !c.enabled {
		return models.FusedResponse{}, false
	}

	raw, err := c.client.Get(ctx, Key(req)).Bytes()
	if err != nil {
		metrics.CacheMisses.Inc()
		return models.FusedResponse{}, false
	}

	var resp models.FusedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.logger.Warn("dropping corrupt cache entry", zap.Error(err))
		metrics.CacheMisses.Inc()
		return models.FusedResponse{}, false
	}

	metrics.CacheHits.Inc()
	return resp, true
}

// Put stores resp under req's derived key with the cache's configured TTL.
func (c *Cache) Put(ctx context.Context, req models.Request, resp models.FusedResponse) {
	if !c.enabled {
		return
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, Key(req), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache response", zap.Error(err))
	}
}

// Seed is one pre-populated cache entry for Warmup.
type Seed struct {
	Request  models.Request
	Response models.FusedResponse
}

// Warmup is a hook for pre-populating the cache at startup from a fixed
// set of frequent requests. No-op when the cache is disabled or seeds is
// empty.
func (c *Cache) Warmup(ctx context.Context, seeds []Seed) {
	if !c.enabled {
		return
	}
	for _, s := range seeds {
		c.Put(ctx, s.Request, s.Response)
	}
}
