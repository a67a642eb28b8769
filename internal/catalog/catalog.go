// Package catalog holds the in-memory description of providers, models, and
// their capability/cost/latency priors. Readers never block each other:
// the catalog keeps a single atomic pointer to an immutable snapshot map and
// every admin write builds a fresh snapshot before swapping it in, so a
// consumer of List/Get never observes a half-applied upsert.
package catalog

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/coreflux/llmorchestrator/internal/models"
)

type snapshot map[string]models.Provider

// Catalog is the admin-writable, concurrently-readable provider registry.
type Catalog struct {
	mu      sync.Mutex // serializes writers only; readers never take it
	current atomic.Value
}

// New returns an empty catalog, optionally seeded with providers.
func New(seed ...models.Provider) *Catalog {
	c := &Catalog{}
	snap := make(snapshot, len(seed))
	for _, p := range seed {
		snap[p.ID] = p
	}
	c.current.Store(snap)
	return c
}

// List returns a consistent snapshot of all providers, sorted by ID for
// deterministic iteration.
func (c *Catalog) List() []models.Provider {
	snap := c.current.Load().(snapshot)
	out := make([]models.Provider, 0, len(snap))
	for _, p := range snap {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get looks up a single provider by ID.
func (c *Catalog) Get(id string) (models.Provider, error) {
	snap := c.current.Load().(snapshot)
	p, ok := snap[id]
	if !ok {
		return models.Provider{}, models.NewError(models.ErrUnknownProvider, "unknown provider: "+id, nil)
	}
	return p, nil
}

// Upsert atomically replaces (or inserts) a provider entry. Concurrent
// upserts are serialized; upsert(p); upsert(p) is equivalent to a single
// upsert since the snapshot map is keyed by provider ID.
func (c *Catalog) Upsert(p models.Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.current.Load().(snapshot)
	next := make(snapshot, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[p.ID] = p
	c.current.Store(next)
}

// Remove atomically deletes a provider entry. A no-op if it does not exist.
func (c *Catalog) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.current.Load().(snapshot)
	if _, ok := old[id]; !ok {
		return
	}
	next := make(snapshot, len(old)-1)
	for k, v := range old {
		if k != id {
			next[k] = v
		}
	}
	c.current.Store(next)
}
