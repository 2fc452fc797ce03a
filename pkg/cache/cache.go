package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
)

// IdentityCache stores identities keyed by user id.
//
// Writes are guarded by a generation that every Invalidate advances. A
// reader takes Generation before loading from the store and hands it to
// Fill, which drops the identity if an invalidation happened in between.
type IdentityCache interface {
	Get(ctx context.Context, userID string) (auth.Identity, bool)
	Generation(ctx context.Context) uint64
	Fill(ctx context.Context, identity auth.Identity, generation uint64) bool
	Invalidate(ctx context.Context, userID string)
}

// LRU is a size bounded in-process cache with per entry expiry. It is only
// coherent for a single instance.
type LRU struct {
	lru        *expirable.LRU[string, auth.Identity]
	metrics    *observability.Metrics
	mu         sync.Mutex
	generation uint64
}

// NewLRU creates an LRU cache holding at most size identities for ttl
func NewLRU(size int, ttl time.Duration, metrics *observability.Metrics) *LRU {
	if size <= 0 {
		size = 1
	}
	return &LRU{
		lru:     expirable.NewLRU[string, auth.Identity](size, nil, ttl),
		metrics: metrics,
	}
}

func (c *LRU) Get(_ context.Context, userID string) (auth.Identity, bool) {
	identity, ok := c.lru.Get(userID)
	if ok {
		recordHit(c.metrics, "lru")
	} else {
		recordMiss(c.metrics)
	}
	return identity, ok
}

func (c *LRU) Generation(context.Context) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *LRU) Fill(_ context.Context, identity auth.Identity, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return false
	}
	c.lru.Add(identity.UserID, identity)
	return true
}

func (c *LRU) Invalidate(_ context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.lru.Remove(userID)
}

// Len returns the number of cached identities
func (c *LRU) Len() int {
	return c.lru.Len()
}

// Noop never stores anything
type Noop struct{}

func (Noop) Get(context.Context, string) (auth.Identity, bool) { return auth.Identity{}, false }
func (Noop) Generation(context.Context) uint64                 { return 0 }
func (Noop) Fill(context.Context, auth.Identity, uint64) bool  { return false }
func (Noop) Invalidate(context.Context, string)                {}

func recordHit(metrics *observability.Metrics, backend string) {
	if metrics != nil {
		metrics.IdentityCacheHitsTotal.WithLabelValues(backend).Inc()
	}
}

func recordMiss(metrics *observability.Metrics) {
	if metrics != nil {
		metrics.IdentityCacheMissesTotal.Inc()
	}
}
