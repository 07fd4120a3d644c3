// Package cache keeps search rankings in Redis so repeated queries skip
// postings lookups. Entries are dropped whenever a collection is rebuilt.
package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "rank:"

// Backend is the subset of pkg/redis.Client the cache needs.
type Backend interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type RankingCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64

	// mu orders generation bumps against guarded writes: a ranking is
	// stored only if its collection was not invalidated while it was
	// being computed.
	mu   sync.RWMutex
	gens sync.Map // catalog.Collection -> *atomic.Uint64
}

// New wraps backend. A zero ttl uses the backend default. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *RankingCache {
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     15 * time.Second,
	}
	if m != nil {
		cbCfg.OnStateChange = m.BreakerStateHook()
	}
	return &RankingCache{
		backend: backend,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("ranking-cache", cbCfg),
		metrics: m,
		logger:  slog.Default().With("component", "ranking-cache"),
	}
}

func (c *RankingCache) Get(ctx context.Context, coll catalog.Collection, query string) ([]ranker.ScoredDoc, bool) {
	key := buildKey(coll, query)
	var ranked []ranker.ScoredDoc
	var found bool
	err := c.breaker.Execute(func() error {
		var err error
		found, err = c.backend.GetJSON(ctx, key, &ranked)
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		found = false
	}
	if !found {
		c.misses.Add(1)
		if c.metrics != nil {
			c.metrics.CacheMissesTotal.Inc()
		}
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "collection", coll, "key", key)
	return ranked, true
}

func (c *RankingCache) Set(ctx context.Context, coll catalog.Collection, query string, ranked []ranker.ScoredDoc) {
	c.set(ctx, buildKey(coll, query), ranked)
}

func (c *RankingCache) set(ctx context.Context, key string, ranked []ranker.ScoredDoc) {
	err := c.breaker.Execute(func() error {
		return c.backend.SetJSON(ctx, key, ranked, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// setIfCurrent stores ranked unless coll has been invalidated since gen was
// read.
func (c *RankingCache) setIfCurrent(ctx context.Context, coll catalog.Collection, key string, gen uint64, ranked []ranker.ScoredDoc) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.generation(coll).Load() != gen {
		return false
	}
	c.set(ctx, key, ranked)
	return true
}

func (c *RankingCache) generation(coll catalog.Collection) *atomic.Uint64 {
	g, _ := c.gens.LoadOrStore(coll, new(atomic.Uint64))
	return g.(*atomic.Uint64)
}

// GetOrCompute returns the cached ranking or computes it once for all
// concurrent callers with the same key. The boolean reports a cache hit.
// A ranking computed across an invalidation of coll is returned but not
// stored.
func (c *RankingCache) GetOrCompute(
	ctx context.Context,
	coll catalog.Collection,
	query string,
	compute func() ([]ranker.ScoredDoc, error),
) ([]ranker.ScoredDoc, bool, error) {
	gen := c.generation(coll).Load()
	if ranked, ok := c.Get(ctx, coll, query); ok {
		return ranked, true, nil
	}
	key := buildKey(coll, query)
	val, err, _ := c.group.Do(fmt.Sprintf("%s@%d", key, gen), func() (any, error) {
		ranked, err := compute()
		if err != nil {
			return nil, err
		}
		if !c.setIfCurrent(ctx, coll, key, gen, ranked) {
			c.logger.Debug("discarding ranking computed across invalidation", "collection", coll)
		}
		return ranked, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]ranker.ScoredDoc), false, nil
}

// Invalidate drops every cached ranking of coll. Rankings still being
// computed when it is called are not stored afterwards.
func (c *RankingCache) Invalidate(ctx context.Context, coll catalog.Collection) error {
	c.mu.Lock()
	c.generation(coll).Add(1)
	c.mu.Unlock()

	pattern := keyPrefix + string(coll) + ":*"
	deleted, err := c.backend.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating %s rankings: %w", coll, err)
	}
	c.logger.Info("cache invalidated", "collection", coll, "keys_deleted", deleted)
	return nil
}

// HandleIndexComplete invalidates the rebuilt collection for each
// index-complete event.
func (c *RankingCache) HandleIndexComplete() kafka.MessageHandler {
	return func(ctx context.Context, _, value []byte) error {
		ev, err := kafka.DecodeJSON[indexer.IndexCompleteEvent](value)
		if err != nil {
			c.logger.Warn("dropping malformed index-complete event", "error", err)
			return nil
		}
		if !ev.Collection.Valid() {
			c.logger.Warn("index-complete event for unknown collection", "collection", ev.Collection)
			return nil
		}
		return c.Invalidate(ctx, ev.Collection)
	}
}

func (c *RankingCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState reports whether Redis calls are currently short-circuited.
func (c *RankingCache) BreakerState() resilience.State {
	return c.breaker.GetState()
}

func buildKey(coll catalog.Collection, query string) string {
	hash := sha256.Sum256([]byte(query))
	return fmt.Sprintf("%s%s:%x", keyPrefix, coll, hash[:16])
}
