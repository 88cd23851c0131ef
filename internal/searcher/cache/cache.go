// Package cache keeps search results in Redis keyed by index generation, so
// a rebuilt index never serves stale hits.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher/result"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/resilience"
)

const keyPrefix = "codesearch:"

// Store is the key/value backend; *redis.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type entry struct {
	Results []result.Result `json:"results"`
	Total   int             `json:"total"`
}

// QueryCache is safe for concurrent use. Backend failures count against a
// circuit breaker; while it is open queries go straight to the index.
type QueryCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store: store,
		ttl:   ttl,
		breaker: resilience.NewCircuitBreaker("result-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     10 * time.Second,
			OnStateChange: func(name string, s resilience.State) {
				m.BreakerState(name, int(s))
			},
		}),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Key builds the cache key for one query against one index generation.
func Key(indexID, mode, pattern string, maxHits int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d", mode, pattern, maxHits)))
	return fmt.Sprintf("%s%s:%x", keyPrefix, indexID, sum[:16])
}

// GetOrCompute returns the cached container for key or computes, stores and
// returns a new one. Concurrent misses for the same key compute once.
func (c *QueryCache) GetOrCompute(ctx context.Context, key string, compute func() (*result.Container, error)) (*result.Container, bool, error) {
	if res, ok := c.get(ctx, key); ok {
		return res, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		if res, ok := c.get(ctx, key); ok {
			return res, nil
		}
		res, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, res)
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*result.Container), false, nil
}

// Invalidate drops every cached query of one index generation.
func (c *QueryCache) Invalidate(ctx context.Context, indexID string) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+indexID+":*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "index_id", indexID, "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) get(ctx context.Context, key string) (*result.Container, bool) {
	var (
		data  string
		found bool
	)
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.store.Get(ctx, key)
		return err
	})
	if err != nil {
		c.logger.Debug("cache get failed", "key", key, "error", err)
	}
	if err != nil || !found {
		c.miss()
		return nil, false
	}
	var e entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		c.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheLookup(true)
	return result.FromResults(e.Results, e.Total), true
}

func (c *QueryCache) set(ctx context.Context, key string, res *result.Container) {
	data, err := json.Marshal(entry{Results: res.Results(), Total: res.TotalMatches()})
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Debug("cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheLookup(false)
}
