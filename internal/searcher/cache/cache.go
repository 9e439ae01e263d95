// Package cache memoises strategy results in Redis, keyed by the corpus
// fingerprint and the strategy options so a changed corpus or retrieval
// config never serves stale results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/model"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/resilience"
)

const keyPrefix = "strategy:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Executor runs one strategy.
type Executor interface {
	Execute(ctx context.Context, tool model.Tool, query string) ([]model.SearchResult, error)
}

// StrategyCache wraps an Executor. Store failures degrade to a direct call;
// after repeated failures the breaker stops touching the store at all.
type StrategyCache struct {
	next        Executor
	store       Store
	fingerprint string
	options     string
	ttl         time.Duration
	group       singleflight.Group
	breaker     *resilience.CircuitBreaker
	metrics     *metrics.Metrics
	logger      *slog.Logger
	hits        atomic.Int64
	misses      atomic.Int64
}

// Option configures a StrategyCache.
type Option func(*StrategyCache)

// WithBreaker shares cb across caches. Caches are built per corpus, so a
// long-lived process passes one breaker to all of them to keep the store's
// health across runs.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *StrategyCache) { c.breaker = cb }
}

// WithOptionsDigest keys results by the digest of the options the wrapped
// executor was built with, so executors with different TopK, BM25 or
// fusion settings never share entries.
func WithOptionsDigest(digest string) Option {
	return func(c *StrategyCache) { c.options = digest }
}

// NewBreaker returns the breaker guarding the cache store. m may be nil.
func NewBreaker(m *metrics.Metrics) *resilience.CircuitBreaker {
	cfg := resilience.CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
		IsFailure:        resilience.IgnoreCancellation,
	}
	if m != nil {
		cfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return resilience.NewCircuitBreaker("strategy-cache", cfg)
}

// New returns a cache in front of next for the corpus identified by
// fingerprint. m may be nil.
func New(next Executor, store Store, fingerprint string, ttl time.Duration, m *metrics.Metrics, opts ...Option) *StrategyCache {
	c := &StrategyCache{
		next:        next,
		store:       store,
		fingerprint: fingerprint,
		ttl:         ttl,
		metrics:     m,
		logger:      slog.Default().With("component", "strategy-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = NewBreaker(m)
	}
	return c
}

// Execute returns the cached results for (tool, query) or computes and
// stores them. Concurrent identical calls share one computation. Queries
// that parse to the same plan share an entry; the returned results carry
// the caller's query.
func (c *StrategyCache) Execute(ctx context.Context, tool model.Tool, query string) ([]model.SearchResult, error) {
	key := c.buildKey(tool, query)
	if results, ok := c.get(ctx, key); ok {
		return stamp(results, query), nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if results, ok := c.lookup(ctx, key); ok {
			return results, nil
		}
		results, err := c.next.Execute(ctx, tool, query)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, results)
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	return stamp(val.([]model.SearchResult), query), nil
}

// stamp copies results with SearchQuery set to query. The input may be
// shared with other singleflight callers and is not modified.
func stamp(results []model.SearchResult, query string) []model.SearchResult {
	out := make([]model.SearchResult, len(results))
	for i, r := range results {
		r.SearchQuery = query
		out[i] = r
	}
	return out
}

// Invalidate removes every cached strategy result.
func (c *StrategyCache) Invalidate(ctx context.Context) error {
	deleted, err := Clear(ctx, c.store)
	if err != nil {
		return err
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Clear removes every cached strategy result from store, whatever corpus
// it was computed for, and returns the number of keys deleted.
func Clear(ctx context.Context, store Store) (int64, error) {
	deleted, err := store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating strategy cache: %w", err)
	}
	return deleted, nil
}

func (c *StrategyCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// get is lookup plus hit/miss accounting.
func (c *StrategyCache) get(ctx context.Context, key string) ([]model.SearchResult, bool) {
	results, ok := c.lookup(ctx, key)
	if ok {
		c.hits.Add(1)
		if c.metrics != nil {
			c.metrics.CacheHitsTotal.Inc()
		}
		return results, true
	}
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
	return nil, false
}

func (c *StrategyCache) lookup(ctx context.Context, key string) ([]model.SearchResult, bool) {
	var data string
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if data == "" {
		return nil, false
	}
	var results []model.SearchResult
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.logger.Warn("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return results, true
}

func (c *StrategyCache) set(ctx context.Context, key string, results []model.SearchResult) {
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// buildKey hashes the parsed query rather than its text. The phrase keeps
// word order, which direct matching scores on; exclusions are a set.
func (c *StrategyCache) buildKey(tool model.Tool, query string) string {
	plan := parser.Parse(query)
	exclude := slices.Clone(plan.ExcludeTerms)
	slices.Sort(exclude)
	exclude = slices.Compact(exclude)
	normalized := fmt.Sprintf("terms=%s|phrase=%s|not=%s",
		strings.Join(plan.Terms, " "), plan.Phrase, strings.Join(exclude, " "))
	raw := fmt.Sprintf("%s|%s|%s|%s", c.fingerprint, c.options, tool, normalized)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, tool, hash[:16])
}
