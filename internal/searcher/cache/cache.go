// Package cache memoises query results per catalog version. Entries hold
// ordered card ids for one page plus the unpaged total; the catalog itself
// resolves ids back to cards, so a cached page is only ever read against the
// version it was computed from.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/query"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "catalog:query:"

// Backend is the key-value surface the cache needs. *pkgredis.Client
// satisfies it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Result is one cached page.
type Result struct {
	Version string   `json:"version"`
	Total   int      `json:"total"`
	IDs     []string `json:"ids"`
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Key derives the cache key for a page of results.
func Key(version string, f query.Filters, offset, limit int) string {
	raw := fmt.Sprintf("%s\x00%s\x00%d\x00%d", version, f.Key(), offset, limit)
	sum := sha256.Sum256([]byte(raw))
	return keyPrefix + hex.EncodeToString(sum[:16])
}

func (c *QueryCache) Get(ctx context.Context, key string) (*Result, bool) {
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.recordMiss()
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Warn("cache entry corrupt", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.recordHit()
	return &res, true
}

func (c *QueryCache) Set(ctx context.Context, key string, res *Result) {
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("failed to marshal cache entry", "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached page for key, or runs compute once across
// concurrent callers and stores its result. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(ctx context.Context, key string, compute func() (*Result, error)) (*Result, bool, error) {
	if res, ok := c.Get(ctx, key); ok {
		return res, true, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		res, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, res)
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Result), false, nil
}

// Invalidate drops every cached page and returns the number removed.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	n, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return n, fmt.Errorf("invalidating query cache: %w", err)
	}
	c.logger.Info("query cache invalidated", "keys_deleted", n)
	return n, nil
}

type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

func (c *QueryCache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

func (c *QueryCache) recordHit() {
	c.hits.Add(1)
	c.metrics.CacheHit()
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	c.metrics.CacheMiss()
}
