package search

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/yuqi-zhai/passagerank/internal/bm25"
	"github.com/yuqi-zhai/passagerank/pkg/config"
	pkgredis "github.com/yuqi-zhai/passagerank/pkg/redis"
)

const cacheKeyPrefix = "search:"

// QueryCache stores top-K results in Redis keyed by the full evaluation
// input (query, mode, k, and BM25 parameters, so a parameter update never
// serves stale rankings). Concurrent identical queries are collapsed with
// singleflight.
type QueryCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewQueryCache wraps a Redis client as a query cache.
func NewQueryCache(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached results for the evaluation input, if present.
func (c *QueryCache) Get(ctx context.Context, query string, mode Mode, k int, params bm25.Params) ([]Result, bool) {
	key := c.buildKey(query, mode, k, params)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var results []Result
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return results, true
}

// Set stores results for the evaluation input with the configured TTL.
func (c *QueryCache) Set(ctx context.Context, query string, mode Mode, k int, params bm25.Params, results []Result) {
	key := c.buildKey(query, mode, k, params)
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached results or computes and stores them,
// collapsing concurrent identical evaluations into one. The bool reports a
// cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	mode Mode,
	k int,
	params bm25.Params,
	computeFn func() ([]Result, error),
) ([]Result, bool, error) {
	if results, ok := c.Get(ctx, query, mode, k, params); ok {
		return results, true, nil
	}
	key := c.buildKey(query, mode, k, params)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if results, ok := c.Get(ctx, query, mode, k, params); ok {
			return results, nil
		}
		results, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, mode, k, params, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]Result), false, nil
}

// HitRate returns cache hits and misses since startup.
func (c *QueryCache) HitRate() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) buildKey(query string, mode Mode, k int, params bm25.Params) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%g|%g", query, mode, k, params.K1, params.B)))
	return fmt.Sprintf("%s%x", cacheKeyPrefix, sum[:16])
}
