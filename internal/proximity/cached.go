// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package proximity

import (
	"context"
	"log/slog"
	"time"

	"github.com/wneessen/feature-proximity/internal/cache"
	"github.com/wneessen/feature-proximity/internal/logger"
	"github.com/wneessen/feature-proximity/internal/metrics"
)

// CachedEngine serves plan results from a cache and falls back to its runner on a miss.
// Only successful results are stored.
type CachedEngine struct {
	runner Runner
	cache  cache.Cache
	ttl    time.Duration
	logger *logger.Logger
}

func NewCachedEngine(runner Runner, store cache.Cache, ttl time.Duration, log *logger.Logger) *CachedEngine {
	return &CachedEngine{
		runner: runner,
		cache:  store,
		ttl:    ttl,
		logger: log,
	}
}

func (c *CachedEngine) Run(ctx context.Context, plan QueryPlan) Result {
	start := time.Now()
	key := plan.CacheKey()
	log := c.logger.With(slog.String("dataset", plan.Dataset()))

	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		log.Warn("failed to read result cache", logger.Err(err))
	}
	if ok {
		features, err := DecodeFeatures(data)
		if err == nil {
			metrics.CacheHits.WithLabelValues(plan.Dataset()).Inc()
			log.Debug("serving dataset result from cache", slog.Int("count", len(features)))
			return Result{Dataset: plan.Dataset(), Features: features, Duration: time.Since(start), Cached: true}
		}
		log.Warn("failed to decode cached result", logger.Err(err))
	}
	metrics.CacheMisses.WithLabelValues(plan.Dataset()).Inc()

	result := c.runner.Run(ctx, plan)
	if result.Err != nil {
		return result
	}
	if data, err = EncodeFeatures(result.Features); err != nil {
		log.Warn("failed to encode result for cache", logger.Err(err))
		return result
	}
	if err = c.cache.Set(ctx, key, data, c.ttl); err != nil {
		log.Warn("failed to write result cache", logger.Err(err))
	}
	return result
}
