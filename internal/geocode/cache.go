// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/feature-proximity/internal/cache"
	"github.com/wneessen/feature-proximity/internal/logger"
)

const keyPrefix = "featureproximity:geocode:"

// CachedGeocoder serves address lookups from a result cache. Found and not found locations are
// cached with separate TTLs, failed lookups are not cached. Cache failures are logged but never
// fail a lookup.
type CachedGeocoder struct {
	coder   Geocoder
	store   cache.Cache
	ttlHit  time.Duration
	ttlMiss time.Duration
	logger  *logger.Logger
}

func NewCachedGeocoder(coder Geocoder, store cache.Cache, ttlHit, ttlMiss time.Duration,
	log *logger.Logger,
) *CachedGeocoder {
	return &CachedGeocoder{
		coder:   coder,
		store:   store,
		ttlHit:  ttlHit,
		ttlMiss: ttlMiss,
		logger:  log,
	}
}

func (c *CachedGeocoder) Name() string {
	return "geocoder cache using " + c.coder.Name()
}

func (c *CachedGeocoder) Search(ctx context.Context, address string) (Location, error) {
	key := cacheKey(c.coder.Name(), address)
	log := c.logger.With(slog.String("provider", c.coder.Name()))

	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Warn("failed to read geocoder cache", logger.Err(err))
	}
	if ok {
		var loc Location
		if err = json.Unmarshal(data, &loc); err == nil {
			loc.CacheHit = true
			return loc, nil
		}
		log.Warn("failed to decode cached location", logger.Err(err))
	}

	loc, err := c.coder.Search(ctx, address)
	if err != nil {
		return loc, err
	}

	ttl := c.ttlHit
	if !loc.Found {
		ttl = c.ttlMiss
	}
	if data, err = json.Marshal(loc); err != nil {
		log.Warn("failed to encode location for cache", logger.Err(err))
		return loc, nil
	}
	if err = c.store.Set(ctx, key, data, ttl); err != nil {
		log.Warn("failed to write geocoder cache", logger.Err(err))
	}
	return loc, nil
}

// cacheKey normalizes the address so that differently spaced or cased queries share an entry
func cacheKey(provider, address string) string {
	return keyPrefix + provider + ":" + strings.ToLower(strings.Join(strings.Fields(address), " "))
}
