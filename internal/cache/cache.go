// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package cache provides the result cache backends of the feature-proximity engine.
package cache

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/feature-proximity/internal/geometry"
)

// coordPrecision is the precision used to quantize coordinates (0.0001 degrees ≈ 11 m)
const coordPrecision = 1e-4

const keyPrefix = "featureproximity"

// Cache stores encoded query results for a limited time.
type Cache interface {
	// Get returns the value stored for key. The bool is false if the key is unknown or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Key builds the cache key of a dataset query. The center is quantized so that nearby queries
// share a key. Additional parts distinguish otherwise equal queries.
func Key(dataset string, center geometry.Point, radiusMiles float64, parts ...string) string {
	var sb strings.Builder
	sb.WriteString(keyPrefix)
	sb.WriteString(":")
	sb.WriteString(dataset)
	sb.WriteString(fmt.Sprintf(":%d:%d:", quantizeCoord(center.Lat), quantizeCoord(center.Lon)))
	sb.WriteString(strconv.FormatFloat(radiusMiles, 'f', -1, 64))
	for _, part := range parts {
		sb.WriteString(":")
		sb.WriteString(part)
	}
	return sb.String()
}

func quantizeCoord(val float64) int32 {
	return int32(math.Round(val / coordPrecision))
}
