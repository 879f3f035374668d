// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geocode resolves free-form addresses into query centers.
package geocode

import (
	"context"

	"github.com/wneessen/feature-proximity/internal/geometry"
)

// Location is the result of an address lookup
type Location struct {
	Found       bool           `json:"found"`
	CacheHit    bool           `json:"-"`
	Point       geometry.Point `json:"point"`
	DisplayName string         `json:"display_name,omitempty"`
}

type Geocoder interface {
	Name() string
	Search(ctx context.Context, address string) (Location, error)
}
