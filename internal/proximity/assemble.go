// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package proximity

import (
	"cmp"
	"slices"

	"github.com/wneessen/feature-proximity/internal/attrmap"
	"github.com/wneessen/feature-proximity/internal/geometry"
)

// AssembleOptions control how raw features are turned into the final result list
type AssembleOptions struct {
	Dataset string
	Center  geometry.Point
	// RadiusMiles is the effective search radius. With no radius only containing features are kept.
	RadiusMiles float64
	// MaxResults truncates the result list if greater than zero
	MaxResults int
	IDFields   []string
	Aliases    attrmap.Table
}

// Assemble measures, filters, deduplicates and sorts the raw features of all phases.
//
// Phases are processed in the given order and the first occurrence of a feature id wins.
// Features without an id are never merged. Containing features are never dropped by the
// radius filter. The result lists containing features first, then ascending distance, with
// ties kept in fetch order.
func Assemble(phases []PhaseResult, opts AssembleOptions) []Feature {
	seen := make(map[string]struct{})
	features := make([]Feature, 0)
	for _, phase := range phases {
		for _, raw := range phase.Features {
			// undecodable geometries measure +Inf and are filtered out below
			geom, _ := raw.DecodeGeometry()
			dist, containing := geometry.Measure(opts.Center, geom)
			if !containing && !(opts.RadiusMiles > 0 && dist <= opts.RadiusMiles) {
				continue
			}

			id, hasID := raw.ID(opts.IDFields...)
			if hasID {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}

			feature := Feature{
				ID:            id,
				Dataset:       opts.Dataset,
				Phase:         phase.Phase,
				Geometry:      geom,
				Attributes:    raw.Attributes,
				DistanceMiles: dist,
				IsContaining:  containing,
			}
			if len(opts.Aliases) > 0 {
				feature.Mapped = opts.Aliases.Apply(raw.Attributes)
			}
			features = append(features, feature)
		}
	}

	slices.SortStableFunc(features, compareFeatures)
	if opts.MaxResults > 0 && len(features) > opts.MaxResults {
		features = features[:opts.MaxResults]
	}
	return features
}

func compareFeatures(a, b Feature) int {
	if a.IsContaining != b.IsContaining {
		if a.IsContaining {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.DistanceMiles, b.DistanceMiles)
}
