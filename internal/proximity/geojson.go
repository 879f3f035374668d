// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package proximity

import (
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/wneessen/feature-proximity/internal/geometry"
)

const (
	propID           = "id"
	propDataset      = "dataset"
	propPhase        = "phase"
	propDistance     = "distance_miles"
	propIsContaining = "is_containing"
	propAttributes   = "attributes"
	propMapped       = "mapped"
)

// FeatureCollection converts the features into a GeoJSON FeatureCollection. The query
// results are stored in the properties of each GeoJSON feature.
func FeatureCollection(features []Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, feature := range features {
		gf := geojson.NewFeature(geometry.ToOrb(feature.Geometry))
		if feature.ID != "" {
			gf.ID = feature.ID
			gf.Properties[propID] = feature.ID
		}
		gf.Properties[propDataset] = feature.Dataset
		gf.Properties[propPhase] = string(feature.Phase)
		gf.Properties[propDistance] = feature.DistanceMiles
		gf.Properties[propIsContaining] = feature.IsContaining
		gf.Properties[propAttributes] = feature.Attributes
		if len(feature.Mapped) > 0 {
			gf.Properties[propMapped] = feature.Mapped
		}
		fc.Append(gf)
	}
	return fc
}

// EncodeFeatures encodes the features as GeoJSON FeatureCollection
func EncodeFeatures(features []Feature) ([]byte, error) {
	data, err := FeatureCollection(features).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode features: %w", err)
	}
	return data, nil
}

// DecodeFeatures decodes a GeoJSON FeatureCollection created by EncodeFeatures
func DecodeFeatures(data []byte) ([]Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode features: %w", err)
	}

	features := make([]Feature, 0, len(fc.Features))
	for _, gf := range fc.Features {
		feature := Feature{
			ID:            gf.Properties.MustString(propID, ""),
			Dataset:       gf.Properties.MustString(propDataset, ""),
			Phase:         Phase(gf.Properties.MustString(propPhase, "")),
			DistanceMiles: gf.Properties.MustFloat64(propDistance, 0),
			IsContaining:  gf.Properties.MustBool(propIsContaining, false),
		}
		if attrs, ok := gf.Properties[propAttributes].(map[string]any); ok {
			feature.Attributes = attrs
		}
		if mapped, ok := gf.Properties[propMapped].(map[string]any); ok {
			feature.Mapped = mapped
		}
		if gf.Geometry != nil {
			if feature.Geometry, err = geometry.FromOrb(gf.Geometry); err != nil {
				return nil, fmt.Errorf("failed to decode geometry of feature %q: %w", feature.ID, err)
			}
		}
		features = append(features, feature)
	}
	return features, nil
}
