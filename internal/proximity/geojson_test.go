// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package proximity

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/wneessen/feature-proximity/internal/geometry"
)

func TestFeatureCollection(t *testing.T) {
	features := []Feature{
		{
			ID:            "7",
			Dataset:       "parcels",
			Phase:         PhaseContainment,
			Geometry:      geometry.Polygon{Rings: [][]geometry.Point{{{Lat: 39.9, Lon: -75.1}, {Lat: 39.9, Lon: -74.9}, {Lat: 40.1, Lon: -74.9}}}},
			Attributes:    map[string]any{"OBJECTID": float64(7), "ZONE": "R-1"},
			Mapped:        map[string]any{"zone": "R-1"},
			IsContaining:  true,
			DistanceMiles: 0,
		},
		{
			Dataset:       "parcels",
			Phase:         PhaseProximity,
			Geometry:      geometry.PointGeom{Point: geometry.Point{Lat: 40.01, Lon: -75.01}},
			Attributes:    map[string]any{"NAME": "anonymous"},
			DistanceMiles: 0.85,
		},
	}

	t.Run("properties", func(t *testing.T) {
		fc := FeatureCollection(features)
		if len(fc.Features) != 2 {
			t.Fatalf("expected 2 features, got %d", len(fc.Features))
		}
		if fc.Features[0].ID != "7" || fc.Features[0].Properties[propID] != "7" {
			t.Errorf("expected id 7, got %v", fc.Features[0].ID)
		}
		if fc.Features[1].ID != nil {
			t.Errorf("expected no id for anonymous feature, got %v", fc.Features[1].ID)
		}
		if fc.Features[0].Geometry.GeoJSONType() != "Polygon" || fc.Features[1].Geometry.GeoJSONType() != "Point" {
			t.Error("unexpected GeoJSON geometry types")
		}
	})
	t.Run("valid GeoJSON", func(t *testing.T) {
		data, err := EncodeFeatures(features)
		if err != nil {
			t.Fatalf("failed to encode features: %s", err)
		}
		var doc struct {
			Type     string `json:"type"`
			Features []struct {
				Type     string `json:"type"`
				Geometry struct {
					Type string `json:"type"`
				} `json:"geometry"`
			} `json:"features"`
		}
		if err = json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("failed to decode GeoJSON: %s", err)
		}
		if doc.Type != "FeatureCollection" || len(doc.Features) != 2 || doc.Features[0].Type != "Feature" {
			t.Errorf("unexpected GeoJSON document: %s", data)
		}
	})
	t.Run("decode restores the features", func(t *testing.T) {
		data, err := EncodeFeatures(features)
		if err != nil {
			t.Fatalf("failed to encode features: %s", err)
		}
		got, err := DecodeFeatures(data)
		if err != nil {
			t.Fatalf("failed to decode features: %s", err)
		}
		if !reflect.DeepEqual(got, features) {
			t.Errorf("expected decoded features to equal the originals\n got: %+v\nwant: %+v", got, features)
		}
	})
	t.Run("invalid data", func(t *testing.T) {
		if _, err := DecodeFeatures([]byte("not json")); err == nil {
			t.Error("expected decoding to fail")
		}
	})
}
