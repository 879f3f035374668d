// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package arcgis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wneessen/feature-proximity/internal/attrmap"
	"github.com/wneessen/feature-proximity/internal/geometry"
)

// DefaultIDFields are the attribute names tried, in order, to identify a feature
var DefaultIDFields = []string{"OBJECTID", "ObjectID", "objectid", "OBJECTID_1", "FID", "fid", "OID"}

var (
	// ErrNoGeometry is returned when a feature carries no geometry
	ErrNoGeometry = errors.New("feature has no geometry")
	// ErrUnknownGeometry is returned when a geometry has none of the supported shapes
	ErrUnknownGeometry = errors.New("unsupported geometry encoding")
)

// Response is the JSON response of a layer query
type Response struct {
	// Features is nil if the response did not carry a features array at all
	Features              []RawFeature `json:"features"`
	ExceededTransferLimit bool         `json:"exceededTransferLimit"`
	Error                 *RemoteError `json:"error,omitempty"`
}

// RemoteError is the error object a feature service returns instead of features
type RemoteError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

// RawFeature is a feature as returned by the service, with the geometry still undecoded
type RawFeature struct {
	Attributes map[string]any  `json:"attributes"`
	Geometry   json.RawMessage `json:"geometry"`
}

type wireGeometry struct {
	X     *float64      `json:"x"`
	Y     *float64      `json:"y"`
	Paths [][][]float64 `json:"paths"`
	Rings [][][]float64 `json:"rings"`
}

// ID returns the identifier of the feature, looked up by the given attribute names or by
// DefaultIDFields if none are given. The second return value is false if no id was found.
func (f RawFeature) ID(fields ...string) (string, bool) {
	if len(fields) == 0 {
		fields = DefaultIDFields
	}
	return attrmap.LookupString(f.Attributes, fields...)
}

// DecodeGeometry decodes the wire geometry into its Geometry type. The shape is detected once
// here, everything downstream dispatches on the type.
func (f RawFeature) DecodeGeometry() (geometry.Geometry, error) {
	raw := bytes.TrimSpace(f.Geometry)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrNoGeometry
	}

	var wire wireGeometry
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode geometry: %w", err)
	}
	switch {
	case wire.X != nil && wire.Y != nil:
		return geometry.PointGeom{Point: geometry.Point{Lat: *wire.Y, Lon: *wire.X}}, nil
	case wire.Paths != nil:
		return geometry.Polyline{Paths: toPoints(wire.Paths)}, nil
	case wire.Rings != nil:
		return geometry.Polygon{Rings: toPoints(wire.Rings)}, nil
	default:
		return nil, ErrUnknownGeometry
	}
}

// toPoints converts [x, y(, z, m)] coordinate arrays into points. Coordinates with less than
// two values are skipped.
func toPoints(parts [][][]float64) [][]geometry.Point {
	out := make([][]geometry.Point, 0, len(parts))
	for _, part := range parts {
		points := make([]geometry.Point, 0, len(part))
		for _, coord := range part {
			if len(coord) < 2 {
				continue
			}
			points = append(points, geometry.Point{Lat: coord[1], Lon: coord[0]})
		}
		out = append(out, points)
	}
	return out
}
