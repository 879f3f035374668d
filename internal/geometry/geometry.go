// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geometry implements the distance and containment math used to rank features around
// a query point. Positions are WGS84 decimal degrees. Distances are returned in statute miles.
//
// Segment distances use a small-scale approximation: the closest position on a segment is found
// by planar projection in raw lon/lat space and the distance to that position is then measured
// along the great circle. This is accurate enough for query radii of up to ~100 miles.
package geometry

import (
	"fmt"
	"math"
)

const (
	// EarthRadiusMiles is the mean earth radius used for all haversine calculations
	EarthRadiusMiles = 3958.8
	// MetersPerMile converts statute miles into meters
	MetersPerMile = 1609.34
)

// Kind identifies the concrete type of a Geometry
type Kind int

const (
	KindPoint Kind = iota
	KindPolyline
	KindPolygon
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindPolyline:
		return "polyline"
	case KindPolygon:
		return "polygon"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Point represents a WGS84 position.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Valid checks if the point is a valid WGS84 coordinate
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Geometry is the sum type of all supported feature geometries. It is implemented
// by PointGeom, Polyline and Polygon only. Pointers to them satisfy the interface as
// well and are treated like their values, a nil pointer is an empty geometry.
type Geometry interface {
	Kind() Kind
	sealed()
}

// PointGeom is a single position geometry.
type PointGeom struct {
	Point
}

// Polyline is a set of paths. Each path is an open sequence of positions.
type Polyline struct {
	Paths [][]Point
}

// Polygon is a set of rings. The first ring is the exterior boundary, all following rings
// are holes. Rings are closed implicitly, a repeated first position is allowed but not required.
type Polygon struct {
	Rings [][]Point
}

func (PointGeom) Kind() Kind { return KindPoint }
func (Polyline) Kind() Kind  { return KindPolyline }
func (Polygon) Kind() Kind   { return KindPolygon }

func (PointGeom) sealed() {}
func (Polyline) sealed()  {}
func (Polygon) sealed()   {}

// value returns the geometry behind a pointer geometry. Nil pointers yield nil.
func value(g Geometry) Geometry {
	switch geom := g.(type) {
	case *PointGeom:
		if geom == nil {
			return nil
		}
		return *geom
	case *Polyline:
		if geom == nil {
			return nil
		}
		return *geom
	case *Polygon:
		if geom == nil {
			return nil
		}
		return *geom
	default:
		return g
	}
}

// Exterior returns the exterior ring of the polygon or nil if the polygon has no rings
func (p Polygon) Exterior() []Point {
	if len(p.Rings) == 0 {
		return nil
	}
	return p.Rings[0]
}

// Holes returns the interior rings of the polygon
func (p Polygon) Holes() [][]Point {
	if len(p.Rings) < 2 {
		return nil
	}
	return p.Rings[1:]
}
