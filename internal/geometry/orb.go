// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
)

// ToOrb converts the geometry into its orb representation. A polyline with a single path
// becomes a LineString, all other polylines become a MultiLineString. Nil is returned for
// a nil geometry.
func ToOrb(g Geometry) orb.Geometry {
	switch geom := value(g).(type) {
	case PointGeom:
		return orb.Point{geom.Lon, geom.Lat}
	case Polyline:
		if len(geom.Paths) == 1 {
			return toOrbLineString(geom.Paths[0])
		}
		mls := make(orb.MultiLineString, 0, len(geom.Paths))
		for _, path := range geom.Paths {
			mls = append(mls, toOrbLineString(path))
		}
		return mls
	case Polygon:
		poly := make(orb.Polygon, 0, len(geom.Rings))
		for _, ring := range geom.Rings {
			poly = append(poly, toOrbRing(ring))
		}
		return poly
	default:
		return nil
	}
}

// FromOrb converts an orb geometry back into a Geometry. Multi-part point and polygon
// geometries are not supported, as they have no equivalent in the feature service model.
func FromOrb(g orb.Geometry) (Geometry, error) {
	switch geom := g.(type) {
	case orb.Point:
		return PointGeom{Point: fromOrbPoint(geom)}, nil
	case orb.LineString:
		return Polyline{Paths: [][]Point{fromOrbPoints(geom)}}, nil
	case orb.MultiLineString:
		paths := make([][]Point, 0, len(geom))
		for _, ls := range geom {
			paths = append(paths, fromOrbPoints(ls))
		}
		return Polyline{Paths: paths}, nil
	case orb.Ring:
		return Polygon{Rings: [][]Point{fromOrbPoints(geom)}}, nil
	case orb.Polygon:
		rings := make([][]Point, 0, len(geom))
		for _, ring := range geom {
			rings = append(rings, fromOrbPoints(ring))
		}
		return Polygon{Rings: rings}, nil
	case nil:
		return nil, fmt.Errorf("geometry is nil")
	default:
		return nil, fmt.Errorf("unsupported geometry type: %s", g.GeoJSONType())
	}
}

func toOrbLineString(path []Point) orb.LineString {
	ls := make(orb.LineString, 0, len(path))
	for _, p := range path {
		ls = append(ls, orb.Point{p.Lon, p.Lat})
	}
	return ls
}

func toOrbRing(ring []Point) orb.Ring {
	r := make(orb.Ring, 0, len(ring))
	for _, p := range ring {
		r = append(r, orb.Point{p.Lon, p.Lat})
	}
	return r
}

func fromOrbPoint(p orb.Point) Point {
	return Point{Lat: p.Lat(), Lon: p.Lon()}
}

func fromOrbPoints[T ~[]orb.Point](points T) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		out = append(out, fromOrbPoint(p))
	}
	return out
}
