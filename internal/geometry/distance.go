// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

// Haversine returns the great-circle distance between a and b in miles.
func Haversine(a, b Point) float64 {
	if a == b {
		return 0
	}
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * EarthRadiusMiles * math.Asin(math.Sqrt(math.Min(1, h)))
}

// SegmentDistance returns the distance in miles between p and the segment a-b. The closest
// position on the segment is found by planar projection in lon/lat space with the projection
// parameter clamped to the segment, the distance to it is a haversine distance.
func SegmentDistance(p, a, b Point) float64 {
	dx := b.Lon - a.Lon
	dy := b.Lat - a.Lat
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return Haversine(p, a)
	}

	t := ((p.Lon-a.Lon)*dx + (p.Lat-a.Lat)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))

	return Haversine(p, Point{Lat: a.Lat + t*dy, Lon: a.Lon + t*dx})
}

// Distance returns the distance in miles between p and the geometry. A point inside a polygon
// has a distance of 0. Empty or unknown geometries yield +Inf.
func Distance(p Point, g Geometry) float64 {
	dist, _ := Measure(p, g)
	return dist
}

// Measure returns the distance in miles between p and the geometry and whether the geometry
// contains p. Only polygons can contain a point.
func Measure(p Point, g Geometry) (float64, bool) {
	switch geom := value(g).(type) {
	case PointGeom:
		return Haversine(p, geom.Point), false
	case Polyline:
		dist := math.Inf(1)
		for _, path := range geom.Paths {
			dist = math.Min(dist, pathDistance(p, path, false))
		}
		return dist, false
	case Polygon:
		if Contains(p, geom) {
			return 0, true
		}
		// holes only matter for containment
		return pathDistance(p, geom.Exterior(), true), false
	default:
		return math.Inf(1), false
	}
}

// Contains reports whether p lies inside the exterior ring of the polygon and outside of all
// of its holes. Rings with less than 3 positions never contain a point.
func Contains(p Point, poly Polygon) bool {
	if !ringContains(p, poly.Exterior()) {
		return false
	}
	for _, hole := range poly.Holes() {
		if ringContains(p, hole) {
			return false
		}
	}
	return true
}

// ringContains performs an even-odd ray cast from p towards positive longitudes. The ring is
// closed implicitly by pairing the last with the first position.
func ringContains(p Point, ring []Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	if !toOrbRing(ring).Bound().Contains(orb.Point{p.Lon, p.Lat}) {
		return false
	}

	inside := false
	x, y := p.Lon, p.Lat
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lon, ring[i].Lat
		xj, yj := ring[j].Lon, ring[j].Lat
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// pathDistance returns the minimum segment distance between p and the path. If closed is set,
// the edge from the last to the first position is included.
func pathDistance(p Point, path []Point, closed bool) float64 {
	switch len(path) {
	case 0:
		return math.Inf(1)
	case 1:
		return Haversine(p, path[0])
	}

	dist := math.Inf(1)
	for i := 1; i < len(path); i++ {
		dist = math.Min(dist, SegmentDistance(p, path[i-1], path[i]))
	}
	if closed && len(path) > 2 {
		dist = math.Min(dist, SegmentDistance(p, path[len(path)-1], path[0]))
	}
	return dist
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
