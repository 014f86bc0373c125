package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/prospectsim/prospect/internal/constants"
)

// Footprint is the area a searcher effectively covers within one unit.
type Footprint interface {
	Bound() orb.Bound
	// ContainsPoint reports whether p lies within the footprint.
	ContainsPoint(p orb.Point) bool
	// Polygon returns a convex counter-clockwise approximation as an open ring.
	Polygon() []orb.Point
}

// Intersects reports whether a feature shape lies at least partly within fp.
// Points use the exact footprint; polygons use its polygonal approximation.
func Intersects(fp Footprint, shape orb.Geometry) bool {
	if fp == nil || shape == nil {
		return false
	}
	if !fp.Bound().Intersects(shape.Bound()) {
		return false
	}
	switch s := shape.(type) {
	case orb.Point:
		return fp.ContainsPoint(s)
	case orb.Polygon:
		if len(s) == 0 {
			return false
		}
		return PolygonsIntersect(fp.Polygon(), s[0])
	case orb.Ring:
		return PolygonsIntersect(fp.Polygon(), s)
	default:
		return false
	}
}

// Capsule is a segment swept by a half-width: the footprint of a transect.
type Capsule struct {
	A, B      orb.Point
	HalfWidth float64
}

// Bound implements Footprint.
func (c Capsule) Bound() orb.Bound {
	return orb.Bound{Min: c.A, Max: c.A}.Extend(c.B).Pad(c.HalfWidth)
}

// ContainsPoint implements Footprint.
func (c Capsule) ContainsPoint(p orb.Point) bool {
	return DistancePointSegment(p, c.A, c.B) <= c.HalfWidth+eps
}

// Polygon implements Footprint.
func (c Capsule) Polygon() []orb.Point {
	n := constants.CirclePolygonSegments / 2
	if c.A.Equal(c.B) {
		return CirclePolygon(c.A, c.HalfWidth, 0, 360, constants.CirclePolygonSegments)
	}
	dir := math.Atan2(c.B[1]-c.A[1], c.B[0]-c.A[0]) * 180 / math.Pi
	out := make([]orb.Point, 0, 2*(n+1))
	for i := 0; i <= n; i++ {
		out = append(out, polar(c.B, c.HalfWidth, dir-90+180*float64(i)/float64(n)))
	}
	for i := 0; i <= n; i++ {
		out = append(out, polar(c.A, c.HalfWidth, dir+90+180*float64(i)/float64(n)))
	}
	return out
}

// Length returns the length of the capsule's spine.
func (c Capsule) Length() float64 { return planar.Distance(c.A, c.B) }

// Sector is a disk or circular sector: the footprint of a radial unit.
// Start and Sweep are in degrees; a Sweep of 360 is a full disk.
type Sector struct {
	Center orb.Point
	Radius float64
	Start  float64
	Sweep  float64
}

// Bound implements Footprint.
func (s Sector) Bound() orb.Bound {
	return orb.Bound{Min: s.Center, Max: s.Center}.Pad(s.Radius)
}

// ContainsPoint implements Footprint.
func (s Sector) ContainsPoint(p orb.Point) bool {
	d := planar.Distance(p, s.Center)
	if d > s.Radius+eps {
		return false
	}
	if s.Sweep >= 360 || d <= eps {
		return true
	}
	ang := math.Atan2(p[1]-s.Center[1], p[0]-s.Center[0]) * 180 / math.Pi
	rel := math.Mod(ang-s.Start, 360)
	if rel < 0 {
		rel += 360
	}
	return rel <= s.Sweep+eps
}

// Polygon implements Footprint.
func (s Sector) Polygon() []orb.Point {
	return CirclePolygon(s.Center, s.Radius, s.Start, s.Sweep, constants.CirclePolygonSegments)
}
