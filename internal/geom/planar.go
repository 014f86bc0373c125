// Package geom holds the planar geometry behind regions, coverage units and
// feature shapes. Shapes are orb types; the predicates here fill the gaps orb
// leaves for survey work: clipping lines to arbitrary polygons, clipping
// polygons to convex footprints, and minimum rotated rectangles.
package geom

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/prospectsim/prospect/internal/constants"
)

const eps = constants.GeometryEpsilon

// Segment is a straight line segment from A to B.
type Segment struct {
	A, B orb.Point
}

// Length returns the segment's length.
func (s Segment) Length() float64 { return planar.Distance(s.A, s.B) }

// Midpoint returns the point halfway along the segment.
func (s Segment) Midpoint() orb.Point { return lerp(s.A, s.B, 0.5) }

// LineString returns the segment as a two-point line string.
func (s Segment) LineString() orb.LineString { return orb.LineString{s.A, s.B} }

// Bound returns the segment's bounding box.
func (s Segment) Bound() orb.Bound { return s.LineString().Bound() }

func sub(a, b orb.Point) orb.Point { return orb.Point{a[0] - b[0], a[1] - b[1]} }
func dot(a, b orb.Point) float64   { return a[0]*b[0] + a[1]*b[1] }
func cross(a, b orb.Point) float64 { return a[0]*b[1] - a[1]*b[0] }
func norm(a orb.Point) float64     { return math.Hypot(a[0], a[1]) }
func lerp(a, b orb.Point, t float64) orb.Point {
	return orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}
}

// Rotate rotates p counter-clockwise by deg degrees about center.
func Rotate(p, center orb.Point, deg float64) orb.Point {
	rad := deg * math.Pi / 180
	sin, cos := math.Sincos(rad)
	dx, dy := p[0]-center[0], p[1]-center[1]
	return orb.Point{center[0] + dx*cos - dy*sin, center[1] + dx*sin + dy*cos}
}

// DistancePointSegment returns the shortest distance from p to segment ab.
func DistancePointSegment(p, a, b orb.Point) float64 {
	ab := sub(b, a)
	l2 := dot(ab, ab)
	if l2 == 0 {
		return planar.Distance(p, a)
	}
	t := math.Max(0, math.Min(1, dot(sub(p, a), ab)/l2))
	return planar.Distance(p, lerp(a, b, t))
}

// SegmentsIntersect reports whether segments ab and cd share any point.
func SegmentsIntersect(a, b, c, d orb.Point) bool {
	return len(intersectParams(a, b, c, d)) > 0
}

// DistanceSegments returns the shortest distance between segments ab and cd.
func DistanceSegments(a, b, c, d orb.Point) float64 {
	if SegmentsIntersect(a, b, c, d) {
		return 0
	}
	return math.Min(
		math.Min(DistancePointSegment(a, c, d), DistancePointSegment(b, c, d)),
		math.Min(DistancePointSegment(c, a, b), DistancePointSegment(d, a, b)),
	)
}

// intersectParams returns the parameters t along ab at which ab meets cd.
// Collinear overlaps report the overlap's end points.
func intersectParams(a, b, c, d orb.Point) []float64 {
	r := sub(b, a)
	s := sub(d, c)
	qp := sub(c, a)
	denom := cross(r, s)
	rl, sl := norm(r), norm(s)
	if rl == 0 {
		return nil
	}

	if math.Abs(denom) <= eps*rl*math.Max(sl, 1) {
		// Parallel: only collinear overlaps count.
		if math.Abs(cross(qp, r)) > eps*rl*math.Max(norm(qp), 1) {
			return nil
		}
		rr := dot(r, r)
		t0 := dot(sub(c, a), r) / rr
		t1 := dot(sub(d, a), r) / rr
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t1 < -eps || t0 > 1+eps {
			return nil
		}
		return []float64{math.Max(0, t0), math.Min(1, t1)}
	}

	t := cross(qp, s) / denom
	u := cross(qp, r) / denom
	if t < -eps || t > 1+eps || u < -eps || u > 1+eps {
		return nil
	}
	return []float64{math.Max(0, math.Min(1, t))}
}

// RingArea returns the unsigned shoelace area of a ring. The ring may be
// open or closed.
func RingArea(r []orb.Point) float64 {
	return math.Abs(signedArea(r))
}

func signedArea(r []orb.Point) float64 {
	n := len(r)
	if n < 3 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += r[i][0]*r[j][1] - r[j][0]*r[i][1]
	}
	return sum / 2
}

// ringContains reports whether p lies inside or on ring r.
func ringContains(r []orb.Point, p orb.Point) bool {
	return planar.RingContains(closeRing(r), p)
}

// closeRing returns r with its first point repeated at the end.
func closeRing(r []orb.Point) orb.Ring {
	out := make(orb.Ring, len(r), len(r)+1)
	copy(out, r)
	if len(out) > 0 && !out[0].Equal(out[len(out)-1]) {
		out = append(out, out[0])
	}
	return out
}

// openRing drops a closing point if present.
func openRing(r []orb.Point) []orb.Point {
	if len(r) > 1 && r[0].Equal(r[len(r)-1]) {
		return r[:len(r)-1]
	}
	return r
}

// ClipConvex clips a subject ring (which may be concave) to a convex,
// counter-clockwise clip ring using Sutherland–Hodgman. The result is an
// open ring, possibly with degenerate edges that do not affect its area.
func ClipConvex(subject, clip []orb.Point) []orb.Point {
	out := append([]orb.Point(nil), openRing(subject)...)
	clip = openRing(clip)
	if signedArea(clip) < 0 {
		clip = reversed(clip)
	}

	for i := 0; i < len(clip) && len(out) > 0; i++ {
		c0 := clip[i]
		c1 := clip[(i+1)%len(clip)]
		inside := func(p orb.Point) bool { return cross(sub(c1, c0), sub(p, c0)) >= -eps }

		in := out
		out = nil
		for j := range in {
			cur := in[j]
			prev := in[(j+len(in)-1)%len(in)]
			curIn, prevIn := inside(cur), inside(prev)
			if curIn {
				if !prevIn {
					out = append(out, lineIntersection(prev, cur, c0, c1))
				}
				out = append(out, cur)
			} else if prevIn {
				out = append(out, lineIntersection(prev, cur, c0, c1))
			}
		}
	}
	return out
}

// lineIntersection intersects segment pq with the infinite line through ab.
func lineIntersection(p, q, a, b orb.Point) orb.Point {
	r := sub(q, p)
	s := sub(b, a)
	denom := cross(r, s)
	if denom == 0 {
		return q
	}
	t := cross(sub(a, p), s) / denom
	return lerp(p, q, t)
}

func reversed(r []orb.Point) []orb.Point {
	out := make([]orb.Point, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}

// ConvexHull returns the counter-clockwise convex hull of pts as an open ring.
func ConvexHull(pts []orb.Point) []orb.Point {
	ps := append([]orb.Point(nil), pts...)
	sort.Slice(ps, func(i, j int) bool {
		if ps[i][0] != ps[j][0] {
			return ps[i][0] < ps[j][0]
		}
		return ps[i][1] < ps[j][1]
	})
	uniq := ps[:0]
	for i, p := range ps {
		if i == 0 || !p.Equal(ps[i-1]) {
			uniq = append(uniq, p)
		}
	}
	ps = uniq
	if len(ps) < 3 {
		return ps
	}

	hull := make([]orb.Point, 0, 2*len(ps))
	for _, p := range ps {
		for len(hull) >= 2 && cross(sub(hull[len(hull)-1], hull[len(hull)-2]), sub(p, hull[len(hull)-2])) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(ps) - 2; i >= 0; i-- {
		p := ps[i]
		for len(hull) >= lower && cross(sub(hull[len(hull)-1], hull[len(hull)-2]), sub(p, hull[len(hull)-2])) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// Rect is a rotated rectangle.
type Rect struct {
	Center orb.Point
	// Width is the extent along Angle; Height is perpendicular to it.
	Width, Height float64
	// Angle is the direction of the Width side, in degrees within [0, 180).
	Angle   float64
	Corners [4]orb.Point
}

// LongAxisAngle returns the direction of the rectangle's longer side in [0, 180).
func (r Rect) LongAxisAngle() float64 {
	if r.Width >= r.Height {
		return r.Angle
	}
	return normalizeAngle(r.Angle + 90)
}

// ShortAxisAngle returns the direction of the rectangle's shorter side in [0, 180).
func (r Rect) ShortAxisAngle() float64 {
	return normalizeAngle(r.LongAxisAngle() + 90)
}

// Diagonal returns the length of the rectangle's diagonal.
func (r Rect) Diagonal() float64 { return math.Hypot(r.Width, r.Height) }

// MinRotatedRectangle returns the minimum-area rectangle enclosing pts,
// searched over the hull's edge directions.
func MinRotatedRectangle(pts []orb.Point) Rect {
	hull := ConvexHull(pts)
	switch len(hull) {
	case 0:
		return Rect{}
	case 1:
		return Rect{Center: hull[0], Corners: [4]orb.Point{hull[0], hull[0], hull[0], hull[0]}}
	}

	best := Rect{}
	bestArea := math.Inf(1)
	for i := range hull {
		a, b := hull[i], hull[(i+1)%len(hull)]
		deg := math.Atan2(b[1]-a[1], b[0]-a[0]) * 180 / math.Pi
		var bound orb.Bound
		for k, p := range hull {
			q := Rotate(p, orb.Point{}, -deg)
			if k == 0 {
				bound = orb.Bound{Min: q, Max: q}
			} else {
				bound = bound.Extend(q)
			}
		}
		w := bound.Max[0] - bound.Min[0]
		h := bound.Max[1] - bound.Min[1]
		if area := w * h; area < bestArea-eps {
			bestArea = area
			corners := [4]orb.Point{
				Rotate(bound.Min, orb.Point{}, deg),
				Rotate(orb.Point{bound.Max[0], bound.Min[1]}, orb.Point{}, deg),
				Rotate(bound.Max, orb.Point{}, deg),
				Rotate(orb.Point{bound.Min[0], bound.Max[1]}, orb.Point{}, deg),
			}
			best = Rect{
				Center:  Rotate(bound.Center(), orb.Point{}, deg),
				Width:   w,
				Height:  h,
				Angle:   normalizeAngle(deg),
				Corners: corners,
			}
		}
	}
	return best
}

// normalizeAngle maps deg into [0, 180).
func normalizeAngle(deg float64) float64 {
	a := math.Mod(deg, 180)
	if a < 0 {
		a += 180
	}
	if a >= 180-eps {
		a = 0
	}
	return a
}

// PolygonsIntersect reports whether two simple rings overlap or touch.
func PolygonsIntersect(a, b []orb.Point) bool {
	a, b = openRing(a), openRing(b)
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for _, p := range a {
		if ringContains(b, p) {
			return true
		}
	}
	for _, p := range b {
		if ringContains(a, p) {
			return true
		}
	}
	for i := range a {
		a0, a1 := a[i], a[(i+1)%len(a)]
		for j := range b {
			if SegmentsIntersect(a0, a1, b[j], b[(j+1)%len(b)]) {
				return true
			}
		}
	}
	return false
}

// CirclePolygon approximates an arc of radius r about c, from start through
// start+sweep degrees, as an open counter-clockwise ring. A sweep of 360
// yields a full disk; smaller sweeps include the center.
func CirclePolygon(c orb.Point, r, start, sweep float64, segments int) []orb.Point {
	if sweep >= 360 {
		out := make([]orb.Point, segments)
		for i := range out {
			out[i] = polar(c, r, start+360*float64(i)/float64(segments))
		}
		return out
	}
	n := int(math.Ceil(float64(segments) * sweep / 360))
	if n < 2 {
		n = 2
	}
	out := make([]orb.Point, 0, n+2)
	out = append(out, c)
	for i := 0; i <= n; i++ {
		out = append(out, polar(c, r, start+sweep*float64(i)/float64(n)))
	}
	return out
}

func polar(c orb.Point, r, deg float64) orb.Point {
	sin, cos := math.Sincos(deg * math.Pi / 180)
	return orb.Point{c[0] + r*cos, c[1] + r*sin}
}
