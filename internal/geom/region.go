package geom

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/prospectsim/prospect/internal/dist"
	"github.com/prospectsim/prospect/internal/simerr"
)

// Region is the bounded survey area. It is immutable once built.
type Region struct {
	name       string
	shape      orb.MultiPolygon
	visibility dist.Distribution
	bound      orb.Bound
	area       float64
}

// NewRegion builds a region from a polygonal geometry: a Polygon,
// MultiPolygon, Ring, Bound, or a Collection of those. Rings are closed and
// degenerate rings dropped. Visibility defaults to a constant 1.
func NewRegion(name string, g orb.Geometry) (*Region, error) {
	mp, err := toMultiPolygon(g)
	if err != nil {
		return nil, err
	}
	mp = normalize(mp)
	area := multiPolygonArea(mp)
	if len(mp) == 0 || area <= 0 || math.IsNaN(area) {
		return nil, simerr.Invalid("region %q has no area", name)
	}
	return &Region{
		name:       name,
		shape:      mp,
		visibility: dist.Constant(1),
		bound:      mp.Bound(),
		area:       area,
	}, nil
}

// RegionFromArea builds a square region of the given area with its
// lower-left corner at origin.
func RegionFromArea(name string, area float64, origin orb.Point) (*Region, error) {
	if area <= 0 || math.IsNaN(area) || math.IsInf(area, 0) {
		return nil, simerr.Invalid("region area must be positive, got %g", area)
	}
	side := math.Sqrt(area)
	return NewRegion(name, orb.Bound{Min: origin, Max: orb.Point{origin[0] + side, origin[1] + side}})
}

// RegionFromGeoJSON builds a region from GeoJSON: a FeatureCollection, a
// Feature, or a bare geometry. All polygonal parts are combined.
func RegionFromGeoJSON(name string, data []byte) (*Region, error) {
	var geoms []orb.Geometry
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	} else if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		geoms = append(geoms, f.Geometry)
	} else if g, err := geojson.UnmarshalGeometry(data); err == nil && g.Geometry() != nil {
		geoms = append(geoms, g.Geometry())
	} else {
		return nil, simerr.Invalid("region %q: unrecognized GeoJSON", name)
	}

	var mp orb.MultiPolygon
	for _, g := range geoms {
		part, err := toMultiPolygon(g)
		if err != nil {
			continue
		}
		mp = append(mp, part...)
	}
	if len(mp) == 0 {
		return nil, simerr.Invalid("region %q: GeoJSON has no polygons", name)
	}
	return NewRegion(name, mp)
}

// WithVisibility returns a copy of r whose per-feature visibility is drawn
// from d. Visibility must lie within [0, 1].
func (r *Region) WithVisibility(d dist.Distribution) (*Region, error) {
	if err := dist.WithinUnit("visibility", d); err != nil {
		return nil, err
	}
	cp := *r
	cp.visibility = d
	return &cp, nil
}

// Name returns the region's name.
func (r *Region) Name() string { return r.name }

// Shape returns a copy of the region's polygons.
func (r *Region) Shape() orb.MultiPolygon { return r.shape.Clone() }

// Visibility returns the distribution visibility is drawn from.
func (r *Region) Visibility() dist.Distribution { return r.visibility }

// Bound returns the region's bounding box.
func (r *Region) Bound() orb.Bound { return r.bound }

// Area returns the region's area.
func (r *Region) Area() float64 { return r.area }

// Contains reports whether p lies inside the region or on its boundary.
func (r *Region) Contains(p orb.Point) bool {
	if !r.bound.Contains(p) {
		return false
	}
	return planar.MultiPolygonContains(r.shape, p)
}

// ContainsRing reports whether every vertex and edge of ring lies within the region.
func (r *Region) ContainsRing(ring []orb.Point) bool {
	ring = openRing(ring)
	for i := range ring {
		a, b := ring[i], ring[(i+1)%len(ring)]
		if !r.Contains(a) {
			return false
		}
		pieces := r.ClipSegment(Segment{A: a, B: b})
		if len(pieces) != 1 || math.Abs(pieces[0].Length()-planar.Distance(a, b)) > 1e-6 {
			return false
		}
	}
	return true
}

// Hull returns every outer-ring vertex of the region.
func (r *Region) Hull() []orb.Point {
	var pts []orb.Point
	for _, p := range r.shape {
		pts = append(pts, openRing(p[0])...)
	}
	return pts
}

// MinRotatedRectangle returns the region's minimum rotated bounding rectangle.
func (r *Region) MinRotatedRectangle() Rect {
	return MinRotatedRectangle(r.Hull())
}

// ClipSegment returns the pieces of s lying inside the region, in order
// along s. Pieces shorter than the geometry tolerance are dropped.
func (r *Region) ClipSegment(s Segment) []Segment {
	if !r.bound.Intersects(s.Bound()) {
		return nil
	}
	ts := []float64{0, 1}
	for _, poly := range r.shape {
		for _, ring := range poly {
			for i := 0; i+1 < len(ring); i++ {
				ts = append(ts, intersectParams(s.A, s.B, ring[i], ring[i+1])...)
			}
		}
	}
	sort.Float64s(ts)

	var out []Segment
	var open bool
	var start float64
	for i := 0; i+1 < len(ts); i++ {
		t0, t1 := ts[i], ts[i+1]
		if t1-t0 <= eps {
			continue
		}
		inside := r.Contains(lerp(s.A, s.B, (t0+t1)/2))
		switch {
		case inside && !open:
			open, start = true, t0
		case !inside && open:
			out = appendPiece(out, s, start, t0)
			open = false
		}
	}
	if open {
		out = appendPiece(out, s, start, 1)
	}
	return out
}

func appendPiece(out []Segment, s Segment, t0, t1 float64) []Segment {
	piece := Segment{A: lerp(s.A, s.B, t0), B: lerp(s.A, s.B, t1)}
	if piece.Length() <= eps {
		return out
	}
	return append(out, piece)
}

// ClippedArea returns the area of the region lying inside a convex footprint.
func (r *Region) ClippedArea(convex []orb.Point) float64 {
	var cb orb.Bound
	for i, p := range convex {
		if i == 0 {
			cb = orb.Bound{Min: p, Max: p}
		} else {
			cb = cb.Extend(p)
		}
	}
	if !r.bound.Intersects(cb) {
		return 0
	}
	total := 0.0
	for _, poly := range r.shape {
		for i, ring := range poly {
			a := RingArea(ClipConvex(ring, convex))
			if i == 0 {
				total += a
			} else {
				total -= a
			}
		}
	}
	return math.Max(0, total)
}

// GeoJSON returns the region as a GeoJSON feature.
func (r *Region) GeoJSON() *geojson.Feature {
	f := geojson.NewFeature(r.shape)
	f.Properties["name"] = r.name
	f.Properties["area"] = r.area
	f.Properties["visibility"] = r.visibility.String()
	return f
}

// Record returns a flat key/value view for tabular export.
func (r *Region) Record() map[string]any {
	return map[string]any{
		"name":       r.name,
		"area":       r.area,
		"visibility": r.visibility.String(),
		"min_x":      r.bound.Min[0],
		"min_y":      r.bound.Min[1],
		"max_x":      r.bound.Max[0],
		"max_y":      r.bound.Max[1],
	}
}

func toMultiPolygon(g orb.Geometry) (orb.MultiPolygon, error) {
	switch v := g.(type) {
	case orb.MultiPolygon:
		return v.Clone(), nil
	case orb.Polygon:
		return orb.MultiPolygon{v.Clone()}, nil
	case orb.Ring:
		return orb.MultiPolygon{orb.Polygon{v.Clone()}}, nil
	case orb.Bound:
		return orb.MultiPolygon{v.ToPolygon()}, nil
	case orb.Collection:
		var mp orb.MultiPolygon
		for _, c := range v {
			part, err := toMultiPolygon(c)
			if err == nil {
				mp = append(mp, part...)
			}
		}
		return mp, nil
	case nil:
		return nil, simerr.Invalid("region geometry is required")
	default:
		return nil, simerr.Invalid("region geometry must be polygonal, got %s", g.GeoJSONType())
	}
}

// normalize closes rings, drops rings without area, and drops polygons
// whose outer ring has no area.
func normalize(mp orb.MultiPolygon) orb.MultiPolygon {
	out := make(orb.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		var np orb.Polygon
		for i, ring := range poly {
			cr := closeRing(ring)
			if len(cr) < 4 || RingArea(cr) <= eps {
				if i == 0 {
					break
				}
				continue
			}
			np = append(np, cr)
		}
		if len(np) > 0 {
			out = append(out, np)
		}
	}
	return out
}

func multiPolygonArea(mp orb.MultiPolygon) float64 {
	total := 0.0
	for _, poly := range mp {
		for i, ring := range poly {
			if i == 0 {
				total += RingArea(ring)
			} else {
				total -= RingArea(ring)
			}
		}
	}
	return total
}

// String implements fmt.Stringer.
func (r *Region) String() string {
	return fmt.Sprintf("Region(%s, area=%.4g)", r.name, r.area)
}
