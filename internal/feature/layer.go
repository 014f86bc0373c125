package feature

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/prospectsim/prospect/internal/constants"
	"github.com/prospectsim/prospect/internal/dist"
	"github.com/prospectsim/prospect/internal/geom"
	"github.com/prospectsim/prospect/internal/randx"
	"github.com/prospectsim/prospect/internal/simerr"
)

// Process names the generating process of a layer.
type Process string

const (
	ProcessUniform    Process = "uniform"
	ProcessPoisson    Process = "poisson"
	ProcessMatern     Process = "matern"
	ProcessThomas     Process = "thomas"
	ProcessRectangles Process = "rectangles"
	ProcessDisks      Process = "disks"
	ProcessFixed      Process = "fixed"
)

// Layer is a set of features produced by one process over one region.
// It is immutable once generated.
type Layer struct {
	name     string
	region   *geom.Region
	process  Process
	features []Feature
}

// Name returns the layer's name.
func (l *Layer) Name() string { return l.name }

// Region returns the region the layer was generated in.
func (l *Layer) Region() *geom.Region { return l.region }

// Process returns the process that generated the layer.
func (l *Layer) Process() Process { return l.process }

// Len returns the number of features.
func (l *Layer) Len() int { return len(l.features) }

// Features returns a copy of the layer's features.
func (l *Layer) Features() []Feature {
	return append([]Feature(nil), l.features...)
}

// Placement selects how shape generators position their shapes.
type Placement string

const (
	PlaceRandom Placement = "random"
	PlaceGrid   Placement = "grid"
)

// ClusterOptions parameterize the Matérn and Thomas cluster processes.
type ClusterOptions struct {
	// ParentRate is the intensity of cluster centers per unit area.
	ParentRate float64
	// ChildRate is the mean number of children per parent.
	ChildRate float64
	// ChildCount, when positive, fixes the number of children per parent.
	ChildCount int
	// Radius is the Matérn disk radius.
	Radius float64
	// Sigma is the Thomas Gaussian spread.
	Sigma float64
}

// ShapeOptions parameterize the rectangle and disk generators.
type ShapeOptions struct {
	Count     int
	Width     float64
	Height    float64
	Radius    float64
	Placement Placement
}

func attemptCeiling(p LayerParams, n int) int {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	if n > math.MaxInt/constants.AttemptsPerShape {
		return math.MaxInt
	}
	return max(constants.DefaultMaxAttempts, constants.AttemptsPerShape*n)
}

// checkCount rejects a requested or expected feature count that is not
// finite or exceeds constants.MaxLayerFeatures.
func checkCount(layer, what string, n float64) error {
	if math.IsNaN(n) || math.IsInf(n, 0) || n > constants.MaxLayerFeatures {
		return simerr.Invalid("layer %q: %s %g exceeds the limit of %d features",
			layer, what, n, constants.MaxLayerFeatures)
	}
	return nil
}

func checkRegion(r *geom.Region) error {
	if r == nil {
		return simerr.Invalid("layer region is required")
	}
	return nil
}

// samplePoint draws a uniform point within the region by rejection from
// its bounding box, spending at most budget attempts.
func samplePoint(r *geom.Region, rng *randx.Source, budget *int) (orb.Point, bool) {
	b := r.Bound()
	for *budget > 0 {
		*budget--
		p := orb.Point{rng.Uniform(b.Min[0], b.Max[0]), rng.Uniform(b.Min[1], b.Max[1])}
		if r.Contains(p) {
			return p, true
		}
	}
	return orb.Point{}, false
}

// Pseudorandom places exactly n points uniformly within the region.
func Pseudorandom(r *geom.Region, n int, params LayerParams, rng *randx.Source) (*Layer, error) {
	if err := checkRegion(r); err != nil {
		return nil, err
	}
	if err := params.normalize(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, simerr.Invalid("layer %q: count must be non-negative, got %d", params.Name, n)
	}
	if err := checkCount(params.Name, "count", float64(n)); err != nil {
		return nil, err
	}
	shapes, err := uniformPoints(r, n, params, rng)
	if err != nil {
		return nil, err
	}
	return build(r, ProcessUniform, shapes, params, rng), nil
}

func uniformPoints(r *geom.Region, n int, params LayerParams, rng *randx.Source) ([]orb.Geometry, error) {
	budget := attemptCeiling(params, n)
	var shapes []orb.Geometry
	for len(shapes) < n {
		p, ok := samplePoint(r, rng, &budget)
		if !ok {
			return nil, simerr.Exhausted("layer %q: placed %d of %d points", params.Name, len(shapes), n)
		}
		shapes = append(shapes, p)
	}
	return shapes, nil
}

// Poisson places a Poisson(rate × area) number of points uniformly within
// the region.
func Poisson(r *geom.Region, rate float64, params LayerParams, rng *randx.Source) (*Layer, error) {
	if err := checkRegion(r); err != nil {
		return nil, err
	}
	if err := params.normalize(); err != nil {
		return nil, err
	}
	if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, simerr.Invalid("layer %q: rate must be non-negative, got %g", params.Name, rate)
	}
	mean := rate * r.Area()
	if err := checkCount(params.Name, "expected count", mean); err != nil {
		return nil, err
	}
	shapes, err := uniformPoints(r, rng.Poisson(mean), params, rng)
	if err != nil {
		return nil, err
	}
	return build(r, ProcessPoisson, shapes, params, rng), nil
}

// Matern generates a Matérn cluster process: children uniform within a disk
// of the given radius around each parent. Children outside the region are
// discarded and parents are not emitted.
func Matern(r *geom.Region, opts ClusterOptions, params LayerParams, rng *randx.Source) (*Layer, error) {
	if opts.Radius <= 0 || math.IsNaN(opts.Radius) {
		return nil, simerr.Invalid("layer %q: matern radius must be positive, got %g", params.Name, opts.Radius)
	}
	return cluster(r, ProcessMatern, opts, params, rng, func(c orb.Point) orb.Point {
		rad := math.Sqrt(rng.Uniform(0, opts.Radius*opts.Radius))
		theta := rng.Uniform(0, 2*math.Pi)
		sin, cos := math.Sincos(theta)
		return orb.Point{c[0] + rad*cos, c[1] + rad*sin}
	})
}

// Thomas generates a Thomas cluster process: children normally distributed
// with spread sigma around each parent. Children outside the region are
// discarded and parents are not emitted.
func Thomas(r *geom.Region, opts ClusterOptions, params LayerParams, rng *randx.Source) (*Layer, error) {
	if opts.Sigma <= 0 || math.IsNaN(opts.Sigma) {
		return nil, simerr.Invalid("layer %q: thomas sigma must be positive, got %g", params.Name, opts.Sigma)
	}
	return cluster(r, ProcessThomas, opts, params, rng, func(c orb.Point) orb.Point {
		return orb.Point{rng.Normal(c[0], opts.Sigma), rng.Normal(c[1], opts.Sigma)}
	})
}

func cluster(r *geom.Region, proc Process, opts ClusterOptions, params LayerParams, rng *randx.Source, child func(orb.Point) orb.Point) (*Layer, error) {
	if err := checkRegion(r); err != nil {
		return nil, err
	}
	if err := params.normalize(); err != nil {
		return nil, err
	}
	if opts.ParentRate < 0 || opts.ChildRate < 0 || opts.ChildCount < 0 ||
		math.IsNaN(opts.ParentRate) || math.IsNaN(opts.ChildRate) {
		return nil, simerr.Invalid("layer %q: cluster rates must be non-negative", params.Name)
	}

	perParent := opts.ChildRate
	if opts.ChildCount > 0 {
		perParent = float64(opts.ChildCount)
	}
	parentMean := opts.ParentRate * r.Area()
	if err := checkCount(params.Name, "expected parents", parentMean); err != nil {
		return nil, err
	}
	if err := checkCount(params.Name, "children per parent", perParent); err != nil {
		return nil, err
	}
	if err := checkCount(params.Name, "expected children", parentMean*perParent); err != nil {
		return nil, err
	}

	nParents := rng.Poisson(parentMean)
	parents, err := uniformPoints(r, nParents, params, rng)
	if err != nil {
		return nil, err
	}

	var shapes []orb.Geometry
	for _, pg := range parents {
		parent := pg.(orb.Point)
		n := opts.ChildCount
		if n == 0 {
			n = rng.Poisson(opts.ChildRate)
		}
		for i := 0; i < n; i++ {
			if c := child(parent); r.Contains(c) {
				shapes = append(shapes, c)
			}
		}
	}
	return build(r, proc, shapes, params, rng), nil
}

// Rectangles places axis-aligned rectangles of the given size wholly within
// the region, either at random or on a deterministic grid.
func Rectangles(r *geom.Region, opts ShapeOptions, params LayerParams, rng *randx.Source) (*Layer, error) {
	if err := checkRegion(r); err != nil {
		return nil, err
	}
	if err := params.normalize(); err != nil {
		return nil, err
	}
	if opts.Count < 0 || opts.Width <= 0 || opts.Height <= 0 {
		return nil, simerr.Invalid("layer %q: rectangles need count >= 0 and positive size", params.Name)
	}
	if err := checkCount(params.Name, "count", float64(opts.Count)); err != nil {
		return nil, err
	}
	if float64(opts.Count)*opts.Width*opts.Height > r.Area() {
		return nil, simerr.Invalid("layer %q: %d rectangles of %gx%g exceed region area %g",
			params.Name, opts.Count, opts.Width, opts.Height, r.Area())
	}
	rect := func(ll orb.Point) []orb.Point {
		return []orb.Point{ll, {ll[0] + opts.Width, ll[1]}, {ll[0] + opts.Width, ll[1] + opts.Height}, {ll[0], ll[1] + opts.Height}}
	}
	shapes, err := placeShapes(r, opts, params, rng, opts.Width, opts.Height, rect)
	if err != nil {
		return nil, err
	}
	return build(r, ProcessRectangles, shapes, params, rng), nil
}

// Disks places circular features of the given radius wholly within the region.
func Disks(r *geom.Region, opts ShapeOptions, params LayerParams, rng *randx.Source) (*Layer, error) {
	if err := checkRegion(r); err != nil {
		return nil, err
	}
	if err := params.normalize(); err != nil {
		return nil, err
	}
	if opts.Count < 0 || opts.Radius <= 0 {
		return nil, simerr.Invalid("layer %q: disks need count >= 0 and positive radius", params.Name)
	}
	if err := checkCount(params.Name, "count", float64(opts.Count)); err != nil {
		return nil, err
	}
	if float64(opts.Count)*math.Pi*opts.Radius*opts.Radius > r.Area() {
		return nil, simerr.Invalid("layer %q: %d disks of radius %g exceed region area %g",
			params.Name, opts.Count, opts.Radius, r.Area())
	}
	d := 2 * opts.Radius
	disk := func(ll orb.Point) []orb.Point {
		c := orb.Point{ll[0] + opts.Radius, ll[1] + opts.Radius}
		return geom.CirclePolygon(c, opts.Radius, 0, 360, constants.CirclePolygonSegments/2)
	}
	shapes, err := placeShapes(r, opts, params, rng, d, d, disk)
	if err != nil {
		return nil, err
	}
	return build(r, ProcessDisks, shapes, params, rng), nil
}

// placeShapes positions count shapes whose w×h bounding box has its
// lower-left corner at the candidate point.
func placeShapes(r *geom.Region, opts ShapeOptions, params LayerParams, rng *randx.Source, w, h float64, shape func(orb.Point) []orb.Point) ([]orb.Geometry, error) {
	b := r.Bound()
	var shapes []orb.Geometry
	add := func(ring []orb.Point) bool {
		if !r.ContainsRing(ring) {
			return false
		}
		closed := append(append(orb.Ring(nil), ring...), ring[0])
		shapes = append(shapes, orb.Polygon{closed})
		return true
	}

	if opts.Placement == PlaceGrid {
		for y := b.Min[1]; y+h <= b.Max[1]+1e-9 && len(shapes) < opts.Count; y += h {
			for x := b.Min[0]; x+w <= b.Max[0]+1e-9 && len(shapes) < opts.Count; x += w {
				add(shape(orb.Point{x, y}))
			}
		}
		if len(shapes) < opts.Count {
			return nil, simerr.Exhausted("layer %q: grid fits %d of %d shapes", params.Name, len(shapes), opts.Count)
		}
		return shapes, nil
	}

	if b.Max[0]-b.Min[0] < w || b.Max[1]-b.Min[1] < h {
		if opts.Count == 0 {
			return shapes, nil
		}
		return nil, simerr.Invalid("layer %q: shape %gx%g does not fit the region", params.Name, w, h)
	}
	budget := attemptCeiling(params, opts.Count)
	for len(shapes) < opts.Count {
		if budget == 0 {
			return nil, simerr.Exhausted("layer %q: placed %d of %d shapes", params.Name, len(shapes), opts.Count)
		}
		budget--
		ll := orb.Point{rng.Uniform(b.Min[0], b.Max[0]-w), rng.Uniform(b.Min[1], b.Max[1]-h)}
		add(shape(ll))
	}
	return shapes, nil
}

// FromShapes imports fixed feature shapes. Points outside the region and
// polygons not wholly inside it are dropped.
func FromShapes(r *geom.Region, shapes []orb.Geometry, params LayerParams, rng *randx.Source) (*Layer, error) {
	if err := checkRegion(r); err != nil {
		return nil, err
	}
	if err := params.normalize(); err != nil {
		return nil, err
	}
	kept := make([]orb.Geometry, 0, len(shapes))
	for _, s := range shapes {
		switch v := s.(type) {
		case orb.Point:
			if r.Contains(v) {
				kept = append(kept, v)
			}
		case orb.Polygon:
			if len(v) > 0 && r.ContainsRing(v[0]) {
				kept = append(kept, v.Clone())
			}
		case orb.MultiPoint:
			for _, p := range v {
				if r.Contains(p) {
					kept = append(kept, p)
				}
			}
		}
	}
	return build(r, ProcessFixed, kept, params, rng), nil
}

// build draws per-feature parameters after all shapes are placed.
func build(r *geom.Region, proc Process, shapes []orb.Geometry, params LayerParams, rng *randx.Source) *Layer {
	rates := dist.DrawN(params.IdealObsRate, rng, len(shapes))
	penalties := dist.DrawN(params.TimePenalty, rng, len(shapes))
	features := make([]Feature, len(shapes))
	for i, s := range shapes {
		features[i] = Feature{
			ID:           i,
			Name:         fmt.Sprintf("%s_%d", params.Name, i),
			Layer:        params.Name,
			Shape:        s,
			IdealObsRate: rates[i],
			TimePenalty:  penalties[i],
		}
	}
	return &Layer{name: params.Name, region: r, process: proc, features: features}
}
