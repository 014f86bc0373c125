package coverage

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

// Plan is an ordered set of units over one region. It is immutable once built.
type Plan struct {
	name        string
	region      *geom.Region
	kind        Kind
	orientation float64
	spacing     float64
	sweepWidth  float64
	radius      float64
	sweepAngle  float64
	units       []Unit
	search      *OrientationResult
}

// Name returns the plan's name.
func (p *Plan) Name() string { return p.name }

// Region returns the region the plan covers.
func (p *Plan) Region() *geom.Region { return p.region }

// Kind returns the plan's unit family.
func (p *Plan) Kind() Kind { return p.kind }

// Orientation returns the angle, in degrees, the plan was laid out at.
func (p *Plan) Orientation() float64 { return p.orientation }

// Spacing returns the distance between transect lines or radial stations.
func (p *Plan) Spacing() float64 { return p.spacing }

// Units returns a copy of the plan's units in search order.
func (p *Plan) Units() []Unit { return append([]Unit(nil), p.units...) }

// Len returns the number of units.
func (p *Plan) Len() int { return len(p.units) }

// Search returns the orientation search that chose the plan's angle, if any.
func (p *Plan) Search() (OrientationResult, bool) {
	if p.search == nil {
		return OrientationResult{}, false
	}
	return *p.search, true
}

// TotalLength returns the summed spine length of the plan's transects.
func (p *Plan) TotalLength() float64 {
	total := 0.0
	for _, u := range p.units {
		total += u.Length
	}
	return total
}

// TotalArea returns the summed footprint area of the plan's units.
// Overlapping footprints are counted once per unit.
func (p *Plan) TotalArea() float64 {
	total := 0.0
	for _, u := range p.units {
		total += u.Area
	}
	return total
}

// TransectOptions configure a transect plan.
type TransectOptions struct {
	Name string
	// Spacing is the distance between adjacent lines.
	Spacing float64
	// SweepWidth is the half-width searched either side of a line.
	SweepWidth float64
	// Orient selects how the angle is chosen; the zero value is OrientFixed.
	Orient      OrientMode
	Orientation float64
	Metric      Metric
	Increment   float64
	// MinTimePerUnit is drawn per unit and multiplied by the unit's length.
	// Nil means unconstrained.
	MinTimePerUnit dist.Distribution
}

// Transects lays parallel lines across the region at the chosen orientation
// and clips them to it. Every surviving piece becomes one unit. rng is only
// consumed by a non-constant MinTimePerUnit and may be nil otherwise.
func Transects(region *geom.Region, opts TransectOptions, rng *randx.Source) (*Plan, error) {
	if region == nil {
		return nil, simerr.Invalid("transect plan %q: region is required", opts.Name)
	}
	if !positive(opts.Spacing) || !positive(opts.SweepWidth) {
		return nil, simerr.Invalid("transect plan %q: spacing and sweep width must be positive, got %g and %g",
			opts.Name, opts.Spacing, opts.SweepWidth)
	}
	if err := checkLayout(opts.Name, region.MinRotatedRectangle().Diagonal()/opts.Spacing); err != nil {
		return nil, err
	}
	minTime, err := minTimeDist(opts.MinTimePerUnit)
	if err != nil {
		return nil, err
	}

	layout := transectLayout(region, opts.Spacing, opts.SweepWidth)
	angle, res, err := resolveOrientation(region, opts.Orient, opts.Orientation, opts.Metric, opts.Increment, layout)
	if err != nil {
		return nil, fmt.Errorf("transect plan %q: %w", opts.Name, err)
	}

	if rng == nil {
		rng = randx.New(constants.DefaultSeed)
	}
	plan := &Plan{
		name:        opts.Name,
		region:      region,
		kind:        KindTransect,
		orientation: angle,
		spacing:     opts.Spacing,
		sweepWidth:  opts.SweepWidth,
		search:      res,
	}
	for _, s := range transectPieces(region, opts.Spacing, angle) {
		id := len(plan.units)
		plan.units = append(plan.units, Unit{
			ID:         id,
			Name:       fmt.Sprintf("%s_%d", opts.Name, id),
			Plan:       opts.Name,
			Kind:       KindTransect,
			Line:       s.LineString(),
			Center:     s.Midpoint(),
			Length:     s.Length(),
			SweepWidth: opts.SweepWidth,
			Area:       region.ClippedArea(geom.Capsule{A: s.A, B: s.B, HalfWidth: opts.SweepWidth}.Polygon()),
			MinTime:    minTime.Draw(rng) * s.Length(),
		})
	}
	return plan, nil
}

// transectPieces returns the clipped pieces of lines laid at spacing through
// the centre of the region's minimum rotated rectangle, rotated by angle.
// At angle 0 the lines run along the y axis.
func transectPieces(region *geom.Region, spacing, angle float64) []geom.Segment {
	rect := region.MinRotatedRectangle()
	c := rect.Center
	diag := rect.Diagonal()
	offsets := centeredOffsets(diag, spacing)

	var out []geom.Segment
	for _, off := range offsets {
		a := geom.Rotate(orb.Point{c[0] + off, c[1] - diag/2}, c, angle)
		b := geom.Rotate(orb.Point{c[0] + off, c[1] + diag/2}, c, angle)
		out = append(out, region.ClipSegment(geom.Segment{A: a, B: b})...)
	}
	return out
}

// checkLayout rejects plans whose candidate line or sector count is not
// finite or exceeds constants.MaxPlanUnits.
func checkLayout(plan string, n float64) error {
	if math.IsNaN(n) || math.IsInf(n, 0) || n > constants.MaxPlanUnits {
		return simerr.Invalid("plan %q: spacing or sweep angle too small, layout needs %g units (limit %d)",
			plan, n, constants.MaxPlanUnits)
	}
	return nil
}

// centeredOffsets returns line offsets symmetric about zero spanning extent.
func centeredOffsets(extent, spacing float64) []float64 {
	n := int(extent / spacing)
	if n < 2 {
		n = constants.MinTransectLines
	}
	offs := make([]float64, n)
	for i := range offs {
		offs[i] = (float64(i) - float64(n-1)/2) * spacing
	}
	return offs
}

// RadialOptions configure a radial plan.
type RadialOptions struct {
	Name string
	// Spacing is the distance between stations on the grid.
	Spacing float64
	// Radius is the search radius about each station.
	Radius float64
	// SweepAngle is the angular width of each unit in degrees. It must be 360
	// or divide 360 and be at most 180. Zero means 360.
	SweepAngle float64
	// Center, when set, places a single station instead of a grid.
	Center      *orb.Point
	Orient      OrientMode
	Orientation float64
	Metric      Metric
	Increment   float64
	// MinTimePerUnit is drawn once per unit. Nil means unconstrained.
	MinTimePerUnit dist.Distribution
}

// Radials places stations over the region, on a rotated grid or at a single
// center, and splits each station's disk into sectors. Stations outside the
// region are dropped, as are sectors with no area inside it.
func Radials(region *geom.Region, opts RadialOptions, rng *randx.Source) (*Plan, error) {
	if region == nil {
		return nil, simerr.Invalid("radial plan %q: region is required", opts.Name)
	}
	if !positive(opts.Radius) || (opts.Center == nil && !positive(opts.Spacing)) {
		return nil, simerr.Invalid("radial plan %q: radius and spacing must be positive, got %g and %g",
			opts.Name, opts.Radius, opts.Spacing)
	}
	sweep := opts.SweepAngle
	if sweep == 0 {
		sweep = constants.DefaultSweepAngle
	}
	sectors := int(math.Round(360 / sweep))
	if sweep <= 0 || (sweep < 360 && sweep > 180) || sweep > 360 || math.Abs(float64(sectors)*sweep-360) > 1e-6 {
		return nil, simerr.Invalid("radial plan %q: sweep angle must be 360 or divide 360 and be at most 180, got %g",
			opts.Name, sweep)
	}
	layoutSize := float64(sectors)
	if opts.Center == nil {
		perSide := region.MinRotatedRectangle().Diagonal() / opts.Spacing
		layoutSize *= perSide * perSide
	}
	if err := checkLayout(opts.Name, layoutSize); err != nil {
		return nil, err
	}
	if opts.Center != nil && !region.Contains(*opts.Center) {
		return nil, simerr.Invalid("radial plan %q: center %v lies outside the region", opts.Name, *opts.Center)
	}
	minTime, err := minTimeDist(opts.MinTimePerUnit)
	if err != nil {
		return nil, err
	}

	stationsAt := func(angle float64) []orb.Point {
		if opts.Center != nil {
			return []orb.Point{*opts.Center}
		}
		return radialStations(region, opts.Spacing, angle)
	}
	layout := func(angle float64) (int, float64, float64) {
		n, area := 0, 0.0
		for _, c := range stationsAt(angle) {
			for k := 0; k < sectors; k++ {
				a := region.ClippedArea(geom.Sector{Center: c, Radius: opts.Radius, Start: angle + float64(k)*sweep, Sweep: sweep}.Polygon())
				if a > constants.GeometryEpsilon {
					n++
					area += a
				}
			}
		}
		return n, float64(n) * opts.Radius, area
	}
	angle, res, err := resolveOrientation(region, opts.Orient, opts.Orientation, opts.Metric, opts.Increment, layout)
	if err != nil {
		return nil, fmt.Errorf("radial plan %q: %w", opts.Name, err)
	}

	if rng == nil {
		rng = randx.New(constants.DefaultSeed)
	}
	plan := &Plan{
		name:        opts.Name,
		region:      region,
		kind:        KindRadial,
		orientation: angle,
		spacing:     opts.Spacing,
		radius:      opts.Radius,
		sweepAngle:  sweep,
		search:      res,
	}
	for _, c := range stationsAt(angle) {
		for k := 0; k < sectors; k++ {
			start := angle + float64(k)*sweep
			area := region.ClippedArea(geom.Sector{Center: c, Radius: opts.Radius, Start: start, Sweep: sweep}.Polygon())
			if area <= constants.GeometryEpsilon {
				continue
			}
			id := len(plan.units)
			plan.units = append(plan.units, Unit{
				ID:         id,
				Name:       fmt.Sprintf("%s_%d", opts.Name, id),
				Plan:       opts.Name,
				Kind:       KindRadial,
				Center:     c,
				Radius:     opts.Radius,
				StartAngle: start,
				SweepAngle: sweep,
				Area:       area,
				MinTime:    minTime.Draw(rng),
			})
		}
	}
	return plan, nil
}

// radialStations returns grid points at spacing about the centre of the
// region's minimum rotated rectangle, rotated by angle, inside the region.
func radialStations(region *geom.Region, spacing, angle float64) []orb.Point {
	rect := region.MinRotatedRectangle()
	c := rect.Center
	offsets := centeredOffsets(rect.Diagonal(), spacing)
	var out []orb.Point
	for _, oy := range offsets {
		for _, ox := range offsets {
			p := geom.Rotate(orb.Point{c[0] + ox, c[1] + oy}, c, angle)
			if region.Contains(p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// UnitSpec describes a fixed, externally supplied unit.
type UnitSpec struct {
	Name       string
	Kind       Kind
	Line       orb.LineString
	Center     orb.Point
	SweepWidth float64
	Radius     float64
	StartAngle float64
	SweepAngle float64
}

// FromUnits builds a plan from fixed units. Transect lines are clipped to the
// region, possibly splitting them; radial units whose center lies outside it
// are dropped.
func FromUnits(name string, region *geom.Region, specs []UnitSpec, minTimePerUnit dist.Distribution, rng *randx.Source) (*Plan, error) {
	if region == nil {
		return nil, simerr.Invalid("fixed plan %q: region is required", name)
	}
	minTime, err := minTimeDist(minTimePerUnit)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = randx.New(constants.DefaultSeed)
	}
	plan := &Plan{name: name, region: region}
	add := func(u Unit) {
		u.ID = len(plan.units)
		u.Plan = name
		if u.Name == "" {
			u.Name = fmt.Sprintf("%s_%d", name, u.ID)
		}
		plan.units = append(plan.units, u)
	}

	for i, s := range specs {
		switch s.Kind {
		case KindTransect:
			if !positive(s.SweepWidth) || len(s.Line) < 2 {
				return nil, simerr.Invalid("fixed plan %q: unit %d needs a line and positive sweep width", name, i)
			}
			for j := 0; j+1 < len(s.Line); j++ {
				for _, piece := range region.ClipSegment(geom.Segment{A: s.Line[j], B: s.Line[j+1]}) {
					add(Unit{
						Name:       s.Name,
						Kind:       KindTransect,
						Line:       piece.LineString(),
						Center:     piece.Midpoint(),
						Length:     piece.Length(),
						SweepWidth: s.SweepWidth,
						Area:       region.ClippedArea(geom.Capsule{A: piece.A, B: piece.B, HalfWidth: s.SweepWidth}.Polygon()),
						MinTime:    minTime.Draw(rng) * piece.Length(),
					})
				}
			}
		case KindRadial:
			sweep := s.SweepAngle
			if sweep == 0 {
				sweep = 360
			}
			if !positive(s.Radius) || sweep < 0 || (sweep > 180 && sweep < 360) || sweep > 360 {
				return nil, simerr.Invalid("fixed plan %q: unit %d needs a positive radius and a sweep of 360 or at most 180", name, i)
			}
			if !region.Contains(s.Center) {
				continue
			}
			sector := geom.Sector{Center: s.Center, Radius: s.Radius, Start: s.StartAngle, Sweep: sweep}
			add(Unit{
				Name:       s.Name,
				Kind:       KindRadial,
				Center:     s.Center,
				Radius:     s.Radius,
				StartAngle: s.StartAngle,
				SweepAngle: sweep,
				Area:       region.ClippedArea(sector.Polygon()),
				MinTime:    minTime.Draw(rng),
			})
		default:
			return nil, simerr.Invalid("fixed plan %q: unit %d has unknown kind %q", name, i, s.Kind)
		}
		if plan.kind == "" {
			plan.kind = s.Kind
		}
	}
	return plan, nil
}

// SearchTransectOrientation evaluates transect layouts over [0, 180).
func SearchTransectOrientation(region *geom.Region, spacing, sweepWidth float64, metric Metric, increment float64) (OrientationResult, error) {
	if region == nil || !positive(spacing) || !positive(sweepWidth) {
		return OrientationResult{}, simerr.Invalid("orientation search needs a region and positive spacing and sweep width")
	}
	return search(increment, metric, transectLayout(region, spacing, sweepWidth))
}

func transectLayout(region *geom.Region, spacing, sweepWidth float64) layoutFunc {
	return func(angle float64) (int, float64, float64) {
		pieces := transectPieces(region, spacing, angle)
		length, area := 0.0, 0.0
		for _, s := range pieces {
			length += s.Length()
			area += region.ClippedArea(geom.Capsule{A: s.A, B: s.B, HalfWidth: sweepWidth}.Polygon())
		}
		return len(pieces), length, area
	}
}

// AxisOrientation returns the transect angle that runs lines parallel to the
// long or short axis of the region's minimum rotated rectangle.
func AxisOrientation(region *geom.Region, mode OrientMode) (float64, error) {
	rect := region.MinRotatedRectangle()
	var axis float64
	switch mode {
	case OrientLong:
		axis = rect.LongAxisAngle()
	case OrientShort:
		axis = rect.ShortAxisAngle()
	default:
		return 0, simerr.Invalid("axis orientation needs mode long or short, got %q", mode)
	}
	// Lines at angle 0 run along +y, which is direction 90.
	return normalizeDegrees(axis - 90), nil
}

func resolveOrientation(region *geom.Region, mode OrientMode, fixed float64, metric Metric, increment float64, layout layoutFunc) (float64, *OrientationResult, error) {
	switch mode {
	case "", OrientFixed:
		if math.IsNaN(fixed) || math.IsInf(fixed, 0) {
			return 0, nil, simerr.Invalid("orientation must be finite")
		}
		return normalizeDegrees(fixed), nil, nil
	case OrientSearch:
		if increment == 0 {
			increment = constants.DefaultOrientationIncrement
		}
		res, err := search(increment, metric, layout)
		if err != nil {
			return 0, nil, err
		}
		return res.Angle, &res, nil
	case OrientLong, OrientShort:
		a, err := AxisOrientation(region, mode)
		return a, nil, err
	default:
		return 0, nil, simerr.Invalid("unknown orientation mode %q", mode)
	}
}

func minTimeDist(d dist.Distribution) (dist.Distribution, error) {
	if d == nil {
		return dist.Constant(0), nil
	}
	if err := dist.NonNegative("min_time_per_unit", d); err != nil {
		return nil, err
	}
	return d, nil
}

func normalizeDegrees(deg float64) float64 {
	a := math.Mod(deg, 180)
	if a < 0 {
		a += 180
	}
	if a >= 180-constants.GeometryEpsilon {
		a = 0
	}
	return a
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
