package coverage

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/prospectsim/prospect/internal/dist"
	"github.com/prospectsim/prospect/internal/geom"
	"github.com/prospectsim/prospect/internal/randx"
	"github.com/prospectsim/prospect/internal/simerr"
)

func squareRegion(t *testing.T, area float64) *geom.Region {
	t.Helper()
	r, err := geom.RegionFromArea("sq", area, orb.Point{})
	if err != nil {
		t.Fatalf("RegionFromArea: %v", err)
	}
	return r
}

// rectRegion returns a w x h axis-aligned rectangle at the origin.
func rectRegion(t *testing.T, w, h float64) *geom.Region {
	t.Helper()
	r, err := geom.NewRegion("rect", orb.Bound{Max: orb.Point{w, h}})
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	return r
}

func assertUnitsInside(t *testing.T, p *Plan) {
	t.Helper()
	r := p.Region()
	for _, u := range p.Units() {
		if !r.Contains(u.Center) {
			t.Fatalf("unit %s center %v lies outside the region", u.Name, u.Center)
		}
		for _, pt := range u.Line {
			b := r.Bound().Pad(1e-6)
			if !b.Contains(pt) {
				t.Fatalf("unit %s endpoint %v lies outside the region", u.Name, pt)
			}
		}
		if u.Area <= 0 || u.Area > r.Area()+1e-6 {
			t.Fatalf("unit %s has area %v", u.Name, u.Area)
		}
	}
}

func TestTransects_SquareAtZero(t *testing.T) {
	r := squareRegion(t, 10000)
	p, err := Transects(r, TransectOptions{Name: "t", Spacing: 10, SweepWidth: 2}, nil)
	if err != nil {
		t.Fatalf("Transects: %v", err)
	}
	if p.Len() != 10 {
		t.Fatalf("Len = %d, want 10", p.Len())
	}
	for _, u := range p.Units() {
		if math.Abs(u.Length-100) > 1e-6 {
			t.Errorf("unit %s length = %v, want 100", u.Name, u.Length)
		}
		if math.Abs(u.Area-400) > 1e-6 {
			t.Errorf("unit %s area = %v, want 400", u.Name, u.Area)
		}
		if u.MinTime != 0 {
			t.Errorf("nil MinTimePerUnit should leave MinTime 0, got %v", u.MinTime)
		}
	}
	assertUnitsInside(t, p)
	if math.Abs(p.TotalLength()-1000) > 1e-6 {
		t.Errorf("TotalLength = %v", p.TotalLength())
	}
}

func TestTransects_ConcaveSplitsLines(t *testing.T) {
	r, err := geom.NewRegion("U", orb.Polygon{orb.Ring{
		{0, 0}, {30, 0}, {30, 30}, {20, 30}, {20, 10}, {10, 10}, {10, 30}, {0, 30}, {0, 0},
	}})
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	p, err := Transects(r, TransectOptions{Name: "u", Spacing: 5, SweepWidth: 1, Orientation: 90}, nil)
	if err != nil {
		t.Fatalf("Transects: %v", err)
	}
	assertUnitsInside(t, p)
	// Horizontal lines above y=10 cross both arms and split in two.
	split := 0
	for _, u := range p.Units() {
		if u.Center[1] > 10 && u.Length < 15 {
			split++
		}
	}
	if split == 0 {
		t.Error("expected lines through the U's arms to be split")
	}
}

func TestTransects_MinTimeScalesWithLength(t *testing.T) {
	r := squareRegion(t, 400)
	p, err := Transects(r, TransectOptions{Name: "t", Spacing: 5, SweepWidth: 1, MinTimePerUnit: dist.Constant(0.5)}, nil)
	if err != nil {
		t.Fatalf("Transects: %v", err)
	}
	for _, u := range p.Units() {
		if math.Abs(u.MinTime-0.5*u.Length) > 1e-9 {
			t.Errorf("MinTime = %v, want %v", u.MinTime, 0.5*u.Length)
		}
	}
}

func TestTransects_InvalidParameters(t *testing.T) {
	r := squareRegion(t, 100)
	tests := []TransectOptions{
		{Name: "zero spacing", Spacing: 0, SweepWidth: 1},
		{Name: "negative width", Spacing: 1, SweepWidth: -1},
		{Name: "bad increment", Spacing: 1, SweepWidth: 1, Orient: OrientSearch, Increment: -5},
		{Name: "bad mode", Spacing: 1, SweepWidth: 1, Orient: "diagonal"},
		{Name: "bad metric", Spacing: 1, SweepWidth: 1, Orient: OrientSearch, Metric: "beauty"},
		{Name: "negative time", Spacing: 1, SweepWidth: 1, MinTimePerUnit: dist.Constant(-1)},
		{Name: "spacing too fine", Spacing: 1e-12, SweepWidth: 1},
		{Name: "increment too fine", Spacing: 1, SweepWidth: 1, Orient: OrientSearch, Increment: 1e-9},
	}
	for _, opts := range tests {
		t.Run(opts.Name, func(t *testing.T) {
			if _, err := Transects(r, opts, nil); !errors.Is(err, simerr.ErrInvalidParameters) {
				t.Errorf("expected ErrInvalidParameters, got %v", err)
			}
		})
	}
}

func TestRadials_RejectsOversizedLayout(t *testing.T) {
	r := squareRegion(t, 100)
	center := orb.Point{5, 5}
	tests := []RadialOptions{
		{Name: "grid too fine", Spacing: 1e-6, Radius: 1},
		{Name: "sweep too narrow", Center: &center, Radius: 1, SweepAngle: 1e-4},
	}
	for _, opts := range tests {
		t.Run(opts.Name, func(t *testing.T) {
			if _, err := Radials(r, opts, nil); !errors.Is(err, simerr.ErrInvalidParameters) {
				t.Errorf("expected ErrInvalidParameters, got %v", err)
			}
		})
	}
}

func TestSearchOrientation_PrefersLongAxis(t *testing.T) {
	// A long thin region: lines along its length (angle 0, running along y)
	// give fewer, longer transects.
	r := rectRegion(t, 20, 200)
	res, err := SearchTransectOrientation(r, 10, 2, MetricUnits, 5)
	if err != nil {
		t.Fatalf("SearchTransectOrientation: %v", err)
	}
	if len(res.Candidates) != 36 {
		t.Fatalf("candidates = %d, want 36", len(res.Candidates))
	}
	for _, c := range res.Candidates {
		if c.Angle < 0 || c.Angle >= 180 {
			t.Errorf("candidate angle %v outside [0, 180)", c.Angle)
		}
		if c.Score > res.Score {
			t.Errorf("candidate %v beats chosen score %v", c, res.Score)
		}
	}
	if res.Angle == 0 {
		t.Errorf("unit-count metric should not choose the long axis, chose %v", res.Angle)
	}

	byLength, err := SearchTransectOrientation(r, 10, 2, MetricLength, 5)
	if err != nil {
		t.Fatalf("SearchTransectOrientation: %v", err)
	}
	if byLength.Score <= 0 {
		t.Errorf("length score should be positive, got %v", byLength.Score)
	}
}

func TestSearchOrientation_Idempotent(t *testing.T) {
	r, err := geom.NewRegion("tri", orb.Polygon{orb.Ring{{0, 0}, {80, 10}, {30, 60}, {0, 0}}})
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	a, err := SearchTransectOrientation(r, 7, 2, MetricArea, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	b, _ := SearchTransectOrientation(r, 7, 2, MetricArea, 5)
	if a.Angle != b.Angle || a.Score != b.Score {
		t.Errorf("searches differ: %v/%v vs %v/%v", a.Angle, a.Score, b.Angle, b.Score)
	}
}

func TestSearchOrientation_TiesChooseSmallestAngle(t *testing.T) {
	res, err := search(45, MetricArea, func(float64) (int, float64, float64) { return 1, 1, 7 })
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Angle != 0 {
		t.Errorf("ties should resolve to 0, got %v", res.Angle)
	}
	degenerate, _ := search(30, MetricArea, func(float64) (int, float64, float64) { return 0, 0, 0 })
	if degenerate.Angle != 0 || degenerate.Score != 0 {
		t.Errorf("degenerate search = %+v, want angle 0 score 0", degenerate)
	}
}

func TestAxisOrientation(t *testing.T) {
	r := rectRegion(t, 100, 10)
	long, err := AxisOrientation(r, OrientLong)
	if err != nil {
		t.Fatalf("AxisOrientation: %v", err)
	}
	// The long axis runs along x (direction 0), so lines rotate by 90.
	if math.Abs(long-90) > 1e-6 {
		t.Errorf("long-axis angle = %v, want 90", long)
	}
	p, err := Transects(r, TransectOptions{Name: "t", Spacing: 2, SweepWidth: 1, Orient: OrientLong}, nil)
	if err != nil {
		t.Fatalf("Transects: %v", err)
	}
	for _, u := range p.Units() {
		if math.Abs(u.Length-100) > 1e-6 {
			t.Fatalf("long-axis transect length = %v, want 100", u.Length)
		}
	}
	short, _ := AxisOrientation(r, OrientShort)
	if math.Abs(short) > 1e-6 {
		t.Errorf("short-axis angle = %v, want 0", short)
	}
}

func TestRadials_GridAndSectors(t *testing.T) {
	r := squareRegion(t, 400)
	disks, err := Radials(r, RadialOptions{Name: "r", Spacing: 5, Radius: 1.78}, nil)
	if err != nil {
		t.Fatalf("Radials: %v", err)
	}
	if disks.Len() == 0 {
		t.Fatal("expected radial units")
	}
	assertUnitsInside(t, disks)

	quarters, err := Radials(r, RadialOptions{Name: "q", Spacing: 5, Radius: 1.78, SweepAngle: 90}, nil)
	if err != nil {
		t.Fatalf("Radials: %v", err)
	}
	// Stations on the boundary lose the sectors that face outward.
	if quarters.Len() <= disks.Len() || quarters.Len() > 4*disks.Len() {
		t.Errorf("quarter sectors = %d for %d stations", quarters.Len(), disks.Len())
	}
	if math.Abs(quarters.TotalArea()-disks.TotalArea()) > 1e-6*disks.TotalArea() {
		t.Errorf("sector areas %v should sum to disk areas %v", quarters.TotalArea(), disks.TotalArea())
	}
}

func TestRadials_SingleCenter(t *testing.T) {
	r := squareRegion(t, 100)
	c := orb.Point{5, 5}
	p, err := Radials(r, RadialOptions{Name: "c", Radius: 2, SweepAngle: 120, Center: &c}, randx.New(1))
	if err != nil {
		t.Fatalf("Radials: %v", err)
	}
	if p.Len() != 3 {
		t.Errorf("Len = %d, want 3", p.Len())
	}
	outside := orb.Point{50, 50}
	if _, err := Radials(r, RadialOptions{Name: "c", Radius: 2, Center: &outside}, nil); !errors.Is(err, simerr.ErrInvalidParameters) {
		t.Errorf("center outside region should be invalid, got %v", err)
	}
	if _, err := Radials(r, RadialOptions{Name: "c", Radius: 2, SweepAngle: 250, Center: &c}, nil); !errors.Is(err, simerr.ErrInvalidParameters) {
		t.Errorf("sweep 250 should be invalid, got %v", err)
	}
}

func TestFromUnits(t *testing.T) {
	r := squareRegion(t, 100)
	specs := []UnitSpec{
		{Kind: KindTransect, Line: orb.LineString{{-5, 5}, {15, 5}}, SweepWidth: 1},
		{Kind: KindRadial, Center: orb.Point{2, 2}, Radius: 1},
		{Kind: KindRadial, Center: orb.Point{50, 50}, Radius: 1},
	}
	p, err := FromUnits("fixed", r, specs, dist.Constant(2), nil)
	if err != nil {
		t.Fatalf("FromUnits: %v", err)
	}
	if p.Len() != 2 {
		t.Fatalf("Len = %d, want 2", p.Len())
	}
	units := p.Units()
	if math.Abs(units[0].Length-10) > 1e-9 || math.Abs(units[0].MinTime-20) > 1e-9 {
		t.Errorf("clipped transect = %+v", units[0])
	}
	if units[1].MinTime != 2 {
		t.Errorf("radial MinTime = %v, want 2", units[1].MinTime)
	}
	if _, err := FromUnits("bad", r, []UnitSpec{{Kind: "spiral"}}, nil, nil); !errors.Is(err, simerr.ErrInvalidParameters) {
		t.Errorf("unknown kind should be invalid, got %v", err)
	}
}
