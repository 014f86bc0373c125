package scenario

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"

	"github.com/prospectsim/prospect/internal/constants"
	"github.com/prospectsim/prospect/internal/coverage"
	"github.com/prospectsim/prospect/internal/feature"
	"github.com/prospectsim/prospect/internal/geom"
	"github.com/prospectsim/prospect/internal/logging"
	"github.com/prospectsim/prospect/internal/randx"
	"github.com/prospectsim/prospect/internal/simerr"
	"github.com/prospectsim/prospect/internal/survey"
	"github.com/prospectsim/prospect/internal/team"
)

// Stream labels for the sources derived from the scenario seed.
const (
	streamLayers uint64 = iota + 1
	streamCoverage
	streamTeam
	streamRuns
)

// Built holds the entities a scenario describes.
type Built struct {
	Scenario   *Scenario
	Region     *geom.Region
	Layers     []*feature.Layer
	Assemblage *feature.Assemblage
	Plan       *coverage.Plan
	Team       *team.Team
	Survey     *survey.Survey
}

// RunOptions returns the run options the scenario's survey settings imply.
func (b *Built) RunOptions() []survey.RunOption {
	if id := b.Scenario.Survey.StartRunID; id != nil {
		return []survey.RunOption{survey.WithStartRunID(*id)}
	}
	return nil
}

// Build constructs every entity. Each stochastic step draws from its own
// stream derived from the scenario seed, so changing one section never
// perturbs the draws of another. Extra survey options are applied last.
func (s *Scenario) Build(logger *slog.Logger, opts ...survey.Option) (*Built, error) {
	logger = logging.OrNop(logger)
	root := randx.New(s.Seed)

	region, err := s.BuildRegion()
	if err != nil {
		return nil, err
	}
	layers, err := s.BuildLayers(region)
	if err != nil {
		return nil, err
	}
	asm, err := feature.NewAssemblage(s.Name, layers...)
	if err != nil {
		return nil, err
	}
	plan, err := s.BuildPlan(region)
	if err != nil {
		return nil, err
	}
	tm, err := s.BuildTeam()
	if err != nil {
		return nil, err
	}

	cfg := survey.DefaultConfig()
	cfg.DiscoveryThreshold = s.Survey.DiscoveryThreshold
	if s.Survey.Workers > 0 {
		cfg.Workers = s.Survey.Workers
	}
	cfg.Seed = root.Derive(streamRuns).Seed()
	all := append([]survey.Option{survey.WithConfig(cfg), survey.WithLogger(logger)}, opts...)
	sv, err := survey.New(s.Name, asm, plan, tm, all...)
	if err != nil {
		return nil, err
	}

	logger.Debug("scenario built", "scenario", s.Name, "features", asm.Len(), "units", plan.Len(),
		"surveyors", tm.Len(), "area", region.Area())
	return &Built{
		Scenario:   s,
		Region:     region,
		Layers:     layers,
		Assemblage: asm,
		Plan:       plan,
		Team:       tm,
		Survey:     sv,
	}, nil
}

// SearchOrientation evaluates transect orientations over the scenario's
// region. Zero increment and empty metric fall back to the coverage
// settings and then to the defaults. Only transect coverage can be searched.
func (s *Scenario) SearchOrientation(increment float64, metric coverage.Metric) (coverage.OrientationResult, error) {
	cs := s.Coverage
	if coverage.Kind(cs.Kind) != coverage.KindTransect {
		return coverage.OrientationResult{}, simerr.Invalid("orientation search needs transect coverage, got %q", cs.Kind)
	}
	region, err := s.BuildRegion()
	if err != nil {
		return coverage.OrientationResult{}, err
	}
	if increment == 0 {
		increment = orDefault(cs.Increment, constants.DefaultOrientationIncrement)
	}
	if metric == "" {
		metric = coverage.Metric(cs.Metric)
	}
	return coverage.SearchTransectOrientation(region,
		orDefault(cs.Spacing, constants.DefaultTransectSpacing),
		orDefault(cs.SweepWidth, constants.DefaultSweepWidth),
		metric, increment)
}

// BuildRegion constructs the scenario's region.
func (s *Scenario) BuildRegion() (*geom.Region, error) {
	rs := s.Region
	name := rs.Name
	if name == "" {
		name = s.Name
	}

	var (
		region *geom.Region
		err    error
	)
	switch {
	case rs.Area != 0:
		region, err = geom.RegionFromArea(name, rs.Area, orb.Point(rs.Origin))
	case len(rs.Polygon) > 0:
		ring := make(orb.Ring, 0, len(rs.Polygon)+1)
		for _, p := range rs.Polygon {
			ring = append(ring, orb.Point(p))
		}
		region, err = geom.NewRegion(name, orb.Polygon{ring})
	case rs.GeoJSON != "":
		path := rs.GeoJSON
		if !filepath.IsAbs(path) && s.dir != "" {
			path = filepath.Join(s.dir, path)
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("reading region geojson: %w", readErr)
		}
		region, err = geom.RegionFromGeoJSON(name, data)
	default:
		return nil, simerr.Invalid("region needs one of area, polygon and geojson")
	}
	if err != nil {
		return nil, err
	}

	vis, err := rs.Visibility.Build(1)
	if err != nil {
		return nil, fmt.Errorf("region visibility: %w", err)
	}
	return region.WithVisibility(vis)
}

// BuildLayers generates every layer over region.
func (s *Scenario) BuildLayers(region *geom.Region) ([]*feature.Layer, error) {
	root := randx.New(s.Seed)
	layers := make([]*feature.Layer, 0, len(s.Layers))
	for i, ls := range s.Layers {
		l, err := ls.build(region, root.Derive(streamLayers, uint64(i)))
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", ls.Name, err)
		}
		layers = append(layers, l)
	}
	return layers, nil
}

func (ls LayerSpec) build(region *geom.Region, rng *randx.Source) (*feature.Layer, error) {
	rate, err := ls.IdealObsRate.Build(1)
	if err != nil {
		return nil, err
	}
	penalty, err := ls.TimePenalty.Build(0)
	if err != nil {
		return nil, err
	}
	params := feature.LayerParams{Name: ls.Name, IdealObsRate: rate, TimePenalty: penalty, MaxAttempts: ls.MaxAttempts}
	cluster := feature.ClusterOptions{
		ParentRate: ls.ParentRate,
		ChildRate:  ls.ChildRate,
		ChildCount: ls.ChildCount,
		Radius:     ls.Radius,
		Sigma:      ls.Sigma,
	}
	shapes := feature.ShapeOptions{
		Count:     ls.Count,
		Width:     ls.Width,
		Height:    ls.Height,
		Radius:    ls.Radius,
		Placement: feature.Placement(ls.Placement),
	}

	switch feature.Process(ls.Process) {
	case feature.ProcessUniform:
		return feature.Pseudorandom(region, ls.Count, params, rng)
	case feature.ProcessPoisson:
		return feature.Poisson(region, ls.Rate, params, rng)
	case feature.ProcessMatern:
		return feature.Matern(region, cluster, params, rng)
	case feature.ProcessThomas:
		return feature.Thomas(region, cluster, params, rng)
	case feature.ProcessRectangles:
		return feature.Rectangles(region, shapes, params, rng)
	case feature.ProcessDisks:
		return feature.Disks(region, shapes, params, rng)
	case feature.ProcessFixed:
		pts := make([]orb.Geometry, len(ls.Points))
		for i, p := range ls.Points {
			pts[i] = orb.Point(p)
		}
		return feature.FromShapes(region, pts, params, rng)
	default:
		return nil, simerr.Invalid("unknown process %q", ls.Process)
	}
}

// BuildPlan lays out the scenario's coverage plan over region.
func (s *Scenario) BuildPlan(region *geom.Region) (*coverage.Plan, error) {
	cs := s.Coverage
	name := cs.Name
	if name == "" {
		name = "units"
	}
	minTime, err := cs.MinTimePerUnit.Build(0)
	if err != nil {
		return nil, fmt.Errorf("coverage min_time_per_unit: %w", err)
	}
	rng := randx.New(s.Seed).Derive(streamCoverage)

	switch coverage.Kind(cs.Kind) {
	case coverage.KindTransect:
		return coverage.Transects(region, coverage.TransectOptions{
			Name:           name,
			Spacing:        orDefault(cs.Spacing, constants.DefaultTransectSpacing),
			SweepWidth:     orDefault(cs.SweepWidth, constants.DefaultSweepWidth),
			Orient:         cs.Orientation.Mode,
			Orientation:    cs.Orientation.Angle,
			Metric:         coverage.Metric(cs.Metric),
			Increment:      cs.Increment,
			MinTimePerUnit: minTime,
		}, rng)
	case coverage.KindRadial:
		opts := coverage.RadialOptions{
			Name:           name,
			Spacing:        orDefault(cs.Spacing, constants.DefaultTransectSpacing),
			Radius:         orDefault(cs.Radius, constants.DefaultRadialRadius),
			SweepAngle:     cs.SweepAngle,
			Orient:         cs.Orientation.Mode,
			Orientation:    cs.Orientation.Angle,
			Metric:         coverage.Metric(cs.Metric),
			Increment:      cs.Increment,
			MinTimePerUnit: minTime,
		}
		if cs.Center != nil {
			c := orb.Point(*cs.Center)
			opts.Center = &c
		}
		return coverage.Radials(region, opts, rng)
	case kindFixed:
		specs := make([]coverage.UnitSpec, len(cs.Units))
		for i, u := range cs.Units {
			line := make(orb.LineString, len(u.Line))
			for j, p := range u.Line {
				line[j] = orb.Point(p)
			}
			specs[i] = coverage.UnitSpec{
				Name:       u.Name,
				Kind:       coverage.Kind(u.Kind),
				Line:       line,
				Center:     orb.Point(u.Center),
				SweepWidth: orDefault(u.SweepWidth, constants.DefaultSweepWidth),
				Radius:     orDefault(u.Radius, constants.DefaultRadialRadius),
				StartAngle: u.StartAngle,
				SweepAngle: u.SweepAngle,
			}
		}
		return coverage.FromUnits(name, region, specs, minTime, rng)
	default:
		return nil, simerr.Invalid("unknown coverage kind %q", cs.Kind)
	}
}

// BuildTeam draws the scenario's surveyors. A spec with Count n > 1 yields
// surveyors named name_1 through name_n.
func (s *Scenario) BuildTeam() (*team.Team, error) {
	name := s.Team.Name
	if name == "" {
		name = "team"
	}
	rng := randx.New(s.Seed).Derive(streamTeam)

	var crew []team.Surveyor
	for _, ss := range s.Team.Surveyors {
		skill, err := ss.Skill.Build(1)
		if err != nil {
			return nil, fmt.Errorf("surveyor %q skill: %w", ss.Name, err)
		}
		speed, err := ss.SpeedPenalty.Build(1)
		if err != nil {
			return nil, fmt.Errorf("surveyor %q speed_penalty: %w", ss.Name, err)
		}
		n := max(ss.Count, 1)
		for i := 1; i <= n; i++ {
			svName := ss.Name
			if n > 1 {
				svName = fmt.Sprintf("%s_%d", ss.Name, i)
			}
			sv, err := team.NewSurveyor(name, team.Spec{Name: svName, Type: ss.Type, Skill: skill, SpeedPenalty: speed}, rng)
			if err != nil {
				return nil, err
			}
			crew = append(crew, sv)
		}
	}
	return team.New(name, team.Assignment(s.Team.Assignment), crew...)
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
