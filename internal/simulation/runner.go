package simulation

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"github.com/prospectsim/prospect/internal/constants"
	"github.com/prospectsim/prospect/internal/coverage"
	"github.com/prospectsim/prospect/internal/dist"
	"github.com/prospectsim/prospect/internal/feature"
	"github.com/prospectsim/prospect/internal/geom"
	"github.com/prospectsim/prospect/internal/randx"
	"github.com/prospectsim/prospect/internal/store"
	"github.com/prospectsim/prospect/internal/survey"
	"github.com/prospectsim/prospect/internal/team"
)

// Runner orchestrates survey experiments against a real run store.
type Runner struct {
	t     *testing.T
	store *store.SQLiteRunStore
}

// NewRunner creates a simulation runner with an isolated SQLite store
// and sandboxed HOME directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	s, err := store.NewSQLiteRunStore(filepath.Join(tmpDir, "runs.db"))
	if err != nil {
		t.Fatalf("NewRunner: failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &Runner{t: t, store: s}
}

// Run executes the scenario and returns the collected results.
func (r *Runner) Run(scenario Scenario) SimulationResult {
	r.t.Helper()
	ctx := context.Background()

	// Phase 1: Build the region, layers and plan.
	region := r.region(scenario)
	asm := r.assemblage(scenario, region)
	plan := r.plan(scenario, region)

	// Phase 2: Assemble the survey.
	tm, err := team.New("crew", scenario.Policy, scenario.Surveyors...)
	if err != nil {
		r.t.Fatalf("%s: team.New: %v", scenario.Name, err)
	}
	cfg := survey.DefaultConfig()
	if scenario.Config != nil {
		cfg = *scenario.Config
	}
	sv, err := survey.New(scenario.Name, asm, plan, tm, survey.WithConfig(cfg))
	if err != nil {
		r.t.Fatalf("%s: survey.New: %v", scenario.Name, err)
	}

	// Phase 3: Run and persist batches.
	batches := make([]BatchResult, len(scenario.Batches))
	for i, n := range scenario.Batches {
		if scenario.BeforeBatch != nil {
			scenario.BeforeBatch(i, sv)
		}
		b, err := sv.Run(ctx, n)
		if err != nil {
			r.t.Fatalf("%s: batch %d: Run: %v", scenario.Name, i, err)
		}
		if n > 0 {
			if err := r.store.SaveBatch(ctx, b); err != nil {
				r.t.Fatalf("%s: batch %d: SaveBatch: %v", scenario.Name, i, err)
			}
		}
		batches[i] = BatchResult{Index: i, Batch: b, Frequencies: survey.Frequencies(b.Records)}
	}

	return SimulationResult{
		Scenario:   scenario,
		Batches:    batches,
		Survey:     sv,
		Region:     region,
		Assemblage: asm,
		Plan:       plan,
		Store:      r.store,
	}
}

func (r *Runner) region(scenario Scenario) *geom.Region {
	r.t.Helper()
	if scenario.Region != nil {
		return scenario.Region
	}
	area := scenario.RegionArea
	if area == 0 {
		area = 10000
	}
	region, err := geom.RegionFromArea(scenario.Name, area, orb.Point{})
	if err != nil {
		r.t.Fatalf("%s: RegionFromArea: %v", scenario.Name, err)
	}
	return region
}

func (r *Runner) assemblage(scenario Scenario, region *geom.Region) *feature.Assemblage {
	r.t.Helper()
	root := randx.New(scenario.LayerSeed)
	layers := make([]*feature.Layer, 0, len(scenario.Layers))
	for i, ls := range scenario.Layers {
		rate := 1.0
		if ls.IdealObsRate != nil {
			rate = *ls.IdealObsRate
		}
		params := feature.LayerParams{
			Name:         ls.Name,
			IdealObsRate: dist.Constant(rate),
			TimePenalty:  dist.Constant(ls.TimePenalty),
		}
		rng := root.Derive(uint64(i))

		var (
			l   *feature.Layer
			err error
		)
		switch ls.Process {
		case "", feature.ProcessUniform:
			l, err = feature.Pseudorandom(region, ls.Count, params, rng)
		case feature.ProcessPoisson:
			l, err = feature.Poisson(region, ls.Rate, params, rng)
		case feature.ProcessFixed:
			shapes := make([]orb.Geometry, len(ls.Points))
			for j, p := range ls.Points {
				shapes[j] = p
			}
			l, err = feature.FromShapes(region, shapes, params, rng)
		default:
			err = fmt.Errorf("harness does not generate %q layers", ls.Process)
		}
		if err != nil {
			r.t.Fatalf("%s: layer %s: %v", scenario.Name, ls.Name, err)
		}
		layers = append(layers, l)
	}
	asm, err := feature.NewAssemblage(scenario.Name, layers...)
	if err != nil {
		r.t.Fatalf("%s: NewAssemblage: %v", scenario.Name, err)
	}
	return asm
}

func (r *Runner) plan(scenario Scenario, region *geom.Region) *coverage.Plan {
	r.t.Helper()
	cs := scenario.Coverage
	spacing := orDefault(cs.Spacing, constants.DefaultTransectSpacing)
	minTime := dist.Constant(cs.MinTime)

	var (
		p   *coverage.Plan
		err error
	)
	switch cs.Kind {
	case "", coverage.KindTransect:
		p, err = coverage.Transects(region, coverage.TransectOptions{
			Name:           "tx",
			Spacing:        spacing,
			SweepWidth:     orDefault(cs.SweepWidth, constants.DefaultSweepWidth),
			Orientation:    cs.Orientation,
			MinTimePerUnit: minTime,
		}, nil)
	case coverage.KindRadial:
		p, err = coverage.Radials(region, coverage.RadialOptions{
			Name:           "rad",
			Spacing:        spacing,
			Radius:         orDefault(cs.Radius, constants.DefaultRadialRadius),
			SweepAngle:     cs.SweepAngle,
			Orientation:    cs.Orientation,
			MinTimePerUnit: minTime,
		}, nil)
	default:
		err = fmt.Errorf("unknown coverage kind %q", cs.Kind)
	}
	if err != nil {
		r.t.Fatalf("%s: coverage: %v", scenario.Name, err)
	}
	return p
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// FormatBatchDebug returns a debug string for a batch result.
func FormatBatchDebug(br BatchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %d: id=%s runs=%d records=%d\n", br.Index, br.Batch.ID, br.Batch.Runs, len(br.Batch.Records))
	for _, ff := range br.Frequencies {
		fmt.Fprintf(&b, "  %s: frequency=%.4f mean_p=%.4f\n", ff.Feature, ff.Frequency, ff.MeanProbability)
	}
	return b.String()
}
