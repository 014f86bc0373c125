package scenario

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/prospectsim/prospect/internal/coverage"
	"github.com/prospectsim/prospect/internal/simerr"
	"github.com/prospectsim/prospect/internal/survey"
	"github.com/prospectsim/prospect/internal/team"
)

func TestLoad_Field(t *testing.T) {
	sc, err := Load(filepath.Join("testdata", "field.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sc.Name != "field" || sc.Seed != 7 {
		t.Errorf("got name %q seed %d", sc.Name, sc.Seed)
	}
	if sc.Coverage.Orientation.Mode != coverage.OrientSearch {
		t.Errorf("orientation mode = %q, want search", sc.Coverage.Orientation.Mode)
	}
	if got := sc.Layers[1].TimePenalty; got == nil || got.Value != 2 {
		t.Errorf("scalar time_penalty should decode as a constant, got %+v", got)
	}

	b, err := sc.Build(nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if math.Abs(b.Region.Area()-10000) > 1e-6 {
		t.Errorf("region area = %v", b.Region.Area())
	}
	if len(b.Layers) != 3 || b.Layers[0].Len() != 40 || b.Layers[2].Len() != 3 {
		t.Errorf("unexpected layers: %d", len(b.Layers))
	}
	if b.Team.Len() != 3 {
		t.Errorf("team size = %d, want 3", b.Team.Len())
	}
	names := []string{}
	for _, sv := range b.Team.Snapshot() {
		names = append(names, sv.Name)
	}
	if want := []string{"lead", "student_1", "student_2"}; !reflect.DeepEqual(names, want) {
		t.Errorf("surveyors = %v, want %v", names, want)
	}
	if b.Team.Policy() != team.Shuffle {
		t.Errorf("policy = %q", b.Team.Policy())
	}
	if _, ok := b.Plan.Search(); !ok {
		t.Error("search orientation should record its candidates")
	}
	for _, u := range b.Plan.Units() {
		if u.MinTime != 0.5*u.Length {
			t.Fatalf("unit %s min time = %v, want %v", u.Name, u.MinTime, 0.5*u.Length)
		}
	}
	if cfg := b.Survey.Config(); cfg.Workers != 2 || cfg.DiscoveryThreshold != 0.05 {
		t.Errorf("survey config = %+v", cfg)
	}

	batch, err := b.Survey.Run(context.Background(), sc.Survey.NRuns, b.RunOptions()...)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(batch.Records) != sc.Survey.NRuns*b.Assemblage.Len() {
		t.Errorf("records = %d", len(batch.Records))
	}
}

func TestBuild_Deterministic(t *testing.T) {
	run := func(seed uint64) []survey.Record {
		sc, err := Load(filepath.Join("testdata", "field.yaml"))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		sc.Seed = seed
		b, err := sc.Build(nil)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if _, err := b.Survey.Run(context.Background(), 10); err != nil {
			t.Fatalf("Run: %v", err)
		}
		return b.Survey.Log()
	}
	if !reflect.DeepEqual(run(11), run(11)) {
		t.Error("same seed should give the same log")
	}
	if reflect.DeepEqual(run(11), run(12)) {
		t.Error("different seeds should give different logs")
	}
}

func TestBuild_GeoJSONRegionAndFixedUnits(t *testing.T) {
	dir := t.TempDir()
	data, err := os.ReadFile(filepath.Join("testdata", "site.geojson"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "site.geojson"), data, 0o600); err != nil {
		t.Fatal(err)
	}
	doc := `
name: fixed
region:
  geojson: site.geojson
layers:
  - name: finds
    process: fixed
    points: [[10, 10], [25, 20], [80, 80]]
coverage:
  kind: fixed
  units:
    - kind: transect
      line: [[0, 10], [50, 10]]
      sweep_width: 1
    - kind: radial
      center: [25, 20]
      radius: 3
team:
  surveyors:
    - name: solo
survey:
  n_runs: 5
`
	path := filepath.Join(dir, "fixed.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	sc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, err := sc.Build(nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if math.Abs(b.Region.Area()-2000) > 1e-6 {
		t.Errorf("region area = %v, want 2000", b.Region.Area())
	}
	if b.Assemblage.Len() != 2 {
		t.Errorf("features = %d, want 2 (one point lies outside)", b.Assemblage.Len())
	}
	if b.Plan.Len() != 2 {
		t.Errorf("units = %d, want 2", b.Plan.Len())
	}
	if _, err := b.Survey.Run(context.Background(), sc.Survey.NRuns); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, ff := range survey.Frequencies(b.Survey.Log()) {
		if ff.Frequency != 1 {
			t.Errorf("%s frequency = %v, want 1", ff.Feature, ff.Frequency)
		}
	}
}

func TestParse_Orientation(t *testing.T) {
	tests := []struct {
		in    string
		mode  coverage.OrientMode
		angle float64
	}{
		{"30", coverage.OrientFixed, 30},
		{"search", coverage.OrientSearch, 0},
		{"LONG", coverage.OrientLong, 0},
		{"short", coverage.OrientShort, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			doc := minimal("kind: transect\n  orientation: " + tt.in)
			sc, err := Parse([]byte(doc))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if sc.Coverage.Orientation.Mode != tt.mode || sc.Coverage.Orientation.Angle != tt.angle {
				t.Errorf("got %+v", sc.Coverage.Orientation)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no name", strings.Replace(minimal("kind: transect"), "name: mini", "name: \"\"", 1)},
		{"two region sources", strings.Replace(minimal("kind: transect"), "area: 400", "area: 400\n  polygon: [[0,0],[1,0],[1,1]]", 1)},
		{"unknown process", strings.Replace(minimal("kind: transect"), "process: uniform", "process: lattice", 1)},
		{"unknown coverage kind", minimal("kind: spiral")},
		{"bad orientation", minimal("kind: transect\n  orientation: diagonal")},
		{"unknown key", minimal("kind: transect\n  colour: red")},
		{"negative runs", strings.Replace(minimal("kind: transect"), "n_runs: 3", "n_runs: -1", 1)},
		{"threshold above one", strings.Replace(minimal("kind: transect"), "n_runs: 3", "n_runs: 3\n  discovery_threshold: 1.5", 1)},
		{"unknown policy", strings.Replace(minimal("kind: transect"), "surveyors:", "assignment: lottery\n  surveyors:", 1)},
		{"fixed without units", minimal("kind: fixed")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if !errors.Is(err, simerr.ErrInvalidParameters) {
				t.Errorf("expected ErrInvalidParameters, got %v", err)
			}
		})
	}
}

func TestBuild_InvalidDistribution(t *testing.T) {
	doc := strings.Replace(minimal("kind: transect"), "count: 5", "count: 5\n    ideal_obs_rate: 1.4", 1)
	sc, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := sc.Build(nil); !errors.Is(err, simerr.ErrInvalidParameters) {
		t.Errorf("expected ErrInvalidParameters, got %v", err)
	}
}

func TestMarshal_RoundTripsOrientation(t *testing.T) {
	sc, err := Parse([]byte(minimal("kind: transect\n  orientation: long")))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := sc.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	again, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse(Marshal): %v\n%s", err, out)
	}
	if again.Coverage.Orientation != sc.Coverage.Orientation {
		t.Errorf("orientation changed: %+v -> %+v", sc.Coverage.Orientation, again.Coverage.Orientation)
	}
}

func TestParseWithDefaults(t *testing.T) {
	d := Defaults{Seed: 11, Runs: 50, Workers: 3, DiscoveryThreshold: 0.1}
	doc := strings.Replace(minimal("kind: transect"), "  n_runs: 3\n", "", 1)
	if !strings.HasSuffix(doc, "survey:\n") {
		t.Fatalf("fixture changed shape:\n%s", doc)
	}
	doc = strings.TrimSuffix(doc, "survey:\n")

	sc, err := ParseWithDefaults([]byte(doc), d)
	if err != nil {
		t.Fatalf("ParseWithDefaults: %v", err)
	}
	got := Defaults{Seed: sc.Seed, Runs: sc.Survey.NRuns, Workers: sc.Survey.Workers, DiscoveryThreshold: sc.Survey.DiscoveryThreshold}
	if got != d {
		t.Errorf("defaults not applied: got %+v, want %+v", got, d)
	}

	// Values in the file win over defaults.
	sc, err = ParseWithDefaults([]byte(minimal("kind: transect")), d)
	if err != nil {
		t.Fatalf("ParseWithDefaults: %v", err)
	}
	if sc.Survey.NRuns != 3 || sc.Seed != 11 {
		t.Errorf("got n_runs %d seed %d, want 3 and 11", sc.Survey.NRuns, sc.Seed)
	}
}

func TestApply_Overrides(t *testing.T) {
	sc, err := Parse([]byte(minimal("kind: transect")))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	seed, runs, start, workers, th := uint64(5), 8, 100, 2, 0.3
	if err := sc.Apply(Overrides{Seed: &seed, Runs: &runs, StartRunID: &start, Workers: &workers, DiscoveryThreshold: &th}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if sc.Seed != 5 || sc.Survey.NRuns != 8 || *sc.Survey.StartRunID != 100 || sc.Survey.Workers != 2 || sc.Survey.DiscoveryThreshold != 0.3 {
		t.Errorf("overrides not applied: seed %d survey %+v", sc.Seed, sc.Survey)
	}
	start = 7
	if *sc.Survey.StartRunID != 100 {
		t.Error("Apply must copy StartRunID")
	}

	bad := -2
	if err := sc.Apply(Overrides{Runs: &bad}); !errors.Is(err, simerr.ErrInvalidParameters) {
		t.Errorf("expected ErrInvalidParameters, got %v", err)
	}
}

func TestSearchOrientation_MatchesBuiltPlan(t *testing.T) {
	sc, err := Load(filepath.Join("testdata", "field.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	res, err := sc.SearchOrientation(0, "")
	if err != nil {
		t.Fatalf("SearchOrientation: %v", err)
	}
	if len(res.Candidates) != 12 {
		t.Errorf("increment 15 should yield 12 candidates, got %d", len(res.Candidates))
	}
	if res.Metric != coverage.MetricArea {
		t.Errorf("metric = %q, want area", res.Metric)
	}
	b, err := sc.Build(nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if b.Plan.Orientation() != res.Angle {
		t.Errorf("plan orientation %v differs from search result %v", b.Plan.Orientation(), res.Angle)
	}

	// Searching again returns the same angle.
	again, err := sc.SearchOrientation(15, coverage.MetricArea)
	if err != nil {
		t.Fatalf("SearchOrientation: %v", err)
	}
	if again.Angle != res.Angle {
		t.Errorf("search not idempotent: %v then %v", res.Angle, again.Angle)
	}
}

func TestSearchOrientation_RequiresTransects(t *testing.T) {
	sc, err := Parse([]byte(minimal("kind: radial")))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := sc.SearchOrientation(0, ""); !errors.Is(err, simerr.ErrInvalidParameters) {
		t.Errorf("expected ErrInvalidParameters, got %v", err)
	}
}

// minimal returns a small valid scenario whose coverage block is cov.
func minimal(cov string) string {
	return `name: mini
region:
  area: 400
layers:
  - name: finds
    process: uniform
    count: 5
coverage:
  ` + cov + `
team:
  surveyors:
    - name: a
survey:
  n_runs: 3
`
}
