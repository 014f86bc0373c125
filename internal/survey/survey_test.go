package survey

import (
	"bytes"
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/paulmach/orb"

	"github.com/prospectsim/prospect/internal/coverage"
	"github.com/prospectsim/prospect/internal/dist"
	"github.com/prospectsim/prospect/internal/feature"
	"github.com/prospectsim/prospect/internal/geom"
	"github.com/prospectsim/prospect/internal/logging"
	"github.com/prospectsim/prospect/internal/randx"
	"github.com/prospectsim/prospect/internal/simerr"
	"github.com/prospectsim/prospect/internal/team"
)

// fixture holds the parts of a 100x100 survey.
type fixture struct {
	region *geom.Region
	asm    *feature.Assemblage
	plan   *coverage.Plan
	team   *team.Team
}

// newFixture builds n uniform features with a constant obs rate, transects
// at the given spacing, and a team of surveyors with the given skills.
func newFixture(t *testing.T, n int, rate, spacing float64, skills ...float64) fixture {
	t.Helper()
	region, err := geom.RegionFromArea("site", 10000, orb.Point{})
	if err != nil {
		t.Fatalf("RegionFromArea: %v", err)
	}
	layer, err := feature.Pseudorandom(region, n, feature.LayerParams{Name: "sherds", IdealObsRate: dist.Constant(rate)}, randx.New(7))
	if err != nil {
		t.Fatalf("Pseudorandom: %v", err)
	}
	asm, err := feature.NewAssemblage("asm", layer)
	if err != nil {
		t.Fatalf("NewAssemblage: %v", err)
	}
	plan, err := coverage.Transects(region, coverage.TransectOptions{Name: "tx", Spacing: spacing, SweepWidth: 2}, nil)
	if err != nil {
		t.Fatalf("Transects: %v", err)
	}
	var crew []team.Surveyor
	for i, sk := range skills {
		crew = append(crew, team.Surveyor{Name: string(rune('A' + i)), Skill: sk, SpeedPenalty: 1})
	}
	tm, err := team.New("crew", team.Naive, crew...)
	if err != nil {
		t.Fatalf("team.New: %v", err)
	}
	return fixture{region: region, asm: asm, plan: plan, team: tm}
}

func (f fixture) survey(t *testing.T, cfg Config) *Survey {
	t.Helper()
	s, err := New("test", f.asm, f.plan, f.team, WithConfig(cfg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func mustRun(t *testing.T, s *Survey, n int, opts ...RunOption) Batch {
	t.Helper()
	b, err := s.Run(context.Background(), n, opts...)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return b
}

func TestRun_OneRecordPerFeaturePerRun(t *testing.T) {
	f := newFixture(t, 50, 0.5, 3, 0.9, 0.7)
	s := f.survey(t, DefaultConfig())
	b := mustRun(t, s, 20)

	if len(b.Records) != 20*50 {
		t.Fatalf("records = %d, want %d", len(b.Records), 20*50)
	}
	seen := map[[2]int]int{}
	for _, r := range b.Records {
		seen[[2]int{r.RunID, r.FeatureID}]++
		if r.Discovered && (r.UnitID < 0 || r.Surveyor == "") {
			t.Fatalf("discovered record without unit or surveyor: %+v", r)
		}
		if !r.Discovered && r.UnitID != -1 {
			t.Fatalf("undiscovered record with unit: %+v", r)
		}
	}
	for k, c := range seen {
		if c != 1 {
			t.Fatalf("run %d feature %d recorded %d times", k[0], k[1], c)
		}
	}
	if len(b.UnitTimes) != 20*f.plan.Len() {
		t.Errorf("unit times = %d, want %d", len(b.UnitTimes), 20*f.plan.Len())
	}
}

func TestRun_FullCoverageDiscoversEverything(t *testing.T) {
	// Spacing 4 with sweep width 2 leaves no gaps.
	f := newFixture(t, 40, 1, 4, 1)
	s := f.survey(t, DefaultConfig())
	mustRun(t, s, 30)

	for _, ff := range Frequencies(s.Log()) {
		if ff.Frequency < 0.95 {
			t.Errorf("%s frequency = %v, want >= 0.95", ff.Feature, ff.Frequency)
		}
	}
}

func TestRun_ZeroObsRateNeverDiscovered(t *testing.T) {
	f := newFixture(t, 30, 0, 4, 1)
	s := f.survey(t, DefaultConfig())
	mustRun(t, s, 25)
	for _, r := range s.Log() {
		if r.Discovered {
			t.Fatalf("feature %s discovered with obs rate 0", r.Feature)
		}
	}
}

func TestRun_ThresholdOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DiscoveryThreshold = 1

	below := newFixture(t, 30, 0.999, 4, 1)
	s := below.survey(t, cfg)
	mustRun(t, s, 20)
	for _, r := range s.Log() {
		if r.Discovered {
			t.Fatalf("feature with probability < 1 discovered under threshold 1: %+v", r)
		}
	}

	exact := newFixture(t, 30, 1, 4, 1)
	s = exact.survey(t, cfg)
	mustRun(t, s, 5)
	for _, ff := range Frequencies(s.Log()) {
		if ff.Frequency != 1 {
			t.Errorf("%s with probability 1 has frequency %v", ff.Feature, ff.Frequency)
		}
	}
}

func TestRun_ZeroRuns(t *testing.T) {
	f := newFixture(t, 10, 0.5, 4, 1)
	s := f.survey(t, DefaultConfig())
	b := mustRun(t, s, 0)
	if len(b.Records) != 0 || len(s.Log()) != 0 {
		t.Errorf("zero runs should leave an empty log, got %d records", len(s.Log()))
	}
	if sum := Summarize(s.Log(), s.UnitTimes()); sum != (Summary{}) {
		t.Errorf("empty summary = %+v", sum)
	}
}

func TestRun_DeterministicAcrossWorkers(t *testing.T) {
	f := newFixture(t, 60, 0.4, 6, 0.8, 0.6, 0.9)
	var logs [][]Record
	for _, workers := range []int{1, 3, 8} {
		cfg := DefaultConfig()
		cfg.Workers = workers
		cfg.Seed = 1234
		s := f.survey(t, cfg)
		mustRun(t, s, 40)
		logs = append(logs, s.Log())
	}
	for i := 1; i < len(logs); i++ {
		if !reflect.DeepEqual(logs[0], logs[i]) {
			t.Fatalf("log %d differs from log 0", i)
		}
	}

	cfg := DefaultConfig()
	cfg.Seed = 999
	other := f.survey(t, cfg)
	mustRun(t, other, 40)
	if reflect.DeepEqual(logs[0], other.Log()) {
		t.Error("different seeds should produce different logs")
	}
}

func TestRun_MonotoneInObsRate(t *testing.T) {
	low := newFixture(t, 40, 0.3, 5, 0.8)
	high := newFixture(t, 40, 0.6, 5, 0.8)
	sl := low.survey(t, DefaultConfig())
	sh := high.survey(t, DefaultConfig())
	mustRun(t, sl, 100)
	mustRun(t, sh, 100)

	fl, fh := Frequencies(sl.Log()), Frequencies(sh.Log())
	for i := range fl {
		if fh[i].Frequency < fl[i].Frequency {
			t.Errorf("%s: frequency fell from %v to %v as obs rate rose", fl[i].Feature, fl[i].Frequency, fh[i].Frequency)
		}
	}
}

func TestRun_StartRunIDAndReset(t *testing.T) {
	f := newFixture(t, 5, 0.5, 4, 1)
	s := f.survey(t, DefaultConfig())

	mustRun(t, s, 3)
	b := mustRun(t, s, 2)
	if b.StartRunID != 3 {
		t.Errorf("second batch should continue at 3, got %d", b.StartRunID)
	}
	b = mustRun(t, s, 2, WithStartRunID(100))
	if b.Records[0].RunID != 100 {
		t.Errorf("first run id = %d, want 100", b.Records[0].RunID)
	}
	if got := len(DiscoveredPerRun(s.Log())); got != 7 {
		t.Errorf("runs in log = %d, want 7", got)
	}

	mustRun(t, s, 1, WithReset())
	if got := len(DiscoveredPerRun(s.Log())); got != 1 {
		t.Errorf("after reset runs in log = %d, want 1", got)
	}

	// The same run id always draws the same stream.
	a := mustRun(t, s, 1, WithStartRunID(100), WithReset())
	if !reflect.DeepEqual(a.Records, b.Records[:5]) {
		t.Error("run 100 should replay identically")
	}
}

func TestRun_Errors(t *testing.T) {
	f := newFixture(t, 5, 0.5, 4, 1)
	s := f.survey(t, DefaultConfig())

	if _, err := s.Run(context.Background(), -1); !errors.Is(err, simerr.ErrInvalidParameters) {
		t.Errorf("negative runs: expected ErrInvalidParameters, got %v", err)
	}

	f.team.DropSurveyors("A")
	if _, err := s.Run(context.Background(), 3); !errors.Is(err, simerr.ErrEmptyTeam) {
		t.Errorf("expected ErrEmptyTeam, got %v", err)
	}
	if len(s.Log()) != 0 {
		t.Error("failed run must not touch the log")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = f.team.AddSurveyors(team.Surveyor{Name: "Z", Skill: 1, SpeedPenalty: 1})
	if _, err := s.Run(ctx, 10); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(s.Log()) != 0 {
		t.Error("cancelled batch must not touch the log")
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	if _, err := s.Run(context.Background(), 1); !errors.Is(err, simerr.ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}
}

func TestNew_Errors(t *testing.T) {
	f := newFixture(t, 5, 0.5, 4, 1)
	empty, err := coverage.FromUnits("none", f.region, nil, nil, nil)
	if err != nil {
		t.Fatalf("FromUnits: %v", err)
	}
	if _, err := New("s", f.asm, empty, f.team); !errors.Is(err, simerr.ErrEmptyCoverage) {
		t.Errorf("expected ErrEmptyCoverage, got %v", err)
	}
	cfg := DefaultConfig()
	cfg.DiscoveryThreshold = 1.5
	if _, err := New("s", f.asm, f.plan, f.team, WithConfig(cfg)); !errors.Is(err, simerr.ErrInvalidParameters) {
		t.Errorf("expected ErrInvalidParameters, got %v", err)
	}
	if _, err := New("s", nil, f.plan, f.team); !errors.Is(err, simerr.ErrInvalidParameters) {
		t.Errorf("expected ErrInvalidParameters for nil assemblage, got %v", err)
	}
}

func TestTrial_PhaseSequence(t *testing.T) {
	f := newFixture(t, 5, 0.5, 4, 1)
	s := f.survey(t, DefaultConfig())
	res, err := s.trial(0, f.team.Snapshot())
	if err != nil {
		t.Fatalf("trial: %v", err)
	}
	want := []Phase{Idle, Assigning, Searching, Recording, Idle}
	if !reflect.DeepEqual(res.phases, want) {
		t.Errorf("phases = %v, want %v", res.phases, want)
	}
}

func TestCandidates_OnlyWithinFootprint(t *testing.T) {
	f := newFixture(t, 80, 1, 10, 1)
	s := f.survey(t, DefaultConfig())
	units := f.plan.Units()
	for _, u := range units {
		fp := u.Footprint()
		for _, id := range s.Candidates(u.ID) {
			feat, _ := f.asm.Feature(id)
			if !fp.ContainsPoint(feat.Shape.(orb.Point)) {
				t.Fatalf("feature %d listed for unit %d but outside its footprint", id, u.ID)
			}
		}
	}

	// Features between transect strips are never available.
	mustRun(t, s, 3)
	for _, r := range s.Log() {
		feat, _ := f.asm.Feature(r.FeatureID)
		x := feat.Shape.(orb.Point)[0]
		off := math.Mod(x, 10)
		inStrip := off >= 3-1e-9 && off <= 7+1e-9
		if r.Available != inStrip {
			t.Fatalf("feature at x=%v available=%v, want %v", x, r.Available, inStrip)
		}
	}
}

type countingObserver struct {
	mu   sync.Mutex
	runs int
}

func (c *countingObserver) RunCompleted(RunStats) {
	c.mu.Lock()
	c.runs++
	c.mu.Unlock()
}

func TestRun_NotifiesObserver(t *testing.T) {
	f := newFixture(t, 5, 0.5, 4, 1)
	obs := &countingObserver{}
	s, err := New("obs", f.asm, f.plan, f.team, WithObserver(obs))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mustRun(t, s, 12)
	if obs.runs != 12 {
		t.Errorf("observer saw %d runs, want 12", obs.runs)
	}
}

func TestDetectionProbability(t *testing.T) {
	feat := feature.Feature{IdealObsRate: 0.8, TimePenalty: 10}
	sv := team.Surveyor{Skill: 0.5, SpeedPenalty: 2}
	tests := []struct {
		name      string
		minTime   float64
		vis       float64
		threshold float64
		want      float64
	}{
		{"unconstrained", 0, 1, 0, 0.4},
		{"ample time", 100, 1, 0, 0.4},
		{"half the time needed", 10, 1, 0, 0.2},
		{"visibility scales", 100, 0.5, 0, 0.2},
		{"below threshold", 100, 1, 0.5, 0},
		{"at threshold", 100, 1, 0.4, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := coverage.Unit{MinTime: tt.minTime}
			got := DetectionProbability(feat, u, sv, tt.vis, tt.threshold)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnitTimes_Accounting(t *testing.T) {
	region, _ := geom.RegionFromArea("site", 100, orb.Point{})
	layer, err := feature.FromShapes(region, []orb.Geometry{orb.Point{5, 5}},
		feature.LayerParams{Name: "pit", TimePenalty: dist.Constant(3)}, nil)
	if err != nil {
		t.Fatalf("FromShapes: %v", err)
	}
	asm, _ := feature.NewAssemblage("a", layer)
	c := orb.Point{5, 5}
	plan, err := coverage.Radials(region, coverage.RadialOptions{Name: "r", Radius: 2, Center: &c, MinTimePerUnit: dist.Constant(10)}, nil)
	if err != nil {
		t.Fatalf("Radials: %v", err)
	}
	tm, _ := team.New("crew", team.Naive, team.Surveyor{Name: "slow", Skill: 1, SpeedPenalty: 1.5})
	s, err := New("time", asm, plan, tm)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mustRun(t, s, 1)

	times := s.UnitTimes()
	if len(times) != 1 {
		t.Fatalf("unit times = %d, want 1", len(times))
	}
	ut := times[0]
	if ut.BaseTime != 10 || ut.PenaltyTime != 3 || math.Abs(ut.TotalTime-19.5) > 1e-12 {
		t.Errorf("unit time = %+v, want base 10 penalty 3 total 19.5", ut)
	}
	if st := TimePerSurveyor(times); len(st) != 1 || st[0].Surveyor != "slow" || st[0].Units != 1 {
		t.Errorf("TimePerSurveyor = %+v", st)
	}
}

func TestRun_MalformedFeaturesAndUnitsAreSkipped(t *testing.T) {
	f := newFixture(t, 20, 1, 3, 1)
	var logs bytes.Buffer
	s, err := New("test", f.asm, f.plan, f.team, WithConfig(DefaultConfig()), WithLogger(logging.NewLogger("info", &logs)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// A zero-area polygon, an out-of-range obs rate and a unit with no sweep.
	s.features[0].Shape = orb.Polygon{{{5, 5}, {5, 5}, {5, 5}, {5, 5}}}
	s.features[1].IdealObsRate = 2
	s.units[0].SweepWidth = 0
	s.candidates = s.index()

	for _, want := range []string{"skipping malformed feature", "skipping degenerate unit"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("expected warning %q, got:\n%s", want, logs.String())
		}
	}
	if c := s.Candidates(0); len(c) != 0 {
		t.Errorf("degenerate unit has candidates %v", c)
	}

	const runs = 3
	b := mustRun(t, s, runs)
	if len(b.Records) != runs*20 {
		t.Fatalf("expected %d records, got %d", runs*20, len(b.Records))
	}
	for _, r := range b.Records {
		switch r.FeatureID {
		case 0, 1:
			if r.Discovered || r.Available || r.UnitID != -1 || r.Probability != 0 {
				t.Errorf("malformed feature %d should be an unavailable non-discovery, got %+v", r.FeatureID, r)
			}
		default:
			if r.UnitID == 0 {
				t.Errorf("feature %d discovered by the degenerate unit", r.FeatureID)
			}
		}
	}
	if len(b.UnitTimes) != runs*f.plan.Len() {
		t.Errorf("expected a time entry for every unit including the skipped one, got %d", len(b.UnitTimes))
	}
}
