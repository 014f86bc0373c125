// Package survey runs Monte-Carlo survey simulations. A Survey binds an
// assemblage, a coverage plan and a team, and each run assigns units to
// surveyors, rolls detection for every feature within each unit's footprint,
// and records one outcome per feature. Runs are independent given their
// derived random streams, so batches execute in parallel yet produce the
// same log for any worker count.
package survey

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/prospectsim/prospect/internal/constants"
	"github.com/prospectsim/prospect/internal/coverage"
	"github.com/prospectsim/prospect/internal/feature"
	"github.com/prospectsim/prospect/internal/geom"
	"github.com/prospectsim/prospect/internal/logging"
	"github.com/prospectsim/prospect/internal/randx"
	"github.com/prospectsim/prospect/internal/simerr"
	"github.com/prospectsim/prospect/internal/team"
)

// Config holds tunable parameters for survey runs.
type Config struct {
	// DiscoveryThreshold zeroes any detection probability below it.
	// Must lie in [0, 1]. Default: 0.
	DiscoveryThreshold float64

	// Workers bounds how many runs execute concurrently. Default: 4.
	Workers int

	// Seed seeds the root random source; run r draws from Derive(r). Default: 42.
	Seed uint64
}

// DefaultConfig returns the default survey configuration.
func DefaultConfig() Config {
	return Config{
		DiscoveryThreshold: 0,
		Workers:            constants.DefaultWorkers,
		Seed:               constants.DefaultSeed,
	}
}

// RunStats summarize one completed run for observers.
type RunStats struct {
	RunID      int
	Evaluated  int
	Discovered int
	Elapsed    time.Duration
}

// Observer is notified as runs complete. Implementations must be safe for
// concurrent use.
type Observer interface {
	RunCompleted(RunStats)
}

// Option configures a Survey.
type Option func(*Survey)

// WithConfig sets the survey configuration.
func WithConfig(cfg Config) Option { return func(s *Survey) { s.cfg = cfg } }

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option { return func(s *Survey) { s.logger = l } }

// WithDecisionLogger traces every detection roll.
func WithDecisionLogger(dl *logging.DecisionLogger) Option {
	return func(s *Survey) { s.decisions = dl }
}

// WithObserver registers a run observer.
func WithObserver(o Observer) Option { return func(s *Survey) { s.observer = o } }

// Survey is the simulation engine and owner of the run log.
type Survey struct {
	name       string
	assemblage *feature.Assemblage
	plan       *coverage.Plan
	team       *team.Team
	cfg        Config
	logger     *slog.Logger
	decisions  *logging.DecisionLogger
	observer   Observer
	root       *randx.Source

	features   []feature.Feature
	units      []coverage.Unit
	candidates [][]int

	mu        sync.Mutex
	running   bool
	records   []Record
	times     []UnitTime
	nextRunID int
}

// New binds an assemblage, plan and team into a survey. It precomputes which
// features each unit's footprint reaches; invalid units and features are
// logged and excluded from detection.
func New(name string, a *feature.Assemblage, p *coverage.Plan, t *team.Team, opts ...Option) (*Survey, error) {
	s := &Survey{
		name:       name,
		assemblage: a,
		plan:       p,
		team:       t,
		cfg:        DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)

	if a == nil || p == nil || t == nil {
		return nil, simerr.Invalid("survey %q: assemblage, plan and team are required", name)
	}
	if p.Len() == 0 {
		return nil, fmt.Errorf("survey %q: %w", name, simerr.ErrEmptyCoverage)
	}
	if th := s.cfg.DiscoveryThreshold; th < 0 || th > 1 || math.IsNaN(th) {
		return nil, simerr.Invalid("survey %q: discovery threshold must lie in [0, 1], got %g", name, th)
	}
	if s.cfg.Workers <= 0 {
		s.cfg.Workers = constants.DefaultWorkers
	}

	s.root = randx.New(s.cfg.Seed)
	s.features = a.Features()
	s.units = p.Units()
	s.candidates = s.index()
	return s, nil
}

// index maps each unit to the IDs of valid features its footprint reaches.
func (s *Survey) index() [][]int {
	region := s.plan.Region()
	valid := make([]bool, len(s.features))
	for i, f := range s.features {
		valid[i] = f.Valid()
		if !valid[i] {
			s.logger.Warn("skipping malformed feature", "survey", s.name, "feature", f.Name)
		}
	}

	out := make([][]int, len(s.units))
	for ui, u := range s.units {
		fp := u.Footprint()
		if fp == nil || !u.Valid() {
			s.logger.Warn("skipping degenerate unit", "survey", s.name, "unit", u.Name)
			continue
		}
		for fi, f := range s.features {
			if !valid[fi] {
				continue
			}
			if pt, ok := f.Shape.(orb.Point); ok && !region.Contains(pt) {
				continue
			}
			if geom.Intersects(fp, f.Shape) {
				out[ui] = append(out[ui], fi)
			}
		}
	}
	return out
}

// Name returns the survey's name.
func (s *Survey) Name() string { return s.name }

// Config returns the survey's effective configuration.
func (s *Survey) Config() Config { return s.cfg }

// Plan returns the survey's coverage plan.
func (s *Survey) Plan() *coverage.Plan { return s.plan }

// Assemblage returns the survey's assemblage.
func (s *Survey) Assemblage() *feature.Assemblage { return s.assemblage }

// Team returns the survey's team. Membership changes apply to later batches.
func (s *Survey) Team() *team.Team { return s.team }

// Candidates returns the feature IDs within reach of a unit.
func (s *Survey) Candidates(unitID int) []int {
	if unitID < 0 || unitID >= len(s.candidates) {
		return nil
	}
	return append([]int(nil), s.candidates[unitID]...)
}

// Log returns a copy of the accumulated run log.
func (s *Survey) Log() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// UnitTimes returns a copy of the accumulated per-unit time accounting.
func (s *Survey) UnitTimes() []UnitTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UnitTime(nil), s.times...)
}

// DetectionProbability returns the chance that surveyor sv discovers f while
// searching u, given the feature's drawn visibility. The base product of
// visibility, ideal obs rate and skill is scaled down in proportion when the
// feature's time cost (time penalty times speed penalty) exceeds the unit's
// time budget, clamped to [0, 1], and zeroed below threshold.
func DetectionProbability(f feature.Feature, u coverage.Unit, sv team.Surveyor, visibility, threshold float64) float64 {
	p := visibility * f.IdealObsRate * sv.Skill
	required := f.TimePenalty * sv.SpeedPenalty
	if u.MinTime > 0 && required > u.MinTime {
		p *= u.MinTime / required
	}
	p = math.Max(0, math.Min(1, p))
	if math.IsNaN(p) || p < threshold {
		return 0
	}
	return p
}
