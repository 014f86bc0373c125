package survey

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/prospectsim/prospect/internal/coverage"
	"github.com/prospectsim/prospect/internal/dist"
	"github.com/prospectsim/prospect/internal/simerr"
	"github.com/prospectsim/prospect/internal/team"
)

// Phase is a run's position in its lifecycle.
type Phase int

const (
	Idle Phase = iota
	Assigning
	Searching
	Recording
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Assigning:
		return "assigning"
	case Searching:
		return "searching"
	case Recording:
		return "recording"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// next returns the only legal successor of p.
func (p Phase) next() Phase {
	if p == Recording {
		return Idle
	}
	return p + 1
}

// RunOption configures a single call to Run.
type RunOption func(*runOptions)

type runOptions struct {
	start *int
	reset bool
}

// WithStartRunID numbers the batch's runs from id instead of continuing
// from the previous batch.
func WithStartRunID(id int) RunOption {
	return func(o *runOptions) { o.start = &id }
}

// WithReset clears the run log before appending the batch.
func WithReset() RunOption {
	return func(o *runOptions) { o.reset = true }
}

// Run executes n independent runs and appends their records to the log.
// Runs are numbered consecutively from the start run ID; run r draws only
// from the root source's Derive(r) stream. n == 0 yields an empty batch.
// A cancelled context aborts the batch and leaves the log unchanged.
func (s *Survey) Run(ctx context.Context, n int, opts ...RunOption) (Batch, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}
	if n < 0 {
		return Batch{}, simerr.Invalid("survey %q: run count must be non-negative, got %d", s.name, n)
	}
	if ro.start != nil && *ro.start < 0 {
		return Batch{}, simerr.Invalid("survey %q: start run id must be non-negative, got %d", s.name, *ro.start)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Batch{}, fmt.Errorf("survey %q: %w", s.name, simerr.ErrRunInProgress)
	}
	start := s.nextRunID
	if ro.start != nil {
		start = *ro.start
	}
	batch := Batch{
		ID:         uuid.NewString(),
		Survey:     s.name,
		StartRunID: start,
		Runs:       n,
		Seed:       s.cfg.Seed,
		StartedAt:  time.Now().UTC(),
	}
	if n == 0 {
		if ro.reset {
			s.records, s.times = nil, nil
		}
		s.mu.Unlock()
		return batch, nil
	}
	surveyors := s.team.Snapshot()
	if len(surveyors) == 0 {
		s.mu.Unlock()
		return Batch{}, fmt.Errorf("survey %q: %w", s.name, simerr.ErrEmptyTeam)
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Debug("starting batch", "survey", s.name, "batch", batch.ID, "runs", n, "start", start, "workers", s.cfg.Workers)
	results := make([]trialResult, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := s.trial(start+i, surveyors)
			results[i] = r
			return err
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if err != nil {
		return Batch{}, fmt.Errorf("survey %q: batch aborted: %w", s.name, err)
	}

	for _, r := range results {
		batch.Records = append(batch.Records, r.records...)
		batch.UnitTimes = append(batch.UnitTimes, r.times...)
	}
	if ro.reset {
		s.records, s.times = nil, nil
	}
	s.records = append(s.records, batch.Records...)
	s.times = append(s.times, batch.UnitTimes...)
	s.nextRunID = start + n
	batch.Elapsed = time.Since(batch.StartedAt)

	s.logger.Info("batch complete", "survey", s.name, "batch", batch.ID, "runs", n,
		"records", len(batch.Records), "elapsed", batch.Elapsed)
	return batch, nil
}

type trialResult struct {
	records []Record
	times   []UnitTime
	phases  []Phase
}

// trial performs one run. It touches only its own buffers and random stream.
func (s *Survey) trial(runID int, surveyors []team.Surveyor) (trialResult, error) {
	began := time.Now()
	rng := s.root.Derive(uint64(runID))
	res := trialResult{phases: []Phase{Idle}}
	phase := Idle
	advance := func() {
		phase = phase.next()
		res.phases = append(res.phases, phase)
	}

	advance() // assigning
	assignment, err := team.Assign(s.team.Policy(), s.units, surveyors, rng)
	if err != nil {
		return res, fmt.Errorf("run %d: %w", runID, err)
	}

	advance() // searching
	vis := dist.DrawN(s.plan.Region().Visibility(), rng, len(s.features))
	discovered := make([]bool, len(s.features))
	available := make([]bool, len(s.features))
	prob := make([]float64, len(s.features))
	unitOf := make([]int, len(s.features))
	for i := range unitOf {
		unitOf[i] = -1
	}
	penalty := make([]float64, len(s.units))
	evaluated, found := 0, 0

	for ui, u := range s.units {
		sv := surveyors[assignment[ui]]
		for _, fi := range s.candidates[ui] {
			f := s.features[fi]
			available[fi] = true
			p := DetectionProbability(f, u, sv, vis[fi], s.cfg.DiscoveryThreshold)
			// Every candidate consumes one roll so outcomes stay coupled
			// across parameter changes.
			roll := rng.Float64()
			if discovered[fi] {
				continue
			}
			evaluated++
			hit := roll < p
			s.trace(runID, u, sv, fi, p, roll, hit)
			if p > prob[fi] || hit {
				prob[fi] = p
			}
			if hit {
				discovered[fi] = true
				unitOf[fi] = ui
				penalty[ui] += f.TimePenalty
				found++
			}
		}
	}

	advance() // recording
	res.records = make([]Record, len(s.features))
	for fi, f := range s.features {
		rec := Record{
			RunID:       runID,
			FeatureID:   f.ID,
			Feature:     f.Name,
			Layer:       f.Layer,
			Discovered:  discovered[fi],
			UnitID:      unitOf[fi],
			Probability: prob[fi],
			Available:   available[fi],
		}
		if ui := unitOf[fi]; ui >= 0 {
			rec.Unit = s.units[ui].Name
			rec.Surveyor = surveyors[assignment[ui]].Name
		}
		res.records[fi] = rec
	}
	res.times = make([]UnitTime, len(s.units))
	for ui, u := range s.units {
		sv := surveyors[assignment[ui]]
		res.times[ui] = UnitTime{
			RunID:       runID,
			UnitID:      u.ID,
			Unit:        u.Name,
			Surveyor:    sv.Name,
			BaseTime:    u.MinTime,
			PenaltyTime: penalty[ui],
			TotalTime:   (u.MinTime + penalty[ui]) * sv.SpeedPenalty,
		}
	}
	advance() // idle

	if s.observer != nil {
		s.observer.RunCompleted(RunStats{RunID: runID, Evaluated: evaluated, Discovered: found, Elapsed: time.Since(began)})
	}
	s.logger.Debug("run complete", "survey", s.name, "run", runID, "discovered", found, "evaluated", evaluated)
	return res, nil
}

func (s *Survey) trace(runID int, u coverage.Unit, sv team.Surveyor, fi int, p, roll float64, hit bool) {
	if s.decisions == nil {
		return
	}
	s.decisions.Log(map[string]any{
		"event":      "detection",
		"survey":     s.name,
		"run":        runID,
		"unit":       u.Name,
		"surveyor":   sv.Name,
		"feature":    s.features[fi].Name,
		"p":          p,
		"roll":       roll,
		"discovered": hit,
	})
}
