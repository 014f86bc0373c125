// Package team models the survey crew: surveyors with fixed skill and speed,
// the mutable team that holds them, and the policies that assign units.
package team

import (
	"fmt"
	"math"
	"sync"

	"github.com/prospectsim/prospect/internal/dist"
	"github.com/prospectsim/prospect/internal/randx"
	"github.com/prospectsim/prospect/internal/simerr"
)

// Surveyor is one searcher. Skill and SpeedPenalty are drawn once, at
// creation, and are immutable afterwards.
type Surveyor struct {
	Name string
	Team string
	Type string
	// Skill in [0, 1] scales detection probability.
	Skill float64
	// SpeedPenalty >= 0 multiplies search time; 1 is baseline.
	SpeedPenalty float64
}

// Record returns a flat key/value view for tabular export.
func (s Surveyor) Record() map[string]any {
	return map[string]any{
		"surveyor":      s.Name,
		"team":          s.Team,
		"type":          s.Type,
		"skill":         s.Skill,
		"speed_penalty": s.SpeedPenalty,
	}
}

// Spec describes how to draw a surveyor.
type Spec struct {
	Name string
	Type string
	// Skill defaults to a constant 1.
	Skill dist.Distribution
	// SpeedPenalty defaults to a constant 1.
	SpeedPenalty dist.Distribution
}

// NewSurveyor draws a surveyor's parameters from spec.
func NewSurveyor(team string, spec Spec, rng *randx.Source) (Surveyor, error) {
	if spec.Name == "" {
		return Surveyor{}, simerr.Invalid("surveyor name is required")
	}
	skill := spec.Skill
	if skill == nil {
		skill = dist.Constant(1)
	}
	speed := spec.SpeedPenalty
	if speed == nil {
		speed = dist.Constant(1)
	}
	if err := dist.WithinUnit("skill", skill); err != nil {
		return Surveyor{}, fmt.Errorf("surveyor %q: %w", spec.Name, err)
	}
	if err := dist.NonNegative("speed_penalty", speed); err != nil {
		return Surveyor{}, fmt.Errorf("surveyor %q: %w", spec.Name, err)
	}
	return Surveyor{
		Name:         spec.Name,
		Team:         team,
		Type:         spec.Type,
		Skill:        skill.Draw(rng),
		SpeedPenalty: speed.Draw(rng),
	}, nil
}

func validate(s Surveyor) error {
	if s.Name == "" {
		return simerr.Invalid("surveyor name is required")
	}
	if math.IsNaN(s.Skill) || s.Skill < 0 || s.Skill > 1 {
		return simerr.Invalid("surveyor %q: skill must lie in [0, 1], got %g", s.Name, s.Skill)
	}
	if math.IsNaN(s.SpeedPenalty) || math.IsInf(s.SpeedPenalty, 0) || s.SpeedPenalty < 0 {
		return simerr.Invalid("surveyor %q: speed penalty must be finite and non-negative, got %g", s.Name, s.SpeedPenalty)
	}
	return nil
}

// Team is an ordered, mutable crew. Membership changes are safe for
// concurrent use; runs work from a Snapshot.
type Team struct {
	mu        sync.RWMutex
	name      string
	policy    Assignment
	surveyors []Surveyor
}

// New creates a team. Surveyor names must be unique within the team.
func New(name string, policy Assignment, surveyors ...Surveyor) (*Team, error) {
	if policy == "" {
		policy = Naive
	}
	if !policy.valid() {
		return nil, simerr.Invalid("team %q: unknown assignment policy %q", name, policy)
	}
	t := &Team{name: name, policy: policy}
	if err := t.AddSurveyors(surveyors...); err != nil {
		return nil, err
	}
	return t, nil
}

// Name returns the team's name.
func (t *Team) Name() string { return t.name }

// Policy returns the team's assignment policy.
func (t *Team) Policy() Assignment { return t.policy }

// AddSurveyors appends surveyors to the team. Nothing is added if any
// surveyor is invalid or duplicates an existing name.
func (t *Team) AddSurveyors(surveyors ...Surveyor) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make(map[string]bool, len(t.surveyors)+len(surveyors))
	for _, s := range t.surveyors {
		names[s.Name] = true
	}
	for _, s := range surveyors {
		if err := validate(s); err != nil {
			return fmt.Errorf("team %q: %w", t.name, err)
		}
		if names[s.Name] {
			return simerr.Invalid("team %q: duplicate surveyor %q", t.name, s.Name)
		}
		names[s.Name] = true
	}
	for _, s := range surveyors {
		s.Team = t.name
		t.surveyors = append(t.surveyors, s)
	}
	return nil
}

// DropSurveyors removes surveyors by name and returns how many were removed.
func (t *Team) DropSurveyors(names ...string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := t.surveyors[:0]
	removed := 0
	for _, s := range t.surveyors {
		if drop[s.Name] {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	t.surveyors = kept
	return removed
}

// Snapshot returns a copy of the current members in order.
func (t *Team) Snapshot() []Surveyor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Surveyor(nil), t.surveyors...)
}

// Len returns the number of members.
func (t *Team) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.surveyors)
}
