// Package scenario loads YAML scenario files and builds the region,
// assemblage, coverage plan, team and survey they describe.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/prospectsim/prospect/internal/config"
	"github.com/prospectsim/prospect/internal/constants"
	"github.com/prospectsim/prospect/internal/coverage"
	"github.com/prospectsim/prospect/internal/dist"
	"github.com/prospectsim/prospect/internal/feature"
	"github.com/prospectsim/prospect/internal/simerr"
	"github.com/prospectsim/prospect/internal/team"
)

// Scenario is the parsed form of a scenario file.
type Scenario struct {
	Name     string         `yaml:"name" json:"name"`
	Seed     uint64         `yaml:"seed" json:"seed"`
	Region   RegionSpec     `yaml:"region" json:"region"`
	Layers   []LayerSpec    `yaml:"layers" json:"layers"`
	Coverage CoverageSpec   `yaml:"coverage" json:"coverage"`
	Team     TeamSpec       `yaml:"team" json:"team"`
	Survey   SurveySettings `yaml:"survey" json:"survey"`

	// dir resolves relative file references.
	dir string
}

// RegionSpec describes the surveyed region. Exactly one of Area, Polygon
// and GeoJSON must be set.
type RegionSpec struct {
	Name string `yaml:"name" json:"name"`
	// Area builds a square with its lower-left corner at Origin.
	Area   float64    `yaml:"area,omitempty" json:"area,omitempty"`
	Origin [2]float64 `yaml:"origin,omitempty" json:"origin,omitempty"`
	// Polygon is an outer ring of x, y pairs.
	Polygon [][2]float64 `yaml:"polygon,omitempty" json:"polygon,omitempty"`
	// GeoJSON is a path, relative to the scenario file, to a polygon file.
	GeoJSON    string     `yaml:"geojson,omitempty" json:"geojson,omitempty"`
	Visibility *dist.Spec `yaml:"visibility,omitempty" json:"visibility,omitempty"`
}

// LayerSpec describes one feature layer.
type LayerSpec struct {
	Name         string       `yaml:"name" json:"name"`
	Process      string       `yaml:"process" json:"process"`
	Count        int          `yaml:"count,omitempty" json:"count,omitempty"`
	Rate         float64      `yaml:"rate,omitempty" json:"rate,omitempty"`
	ParentRate   float64      `yaml:"parent_rate,omitempty" json:"parent_rate,omitempty"`
	ChildRate    float64      `yaml:"child_rate,omitempty" json:"child_rate,omitempty"`
	ChildCount   int          `yaml:"child_count,omitempty" json:"child_count,omitempty"`
	Radius       float64      `yaml:"radius,omitempty" json:"radius,omitempty"`
	Sigma        float64      `yaml:"sigma,omitempty" json:"sigma,omitempty"`
	Width        float64      `yaml:"width,omitempty" json:"width,omitempty"`
	Height       float64      `yaml:"height,omitempty" json:"height,omitempty"`
	Placement    string       `yaml:"placement,omitempty" json:"placement,omitempty"`
	Points       [][2]float64 `yaml:"points,omitempty" json:"points,omitempty"`
	MaxAttempts  int          `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`
	IdealObsRate *dist.Spec   `yaml:"ideal_obs_rate,omitempty" json:"ideal_obs_rate,omitempty"`
	TimePenalty  *dist.Spec   `yaml:"time_penalty,omitempty" json:"time_penalty,omitempty"`
}

// CoverageSpec describes the coverage plan.
type CoverageSpec struct {
	Name           string      `yaml:"name" json:"name"`
	Kind           string      `yaml:"kind" json:"kind"`
	Spacing        float64     `yaml:"spacing,omitempty" json:"spacing,omitempty"`
	SweepWidth     float64     `yaml:"sweep_width,omitempty" json:"sweep_width,omitempty"`
	Radius         float64     `yaml:"radius,omitempty" json:"radius,omitempty"`
	SweepAngle     float64     `yaml:"sweep_angle,omitempty" json:"sweep_angle,omitempty"`
	Center         *[2]float64 `yaml:"center,omitempty" json:"center,omitempty"`
	Orientation    Orientation `yaml:"orientation,omitempty" json:"orientation,omitempty"`
	Metric         string      `yaml:"metric,omitempty" json:"metric,omitempty"`
	Increment      float64     `yaml:"increment,omitempty" json:"increment,omitempty"`
	MinTimePerUnit *dist.Spec  `yaml:"min_time_per_unit,omitempty" json:"min_time_per_unit,omitempty"`
	Units          []FixedUnit `yaml:"units,omitempty" json:"units,omitempty"`
}

// FixedUnit is an externally supplied unit for a "fixed" coverage plan.
type FixedUnit struct {
	Name       string       `yaml:"name,omitempty" json:"name,omitempty"`
	Kind       string       `yaml:"kind" json:"kind"`
	Line       [][2]float64 `yaml:"line,omitempty" json:"line,omitempty"`
	Center     [2]float64   `yaml:"center,omitempty" json:"center,omitempty"`
	SweepWidth float64      `yaml:"sweep_width,omitempty" json:"sweep_width,omitempty"`
	Radius     float64      `yaml:"radius,omitempty" json:"radius,omitempty"`
	StartAngle float64      `yaml:"start_angle,omitempty" json:"start_angle,omitempty"`
	SweepAngle float64      `yaml:"sweep_angle,omitempty" json:"sweep_angle,omitempty"`
}

// Orientation is either a fixed angle in degrees or one of the modes
// "search", "long" and "short".
type Orientation struct {
	Mode  coverage.OrientMode `json:"mode"`
	Angle float64             `json:"angle"`
}

// UnmarshalYAML accepts a number or a mode name.
func (o *Orientation) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return simerr.Invalid("orientation must be a number or one of search, long, short")
	}
	var angle float64
	if err := node.Decode(&angle); err == nil {
		*o = Orientation{Mode: coverage.OrientFixed, Angle: angle}
		return nil
	}
	mode := coverage.OrientMode(strings.ToLower(node.Value))
	switch mode {
	case coverage.OrientSearch, coverage.OrientLong, coverage.OrientShort, coverage.OrientFixed:
		*o = Orientation{Mode: mode}
		return nil
	}
	return simerr.Invalid("unknown orientation %q", node.Value)
}

// MarshalYAML writes the angle for fixed orientations and the mode otherwise.
func (o Orientation) MarshalYAML() (any, error) {
	if o.Mode == "" || o.Mode == coverage.OrientFixed {
		return o.Angle, nil
	}
	return string(o.Mode), nil
}

// TeamSpec describes the crew.
type TeamSpec struct {
	Name       string         `yaml:"name" json:"name"`
	Assignment string         `yaml:"assignment,omitempty" json:"assignment,omitempty"`
	Surveyors  []SurveyorSpec `yaml:"surveyors" json:"surveyors"`
}

// SurveyorSpec describes one surveyor, or Count surveyors drawn alike.
type SurveyorSpec struct {
	Name         string     `yaml:"name" json:"name"`
	Type         string     `yaml:"type,omitempty" json:"type,omitempty"`
	Skill        *dist.Spec `yaml:"skill,omitempty" json:"skill,omitempty"`
	SpeedPenalty *dist.Spec `yaml:"speed_penalty,omitempty" json:"speed_penalty,omitempty"`
	Count        int        `yaml:"count,omitempty" json:"count,omitempty"`
}

// SurveySettings configure the batch of runs.
type SurveySettings struct {
	NRuns              int     `yaml:"n_runs" json:"n_runs"`
	StartRunID         *int    `yaml:"start_run_id,omitempty" json:"start_run_id,omitempty"`
	DiscoveryThreshold float64 `yaml:"discovery_threshold,omitempty" json:"discovery_threshold,omitempty"`
	Workers            int     `yaml:"workers,omitempty" json:"workers,omitempty"`
}

// Defaults fill the settings a scenario file leaves unset.
type Defaults struct {
	Seed               uint64
	Runs               int
	Workers            int
	DiscoveryThreshold float64
}

// DefaultDefaults returns the built-in scenario defaults.
func DefaultDefaults() Defaults {
	return Defaults{Seed: constants.DefaultSeed, Runs: constants.DefaultRuns}
}

// DefaultsFromConfig takes scenario defaults from the user configuration.
func DefaultsFromConfig(c config.SimulationConfig) Defaults {
	return Defaults{
		Seed:               c.Seed,
		Runs:               c.Runs,
		Workers:            c.Workers,
		DiscoveryThreshold: c.DiscoveryThreshold,
	}
}

// Overrides replace scenario settings after loading. Nil fields are ignored.
type Overrides struct {
	Seed               *uint64
	Runs               *int
	StartRunID         *int
	Workers            *int
	DiscoveryThreshold *float64
}

// Apply sets the non-nil overrides and revalidates the scenario.
func (s *Scenario) Apply(o Overrides) error {
	if o.Seed != nil {
		s.Seed = *o.Seed
	}
	if o.Runs != nil {
		s.Survey.NRuns = *o.Runs
	}
	if o.StartRunID != nil {
		id := *o.StartRunID
		s.Survey.StartRunID = &id
	}
	if o.Workers != nil {
		s.Survey.Workers = *o.Workers
	}
	if o.DiscoveryThreshold != nil {
		s.Survey.DiscoveryThreshold = *o.DiscoveryThreshold
	}
	return s.Validate()
}

// Load reads and validates a scenario file using the built-in defaults.
func Load(path string) (*Scenario, error) {
	return LoadWithDefaults(path, DefaultDefaults())
}

// LoadWithDefaults reads and validates a scenario file.
func LoadWithDefaults(path string, d Defaults) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	sc, err := ParseWithDefaults(data, d)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	sc.dir = filepath.Dir(path)
	return sc, nil
}

// Parse decodes and validates scenario YAML using the built-in defaults.
// Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	return ParseWithDefaults(data, DefaultDefaults())
}

// ParseWithDefaults decodes and validates scenario YAML, starting from d.
func ParseWithDefaults(data []byte, d Defaults) (*Scenario, error) {
	sc := &Scenario{
		Seed: d.Seed,
		Survey: SurveySettings{
			NRuns:              d.Runs,
			Workers:            d.Workers,
			DiscoveryThreshold: d.DiscoveryThreshold,
		},
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(sc); err != nil {
		return nil, fmt.Errorf("%w: parsing scenario: %v", simerr.ErrInvalidParameters, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Validate checks the structural rules a scenario must follow. Numeric
// ranges are checked again by the constructors during Build.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return simerr.Invalid("scenario name is required")
	}
	set := 0
	if s.Region.Area != 0 {
		set++
	}
	if len(s.Region.Polygon) > 0 {
		set++
	}
	if s.Region.GeoJSON != "" {
		set++
	}
	if set != 1 {
		return simerr.Invalid("region needs exactly one of area, polygon and geojson")
	}
	if len(s.Region.Polygon) > 0 && len(s.Region.Polygon) < 3 {
		return simerr.Invalid("region polygon needs at least 3 vertices, got %d", len(s.Region.Polygon))
	}

	names := map[string]bool{}
	for i, l := range s.Layers {
		if l.Name == "" {
			return simerr.Invalid("layer %d: name is required", i)
		}
		if names[l.Name] {
			return simerr.Invalid("duplicate layer name %q", l.Name)
		}
		names[l.Name] = true
		switch feature.Process(l.Process) {
		case feature.ProcessUniform, feature.ProcessPoisson, feature.ProcessMatern, feature.ProcessThomas,
			feature.ProcessRectangles, feature.ProcessDisks, feature.ProcessFixed:
		default:
			return simerr.Invalid("layer %q: unknown process %q", l.Name, l.Process)
		}
	}

	switch coverage.Kind(s.Coverage.Kind) {
	case coverage.KindTransect, coverage.KindRadial:
	case kindFixed:
		if len(s.Coverage.Units) == 0 {
			return simerr.Invalid("fixed coverage needs at least one unit")
		}
	default:
		return simerr.Invalid("coverage kind must be transect, radial or fixed, got %q", s.Coverage.Kind)
	}

	if len(s.Team.Surveyors) == 0 {
		return simerr.Invalid("team needs at least one surveyor")
	}
	for i, sv := range s.Team.Surveyors {
		if sv.Name == "" {
			return simerr.Invalid("surveyor %d: name is required", i)
		}
		if sv.Count < 0 {
			return simerr.Invalid("surveyor %q: count must be non-negative", sv.Name)
		}
	}
	if s.Team.Assignment != "" {
		switch team.Assignment(s.Team.Assignment) {
		case team.Naive, team.Shuffle, team.Random, team.Speed:
		default:
			return simerr.Invalid("unknown assignment policy %q", s.Team.Assignment)
		}
	}

	if s.Survey.NRuns < 0 {
		return simerr.Invalid("n_runs must be non-negative, got %d", s.Survey.NRuns)
	}
	if s.Survey.StartRunID != nil && *s.Survey.StartRunID < 0 {
		return simerr.Invalid("start_run_id must be non-negative, got %d", *s.Survey.StartRunID)
	}
	if th := s.Survey.DiscoveryThreshold; th < 0 || th > 1 {
		return simerr.Invalid("discovery_threshold must lie in [0, 1], got %g", th)
	}
	if s.Survey.Workers < 0 {
		return simerr.Invalid("workers must be non-negative, got %d", s.Survey.Workers)
	}
	return nil
}

// Marshal encodes the scenario as YAML.
func (s *Scenario) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

const kindFixed coverage.Kind = "fixed"
