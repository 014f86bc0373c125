package simulation

import (
	"github.com/paulmach/orb"

	"github.com/prospectsim/prospect/internal/coverage"
	"github.com/prospectsim/prospect/internal/feature"
	"github.com/prospectsim/prospect/internal/geom"
	"github.com/prospectsim/prospect/internal/store"
	"github.com/prospectsim/prospect/internal/survey"
	"github.com/prospectsim/prospect/internal/team"
)

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name string

	// Region overrides the default square of RegionArea (default 10000).
	Region     *geom.Region
	RegionArea float64

	Layers    []LayerSpec
	Coverage  CoverageSpec
	Surveyors []team.Surveyor
	Policy    team.Assignment

	// Config overrides survey.DefaultConfig.
	Config *survey.Config

	// Batches lists the run count of each batch, executed in order.
	Batches []int

	// LayerSeed seeds feature generation independently of the survey seed,
	// so two scenarios can share a layout while varying their runs.
	LayerSeed uint64

	// BeforeBatch, when non-nil, is called before each batch executes.
	// Use it to change the team between batches.
	BeforeBatch func(batchIndex int, s *survey.Survey)
}

// LayerSpec defines a generated feature layer.
type LayerSpec struct {
	Name    string
	Process feature.Process // default uniform
	Count   int
	Rate    float64
	Points  []orb.Point

	// IdealObsRate and TimePenalty are constant per layer. A nil IdealObsRate
	// means 1.
	IdealObsRate *float64
	TimePenalty  float64
}

// CoverageSpec defines the coverage plan. The zero value lays transects at
// the default spacing and sweep width, oriented at 0 degrees.
type CoverageSpec struct {
	Kind        coverage.Kind // default transect
	Spacing     float64
	SweepWidth  float64
	Radius      float64
	SweepAngle  float64
	Orientation float64
	MinTime     float64
}

// BatchResult captures the outcome of one batch.
type BatchResult struct {
	Index       int
	Batch       survey.Batch
	Frequencies []survey.FeatureFrequency
}

// SimulationResult captures all batches and the final survey state.
type SimulationResult struct {
	Scenario   Scenario
	Batches    []BatchResult
	Survey     *survey.Survey
	Region     *geom.Region
	Assemblage *feature.Assemblage
	Plan       *coverage.Plan
	Store      *store.SQLiteRunStore
}

// Log returns the survey's accumulated run log.
func (r SimulationResult) Log() []survey.Record { return r.Survey.Log() }

// Rate returns a pointer to v for LayerSpec.IdealObsRate.
func Rate(v float64) *float64 { return &v }

// Surveyor returns a surveyor with the given skill and no speed penalty.
func Surveyor(name string, skill float64) team.Surveyor {
	return team.Surveyor{Name: name, Skill: skill, SpeedPenalty: 1}
}
