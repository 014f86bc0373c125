package mcp

import (
	"time"

	"github.com/prospectsim/prospect/internal/coverage"
	"github.com/prospectsim/prospect/internal/store"
	"github.com/prospectsim/prospect/internal/survey"
)

// SurveyRunInput defines the input for survey_run tool.
type SurveyRunInput struct {
	Scenario    string   `json:"scenario" jsonschema:"Path to a scenario YAML file under the project root or ~/.prospect"`
	Runs        *int     `json:"runs,omitempty" jsonschema:"Number of runs; defaults to the scenario's n_runs"`
	Seed        *uint64  `json:"seed,omitempty" jsonschema:"Root random seed; defaults to the scenario's seed"`
	StartRunID  *int     `json:"start_run_id,omitempty" jsonschema:"First run ID of the batch"`
	Threshold   *float64 `json:"threshold,omitempty" jsonschema:"Discovery threshold (0.0-1.0)"`
	Top         int      `json:"top,omitempty" jsonschema:"Number of least-found features to report (default: 10)"`
	ArchivePath string   `json:"archive_path,omitempty" jsonschema:"Optional path to write a compressed run archive"`
}

// SurveyRunOutput defines the output for survey_run tool.
type SurveyRunOutput struct {
	Survey      string                    `json:"survey" jsonschema:"Survey name"`
	BatchID     string                    `json:"batch_id" jsonschema:"ID of the stored batch"`
	Seed        uint64                    `json:"seed" jsonschema:"Root seed used"`
	Summary     survey.Summary            `json:"summary" jsonschema:"Discovery summary over the batch"`
	Units       int                       `json:"units" jsonschema:"Number of survey units"`
	Features    []survey.FeatureFrequency `json:"features" jsonschema:"Features with the lowest discovery frequency"`
	ArchivePath string                    `json:"archive_path,omitempty" jsonschema:"Path of the written archive"`
	ElapsedMs   int64                     `json:"elapsed_ms" jsonschema:"Wall time of the batch"`
	Message     string                    `json:"message" jsonschema:"Human-readable result message"`
}

// CoverageOrientationInput defines the input for coverage_orientation tool.
type CoverageOrientationInput struct {
	Scenario  string  `json:"scenario" jsonschema:"Path to a scenario YAML file with transect coverage"`
	Increment float64 `json:"increment,omitempty" jsonschema:"Angle step in degrees (default: the scenario's or 5)"`
	Metric    string  `json:"metric,omitempty" jsonschema:"Score to maximize: 'area', 'length', or 'units' (default: area)"`
}

// CoverageOrientationOutput defines the output for coverage_orientation tool.
type CoverageOrientationOutput struct {
	Angle      float64              `json:"angle" jsonschema:"Best orientation in degrees"`
	Score      float64              `json:"score" jsonschema:"Score of the best orientation"`
	Metric     coverage.Metric      `json:"metric" jsonschema:"Metric maximized"`
	Candidates []coverage.Candidate `json:"candidates" jsonschema:"Every evaluated orientation"`
	Message    string               `json:"message" jsonschema:"Human-readable result message"`
}

// SurveyHistoryInput defines the input for survey_history tool.
type SurveyHistoryInput struct {
	Survey string `json:"survey" jsonschema:"Survey name as stored by survey_run"`
}

// SurveyHistoryOutput defines the output for survey_history tool.
type SurveyHistoryOutput struct {
	Batches     []BatchSummary            `json:"batches" jsonschema:"Stored batches, oldest first"`
	Runs        int                       `json:"runs" jsonschema:"Total stored runs"`
	Frequencies []survey.FeatureFrequency `json:"frequencies" jsonschema:"Per-feature frequencies over every stored run"`
	Message     string                    `json:"message" jsonschema:"Human-readable summary"`
}

// BatchSummary provides a list view of a stored batch.
type BatchSummary struct {
	ID         string `json:"id"`
	StartRunID int    `json:"start_run_id"`
	Runs       int    `json:"runs"`
	Seed       uint64 `json:"seed"`
	StartedAt  string `json:"started_at"` // RFC 3339
	ElapsedMs  int64  `json:"elapsed_ms"`
}

func batchSummary(b store.BatchInfo) BatchSummary {
	return BatchSummary{
		ID:         b.ID,
		StartRunID: b.StartRunID,
		Runs:       b.Runs,
		Seed:       b.Seed,
		StartedAt:  b.StartedAt.UTC().Format(time.RFC3339),
		ElapsedMs:  b.Elapsed.Milliseconds(),
	}
}
