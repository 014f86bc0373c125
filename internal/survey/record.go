package survey

import "time"

// Record is the outcome for one feature in one run.
type Record struct {
	RunID      int    `json:"run_id"`
	FeatureID  int    `json:"feature_id"`
	Feature    string `json:"feature"`
	Layer      string `json:"layer"`
	Discovered bool   `json:"discovered"`
	// UnitID is the discovering unit, or -1.
	UnitID   int    `json:"unit_id"`
	Unit     string `json:"unit,omitempty"`
	Surveyor string `json:"surveyor,omitempty"`
	// Probability is the discovering roll's probability, or the highest
	// probability the feature faced when it was not discovered.
	Probability float64 `json:"probability"`
	// Available reports whether any unit's footprint reached the feature.
	Available bool `json:"available"`
}

// UnitTime is the search time spent on one unit in one run.
type UnitTime struct {
	RunID    int    `json:"run_id"`
	UnitID   int    `json:"unit_id"`
	Unit     string `json:"unit"`
	Surveyor string `json:"surveyor"`
	// BaseTime is the unit's time budget.
	BaseTime float64 `json:"base_time"`
	// PenaltyTime sums the time penalties of features discovered in the unit.
	PenaltyTime float64 `json:"penalty_time"`
	// TotalTime is (BaseTime + PenaltyTime) times the surveyor's speed penalty.
	TotalTime float64 `json:"total_time"`
}

// Batch is the result of one call to Run.
type Batch struct {
	ID         string        `json:"id"`
	Survey     string        `json:"survey"`
	StartRunID int           `json:"start_run_id"`
	Runs       int           `json:"runs"`
	Seed       uint64        `json:"seed"`
	Records    []Record      `json:"records"`
	UnitTimes  []UnitTime    `json:"unit_times"`
	StartedAt  time.Time     `json:"started_at"`
	Elapsed    time.Duration `json:"elapsed"`
}
