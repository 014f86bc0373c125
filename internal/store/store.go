// Package store persists survey run logs. Batches are written whole and
// queried back as per-feature discovery frequencies.
package store

import (
	"context"
	"time"

	"github.com/prospectsim/prospect/internal/survey"
)

// RunStore persists the output of survey batches.
type RunStore interface {
	// SaveBatch writes a batch's records and unit times atomically.
	SaveBatch(ctx context.Context, b survey.Batch) error

	// Frequencies returns per-feature discovery frequencies over every stored
	// run of the named survey, ordered by feature ID.
	Frequencies(ctx context.Context, surveyName string) ([]survey.FeatureFrequency, error)

	// Batches lists the stored batches of the named survey, oldest first.
	Batches(ctx context.Context, surveyName string) ([]BatchInfo, error)

	// Close releases the store's resources.
	Close() error
}

// BatchInfo describes a stored batch without its records.
type BatchInfo struct {
	ID         string        `json:"id"`
	Survey     string        `json:"survey"`
	StartRunID int           `json:"start_run_id"`
	Runs       int           `json:"runs"`
	Seed       uint64        `json:"seed"`
	Records    int           `json:"records"`
	StartedAt  time.Time     `json:"started_at"`
	Elapsed    time.Duration `json:"elapsed"`
}

func infoOf(b survey.Batch) BatchInfo {
	return BatchInfo{
		ID:         b.ID,
		Survey:     b.Survey,
		StartRunID: b.StartRunID,
		Runs:       b.Runs,
		Seed:       b.Seed,
		Records:    len(b.Records),
		StartedAt:  b.StartedAt,
		Elapsed:    b.Elapsed,
	}
}
