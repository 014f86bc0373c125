package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prospectsim/prospect/internal/survey"
)

// sqlStore implements RunStore over database/sql for any supported dialect.
type sqlStore struct {
	mu      sync.Mutex
	db      *sql.DB
	dialect dialect
}

// SaveBatch writes the batch row, its records and its unit times in one
// transaction.
func (s *sqlStore) SaveBatch(ctx context.Context, b survey.Batch) error {
	if b.ID == "" {
		return fmt.Errorf("batch ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO batches (id, survey, start_run_id, runs, seed, records, started_at, elapsed_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		b.ID, b.Survey, b.StartRunID, b.Runs, strconv.FormatUint(b.Seed, 10), len(b.Records),
		b.StartedAt.UTC().Format(time.RFC3339Nano), int64(b.Elapsed)); err != nil {
		return fmt.Errorf("failed to insert batch %s: %w", b.ID, err)
	}

	recStmt, err := tx.PrepareContext(ctx, s.dialect.rebind(`
		INSERT INTO records (batch_id, run_id, feature_id, feature, layer, discovered, unit_id, unit, surveyor, probability, available)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer recStmt.Close()
	for _, r := range b.Records {
		if _, err := recStmt.ExecContext(ctx, b.ID, r.RunID, r.FeatureID, r.Feature, r.Layer,
			boolInt(r.Discovered), r.UnitID, nullString(r.Unit), nullString(r.Surveyor), r.Probability,
			boolInt(r.Available)); err != nil {
			return fmt.Errorf("failed to insert record run=%d feature=%d: %w", r.RunID, r.FeatureID, err)
		}
	}

	timeStmt, err := tx.PrepareContext(ctx, s.dialect.rebind(`
		INSERT INTO unit_times (batch_id, run_id, unit_id, unit, surveyor, base_time, penalty_time, total_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare unit time insert: %w", err)
	}
	defer timeStmt.Close()
	for _, ut := range b.UnitTimes {
		if _, err := timeStmt.ExecContext(ctx, b.ID, ut.RunID, ut.UnitID, ut.Unit, ut.Surveyor,
			ut.BaseTime, ut.PenaltyTime, ut.TotalTime); err != nil {
			return fmt.Errorf("failed to insert unit time run=%d unit=%d: %w", ut.RunID, ut.UnitID, err)
		}
	}

	return tx.Commit()
}

// Frequencies aggregates stored records per feature.
func (s *sqlStore) Frequencies(ctx context.Context, surveyName string) ([]survey.FeatureFrequency, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT r.feature_id, r.feature, r.layer, COUNT(*), SUM(r.discovered), AVG(r.probability)
		FROM records r JOIN batches b ON b.id = r.batch_id
		WHERE b.survey = ?
		GROUP BY r.feature_id, r.feature, r.layer
		ORDER BY r.feature_id`), surveyName)
	if err != nil {
		return nil, fmt.Errorf("failed to query frequencies: %w", err)
	}
	defer rows.Close()

	var out []survey.FeatureFrequency
	for rows.Next() {
		var ff survey.FeatureFrequency
		var runs, discovered int64
		if err := rows.Scan(&ff.FeatureID, &ff.Feature, &ff.Layer, &runs, &discovered, &ff.MeanProbability); err != nil {
			return nil, fmt.Errorf("failed to scan frequency: %w", err)
		}
		ff.Runs = int(runs)
		ff.Discoveries = int(discovered)
		if runs > 0 {
			ff.Frequency = float64(discovered) / float64(runs)
		}
		out = append(out, ff)
	}
	return out, rows.Err()
}

// Batches lists stored batches ordered by start time.
func (s *sqlStore) Batches(ctx context.Context, surveyName string) ([]BatchInfo, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT id, survey, start_run_id, runs, seed, records, started_at, elapsed_ns
		FROM batches WHERE survey = ?
		ORDER BY started_at, id`), surveyName)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var out []BatchInfo
	for rows.Next() {
		var (
			bi              BatchInfo
			start, runs, n  int64
			seed, startedAt string
			elapsed         int64
		)
		if err := rows.Scan(&bi.ID, &bi.Survey, &start, &runs, &seed, &n, &startedAt, &elapsed); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		bi.StartRunID, bi.Runs, bi.Records = int(start), int(runs), int(n)
		if bi.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
			return nil, fmt.Errorf("batch %s: bad seed %q: %w", bi.ID, seed, err)
		}
		if bi.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("batch %s: bad start time %q: %w", bi.ID, startedAt, err)
		}
		bi.Elapsed = time.Duration(elapsed)
		out = append(out, bi)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying database for tests and ad hoc queries.
func (s *sqlStore) DB() *sql.DB { return s.db }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
