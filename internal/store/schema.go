package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 is written in the subset of SQL shared by SQLite and Postgres.
var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS batches (
    id TEXT PRIMARY KEY,
    survey TEXT NOT NULL,
    start_run_id BIGINT NOT NULL,
    runs BIGINT NOT NULL,
    seed TEXT NOT NULL,  -- decimal uint64, which overflows BIGINT
    records BIGINT NOT NULL,
    started_at TEXT NOT NULL,
    elapsed_ns BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_batches_survey ON batches(survey)`,
	`CREATE TABLE IF NOT EXISTS records (
    batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    run_id BIGINT NOT NULL,
    feature_id BIGINT NOT NULL,
    feature TEXT NOT NULL,
    layer TEXT NOT NULL,
    discovered INTEGER NOT NULL,
    unit_id BIGINT NOT NULL,
    unit TEXT,
    surveyor TEXT,
    probability DOUBLE PRECISION NOT NULL,
    available INTEGER NOT NULL,
    PRIMARY KEY (batch_id, run_id, feature_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_records_feature ON records(feature_id)`,
	`CREATE TABLE IF NOT EXISTS unit_times (
    batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    run_id BIGINT NOT NULL,
    unit_id BIGINT NOT NULL,
    unit TEXT NOT NULL,
    surveyor TEXT NOT NULL,
    base_time DOUBLE PRECISION NOT NULL,
    penalty_time DOUBLE PRECISION NOT NULL,
    total_time DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (batch_id, run_id, unit_id)
)`,
}

// dialect adapts shared SQL to a driver.
type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// initSchema creates the schema on a fresh database and migrates older ones.
func initSchema(ctx context.Context, db *sql.DB, d dialect) error {
	current, err := getSchemaVersion(ctx, db)
	if err != nil {
		if err := createSchema(ctx, db, d); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}
	if d == dialectSQLite {
		if err := validateIntegrity(ctx, db); err != nil {
			return fmt.Errorf("database integrity check failed: %w", err)
		}
	}
	if current > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, SchemaVersion)
	}
	return nil
}

// getSchemaVersion returns an error when the schema_version table is missing.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, fmt.Errorf("schema_version is empty")
	}
	return int(version.Int64), nil
}

func createSchema(ctx context.Context, db *sql.DB, d dialect) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schemaV1 {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		d.rebind(`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`),
		SchemaVersion, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

// validateIntegrity runs PRAGMA integrity_check on a SQLite database.
func validateIntegrity(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("failed to run integrity_check: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return fmt.Errorf("failed to scan integrity_check result: %w", err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity_check failed: %s", result)
		}
	}
	return rows.Err()
}
