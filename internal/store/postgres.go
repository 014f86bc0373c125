package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const postgresDriver = "pgx"

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// PostgresRunStore implements RunStore on Postgres through pgx.
type PostgresRunStore struct {
	*sqlStore
}

var _ RunStore = (*PostgresRunStore)(nil)

// NewPostgresRunStore connects to dsn, expanding ${VAR} references, and
// creates the schema when missing.
func NewPostgresRunStore(ctx context.Context, dsn string) (*PostgresRunStore, error) {
	dsn = os.ExpandEnv(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	openMu.Lock()
	db, err := sqlOpen(postgresDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := initSchema(ctx, db, dialectPostgres); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &PostgresRunStore{sqlStore: &sqlStore{db: db, dialect: dialectPostgres}}, nil
}

// overrideSQLOpen swaps the opener used by NewPostgresRunStore and returns
// a function restoring the previous one.
func overrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}
