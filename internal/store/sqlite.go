package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteRunStore implements RunStore on a SQLite database file.
type SQLiteRunStore struct {
	*sqlStore
	path string
}

var _ RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore opens or creates the database at path.
func NewSQLiteRunStore(path string) (*SQLiteRunStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := initSchema(context.Background(), db, dialectSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteRunStore{sqlStore: &sqlStore{db: db, dialect: dialectSQLite}, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteRunStore) Path() string { return s.path }
