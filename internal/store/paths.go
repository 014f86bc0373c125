package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDBName is the file name of the default SQLite run store.
const DefaultDBName = "runs.db"

// GlobalProspectPath returns the path to the global .prospect directory.
// On Unix: ~/.prospect
// On Windows: %USERPROFILE%\.prospect
func GlobalProspectPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".prospect"), nil
}

// DefaultDBPath returns ~/.prospect/runs.db.
func DefaultDBPath() (string, error) {
	dir, err := GlobalProspectPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultDBName), nil
}
