// Package pathutil confines the files that CLI flags and MCP tool arguments
// name to a set of allowed directories: the project root and ~/.prospect.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ScenarioExts are the accepted scenario file extensions.
var ScenarioExts = []string{".yaml", ".yml"}

// Allowed is a set of directories that paths must resolve under. Relative
// paths are taken relative to its base directory.
type Allowed struct {
	base string
	dirs []string // absolute, cleaned, symlinks resolved
}

// NewAllowed builds an Allowed set. Directories that cannot be resolved are
// skipped; an error is returned when none remain. An empty base means the
// working directory.
func NewAllowed(base string, dirs ...string) (*Allowed, error) {
	a := &Allowed{base: base}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			continue
		}
		resolved, err := resolveExistingParent(abs)
		if err != nil {
			continue
		}
		a.dirs = append(a.dirs, resolved)
	}
	if len(a.dirs) == 0 {
		return nil, fmt.Errorf("path validation failed: no allowed directories configured")
	}
	return a, nil
}

// Default allows ~/.prospect and, when non-empty, projectRoot, which is
// also the base for relative paths.
func Default(projectRoot string) (*Allowed, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewAllowed(projectRoot, filepath.Join(homeDir, ".prospect"), projectRoot)
}

// Dirs returns the resolved allowed directories.
func (a *Allowed) Dirs() []string {
	return slices.Clone(a.dirs)
}

// Resolve makes path absolute against the base, resolves symlinks in its
// existing parents and checks that the result lies in an allowed directory.
// It returns the cleaned absolute path; the file itself need not exist.
func (a *Allowed) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path validation failed: path is empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return "", fmt.Errorf("path validation failed: path contains null byte")
	}

	if !filepath.IsAbs(path) && a.base != "" {
		path = filepath.Join(a.base, path)
	}
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("path validation failed: cannot resolve absolute path: %w", err)
	}

	// Only the parent is resolved since the file may be about to be created.
	// A symlinked directory inside an allowed tree that points outside it is
	// caught here.
	resolvedDir, err := resolveExistingParent(filepath.Dir(absPath))
	if err != nil {
		return "", fmt.Errorf("path validation failed: cannot resolve parent directory: %w", err)
	}
	resolved := filepath.Join(resolvedDir, filepath.Base(absPath))

	for _, dir := range a.dirs {
		if isSubpath(resolved, dir) {
			return absPath, nil
		}
	}
	return "", fmt.Errorf("path validation failed: %q is outside allowed directories", RedactPath(absPath))
}

// ValidatePath checks that path lies within one of allowedDirs.
func ValidatePath(path string, allowedDirs []string) error {
	a, err := NewAllowed("", allowedDirs...)
	if err != nil {
		return err
	}
	_, err = a.Resolve(path)
	return err
}

// CheckExt reports an error unless path ends in one of exts, ignoring case.
func CheckExt(path string, exts ...string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if slices.Contains(exts, ext) {
		return nil
	}
	return fmt.Errorf("%s: extension must be one of %s", RedactPath(path), strings.Join(exts, ", "))
}

// RedactPath reduces a full path to .../<parent>/<basename> for safe error messages.
// For example, "/home/user/.prospect/config.yaml" becomes ".../.prospect/config.yaml".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	parent := filepath.Base(dir)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// resolveExistingParent walks up the directory tree to find the deepest existing
// ancestor, resolves symlinks on it, then re-appends the non-existent tail.
func resolveExistingParent(dir string) (string, error) {
	resolved, err := filepath.EvalSymlinks(dir)
	if err == nil {
		return resolved, nil
	}

	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}

	resolvedParent, err := resolveExistingParent(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

// isSubpath checks whether path is equal to or a subdirectory of base.
func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	// "/tmp/foo" must not match "/tmp/foobar"
	return strings.HasPrefix(path, base+string(os.PathSeparator))
}
