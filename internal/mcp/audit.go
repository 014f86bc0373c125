package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEntry represents a single audit log entry for an MCP tool invocation.
// It captures metadata about the call without including file paths.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"` // sanitized metadata only
}

// AuditLogger appends one JSON line per tool call to .prospect/audit.jsonl
// under the project root, falling back to the home directory when the
// project log cannot be opened. A nil AuditLogger discards entries.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewAuditLogger opens the audit log under localDir, or under globalDir when
// that fails. Either may be empty. It returns nil when neither can be opened.
func NewAuditLogger(localDir, globalDir string) *AuditLogger {
	for _, dir := range []string{localDir, globalDir} {
		if dir == "" {
			continue
		}
		if f := openAuditFile(filepath.Join(dir, ".prospect")); f != nil {
			return &AuditLogger{file: f, enc: json.NewEncoder(f)}
		}
	}
	return nil
}

func openAuditFile(dir string) *os.File {
	if err := os.MkdirAll(dir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create audit log directory %s: %v\n", dir, err)
		return nil
	}
	path := filepath.Join(dir, "audit.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open audit log %s: %v\n", path, err)
		return nil
	}
	return f
}

// Log appends entry. Write errors are dropped.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}
	_ = a.enc.Encode(entry)
}

// Close closes the log file. Later calls to Log are dropped.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// sanitizeToolParams extracts safe metadata from tool parameters.
//
// Parameters are classified into three categories:
//   - Safe-value params: both key and value are safe to log (e.g., "runs", "metric")
//   - Presence-only params: key is logged but value is replaced with "(set)"
//   - Unknown params: not logged at all
//
// Unset optional values (nil pointers, empty strings) are skipped. A
// "_param_count" key always records how many params were set.
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}

	safeValueParams := map[string]bool{
		"runs":      true,
		"seed":      true,
		"threshold": true,
		"increment": true,
		"metric":    true,
		"survey":    true,
		"top":       true,
	}

	presenceOnlyParams := map[string]bool{
		"scenario":     true,
		"archive_path": true,
	}

	result := make(map[string]string)
	set := 0
	for key, val := range params {
		val, ok := deref(val)
		if !ok {
			continue
		}
		set++
		if safeValueParams[key] {
			result[key] = fmt.Sprintf("%v", val)
		} else if presenceOnlyParams[key] {
			result[key] = "(set)"
		}
	}

	result["_param_count"] = fmt.Sprintf("%d", set)

	return result
}

// deref unwraps optional parameter values, reporting false when unset.
func deref(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case string:
		return x, x != ""
	case *int:
		if x == nil {
			return nil, false
		}
		return *x, true
	case *uint64:
		if x == nil {
			return nil, false
		}
		return *x, true
	case *float64:
		if x == nil {
			return nil, false
		}
		return *x, true
	default:
		return v, true
	}
}

// auditTool logs a tool invocation to the audit log.
func (s *Server) auditTool(toolName string, start time.Time, err error, params map[string]string) {
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}

	s.auditLogger.Log(AuditEntry{
		Timestamp:  start,
		Tool:       toolName,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
		Error:      errMsg,
		Params:     params,
	})
}
