package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"mixed case Debug", "Debug", slog.LevelDebug},
		{"unknown defaults to info", "verbose", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"warn filters info", "warn", false, false},
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"trace passes debug", "trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			if has := strings.Contains(buf.String(), "debug message"); has != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", has, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			if has := strings.Contains(buf.String(), "info message"); has != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", has, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)
	logger.Log(context.Background(), LevelTrace, "roll")
	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("trace level should be labelled TRACE, got %q", buf.String())
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	l := NewLogger("info", &bytes.Buffer{})
	if OrNop(l) != l {
		t.Error("OrNop should return a non-nil logger unchanged")
	}
}

func TestNewDecisionLogger_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	dl := NewDecisionLogger(dir, "info")
	if dl != nil {
		t.Error("expected nil DecisionLogger at info level")
	}

	// Nil logger is still safe to use.
	dl.Log(map[string]any{"event": "detection"})
	if dl.Events() != 0 {
		t.Error("nil logger should report zero events")
	}

	if _, err := os.Stat(filepath.Join(dir, "decisions.jsonl")); err == nil {
		t.Error("decisions.jsonl should not exist at info level")
	}
}

func TestNewDecisionLogger_DebugLevel(t *testing.T) {
	dir := t.TempDir()
	dl := NewDecisionLogger(filepath.Join(dir, "nested"), "debug")
	if dl == nil {
		t.Fatal("expected logger at debug level")
	}
	defer dl.Close()

	dl.Log(map[string]any{"event": "detection", "run": 3, "p": 0.42})
	dl.Log(map[string]any{"event": "detection", "run": 4, "p": 0.1})

	data, err := os.ReadFile(filepath.Join(dir, "nested", "decisions.jsonl"))
	if err != nil {
		t.Fatalf("failed to read decisions.jsonl: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("failed to parse JSONL entry: %v", err)
	}
	if entry["p"] != 0.42 || entry["run"] != float64(3) {
		t.Errorf("unexpected entry: %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field")
	}
	if dl.Events() != 2 {
		t.Errorf("Events = %d, want 2", dl.Events())
	}

	info, err := os.Stat(filepath.Join(dir, "nested", "decisions.jsonl"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}

func TestDecisionWriter_DoesNotMutateCallerMap(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDecisionWriter(&buf)

	event := map[string]any{"event": "detection"}
	dl.Log(event)
	if _, hasTime := event["time"]; hasTime {
		t.Error("Log() should not mutate caller's map")
	}
	if !strings.Contains(buf.String(), `"event":"detection"`) {
		t.Errorf("missing event in output: %q", buf.String())
	}
}

func TestDecisionLogger_LogAfterClose(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDecisionWriter(&buf)
	dl.Log(map[string]any{"event": "before"})
	dl.Close()
	dl.Log(map[string]any{"event": "after"})
	if strings.Contains(buf.String(), "after") {
		t.Error("writes after Close should be dropped")
	}

	var nilLogger *DecisionLogger
	nilLogger.Close()
}
