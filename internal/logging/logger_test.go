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
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"uppercase INFO", "INFO", slog.LevelInfo},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"uppercase TRACE", "TRACE", LevelTrace},
		{"mixed case Debug", "Debug", slog.LevelDebug},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{"info level", "info"},
		{"debug level", "debug"},
		{"trace level", "trace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)
			if logger == nil {
				t.Fatal("NewLogger returned nil")
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
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"trace passes debug", "trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			hasDebug := strings.Contains(buf.String(), "debug message")
			if hasDebug != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", hasDebug, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			hasInfo := strings.Contains(buf.String(), "info message")
			if hasInfo != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", hasInfo, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestLevelTrace(t *testing.T) {
	// Trace should be below debug (more verbose)
	if LevelTrace >= slog.LevelDebug {
		t.Errorf("LevelTrace (%d) should be less than LevelDebug (%d)", LevelTrace, slog.LevelDebug)
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)
	logger.Log(context.Background(), LevelTrace, "triple written")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("expected TRACE label, got %q", buf.String())
	}
}

func readEvents(t *testing.T, dir string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, EventFile))
	if err != nil {
		t.Fatalf("failed to read %s: %v", EventFile, err)
	}
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse JSONL entry %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestNewEventLog_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	el := NewEventLog(dir, "info")

	if el != nil {
		t.Error("expected nil EventLog at info level")
	}

	// Nil log should still be safe to use
	el.Record("scenario_saved", nil)

	if _, err := os.Stat(filepath.Join(dir, EventFile)); err == nil {
		t.Errorf("%s should not exist at info level", EventFile)
	}
}

func TestEventLog_Record(t *testing.T) {
	for _, level := range []string{"debug", "trace"} {
		t.Run(level, func(t *testing.T) {
			dir := t.TempDir()
			el := NewEventLog(dir, level)
			defer el.Close()

			el.Record("scenario_saved", map[string]any{"path": "run.kbs", "scenes": 2})
			el.Record("scenario_loaded", map[string]any{"event": "overridden"})

			events := readEvents(t, dir)
			if len(events) != 2 {
				t.Fatalf("expected 2 events, got %d", len(events))
			}
			if events[0]["event"] != "scenario_saved" || events[0]["path"] != "run.kbs" || events[0]["scenes"] != 2.0 {
				t.Errorf("first event = %v", events[0])
			}
			if events[1]["event"] != "scenario_loaded" {
				t.Errorf("event kind should win over fields, got %v", events[1]["event"])
			}
			if _, ok := events[0]["time"]; !ok {
				t.Error("expected 'time' field in event")
			}
		})
	}
}

func TestEventLog_NilSafety(t *testing.T) {
	var el *EventLog
	el.Record("should_not_panic", nil)
	el.Close()
}

func TestEventLog_DoesNotMutateFields(t *testing.T) {
	el := NewEventLog(t.TempDir(), "debug")
	defer el.Close()

	fields := map[string]any{"path": "a.kbs"}
	el.Record("scenario_saved", fields)

	if len(fields) != 1 {
		t.Errorf("Record() mutated caller's map: %v", fields)
	}
}

func TestEventLog_RecordAfterClose(t *testing.T) {
	dir := t.TempDir()
	el := NewEventLog(dir, "debug")

	el.Record("before_close", nil)
	el.Close()
	el.Record("after_close", nil)

	if events := readEvents(t, dir); len(events) != 1 {
		t.Errorf("expected only the event before Close, got %v", events)
	}
}

func TestNewEventLog_CreatesDirWithPrivatePerms(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "sub", "dir")

	el := NewEventLog(nested, "debug")
	if el == nil {
		t.Fatal("expected non-nil EventLog when dir needs creation")
	}
	defer el.Close()
	el.Record("dir_create_test", nil)

	info, err := os.Stat(filepath.Join(nested, EventFile))
	if err != nil {
		t.Fatalf("%s should exist after dir creation: %v", EventFile, err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
