package mcp

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func readAudit(t *testing.T, dir string) []AuditEntry {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	var entries []AuditEntry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry AuditEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("parsing audit entry %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestAuditLogger_NilSafety(t *testing.T) {
	t.Run("nil logger Log is no-op", func(t *testing.T) {
		var logger *AuditLogger
		logger.Log(AuditEntry{Tool: "test"})
	})

	t.Run("nil logger Close is no-op", func(t *testing.T) {
		var logger *AuditLogger
		if err := logger.Close(); err != nil {
			t.Errorf("Close() on nil logger returned error: %v", err)
		}
	})
}

func TestAuditLogger_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	defer logger.Close()

	for i := 0; i < 3; i++ {
		logger.Log(AuditEntry{
			Timestamp:  time.Now(),
			Tool:       "scene_frame",
			DurationMs: int64(i * 10),
			Status:     "success",
			Params:     map[string]string{"scene": "1"},
		})
	}

	entries := readAudit(t, dir)
	if len(entries) != 3 {
		t.Fatalf("line count = %d, want 3", len(entries))
	}
	if entries[2].Tool != "scene_frame" || entries[2].DurationMs != 20 || entries[2].Params["scene"] != "1" {
		t.Errorf("last entry = %+v", entries[2])
	}
}

func TestAuditLogger_FilePermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	logger := NewAuditLogger(dir)
	defer logger.Close()
	logger.Log(AuditEntry{Tool: "reload"})

	info, err := os.Stat(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}

func TestAuditLogger_ConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(AuditEntry{Tool: "scenario_info", Status: "success"})
		}()
	}
	wg.Wait()

	if n := len(readAudit(t, dir)); n != 20 {
		t.Errorf("entries = %d, want 20", n)
	}
}

func TestAuditLogger_LogAfterClose(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	logger.Log(AuditEntry{Tool: "before"})
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
	logger.Log(AuditEntry{Tool: "after"})
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}

	if entries := readAudit(t, dir); len(entries) != 1 || entries[0].Tool != "before" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestAuditTool(t *testing.T) {
	dir := t.TempDir()
	s := &Server{audit: NewAuditLogger(dir)}
	defer s.audit.Close()

	start := time.Now()
	s.auditTool("render_scenario", start, nil, map[string]string{"format": "dot", "output_path": ""})
	s.auditTool("resolve_identity", start, errors.New("unknown identity"), map[string]string{"logical_id": "(set)"})

	entries := readAudit(t, dir)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Status != "success" || entries[0].Params["format"] != "dot" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if _, ok := entries[0].Params["output_path"]; ok {
		t.Error("empty params should be dropped")
	}
	if entries[1].Status != "error" || entries[1].Error != "unknown identity" {
		t.Errorf("second entry = %+v", entries[1])
	}
}
