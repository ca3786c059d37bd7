package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestName(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 30, 5, 250e6, time.UTC)
	if got, want := Name("/data/crossing.kbs", at), "crossing.20261019-123005.250000000.kbs"; got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
}

func TestSnapshot_MissingSource(t *testing.T) {
	dir := t.TempDir()
	got, err := Snapshot(filepath.Join(dir, "missing.kbs"), filepath.Join(dir, "backups"), time.Now())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got != "" {
		t.Errorf("Snapshot() = %q, want empty", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "backups")); !os.IsNotExist(err) {
		t.Error("backup directory created for a missing source")
	}
}

func TestSnapshot_CopiesContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "crossing.kbs")
	writeFile(t, src, "container bytes")

	got, err := Snapshot(src, filepath.Join(dir, "backups"), time.Now())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	if string(data) != "container bytes" {
		t.Errorf("snapshot content = %q", data)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "backups", ".backup-*"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}

func TestRotate(t *testing.T) {
	dir := t.TempDir()
	backups := filepath.Join(dir, "backups")
	src := filepath.Join(dir, "crossing.kbs")
	other := filepath.Join(dir, "merge.kbs")
	writeFile(t, src, "v")
	writeFile(t, other, "o")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := Snapshot(other, backups, base); err != nil {
		t.Fatal(err)
	}

	var deletedTotal int
	for i := 0; i < 5; i++ {
		now := base.Add(time.Duration(i) * time.Minute)
		_, deleted, err := Rotate(src, backups, Policy(3, 0, now), now)
		if err != nil {
			t.Fatalf("Rotate %d: %v", i, err)
		}
		deletedTotal += len(deleted)
	}
	if deletedTotal != 2 {
		t.Errorf("deleted %d backups, want 2", deletedTotal)
	}

	kept, err := List(backups, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(kept) != 3 {
		t.Fatalf("kept %d backups, want 3", len(kept))
	}
	if want := base.Add(4 * time.Minute); !kept[0].CreatedAt.Equal(want) {
		t.Errorf("newest = %v, want %v", kept[0].CreatedAt, want)
	}

	// Other containers' backups are untouched.
	if others, _ := List(backups, other); len(others) != 1 {
		t.Errorf("backups of merge.kbs = %d, want 1", len(others))
	}
}

func TestRotate_MaxAgeKeepsRecentBeyondCount(t *testing.T) {
	dir := t.TempDir()
	backups := filepath.Join(dir, "backups")
	src := filepath.Join(dir, "crossing.kbs")
	writeFile(t, src, "v")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		now := base.Add(time.Duration(i) * time.Minute)
		if _, _, err := Rotate(src, backups, Policy(1, 150*time.Second, now), now); err != nil {
			t.Fatalf("Rotate %d: %v", i, err)
		}
	}

	kept, err := List(backups, src)
	if err != nil {
		t.Fatal(err)
	}
	// Newest by count, the other two by age (cutoff 1m30s).
	if len(kept) != 3 {
		t.Fatalf("kept %d backups, want 3", len(kept))
	}
	if oldest := kept[len(kept)-1].CreatedAt; !oldest.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("oldest kept = %v, want %v", oldest, base.Add(2*time.Minute))
	}
}

func TestPolicy(t *testing.T) {
	now := time.Now()
	if _, ok := Policy(3, 0, now).(*CountPolicy); !ok {
		t.Errorf("Policy without max age = %T, want *CountPolicy", Policy(3, 0, now))
	}
	if _, ok := Policy(3, time.Hour, now).(*CompositePolicy); !ok {
		t.Errorf("Policy with max age = %T, want *CompositePolicy", Policy(3, time.Hour, now))
	}
}
