package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func infos(now time.Time, ages ...time.Duration) []Info {
	out := make([]Info, len(ages))
	for i, age := range ages {
		out[i] = Info{Path: filepath.Join("/b", Name("s.kbs", now.Add(-age))), CreatedAt: now.Add(-age), Size: 100}
	}
	return out
}

func TestCountPolicy(t *testing.T) {
	now := time.Now()
	backups := infos(now, 0, time.Hour, 2*time.Hour, 3*time.Hour, 4*time.Hour)

	tests := []struct {
		name string
		max  int
		want int
	}{
		{name: "keeps newest N", max: 3, want: 3},
		{name: "fewer than N", max: 10, want: 5},
		{name: "zero keeps none", max: 0, want: 0},
		{name: "negative keeps none", max: -1, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keep := (&CountPolicy{MaxCount: tt.max}).Apply(backups)
			if len(keep) != tt.want {
				t.Fatalf("kept %d, want %d", len(keep), tt.want)
			}
			if tt.want > 0 && keep[0].Path != backups[0].Path {
				t.Errorf("first kept = %s, want newest", keep[0].Path)
			}
		})
	}
}

func TestAgePolicy(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	backups := infos(now, time.Hour, 12*time.Hour, 48*time.Hour, 720*time.Hour)

	keep := (&AgePolicy{MaxAge: 24 * time.Hour, Now: func() time.Time { return now }}).Apply(backups)
	if len(keep) != 2 {
		t.Errorf("AgePolicy kept %d, want 2", len(keep))
	}
}

func TestCompositePolicy_Union(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	backups := infos(now, time.Hour, 48*time.Hour, 96*time.Hour, 200*time.Hour)

	policy := &CompositePolicy{Policies: []RetentionPolicy{
		&CountPolicy{MaxCount: 1},
		&AgePolicy{MaxAge: 72 * time.Hour, Now: func() time.Time { return now }},
	}}
	keep := policy.Apply(backups)
	if len(keep) != 2 {
		t.Fatalf("kept %d, want 2", len(keep))
	}
	if keep[0].Path != backups[0].Path || keep[1].Path != backups[1].Path {
		t.Errorf("kept %v", keep)
	}
}

func TestList_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	for _, name := range []string{
		Name("s.kbs", at),
		Name("s.kbs", at.Add(time.Second)),
		"s.notes.kbs",
		"s.20261019-080000.000000000.txt",
		Name("t.kbs", at),
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := List(dir, "/elsewhere/s.kbs")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("List() = %d entries, want 2", len(got))
	}
	if !got[0].CreatedAt.After(got[1].CreatedAt) {
		t.Error("List() not sorted newest first")
	}
	if got[0].Version != 0 {
		t.Errorf("Version = %d for a non-container file, want 0", got[0].Version)
	}
}

func TestList_MissingDir(t *testing.T) {
	got, err := List(filepath.Join(t.TempDir(), "none"), "s.kbs")
	if err != nil || got != nil {
		t.Errorf("List() = %v, %v; want nil, nil", got, err)
	}
}
