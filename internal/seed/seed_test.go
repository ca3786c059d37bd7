package seed

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/autoscene/autoscene/internal/scenario"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCrossing(t *testing.T) {
	ctx := context.Background()
	sc, err := Crossing(ctx, 3, 1, scenario.Options{})
	if err != nil {
		t.Fatalf("Crossing() error = %v", err)
	}
	defer sc.Close()

	if sc.Len() != 3 || sc.Name() != "crossing" {
		t.Fatalf("scenario = %s with %d scenes", sc.Name(), sc.Len())
	}
	for i, s := range sc.All() {
		if s.Timestamp() != float64(i) {
			t.Errorf("scene %d timestamp = %v", i, s.Timestamp())
		}
	}

	want := []string{"ego", "cyclist", "walker", "parked", "driver"}
	got := sc.Identities().LogicalIDs()
	if len(got) != len(want) {
		t.Fatalf("identities = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("identity %d = %s, want %s", i, got[i], want[i])
		}
	}

	tests := []struct {
		logical string
		scene   int
		x, y    float64
		speed   float64
	}{
		{"ego", 0, -20, 0, 8},
		{"ego", 1, -12, 0, 6.5},
		{"ego", 2, -5.5, 0, 5},
		{"cyclist", 2, -2, 2.75, 4},
		{"walker", 2, 30, 4.2, 1.4},
	}
	for _, tt := range tests {
		e, err := sc.Resolve(tt.logical, tt.scene)
		if err != nil {
			t.Fatalf("Resolve(%s, %d): %v", tt.logical, tt.scene, err)
		}
		c, err := e.Centroid(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !near(c[0], tt.x) || !near(c[1], tt.y) {
			t.Errorf("%s@%d centroid = %v, want (%v, %v)", tt.logical, tt.scene, c, tt.x, tt.y)
		}
		speed, ok, err := e.Speed(ctx)
		if err != nil || !ok || !near(speed, tt.speed) {
			t.Errorf("%s@%d speed = %v (%v, %v), want %v", tt.logical, tt.scene, speed, ok, err, tt.speed)
		}
	}

	parked, err := sc.Resolve("parked", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := parked.Speed(ctx); ok {
		t.Error("parked vehicle should carry no velocity")
	}
}

func TestCrossing_ScenesAreIndependent(t *testing.T) {
	ctx := context.Background()
	sc, err := Crossing(ctx, 2, 0.5, scenario.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer sc.Close()

	if sc.Scene(0).Store() == sc.Scene(1).Store() {
		t.Fatal("scenes share a store")
	}
	first, _ := sc.Resolve("ego", 0)
	c, err := first.Centroid(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !near(c[0], -20) {
		t.Errorf("scene 0 ego moved to %v after later scenes were built", c)
	}
	if ts := sc.Scene(1).Timestamp(); ts != 0.5 {
		t.Errorf("scene 1 timestamp = %v, want 0.5", ts)
	}
}

func TestCrossing_SQLiteStores(t *testing.T) {
	ctx := context.Background()
	sc, err := Crossing(ctx, 2, 1, scenario.Options{NewStore: scenario.SQLiteStores(filepath.Join(t.TempDir(), "stores"))})
	if err != nil {
		t.Fatalf("Crossing() with sqlite stores: %v", err)
	}
	defer sc.Close()

	if _, err := sc.Resolve("walker", 1); err != nil {
		t.Errorf("Resolve(walker, 1): %v", err)
	}
}

func TestCrossing_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		steps int
		dt    float64
	}{
		{"no scenes", 0, 1},
		{"zero step", 2, 0},
		{"negative step", 2, -1},
		{"nan step", 2, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if sc, err := Crossing(ctx, tt.steps, tt.dt, scenario.Options{}); err == nil {
				sc.Close()
				t.Error("expected error")
			}
		})
	}
}
