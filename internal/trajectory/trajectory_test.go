package trajectory

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/autoscene/autoscene/internal/geometry"
	"github.com/autoscene/autoscene/internal/ontology"
	"github.com/autoscene/autoscene/internal/scenario"
	"github.com/autoscene/autoscene/internal/scene"
)

func newEntity(t *testing.T, s *scene.Scene, module ontology.ModuleID, class, id string) *scene.Entity {
	t.Helper()
	ctx := context.Background()
	m, err := s.Ontology(ctx, module)
	if err != nil {
		t.Fatal(err)
	}
	e, err := m.New(ctx, class, id)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// driveScenario moves "ego" east over three scenes and registers a driver
// without geometry in the first.
func driveScenario(t *testing.T) *scenario.Scenario {
	t.Helper()
	ctx := context.Background()
	sc, err := scenario.New(ctx, 3, scenario.Options{Name: "drive"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sc.Close() })

	for i := 0; i < 3; i++ {
		car := newEntity(t, sc.Scene(i), ontology.L4DE, "Passenger_Car", "")
		if err := car.SetGeometry(ctx, 5+6*float64(i), 10, 5.1, 2.2); err != nil {
			t.Fatal(err)
		}
		if i < 2 {
			if err := car.SetVelocity(ctx, geometry.Vec2(6, 0)); err != nil {
				t.Fatal(err)
			}
		}
		if err := sc.RegisterIdentity(ctx, "ego", i, car); err != nil {
			t.Fatal(err)
		}
	}
	driver := newEntity(t, sc.Scene(0), ontology.L4Core, "Driver", "driver")
	if err := sc.RegisterIdentity(ctx, "driver", 0, driver); err != nil {
		t.Fatal(err)
	}
	return sc
}

func TestBuild(t *testing.T) {
	tracks, err := Build(context.Background(), driveScenario(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(tracks) != 2 || tracks[0].LogicalID != "ego" || tracks[1].LogicalID != "driver" {
		t.Fatalf("tracks = %+v, want ego then driver", tracks)
	}

	ego := tracks[0]
	if len(ego.Samples) != 3 {
		t.Fatalf("ego samples = %d, want 3", len(ego.Samples))
	}
	for i, s := range ego.Samples {
		if s.Scene != i || s.Timestamp != float64(i) {
			t.Errorf("sample %d at scene %d t=%g", i, s.Scene, s.Timestamp)
		}
		if !s.Placed || math.Abs(s.Centroid[0]-(5+6*float64(i))) > 1e-9 {
			t.Errorf("sample %d centroid = %v", i, s.Centroid)
		}
	}
	if s := ego.Samples[0]; !s.HasVelocity || s.Speed != 6 || s.Yaw != 0 {
		t.Errorf("sample 0 kinematics = %+v", s)
	}
	if ego.Samples[2].HasVelocity {
		t.Error("sample 2 has no velocity set")
	}
	if d := ego.Displacement(); math.Abs(d-12) > 1e-9 {
		t.Errorf("Displacement() = %g, want 12", d)
	}

	driver := tracks[1]
	if len(driver.Samples) != 1 || driver.Samples[0].Placed || driver.Samples[0].HasVelocity {
		t.Errorf("driver samples = %+v", driver.Samples)
	}
	if driver.Displacement() != 0 {
		t.Error("unplaced track should have zero displacement")
	}
}

func TestArrowRoundTrip(t *testing.T) {
	tracks, err := Build(context.Background(), driveScenario(t))
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "drive.arrow")
	if err := WriteFile(path, tracks); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	if len(got) != len(tracks) {
		t.Fatalf("read %d tracks, want %d", len(got), len(tracks))
	}
	for i := range tracks {
		if got[i].LogicalID != tracks[i].LogicalID || len(got[i].Samples) != len(tracks[i].Samples) {
			t.Fatalf("track %d = %+v, want %+v", i, got[i], tracks[i])
		}
		for j, want := range tracks[i].Samples {
			if got[i].Samples[j] != want {
				t.Errorf("track %s sample %d = %+v, want %+v", want.EntityID, j, got[i].Samples[j], want)
			}
		}
	}
}

func TestRecord_Nulls(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec := Record(mem, []Track{{LogicalID: "ghost", Samples: []Sample{{Scene: 0, EntityID: "g"}}}})
	defer rec.Release()

	if rec.NumRows() != 1 || rec.NumCols() != int64(len(Schema.Fields())) {
		t.Fatalf("record shape = %dx%d", rec.NumRows(), rec.NumCols())
	}
	for _, col := range []int{4, 5, 6, 7, 8, 9} {
		if rec.Column(col).NullN() != 1 {
			t.Errorf("column %s should be null", Schema.Field(col).Name)
		}
	}
}

func TestWriteArrow_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.arrow")
	if err := WriteFile(path, nil); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("read %d tracks from an empty file", len(got))
	}
}

func TestWriteArrow_ToOpenFile(t *testing.T) {
	tracks := []Track{{LogicalID: "ego", Samples: []Sample{
		{Scene: 0, EntityID: "car_0", Placed: true, Centroid: [2]float64{1, 2}},
		{Scene: 1, Timestamp: 0.5, EntityID: "car_1", Placed: true, Centroid: [2]float64{4, 2},
			HasVelocity: true, Velocity: [2]float64{6, 0}, Speed: 6},
	}}}

	f, err := os.CreateTemp(t.TempDir(), "*.arrow")
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteArrow(f, tracks); err != nil {
		f.Close()
		t.Fatalf("WriteArrow() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := ReadFile(f.Name())
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(got) != 1 || len(got[0].Samples) != 2 || got[0].Samples[1] != tracks[0].Samples[1] {
		t.Errorf("read %+v, want %+v", got, tracks)
	}
}
