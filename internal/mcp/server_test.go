package mcp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/autoscene/autoscene/internal/geometry"
	"github.com/autoscene/autoscene/internal/ontology"
	"github.com/autoscene/autoscene/internal/pathutil"
	"github.com/autoscene/autoscene/internal/ratelimit"
	"github.com/autoscene/autoscene/internal/scenario"
)

// writeContainer saves a two-scene scenario where "ego" drives from
// (5,10) to (11,10) and a driver without geometry sits in scene 0.
func writeContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	sc, err := scenario.New(ctx, 2, scenario.Options{Name: "mcp-test"})
	if err != nil {
		t.Fatal(err)
	}
	defer sc.Close()

	for i, x := range []float64{5, 11} {
		m, err := sc.Scene(i).Ontology(ctx, ontology.L4DE)
		if err != nil {
			t.Fatal(err)
		}
		car, err := m.New(ctx, "Passenger_Car", "")
		if err != nil {
			t.Fatal(err)
		}
		if err := car.SetGeometry(ctx, x, 10, 5.1, 2.2); err != nil {
			t.Fatal(err)
		}
		if err := car.SetVelocity(ctx, geometry.Vec2(6, 0)); err != nil {
			t.Fatal(err)
		}
		if err := sc.RegisterIdentity(ctx, "ego", i, car); err != nil {
			t.Fatal(err)
		}
	}
	core, err := sc.Scene(0).Ontology(ctx, ontology.L4Core)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := core.New(ctx, "Driver", "driver"); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "drive.kbs")
	if err := sc.SaveABox(ctx, path); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	server, err := NewServer(context.Background(), &Config{
		Name:     "test-server",
		Version:  "v1.0.0",
		Path:     writeContainer(t),
		AuditDir: dir,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server
}

func TestNewServer(t *testing.T) {
	server := newTestServer(t)

	if server.server == nil {
		t.Error("Server.server is nil")
	}
	if server.scenario == nil || server.scenario.Len() != 2 {
		t.Errorf("scenario not loaded: %v", server.scenario)
	}
	if server.audit == nil {
		t.Error("audit logger not created")
	}
}

func TestNewServer_MissingContainer(t *testing.T) {
	_, err := NewServer(context.Background(), &Config{
		Name: "test-server",
		Path: filepath.Join(t.TempDir(), "missing.kbs"),
	})
	if err == nil {
		t.Fatal("expected error for missing container")
	}
}

func TestClose(t *testing.T) {
	server := newTestServer(t)
	if err := server.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, _, err := server.handleScenarioInfo(context.Background(), nil, ScenarioInfoInput{}); !errors.Is(err, ErrNoScenario) {
		t.Errorf("after Close, error = %v, want ErrNoScenario", err)
	}
	// Closing twice is harmless.
	if err := server.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestHandleScenarioInfo(t *testing.T) {
	server := newTestServer(t)

	_, out, err := server.handleScenarioInfo(context.Background(), nil, ScenarioInfoInput{})
	if err != nil {
		t.Fatalf("scenario_info: %v", err)
	}
	if out.Name != "mcp-test" || len(out.Scenes) != 2 {
		t.Fatalf("out = %+v", out)
	}
	if out.Scenes[0].Entities != 2 || out.Scenes[1].Entities != 1 {
		t.Errorf("entity counts = %d, %d; want 2, 1", out.Scenes[0].Entities, out.Scenes[1].Entities)
	}
	if len(out.Identities) != 1 || out.Identities[0].LogicalID != "ego" || len(out.Identities[0].Scenes) != 2 {
		t.Errorf("identities = %+v", out.Identities)
	}
}

func TestHandleSceneFrame(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleSceneFrame(ctx, nil, SceneFrameInput{Scene: 0})
	if err != nil {
		t.Fatalf("scene_frame: %v", err)
	}
	if len(out.Frame.Shapes) != 1 || out.Frame.Shapes[0].Key != "id:ego" {
		t.Errorf("shapes = %+v", out.Frame.Shapes)
	}
	if len(out.Frame.Unplaced) != 1 || out.Frame.Unplaced[0].EntityID != "driver" {
		t.Errorf("unplaced = %+v", out.Frame.Unplaced)
	}

	if _, _, err := server.handleSceneFrame(ctx, nil, SceneFrameInput{Scene: 5}); err == nil {
		t.Error("expected error for out-of-range scene")
	}
}

func TestHandleResolveIdentity(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleResolveIdentity(ctx, nil, ResolveIdentityInput{LogicalID: "ego", Scene: 1})
	if err != nil {
		t.Fatalf("resolve_identity: %v", err)
	}
	if out.Centroid == nil || out.Centroid[0] < 10.999 || out.Centroid[0] > 11.001 {
		t.Errorf("centroid = %v, want x = 11", out.Centroid)
	}
	if out.Length == nil || *out.Length != 5.1 || out.Width == nil || *out.Width != 2.2 {
		t.Errorf("dimensions = %v x %v", out.Length, out.Width)
	}
	if out.Speed == nil || *out.Speed != 6 {
		t.Errorf("speed = %v, want 6", out.Speed)
	}
	if len(out.Classes) != 1 || out.Classes[0] != "l4_de.Passenger_Car" {
		t.Errorf("classes = %v", out.Classes)
	}

	var unknown *scenario.UnknownIdentityError
	_, _, err = server.handleResolveIdentity(ctx, nil, ResolveIdentityInput{LogicalID: "ghost", Scene: 0})
	if !errors.As(err, &unknown) {
		t.Errorf("error = %v, want UnknownIdentityError", err)
	}
}

func TestHandleTrajectory(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleTrajectory(ctx, nil, TrajectoryInput{LogicalID: "ego"})
	if err != nil {
		t.Fatalf("trajectory: %v", err)
	}
	if len(out.Samples) != 2 || out.Displacement < 5.999 || out.Displacement > 6.001 {
		t.Errorf("out = %+v", out)
	}

	if _, _, err := server.handleTrajectory(ctx, nil, TrajectoryInput{LogicalID: "ghost"}); err == nil {
		t.Error("expected error for unregistered identity")
	}
}

func TestHandleRender(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleRender(ctx, nil, RenderInput{Format: "dot"})
	if err != nil {
		t.Fatalf("render_scenario: %v", err)
	}
	if out.Frames != 2 || !strings.HasPrefix(out.Content, "digraph scenario") {
		t.Errorf("out = %+v", out)
	}

	if _, _, err := server.handleRender(ctx, nil, RenderInput{Format: "html"}); err == nil {
		t.Error("html without output_path should fail")
	}

	dir, err := filepath.EvalSymlinks(filepath.Dir(server.path))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "view.html")
	_, out, err = server.handleRender(ctx, nil, RenderInput{Format: "html", OutputPath: path})
	if err != nil {
		t.Fatalf("render html: %v", err)
	}
	if out.Path != path || out.Content != "" {
		t.Errorf("out = %+v", out)
	}
	if data, err := os.ReadFile(path); err != nil || !strings.Contains(string(data), "<canvas") {
		t.Errorf("html file not written: %v", err)
	}

	outside := filepath.Join(t.TempDir(), "view.html")
	_, _, err = server.handleRender(ctx, nil, RenderInput{Format: "html", OutputPath: outside})
	var oe *pathutil.OutsideError
	if !errors.As(err, &oe) {
		t.Errorf("error = %v, want OutsideError", err)
	}
	if _, err := os.Stat(outside); !os.IsNotExist(err) {
		t.Error("file outside the allowed directories was written")
	}
}

func TestHandlers_RateLimited(t *testing.T) {
	server, err := NewServer(context.Background(), &Config{
		Name:  "test-server",
		Path:  writeContainer(t),
		Rates: map[string]ratelimit.Rate{"scenario_info": {PerSecond: 0.001, Burst: 2}},
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer server.Close()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, _, err := server.handleScenarioInfo(ctx, nil, ScenarioInfoInput{}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	var le *ratelimit.LimitError
	_, _, err = server.handleScenarioInfo(ctx, nil, ScenarioInfoInput{})
	if !errors.As(err, &le) || le.Tool != "scenario_info" {
		t.Errorf("third call error = %v, want LimitError", err)
	}

	// Tools without a configured rate are not limited.
	for i := 0; i < 5; i++ {
		if _, _, err := server.handleTrajectory(ctx, nil, TrajectoryInput{LogicalID: "ego"}); err != nil {
			t.Fatalf("trajectory call %d: %v", i, err)
		}
	}
}

func TestHandleReload(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleReload(ctx, nil, ReloadInput{})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if out.Scenes != 2 {
		t.Errorf("scenes = %d, want 2", out.Scenes)
	}

	// A broken file leaves the previous scenario in place.
	if err := os.WriteFile(server.path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := server.handleReload(ctx, nil, ReloadInput{}); err == nil {
		t.Error("expected reload error for corrupt file")
	}
	if _, info, err := server.handleScenarioInfo(ctx, nil, ScenarioInfoInput{}); err != nil || len(info.Scenes) != 2 {
		t.Errorf("previous scenario lost: %v", err)
	}
}

func TestTools_OverTransport(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	clientTransport, serverTransport := sdk.NewInMemoryTransports()
	ss, err := server.server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	defer ss.Close()

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"scenario_info", "scene_frame", "resolve_identity", "trajectory", "render_scenario", "reload"} {
		if !names[want] {
			t.Errorf("tool %s not registered", want)
		}
	}

	res, err := cs.CallTool(ctx, &sdk.CallToolParams{
		Name:      "resolve_identity",
		Arguments: map[string]any{"logical_id": "ego", "scene": 0},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Errorf("resolve_identity returned a tool error: %+v", res.Content)
	}
}
