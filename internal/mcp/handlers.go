package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/autoscene/autoscene/internal/pathutil"
	"github.com/autoscene/autoscene/internal/sanitize"
	"github.com/autoscene/autoscene/internal/scene"
	"github.com/autoscene/autoscene/internal/trajectory"
	"github.com/autoscene/autoscene/internal/visualization"
)

// registerTools registers all scenario tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "scenario_info",
		Description: "Summarize the loaded scenario: scenes, timestamps, entity counts and logical identities",
	}, s.handleScenarioInfo)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "scene_frame",
		Description: "Extract the scene graph of one scene: styled shapes, relations and entities without geometry",
	}, s.handleSceneFrame)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "resolve_identity",
		Description: "Resolve a logical identity to its entity in a scene, with classes, placement and kinematics",
	}, s.handleResolveIdentity)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "trajectory",
		Description: "Follow a logical identity through every scene it is registered in",
	}, s.handleTrajectory)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "render_scenario",
		Description: "Render the scenario in DOT (Graphviz) or JSON, or write an interactive HTML viewer to a file",
	}, s.handleRender)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "reload",
		Description: "Re-read the container file from disk",
	}, s.handleReload)
}

// handleScenarioInfo implements the scenario_info tool.
func (s *Server) handleScenarioInfo(ctx context.Context, req *sdk.CallToolRequest, args ScenarioInfoInput) (_ *sdk.CallToolResult, _ ScenarioInfoOutput, retErr error) {
	start := time.Now()
	defer func() { s.auditTool("scenario_info", start, retErr, nil) }()

	if err := s.limiter.Check("scenario_info"); err != nil {
		return nil, ScenarioInfoOutput{}, err
	}

	sc, release, err := s.current()
	defer release()
	if err != nil {
		return nil, ScenarioInfoOutput{}, err
	}

	out := ScenarioInfoOutput{
		Name:       sanitize.Label(sc.Name()),
		Path:       s.path,
		Scenes:     make([]SceneSummary, 0, sc.Len()),
		Identities: []IdentitySummary{},
	}
	for i, sn := range sc.All() {
		entities, err := sn.Entities(ctx, "")
		if err != nil {
			return nil, ScenarioInfoOutput{}, fmt.Errorf("failed to list entities of scene %d: %w", i, err)
		}
		out.Scenes = append(out.Scenes, SceneSummary{
			Index:     i,
			Timestamp: sn.Timestamp(),
			Label:     sanitize.Label(sn.Label()),
			Entities:  len(entities),
		})
	}
	ids := sc.Identities()
	for _, logical := range ids.LogicalIDs() {
		out.Identities = append(out.Identities, IdentitySummary{LogicalID: logical, Scenes: ids.Scenes(logical)})
	}
	return nil, out, nil
}

// handleSceneFrame implements the scene_frame tool.
func (s *Server) handleSceneFrame(ctx context.Context, req *sdk.CallToolRequest, args SceneFrameInput) (_ *sdk.CallToolResult, _ SceneFrameOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("scene_frame", start, retErr, map[string]string{"scene": fmt.Sprint(args.Scene)})
	}()

	if err := s.limiter.Check("scene_frame"); err != nil {
		return nil, SceneFrameOutput{}, err
	}

	sc, release, err := s.current()
	defer release()
	if err != nil {
		return nil, SceneFrameOutput{}, err
	}
	if sc.Scene(args.Scene) == nil {
		return nil, SceneFrameOutput{}, fmt.Errorf("scene %d out of range (scenario has %d scenes)", args.Scene, sc.Len())
	}

	for f, err := range s.extractor.Steps(ctx, sc) {
		if err != nil {
			return nil, SceneFrameOutput{}, err
		}
		if f.Index == args.Scene {
			return nil, SceneFrameOutput{Frame: f}, nil
		}
	}
	return nil, SceneFrameOutput{}, fmt.Errorf("scene %d not extracted", args.Scene)
}

// handleResolveIdentity implements the resolve_identity tool.
func (s *Server) handleResolveIdentity(ctx context.Context, req *sdk.CallToolRequest, args ResolveIdentityInput) (_ *sdk.CallToolResult, _ ResolveIdentityOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("resolve_identity", start, retErr, map[string]string{"scene": fmt.Sprint(args.Scene), "logical_id": "(set)"})
	}()

	if err := s.limiter.Check("resolve_identity"); err != nil {
		return nil, ResolveIdentityOutput{}, err
	}

	sc, release, err := s.current()
	defer release()
	if err != nil {
		return nil, ResolveIdentityOutput{}, err
	}

	e, err := sc.Resolve(args.LogicalID, args.Scene)
	if err != nil {
		return nil, ResolveIdentityOutput{}, err
	}
	return describe(ctx, e)
}

func describe(ctx context.Context, e *scene.Entity) (*sdk.CallToolResult, ResolveIdentityOutput, error) {
	out := ResolveIdentityOutput{EntityID: e.ID(), Classes: []string{}}

	classes, err := e.Classes(ctx)
	if err != nil {
		return nil, out, err
	}
	schema := e.Scene().Schema()
	for _, iri := range classes {
		out.Classes = append(out.Classes, schema.QualifiedName(iri))
	}

	placed, err := e.HasGeometry(ctx)
	if err != nil {
		return nil, out, err
	}
	if placed {
		c, err := e.Centroid(ctx)
		if err != nil {
			return nil, out, err
		}
		p := [2]float64(c)
		out.Centroid = &p
		l, w, err := e.Dimensions(ctx)
		if err == nil {
			out.Length, out.Width = &l, &w
		}
	}
	if v, ok, err := e.Speed(ctx); err == nil && ok {
		out.Speed = &v
	}
	if v, ok, err := e.Yaw(ctx); err == nil && ok {
		out.Yaw = &v
	}
	return nil, out, nil
}

// handleTrajectory implements the trajectory tool.
func (s *Server) handleTrajectory(ctx context.Context, req *sdk.CallToolRequest, args TrajectoryInput) (_ *sdk.CallToolResult, _ TrajectoryOutput, retErr error) {
	start := time.Now()
	defer func() { s.auditTool("trajectory", start, retErr, map[string]string{"logical_id": "(set)"}) }()

	if err := s.limiter.Check("trajectory"); err != nil {
		return nil, TrajectoryOutput{}, err
	}

	sc, release, err := s.current()
	defer release()
	if err != nil {
		return nil, TrajectoryOutput{}, err
	}

	tracks, err := trajectory.Build(ctx, sc)
	if err != nil {
		return nil, TrajectoryOutput{}, err
	}
	for _, tr := range tracks {
		if tr.LogicalID != args.LogicalID {
			continue
		}
		out := TrajectoryOutput{
			LogicalID:    tr.LogicalID,
			Samples:      make([]TrajectorySample, 0, len(tr.Samples)),
			Displacement: tr.Displacement(),
		}
		for _, smp := range tr.Samples {
			ts := TrajectorySample{Scene: smp.Scene, Timestamp: smp.Timestamp, EntityID: smp.EntityID}
			if smp.Placed {
				c := [2]float64(smp.Centroid)
				ts.Centroid = &c
			}
			if smp.HasVelocity {
				speed, yaw := smp.Speed, smp.Yaw
				ts.Speed, ts.Yaw = &speed, &yaw
			}
			out.Samples = append(out.Samples, ts)
		}
		return nil, out, nil
	}
	return nil, TrajectoryOutput{}, fmt.Errorf("logical identity %q is not registered", args.LogicalID)
}

// handleRender implements the render_scenario tool.
func (s *Server) handleRender(ctx context.Context, req *sdk.CallToolRequest, args RenderInput) (_ *sdk.CallToolResult, _ RenderOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("render_scenario", start, retErr, map[string]string{"format": args.Format, "output_path": presence(args.OutputPath)})
	}()

	if err := s.limiter.Check("render_scenario"); err != nil {
		return nil, RenderOutput{}, err
	}

	format := visualization.FormatJSON
	if args.Format != "" {
		f, err := visualization.ParseFormat(args.Format)
		if err != nil {
			return nil, RenderOutput{}, err
		}
		format = f
	}
	if format == visualization.FormatHTML && args.OutputPath == "" {
		return nil, RenderOutput{}, fmt.Errorf("html output requires output_path")
	}
	var path string
	if args.OutputPath != "" {
		roots, err := pathutil.RenderRoots(s.path)
		if err != nil {
			return nil, RenderOutput{}, err
		}
		path, err = pathutil.Confine(args.OutputPath, roots)
		if err != nil {
			return nil, RenderOutput{}, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, RenderOutput{}, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	sc, release, err := s.current()
	defer release()
	if err != nil {
		return nil, RenderOutput{}, err
	}
	g, err := s.extractor.FromScenario(ctx, sc)
	if err != nil {
		return nil, RenderOutput{}, err
	}
	data, err := visualization.Render(g, format)
	if err != nil {
		return nil, RenderOutput{}, err
	}

	out := RenderOutput{Format: string(format), Frames: len(g.Frames)}
	if path != "" {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, RenderOutput{}, fmt.Errorf("failed to write %s: %w", pathutil.Redact(path), err)
		}
		out.Path = path
		return nil, out, nil
	}
	out.Content = strings.TrimSpace(string(data))
	return nil, out, nil
}

// handleReload implements the reload tool.
func (s *Server) handleReload(ctx context.Context, req *sdk.CallToolRequest, args ReloadInput) (_ *sdk.CallToolResult, _ ReloadOutput, retErr error) {
	start := time.Now()
	defer func() { s.auditTool("reload", start, retErr, nil) }()

	if err := s.limiter.Check("reload"); err != nil {
		return nil, ReloadOutput{}, err
	}

	if s.path == "" {
		return nil, ReloadOutput{}, ErrNoScenario
	}
	if err := s.reload(ctx); err != nil {
		return nil, ReloadOutput{}, err
	}
	sc, release, err := s.current()
	defer release()
	if err != nil {
		return nil, ReloadOutput{}, err
	}
	return nil, ReloadOutput{Scenes: sc.Len(), Message: fmt.Sprintf("reloaded %s", s.path)}, nil
}

func presence(v string) string {
	if v == "" {
		return ""
	}
	return "(set)"
}
