package mcp

import "github.com/autoscene/autoscene/internal/scenegraph"

// ScenarioInfoInput defines the input for the scenario_info tool.
type ScenarioInfoInput struct{}

// ScenarioInfoOutput defines the output for the scenario_info tool.
type ScenarioInfoOutput struct {
	Name       string            `json:"name" jsonschema:"Scenario name"`
	Path       string            `json:"path" jsonschema:"Container file being served"`
	Scenes     []SceneSummary    `json:"scenes" jsonschema:"Scenes in timestamp order"`
	Identities []IdentitySummary `json:"identities" jsonschema:"Registered logical identities"`
}

// SceneSummary describes one scene.
type SceneSummary struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
	Label     string  `json:"label,omitempty"`
	Entities  int     `json:"entities"`
}

// IdentitySummary lists the scenes a logical identity is bound in.
type IdentitySummary struct {
	LogicalID string `json:"logical_id"`
	Scenes    []int  `json:"scenes"`
}

// SceneFrameInput defines the input for the scene_frame tool.
type SceneFrameInput struct {
	Scene int `json:"scene" jsonschema:"Zero-based scene index"`
}

// SceneFrameOutput defines the output for the scene_frame tool.
type SceneFrameOutput struct {
	Frame *scenegraph.Frame `json:"frame" jsonschema:"Shapes, links and entities without geometry of the scene"`
}

// ResolveIdentityInput defines the input for the resolve_identity tool.
type ResolveIdentityInput struct {
	LogicalID string `json:"logical_id" jsonschema:"Logical identity to resolve"`
	Scene     int    `json:"scene" jsonschema:"Zero-based scene index"`
}

// ResolveIdentityOutput defines the output for the resolve_identity tool.
type ResolveIdentityOutput struct {
	EntityID string      `json:"entity_id" jsonschema:"Per-scene entity the identity is bound to"`
	Classes  []string    `json:"classes" jsonschema:"Qualified class names of the entity"`
	Centroid *[2]float64 `json:"centroid,omitempty" jsonschema:"Centroid of the entity's shape, if placed"`
	Length   *float64    `json:"length,omitempty"`
	Width    *float64    `json:"width,omitempty"`
	Speed    *float64    `json:"speed,omitempty" jsonschema:"Signed speed derived from the velocity"`
	Yaw      *float64    `json:"yaw,omitempty" jsonschema:"Heading in degrees"`
}

// TrajectoryInput defines the input for the trajectory tool.
type TrajectoryInput struct {
	LogicalID string `json:"logical_id" jsonschema:"Logical identity to follow"`
}

// TrajectoryOutput defines the output for the trajectory tool.
type TrajectoryOutput struct {
	LogicalID    string             `json:"logical_id"`
	Samples      []TrajectorySample `json:"samples"`
	Displacement float64            `json:"displacement" jsonschema:"Distance between first and last placed samples"`
}

// TrajectorySample is one scene of a trajectory.
type TrajectorySample struct {
	Scene     int         `json:"scene"`
	Timestamp float64     `json:"timestamp"`
	EntityID  string      `json:"entity_id"`
	Centroid  *[2]float64 `json:"centroid,omitempty"`
	Speed     *float64    `json:"speed,omitempty"`
	Yaw       *float64    `json:"yaw,omitempty"`
}

// RenderInput defines the input for the render_scenario tool.
type RenderInput struct {
	Format     string `json:"format,omitempty" jsonschema:"Output format: dot or json (default: json)"`
	OutputPath string `json:"output_path,omitempty" jsonschema:"Write to this file instead of returning the content; html is only available here"`
}

// RenderOutput defines the output for the render_scenario tool.
type RenderOutput struct {
	Format  string `json:"format"`
	Frames  int    `json:"frames"`
	Content string `json:"content,omitempty"`
	Path    string `json:"path,omitempty"`
}

// ReloadInput defines the input for the reload tool.
type ReloadInput struct{}

// ReloadOutput defines the output for the reload tool.
type ReloadOutput struct {
	Scenes  int    `json:"scenes"`
	Message string `json:"message"`
}
