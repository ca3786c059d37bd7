// Package trajectory follows logical entities through the scenes of a
// scenario and exports their motion as Arrow IPC files.
package trajectory

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/autoscene/autoscene/internal/scenario"
	"github.com/autoscene/autoscene/internal/scene"
)

// Sample is the state of one logical entity in one scene. Placement and
// kinematics are optional: an entity may exist without either.
type Sample struct {
	Scene     int     `json:"scene"`
	Timestamp float64 `json:"timestamp"`
	EntityID  string  `json:"entity_id"`

	Placed   bool      `json:"placed"`
	Centroid orb.Point `json:"centroid"`

	HasVelocity bool      `json:"has_velocity"`
	Velocity    orb.Point `json:"velocity"`
	Speed       float64   `json:"speed"`
	Yaw         float64   `json:"yaw"`
}

// Track is the ordered samples of one logical entity.
type Track struct {
	LogicalID string   `json:"logical_id"`
	Samples   []Sample `json:"samples"`
}

// Build returns one track per registered logical identity, in
// registration order. Samples follow scene order.
func Build(ctx context.Context, sc *scenario.Scenario) ([]Track, error) {
	ids := sc.Identities()
	tracks := make([]Track, 0, ids.Len())
	for _, logical := range ids.LogicalIDs() {
		tr := Track{LogicalID: logical}
		for _, idx := range ids.Scenes(logical) {
			e, err := sc.Resolve(logical, idx)
			if err != nil {
				return nil, err
			}
			s, err := sample(ctx, e)
			if err != nil {
				return nil, fmt.Errorf("failed to sample %s in scene %d: %w", logical, idx, err)
			}
			s.Scene = idx
			s.Timestamp = sc.Scene(idx).Timestamp()
			tr.Samples = append(tr.Samples, s)
		}
		tracks = append(tracks, tr)
	}
	return tracks, nil
}

func sample(ctx context.Context, e *scene.Entity) (Sample, error) {
	s := Sample{EntityID: e.ID()}

	placed, err := e.HasGeometry(ctx)
	if err != nil {
		return s, err
	}
	if placed {
		if s.Centroid, err = e.Centroid(ctx); err != nil {
			return s, err
		}
		s.Placed = true
	}

	v, ok, err := e.Velocity(ctx)
	if err != nil {
		return s, err
	}
	if ok {
		s.HasVelocity = true
		s.Velocity = orb.Point{v.X, v.Y}
		s.Speed = v.SignedNorm()
		s.Yaw = v.Heading()
	}
	return s, nil
}

// Displacement is the straight-line distance between the first and last
// placed samples of t.
func (t Track) Displacement() float64 {
	var first, last *Sample
	for i := range t.Samples {
		if !t.Samples[i].Placed {
			continue
		}
		if first == nil {
			first = &t.Samples[i]
		}
		last = &t.Samples[i]
	}
	if first == nil {
		return 0
	}
	return planar.Distance(first.Centroid, last.Centroid)
}
