// Package seed builds sample scenarios for the demo command and tests.
package seed

import (
	"context"
	"fmt"
	"math"

	"github.com/autoscene/autoscene/internal/geometry"
	"github.com/autoscene/autoscene/internal/ontology"
	"github.com/autoscene/autoscene/internal/scenario"
	"github.com/autoscene/autoscene/internal/scene"
)

// fixture is a static road element laid out once in the first scene.
type fixture struct {
	module ontology.ModuleID
	class  string
	id     string
	x, y   float64
	length float64
	width  float64
	height float64 // point fixtures only
}

// participant is a traffic participant moving through the scenes.
type participant struct {
	logical string
	module  ontology.ModuleID
	class   string
	id      string
	x, y    float64
	length  float64 // zero places a point
	width   float64
	vx, vy  float64
	ax      float64 // braking along x, velocity floors at zero
}

func layout() []fixture {
	return []fixture{
		{module: ontology.L1DE, class: "Parking_Lane", id: "parking_lane", x: 0, y: -2.75, length: 120, width: 2},
		{module: ontology.L1DE, class: "Driving_Lane", id: "driving_lane", x: 0, y: 0, length: 120, width: 3.5},
		{module: ontology.L1DE, class: "Bikeway_Lane", id: "bikeway", x: 0, y: 2.75, length: 120, width: 2},
		{module: ontology.L1DE, class: "Sidewalk", id: "sidewalk", x: 0, y: 5.5, length: 120, width: 3.5},
		{module: ontology.L1DE, class: "Pedestrian_Crossing", id: "crossing", x: 30, y: 0.5, length: 4, width: 8},
		{module: ontology.L2DE, class: "Stop_Sign", id: "stop_sign", x: 26, y: 4.5, height: 2.1},
	}
}

func participants() []*participant {
	return []*participant{
		{logical: "ego", module: ontology.L4DE, class: "Passenger_Car", id: "ego_car", x: -20, y: 0, length: 4.6, width: 1.9, vx: 8, ax: -1.5},
		{logical: "cyclist", module: ontology.L4DE, class: "Bicycle", id: "cyclist", x: -10, y: 2.75, length: 1.8, width: 0.6, vx: 4},
		{logical: "walker", module: ontology.L4DE, class: "Pedestrian", id: "walker", x: 30, y: 7, vy: -1.4},
		{logical: "parked", module: ontology.L4DE, class: "Parking_Vehicle", id: "parked_van", x: 42, y: -2.75, length: 5.4, width: 2},
	}
}

// Crossing builds a scenario of steps scenes, dt seconds apart: a car
// brakes towards a pedestrian crossing while a pedestrian walks across and
// a cyclist passes on the bikeway. The layout is built in the first scene
// and carried into later scenes with Scene.Copy, so per-scene entity ids
// repeat and every participant is registered under a logical identity.
func Crossing(ctx context.Context, steps int, dt float64, opts scenario.Options) (*scenario.Scenario, error) {
	if steps < 1 {
		return nil, fmt.Errorf("crossing needs at least one scene, got %d", steps)
	}
	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("time step must be positive, got %v", dt)
	}
	if opts.Name == "" {
		opts.Name = "crossing"
	}

	sc, err := scenario.New(ctx, 1, opts)
	if err != nil {
		return nil, err
	}
	if err := build(ctx, sc, steps, dt, opts.NewStore); err != nil {
		sc.Close()
		return nil, err
	}
	return sc, nil
}

func build(ctx context.Context, sc *scenario.Scenario, steps int, dt float64, newStore scenario.StoreFactory) error {
	if newStore == nil {
		newStore = scenario.MemoryStores
	}
	first := sc.Scene(0)

	for _, f := range layout() {
		e, err := newEntity(ctx, first, f.module, f.class, f.id)
		if err != nil {
			return err
		}
		if f.length == 0 {
			err = e.SetPoint(ctx, f.x, f.y, scene.WithHeight(f.height))
		} else {
			err = e.SetGeometry(ctx, f.x, f.y, f.length, f.width)
		}
		if err != nil {
			return fmt.Errorf("failed to place %s: %w", f.id, err)
		}
	}

	ps := participants()
	for _, p := range ps {
		if _, err := newEntity(ctx, first, p.module, p.class, p.id); err != nil {
			return err
		}
	}
	driver, err := newEntity(ctx, first, ontology.L4Core, "Driver", "driver")
	if err != nil {
		return err
	}
	if err := driver.Relate(ctx, ontology.PropDrives, first.Ref(ps[0].id)); err != nil {
		return err
	}

	prev := first
	for i := 0; i < steps; i++ {
		cur := prev
		if i > 0 {
			st, err := newStore(ctx, i)
			if err != nil {
				return fmt.Errorf("failed to open store for scene %d: %w", i, err)
			}
			cur, err = prev.Copy(ctx, scene.CopyOptions{DeltaT: dt, Store: st})
			if err != nil {
				st.Close()
				return err
			}
			if err := sc.AddScene(cur); err != nil {
				cur.Close()
				return err
			}
		}
		for _, p := range ps {
			if err := p.place(ctx, cur); err != nil {
				return fmt.Errorf("scene %d: %w", i, err)
			}
			if err := sc.RegisterIdentity(ctx, p.logical, i, cur.Ref(p.id)); err != nil {
				return err
			}
			p.advance(dt)
		}
		if err := sc.RegisterIdentity(ctx, "driver", i, cur.Ref("driver")); err != nil {
			return err
		}
		prev = cur
	}
	return nil
}

func newEntity(ctx context.Context, s *scene.Scene, module ontology.ModuleID, class, id string) (*scene.Entity, error) {
	m, err := s.Ontology(ctx, module)
	if err != nil {
		return nil, err
	}
	return m.New(ctx, class, id)
}

// place writes the participant's current state into s.
func (p *participant) place(ctx context.Context, s *scene.Scene) error {
	e := s.Ref(p.id)
	var err error
	if p.length == 0 {
		err = e.SetPoint(ctx, p.x, p.y)
	} else {
		err = e.SetGeometry(ctx, p.x, p.y, p.length, p.width)
	}
	if err != nil {
		return err
	}
	if p.vx == 0 && p.vy == 0 && p.ax == 0 {
		return nil
	}
	if err := e.SetVelocity(ctx, geometry.Vec2(p.vx, p.vy)); err != nil {
		return err
	}
	if p.ax != 0 {
		return e.SetAcceleration(ctx, geometry.Vec2(p.ax, 0))
	}
	return nil
}

func (p *participant) advance(dt float64) {
	p.x += p.vx * dt
	p.y += p.vy * dt
	if p.ax != 0 {
		p.vx = math.Max(0, p.vx+p.ax*dt)
	}
}
