// Package scenegraph turns scenes into renderable frames: drawable shapes
// with class-derived styles, links between entities, and the entities that
// have no geometry. It performs no I/O.
package scenegraph

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel/attribute"

	"github.com/autoscene/autoscene/internal/geometry"
	"github.com/autoscene/autoscene/internal/observability"
	"github.com/autoscene/autoscene/internal/ontology"
	"github.com/autoscene/autoscene/internal/scenario"
	"github.com/autoscene/autoscene/internal/scene"
	"github.com/autoscene/autoscene/internal/store"
)

// DefaultNearDistance is the distance below which two dynamical objects
// are linked as near, in meters.
const DefaultNearDistance = 4.0

// Link kinds computed by the extractor. Stored relations use the
// property's local name.
const (
	LinkContains = "contains"
	LinkNear     = "near"
)

// Graph is the rendered form of a scenario.
type Graph struct {
	Name   string    `json:"name,omitempty"`
	Frames []*Frame  `json:"frames"`
	Bounds orb.Bound `json:"bounds"`

	placed bool
}

// Frame is one scene.
type Frame struct {
	Index     int       `json:"index"`
	Timestamp float64   `json:"timestamp"`
	Label     string    `json:"label,omitempty"`
	Shapes    []Shape   `json:"shapes"`
	Unplaced  []Entry   `json:"unplaced"`
	Links     []Link    `json:"links"`
	Bounds    orb.Bound `json:"bounds"`
}

// Shape is one drawable entity. Key stays the same across frames for
// entities registered under the same logical identity.
type Shape struct {
	Key       string              `json:"key"`
	EntityID  string              `json:"entity_id"`
	LogicalID string              `json:"logical_id,omitempty"`
	Class     string              `json:"class"`
	Kind      string              `json:"kind"` // "polygon", "line" or "point"
	Rings     []orb.Ring          `json:"rings"`
	Centroid  orb.Point           `json:"centroid"`
	LabelAt   orb.Point           `json:"label_at"`
	Style     Style               `json:"style"`
	Velocity  *orb.Point          `json:"velocity,omitempty"`
	Speed     *float64            `json:"speed,omitempty"`
	Data      map[string][]string `json:"data,omitempty"`

	geom orb.Geometry
	caps ontology.Capability
}

// Entry lists an entity that has no geometry.
type Entry struct {
	Key       string `json:"key"`
	EntityID  string `json:"entity_id"`
	LogicalID string `json:"logical_id,omitempty"`
	Class     string `json:"class"`
}

// Link is a drawable relation between two shapes.
type Link struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// Extractor builds frames. The zero value uses the default schema and near
// distance.
type Extractor struct {
	Schema       *ontology.Schema
	Logger       *slog.Logger
	Metrics      *observability.Collector
	NearDistance float64
}

// KeyFunc maps an entity of a scene to its shape key and logical identity.
type KeyFunc func(entityID string) (key, logicalID string)

// FromScenario extracts every scene of sc. Keys follow the identity map.
func (x *Extractor) FromScenario(ctx context.Context, sc *scenario.Scenario) (_ *Graph, err error) {
	ctx, span := observability.StartSpan(ctx, "scenegraph.FromScenario",
		attribute.String("scenario.name", sc.Name()), attribute.Int("scenario.scenes", sc.Len()))
	defer func() { observability.EndSpan(span, err) }()

	g := &Graph{Name: sc.Name()}
	for f, err := range x.Steps(ctx, sc) {
		if err != nil {
			return nil, err
		}
		g.add(f)
	}
	x.metrics().AddFrames(len(g.Frames))
	return g, nil
}

// Steps yields the frames of sc in index order. Iteration stops after the
// first error.
func (x *Extractor) Steps(ctx context.Context, sc *scenario.Scenario) iter.Seq2[*Frame, error] {
	return func(yield func(*Frame, error) bool) {
		ids := sc.Identities()
		for i, s := range sc.All() {
			keys := func(entityID string) (string, string) {
				if logical, ok := ids.LogicalID(i, entityID); ok {
					return "id:" + logical, logical
				}
				return sceneKey(i, entityID), ""
			}
			f, err := x.Frame(ctx, i, s, keys)
			if !yield(f, err) || err != nil {
				return
			}
		}
	}
}

// FromScenes extracts independently loaded scenes. No identity continuity
// is inferred: every key is scoped to its scene.
func (x *Extractor) FromScenes(ctx context.Context, name string, scenes []*scene.Scene) (_ *Graph, err error) {
	ctx, span := observability.StartSpan(ctx, "scenegraph.FromScenes",
		attribute.String("scenario.name", name), attribute.Int("scenario.scenes", len(scenes)))
	defer func() { observability.EndSpan(span, err) }()

	g := &Graph{Name: name}
	for i, s := range scenes {
		f, err := x.Frame(ctx, i, s, func(entityID string) (string, string) {
			return sceneKey(i, entityID), ""
		})
		if err != nil {
			return nil, err
		}
		g.add(f)
	}
	x.metrics().AddFrames(len(g.Frames))
	return g, nil
}

func sceneKey(index int, entityID string) string {
	return fmt.Sprintf("scene-%d/%s", index, entityID)
}

func (g *Graph) add(f *Frame) {
	if len(f.Shapes) > 0 {
		if g.placed {
			g.Bounds = g.Bounds.Union(f.Bounds)
		} else {
			g.Bounds, g.placed = f.Bounds, true
		}
	}
	g.Frames = append(g.Frames, f)
}

func (x *Extractor) schema() (*ontology.Schema, error) {
	if x != nil && x.Schema != nil {
		return x.Schema, nil
	}
	return ontology.Default()
}

func (x *Extractor) metrics() *observability.Collector {
	if x == nil {
		return nil
	}
	return x.Metrics
}

func (x *Extractor) near() float64 {
	if x == nil || x.NearDistance <= 0 {
		return DefaultNearDistance
	}
	return x.NearDistance
}

// Frame extracts one scene. keys maps entity IDs to shape keys; nil keys
// scope every key to the scene.
func (x *Extractor) Frame(ctx context.Context, index int, s *scene.Scene, keys KeyFunc) (*Frame, error) {
	schema, err := x.schema()
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = func(entityID string) (string, string) { return sceneKey(index, entityID), "" }
	}

	entities, err := s.Entities(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list entities of %s: %w", s, err)
	}

	f := &Frame{
		Index:     index,
		Timestamp: s.Timestamp(),
		Label:     s.Label(),
		Shapes:    []Shape{},
		Unplaced:  []Entry{},
		Links:     []Link{},
	}
	keyOf := make(map[string]string, len(entities))
	for _, e := range entities {
		ind, err := e.Individual(ctx)
		if err != nil {
			return nil, err
		}
		key, logical := keys(e.ID())
		keyOf[e.ID()] = key
		class := schema.QualifiedName(schema.MostSpecific(ind.Classes))
		if class == "" && len(ind.Classes) > 0 {
			class = ind.Classes[0]
		}

		g, err := e.Geometry(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read geometry of %s: %w", e, err)
		}
		if g == nil {
			f.Unplaced = append(f.Unplaced, Entry{Key: key, EntityID: e.ID(), LogicalID: logical, Class: class})
			continue
		}

		sh := Shape{
			Key:       key,
			EntityID:  e.ID(),
			LogicalID: logical,
			Class:     class,
			Style:     StyleFor(schema, ind.Classes),
			Centroid:  geometry.Centroid(g),
			Data:      tooltip(schema, ind),
			geom:      g,
			caps:      schema.Capabilities(ind.Classes),
		}
		sh.Kind, sh.Rings = rings(g)
		v, ok, err := e.Velocity(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read velocity of %s: %w", e, err)
		}
		if ok {
			sh.Velocity = &orb.Point{v.X, v.Y}
		}
		speed, ok, err := e.Speed(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read speed of %s: %w", e, err)
		}
		if ok {
			sh.Speed = &speed
		}
		f.Shapes = append(f.Shapes, sh)
	}

	sort.SliceStable(f.Shapes, func(i, j int) bool { return f.Shapes[i].Style.Layer < f.Shapes[j].Style.Layer })
	placeLabels(f.Shapes)
	for i, sh := range f.Shapes {
		b := sh.geom.Bound()
		if i == 0 {
			f.Bounds = b
		} else {
			f.Bounds = f.Bounds.Union(b)
		}
	}

	links, err := x.links(ctx, schema, s, f.Shapes, keyOf)
	if err != nil {
		return nil, err
	}
	f.Links = links

	if x != nil && x.Logger != nil {
		x.Logger.Debug("frame extracted", "scene", index, "shapes", len(f.Shapes), "unplaced", len(f.Unplaced), "links", len(f.Links))
	}
	return f, nil
}

// rings flattens g into drawable rings.
func rings(g orb.Geometry) (string, []orb.Ring) {
	switch t := g.(type) {
	case orb.Point:
		return "point", []orb.Ring{{t}}
	case orb.MultiPoint:
		return "point", []orb.Ring{orb.Ring(t)}
	case orb.LineString:
		return "line", []orb.Ring{orb.Ring(t)}
	case orb.MultiLineString:
		out := make([]orb.Ring, 0, len(t))
		for _, ls := range t {
			out = append(out, orb.Ring(ls))
		}
		return "line", out
	case orb.Ring:
		return "polygon", []orb.Ring{t}
	case orb.Polygon:
		return "polygon", []orb.Ring(t)
	case orb.MultiPolygon:
		var out []orb.Ring
		for _, p := range t {
			out = append(out, p...)
		}
		return "polygon", out
	case orb.Bound:
		return "polygon", []orb.Ring{t.ToRing()}
	}
	return "point", []orb.Ring{{geometry.Centroid(g)}}
}

// placeLabels moves labels of shapes sharing a centroid upward so they
// stay readable.
func placeLabels(shapes []Shape) {
	const offset = 0.8
	var taken []orb.Point
	for i := range shapes {
		at := shapes[i].Centroid
		for collides(taken, at) {
			at[1] += offset
		}
		taken = append(taken, at)
		shapes[i].LabelAt = at
	}
}

func collides(taken []orb.Point, p orb.Point) bool {
	for _, t := range taken {
		if math.Abs(t[0]-p[0]) < 1e-9 && math.Abs(t[1]-p[1]) < 1e-9 {
			return true
		}
	}
	return false
}

func tooltip(schema *ontology.Schema, ind *store.Individual) map[string][]string {
	if len(ind.Data) == 0 {
		return nil
	}
	out := make(map[string][]string, len(ind.Data))
	for prop, vals := range ind.Data {
		name := schema.QualifiedName(prop)
		for _, v := range vals {
			out[name] = append(out[name], v.Lexical)
		}
	}
	return out
}

// links collects stored object relations between drawn or listed entities
// plus computed containment and proximity.
func (x *Extractor) links(ctx context.Context, schema *ontology.Schema, s *scene.Scene, shapes []Shape, keyOf map[string]string) ([]Link, error) {
	out := []Link{}
	seen := make(map[Link]bool)
	add := func(l Link) {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}

	ids := make([]string, 0, len(keyOf))
	for id := range keyOf {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rels, err := s.Store().GetRelations(ctx, id, store.DirectionOutbound, "")
		if err != nil {
			return nil, fmt.Errorf("failed to read relations of %s: %w", id, err)
		}
		for _, r := range rels {
			if r.Predicate == ontology.PropHasGeometry {
				continue
			}
			to, ok := keyOf[r.Object]
			if !ok {
				continue
			}
			kind := r.Predicate
			if p, ok := schema.Property(r.Predicate); ok {
				kind = p.Name
			}
			if r.Predicate == ontology.PropSfContains {
				kind = LinkContains
			}
			add(Link{From: keyOf[id], To: to, Kind: kind})
		}
	}

	near := x.near()
	for i := range shapes {
		a := &shapes[i]
		for j := range shapes {
			if i == j {
				continue
			}
			b := &shapes[j]
			if !a.caps.Has(ontology.CapKinematics) && a.Kind == "polygon" && b.caps.Has(ontology.CapKinematics) &&
				geometry.Contains(a.geom, b.geom) {
				add(Link{From: a.Key, To: b.Key, Kind: LinkContains})
			}
			if i < j && a.caps.Has(ontology.CapKinematics) && b.caps.Has(ontology.CapKinematics) &&
				geometry.Distance(a.geom, b.geom) < near {
				from, to := a.Key, b.Key
				if to < from {
					from, to = to, from
				}
				add(Link{From: from, To: to, Kind: LinkNear})
			}
		}
	}
	return out, nil
}
