package scene

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/autoscene/autoscene/internal/geometry"
	"github.com/autoscene/autoscene/internal/ontology"
	"github.com/autoscene/autoscene/internal/store"
)

type shapeConfig struct {
	rotation  float64
	height    float64
	hasHeight bool
}

// ShapeOption adjusts SetGeometry and SetPoint.
type ShapeOption func(*shapeConfig)

// WithRotation rotates the rectangle by deg degrees counter-clockwise about
// its centroid.
func WithRotation(deg float64) ShapeOption {
	return func(c *shapeConfig) { c.rotation = deg }
}

// WithHeight records a vertical extent. Only entities with the elevation
// capability accept it.
func WithHeight(h float64) ShapeOption {
	return func(c *shapeConfig) { c.height, c.hasHeight = h, true }
}

// require fails with UnsupportedAttributeError unless the entity's classes
// provide capability.
func (e *Entity) require(ctx context.Context, capability ontology.Capability, attribute string) error {
	ind, err := e.Individual(ctx)
	if err != nil {
		return err
	}
	if !e.scene.schema.Capabilities(ind.Classes).Has(capability) {
		return &geometry.UnsupportedAttributeError{Entity: e.id, Attribute: attribute, Classes: ind.Classes}
	}
	return nil
}

// SetGeometry gives the entity a rectangle of length x width centered on
// (x, y) and records its dimensions. Invalid input leaves the entity
// unchanged.
func (e *Entity) SetGeometry(ctx context.Context, x, y, length, width float64, opts ...ShapeOption) error {
	var cfg shapeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	poly, err := geometry.Rectangle(x, y, length, width, cfg.rotation)
	if err != nil {
		return err
	}
	dims := map[string][]store.Literal{
		ontology.PropHasLength: {store.Double(length)},
		ontology.PropHasWidth:  {store.Double(width)},
	}
	return e.writeShape(ctx, poly, dims, cfg)
}

// SetPoint places the entity at (x, y) without extent.
func (e *Entity) SetPoint(ctx context.Context, x, y float64, opts ...ShapeOption) error {
	var cfg shapeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	p, err := geometry.Point(x, y)
	if err != nil {
		return err
	}
	dims := map[string][]store.Literal{
		ontology.PropHasLength: nil,
		ontology.PropHasWidth:  {store.Double(0)},
	}
	return e.writeShape(ctx, p, dims, cfg)
}

// SetShape gives the entity an arbitrary shape. Length and width are
// derived from it.
func (e *Entity) SetShape(ctx context.Context, g orb.Geometry) error {
	if err := geometry.Validate(g); err != nil {
		return err
	}
	l, w := geometry.Dimensions(g)
	dims := map[string][]store.Literal{
		ontology.PropHasLength: {store.Double(l)},
		ontology.PropHasWidth:  {store.Double(w)},
	}
	return e.writeShape(ctx, g, dims, shapeConfig{})
}

func (e *Entity) writeShape(ctx context.Context, g orb.Geometry, dims map[string][]store.Literal, cfg shapeConfig) error {
	if err := e.require(ctx, ontology.CapGeometry, "geometry"); err != nil {
		return err
	}
	if cfg.hasHeight {
		if err := e.require(ctx, ontology.CapElevation, "height"); err != nil {
			return err
		}
		if cfg.height < 0 || math.IsNaN(cfg.height) || math.IsInf(cfg.height, 0) {
			return &geometry.InvalidGeometryError{Reason: fmt.Sprintf("invalid height %v", cfg.height)}
		}
	}
	text, err := geometry.MarshalWKT(g)
	if err != nil {
		return err
	}

	st := e.scene.store
	geomID, err := e.geometryID(ctx)
	if err != nil {
		return err
	}
	if geomID == "" {
		geomID = e.id + "_geometry"
		if existing, err := st.GetIndividual(ctx, geomID); err != nil {
			return err
		} else if existing != nil {
			geomID = e.id + "_geometry_" + uuid.NewString()
		}
		ind := store.Individual{
			ID:      geomID,
			Classes: []string{ontology.ClassGeometry},
			Data:    map[string][]store.Literal{ontology.PropAsWKT: {store.WKT(text)}},
		}
		if _, err := st.AddIndividual(ctx, ind); err != nil {
			return fmt.Errorf("failed to create geometry of %s: %w", e.id, err)
		}
		if err := st.AddRelation(ctx, store.Relation{Subject: e.id, Predicate: ontology.PropHasGeometry, Object: geomID}); err != nil {
			return err
		}
	} else if err := st.SetData(ctx, geomID, ontology.PropAsWKT, []store.Literal{store.WKT(text)}); err != nil {
		return err
	}

	for _, prop := range []string{ontology.PropHasLength, ontology.PropHasWidth} {
		if err := st.SetData(ctx, e.id, prop, dims[prop]); err != nil {
			return err
		}
	}
	if cfg.hasHeight {
		if err := st.SetData(ctx, e.id, ontology.PropHasHeight, []store.Literal{store.Double(cfg.height)}); err != nil {
			return err
		}
	}

	if err := e.scene.check(ctx, geomID); err != nil {
		return err
	}
	return e.scene.check(ctx, e.id)
}

// geometryID returns the ID of the entity's geometry individual, or "".
func (e *Entity) geometryID(ctx context.Context) (string, error) {
	rels, err := e.scene.store.GetRelations(ctx, e.id, store.DirectionOutbound, ontology.PropHasGeometry)
	if err != nil {
		return "", err
	}
	if len(rels) == 0 {
		return "", nil
	}
	return rels[0].Object, nil
}

// Geometry returns the entity's shape, or nil if it has none.
func (e *Entity) Geometry(ctx context.Context) (orb.Geometry, error) {
	geomID, err := e.geometryID(ctx)
	if err != nil || geomID == "" {
		return nil, err
	}
	ind, err := e.scene.store.GetIndividual(ctx, geomID)
	if err != nil {
		return nil, err
	}
	if ind == nil || len(ind.Data[ontology.PropAsWKT]) == 0 {
		return nil, nil
	}
	text := ind.Data[ontology.PropAsWKT][0].Lexical
	if text == "" || text == "POLYGON EMPTY" {
		return nil, nil
	}
	return geometry.ParseWKT(text)
}

// HasGeometry reports whether the entity has a non-empty shape.
func (e *Entity) HasGeometry(ctx context.Context) (bool, error) {
	g, err := e.Geometry(ctx)
	return g != nil, err
}

func (e *Entity) mustGeometry(ctx context.Context) (orb.Geometry, error) {
	g, err := e.Geometry(ctx)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%s: %w", e.id, geometry.ErrNoGeometry)
	}
	return g, nil
}

// Centroid returns the centroid of the entity's shape.
func (e *Entity) Centroid(ctx context.Context) (orb.Point, error) {
	g, err := e.mustGeometry(ctx)
	if err != nil {
		return orb.Point{}, err
	}
	return geometry.Centroid(g), nil
}

// Dimensions returns the recorded length and width, falling back to the
// extent of the shape.
func (e *Entity) Dimensions(ctx context.Context) (length, width float64, err error) {
	l, lok, err := e.Float(ctx, ontology.PropHasLength)
	if err != nil {
		return 0, 0, err
	}
	w, wok, err := e.Float(ctx, ontology.PropHasWidth)
	if err != nil {
		return 0, 0, err
	}
	if lok && wok {
		return l, w, nil
	}
	g, err := e.mustGeometry(ctx)
	if err != nil {
		return 0, 0, err
	}
	l, w = geometry.Dimensions(g)
	return l, w, nil
}

// Height returns the recorded vertical extent.
func (e *Entity) Height(ctx context.Context) (float64, bool, error) {
	return e.Float(ctx, ontology.PropHasHeight)
}

// Distance returns the planar distance between the shapes of e and other.
func (e *Entity) Distance(ctx context.Context, other *Entity) (float64, error) {
	a, err := e.mustGeometry(ctx)
	if err != nil {
		return 0, err
	}
	b, err := other.mustGeometry(ctx)
	if err != nil {
		return 0, err
	}
	return geometry.Distance(a, b), nil
}

// SetVelocity records the velocity vector together with the derived signed
// speed and yaw.
func (e *Entity) SetVelocity(ctx context.Context, v geometry.Vector) error {
	if err := e.checkVector(ctx, v, "velocity"); err != nil {
		return err
	}
	values := map[string][]store.Literal{
		ontology.PropVelocityX: {store.Double(v.X)},
		ontology.PropVelocityY: {store.Double(v.Y)},
		ontology.PropVelocityZ: nil,
		ontology.PropSpeed:     {store.Double(v.SignedNorm())},
		ontology.PropYaw:       {store.Double(v.Heading())},
	}
	if v.HasZ {
		values[ontology.PropVelocityZ] = []store.Literal{store.Double(v.Z)}
	}
	return e.writeValues(ctx, values, []string{
		ontology.PropVelocityX, ontology.PropVelocityY, ontology.PropVelocityZ, ontology.PropSpeed, ontology.PropYaw,
	})
}

// SetAcceleration records the acceleration vector and its signed magnitude.
func (e *Entity) SetAcceleration(ctx context.Context, a geometry.Vector) error {
	if err := e.checkVector(ctx, a, "acceleration"); err != nil {
		return err
	}
	values := map[string][]store.Literal{
		ontology.PropAccelerationX: {store.Double(a.X)},
		ontology.PropAccelerationY: {store.Double(a.Y)},
		ontology.PropAccelerationZ: nil,
		ontology.PropAcceleration:  {store.Double(a.SignedNorm())},
	}
	if a.HasZ {
		values[ontology.PropAccelerationZ] = []store.Literal{store.Double(a.Z)}
	}
	return e.writeValues(ctx, values, []string{
		ontology.PropAccelerationX, ontology.PropAccelerationY, ontology.PropAccelerationZ, ontology.PropAcceleration,
	})
}

func (e *Entity) checkVector(ctx context.Context, v geometry.Vector, attribute string) error {
	if err := e.require(ctx, ontology.CapKinematics, attribute); err != nil {
		return err
	}
	if v.HasZ {
		if err := e.require(ctx, ontology.CapElevation, attribute+" z"); err != nil {
			return err
		}
	}
	if !v.Valid() {
		return &geometry.InvalidGeometryError{Reason: fmt.Sprintf("non-finite %s %+v", attribute, v)}
	}
	return nil
}

func (e *Entity) writeValues(ctx context.Context, values map[string][]store.Literal, order []string) error {
	for _, prop := range order {
		if err := e.scene.store.SetData(ctx, e.id, prop, values[prop]); err != nil {
			return err
		}
	}
	return e.scene.check(ctx, e.id)
}

// Velocity returns the recorded velocity vector.
func (e *Entity) Velocity(ctx context.Context) (geometry.Vector, bool, error) {
	return e.vector(ctx, ontology.PropVelocityX, ontology.PropVelocityY, ontology.PropVelocityZ)
}

// Acceleration returns the recorded acceleration vector.
func (e *Entity) Acceleration(ctx context.Context) (geometry.Vector, bool, error) {
	return e.vector(ctx, ontology.PropAccelerationX, ontology.PropAccelerationY, ontology.PropAccelerationZ)
}

func (e *Entity) vector(ctx context.Context, px, py, pz string) (geometry.Vector, bool, error) {
	x, xok, err := e.Float(ctx, px)
	if err != nil {
		return geometry.Vector{}, false, err
	}
	y, yok, err := e.Float(ctx, py)
	if err != nil {
		return geometry.Vector{}, false, err
	}
	if !xok || !yok {
		return geometry.Vector{}, false, nil
	}
	z, zok, err := e.Float(ctx, pz)
	if err != nil {
		return geometry.Vector{}, false, err
	}
	if zok {
		return geometry.Vec3(x, y, z), true, nil
	}
	return geometry.Vec2(x, y), true, nil
}

// Speed returns the signed speed derived from the velocity.
func (e *Entity) Speed(ctx context.Context) (float64, bool, error) {
	return e.Float(ctx, ontology.PropSpeed)
}

// Yaw returns the heading in degrees derived from the velocity.
func (e *Entity) Yaw(ctx context.Context) (float64, bool, error) {
	return e.Float(ctx, ontology.PropYaw)
}
