package scene

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/autoscene/autoscene/internal/ontology"
	"github.com/autoscene/autoscene/internal/store"
)

// Module exposes the classes of one sub-ontology within a scene.
type Module struct {
	scene *Scene
	def   *ontology.Module
}

// ID returns the module's catalog ID.
func (m *Module) ID() ontology.ModuleID { return m.def.ID }

// IRI returns the module's namespace IRI.
func (m *Module) IRI() string { return m.def.IRI }

// Class returns the module's class with the given local name.
func (m *Module) Class(name string) (*ontology.Class, error) {
	return m.def.Class(name)
}

// New creates an individual of the named class. An empty id generates one.
//
// If the reasoner rejects the new individual it stays in the store and is
// returned together with the *ontology.SchemaViolationError.
func (m *Module) New(ctx context.Context, className, id string) (*Entity, error) {
	class, err := m.def.Class(className)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = strings.ToLower(class.Name) + "_" + uuid.NewString()
	}

	s := m.scene
	if _, err := s.store.AddIndividual(ctx, store.Individual{ID: id, Classes: []string{class.IRI}}); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", class.QualifiedName(), err)
	}
	e := &Entity{scene: s, id: id}
	if err := s.check(ctx, id); err != nil {
		return e, err
	}
	return e, nil
}

// Entity is a handle to one individual of a scene.
type Entity struct {
	scene *Scene
	id    string
}

// ID returns the individual's identifier within its scene.
func (e *Entity) ID() string { return e.id }

// Scene returns the scene the entity belongs to.
func (e *Entity) Scene() *Scene { return e.scene }

func (e *Entity) String() string { return e.id }

// Individual loads the entity's current state.
func (e *Entity) Individual(ctx context.Context) (*store.Individual, error) {
	ind, err := e.scene.store.GetIndividual(ctx, e.id)
	if err != nil {
		return nil, err
	}
	if ind == nil {
		return nil, fmt.Errorf("entity %s not found in %s", e.id, e.scene)
	}
	return ind, nil
}

// Classes returns the asserted class IRIs.
func (e *Entity) Classes(ctx context.Context) ([]string, error) {
	ind, err := e.Individual(ctx)
	if err != nil {
		return nil, err
	}
	return ind.Classes, nil
}

// Is reports whether the entity is an instance of classIRI, directly or
// through a superclass.
func (e *Entity) Is(ctx context.Context, classIRI string) (bool, error) {
	classes, err := e.Classes(ctx)
	if err != nil {
		return false, err
	}
	return e.scene.schema.IsA(classes, classIRI), nil
}

// Capabilities returns the attribute families the entity's classes support.
func (e *Entity) Capabilities(ctx context.Context) (ontology.Capability, error) {
	classes, err := e.Classes(ctx)
	if err != nil {
		return 0, err
	}
	return e.scene.schema.Capabilities(classes), nil
}

// AddClass asserts an additional class.
func (e *Entity) AddClass(ctx context.Context, classIRI string) error {
	ind, err := e.Individual(ctx)
	if err != nil {
		return err
	}
	if ind.HasClass(classIRI) {
		return nil
	}
	ind.Classes = append(ind.Classes, classIRI)
	if err := e.scene.store.UpdateIndividual(ctx, *ind); err != nil {
		return err
	}
	return e.scene.check(ctx, e.id)
}

// SetData replaces the values of a data property and revalidates.
func (e *Entity) SetData(ctx context.Context, property string, values ...store.Literal) error {
	if err := e.scene.store.SetData(ctx, e.id, property, values); err != nil {
		return err
	}
	return e.scene.check(ctx, e.id)
}

// Data returns the values of a data property.
func (e *Entity) Data(ctx context.Context, property string) ([]store.Literal, error) {
	ind, err := e.Individual(ctx)
	if err != nil {
		return nil, err
	}
	return ind.Data[property], nil
}

// Float returns the single numeric value of a data property. ok is false
// when the property is unset.
func (e *Entity) Float(ctx context.Context, property string) (v float64, ok bool, err error) {
	vals, err := e.Data(ctx, property)
	if err != nil || len(vals) == 0 {
		return 0, false, err
	}
	v, err = vals[0].Float()
	if err != nil {
		return 0, false, fmt.Errorf("%s of %s: %w", property, e.id, err)
	}
	return v, true, nil
}

// ErrForeignEntity is returned when relating entities of different scenes.
var ErrForeignEntity = errors.New("entities belong to different scenes")

// Relate asserts predicate between e and other.
func (e *Entity) Relate(ctx context.Context, predicate string, other *Entity) error {
	if other.scene != e.scene {
		return fmt.Errorf("relate %s to %s: %w", e.id, other.id, ErrForeignEntity)
	}
	rel := store.Relation{Subject: e.id, Predicate: predicate, Object: other.id}
	if err := e.scene.store.AddRelation(ctx, rel); err != nil {
		return err
	}
	return e.scene.check(ctx, e.id)
}

// Unrelate removes predicate between e and other.
func (e *Entity) Unrelate(ctx context.Context, predicate string, other *Entity) error {
	return e.scene.store.RemoveRelation(ctx, e.id, predicate, other.id)
}

// Related returns the objects of predicate with e as subject.
func (e *Entity) Related(ctx context.Context, predicate string) ([]*Entity, error) {
	rels, err := e.scene.store.GetRelations(ctx, e.id, store.DirectionOutbound, predicate)
	if err != nil {
		return nil, err
	}
	out := make([]*Entity, 0, len(rels))
	for _, r := range rels {
		out = append(out, &Entity{scene: e.scene, id: r.Object})
	}
	return out, nil
}

// Delete removes the entity, its geometry individual and its relations.
func (e *Entity) Delete(ctx context.Context) error {
	geoms, err := e.Related(ctx, ontology.PropHasGeometry)
	if err != nil {
		return err
	}
	for _, g := range geoms {
		if err := e.scene.store.DeleteIndividual(ctx, g.id); err != nil {
			return err
		}
	}
	return e.scene.store.DeleteIndividual(ctx, e.id)
}
