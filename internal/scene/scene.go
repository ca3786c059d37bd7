// Package scene models one snapshot of a traffic situation: a knowledge
// store holding individuals of the traffic ontology, stamped with a time.
package scene

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/autoscene/autoscene/internal/abox"
	"github.com/autoscene/autoscene/internal/ontology"
	"github.com/autoscene/autoscene/internal/store"
)

// Reasoner validates an individual after it has been changed.
type Reasoner interface {
	Check(ctx context.Context, s store.Store, id string) error
}

// Options configures a new Scene.
type Options struct {
	Timestamp float64
	Label     string
	Store     store.Store      // nil uses a fresh in-memory store
	Schema    *ontology.Schema // nil uses ontology.Default()
	Reasoner  Reasoner         // nil uses an ontology.Checker over Schema
	Logger    *slog.Logger     // nil discards
}

// Scene is one snapshot of a traffic situation. The schema is loaded into
// its store lazily, at most once.
type Scene struct {
	timestamp float64
	label     string
	store     store.Store
	schema    *ontology.Schema
	reasoner  Reasoner
	logger    *slog.Logger

	mu           sync.Mutex
	schemaLoaded bool
	modules      map[ontology.ModuleID]*Module
}

// New creates a scene. The scene owns opts.Store and closes it on Close.
func New(opts Options) (*Scene, error) {
	schema := opts.Schema
	if schema == nil {
		var err error
		if schema, err = ontology.Default(); err != nil {
			return nil, fmt.Errorf("failed to load default schema: %w", err)
		}
	}
	st := opts.Store
	if st == nil {
		st = store.NewMemoryStore()
	}
	reasoner := opts.Reasoner
	if reasoner == nil {
		reasoner = ontology.NewChecker(schema)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Scene{
		timestamp: opts.Timestamp,
		label:     opts.Label,
		store:     st,
		schema:    schema,
		reasoner:  reasoner,
		logger:    logger,
		modules:   make(map[ontology.ModuleID]*Module),
	}, nil
}

// Timestamp returns the scene's point in time.
func (s *Scene) Timestamp() float64 { return s.timestamp }

// Label returns the scene's label, which may be empty.
func (s *Scene) Label() string { return s.label }

func (s *Scene) String() string {
	if s.label != "" {
		return fmt.Sprintf("Scene %s at t=%g", s.label, s.timestamp)
	}
	return fmt.Sprintf("Scene at t=%g", s.timestamp)
}

// Store returns the scene's knowledge store.
func (s *Scene) Store() store.Store { return s.store }

// Schema returns the schema the scene validates against.
func (s *Scene) Schema() *ontology.Schema { return s.schema }

// EnsureSchema loads the schema declarations into the store unless that
// already happened. Safe for concurrent use.
func (s *Scene) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureSchemaLocked(ctx)
}

func (s *Scene) ensureSchemaLocked(ctx context.Context) error {
	if s.schemaLoaded {
		return nil
	}
	added, err := s.store.ImportDeclarations(ctx, s.schema.Declarations())
	if err != nil {
		return fmt.Errorf("failed to load schema into %s: %w", s, err)
	}
	s.schemaLoaded = true
	s.logger.Debug("schema loaded", "scene", s.String(), "declarations", added)
	return nil
}

// SchemaLoaded reports whether EnsureSchema has completed.
func (s *Scene) SchemaLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schemaLoaded
}

// Ontology returns the accessor for a catalog module, loading the schema
// on first use. Unknown modules yield ontology.UnknownModuleError.
func (s *Scene) Ontology(ctx context.Context, id ontology.ModuleID) (*Module, error) {
	def, err := s.schema.Module(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureSchemaLocked(ctx); err != nil {
		return nil, err
	}
	if m, ok := s.modules[id]; ok {
		return m, nil
	}
	m := &Module{scene: s, def: def}
	s.modules[id] = m
	return m, nil
}

// Entity returns the entity with the given ID, or nil if it does not exist.
func (s *Scene) Entity(ctx context.Context, id string) (*Entity, error) {
	ind, err := s.store.GetIndividual(ctx, id)
	if err != nil {
		return nil, err
	}
	if ind == nil {
		return nil, nil
	}
	return &Entity{scene: s, id: id}, nil
}

// Ref returns a handle for id without checking that it exists.
func (s *Scene) Ref(id string) *Entity {
	return &Entity{scene: s, id: id}
}

// Entities returns entities that are instances of classIRI or one of its
// subclasses, sorted by ID. An empty classIRI returns all entities.
// Geometry individuals are never returned.
func (s *Scene) Entities(ctx context.Context, classIRI string) ([]*Entity, error) {
	inds, err := s.store.QueryIndividuals(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []*Entity
	for _, ind := range inds {
		if s.schema.IsA(ind.Classes, ontology.ClassGeometry) {
			continue
		}
		if classIRI != "" && !s.schema.IsA(ind.Classes, classIRI) {
			continue
		}
		out = append(out, &Entity{scene: s, id: ind.ID})
	}
	return out, nil
}

// check runs the reasoner over id.
func (s *Scene) check(ctx context.Context, id string) error {
	return s.reasoner.Check(ctx, s.store, id)
}

// SaveABox writes the scene's individuals and relations to path as an
// N-Triples ABox importing the traffic ontology.
func (s *Scene) SaveABox(ctx context.Context, path string) error {
	snap, err := store.Export(ctx, s.store)
	if err != nil {
		return fmt.Errorf("failed to export %s: %w", s, err)
	}
	snap.Declarations = nil
	doc := &abox.Document{
		OntologyIRI: abox.OntologyIRIFor(path),
		Imports:     []string{ontology.ImportIRI},
		Snapshot:    snap,
	}
	if err := abox.WriteFile(path, doc); err != nil {
		return fmt.Errorf("failed to save %s: %w", s, err)
	}
	return nil
}

// FromABox creates a scene from an ABox file written by SaveABox.
// The schema is loaded into the new store. opts.Store is closed on failure.
func FromABox(ctx context.Context, path string, opts Options) (*Scene, error) {
	doc, err := abox.ReadFile(path)
	if err != nil {
		if opts.Store != nil {
			opts.Store.Close()
		}
		return nil, err
	}
	sc, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := store.Import(ctx, sc.store, doc.Snapshot); err != nil {
		sc.Close()
		return nil, fmt.Errorf("failed to import %s: %w", path, err)
	}
	if err := sc.EnsureSchema(ctx); err != nil {
		sc.Close()
		return nil, err
	}
	return sc, nil
}

// Close releases the scene's store.
func (s *Scene) Close() error {
	return s.store.Close()
}
