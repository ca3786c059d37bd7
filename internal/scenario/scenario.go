// Package scenario orders scenes in time and keeps the identity map that
// says which entities of different scenes are the same real-world object.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/autoscene/autoscene/internal/kbs"
	"github.com/autoscene/autoscene/internal/ontology"
	"github.com/autoscene/autoscene/internal/scene"
	"github.com/autoscene/autoscene/internal/store"
)

// StoreFactory creates the store for a new scene. index is the scene's
// position at creation time.
type StoreFactory func(ctx context.Context, index int) (store.Store, error)

// MemoryStores is the default StoreFactory.
func MemoryStores(context.Context, int) (store.Store, error) {
	return store.NewMemoryStore(), nil
}

// Options configures a Scenario.
type Options struct {
	Name     string
	NewStore StoreFactory     // nil uses MemoryStores
	Schema   *ontology.Schema // nil uses ontology.Default()
	Reasoner scene.Reasoner
	Logger   *slog.Logger
	Codec    *kbs.Codec // nil uses a zero Codec
}

func (o Options) withDefaults() (Options, error) {
	if o.NewStore == nil {
		o.NewStore = MemoryStores
	}
	if o.Schema == nil {
		schema, err := ontology.Default()
		if err != nil {
			return o, fmt.Errorf("failed to load default schema: %w", err)
		}
		o.Schema = schema
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Codec == nil {
		o.Codec = &kbs.Codec{Logger: o.Logger}
	}
	return o, nil
}

// Scenario is an ordered sequence of scenes with non-decreasing
// timestamps. Index order is the canonical iteration order.
type Scenario struct {
	opts   Options
	scenes []*scene.Scene
	ids    *IdentityMap
}

// New creates a scenario of n empty scenes at timestamps 0, 1, ..., n-1,
// each with the schema loaded.
func New(ctx context.Context, n int, opts Options) (*Scenario, error) {
	if n < 0 {
		return nil, fmt.Errorf("scene count must not be negative, got %d", n)
	}
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	s := &Scenario{opts: opts, ids: NewIdentityMap()}
	for i := 0; i < n; i++ {
		sc, err := s.newScene(ctx, i, float64(i), "")
		if err != nil {
			s.Close()
			return nil, err
		}
		s.scenes = append(s.scenes, sc)
	}
	return s, nil
}

// FromScenes wraps existing scenes. No identities are registered; the
// caller binds them explicitly if continuity is wanted. The scenario takes
// ownership of the scenes: on failure every scene passed in is closed.
func FromScenes(scenes []*scene.Scene, opts Options) (*Scenario, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		closeScenes(scenes)
		return nil, err
	}
	s := &Scenario{opts: opts, ids: NewIdentityMap()}
	for _, sc := range scenes {
		if err := s.AddScene(sc); err != nil {
			closeScenes(scenes)
			return nil, err
		}
	}
	return s, nil
}

// closeScenes closes each distinct store once.
func closeScenes(scenes []*scene.Scene) {
	seen := make(map[store.Store]bool, len(scenes))
	for _, sc := range scenes {
		if sc == nil || seen[sc.Store()] {
			continue
		}
		seen[sc.Store()] = true
		sc.Close()
	}
}

func (s *Scenario) newScene(ctx context.Context, index int, timestamp float64, label string) (*scene.Scene, error) {
	st, err := s.opts.NewStore(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("failed to create store for scene %d: %w", index, err)
	}
	sc, err := scene.New(scene.Options{
		Timestamp: timestamp,
		Label:     label,
		Store:     st,
		Schema:    s.opts.Schema,
		Reasoner:  s.opts.Reasoner,
		Logger:    s.opts.Logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	if err := sc.EnsureSchema(ctx); err != nil {
		sc.Close()
		return nil, err
	}
	return sc, nil
}

// Name returns the display name.
func (s *Scenario) Name() string { return s.opts.Name }

// SetName changes the display name.
func (s *Scenario) SetName(name string) { s.opts.Name = name }

func (s *Scenario) String() string {
	if s.opts.Name != "" {
		return fmt.Sprintf("Scenario %s (%d scenes)", s.opts.Name, len(s.scenes))
	}
	return fmt.Sprintf("Scenario (%d scenes)", len(s.scenes))
}

// Len returns the number of scenes.
func (s *Scenario) Len() int { return len(s.scenes) }

// Scene returns the scene at index i, or nil if i is out of range.
func (s *Scenario) Scene(i int) *scene.Scene {
	if i < 0 || i >= len(s.scenes) {
		return nil
	}
	return s.scenes[i]
}

// Scenes returns the scenes in index order.
func (s *Scenario) Scenes() []*scene.Scene {
	return append([]*scene.Scene(nil), s.scenes...)
}

// All iterates over the scenes in index order.
func (s *Scenario) All() iter.Seq2[int, *scene.Scene] {
	return func(yield func(int, *scene.Scene) bool) {
		for i, sc := range s.scenes {
			if !yield(i, sc) {
				return
			}
		}
	}
}

// Identities returns the identity map. Callers must not modify it
// directly; use RegisterIdentity.
func (s *Scenario) Identities() *IdentityMap { return s.ids }

// IndexOf returns the position of sc, or -1.
func (s *Scenario) IndexOf(sc *scene.Scene) int {
	for i, other := range s.scenes {
		if other == sc {
			return i
		}
	}
	return -1
}

// AppendScene adds an empty scene at the end. timestamp must not precede
// the last scene's.
func (s *Scenario) AppendScene(ctx context.Context, timestamp float64) (*scene.Scene, error) {
	return s.InsertScene(ctx, len(s.scenes), timestamp)
}

// InsertScene creates an empty scene at position. Scenes and identity
// bindings at or after position move one index up. The timestamp must keep
// the scenario ordered.
func (s *Scenario) InsertScene(ctx context.Context, position int, timestamp float64) (*scene.Scene, error) {
	if position < 0 || position > len(s.scenes) {
		return nil, fmt.Errorf("scene position %d out of range [0, %d]", position, len(s.scenes))
	}
	if err := s.checkOrder(position, timestamp); err != nil {
		return nil, err
	}
	sc, err := s.newScene(ctx, position, timestamp, "")
	if err != nil {
		return nil, err
	}
	s.insert(position, sc)
	return sc, nil
}

// AddScene appends an existing scene, taking ownership of it.
func (s *Scenario) AddScene(sc *scene.Scene) error {
	if sc == nil {
		return fmt.Errorf("scene must not be nil")
	}
	for _, other := range s.scenes {
		if other == sc || other.Store() == sc.Store() {
			return fmt.Errorf("%s already shares a store with this scenario", sc)
		}
	}
	if err := s.checkOrder(len(s.scenes), sc.Timestamp()); err != nil {
		return err
	}
	s.insert(len(s.scenes), sc)
	return nil
}

func (s *Scenario) checkOrder(position int, timestamp float64) error {
	if position > 0 && timestamp < s.scenes[position-1].Timestamp() {
		return fmt.Errorf("timestamp %g precedes scene %d at %g", timestamp, position-1, s.scenes[position-1].Timestamp())
	}
	if position < len(s.scenes) && timestamp > s.scenes[position].Timestamp() {
		return fmt.Errorf("timestamp %g follows scene %d at %g", timestamp, position, s.scenes[position].Timestamp())
	}
	return nil
}

func (s *Scenario) insert(position int, sc *scene.Scene) {
	if position < len(s.scenes) {
		s.ids.shift(position)
	}
	s.scenes = append(s.scenes, nil)
	copy(s.scenes[position+1:], s.scenes[position:])
	s.scenes[position] = sc
}

// RegisterIdentity binds entity, which must belong to the scene at
// sceneIndex, to logicalID.
func (s *Scenario) RegisterIdentity(ctx context.Context, logicalID string, sceneIndex int, entity *scene.Entity) error {
	sc := s.Scene(sceneIndex)
	if sc == nil {
		return fmt.Errorf("scene index %d out of range [0, %d)", sceneIndex, len(s.scenes))
	}
	if entity == nil || entity.Scene() != sc {
		return fmt.Errorf("register %q in scene %d: %w", logicalID, sceneIndex, scene.ErrForeignEntity)
	}
	if _, err := entity.Individual(ctx); err != nil {
		return err
	}
	if err := s.ids.Bind(logicalID, sceneIndex, entity.ID()); err != nil {
		return err
	}
	s.opts.Logger.Debug("identity registered", "logical_id", logicalID, "scene", sceneIndex, "entity", entity.ID())
	return nil
}

// Resolve returns the entity registered for logicalID in the scene at
// sceneIndex. Only explicit registrations resolve.
func (s *Scenario) Resolve(logicalID string, sceneIndex int) (*scene.Entity, error) {
	sc := s.Scene(sceneIndex)
	id, ok := s.ids.Lookup(logicalID, sceneIndex)
	if sc == nil || !ok {
		return nil, &UnknownIdentityError{LogicalID: logicalID, SceneIndex: sceneIndex}
	}
	return sc.Ref(id), nil
}

// LogicalID returns the identity entity is registered under, if any.
func (s *Scenario) LogicalID(entity *scene.Entity) (string, bool) {
	idx := s.IndexOf(entity.Scene())
	if idx < 0 {
		return "", false
	}
	return s.ids.LogicalID(idx, entity.ID())
}

// Close closes every scene.
func (s *Scenario) Close() error {
	var errs []error
	for _, sc := range s.scenes {
		if err := sc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
