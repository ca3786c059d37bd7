package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/autoscene/autoscene/internal/kbs"
	"github.com/autoscene/autoscene/internal/scene"
	"github.com/autoscene/autoscene/internal/store"
)

// SQLiteStores returns a StoreFactory that gives every scene its own
// SQLite database under dir.
func SQLiteStores(dir string) StoreFactory {
	return func(ctx context.Context, index int) (store.Store, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
		name := fmt.Sprintf("scene-%04d-%s.db", index, uuid.NewString()[:8])
		return store.NewSQLiteStore(filepath.Join(dir, name))
	}
}

// Container captures the scenario in container form.
func (s *Scenario) Container(ctx context.Context) (*kbs.Container, error) {
	ct := &kbs.Container{
		Name:       s.opts.Name,
		Scenes:     make([]kbs.SceneRecord, 0, len(s.scenes)),
		Identities: s.ids.entries(),
	}
	for i, sc := range s.scenes {
		snap, err := store.Export(ctx, sc.Store())
		if err != nil {
			return nil, fmt.Errorf("failed to export scene %d: %w", i, err)
		}
		snap.Declarations = nil
		ct.Scenes = append(ct.Scenes, kbs.SceneRecord{
			Timestamp: sc.Timestamp(),
			Label:     sc.Label(),
			Snapshot:  snap,
		})
	}
	return ct, nil
}

// SaveABox writes the whole scenario to a composite container at path.
func (s *Scenario) SaveABox(ctx context.Context, path string) error {
	ct, err := s.Container(ctx)
	if err != nil {
		return err
	}
	if err := s.opts.Codec.WriteFile(ctx, path, ct); err != nil {
		return fmt.Errorf("failed to save %s: %w", s, err)
	}
	s.opts.Logger.Info("scenario saved", "path", path, "scenes", len(ct.Scenes), "identities", len(ct.Identities))
	return nil
}

// Load reads a container written by SaveABox. On any failure no scenario
// is returned and every store created along the way is closed.
func Load(ctx context.Context, path string, opts Options) (*Scenario, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	ct, err := opts.Codec.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return FromContainer(ctx, ct, opts)
}

// FromContainer rebuilds a scenario from decoded container content.
// opts.Name is used only when the container has no name.
func FromContainer(ctx context.Context, ct *kbs.Container, opts Options) (*Scenario, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if ct.Name != "" {
		opts.Name = ct.Name
	}
	ids, err := identityMapFrom(ct.Identities)
	if err != nil {
		return nil, err
	}

	s := &Scenario{opts: opts, ids: NewIdentityMap()}
	for i, rec := range ct.Scenes {
		if i > 0 && rec.Timestamp < ct.Scenes[i-1].Timestamp {
			s.Close()
			return nil, fmt.Errorf("scene %d timestamp %g precedes scene %d", i, rec.Timestamp, i-1)
		}
		sc, err := s.newScene(ctx, i, rec.Timestamp, rec.Label)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.scenes = append(s.scenes, sc)
		if err := store.Import(ctx, sc.Store(), rec.Snapshot); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to import scene %d: %w", i, err)
		}
	}
	for _, logical := range ids.LogicalIDs() {
		for _, idx := range ids.Scenes(logical) {
			entity, _ := ids.Lookup(logical, idx)
			sc := s.Scene(idx)
			found := sc != nil
			if found {
				e, err := sc.Entity(ctx, entity)
				if err != nil {
					s.Close()
					return nil, err
				}
				found = e != nil
			}
			if !found {
				s.Close()
				return nil, &kbs.DanglingIdentityError{LogicalID: logical, Scene: idx, Entity: entity}
			}
		}
	}
	s.ids = ids
	opts.Logger.Debug("scenario loaded", "name", opts.Name, "scenes", len(s.scenes), "identities", ids.Len())
	return s, nil
}

// LoadABoxes builds a scenario from single-scene ABox files, one scene per
// file in the given order with timestamps 0, 1, .... No identities are
// inferred.
func LoadABoxes(ctx context.Context, paths []string, opts Options) (*Scenario, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	s := &Scenario{opts: opts, ids: NewIdentityMap()}
	for i, path := range paths {
		st, err := opts.NewStore(ctx, i)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create store for %s: %w", path, err)
		}
		base := filepath.Base(path)
		sc, err := scene.FromABox(ctx, path, scene.Options{
			Timestamp: float64(i),
			Label:     strings.TrimSuffix(base, filepath.Ext(base)),
			Store:     st,
			Schema:    opts.Schema,
			Reasoner:  opts.Reasoner,
			Logger:    opts.Logger,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		s.scenes = append(s.scenes, sc)
	}
	return s, nil
}
