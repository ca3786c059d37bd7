package scene

import (
	"context"
	"fmt"

	"github.com/autoscene/autoscene/internal/ontology"
	"github.com/autoscene/autoscene/internal/store"
)

// CopyOptions configures Scene.Copy.
type CopyOptions struct {
	// DeltaT is added to the source timestamp.
	DeltaT float64
	Label  string
	// Store receives the copy. Nil uses a fresh in-memory store.
	Store store.Store
	// Properties limits which data properties are copied. Nil copies all.
	// Geometry individuals are always copied whole.
	Properties []string
}

// Copy creates a new scene holding the individuals and relations of s.
// Entity IDs are preserved, so the copy's entities can be registered under
// the same logical identities.
func (s *Scene) Copy(ctx context.Context, opts CopyOptions) (*Scene, error) {
	snap, err := store.Export(ctx, s.store)
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", s, err)
	}

	if opts.Properties != nil {
		keep := make(map[string]bool, len(opts.Properties))
		for _, p := range opts.Properties {
			keep[p] = true
		}
		for i, ind := range snap.Individuals {
			if s.schema.IsA(ind.Classes, ontology.ClassGeometry) {
				continue
			}
			for prop := range ind.Data {
				if !keep[prop] {
					delete(snap.Individuals[i].Data, prop)
				}
			}
		}
	}

	cp, err := New(Options{
		Timestamp: s.timestamp + opts.DeltaT,
		Label:     opts.Label,
		Store:     opts.Store,
		Schema:    s.schema,
		Reasoner:  s.reasoner,
		Logger:    s.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Import(ctx, cp.store, snap); err != nil {
		cp.Close()
		return nil, fmt.Errorf("failed to copy %s: %w", s, err)
	}
	if s.SchemaLoaded() {
		if err := cp.EnsureSchema(ctx); err != nil {
			cp.Close()
			return nil, err
		}
	}
	return cp, nil
}
