package store

import (
	"context"
	"fmt"
	"sort"
)

// Snapshot is a store-independent copy of a store's contents.
type Snapshot struct {
	Declarations []Declaration `json:"declarations,omitempty"`
	Individuals  []Individual  `json:"individuals"`
	Relations    []Relation    `json:"relations"`
}

// Export copies the contents of s into a Snapshot. Individuals are sorted
// by ID and relations follow their subject's order, so equal stores
// produce equal snapshots.
func Export(ctx context.Context, s Store) (*Snapshot, error) {
	decls, err := s.Declarations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read declarations: %w", err)
	}
	inds, err := s.QueryIndividuals(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read individuals: %w", err)
	}

	snap := &Snapshot{Declarations: decls, Individuals: inds, Relations: make([]Relation, 0)}
	for _, ind := range inds {
		rels, err := s.GetRelations(ctx, ind.ID, DirectionOutbound, "")
		if err != nil {
			return nil, fmt.Errorf("failed to read relations of %s: %w", ind.ID, err)
		}
		sort.SliceStable(rels, func(i, j int) bool {
			if rels[i].Predicate != rels[j].Predicate {
				return rels[i].Predicate < rels[j].Predicate
			}
			return rels[i].Object < rels[j].Object
		})
		snap.Relations = append(snap.Relations, rels...)
	}
	return snap, nil
}

// Import loads a snapshot into s. Individuals are added before relations.
func Import(ctx context.Context, s Store, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	if len(snap.Declarations) > 0 {
		if _, err := s.ImportDeclarations(ctx, snap.Declarations); err != nil {
			return fmt.Errorf("failed to import declarations: %w", err)
		}
	}
	for _, ind := range snap.Individuals {
		if _, err := s.AddIndividual(ctx, ind); err != nil {
			return fmt.Errorf("failed to import individual %s: %w", ind.ID, err)
		}
	}
	for _, rel := range snap.Relations {
		if err := s.AddRelation(ctx, rel); err != nil {
			return fmt.Errorf("failed to import relation %s %s %s: %w", rel.Subject, rel.Predicate, rel.Object, err)
		}
	}
	return nil
}

// Individual returns the snapshot individual with the given ID.
func (s *Snapshot) Individual(id string) (Individual, bool) {
	i := sort.Search(len(s.Individuals), func(i int) bool { return s.Individuals[i].ID >= id })
	if i < len(s.Individuals) && s.Individuals[i].ID == id {
		return s.Individuals[i], true
	}
	// Snapshots built by hand need not be sorted.
	for _, ind := range s.Individuals {
		if ind.ID == id {
			return ind, true
		}
	}
	return Individual{}, false
}
