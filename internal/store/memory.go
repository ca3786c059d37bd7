package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore implements Store entirely in memory.
type MemoryStore struct {
	mu           sync.RWMutex
	individuals  map[string]Individual
	relations    []Relation
	declarations map[string]Declaration
	closed       bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		individuals:  make(map[string]Individual),
		relations:    make([]Relation, 0),
		declarations: make(map[string]Declaration),
	}
}

func (s *MemoryStore) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// AddIndividual adds an individual to the store.
func (s *MemoryStore) AddIndividual(ctx context.Context, ind Individual) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return "", err
	}
	if ind.ID == "" {
		return "", fmt.Errorf("individual ID is required")
	}
	if _, exists := s.individuals[ind.ID]; exists {
		return "", &DuplicateIndividualError{ID: ind.ID}
	}

	s.individuals[ind.ID] = ind.Clone()
	return ind.ID, nil
}

// UpdateIndividual replaces an existing individual.
func (s *MemoryStore) UpdateIndividual(ctx context.Context, ind Individual) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, exists := s.individuals[ind.ID]; !exists {
		return fmt.Errorf("individual not found: %s", ind.ID)
	}

	s.individuals[ind.ID] = ind.Clone()
	return nil
}

// GetIndividual retrieves an individual by ID. Returns nil if not found.
func (s *MemoryStore) GetIndividual(ctx context.Context, id string) (*Individual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	ind, exists := s.individuals[id]
	if !exists {
		return nil, nil
	}
	out := ind.Clone()
	return &out, nil
}

// DeleteIndividual removes an individual and every relation touching it.
func (s *MemoryStore) DeleteIndividual(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	delete(s.individuals, id)

	filtered := make([]Relation, 0, len(s.relations))
	for _, r := range s.relations {
		if r.Subject != id && r.Object != id {
			filtered = append(filtered, r)
		}
	}
	s.relations = filtered
	return nil
}

// QueryIndividuals returns individuals with classIRI asserted, sorted by ID.
func (s *MemoryStore) QueryIndividuals(ctx context.Context, classIRI string) ([]Individual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	results := make([]Individual, 0)
	for _, ind := range s.individuals {
		if classIRI == "" || ind.HasClass(classIRI) {
			results = append(results, ind.Clone())
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

// SetData replaces all values of a data property on an individual.
func (s *MemoryStore) SetData(ctx context.Context, id, property string, values []Literal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	ind, exists := s.individuals[id]
	if !exists {
		return fmt.Errorf("individual not found: %s", id)
	}
	if len(values) == 0 {
		delete(ind.Data, property)
	} else {
		if ind.Data == nil {
			ind.Data = make(map[string][]Literal)
		}
		ind.Data[property] = append([]Literal(nil), values...)
	}
	s.individuals[id] = ind
	return nil
}

// AddRelation adds a relation. Adding an existing relation is a no-op.
func (s *MemoryStore) AddRelation(ctx context.Context, rel Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validateRelation(rel); err != nil {
		return err
	}
	if _, ok := s.individuals[rel.Subject]; !ok {
		return fmt.Errorf("relation subject not found: %s", rel.Subject)
	}
	if _, ok := s.individuals[rel.Object]; !ok {
		return fmt.Errorf("relation object not found: %s", rel.Object)
	}
	for _, r := range s.relations {
		if r == rel {
			return nil
		}
	}
	s.relations = append(s.relations, rel)
	return nil
}

// RemoveRelation removes the relation matching subject, predicate and object.
func (s *MemoryStore) RemoveRelation(ctx context.Context, subject, predicate, object string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	filtered := make([]Relation, 0, len(s.relations))
	for _, r := range s.relations {
		if !(r.Subject == subject && r.Predicate == predicate && r.Object == object) {
			filtered = append(filtered, r)
		}
	}
	s.relations = filtered
	return nil
}

// GetRelations returns relations connected to an individual in insertion order.
func (s *MemoryStore) GetRelations(ctx context.Context, id string, direction Direction, predicate string) ([]Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	results := make([]Relation, 0)
	for _, r := range s.relations {
		if predicate != "" && r.Predicate != predicate {
			continue
		}

		switch direction {
		case DirectionOutbound:
			if r.Subject == id {
				results = append(results, r)
			}
		case DirectionInbound:
			if r.Object == id {
				results = append(results, r)
			}
		case DirectionBoth:
			if r.Subject == id || r.Object == id {
				results = append(results, r)
			}
		}
	}
	return results, nil
}

// ImportDeclarations records schema declarations not yet known to the store.
func (s *MemoryStore) ImportDeclarations(ctx context.Context, decls []Declaration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	added := 0
	for _, d := range decls {
		if d.IRI == "" {
			return added, fmt.Errorf("declaration IRI is required")
		}
		if _, exists := s.declarations[d.IRI]; exists {
			continue
		}
		d.Parents = append([]string(nil), d.Parents...)
		s.declarations[d.IRI] = d
		added++
	}
	return added, nil
}

// Declarations returns every recorded declaration sorted by IRI.
func (s *MemoryStore) Declarations(ctx context.Context) ([]Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	out := make([]Declaration, 0, len(s.declarations))
	for _, d := range s.declarations {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IRI < out[j].IRI })
	return out, nil
}

// Close marks the store closed. Further calls return ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
