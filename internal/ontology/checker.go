package ontology

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/autoscene/autoscene/internal/store"
)

// SchemaViolationError reports an individual that contradicts the schema.
// The individual stays in the store; callers decide whether to remove it.
type SchemaViolationError struct {
	Individual string
	Violations []string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("schema violation on %s: %s", e.Individual, strings.Join(e.Violations, "; "))
}

// Checker validates individuals against a Schema: declared classes,
// disjointness, property domains and ranges, datatypes and functionality.
type Checker struct {
	schema *Schema
}

// NewChecker returns a Checker for schema.
func NewChecker(schema *Schema) *Checker {
	return &Checker{schema: schema}
}

// Check validates the individual id and its outbound relations in s.
// A missing individual is not a violation.
func (c *Checker) Check(ctx context.Context, s store.Store, id string) error {
	ind, err := s.GetIndividual(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", id, err)
	}
	if ind == nil {
		return nil
	}

	var violations []string
	for _, class := range ind.Classes {
		if _, ok := c.schema.Class(class); !ok {
			violations = append(violations, fmt.Sprintf("undeclared class %s", class))
		}
	}
	if a, b, ok := c.schema.DisjointPair(ind.Classes); ok {
		violations = append(violations, fmt.Sprintf("member of disjoint classes %s and %s",
			c.schema.QualifiedName(a), c.schema.QualifiedName(b)))
	}

	props := make([]string, 0, len(ind.Data))
	for p := range ind.Data {
		props = append(props, p)
	}
	sort.Strings(props)
	for _, iri := range props {
		violations = append(violations, c.checkData(ind, iri, ind.Data[iri])...)
	}

	rels, err := s.GetRelations(ctx, id, store.DirectionOutbound, "")
	if err != nil {
		return fmt.Errorf("failed to load relations of %s: %w", id, err)
	}
	counts := make(map[string]int)
	for _, rel := range rels {
		counts[rel.Predicate]++
		v, err := c.checkRelation(ctx, s, ind, rel)
		if err != nil {
			return err
		}
		violations = append(violations, v...)
	}
	for pred, n := range counts {
		if p, ok := c.schema.Property(pred); ok && p.Functional && n > 1 {
			violations = append(violations, fmt.Sprintf("functional property %s has %d values", p.QualifiedName(), n))
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		return &SchemaViolationError{Individual: id, Violations: violations}
	}
	return nil
}

func (c *Checker) checkData(ind *store.Individual, iri string, values []store.Literal) []string {
	p, ok := c.schema.Property(iri)
	if !ok {
		return []string{fmt.Sprintf("undeclared property %s", iri)}
	}
	if p.Kind != DataProperty {
		return []string{fmt.Sprintf("%s is not a data property", p.QualifiedName())}
	}

	var out []string
	if p.Functional && len(values) > 1 {
		out = append(out, fmt.Sprintf("functional property %s has %d values", p.QualifiedName(), len(values)))
	}
	for _, v := range values {
		if v.Datatype != p.Datatype {
			out = append(out, fmt.Sprintf("%s value %q has datatype %s, want %s", p.QualifiedName(), v.Lexical, v.Datatype, p.Datatype))
		}
	}
	if p.Domain != "" && !c.schema.IsA(ind.Classes, p.Domain) {
		out = append(out, fmt.Sprintf("%s requires domain %s", p.QualifiedName(), c.schema.QualifiedName(p.Domain)))
	}
	return out
}

func (c *Checker) checkRelation(ctx context.Context, s store.Store, subject *store.Individual, rel store.Relation) ([]string, error) {
	p, ok := c.schema.Property(rel.Predicate)
	if !ok {
		return []string{fmt.Sprintf("undeclared property %s", rel.Predicate)}, nil
	}
	if p.Kind != ObjectProperty {
		return []string{fmt.Sprintf("%s is not an object property", p.QualifiedName())}, nil
	}

	var out []string
	if p.Domain != "" && !c.schema.IsA(subject.Classes, p.Domain) {
		out = append(out, fmt.Sprintf("%s requires domain %s", p.QualifiedName(), c.schema.QualifiedName(p.Domain)))
	}
	if p.Range != "" {
		obj, err := s.GetIndividual(ctx, rel.Object)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", rel.Object, err)
		}
		if obj == nil || !c.schema.IsA(obj.Classes, p.Range) {
			out = append(out, fmt.Sprintf("%s object %s is not a %s", p.QualifiedName(), rel.Object, c.schema.QualifiedName(p.Range)))
		}
	}
	return out, nil
}
