// Package store defines the Store interface for holding the individuals,
// literal values and relations that make up one scene's knowledge base.
package store

import (
	"context"
	"fmt"
	"math"
	"strconv"
)

// Well-known datatype IRIs used for literal values.
const (
	XSDString  = "http://www.w3.org/2001/XMLSchema#string"
	XSDDouble  = "http://www.w3.org/2001/XMLSchema#double"
	XSDInteger = "http://www.w3.org/2001/XMLSchema#integer"
	XSDBoolean = "http://www.w3.org/2001/XMLSchema#boolean"
	WKTLiteral = "http://www.opengis.net/ont/geosparql#wktLiteral"
)

// Literal is a typed data value in lexical form.
type Literal struct {
	Lexical  string `json:"lexical"`
	Datatype string `json:"datatype"`
}

// Double returns an xsd:double literal. The lexical form round-trips exactly.
func Double(f float64) Literal {
	return Literal{Lexical: strconv.FormatFloat(f, 'g', -1, 64), Datatype: XSDDouble}
}

// String returns an xsd:string literal.
func String(s string) Literal {
	return Literal{Lexical: s, Datatype: XSDString}
}

// WKT returns a geosparql WKT literal.
func WKT(s string) Literal {
	return Literal{Lexical: s, Datatype: WKTLiteral}
}

// Float parses a numeric literal.
func (l Literal) Float() (float64, error) {
	switch l.Datatype {
	case XSDDouble, XSDInteger:
	default:
		return 0, fmt.Errorf("literal %q has non-numeric datatype %s", l.Lexical, l.Datatype)
	}
	f, err := strconv.ParseFloat(l.Lexical, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric literal %q: %w", l.Lexical, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite numeric literal %q", l.Lexical)
	}
	return f, nil
}

// Individual is a named member of one or more classes.
type Individual struct {
	ID      string               `json:"id"`
	Classes []string             `json:"classes"`        // class IRIs in assertion order
	Data    map[string][]Literal `json:"data,omitempty"` // data property IRI -> values
}

// HasClass reports whether classIRI is asserted on the individual.
// Inferred superclasses are not considered.
func (i Individual) HasClass(classIRI string) bool {
	for _, c := range i.Classes {
		if c == classIRI {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the individual.
func (i Individual) Clone() Individual {
	out := Individual{ID: i.ID, Classes: append([]string(nil), i.Classes...)}
	if len(i.Data) > 0 {
		out.Data = make(map[string][]Literal, len(i.Data))
		for k, v := range i.Data {
			out.Data[k] = append([]Literal(nil), v...)
		}
	}
	return out
}

// Relation is an object-property assertion between two individuals.
type Relation struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// DeclarationKind classifies a schema declaration.
type DeclarationKind string

const (
	DeclClass          DeclarationKind = "class"
	DeclDataProperty   DeclarationKind = "data_property"
	DeclObjectProperty DeclarationKind = "object_property"
)

// Declaration records that a class or property from the schema is known to a store.
type Declaration struct {
	IRI     string          `json:"iri"`
	Kind    DeclarationKind `json:"kind"`
	Parents []string        `json:"parents,omitempty"`
}

// Direction specifies relation traversal direction.
type Direction string

const (
	DirectionOutbound Direction = "outbound" // Follow relations from subject to object
	DirectionInbound  Direction = "inbound"  // Follow relations from object to subject
	DirectionBoth     Direction = "both"     // Follow relations in both directions
)

// Store defines the interface for one scene's knowledge base.
type Store interface {
	// Individual operations
	AddIndividual(ctx context.Context, ind Individual) (string, error)
	UpdateIndividual(ctx context.Context, ind Individual) error
	GetIndividual(ctx context.Context, id string) (*Individual, error)
	DeleteIndividual(ctx context.Context, id string) error

	// QueryIndividuals returns individuals with classIRI asserted, sorted by ID.
	// An empty classIRI returns every individual.
	QueryIndividuals(ctx context.Context, classIRI string) ([]Individual, error)

	// SetData replaces all values of a data property. No values removes it.
	SetData(ctx context.Context, id, property string, values []Literal) error

	// Relation operations
	AddRelation(ctx context.Context, rel Relation) error
	RemoveRelation(ctx context.Context, subject, predicate, object string) error
	GetRelations(ctx context.Context, id string, direction Direction, predicate string) ([]Relation, error)

	// ImportDeclarations records schema declarations, skipping ones already
	// present, and returns the number newly added.
	ImportDeclarations(ctx context.Context, decls []Declaration) (int, error)
	Declarations(ctx context.Context) ([]Declaration, error)

	Close() error
}
