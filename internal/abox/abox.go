// Package abox reads and writes the assertional part of one scene's
// knowledge base as N-Triples. Schema declarations are not written; the
// file imports the ontology instead.
package abox

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knakk/rdf"

	"github.com/autoscene/autoscene/internal/ontology"
	"github.com/autoscene/autoscene/internal/store"
)

// Document is the content of one ABox file.
type Document struct {
	OntologyIRI string
	Imports     []string
	Snapshot    *store.Snapshot
}

// OntologyIRIFor derives the ontology IRI of an ABox file from its name.
func OntologyIRIFor(path string) string {
	base := filepath.Base(path)
	return ontology.ImportIRI + strings.TrimSuffix(base, filepath.Ext(base))
}

func individualBase(ontologyIRI string) string {
	return strings.TrimRight(ontologyIRI, "#") + "#"
}

// Encode writes doc as N-Triples. Output is deterministic for equal snapshots.
func Encode(w io.Writer, doc *Document) error {
	if doc.OntologyIRI == "" {
		return fmt.Errorf("ontology IRI is required")
	}
	enc := &encoder{enc: rdf.NewTripleEncoder(w, rdf.NTriples)}
	base := individualBase(doc.OntologyIRI)
	node := func(id string) string { return base + url.PathEscape(id) }

	enc.iri(doc.OntologyIRI, ontology.RDFType, ontology.OWLOntology)
	for _, imp := range doc.Imports {
		enc.iri(doc.OntologyIRI, ontology.OWLImports, imp)
	}

	snap := doc.Snapshot
	if snap == nil {
		snap = &store.Snapshot{}
	}
	inds := append([]store.Individual(nil), snap.Individuals...)
	sort.Slice(inds, func(i, j int) bool { return inds[i].ID < inds[j].ID })

	for _, ind := range inds {
		subj := node(ind.ID)
		enc.iri(subj, ontology.RDFType, ontology.OWLNamedIndividual)
		for _, class := range ind.Classes {
			enc.iri(subj, ontology.RDFType, class)
		}
		props := make([]string, 0, len(ind.Data))
		for p := range ind.Data {
			props = append(props, p)
		}
		sort.Strings(props)
		for _, p := range props {
			for _, v := range ind.Data[p] {
				enc.literal(subj, p, v)
			}
		}
	}
	for _, rel := range snap.Relations {
		enc.iri(node(rel.Subject), rel.Predicate, node(rel.Object))
	}

	if enc.err != nil {
		return enc.err
	}
	return enc.enc.Close()
}

// encoder writes triples until the first error.
type encoder struct {
	enc *rdf.TripleEncoder
	err error
}

func (e *encoder) iri(s, p, o string) {
	obj := e.term(o)
	e.write(s, p, obj)
}

func (e *encoder) literal(s, p string, v store.Literal) {
	dt := v.Datatype
	if dt == "" {
		dt = store.XSDString
	}
	datatype := e.term(dt)
	e.write(s, p, rdf.NewTypedLiteral(v.Lexical, datatype))
}

func (e *encoder) write(s, p string, o rdf.Object) {
	subj := e.term(s)
	pred := e.term(p)
	if e.err != nil {
		return
	}
	e.err = e.enc.Encode(rdf.Triple{Subj: subj, Pred: pred, Obj: o})
}

func (e *encoder) term(iri string) rdf.IRI {
	if e.err != nil {
		return rdf.IRI{}
	}
	t, err := rdf.NewIRI(iri)
	if err != nil {
		e.err = fmt.Errorf("invalid IRI %q: %w", iri, err)
	}
	return t
}

// statement is one decoded triple. lit is non-nil when the object is a
// literal.
type statement struct {
	s, p, o string
	lit     *store.Literal
}

// Decode parses an N-Triples ABox. The ontology header may appear anywhere;
// individuals are returned sorted by ID. Language-tagged literals are read
// as xsd:string.
func Decode(r io.Reader) (*Document, error) {
	dec := rdf.NewTripleDecoder(r, rdf.NTriples)
	doc := &Document{}
	var stmts []statement

	for n := 1; ; n++ {
		t, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			drain(dec)
			return nil, fmt.Errorf("statement %d: %w", n, err)
		}
		st, err := toStatement(t)
		if err != nil {
			drain(dec)
			return nil, fmt.Errorf("statement %d: %w", n, err)
		}
		if st.p == ontology.RDFType && st.o == ontology.OWLOntology {
			if doc.OntologyIRI != "" && doc.OntologyIRI != st.s {
				drain(dec)
				return nil, fmt.Errorf("statement %d: second ontology header %s", n, st.s)
			}
			doc.OntologyIRI = st.s
			continue
		}
		stmts = append(stmts, st)
	}
	if doc.OntologyIRI == "" {
		return nil, fmt.Errorf("missing owl:Ontology header")
	}

	base := individualBase(doc.OntologyIRI)
	local := func(iri string) (string, bool, error) {
		if !strings.HasPrefix(iri, base) {
			return "", false, nil
		}
		id, err := url.PathUnescape(strings.TrimPrefix(iri, base))
		return id, true, err
	}

	inds := make(map[string]*store.Individual)
	get := func(id string) *store.Individual {
		ind, ok := inds[id]
		if !ok {
			ind = &store.Individual{ID: id}
			inds[id] = ind
		}
		return ind
	}
	snap := &store.Snapshot{Relations: make([]store.Relation, 0)}

	for _, t := range stmts {
		if t.s == doc.OntologyIRI && t.p == ontology.OWLImports {
			doc.Imports = append(doc.Imports, t.o)
			continue
		}
		id, ok, err := local(t.s)
		if err != nil {
			return nil, fmt.Errorf("invalid individual IRI %s: %w", t.s, err)
		}
		if !ok {
			return nil, fmt.Errorf("subject %s is outside ontology %s", t.s, doc.OntologyIRI)
		}
		ind := get(id)

		switch {
		case t.lit != nil:
			if ind.Data == nil {
				ind.Data = make(map[string][]store.Literal)
			}
			ind.Data[t.p] = append(ind.Data[t.p], *t.lit)
		case t.p == ontology.RDFType:
			if t.o != ontology.OWLNamedIndividual {
				ind.Classes = append(ind.Classes, t.o)
			}
		default:
			obj, ok, err := local(t.o)
			if err != nil {
				return nil, fmt.Errorf("invalid individual IRI %s: %w", t.o, err)
			}
			if !ok {
				return nil, fmt.Errorf("object %s is outside ontology %s", t.o, doc.OntologyIRI)
			}
			get(obj)
			snap.Relations = append(snap.Relations, store.Relation{Subject: id, Predicate: t.p, Object: obj})
		}
	}

	snap.Individuals = make([]store.Individual, 0, len(inds))
	for _, ind := range inds {
		snap.Individuals = append(snap.Individuals, *ind)
	}
	sort.Slice(snap.Individuals, func(i, j int) bool { return snap.Individuals[i].ID < snap.Individuals[j].ID })
	doc.Snapshot = snap
	return doc, nil
}

// toStatement converts a decoded triple. Blank nodes have no individual id
// and are rejected.
func toStatement(t rdf.Triple) (statement, error) {
	subj, ok := t.Subj.(rdf.IRI)
	if !ok {
		return statement{}, fmt.Errorf("blank node subject %s is not supported", t.Subj.Serialize(rdf.NTriples))
	}
	st := statement{s: subj.String(), p: t.Pred.String()}
	switch obj := t.Obj.(type) {
	case rdf.IRI:
		st.o = obj.String()
	case rdf.Literal:
		lit := store.Literal{Lexical: obj.String(), Datatype: obj.DataType.String()}
		if obj.Lang() != "" {
			lit.Datatype = store.XSDString
		}
		st.lit = &lit
	default:
		return statement{}, fmt.Errorf("blank node object %s is not supported", t.Obj.Serialize(rdf.NTriples))
	}
	return st, nil
}

// drain consumes the rest of the input so the decoder's lexer goroutine
// can exit.
func drain(dec rdf.TripleDecoder) {
	for {
		if _, err := dec.Decode(); err == io.EOF {
			return
		}
	}
}

// WriteFile writes doc to path, creating parent directories.
func WriteFile(path string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if err := Encode(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile parses the ABox at path.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	doc, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
