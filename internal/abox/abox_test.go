package abox

import (
	"bytes"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/autoscene/autoscene/internal/ontology"
	"github.com/autoscene/autoscene/internal/store"
)

func sampleSnapshot() *store.Snapshot {
	return &store.Snapshot{
		Individuals: []store.Individual{
			{
				ID:      "ego car",
				Classes: []string{"http://purl.org/auto/l4_de#Passenger_Car"},
				Data: map[string][]store.Literal{
					ontology.PropHasLength: {store.Double(5.1)},
					ontology.PropHasName:   {store.String("line\nbreak \"quoted\" back\\slash")},
				},
			},
			{
				ID:      "ego car_geometry",
				Classes: []string{ontology.ClassGeometry},
				Data: map[string][]store.Literal{
					ontology.PropAsWKT: {store.WKT("POLYGON((2.45 8.9,7.55 8.9,7.55 11.1,2.45 11.1,2.45 8.9))")},
				},
			},
			{ID: "untyped"},
		},
		Relations: []store.Relation{
			{Subject: "ego car", Predicate: ontology.PropHasGeometry, Object: "ego car_geometry"},
		},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	doc := &Document{
		OntologyIRI: "http://purl.org/auto/scene_1",
		Imports:     []string{ontology.ImportIRI},
		Snapshot:    sampleSnapshot(),
	}

	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.OntologyIRI != doc.OntologyIRI {
		t.Errorf("OntologyIRI = %s, want %s", got.OntologyIRI, doc.OntologyIRI)
	}
	if !reflect.DeepEqual(got.Imports, doc.Imports) {
		t.Errorf("Imports = %v, want %v", got.Imports, doc.Imports)
	}
	if !reflect.DeepEqual(got.Snapshot, doc.Snapshot) {
		t.Errorf("Snapshot mismatch:\n got %+v\nwant %+v", got.Snapshot, doc.Snapshot)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	doc := &Document{OntologyIRI: "http://purl.org/auto/x", Snapshot: sampleSnapshot()}
	var a, b bytes.Buffer
	Encode(&a, doc)
	Encode(&b, doc)
	if a.String() != b.String() {
		t.Error("Encode() output differs between runs")
	}
	if !strings.HasPrefix(a.String(), "<http://purl.org/auto/x> <"+ontology.RDFType+"> <"+ontology.OWLOntology+"> .\n") {
		t.Errorf("output does not start with the ontology header:\n%s", a.String())
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "no header", input: "<http://x#a> <http://x#p> <http://x#b> .\n"},
		{name: "missing dot", input: "<http://x> <" + ontology.RDFType + "> <" + ontology.OWLOntology + ">\n"},
		{name: "foreign subject", input: "<http://x> <" + ontology.RDFType + "> <" + ontology.OWLOntology + "> .\n<http://y#a> <http://x#p> \"1\" .\n"},
		{name: "unterminated literal", input: "<http://x> <" + ontology.RDFType + "> <" + ontology.OWLOntology + "> .\n<http://x#a> <http://x#p> \"1 .\n"},
		{name: "blank subject", input: "<http://x> <" + ontology.RDFType + "> <" + ontology.OWLOntology + "> .\n_:b0 <http://x#p> \"1\" .\n"},
		{name: "blank object", input: "<http://x> <" + ontology.RDFType + "> <" + ontology.OWLOntology + "> .\n<http://x#a> <http://x#p> _:b0 .\n"},
		{name: "second header", input: "<http://x> <" + ontology.RDFType + "> <" + ontology.OWLOntology + "> .\n<http://y> <" + ontology.RDFType + "> <" + ontology.OWLOntology + "> .\n"},
		{name: "trailing garbage", input: "<http://x> <" + ontology.RDFType + "> <" + ontology.OWLOntology + "> . <http://x#a>\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(tt.input)); err == nil {
				t.Error("Decode() error = nil, want error")
			}
		})
	}
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "scene_0.nt")
	doc := &Document{OntologyIRI: OntologyIRIFor(path), Imports: []string{ontology.ImportIRI}, Snapshot: sampleSnapshot()}
	if doc.OntologyIRI != "http://purl.org/auto/scene_0" {
		t.Errorf("OntologyIRIFor() = %s", doc.OntologyIRI)
	}
	if err := WriteFile(path, doc); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(got.Snapshot.Individuals) != 3 {
		t.Errorf("read %d individuals, want 3", len(got.Snapshot.Individuals))
	}
}

func TestDecode_HandWritten(t *testing.T) {
	input := strings.Join([]string{
		"# written by hand",
		"<http://purl.org/auto/scene_3#car>\t<" + ontology.PropHasLength + ">   \"4.2\"^^<" + store.XSDDouble + ">  .",
		"",
		"<http://purl.org/auto/scene_3>  <" + ontology.RDFType + ">  <" + ontology.OWLOntology + "> .",
		"<http://purl.org/auto/scene_3#car> <" + ontology.PropHasName + "> \"Gr\\u00FCn\"@de .",
		"<http://purl.org/auto/scene_3#car> <" + ontology.PropHasName + "> \"tab\\there\" .",
		"<http://purl.org/auto/scene_3#car> <" + ontology.RDFType + "> <http://purl.org/auto/l4_de#Passenger_Car> .",
	}, "\n") + "\n"

	doc, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if doc.OntologyIRI != "http://purl.org/auto/scene_3" {
		t.Errorf("OntologyIRI = %s", doc.OntologyIRI)
	}
	if len(doc.Snapshot.Individuals) != 1 {
		t.Fatalf("individuals = %+v, want one", doc.Snapshot.Individuals)
	}
	car := doc.Snapshot.Individuals[0]
	if car.ID != "car" || !car.HasClass("http://purl.org/auto/l4_de#Passenger_Car") {
		t.Errorf("individual = %+v", car)
	}
	if got := car.Data[ontology.PropHasLength]; len(got) != 1 || got[0] != store.Double(4.2) {
		t.Errorf("has_length = %+v, want 4.2 as xsd:double", got)
	}
	want := []store.Literal{store.String("Grün"), store.String("tab\there")}
	if got := car.Data[ontology.PropHasName]; !reflect.DeepEqual(got, want) {
		t.Errorf("has_name = %+v, want %+v", got, want)
	}
}

func TestEncode_InvalidIRI(t *testing.T) {
	doc := &Document{
		OntologyIRI: "http://purl.org/auto/x",
		Snapshot: &store.Snapshot{Individuals: []store.Individual{
			{ID: "a", Classes: []string{"http://purl.org/auto/has space"}},
		}},
	}
	if err := Encode(&bytes.Buffer{}, doc); err == nil || !strings.Contains(err.Error(), "invalid IRI") {
		t.Errorf("Encode() error = %v, want invalid IRI", err)
	}
}
