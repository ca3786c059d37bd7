// Package ontology holds the traffic ontology's schema: the catalog of
// sub-ontology modules, their classes and properties, and the disjointness
// axioms the consistency checker enforces.
package ontology

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/autoscene/autoscene/internal/store"
)

//go:embed taxonomy.yaml
var taxonomyYAML []byte

// ModuleID names a sub-ontology in the catalog.
type ModuleID string

// Catalog of sub-ontology modules.
const (
	AUTO                              ModuleID = "auto"
	Physics                           ModuleID = "physics"
	Perception                        ModuleID = "perception"
	Communication                     ModuleID = "communication"
	GeoSPARQL                         ModuleID = "geosparql"
	TECore                            ModuleID = "te_core"
	DescriptiveTECore                 ModuleID = "descriptive_te_core"
	DescriptiveTEDE                   ModuleID = "descriptive_te_de"
	InterpretativeTECore              ModuleID = "interpretative_te_core"
	InterpretativeTEDE                ModuleID = "interpretative_te_de"
	L1Core                            ModuleID = "l1_core"
	L1DE                              ModuleID = "l1_de"
	L2Core                            ModuleID = "l2_core"
	L2DE                              ModuleID = "l2_de"
	L3Core                            ModuleID = "l3_core"
	L3DE                              ModuleID = "l3_de"
	L4Core                            ModuleID = "l4_core"
	L4DE                              ModuleID = "l4_de"
	L5Core                            ModuleID = "l5_core"
	L5DE                              ModuleID = "l5_de"
	L6Core                            ModuleID = "l6_core"
	L6DE                              ModuleID = "l6_de"
	CriticalityPhenomena              ModuleID = "criticality_phenomena"
	CriticalityPhenomenaFormalization ModuleID = "criticality_phenomena_formalization"
)

// Vocabulary IRIs outside the module catalog.
const (
	RDFType            = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	OWLOntology        = "http://www.w3.org/2002/07/owl#Ontology"
	OWLImports         = "http://www.w3.org/2002/07/owl#imports"
	OWLNamedIndividual = "http://www.w3.org/2002/07/owl#NamedIndividual"

	// ImportIRI is the ontology every saved ABox imports.
	ImportIRI = "http://purl.org/auto/"
)

// Frequently used class and property IRIs.
const (
	ClassSpatialObject   = "http://purl.org/auto/physics#Spatial_Object"
	ClassDynamicalObject = "http://purl.org/auto/physics#Dynamical_Object"
	ClassGeometry        = "http://www.opengis.net/ont/geosparql#Geometry"
	ClassFeature         = "http://www.opengis.net/ont/geosparql#Feature"

	PropHasGeometry = "http://www.opengis.net/ont/geosparql#hasGeometry"
	PropAsWKT       = "http://www.opengis.net/ont/geosparql#asWKT"
	PropSfContains  = "http://www.opengis.net/ont/geosparql#sfContains"

	PropHasLength     = "http://purl.org/auto/physics#has_length"
	PropHasWidth      = "http://purl.org/auto/physics#has_width"
	PropHasHeight     = "http://purl.org/auto/physics#has_height"
	PropVelocityX     = "http://purl.org/auto/physics#has_velocity_x"
	PropVelocityY     = "http://purl.org/auto/physics#has_velocity_y"
	PropVelocityZ     = "http://purl.org/auto/physics#has_velocity_z"
	PropSpeed         = "http://purl.org/auto/physics#has_speed"
	PropYaw           = "http://purl.org/auto/physics#has_yaw"
	PropAccelerationX = "http://purl.org/auto/physics#has_acceleration_x"
	PropAccelerationY = "http://purl.org/auto/physics#has_acceleration_y"
	PropAccelerationZ = "http://purl.org/auto/physics#has_acceleration_z"
	PropAcceleration  = "http://purl.org/auto/physics#has_acceleration"
	PropIsNear        = "http://purl.org/auto/physics#is_near"
	PropIsInProximity = "http://purl.org/auto/physics#is_in_proximity"
	PropAppliesTo     = "http://purl.org/auto/l2_core#applies_to"
	PropDrives        = "http://purl.org/auto/l4_core#drives"
	PropHasName       = "http://purl.org/auto/#has_name"
	PropHasLane       = "http://purl.org/auto/l1_core#has_lane"
	PropObserves      = "http://purl.org/auto/perception#observes"
)

// Capability is a set of attribute families a class supports.
type Capability uint8

const (
	CapGeometry   Capability = 1 << iota // position and shape
	CapKinematics                        // velocity and acceleration vectors
	CapElevation                         // vertical extent and z components
)

var capabilityNames = map[string]Capability{
	"geometry":   CapGeometry,
	"kinematics": CapKinematics,
	"elevation":  CapElevation,
}

// Has reports whether all capabilities in o are present in c.
func (c Capability) Has(o Capability) bool {
	return c&o == o
}

func (c Capability) String() string {
	var parts []string
	for _, name := range []string{"geometry", "kinematics", "elevation"} {
		if c.Has(capabilityNames[name]) {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// Module is one sub-ontology of the catalog.
type Module struct {
	ID          ModuleID
	IRI         string
	Description string

	classes    map[string]*Class
	properties map[string]*Property
}

// Class returns the module's class with the given local name.
func (m *Module) Class(name string) (*Class, error) {
	c, ok := m.classes[name]
	if !ok {
		return nil, fmt.Errorf("class %s not defined in module %s", name, m.ID)
	}
	return c, nil
}

// Classes returns the module's classes sorted by name.
func (m *Module) Classes() []*Class {
	out := make([]*Class, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Property returns the module's property with the given local name.
func (m *Module) Property(name string) (*Property, error) {
	p, ok := m.properties[name]
	if !ok {
		return nil, fmt.Errorf("property %s not defined in module %s", name, m.ID)
	}
	return p, nil
}

// Class is a named concept of the ontology.
type Class struct {
	Module       ModuleID
	Name         string
	IRI          string
	Parents      []string   // direct superclass IRIs
	Capabilities Capability // declared on this class only; see Schema.Capabilities
}

// QualifiedName returns "<module>.<Name>".
func (c *Class) QualifiedName() string {
	return string(c.Module) + "." + c.Name
}

// PropertyKind distinguishes data from object properties.
type PropertyKind string

const (
	DataProperty   PropertyKind = "data"
	ObjectProperty PropertyKind = "object"
)

// Property is a data or object property of the ontology.
type Property struct {
	Module     ModuleID
	Name       string
	IRI        string
	Kind       PropertyKind
	Datatype   string // data properties only
	Domain     string // class IRI, empty for unrestricted
	Range      string // object properties only, class IRI
	Functional bool
}

// QualifiedName returns "<module>.<name>".
func (p *Property) QualifiedName() string {
	return string(p.Module) + "." + p.Name
}

// UnknownModuleError is returned when a module is not part of the catalog.
type UnknownModuleError struct {
	Module ModuleID
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("unknown ontology module: %s", e.Module)
}

var defaultSchema = sync.OnceValues(func() (*Schema, error) {
	return Parse(taxonomyYAML)
})

// Default returns the schema built from the embedded taxonomy.
// It is parsed once and shared; Schema values are read-only.
func Default() (*Schema, error) {
	return defaultSchema()
}

// MustDefault is like Default but panics if the embedded taxonomy is invalid.
func MustDefault() *Schema {
	s, err := Default()
	if err != nil {
		panic(fmt.Sprintf("ontology: invalid embedded taxonomy: %v", err))
	}
	return s
}

// Declarations returns the schema as store declarations, classes first,
// each group sorted by IRI.
func (s *Schema) Declarations() []store.Declaration {
	decls := make([]store.Declaration, 0, len(s.classes)+len(s.properties))
	for _, iri := range sortedKeys(s.classes) {
		c := s.classes[iri]
		decls = append(decls, store.Declaration{
			IRI:     c.IRI,
			Kind:    store.DeclClass,
			Parents: append([]string(nil), c.Parents...),
		})
	}
	for _, iri := range sortedKeys(s.properties) {
		p := s.properties[iri]
		kind := store.DeclDataProperty
		if p.Kind == ObjectProperty {
			kind = store.DeclObjectProperty
		}
		decls = append(decls, store.Declaration{IRI: p.IRI, Kind: kind})
	}
	return decls
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
