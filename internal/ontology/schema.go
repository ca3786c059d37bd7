package ontology

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/autoscene/autoscene/internal/store"
)

// taxonomyFile is the YAML layout of a taxonomy.
type taxonomyFile struct {
	Modules []struct {
		ID          string `yaml:"id"`
		IRI         string `yaml:"iri"`
		Description string `yaml:"description"`
	} `yaml:"modules"`
	Classes []struct {
		ID           string   `yaml:"id"`
		Parents      []string `yaml:"parents"`
		Capabilities []string `yaml:"capabilities"`
	} `yaml:"classes"`
	Properties []struct {
		ID         string `yaml:"id"`
		Kind       string `yaml:"kind"`
		Datatype   string `yaml:"datatype"`
		Domain     string `yaml:"domain"`
		Range      string `yaml:"range"`
		Functional bool   `yaml:"functional"`
	} `yaml:"properties"`
	Disjoint [][]string `yaml:"disjoint"`
}

var datatypes = map[string]string{
	"double":  store.XSDDouble,
	"string":  store.XSDString,
	"integer": store.XSDInteger,
	"boolean": store.XSDBoolean,
	"wkt":     store.WKTLiteral,
}

// Schema is a parsed, validated taxonomy. It is immutable after Parse.
type Schema struct {
	modules    []*Module
	byModule   map[ModuleID]*Module
	classes    map[string]*Class
	properties map[string]*Property
	disjoint   [][]string
	ancestors  map[string][]string
	depth      map[string]int
}

// Parse builds a Schema from taxonomy YAML. Every module, class reference,
// property domain/range and disjointness member must resolve.
func Parse(data []byte) (*Schema, error) {
	var tf taxonomyFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy: %w", err)
	}

	s := &Schema{
		byModule:   make(map[ModuleID]*Module),
		classes:    make(map[string]*Class),
		properties: make(map[string]*Property),
		ancestors:  make(map[string][]string),
		depth:      make(map[string]int),
	}

	for _, m := range tf.Modules {
		if m.ID == "" || m.IRI == "" {
			return nil, fmt.Errorf("module entry requires id and iri")
		}
		id := ModuleID(m.ID)
		if _, dup := s.byModule[id]; dup {
			return nil, fmt.Errorf("duplicate module %s", m.ID)
		}
		mod := &Module{
			ID:          id,
			IRI:         m.IRI,
			Description: m.Description,
			classes:     make(map[string]*Class),
			properties:  make(map[string]*Property),
		}
		s.modules = append(s.modules, mod)
		s.byModule[id] = mod
	}

	// resolve maps "<module>.<Name>" to the IRI it would have.
	resolve := func(ref string) (*Module, string, string, error) {
		modID, name, ok := strings.Cut(ref, ".")
		if !ok || name == "" {
			return nil, "", "", fmt.Errorf("invalid reference %q, want <module>.<Name>", ref)
		}
		mod, ok := s.byModule[ModuleID(modID)]
		if !ok {
			return nil, "", "", &UnknownModuleError{Module: ModuleID(modID)}
		}
		return mod, name, mod.IRI + name, nil
	}

	for _, c := range tf.Classes {
		mod, name, iri, err := resolve(c.ID)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", c.ID, err)
		}
		if _, dup := s.classes[iri]; dup {
			return nil, fmt.Errorf("duplicate class %s", c.ID)
		}
		class := &Class{Module: mod.ID, Name: name, IRI: iri}
		for _, capName := range c.Capabilities {
			capability, ok := capabilityNames[capName]
			if !ok {
				return nil, fmt.Errorf("class %s: unknown capability %q", c.ID, capName)
			}
			class.Capabilities |= capability
		}
		s.classes[iri] = class
		mod.classes[name] = class
	}

	// Parents are resolved after all classes exist so order in the file is free.
	for _, c := range tf.Classes {
		_, _, iri, _ := resolve(c.ID)
		for _, p := range c.Parents {
			_, _, parentIRI, err := resolve(p)
			if err != nil {
				return nil, fmt.Errorf("class %s parent: %w", c.ID, err)
			}
			if _, ok := s.classes[parentIRI]; !ok {
				return nil, fmt.Errorf("class %s: undefined parent %s", c.ID, p)
			}
			s.classes[iri].Parents = append(s.classes[iri].Parents, parentIRI)
		}
	}

	for iri := range s.classes {
		anc, err := s.computeAncestors(iri, map[string]bool{})
		if err != nil {
			return nil, err
		}
		s.ancestors[iri] = anc
	}

	for _, p := range tf.Properties {
		mod, name, iri, err := resolve(p.ID)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", p.ID, err)
		}
		if _, dup := s.properties[iri]; dup {
			return nil, fmt.Errorf("duplicate property %s", p.ID)
		}
		prop := &Property{Module: mod.ID, Name: name, IRI: iri, Kind: PropertyKind(p.Kind), Functional: p.Functional}
		switch prop.Kind {
		case DataProperty:
			dt, ok := datatypes[p.Datatype]
			if !ok {
				return nil, fmt.Errorf("property %s: unknown datatype %q", p.ID, p.Datatype)
			}
			prop.Datatype = dt
		case ObjectProperty:
			if p.Range == "" {
				return nil, fmt.Errorf("object property %s requires a range", p.ID)
			}
			prop.Range, err = s.classRef(resolve, p.Range)
			if err != nil {
				return nil, fmt.Errorf("property %s range: %w", p.ID, err)
			}
		default:
			return nil, fmt.Errorf("property %s: invalid kind %q", p.ID, p.Kind)
		}
		if p.Domain != "" {
			prop.Domain, err = s.classRef(resolve, p.Domain)
			if err != nil {
				return nil, fmt.Errorf("property %s domain: %w", p.ID, err)
			}
		}
		s.properties[iri] = prop
		mod.properties[name] = prop
	}

	for _, group := range tf.Disjoint {
		if len(group) < 2 {
			return nil, fmt.Errorf("disjointness group %v needs at least two classes", group)
		}
		iris := make([]string, 0, len(group))
		for _, ref := range group {
			iri, err := s.classRef(resolve, ref)
			if err != nil {
				return nil, fmt.Errorf("disjointness group: %w", err)
			}
			iris = append(iris, iri)
		}
		s.disjoint = append(s.disjoint, iris)
	}

	return s, nil
}

func (s *Schema) classRef(resolve func(string) (*Module, string, string, error), ref string) (string, error) {
	_, _, iri, err := resolve(ref)
	if err != nil {
		return "", err
	}
	if _, ok := s.classes[iri]; !ok {
		return "", fmt.Errorf("undefined class %s", ref)
	}
	return iri, nil
}

// computeAncestors returns iri followed by all superclasses, breadth first.
func (s *Schema) computeAncestors(iri string, visiting map[string]bool) ([]string, error) {
	if visiting[iri] {
		return nil, fmt.Errorf("class hierarchy cycle at %s", iri)
	}
	visiting[iri] = true
	defer delete(visiting, iri)

	out := []string{iri}
	seen := map[string]bool{iri: true}
	depth := 0
	for _, p := range s.classes[iri].Parents {
		anc, err := s.computeAncestors(p, visiting)
		if err != nil {
			return nil, err
		}
		if d := s.depth[p] + 1; d > depth {
			depth = d
		}
		for _, a := range anc {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	s.depth[iri] = depth
	return out, nil
}

// Modules returns the module catalog in declaration order.
func (s *Schema) Modules() []*Module {
	return append([]*Module(nil), s.modules...)
}

// Module returns a catalog module, or UnknownModuleError.
func (s *Schema) Module(id ModuleID) (*Module, error) {
	m, ok := s.byModule[id]
	if !ok {
		return nil, &UnknownModuleError{Module: id}
	}
	return m, nil
}

// Class returns the class with the given IRI.
func (s *Schema) Class(iri string) (*Class, bool) {
	c, ok := s.classes[iri]
	return c, ok
}

// Property returns the property with the given IRI.
func (s *Schema) Property(iri string) (*Property, bool) {
	p, ok := s.properties[iri]
	return p, ok
}

// Lookup resolves a qualified "<module>.<Name>" class reference.
func (s *Schema) Lookup(qualified string) (*Class, error) {
	modID, name, ok := strings.Cut(qualified, ".")
	if !ok {
		return nil, fmt.Errorf("invalid class reference %q, want <module>.<Name>", qualified)
	}
	m, err := s.Module(ModuleID(modID))
	if err != nil {
		return nil, err
	}
	return m.Class(name)
}

// Ancestors returns iri and all its superclasses. Unknown IRIs yield nil.
func (s *Schema) Ancestors(iri string) []string {
	return append([]string(nil), s.ancestors[iri]...)
}

// IsA reports whether any of classIRIs is target or a subclass of it.
func (s *Schema) IsA(classIRIs []string, target string) bool {
	for _, c := range classIRIs {
		for _, a := range s.ancestors[c] {
			if a == target {
				return true
			}
		}
	}
	return false
}

// Subclasses returns iri and every class that has it as an ancestor.
func (s *Schema) Subclasses(iri string) []string {
	var out []string
	for _, c := range sortedKeys(s.classes) {
		if s.IsA([]string{c}, iri) {
			out = append(out, c)
		}
	}
	return out
}

// Capabilities returns the union of capabilities over classIRIs and all
// of their ancestors.
func (s *Schema) Capabilities(classIRIs []string) Capability {
	var c Capability
	for _, iri := range classIRIs {
		for _, a := range s.ancestors[iri] {
			c |= s.classes[a].Capabilities
		}
	}
	return c
}

// MostSpecific returns the deepest known class among classIRIs. Ties go to
// the class asserted first. Returns "" if none are known.
func (s *Schema) MostSpecific(classIRIs []string) string {
	best, bestDepth := "", -1
	for _, iri := range classIRIs {
		if _, ok := s.classes[iri]; !ok {
			continue
		}
		if d := s.depth[iri]; d > bestDepth {
			best, bestDepth = iri, d
		}
	}
	return best
}

// DisjointPair returns two classes from classIRIs (or their ancestors) that
// are declared disjoint.
func (s *Schema) DisjointPair(classIRIs []string) (string, string, bool) {
	for _, group := range s.disjoint {
		var hit string
		for _, member := range group {
			for _, c := range classIRIs {
				if !s.IsA([]string{c}, member) {
					continue
				}
				if hit == "" {
					hit = member
				} else if hit != member {
					return hit, member, true
				}
			}
		}
	}
	return "", "", false
}

// QualifiedName returns "<module>.<Name>" for a known class IRI, or the IRI itself.
func (s *Schema) QualifiedName(iri string) string {
	if c, ok := s.classes[iri]; ok {
		return c.QualifiedName()
	}
	if p, ok := s.properties[iri]; ok {
		return p.QualifiedName()
	}
	return iri
}
