package scenegraph

import (
	"hash/fnv"

	"github.com/autoscene/autoscene/internal/ontology"
)

// Style is how a shape is drawn. Equal class sets always yield equal styles.
type Style struct {
	Stroke        string  `json:"stroke"`
	StrokeOpacity float64 `json:"stroke_opacity"`
	Fill          string  `json:"fill,omitempty"`
	FillOpacity   float64 `json:"fill_opacity,omitempty"`
	Pattern       string  `json:"pattern,omitempty"` // "hatch" for crossings
	Layer         int     `json:"layer"`             // lower layers are drawn first
}

// Draw layers.
const (
	LayerRoad = iota
	LayerInfrastructure
	LayerObject
	LayerParticipant
)

// participantColors is checked in order against the entity's classes.
var participantColors = []struct {
	class string
	color string
}{
	{"l4_de.Bicycle", "darkblue"},
	{"l4_de.Passenger_Car", "cornflowerblue"},
	{"l4_de.Pedestrian", "firebrick"},
	{"l4_de.Parking_Vehicle", "darkgoldenrod"},
}

var palette = []string{
	"#1b9e77", "#d95f02", "#7570b3", "#e7298a", "#66a61e",
	"#a6761d", "#666666", "#1f78b4", "#b15928", "#6a3d9a",
}

var roadModules = map[ontology.ModuleID]bool{
	ontology.L1Core: true, ontology.L1DE: true,
	ontology.L2Core: true, ontology.L2DE: true,
}

// StyleFor derives the style of an entity from its asserted classes.
func StyleFor(schema *ontology.Schema, classIRIs []string) Style {
	is := func(qualified string) bool {
		c, err := schema.Lookup(qualified)
		return err == nil && schema.IsA(classIRIs, c.IRI)
	}

	st := Style{StrokeOpacity: 0.6, Layer: LayerObject}
	road := false
	for _, iri := range classIRIs {
		for _, a := range schema.Ancestors(iri) {
			if c, ok := schema.Class(a); ok && roadModules[c.Module] {
				road = true
			}
		}
	}

	switch {
	case road:
		st.Stroke = "black"
		st.Layer = LayerRoad
		if is("l2_core.Traffic_Infrastructure") {
			st.Layer = LayerInfrastructure
		}
	default:
		for _, pc := range participantColors {
			if is(pc.class) {
				st.Stroke = pc.color
				break
			}
		}
	}
	if st.Stroke == "" {
		st.Stroke = fallbackColor(schema.MostSpecific(classIRIs), classIRIs)
	}

	switch {
	case is("l1_de.Bikeway_Lane"):
		st.Fill, st.FillOpacity = "red", 0.25
	case is("l1_de.Pedestrian_Crossing"):
		st.Fill, st.FillOpacity, st.Pattern = "black", 1, "hatch"
	case schema.Capabilities(classIRIs).Has(ontology.CapKinematics):
		st.Fill, st.FillOpacity = st.Stroke, 0.5
		st.Layer = LayerParticipant
	}
	return st
}

// fallbackColor picks a palette entry from a hash of the class, so unknown
// classes still render the same way every time.
func fallbackColor(class string, classIRIs []string) string {
	if class == "" && len(classIRIs) > 0 {
		class = classIRIs[0]
	}
	if class == "" {
		return "gray"
	}
	h := fnv.New32a()
	h.Write([]byte(class))
	return palette[h.Sum32()%uint32(len(palette))]
}
