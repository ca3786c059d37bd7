// Package visualization renders scene graphs in various output formats.
package visualization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/autoscene/autoscene/internal/scenegraph"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// ParseFormat accepts the names used on the command line.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatDOT, FormatJSON, FormatHTML:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want dot, json or html)", s)
}

// linkStyles maps link kinds to DOT styles.
var linkStyles = map[string]string{
	scenegraph.LinkContains: "dashed",
	scenegraph.LinkNear:     "dotted",
	"drives":                "bold",
}

// Render dispatches to the renderer for format.
func Render(g *scenegraph.Graph, format Format) ([]byte, error) {
	switch format {
	case FormatDOT:
		return []byte(RenderDOT(g)), nil
	case FormatJSON:
		return RenderJSON(g)
	case FormatHTML:
		return RenderHTML(g)
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

// RenderDOT produces a Graphviz DOT representation with one cluster per
// frame. Node positions follow the scene coordinates, so neato -n keeps
// the layout.
func RenderDOT(g *scenegraph.Graph) string {
	var b strings.Builder
	b.WriteString("digraph scenario {\n")
	if g.Name != "" {
		fmt.Fprintf(&b, "  label=%q;\n", g.Name)
	}
	b.WriteString("  node [shape=box, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n")

	for _, f := range g.Frames {
		fmt.Fprintf(&b, "\n  subgraph cluster_%d {\n", f.Index)
		fmt.Fprintf(&b, "    label=%q;\n", frameTitle(f))
		for _, sh := range f.Shapes {
			fill := sh.Style.Fill
			if fill == "" {
				fill = "white"
			}
			fmt.Fprintf(&b, "    %q [label=%q, color=%q, fillcolor=%q, pos=\"%.2f,%.2f!\"];\n",
				nodeID(f, sh.Key), nodeLabel(sh.Class, sh.EntityID, sh.LogicalID),
				sh.Style.Stroke, fill, sh.Centroid[0], sh.Centroid[1])
		}
		for _, e := range f.Unplaced {
			fmt.Fprintf(&b, "    %q [label=%q, shape=ellipse, fillcolor=\"lightgray\"];\n",
				nodeID(f, e.Key), nodeLabel(e.Class, e.EntityID, e.LogicalID))
		}
		for _, l := range f.Links {
			style := linkStyles[l.Kind]
			if style == "" {
				style = "solid"
			}
			fmt.Fprintf(&b, "    %q -> %q [label=%q, style=%s];\n",
				nodeID(f, l.From), nodeID(f, l.To), l.Kind, style)
		}
		b.WriteString("  }\n")
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces the JSON form consumed by the HTML viewer.
func RenderJSON(g *scenegraph.Graph) ([]byte, error) {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal graph: %w", err)
	}
	return data, nil
}

// htmlTemplateData holds data passed to the HTML template.
// GraphJSON is pre-sanitized JSON (via json.HTMLEscape) safe for inline <script>.
type htmlTemplateData struct {
	Title     string
	GraphJSON template.JS
	Live      bool
}

// RenderHTML produces a self-contained HTML page that steps through the
// frames of g.
func RenderHTML(g *scenegraph.Graph) ([]byte, error) {
	return renderHTML(g, false)
}

// renderHTML renders the viewer page. Live pages follow /api/live and fall
// back to polling /api/frames.
func renderHTML(g *scenegraph.Graph, live bool) ([]byte, error) {
	graphJSON, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("marshal graph data: %w", err)
	}

	tmplBytes, err := templates.ReadFile("templates/scenario.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read HTML template: %w", err)
	}
	tmpl, err := template.New("scenario").Parse(string(tmplBytes))
	if err != nil {
		return nil, fmt.Errorf("parse HTML template: %w", err)
	}

	// Entity IDs and data values come from loaded files; escape them so
	// they cannot close the inline script.
	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, graphJSON)

	title := g.Name
	if title == "" {
		title = "scenario"
	}
	var buf bytes.Buffer
	data := htmlTemplateData{
		Title:     title,
		GraphJSON: template.JS(escaped.String()), // #nosec G203
		Live:      live,
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}

func frameTitle(f *scenegraph.Frame) string {
	if f.Label != "" {
		return fmt.Sprintf("t=%g %s", f.Timestamp, f.Label)
	}
	return fmt.Sprintf("t=%g", f.Timestamp)
}

// nodeID scopes a shape key to its frame; keys repeat across frames.
func nodeID(f *scenegraph.Frame, key string) string {
	return fmt.Sprintf("%d|%s", f.Index, key)
}

func nodeLabel(class, entityID, logicalID string) string {
	name := entityID
	if logicalID != "" {
		name = logicalID
	}
	return truncate(class, 40) + "\n" + truncate(name, 40)
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
