// Package geometry converts between structured shapes and their WKT
// literals and derives measurements from them.
//
// Shapes are orb geometries in a planar, metric coordinate frame.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
)

// InvalidGeometryError reports a shape that cannot be represented.
type InvalidGeometryError struct {
	Reason string
	Err    error
}

func (e *InvalidGeometryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid geometry: %s: %v", e.Reason, e.Err)
	}
	return "invalid geometry: " + e.Reason
}

func (e *InvalidGeometryError) Unwrap() error { return e.Err }

// UnsupportedAttributeError reports an attribute the entity's classes
// do not allow, such as a vertical extent on a planar entity.
type UnsupportedAttributeError struct {
	Entity    string
	Attribute string
	Classes   []string
}

func (e *UnsupportedAttributeError) Error() string {
	return fmt.Sprintf("attribute %s not supported by %s (classes %v)", e.Attribute, e.Entity, e.Classes)
}

func invalid(format string, args ...any) error {
	return &InvalidGeometryError{Reason: fmt.Sprintf(format, args...)}
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Point returns the point (x, y).
func Point(x, y float64) (orb.Point, error) {
	if !finite(x, y) {
		return orb.Point{}, invalid("non-finite coordinate (%v, %v)", x, y)
	}
	return orb.Point{x, y}, nil
}

// Rectangle returns the closed rectangle centered on (x, y) with the given
// length along x and width along y, rotated by angle degrees counter-clockwise
// about its centroid.
func Rectangle(x, y, length, width, angle float64) (orb.Polygon, error) {
	if !finite(x, y, length, width, angle) {
		return nil, invalid("non-finite rectangle parameter")
	}
	if length <= 0 || width <= 0 {
		return nil, invalid("rectangle dimensions must be positive, got length %v width %v", length, width)
	}

	hl, hw := length/2, width/2
	var ring orb.Ring
	if length >= width {
		ring = orb.Ring{{x - hl, y - hw}, {x + hl, y - hw}, {x + hl, y + hw}, {x - hl, y + hw}}
	} else {
		ring = orb.Ring{{x + hl, y - hw}, {x + hl, y + hw}, {x - hl, y + hw}, {x - hl, y - hw}}
	}
	ring = append(ring, ring[0])

	poly := orb.Polygon{ring}
	if angle != 0 {
		poly = Rotate(poly, orb.Point{x, y}, angle).(orb.Polygon)
	}
	return poly, nil
}

// Rotate rotates g by angle degrees counter-clockwise about origin.
func Rotate(g orb.Geometry, origin orb.Point, angle float64) orb.Geometry {
	sin, cos := math.Sincos(angle * math.Pi / 180)
	rot := func(p orb.Point) orb.Point {
		dx, dy := p[0]-origin[0], p[1]-origin[1]
		return orb.Point{origin[0] + dx*cos - dy*sin, origin[1] + dx*sin + dy*cos}
	}
	ring := func(r orb.Ring) orb.Ring {
		out := make(orb.Ring, len(r))
		for i, p := range r {
			out[i] = rot(p)
		}
		return out
	}

	switch v := g.(type) {
	case orb.Point:
		return rot(v)
	case orb.LineString:
		return orb.LineString(ring(orb.Ring(v)))
	case orb.Ring:
		return ring(v)
	case orb.Polygon:
		out := make(orb.Polygon, len(v))
		for i, r := range v {
			out[i] = ring(r)
		}
		return out
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(v))
		for i, p := range v {
			out[i] = Rotate(p, origin, angle).(orb.Polygon)
		}
		return out
	}
	return g
}

// Validate checks that g is a supported, non-empty, finite shape.
func Validate(g orb.Geometry) error {
	if g == nil {
		return invalid("nil geometry")
	}
	var pts []orb.Point
	switch v := g.(type) {
	case orb.Point:
		pts = []orb.Point{v}
	case orb.LineString:
		if len(v) < 2 {
			return invalid("line string needs at least two points")
		}
		pts = v
	case orb.Polygon:
		if len(v) == 0 {
			return invalid("empty polygon")
		}
		for _, r := range v {
			if len(r) < 4 || !r.Closed() {
				return invalid("polygon ring must be closed with at least four points")
			}
			pts = append(pts, r...)
		}
	case orb.MultiPolygon:
		if len(v) == 0 {
			return invalid("empty multipolygon")
		}
		for _, p := range v {
			if err := Validate(p); err != nil {
				return err
			}
		}
		return nil
	default:
		return invalid("unsupported geometry type %s", g.GeoJSONType())
	}
	for _, p := range pts {
		if !finite(p[0], p[1]) {
			return invalid("non-finite coordinate (%v, %v)", p[0], p[1])
		}
	}
	return nil
}

// MarshalWKT returns the WKT literal of g.
func MarshalWKT(g orb.Geometry) (string, error) {
	if err := Validate(g); err != nil {
		return "", err
	}
	return wkt.MarshalString(g), nil
}

// ParseWKT parses a WKT literal into a shape.
func ParseWKT(s string) (orb.Geometry, error) {
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, &InvalidGeometryError{Reason: fmt.Sprintf("malformed WKT %q", s), Err: err}
	}
	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

// Centroid returns the area-weighted centroid of g.
func Centroid(g orb.Geometry) orb.Point {
	c, _ := planar.CentroidArea(g)
	return c
}

// Dimensions returns length and width of g. For a four-cornered polygon the
// two edge lengths are used, longest first; otherwise the bounding box.
func Dimensions(g orb.Geometry) (length, width float64) {
	if poly, ok := g.(orb.Polygon); ok && len(poly) > 0 && len(poly[0]) == 5 {
		r := poly[0]
		a := planar.Distance(r[0], r[1])
		b := planar.Distance(r[1], r[2])
		return math.Max(a, b), math.Min(a, b)
	}
	bound := g.Bound()
	dx, dy := bound.Max[0]-bound.Min[0], bound.Max[1]-bound.Min[1]
	return math.Max(dx, dy), math.Min(dx, dy)
}

// Pad returns the bounding box of g grown by d on every side.
func Pad(g orb.Geometry, d float64) orb.Bound {
	return g.Bound().Pad(d)
}

// Contains reports whether every point of inner lies within outer.
// Only polygonal outers contain anything.
func Contains(outer, inner orb.Geometry) bool {
	var polys []orb.Polygon
	switch v := outer.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{v}
	case orb.MultiPolygon:
		polys = v
	default:
		return false
	}
	pts := points(inner)
	if len(pts) == 0 {
		return false
	}
	for _, p := range pts {
		in := false
		for _, poly := range polys {
			if planar.PolygonContains(poly, p) || onBoundary(poly, p) {
				in = true
				break
			}
		}
		if !in {
			return false
		}
	}
	return true
}

// Distance returns the minimum planar distance between a and b, zero when
// they touch or overlap.
func Distance(a, b orb.Geometry) float64 {
	if intersects(a, b) {
		return 0
	}
	best := math.Inf(1)
	for _, p := range points(a) {
		best = math.Min(best, planar.DistanceFrom(b, p))
	}
	for _, p := range points(b) {
		best = math.Min(best, planar.DistanceFrom(a, p))
	}
	return best
}

func intersects(a, b orb.Geometry) bool {
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	if Contains(a, firstPoint(b)) || Contains(b, firstPoint(a)) {
		return true
	}
	for _, s1 := range segments(a) {
		for _, s2 := range segments(b) {
			if segmentsIntersect(s1[0], s1[1], s2[0], s2[1]) {
				return true
			}
		}
	}
	return false
}

func firstPoint(g orb.Geometry) orb.Geometry {
	if pts := points(g); len(pts) > 0 {
		return pts[0]
	}
	return orb.Point{math.NaN(), math.NaN()}
}

func points(g orb.Geometry) []orb.Point {
	switch v := g.(type) {
	case orb.Point:
		return []orb.Point{v}
	case orb.LineString:
		return v
	case orb.Ring:
		return v
	case orb.Polygon:
		var out []orb.Point
		for _, r := range v {
			out = append(out, r...)
		}
		return out
	case orb.MultiPolygon:
		var out []orb.Point
		for _, p := range v {
			out = append(out, points(p)...)
		}
		return out
	}
	return nil
}

func segments(g orb.Geometry) [][2]orb.Point {
	var out [][2]orb.Point
	line := func(pts []orb.Point) {
		for i := 1; i < len(pts); i++ {
			out = append(out, [2]orb.Point{pts[i-1], pts[i]})
		}
	}
	switch v := g.(type) {
	case orb.LineString:
		line(v)
	case orb.Polygon:
		for _, r := range v {
			line(r)
		}
	case orb.MultiPolygon:
		for _, p := range v {
			out = append(out, segments(p)...)
		}
	}
	return out
}

func onBoundary(poly orb.Polygon, p orb.Point) bool {
	for _, s := range segments(poly) {
		if segmentsIntersect(s[0], s[1], p, p) {
			return true
		}
	}
	return false
}

const epsilon = 1e-9

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0])-epsilon <= p[0] && p[0] <= math.Max(a[0], b[0])+epsilon &&
		math.Min(a[1], b[1])-epsilon <= p[1] && p[1] <= math.Max(a[1], b[1])+epsilon
}

func sign(v float64) int {
	switch {
	case v > epsilon:
		return 1
	case v < -epsilon:
		return -1
	}
	return 0
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := sign(cross(q1, q2, p1))
	d2 := sign(cross(q1, q2, p2))
	d3 := sign(cross(p1, p2, q1))
	d4 := sign(cross(p1, p2, q2))
	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

// ErrNoGeometry is returned when a measurement needs a shape that is absent.
var ErrNoGeometry = errors.New("entity has no geometry")
