package geometry

import "math"

// Vector is a velocity or acceleration. Z is meaningful only when HasZ is set.
type Vector struct {
	X, Y, Z float64
	HasZ    bool
}

// Vec2 returns a planar vector.
func Vec2(x, y float64) Vector { return Vector{X: x, Y: y} }

// Vec3 returns a vector with a vertical component.
func Vec3(x, y, z float64) Vector { return Vector{X: x, Y: y, Z: z, HasZ: true} }

// Valid reports whether every component is finite.
func (v Vector) Valid() bool {
	return finite(v.X, v.Y, v.Z)
}

// Norm returns the Euclidean length of v.
func (v Vector) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Heading returns the planar direction of v in degrees, in [0, 360).
func (v Vector) Heading() float64 {
	h := math.Mod(math.Atan2(v.Y, v.X)*180/math.Pi, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// SignedNorm returns the norm, negated when the heading points backwards,
// i.e. lies strictly between 90 and 270 degrees.
func (v Vector) SignedNorm() float64 {
	n := v.Norm()
	if h := v.Heading(); h > 90 && h < 270 {
		return -n
	}
	return n
}
