package core

import (
	"math"

	"github.com/signalsfoundry/evacuation-simulator/model"
)

// Vec2 is a floor-plan vector in metres.
type Vec2 struct {
	X, Z float64
}

// FromPosition converts a model position into a vector.
func FromPosition(p model.Position) Vec2 {
	return Vec2(p)
}

// Position converts the vector back into a model position.
func (v Vec2) Position() model.Position {
	return model.Position(v)
}

// Add returns v + other.
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Z: v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{X: v.X - other.X, Z: v.Z - other.Z}
}

// Scale returns v * s.
func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{X: v.X * s, Z: v.Z * s}
}

// Norm returns the Euclidean length of the vector.
func (v Vec2) Norm() float64 {
	return math.Hypot(v.X, v.Z)
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec2) DistanceTo(other Vec2) float64 {
	return v.Sub(other).Norm()
}

// Normalize returns the unit vector in the direction of v, or the zero
// vector when v has no length.
func (v Vec2) Normalize() Vec2 {
	n := v.Norm()
	if n == 0 {
		return Vec2{}
	}
	return Vec2{X: v.X / n, Z: v.Z / n}
}

// Cell returns the grid cell containing v (integer floor of each axis).
func (v Vec2) Cell() GridPoint {
	return GridPoint{X: int(math.Floor(v.X)), Z: int(math.Floor(v.Z))}
}
