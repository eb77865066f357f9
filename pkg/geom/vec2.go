// Package geom provides the coordinate types shared by the walkability grid,
// the path solver, and the hosts that translate user clicks into grid cells.
package geom

import (
	"fmt"
	"math"
)

// Vec2 is a point on the display surface. Components are fractional because
// display surfaces are often scaled relative to the source image.
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Sub returns v - other.
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{v.X - other.X, v.Y - other.Y}
}

// Length returns the magnitude.
func (v Vec2) Length() float64 {
	return math.Hypot(v.X, v.Y)
}

// Distance returns the distance to another point.
func (v Vec2) Distance(other Vec2) float64 {
	return v.Sub(other).Length()
}

// String returns "(x, y)" with two decimals.
func (v Vec2) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", v.X, v.Y)
}
