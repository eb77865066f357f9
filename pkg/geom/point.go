package geom

import (
	"errors"
	"fmt"
)

// Coordinate errors.
var (
	ErrInvalidCoordinate = errors.New("coordinate out of bounds")
	ErrInvalidSize       = errors.New("invalid size")
)

// Point is an integer cell coordinate in grid space (native image pixels).
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y int) Point {
	return Point{X: x, Y: y}
}

// Add returns p + other.
func (p Point) Add(other Point) Point {
	return Point{p.X + other.X, p.Y + other.Y}
}

// Manhattan returns the 4-connected step distance to other.
func (p Point) Manhattan(other Point) int {
	return abs(p.X-other.X) + abs(p.Y-other.Y)
}

// Adjacent reports whether other is exactly one step away on one axis.
func (p Point) Adjacent(other Point) bool {
	return p.Manhattan(other) == 1
}

// String returns "(x,y)".
func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Size is a width/height pair.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Contains reports whether p lies in [0,Width)×[0,Height).
func (s Size) Contains(p Point) bool {
	return p.X >= 0 && p.X < s.Width && p.Y >= 0 && p.Y < s.Height
}

// Area returns Width*Height.
func (s Size) Area() int {
	return s.Width * s.Height
}

// Index returns the flat row-major index y*Width+x.
func (s Size) Index(p Point) int {
	return p.Y*s.Width + p.X
}

// PointAt is the inverse of Index.
func (s Size) PointAt(i int) Point {
	return Point{X: i % s.Width, Y: i / s.Width}
}

// Check returns ErrInvalidCoordinate wrapped with context when p is outside s.
func (s Size) Check(p Point) error {
	if !s.Contains(p) {
		return fmt.Errorf("%w: %s not in %dx%d", ErrInvalidCoordinate, p, s.Width, s.Height)
	}
	return nil
}

// String returns "WxH".
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
