package geom

import (
	"fmt"
	"math"
)

// Mapper converts between display space and grid space using independent
// horizontal and vertical scale factors. Grid space is always the native
// resolution of the source image; the display size is whatever surface the
// host draws on.
type Mapper struct {
	display Size
	grid    Size
	scaleX  float64 // grid units per display unit
	scaleY  float64
}

// NewMapper creates a mapper for the given display and grid sizes.
func NewMapper(display, grid Size) (Mapper, error) {
	if !display.Valid() {
		return Mapper{}, fmt.Errorf("%w: display %s", ErrInvalidSize, display)
	}
	if !grid.Valid() {
		return Mapper{}, fmt.Errorf("%w: grid %s", ErrInvalidSize, grid)
	}
	return Mapper{
		display: display,
		grid:    grid,
		scaleX:  float64(grid.Width) / float64(display.Width),
		scaleY:  float64(grid.Height) / float64(display.Height),
	}, nil
}

// FitWidth returns the display size obtained by scaling grid to the given
// width while preserving its aspect ratio. Height is at least 1.
func FitWidth(grid Size, width int) Size {
	if !grid.Valid() || width <= 0 {
		return Size{}
	}
	h := int(math.Round(float64(grid.Height) * float64(width) / float64(grid.Width)))
	if h < 1 {
		h = 1
	}
	return Size{Width: width, Height: h}
}

// Fit scales grid to width like FitWidth, then shrinks it to maxHeight if
// it is taller. maxHeight <= 0 means no height limit.
func Fit(grid Size, width, maxHeight int) Size {
	s := FitWidth(grid, width)
	if maxHeight <= 0 || s.Height <= maxHeight {
		return s
	}
	w := int(math.Round(float64(grid.Width) * float64(maxHeight) / float64(grid.Height)))
	if w < 1 {
		w = 1
	}
	return Size{Width: w, Height: maxHeight}
}

// Display returns the display size.
func (m Mapper) Display() Size { return m.display }

// Grid returns the grid size.
func (m Mapper) Grid() Size { return m.grid }

// ToGrid maps a display point to the grid cell containing it.
// Points outside the display surface are rejected.
func (m Mapper) ToGrid(v Vec2) (Point, error) {
	if !m.display.Valid() {
		return Point{}, fmt.Errorf("%w: mapper has no display size", ErrInvalidSize)
	}
	if math.IsNaN(v.X) || math.IsNaN(v.Y) ||
		v.X < 0 || v.Y < 0 || v.X >= float64(m.display.Width) || v.Y >= float64(m.display.Height) {
		return Point{}, fmt.Errorf("%w: display point %s not in %s", ErrInvalidCoordinate, v, m.display)
	}
	p := Point{
		X: int(math.Floor(v.X * m.scaleX)),
		Y: int(math.Floor(v.Y * m.scaleY)),
	}
	// Floating point can push the last column/row one past the edge.
	p.X = min(p.X, m.grid.Width-1)
	p.Y = min(p.Y, m.grid.Height-1)
	return p, nil
}

// ToDisplay maps a grid cell to the display position of its center.
//
// For a display that is no larger than the grid (scale >= 1 on both axes),
// ToDisplay(ToGrid(v)) is within half a display pixel of v.
func (m Mapper) ToDisplay(p Point) (Vec2, error) {
	if !m.grid.Valid() {
		return Vec2{}, fmt.Errorf("%w: mapper has no grid size", ErrInvalidSize)
	}
	if err := m.grid.Check(p); err != nil {
		return Vec2{}, err
	}
	return m.center(p), nil
}

// Polyline maps a sequence of grid cells to display-space cell centers.
// Cells outside the grid are skipped.
func (m Mapper) Polyline(points []Point) []Vec2 {
	out := make([]Vec2, 0, len(points))
	for _, p := range points {
		if m.grid.Contains(p) {
			out = append(out, m.center(p))
		}
	}
	return out
}

func (m Mapper) center(p Point) Vec2 {
	return Vec2{
		X: (float64(p.X) + 0.5) / m.scaleX,
		Y: (float64(p.Y) + 0.5) / m.scaleY,
	}
}
