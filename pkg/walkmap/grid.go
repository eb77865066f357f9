package walkmap

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/Faultbox/waypath/pkg/geom"
)

// ErrSizeMismatch is returned when two grids or a grid and an image do not
// have the same dimensions.
var ErrSizeMismatch = errors.New("size mismatch")

// Grid is a boolean occupancy grid in row-major order.
// A cell is true when the pixel at the same coordinate is walkable.
type Grid struct {
	size  geom.Size
	cells []bool
}

// NewGrid creates an all-blocked grid of the given size.
func NewGrid(size geom.Size) *Grid {
	if !size.Valid() {
		return &Grid{}
	}
	return &Grid{
		size:  size,
		cells: make([]bool, size.Area()),
	}
}

// ParseGrid builds a grid from text rows where '.' is walkable and any
// other byte is blocked. All rows must have the same length.
func ParseGrid(rows ...string) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty grid", geom.ErrInvalidSize)
	}
	g := NewGrid(geom.Size{Width: len(rows[0]), Height: len(rows)})
	for y, row := range rows {
		if len(row) != g.size.Width {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrSizeMismatch, y, len(row), g.size.Width)
		}
		for x := 0; x < len(row); x++ {
			g.cells[y*g.size.Width+x] = row[x] == '.'
		}
	}
	return g, nil
}

// Size returns the grid dimensions.
func (g *Grid) Size() geom.Size { return g.size }

// Width returns the number of columns.
func (g *Grid) Width() int { return g.size.Width }

// Height returns the number of rows.
func (g *Grid) Height() int { return g.size.Height }

// Walkable reports whether p is inside the grid and walkable.
func (g *Grid) Walkable(p geom.Point) bool {
	if g == nil || !g.size.Contains(p) {
		return false
	}
	return g.cells[g.size.Index(p)]
}

// IsWalkable is Walkable for separate coordinates.
func (g *Grid) IsWalkable(x, y int) bool {
	return g.Walkable(geom.Point{X: x, Y: y})
}

// WalkableIndex reports the state of the cell at flat index i.
// The caller guarantees 0 <= i < Area.
func (g *Grid) WalkableIndex(i int) bool {
	return g.cells[i]
}

// Set marks p walkable or blocked. Points outside the grid are ignored.
func (g *Grid) Set(p geom.Point, walkable bool) {
	if g.size.Contains(p) {
		g.cells[g.size.Index(p)] = walkable
	}
}

// Count returns the number of walkable cells.
func (g *Grid) Count() int {
	n := 0
	for _, c := range g.cells {
		if c {
			n++
		}
	}
	return n
}

// Equal reports whether both grids have the same size and cells.
func (g *Grid) Equal(other *Grid) bool {
	if g == nil || other == nil {
		return g == other
	}
	if g.size != other.size {
		return false
	}
	for i := range g.cells {
		if g.cells[i] != other.cells[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	out := &Grid{size: g.size, cells: make([]bool, len(g.cells))}
	copy(out.cells, g.cells)
	return out
}

// String renders the grid with '.' for walkable and '#' for blocked cells.
func (g *Grid) String() string {
	var sb strings.Builder
	for y := 0; y < g.size.Height; y++ {
		for x := 0; x < g.size.Width; x++ {
			if g.cells[y*g.size.Width+x] {
				sb.WriteByte('.')
			} else {
				sb.WriteByte('#')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Mask returns the grid as a grayscale image: walkable cells are white.
func (g *Grid) Mask() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.size.Width, g.size.Height))
	for i, c := range g.cells {
		if c {
			img.Pix[i] = 0xff
		}
	}
	return img
}
