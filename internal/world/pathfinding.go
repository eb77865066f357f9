// Package world holds the routing engine: waypoints, the grid path solver,
// route assembly and the per-image session that ties them to a
// walkability grid.
package world

import (
	"github.com/Faultbox/waypath/pkg/geom"
	"github.com/Faultbox/waypath/pkg/walkmap"
)

// Path is an ordered sequence of grid cells from a start to an end, each
// one 4-connected step from the previous. A nil Path means no path exists.
type Path []geom.Point

// Steps returns the number of moves in the path.
func (p Path) Steps() int {
	if len(p) == 0 {
		return 0
	}
	return len(p) - 1
}

// Found reports whether the path is non-empty.
func (p Path) Found() bool {
	return len(p) > 0
}

// directions is the fixed expansion order: +x, -x, +y, -y.
// Among equal-length shortest paths the result depends on this order.
var directions = [4]geom.Point{
	{X: 1, Y: 0},
	{X: -1, Y: 0},
	{X: 0, Y: 1},
	{X: 0, Y: -1},
}

// PathFinder runs breadth-first searches on a walkability grid.
// Its buffers are reused between searches, so a PathFinder must not be
// shared between goroutines.
type PathFinder struct {
	grid *walkmap.Grid
	size geom.Size

	// seen[i] == epoch marks cell i visited in the current search, which
	// avoids clearing the buffers between searches.
	seen   []uint32
	parent []int32
	queue  []int32
	epoch  uint32
}

// NewPathFinder creates a new pathfinder. Returns nil for a nil grid.
func NewPathFinder(grid *walkmap.Grid) *PathFinder {
	if grid == nil || !grid.Size().Valid() {
		return nil
	}
	size := grid.Size()
	return &PathFinder{
		grid:   grid,
		size:   size,
		seen:   make([]uint32, size.Area()),
		parent: make([]int32, size.Area()),
	}
}

// Grid returns the grid the pathfinder searches.
func (pf *PathFinder) Grid() *walkmap.Grid {
	if pf == nil {
		return nil
	}
	return pf.grid
}

// FindPath returns the shortest 4-connected path from start to end, both
// inclusive, or nil if end cannot be reached.
//
// The start cell is expanded whether or not it is walkable; every other
// cell on the path, end included, must be walkable. Points outside the grid
// yield nil.
func (pf *PathFinder) FindPath(start, end geom.Point) Path {
	if pf == nil {
		return nil
	}
	if !pf.size.Contains(start) || !pf.size.Contains(end) {
		return nil
	}
	if start == end {
		return Path{start}
	}

	pf.nextEpoch()

	width := pf.size.Width
	s := int32(pf.size.Index(start))
	e := int32(pf.size.Index(end))

	pf.seen[s] = pf.epoch
	pf.parent[s] = s
	pf.queue = append(pf.queue[:0], s)

	for head := 0; head < len(pf.queue); head++ {
		cur := pf.queue[head]
		if cur == e {
			return pf.reconstructPath(s, e)
		}

		x, y := int(cur)%width, int(cur)/width
		for _, d := range directions {
			nx, ny := x+d.X, y+d.Y
			if nx < 0 || nx >= width || ny < 0 || ny >= pf.size.Height {
				continue
			}
			next := int32(ny*width + nx)
			if pf.seen[next] == pf.epoch || !pf.grid.WalkableIndex(int(next)) {
				continue
			}
			pf.seen[next] = pf.epoch
			pf.parent[next] = cur
			pf.queue = append(pf.queue, next)
		}
	}

	return nil
}

// Distance returns the number of steps on the shortest path, or -1.
func (pf *PathFinder) Distance(start, end geom.Point) int {
	path := pf.FindPath(start, end)
	if path == nil {
		return -1
	}
	return path.Steps()
}

// IsWalkable checks if a cell is walkable.
func (pf *PathFinder) IsWalkable(p geom.Point) bool {
	if pf == nil {
		return false
	}
	return pf.grid.Walkable(p)
}

// FindPath is a one-shot search on grid.
func FindPath(grid *walkmap.Grid, start, end geom.Point) Path {
	return NewPathFinder(grid).FindPath(start, end)
}

func (pf *PathFinder) nextEpoch() {
	pf.epoch++
	if pf.epoch == 0 {
		clear(pf.seen)
		pf.epoch = 1
	}
}

// reconstructPath follows parent links from e back to s and reverses them.
func (pf *PathFinder) reconstructPath(s, e int32) Path {
	n := 1
	for i := e; i != s; i = pf.parent[i] {
		n++
	}
	path := make(Path, n)
	for i, k := e, n-1; ; i, k = pf.parent[i], k-1 {
		path[k] = pf.size.PointAt(int(i))
		if i == s {
			break
		}
	}
	return path
}
