package world

import (
	"github.com/Faultbox/waypath/pkg/geom"
	"github.com/Faultbox/waypath/pkg/walkmap"
)

// Route is one Path per consecutive waypoint pair, in waypoint order.
// Unreachable legs are kept as nil entries so indices line up with the
// waypoints; renderers skip them.
type Route []Path

// BuildRoute computes the path between each consecutive pair of waypoints.
// With closeLoop and at least two waypoints, a final leg from the last
// waypoint back to the first is appended. Fewer than two waypoints yields
// an empty route.
func BuildRoute(waypoints []geom.Point, grid *walkmap.Grid, closeLoop bool) Route {
	if len(waypoints) < 2 {
		return Route{}
	}

	n := len(waypoints) - 1
	if closeLoop {
		n++
	}
	route := make(Route, 0, n)

	pf := NewPathFinder(grid)
	for i := 0; i+1 < len(waypoints); i++ {
		route = append(route, pf.FindPath(waypoints[i], waypoints[i+1]))
	}
	if closeLoop {
		route = append(route, pf.FindPath(waypoints[len(waypoints)-1], waypoints[0]))
	}
	return route
}

// Steps returns the total number of moves over all found legs.
func (r Route) Steps() int {
	total := 0
	for _, p := range r {
		total += p.Steps()
	}
	return total
}

// Missing returns the indices of legs with no path.
func (r Route) Missing() []int {
	var out []int
	for i, p := range r {
		if !p.Found() {
			out = append(out, i)
		}
	}
	return out
}

// Complete reports whether every leg has a path.
func (r Route) Complete() bool {
	for _, p := range r {
		if !p.Found() {
			return false
		}
	}
	return true
}
