package world

import (
	"github.com/Faultbox/waypath/pkg/geom"
)

// Waypoints is the ordered list of grid cells the route visits.
// Insertion order is travel order. Waypoints are bounds-checked but not
// checked for walkability; a waypoint on a blocked cell simply has no
// path to or from it.
type Waypoints struct {
	size   geom.Size
	points []geom.Point
}

// NewWaypoints creates an empty sequence for a grid of the given size.
func NewWaypoints(size geom.Size) *Waypoints {
	return &Waypoints{size: size}
}

// Add appends p. Points outside the grid are rejected with
// geom.ErrInvalidCoordinate.
func (w *Waypoints) Add(p geom.Point) error {
	if err := w.size.Check(p); err != nil {
		return err
	}
	w.points = append(w.points, p)
	return nil
}

// Reset removes all waypoints.
func (w *Waypoints) Reset() {
	w.points = w.points[:0]
}

// Len returns the number of waypoints.
func (w *Waypoints) Len() int {
	return len(w.points)
}

// Points returns a copy of the waypoints in order.
func (w *Waypoints) Points() []geom.Point {
	out := make([]geom.Point, len(w.points))
	copy(out, w.points)
	return out
}
