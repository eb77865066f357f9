package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Faultbox/waypath/internal/world"
	"github.com/Faultbox/waypath/pkg/geom"
)

// parsePoint parses "x,y".
func parsePoint(s string) (geom.Vec2, error) {
	xs, ys, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return geom.Vec2{}, fmt.Errorf("invalid point %q: want x,y", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return geom.Vec2{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return geom.Vec2{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	return geom.Vec2{X: x, Y: y}, nil
}

// parsePoints parses "x,y;x,y;...". Empty items are ignored.
func parsePoints(s string) ([]geom.Vec2, error) {
	var out []geom.Vec2
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		v, err := parsePoint(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// toGrid converts v to a grid cell. In grid space v must be integral.
func toGrid(sess *world.Session, v geom.Vec2, space string) (geom.Point, error) {
	switch space {
	case "grid":
		if v.X != float64(int(v.X)) || v.Y != float64(int(v.Y)) {
			return geom.Point{}, fmt.Errorf("grid point %s is not integral", v)
		}
		return geom.Pt(int(v.X), int(v.Y)), nil
	case "display":
		return sess.MapDisplayToGrid(v)
	}
	return geom.Point{}, fmt.Errorf("unknown space %q", space)
}

func addWaypoints(sess *world.Session, points []geom.Vec2, space string) error {
	for _, v := range points {
		p, err := toGrid(sess, v, space)
		if err != nil {
			return err
		}
		if err := sess.AddWaypoint(p); err != nil {
			return fmt.Errorf("waypoint %s: %w", v, err)
		}
	}
	return nil
}

type legSummary struct {
	From  geom.Point   `json:"from"`
	To    geom.Point   `json:"to"`
	Steps int          `json:"steps"`
	Path  []geom.Point `json:"path"`
}

type summary struct {
	Waypoints []geom.Point `json:"waypoints"`
	Legs      []legSummary `json:"legs"`
	Steps     int          `json:"steps"`
	Missing   []int        `json:"missing,omitempty"`
}

// routeSummary describes route for JSON output. Missing legs have a nil
// path and -1 steps.
func routeSummary(route world.Route, waypoints []geom.Point) summary {
	s := summary{
		Waypoints: waypoints,
		Legs:      make([]legSummary, len(route)),
		Steps:     route.Steps(),
		Missing:   route.Missing(),
	}
	for i, leg := range route {
		steps := leg.Steps()
		if !leg.Found() {
			steps = -1
		}
		s.Legs[i] = legSummary{
			From:  waypoints[i],
			To:    waypoints[(i+1)%len(waypoints)],
			Steps: steps,
			Path:  leg,
		}
	}
	return s
}

func printRoute(w io.Writer, route world.Route, waypoints []geom.Point) {
	if len(route) == 0 {
		fmt.Fprintf(w, "%d waypoint(s), nothing to route\n", len(waypoints))
		return
	}
	for i, leg := range route {
		from, to := waypoints[i], waypoints[(i+1)%len(waypoints)]
		if leg.Found() {
			fmt.Fprintf(w, "leg %d: %s -> %s: %d steps\n", i, from, to, leg.Steps())
		} else {
			fmt.Fprintf(w, "leg %d: %s -> %s: no path\n", i, from, to)
		}
	}
	fmt.Fprintf(w, "total: %d steps", route.Steps())
	if missing := route.Missing(); len(missing) > 0 {
		fmt.Fprintf(w, ", %d leg(s) without path", len(missing))
	}
	fmt.Fprintln(w)
}
