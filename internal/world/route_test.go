package world

import (
	"testing"

	"github.com/Faultbox/waypath/pkg/geom"
)

func TestBuildRoute_Legs(t *testing.T) {
	grid := mockGrid(6, 6, nil)
	wps := []geom.Point{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 5, Y: 5}, {X: 0, Y: 5}}

	tests := []struct {
		name      string
		waypoints []geom.Point
		closeLoop bool
		wantLegs  int
		wantSteps int
	}{
		{"none", nil, true, 0, 0},
		{"single", wps[:1], true, 0, 0},
		{"pair open", wps[:2], false, 1, 5},
		{"pair closed", wps[:2], true, 2, 10},
		{"square open", wps, false, 3, 15},
		{"square closed", wps, true, 4, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route := BuildRoute(tt.waypoints, grid, tt.closeLoop)
			if len(route) != tt.wantLegs {
				t.Fatalf("legs = %d, want %d", len(route), tt.wantLegs)
			}
			if route.Steps() != tt.wantSteps {
				t.Errorf("steps = %d, want %d", route.Steps(), tt.wantSteps)
			}
			if !route.Complete() {
				t.Errorf("expected complete route, missing %v", route.Missing())
			}
			for i, leg := range route {
				from := tt.waypoints[i]
				to := tt.waypoints[(i+1)%len(tt.waypoints)]
				checkPath(t, grid, leg, from, to)
			}
		})
	}
}

func TestBuildRoute_MissingLeg(t *testing.T) {
	grid := mustParseGrid(t,
		"..#..",
		"..#..",
		"..#..",
	)
	wps := []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 2}, {X: 4, Y: 1}}

	route := BuildRoute(wps, grid, true)
	if len(route) != 3 {
		t.Fatalf("expected 3 legs, got %d", len(route))
	}
	if !route[0].Found() {
		t.Error("leg 0 should be found")
	}
	if route[1] != nil || route[2] != nil {
		t.Errorf("legs across the wall should be nil, got %v and %v", route[1], route[2])
	}
	missing := route.Missing()
	if len(missing) != 2 || missing[0] != 1 || missing[1] != 2 {
		t.Errorf("Missing() = %v, want [1 2]", missing)
	}
	if route.Complete() {
		t.Error("route with missing legs must not be complete")
	}
	if route.Steps() != route[0].Steps() {
		t.Errorf("Steps() should only count found legs, got %d", route.Steps())
	}
}

func TestBuildRoute_NilGrid(t *testing.T) {
	route := BuildRoute([]geom.Point{{X: 0, Y: 0}, {X: 1, Y: 0}}, nil, false)
	if len(route) != 1 || route[0] != nil {
		t.Errorf("expected one empty leg, got %v", route)
	}
}

func TestWaypoints(t *testing.T) {
	w := NewWaypoints(geom.Size{Width: 4, Height: 3})

	if err := w.Add(geom.Pt(3, 2)); err != nil {
		t.Fatalf("Add in bounds: %v", err)
	}
	if err := w.Add(geom.Pt(0, 0)); err != nil {
		t.Fatalf("Add in bounds: %v", err)
	}
	for _, p := range []geom.Point{{X: 4, Y: 0}, {X: 0, Y: 3}, {X: -1, Y: 1}} {
		if err := w.Add(p); err == nil {
			t.Errorf("Add(%v) should fail", p)
		}
	}
	if w.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", w.Len())
	}

	pts := w.Points()
	if pts[0] != geom.Pt(3, 2) || pts[1] != geom.Pt(0, 0) {
		t.Errorf("Points() = %v, insertion order lost", pts)
	}
	pts[0] = geom.Pt(1, 1)
	if w.Points()[0] != geom.Pt(3, 2) {
		t.Error("Points() must return a copy")
	}

	w.Reset()
	if w.Len() != 0 {
		t.Errorf("Len() after Reset = %d", w.Len())
	}
}
