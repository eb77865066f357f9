// Package render draws the map image scaled to the display surface with the
// route, the waypoints and optionally the walkable area on top.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/Faultbox/waypath/internal/config"
	"github.com/Faultbox/waypath/internal/world"
	"github.com/Faultbox/waypath/pkg/geom"
	"github.com/Faultbox/waypath/pkg/walkmap"
)

// Style controls overlay colors and sizes. Sizes are in display pixels.
type Style struct {
	PathColor      walkmap.Color
	PathWidth      float64
	WaypointColor  walkmap.Color
	WaypointRadius float64
	WalkableTint   walkmap.Color
	ShowWalkable   bool
}

// DefaultStyle returns a blue 2px route line and red waypoint discs.
func DefaultStyle() Style {
	return Style{
		PathColor:      walkmap.RGB(0, 0, 255),
		PathWidth:      2,
		WaypointColor:  walkmap.RGB(255, 0, 0),
		WaypointRadius: 5,
		WalkableTint:   walkmap.Color{R: 0, G: 200, B: 80, A: 96},
	}
}

// StyleFromConfig parses the hex colors of cfg.
func StyleFromConfig(cfg config.RenderConfig) (Style, error) {
	path, err := walkmap.ParseHex(cfg.PathColor)
	if err != nil {
		return Style{}, fmt.Errorf("path color: %w", err)
	}
	wp, err := walkmap.ParseHex(cfg.WaypointColor)
	if err != nil {
		return Style{}, fmt.Errorf("waypoint color: %w", err)
	}
	tint, err := walkmap.ParseHex(cfg.WalkableTint)
	if err != nil {
		return Style{}, fmt.Errorf("walkable tint: %w", err)
	}
	return Style{
		PathColor:      path,
		PathWidth:      cfg.PathWidth,
		WaypointColor:  wp,
		WaypointRadius: cfg.WaypointRadius,
		WalkableTint:   tint,
		ShowWalkable:   cfg.ShowWalkable,
	}, nil
}

// Scene is everything drawn in one frame.
type Scene struct {
	Source    image.Image
	Mapper    geom.Mapper
	Grid      *walkmap.Grid // only needed with Style.ShowWalkable
	Route     world.Route
	Waypoints []geom.Point
}

// Draw renders scene at the mapper's display size.
func Draw(scene Scene, style Style) (*image.RGBA, error) {
	display := scene.Mapper.Display()
	if !display.Valid() {
		return nil, fmt.Errorf("%w: display %s", geom.ErrInvalidSize, display)
	}

	base := image.NewRGBA(image.Rect(0, 0, display.Width, display.Height))
	if scene.Source != nil {
		scaleInto(base, scene.Source, draw.Src)
	}
	if style.ShowWalkable && scene.Grid != nil {
		if scene.Grid.Size() != scene.Mapper.Grid() {
			return nil, fmt.Errorf("%w: grid %s, mapper %s", walkmap.ErrSizeMismatch, scene.Grid.Size(), scene.Mapper.Grid())
		}
		scaleInto(base, tintMask(scene.Grid, style.WalkableTint), draw.Over)
	}

	dc := gg.NewContextForRGBA(base)
	drawRoute(dc, scene.Mapper, scene.Route, style)
	drawWaypoints(dc, scene.Mapper, scene.Waypoints, style)
	return base, nil
}

// scaleInto scales src over the whole of dst. Upscaling keeps hard pixel
// edges so individual cells stay visible.
func scaleInto(dst *image.RGBA, src image.Image, op draw.Op) {
	var scaler draw.Interpolator = draw.ApproxBiLinear
	if dst.Bounds().Dx() >= src.Bounds().Dx() && dst.Bounds().Dy() >= src.Bounds().Dy() {
		scaler = draw.NearestNeighbor
	}
	scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), op, nil)
}

// tintMask returns a grid-sized image with tint on walkable cells.
func tintMask(grid *walkmap.Grid, tint walkmap.Color) *image.NRGBA {
	size := grid.Size()
	img := image.NewNRGBA(image.Rect(0, 0, size.Width, size.Height))
	c := color.NRGBA{R: tint.R, G: tint.G, B: tint.B, A: tint.A}
	for i := 0; i < size.Area(); i++ {
		if grid.WalkableIndex(i) {
			p := size.PointAt(i)
			img.SetNRGBA(p.X, p.Y, c)
		}
	}
	return img
}

func drawRoute(dc *gg.Context, m geom.Mapper, route world.Route, style Style) {
	dc.SetColor(style.PathColor)
	dc.SetLineWidth(style.PathWidth)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)
	for _, leg := range route {
		pts := m.Polyline(leg)
		if len(pts) < 2 {
			continue
		}
		dc.MoveTo(pts[0].X, pts[0].Y)
		for _, p := range pts[1:] {
			dc.LineTo(p.X, p.Y)
		}
		dc.Stroke()
	}
}

func drawWaypoints(dc *gg.Context, m geom.Mapper, waypoints []geom.Point, style Style) {
	if style.WaypointRadius <= 0 {
		return
	}
	dc.SetColor(style.WaypointColor)
	for _, p := range m.Polyline(waypoints) {
		dc.DrawCircle(p.X, p.Y, style.WaypointRadius)
		dc.Fill()
	}
}

// ScaledMask renders the walkability grid scaled to the display: white
// walkable, black blocked.
func ScaledMask(grid *walkmap.Grid, m geom.Mapper) *image.RGBA {
	display := m.Display()
	dst := image.NewRGBA(image.Rect(0, 0, display.Width, display.Height))
	scaleInto(dst, grid.Mask(), draw.Src)
	return dst
}
