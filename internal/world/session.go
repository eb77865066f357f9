package world

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/waypath/pkg/geom"
	"github.com/Faultbox/waypath/pkg/walkmap"
)

// ErrImageNotLoaded is returned by every session operation that needs an
// image before SetImage has been called.
var ErrImageNotLoaded = errors.New("no image loaded")

// Options configures a Session.
type Options struct {
	Policy walkmap.Policy
	// DeferRebuild postpones the grid rebuild after a color change until
	// the grid is next needed.
	DeferRebuild bool
	Logger       *zap.Logger
}

// Session is the engine state for one loaded image: the pixel source, the
// walkable colors, the waypoints and the derived walkability grid.
//
// All methods are safe for concurrent use. The grid is rebuilt into a new
// value and then published, so a grid returned by Grid is never modified.
type Session struct {
	mu   sync.Mutex
	log  *zap.Logger
	opts Options

	src       walkmap.Sampler
	mapper    geom.Mapper
	colors    *walkmap.ColorSet
	waypoints *Waypoints

	grid  atomic.Pointer[walkmap.Grid]
	dirty bool
	loads int
}

// NewSession creates a session with no image.
func NewSession(opts Options) (*Session, error) {
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		log:    log,
		opts:   opts,
		colors: walkmap.NewColorSet(),
	}, nil
}

// SetImage establishes grid space from src and resets the session: the
// walkable colors and waypoints are cleared and the grid is rebuilt.
// An invalid display size means the image is shown at native size.
func (s *Session) SetImage(src walkmap.Sampler, display geom.Size) error {
	if src == nil {
		return walkmap.ErrNoSource
	}
	size := src.Size()
	if !display.Valid() {
		display = size
	}
	mapper, err := geom.NewMapper(display, size)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.src = src
	s.mapper = mapper
	s.colors.Clear()
	s.waypoints = NewWaypoints(size)
	s.loads++
	s.log.Info("image loaded",
		zap.Stringer("grid", size),
		zap.Stringer("display", display),
		zap.Int("load", s.loads))
	return s.rebuildLocked()
}

// SetDisplaySize changes the display surface, e.g. after a window resize.
func (s *Session) SetDisplaySize(display geom.Size) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.src == nil {
		return ErrImageNotLoaded
	}
	mapper, err := geom.NewMapper(display, s.src.Size())
	if err != nil {
		return err
	}
	s.mapper = mapper
	return nil
}

// Loaded reports whether an image has been set.
func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src != nil
}

// Source returns the pixel source, or nil before SetImage.
func (s *Session) Source() walkmap.Sampler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src
}

// Mapper returns the current display/grid mapper.
func (s *Session) Mapper() (geom.Mapper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return geom.Mapper{}, ErrImageNotLoaded
	}
	return s.mapper, nil
}

// Policy returns the color policy.
func (s *Session) Policy() walkmap.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.Policy
}

// SetPolicy replaces the color policy and invalidates the grid.
func (s *Session) SetPolicy(p walkmap.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Policy = p
	if s.src == nil {
		return nil
	}
	return s.invalidateLocked()
}

// AddWalkableColor adds c to the walkable set. Returns false if it was
// already present, in which case the grid is left alone.
func (s *Session) AddWalkableColor(c walkmap.Color) (bool, error) {
	return s.mutateColors(func(set *walkmap.ColorSet) bool { return set.Add(c) })
}

// RemoveWalkableColor removes c from the walkable set. Returns false if it
// was not present.
func (s *Session) RemoveWalkableColor(c walkmap.Color) (bool, error) {
	return s.mutateColors(func(set *walkmap.ColorSet) bool { return set.Remove(c) })
}

// ToggleWalkableColor removes c if present and adds it otherwise.
// Returns true if c is walkable afterwards.
func (s *Session) ToggleWalkableColor(c walkmap.Color) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return false, ErrImageNotLoaded
	}
	added := s.colors.Toggle(c)
	s.log.Debug("walkable color toggled", zap.Stringer("color", c), zap.Bool("added", added))
	return added, s.invalidateLocked()
}

// ClearWalkableColors empties the walkable set.
func (s *Session) ClearWalkableColors() error {
	_, err := s.mutateColors(func(set *walkmap.ColorSet) bool {
		if set.Len() == 0 {
			return false
		}
		set.Clear()
		return true
	})
	return err
}

func (s *Session) mutateColors(fn func(*walkmap.ColorSet) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return false, ErrImageNotLoaded
	}
	if !fn(s.colors) {
		return false, nil
	}
	return true, s.invalidateLocked()
}

// WalkableColors returns the walkable colors in insertion order.
func (s *Session) WalkableColors() []walkmap.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.colors.Colors()
}

// SampleColorAt returns the source color of a grid cell.
func (s *Session) SampleColorAt(p geom.Point) (walkmap.Color, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return walkmap.Color{}, ErrImageNotLoaded
	}
	if err := s.src.Size().Check(p); err != nil {
		return walkmap.Color{}, err
	}
	return s.src.ColorAt(p), nil
}

// PickColor samples the color under a display point and toggles it in the
// walkable set. Returns the color and whether it is walkable afterwards.
func (s *Session) PickColor(v geom.Vec2) (walkmap.Color, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return walkmap.Color{}, false, ErrImageNotLoaded
	}
	p, err := s.mapper.ToGrid(v)
	if err != nil {
		return walkmap.Color{}, false, err
	}
	c := s.src.ColorAt(p)
	added := s.colors.Toggle(c)
	s.log.Debug("color picked",
		zap.Stringer("display", v),
		zap.Stringer("cell", p),
		zap.Stringer("color", c),
		zap.Bool("added", added))
	return c, added, s.invalidateLocked()
}

// AddWaypoint appends a grid-space waypoint.
func (s *Session) AddWaypoint(p geom.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return ErrImageNotLoaded
	}
	return s.waypoints.Add(p)
}

// AddWaypointAt maps a display point to grid space and appends it.
func (s *Session) AddWaypointAt(v geom.Vec2) (geom.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return geom.Point{}, ErrImageNotLoaded
	}
	p, err := s.mapper.ToGrid(v)
	if err != nil {
		return geom.Point{}, err
	}
	return p, s.waypoints.Add(p)
}

// ResetWaypoints clears the waypoints.
func (s *Session) ResetWaypoints() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return ErrImageNotLoaded
	}
	s.waypoints.Reset()
	return nil
}

// Waypoints returns the waypoints in travel order.
func (s *Session) Waypoints() ([]geom.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return nil, ErrImageNotLoaded
	}
	return s.waypoints.Points(), nil
}

// Grid returns the walkability grid for the current colors, rebuilding it
// first if a color change is pending.
func (s *Session) Grid() (*walkmap.Grid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return nil, ErrImageNotLoaded
	}
	if err := s.freshLocked(); err != nil {
		return nil, err
	}
	return s.grid.Load(), nil
}

// ComputeRoute builds the route through the current waypoints. The
// returned waypoints are the ones the route was built from: leg i runs
// from waypoints[i] to waypoints[(i+1)%len(waypoints)].
func (s *Session) ComputeRoute(closeLoop bool) (Route, []geom.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return nil, nil, ErrImageNotLoaded
	}
	if err := s.freshLocked(); err != nil {
		return nil, nil, err
	}

	start := time.Now()
	waypoints := s.waypoints.Points()
	route := BuildRoute(waypoints, s.grid.Load(), closeLoop)
	if ce := s.log.Check(zap.DebugLevel, "route computed"); ce != nil {
		ce.Write(
			zap.Int("waypoints", len(waypoints)),
			zap.Int("legs", len(route)),
			zap.Int("steps", route.Steps()),
			zap.Ints("missing", route.Missing()),
			zap.Duration("took", time.Since(start)))
	}
	return route, waypoints, nil
}

// MapDisplayToGrid converts a display point to a grid cell.
func (s *Session) MapDisplayToGrid(v geom.Vec2) (geom.Point, error) {
	m, err := s.Mapper()
	if err != nil {
		return geom.Point{}, err
	}
	return m.ToGrid(v)
}

// MapGridToDisplay converts a grid cell to the display position of its center.
func (s *Session) MapGridToDisplay(p geom.Point) (geom.Vec2, error) {
	m, err := s.Mapper()
	if err != nil {
		return geom.Vec2{}, err
	}
	return m.ToDisplay(p)
}

// Snapshot is a read-only view of the session for hosts.
type Snapshot struct {
	Loaded    bool            `json:"loaded"`
	Grid      geom.Size       `json:"grid"`
	Display   geom.Size       `json:"display"`
	Policy    walkmap.Policy  `json:"policy"`
	Colors    []walkmap.Color `json:"colors"`
	Waypoints []geom.Point    `json:"waypoints"`
	Walkable  int             `json:"walkable"`
	Stale     bool            `json:"stale"`
}

// Snapshot returns the current state without rebuilding the grid.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Loaded: s.src != nil,
		Policy: s.opts.Policy,
		Colors: s.colors.Colors(),
		Stale:  s.dirty,
	}
	if s.src == nil {
		return snap
	}
	snap.Grid = s.mapper.Grid()
	snap.Display = s.mapper.Display()
	snap.Waypoints = s.waypoints.Points()
	if g := s.grid.Load(); g != nil && !s.dirty {
		snap.Walkable = g.Count()
	}
	return snap
}

// invalidateLocked reacts to a change of colors or policy.
func (s *Session) invalidateLocked() error {
	s.dirty = true
	if s.opts.DeferRebuild {
		return nil
	}
	return s.rebuildLocked()
}

func (s *Session) freshLocked() error {
	if !s.dirty && s.grid.Load() != nil {
		return nil
	}
	return s.rebuildLocked()
}

func (s *Session) rebuildLocked() error {
	start := time.Now()
	grid, err := walkmap.Build(s.src, s.colors, s.opts.Policy)
	if err != nil {
		return fmt.Errorf("building walkability grid: %w", err)
	}
	s.grid.Store(grid)
	s.dirty = false
	// Count walks the whole grid; only pay for it when debugging.
	if ce := s.log.Check(zap.DebugLevel, "walkability grid rebuilt"); ce != nil {
		ce.Write(
			zap.Stringer("size", grid.Size()),
			zap.Int("colors", s.colors.Len()),
			zap.Int("walkable", grid.Count()),
			zap.Duration("took", time.Since(start)))
	}
	return nil
}
