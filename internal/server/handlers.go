package server

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/waypath/internal/imageio"
	"github.com/Faultbox/waypath/internal/render"
	"github.com/Faultbox/waypath/internal/world"
	"github.com/Faultbox/waypath/pkg/geom"
	"github.com/Faultbox/waypath/pkg/walkmap"
)

type ctxKey int

const (
	ctxSession ctxKey = iota
	ctxSessionID
)

// sessionCtx resolves {id} and stores the session in the request context.
func (s *Server) sessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			errorJSON(w, http.StatusBadRequest, "invalid session id")
			return
		}
		sess, ok := s.sessions.Get(id)
		if !ok {
			errorJSON(w, http.StatusNotFound, "session not found")
			return
		}
		ctx := context.WithValue(r.Context(), ctxSession, sess)
		ctx = context.WithValue(ctx, ctxSessionID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) (*world.Session, uuid.UUID) {
	sess, _ := r.Context().Value(ctxSession).(*world.Session)
	id, _ := r.Context().Value(ctxSessionID).(uuid.UUID)
	return sess, id
}

// health GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	total, loaded := 0, 0
	s.sessions.Range(func(_ uuid.UUID, sess *world.Session) bool {
		total++
		if sess.Loaded() {
			loaded++
		}
		return true
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": total,
		"loaded":   loaded,
	})
}

// createSession POST /sessions?width=N
// The request body is the map image in any supported format.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}
	img, format, err := imageio.Decode(r.Body, maxImagePixels)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		s.log.Warn("image upload rejected", zap.Error(err))
		errorJSON(w, status, err.Error())
		return
	}

	display := s.cfg.Display
	if v := r.URL.Query().Get("width"); v != "" {
		width, err := strconv.Atoi(v)
		if err != nil || width <= 0 {
			errorJSON(w, http.StatusBadRequest, "invalid width")
			return
		}
		display.Width = width
	}

	id, sess, err := s.sessions.Create()
	if err != nil {
		writeError(w, err)
		return
	}
	src := walkmap.NewImageSampler(img)
	if err := sess.SetImage(src, display.Fit(src.Size())); err != nil {
		s.sessions.Delete(id)
		writeError(w, err)
		return
	}
	s.log.Info("session created",
		zap.String("session", id.String()),
		zap.String("format", format),
		zap.Stringer("size", src.Size()))
	writeJSON(w, http.StatusCreated, viewSession(id.String(), sess.Snapshot()))
}

// getSession GET /sessions/{id}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, id := sessionFrom(r)
	writeJSON(w, http.StatusOK, viewSession(id.String(), sess.Snapshot()))
}

// deleteSession DELETE /sessions/{id}
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	_, id := sessionFrom(r)
	s.sessions.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

// setPolicy PUT /sessions/{id}/policy {"metric":"lab","threshold":10}
func (s *Server) setPolicy(w http.ResponseWriter, r *http.Request) {
	sess, id := sessionFrom(r)
	var p walkmap.Policy
	if err := decodeJSONStrict(r, &p); err != nil {
		writeError(w, err)
		return
	}
	if p.Threshold == 0 {
		p.Threshold = walkmap.DefaultThreshold(p.Metric)
	}
	if err := sess.SetPolicy(p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(id.String(), sess.Snapshot()))
}

type displayRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// setDisplay PUT /sessions/{id}/display {"width":800}
// A missing height follows the image aspect ratio.
func (s *Server) setDisplay(w http.ResponseWriter, r *http.Request) {
	sess, id := sessionFrom(r)
	var req displayRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}
	m, err := sess.Mapper()
	if err != nil {
		writeError(w, err)
		return
	}
	size := geom.Size{Width: req.Width, Height: req.Height}
	if req.Height == 0 {
		size = geom.FitWidth(m.Grid(), req.Width)
	}
	if err := sess.SetDisplaySize(size); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(id.String(), sess.Snapshot()))
}

// listColors GET /sessions/{id}/colors
func (s *Server) listColors(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r)
	writeJSON(w, http.StatusOK, map[string]any{"colors": viewColors(sess.WalkableColors())})
}

type colorRequest struct {
	Color string `json:"color"`
	// Mode is add (default), remove or toggle.
	Mode string `json:"mode"`
}

// changeColor POST /sessions/{id}/colors {"color":"#rrggbb","mode":"toggle"}
func (s *Server) changeColor(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r)
	var req colorRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := walkmap.ParseHex(req.Color)
	if err != nil {
		writeError(w, err)
		return
	}

	var changed, walkable bool
	switch req.Mode {
	case "", "add":
		changed, err = sess.AddWalkableColor(c)
		walkable = true
	case "remove":
		changed, err = sess.RemoveWalkableColor(c)
	case "toggle":
		walkable, err = sess.ToggleWalkableColor(c)
		changed = true
	default:
		errorJSON(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"color":    viewColor(c),
		"walkable": walkable,
		"changed":  changed,
		"colors":   viewColors(sess.WalkableColors()),
	})
}

// clearColors DELETE /sessions/{id}/colors
func (s *Server) clearColors(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r)
	if err := sess.ClearWalkableColors(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pickColor POST /sessions/{id}/colors/pick {"x":12.5,"y":40}
// The point is in display space.
func (s *Server) pickColor(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r)
	var v geom.Vec2
	if err := decodeJSONStrict(r, &v); err != nil {
		writeError(w, err)
		return
	}
	res, err := pick(sess, v)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type pickResult struct {
	Color    colorView   `json:"color"`
	Walkable bool        `json:"walkable"`
	Colors   []colorView `json:"colors"`
}

func pick(sess *world.Session, v geom.Vec2) (pickResult, error) {
	c, walkable, err := sess.PickColor(v)
	if err != nil {
		return pickResult{}, err
	}
	return pickResult{
		Color:    viewColor(c),
		Walkable: walkable,
		Colors:   viewColors(sess.WalkableColors()),
	}, nil
}

// listWaypoints GET /sessions/{id}/waypoints
func (s *Server) listWaypoints(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r)
	wps, err := sess.Waypoints()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"waypoints": wps})
}

type waypointRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	// Space is display (default) or grid.
	Space string `json:"space"`
}

// addWaypoint POST /sessions/{id}/waypoints {"x":10,"y":20,"space":"grid"}
func (s *Server) addWaypoint(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r)
	var req waypointRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := addWaypoint(sess, req)
	if err != nil {
		writeError(w, err)
		return
	}
	wps, _ := sess.Waypoints()
	writeJSON(w, http.StatusCreated, map[string]any{"waypoint": p, "waypoints": wps})
}

func addWaypoint(sess *world.Session, req waypointRequest) (geom.Point, error) {
	switch req.Space {
	case "", "display":
		return sess.AddWaypointAt(geom.Vec2{X: req.X, Y: req.Y})
	case "grid":
		if req.X != float64(int(req.X)) || req.Y != float64(int(req.Y)) {
			return geom.Point{}, fmt.Errorf("%w: grid coordinates must be integers", errBadRequest)
		}
		p := geom.Pt(int(req.X), int(req.Y))
		return p, sess.AddWaypoint(p)
	}
	return geom.Point{}, fmt.Errorf("%w: unknown space %q", errBadRequest, req.Space)
}

// resetWaypoints DELETE /sessions/{id}/waypoints
func (s *Server) resetWaypoints(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r)
	if err := sess.ResetWaypoints(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// closeLoop reads ?close=, defaulting to the engine setting.
func (s *Server) closeLoop(r *http.Request) (bool, error) {
	v := r.URL.Query().Get("close")
	if v == "" {
		return s.cfg.Engine.CloseLoop, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: close=%q", errBadRequest, v)
	}
	return b, nil
}

func (s *Server) computeRoute(sess *world.Session, closeLoop bool) (routeView, error) {
	route, wps, err := sess.ComputeRoute(closeLoop)
	if err != nil {
		return routeView{}, err
	}
	return viewRoute(route, wps), nil
}

// getRoute GET /sessions/{id}/route?close=true
func (s *Server) getRoute(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r)
	closeLoop, err := s.closeLoop(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := s.computeRoute(sess, closeLoop)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// routeImage GET /sessions/{id}/route.png?close=true&walkable=true
func (s *Server) routeImage(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r)
	closeLoop, err := s.closeLoop(r)
	if err != nil {
		writeError(w, err)
		return
	}
	style := s.style
	if v := r.URL.Query().Get("walkable"); v != "" {
		style.ShowWalkable, _ = strconv.ParseBool(v)
	}

	img, err := drawSession(sess, closeLoop, style)
	if err != nil {
		writeError(w, err)
		return
	}
	writePNG(w, img, s.log)
}

// drawSession renders the current route of sess.
func drawSession(sess *world.Session, closeLoop bool, style render.Style) (image.Image, error) {
	route, wps, err := sess.ComputeRoute(closeLoop)
	if err != nil {
		return nil, err
	}
	m, _ := sess.Mapper()
	grid, _ := sess.Grid()
	src, _ := sess.Source().(*walkmap.ImageSampler)

	scene := render.Scene{Mapper: m, Grid: grid, Route: route, Waypoints: wps}
	if src != nil {
		scene.Source = src.Image()
	}
	return render.Draw(scene, style)
}

// maskImage GET /sessions/{id}/mask.png?scaled=true
func (s *Server) maskImage(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r)
	grid, err := sess.Grid()
	if err != nil {
		writeError(w, err)
		return
	}
	var img image.Image = grid.Mask()
	if scaled, _ := strconv.ParseBool(r.URL.Query().Get("scaled")); scaled {
		m, err := sess.Mapper()
		if err != nil {
			writeError(w, err)
			return
		}
		img = render.ScaledMask(grid, m)
	}
	writePNG(w, img, s.log)
}

func writePNG(w http.ResponseWriter, img image.Image, log *zap.Logger) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := imageio.EncodePNG(w, img); err != nil {
		log.Error("writing png", zap.Error(err))
	}
}
