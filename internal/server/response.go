package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Faultbox/waypath/internal/imageio"
	"github.com/Faultbox/waypath/internal/world"
	"github.com/Faultbox/waypath/pkg/geom"
	"github.com/Faultbox/waypath/pkg/walkmap"
)

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

// writeError answers with the status matching err.
func writeError(w http.ResponseWriter, err error) {
	errorJSON(w, statusFor(err), err.Error())
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, world.ErrImageNotLoaded):
		return http.StatusConflict
	case errors.Is(err, geom.ErrInvalidCoordinate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, world.ErrTooManySessions):
		return http.StatusServiceUnavailable
	case errors.Is(err, imageio.ErrTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, walkmap.ErrInvalidColor),
		errors.Is(err, walkmap.ErrUnknownMetric),
		errors.Is(err, walkmap.ErrInvalidThreshold),
		errors.Is(err, geom.ErrInvalidSize),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

var errBadRequest = errors.New("bad request")

func decodeJSONStrict(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

// colorView is a color as shown to clients.
type colorView struct {
	walkmap.Color
	Hex string `json:"hex"`
	CSS string `json:"css"`
}

func viewColor(c walkmap.Color) colorView {
	return colorView{Color: c, Hex: c.Hex(), CSS: c.CSS()}
}

func viewColors(colors []walkmap.Color) []colorView {
	out := make([]colorView, len(colors))
	for i, c := range colors {
		out[i] = viewColor(c)
	}
	return out
}

type legView struct {
	From  geom.Point   `json:"from"`
	To    geom.Point   `json:"to"`
	Found bool         `json:"found"`
	Steps int          `json:"steps"`
	Path  []geom.Point `json:"path"`
}

type routeView struct {
	Legs     []legView `json:"legs"`
	Steps    int       `json:"steps"`
	Missing  []int     `json:"missing"`
	Complete bool      `json:"complete"`
}

func viewRoute(route world.Route, waypoints []geom.Point) routeView {
	v := routeView{
		Legs:     make([]legView, len(route)),
		Steps:    route.Steps(),
		Missing:  route.Missing(),
		Complete: route.Complete(),
	}
	if v.Missing == nil {
		v.Missing = []int{}
	}
	for i, leg := range route {
		path := []geom.Point(leg)
		if path == nil {
			path = []geom.Point{}
		}
		v.Legs[i] = legView{
			From:  waypoints[i],
			To:    waypoints[(i+1)%len(waypoints)],
			Found: leg.Found(),
			Steps: leg.Steps(),
			Path:  path,
		}
	}
	return v
}

type sessionView struct {
	ID string `json:"id"`
	world.Snapshot
	Colors []colorView `json:"colors"`
}

func viewSession(id string, snap world.Snapshot) sessionView {
	if snap.Waypoints == nil {
		snap.Waypoints = []geom.Point{}
	}
	return sessionView{ID: id, Snapshot: snap, Colors: viewColors(snap.Colors)}
}
