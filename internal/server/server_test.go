package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Faultbox/waypath/internal/config"
	"github.com/Faultbox/waypath/internal/imageio"
	"github.com/Faultbox/waypath/internal/world"
	"github.com/Faultbox/waypath/pkg/geom"
	"github.com/Faultbox/waypath/pkg/walkmap"
)

// mapPNG encodes rows as a PNG: '.' white floor, '#' black wall.
func mapPNG(t *testing.T, rows ...string) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, len(rows[0]), len(rows)))
	for y, row := range rows {
		for x, ch := range row {
			c := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			if ch == '#' {
				c = color.NRGBA{A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

var testMap = []string{
	"..#..",
	"..#..",
	".....",
	"..#..",
	"..#..",
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Display.Width = 50
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case []byte:
		rd = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
}

type sessionResp struct {
	ID        string       `json:"id"`
	Loaded    bool         `json:"loaded"`
	Grid      geom.Size    `json:"grid"`
	Display   geom.Size    `json:"display"`
	Waypoints []geom.Point `json:"waypoints"`
	Walkable  int          `json:"walkable"`
	Colors    []struct {
		Hex string `json:"hex"`
		CSS string `json:"css"`
	} `json:"colors"`
}

func createSession(t *testing.T, base string) sessionResp {
	t.Helper()
	resp := do(t, "POST", base+"/v1/sessions", mapPNG(t, testMap...))
	expectStatus(t, resp, http.StatusCreated)
	return decode[sessionResp](t, resp)
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp := do(t, "GET", ts.URL+"/v1/health", nil)
	expectStatus(t, resp, http.StatusOK)
	body := decode[map[string]any](t, resp)
	if body["status"] != "ok" || body["sessions"] != 0.0 {
		t.Errorf("unexpected body %v", body)
	}

	createSession(t, ts.URL)
	resp = do(t, "GET", ts.URL+"/v1/health", nil)
	body = decode[map[string]any](t, resp)
	if body["sessions"] != 1.0 || body["loaded"] != 1.0 {
		t.Errorf("unexpected body after create %v", body)
	}
}

func TestCreateSession(t *testing.T) {
	s, ts := newTestServer(t, nil)

	sess := createSession(t, ts.URL)
	if !sess.Loaded || sess.ID == "" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if sess.Grid != (geom.Size{Width: 5, Height: 5}) {
		t.Errorf("grid = %v", sess.Grid)
	}
	if sess.Display != (geom.Size{Width: 50, Height: 50}) {
		t.Errorf("display = %v", sess.Display)
	}
	if s.Sessions().Len() != 1 {
		t.Errorf("manager has %d sessions", s.Sessions().Len())
	}

	resp := do(t, "GET", ts.URL+"/v1/sessions/"+sess.ID, nil)
	expectStatus(t, resp, http.StatusOK)

	resp = do(t, "DELETE", ts.URL+"/v1/sessions/"+sess.ID, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp = do(t, "GET", ts.URL+"/v1/sessions/"+sess.ID, nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestCreateSession_Errors(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) {
		c.Server.MaxSessions = 1
	})

	resp := do(t, "POST", ts.URL+"/v1/sessions", []byte("not an image"))
	expectStatus(t, resp, http.StatusBadRequest)

	resp = do(t, "POST", ts.URL+"/v1/sessions?width=-3", mapPNG(t, testMap...))
	expectStatus(t, resp, http.StatusBadRequest)

	createSession(t, ts.URL)
	resp = do(t, "POST", ts.URL+"/v1/sessions", mapPNG(t, testMap...))
	expectStatus(t, resp, http.StatusServiceUnavailable)

	resp = do(t, "GET", ts.URL+"/v1/sessions/not-a-uuid", nil)
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestColorsAndRoute(t *testing.T) {
	_, ts := newTestServer(t, nil)
	sess := createSession(t, ts.URL)
	base := ts.URL + "/v1/sessions/" + sess.ID

	resp := do(t, "POST", base+"/colors", map[string]string{"color": "#ffffff"})
	expectStatus(t, resp, http.StatusOK)

	resp = do(t, "POST", base+"/colors", map[string]string{"color": "white"})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = do(t, "POST", base+"/colors", map[string]string{"color": "#fff", "mode": "sideways"})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = do(t, "GET", base+"/colors", nil)
	colors := decode[struct {
		Colors []struct {
			Hex string `json:"hex"`
			CSS string `json:"css"`
		} `json:"colors"`
	}](t, resp)
	if len(colors.Colors) != 1 || colors.Colors[0].Hex != "#ffffff" || colors.Colors[0].CSS != "rgba(255, 255, 255, 255)" {
		t.Errorf("colors = %+v", colors.Colors)
	}

	for _, p := range []geom.Point{{X: 0, Y: 0}, {X: 4, Y: 4}} {
		resp = do(t, "POST", base+"/waypoints", map[string]any{"x": p.X, "y": p.Y, "space": "grid"})
		expectStatus(t, resp, http.StatusCreated)
	}
	// Display space: (45, 5) on the 50x50 display is cell (4,0).
	resp = do(t, "POST", base+"/waypoints", map[string]any{"x": 45, "y": 5})
	expectStatus(t, resp, http.StatusCreated)
	added := decode[struct {
		Waypoint  geom.Point   `json:"waypoint"`
		Waypoints []geom.Point `json:"waypoints"`
	}](t, resp)
	if added.Waypoint != geom.Pt(4, 0) || len(added.Waypoints) != 3 {
		t.Errorf("unexpected waypoint response %+v", added)
	}

	resp = do(t, "POST", base+"/waypoints", map[string]any{"x": 9, "y": 0, "space": "grid"})
	expectStatus(t, resp, http.StatusUnprocessableEntity)

	resp = do(t, "GET", base+"/route?close=false", nil)
	expectStatus(t, resp, http.StatusOK)
	route := decode[routeView](t, resp)
	if len(route.Legs) != 2 || !route.Complete {
		t.Fatalf("unexpected route %+v", route)
	}
	if route.Legs[0].Steps != 8 || route.Legs[1].Steps != 4 {
		t.Errorf("leg steps = %d, %d", route.Legs[0].Steps, route.Legs[1].Steps)
	}
	if route.Steps != 12 {
		t.Errorf("total steps = %d", route.Steps)
	}

	resp = do(t, "GET", base+"/route", nil)
	route = decode[routeView](t, resp)
	if len(route.Legs) != 3 {
		t.Errorf("closed route should have 3 legs, got %d", len(route.Legs))
	}

	resp = do(t, "GET", base+"/route?close=maybe", nil)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = do(t, "DELETE", base+"/colors", nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp = do(t, "GET", base+"/route?close=false", nil)
	route = decode[routeView](t, resp)
	if route.Complete || len(route.Missing) != 2 {
		t.Errorf("route without colors should miss every leg: %+v", route)
	}

	resp = do(t, "DELETE", base+"/waypoints", nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp = do(t, "GET", base+"/waypoints", nil)
	wps := decode[struct {
		Waypoints []geom.Point `json:"waypoints"`
	}](t, resp)
	if len(wps.Waypoints) != 0 {
		t.Errorf("waypoints after reset = %v", wps.Waypoints)
	}
}

func TestPickColor(t *testing.T) {
	_, ts := newTestServer(t, nil)
	sess := createSession(t, ts.URL)
	base := ts.URL + "/v1/sessions/" + sess.ID

	// (25, 5) is cell (2,0), a wall.
	resp := do(t, "POST", base+"/colors/pick", geom.Vec2{X: 25, Y: 5})
	expectStatus(t, resp, http.StatusOK)
	res := decode[struct {
		Color struct {
			Hex string `json:"hex"`
		} `json:"color"`
		Walkable bool `json:"walkable"`
	}](t, resp)
	if res.Color.Hex != "#000000" || !res.Walkable {
		t.Errorf("pick = %+v", res)
	}

	resp = do(t, "POST", base+"/colors/pick", geom.Vec2{X: 25, Y: 5})
	res = decode[struct {
		Color struct {
			Hex string `json:"hex"`
		} `json:"color"`
		Walkable bool `json:"walkable"`
	}](t, resp)
	if res.Walkable {
		t.Error("second pick should toggle the color off")
	}

	resp = do(t, "POST", base+"/colors/pick", geom.Vec2{X: 50, Y: 5})
	expectStatus(t, resp, http.StatusUnprocessableEntity)

	resp = do(t, "POST", base+"/colors/pick", map[string]any{"x": 1, "z": 2})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestSetPolicy(t *testing.T) {
	_, ts := newTestServer(t, nil)
	sess := createSession(t, ts.URL)
	base := ts.URL + "/v1/sessions/" + sess.ID

	resp := do(t, "PUT", base+"/policy", map[string]any{"metric": "lab"})
	expectStatus(t, resp, http.StatusOK)
	body := decode[struct {
		Policy walkmap.Policy `json:"policy"`
	}](t, resp)
	if body.Policy.Metric != walkmap.MetricLab || body.Policy.Threshold != walkmap.DefaultLabThreshold {
		t.Errorf("policy = %+v", body.Policy)
	}

	resp = do(t, "PUT", base+"/policy", map[string]any{"metric": "hsv", "threshold": 5})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestSetDisplay(t *testing.T) {
	_, ts := newTestServer(t, nil)
	sess := createSession(t, ts.URL)
	base := ts.URL + "/v1/sessions/" + sess.ID

	tests := []struct {
		body any
		want geom.Size
	}{
		{map[string]int{"width": 100}, geom.Size{Width: 100, Height: 100}},
		{map[string]int{"width": 10, "height": 20}, geom.Size{Width: 10, Height: 20}},
	}
	for _, tt := range tests {
		resp := do(t, "PUT", base+"/display", tt.body)
		expectStatus(t, resp, http.StatusOK)
		body := decode[struct {
			Display geom.Size `json:"display"`
		}](t, resp)
		if body.Display != tt.want {
			t.Errorf("display = %v, want %v", body.Display, tt.want)
		}
	}

	resp := do(t, "PUT", base+"/display", map[string]int{"width": 0})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestRouteWhileWaypointsChange(t *testing.T) {
	s, ts := newTestServer(t, nil)
	created := createSession(t, ts.URL)
	sess, ok := s.Sessions().Get(uuid.MustParse(created.ID))
	if !ok {
		t.Fatal("session not registered")
	}
	sess.AddWalkableColor(walkmap.RGB(255, 255, 255))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			sess.AddWaypoint(geom.Pt(0, 0))
			sess.AddWaypoint(geom.Pt(4, 0))
			sess.AddWaypoint(geom.Pt(4, 4))
			sess.ResetWaypoints()
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		view, err := s.computeRoute(sess, true)
		if err != nil {
			t.Fatal(err)
		}
		for i, leg := range view.Legs {
			if leg.Found && (leg.Path[0] != leg.From || leg.Path[len(leg.Path)-1] != leg.To) {
				t.Fatalf("leg %d path %v does not join %v and %v", i, leg.Path, leg.From, leg.To)
			}
		}
		if _, err := drawSession(sess, true, s.style); err != nil {
			t.Fatal(err)
		}
	}
}

func TestImages(t *testing.T) {
	_, ts := newTestServer(t, nil)
	sess := createSession(t, ts.URL)
	base := ts.URL + "/v1/sessions/" + sess.ID

	do(t, "POST", base+"/colors", map[string]string{"color": "#ffffff"})
	do(t, "POST", base+"/waypoints", map[string]any{"x": 0, "y": 0, "space": "grid"})
	do(t, "POST", base+"/waypoints", map[string]any{"x": 4, "y": 4, "space": "grid"})

	tests := []struct {
		path string
		want image.Point
	}{
		{"/route.png", image.Pt(50, 50)},
		{"/route.png?walkable=true&close=false", image.Pt(50, 50)},
		{"/mask.png", image.Pt(5, 5)},
		{"/mask.png?scaled=true", image.Pt(50, 50)},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := do(t, "GET", base+tt.path, nil)
			expectStatus(t, resp, http.StatusOK)
			if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
				t.Errorf("content type = %q", ct)
			}
			img, _, err := imageio.Decode(resp.Body, 0)
			if err != nil {
				t.Fatal(err)
			}
			if img.Bounds().Size() != tt.want {
				t.Errorf("size = %v, want %v", img.Bounds().Size(), tt.want)
			}
		})
	}
}

func TestWebSocket(t *testing.T) {
	_, ts := newTestServer(t, nil)
	sess := createSession(t, ts.URL)
	base := ts.URL + "/v1/sessions/" + sess.ID
	do(t, "POST", base+"/colors", map[string]string{"color": "#ffffff"})

	url := "ws" + strings.TrimPrefix(base, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	send := func(msg string) {
		t.Helper()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatal(err)
		}
	}
	read := func() map[string]json.RawMessage {
		t.Helper()
		var m map[string]json.RawMessage
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatal(err)
		}
		return m
	}
	typeOf := func(m map[string]json.RawMessage) string {
		var s string
		json.Unmarshal(m["type"], &s)
		return s
	}

	send(`{"type":"add_waypoint","x":0,"y":2,"space":"grid"}`)
	if m := read(); typeOf(m) != msgAddWaypoint || m["error"] != nil {
		t.Fatalf("unexpected reply %v", m)
	}
	if m := read(); typeOf(m) != msgRoute {
		t.Fatalf("expected route update, got %v", m)
	}

	send(`{"type":"add_waypoint","x":45,"y":25}`)
	read()
	m := read()
	var route routeView
	if err := json.Unmarshal(m["data"], &route); err != nil {
		t.Fatal(err)
	}
	if len(route.Legs) != 2 || route.Legs[0].Steps != 4 {
		t.Errorf("route over socket = %+v", route)
	}

	send(`{"type":"route","close":false}`)
	m = read()
	json.Unmarshal(m["data"], &route)
	if typeOf(m) != msgRoute || len(route.Legs) != 1 {
		t.Errorf("route request = %v", m)
	}

	send(`{"type":"teleport"}`)
	if m := read(); typeOf(m) != msgError {
		t.Errorf("expected error reply, got %v", m)
	}

	send(`{"type":"add_waypoint","x":500,"y":0}`)
	if m := read(); m["error"] == nil {
		t.Errorf("out of bounds waypoint should fail, got %v", m)
	}
}

func TestWebSocketKeepsSessionAlive(t *testing.T) {
	s, ts := newTestServer(t, nil)
	created := createSession(t, ts.URL)
	id := uuid.MustParse(created.ID)
	base := ts.URL + "/v1/sessions/" + created.ID

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(base, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	opened := time.Now()
	time.Sleep(50 * time.Millisecond)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"route"}`)); err != nil {
		t.Fatal(err)
	}
	var reply wsResponse
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != msgRoute || reply.Error != "" {
		t.Fatalf("unexpected reply %+v", reply)
	}

	// Anything not used since shortly after the dial is idle. The socket
	// message above must have refreshed the session.
	if n := s.Sessions().Sweep(time.Since(opened) - 25*time.Millisecond); n != 0 {
		t.Fatalf("sweep removed %d sessions", n)
	}
	resp := do(t, "GET", base, nil)
	expectStatus(t, resp, http.StatusOK)

	s.Sessions().Delete(id)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"route"}`)); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != msgError || reply.Error == "" {
		t.Errorf("expected expired session error, got %+v", reply)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{world.ErrImageNotLoaded, http.StatusConflict},
		{fmt.Errorf("x: %w", geom.ErrInvalidCoordinate), http.StatusUnprocessableEntity},
		{world.ErrTooManySessions, http.StatusServiceUnavailable},
		{imageio.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{errors.Join(errors.New("read"), &http.MaxBytesError{Limit: 1}), http.StatusRequestEntityTooLarge},
		{walkmap.ErrInvalidColor, http.StatusBadRequest},
		{walkmap.ErrUnknownMetric, http.StatusBadRequest},
		{errBadRequest, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestUploadLimit(t *testing.T) {
	s, ts := newTestServer(t, nil)
	s.maxUpload = 16
	resp := do(t, "POST", ts.URL+"/v1/sessions", mapPNG(t, testMap...))
	expectStatus(t, resp, http.StatusRequestEntityTooLarge)
}
