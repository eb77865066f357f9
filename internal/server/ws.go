package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Faultbox/waypath/internal/world"
	"github.com/Faultbox/waypath/pkg/geom"
)

const (
	// WebSocket heartbeat settings to detect disconnected clients
	pingInterval = 10 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	maxMessage   = 4096
)

// Message types exchanged on the session socket.
const (
	msgPickColor      = "pick_color"
	msgAddWaypoint    = "add_waypoint"
	msgResetWaypoints = "reset_waypoints"
	msgRoute          = "route"
	msgError          = "error"
)

// wsRequest is a client message. X/Y are display coordinates unless
// Space is "grid".
type wsRequest struct {
	Type  string  `json:"type"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Space string  `json:"space,omitempty"`
	Close *bool   `json:"close,omitempty"`
}

type wsResponse struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// wsClient is one socket bound to one session.
type wsClient struct {
	conn    *websocket.Conn
	id      uuid.UUID
	session *world.Session
	send    chan wsResponse
	done    chan struct{}
	log     *zap.Logger
}

// serveWS GET /sessions/{id}/ws
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	sess, id := sessionFrom(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{
		conn:    conn,
		id:      id,
		session: sess,
		send:    make(chan wsResponse, 64),
		done:    make(chan struct{}),
		log:     s.log.With(zap.String("session", id.String())),
	}
	c.log.Debug("websocket connected")
	go c.writePump()
	c.readPump(s)
}

// readPump handles client messages until the connection fails.
func (c *wsClient) readPump(s *Server) {
	defer func() {
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		// Socket traffic counts as use, so the sweep keeps the session.
		replies := []wsResponse{{Type: msgError, Error: "session expired"}}
		if _, ok := s.sessions.Get(c.id); ok {
			replies = s.handleMessage(c.session, message)
		}
		for _, resp := range replies {
			select {
			case c.send <- resp:
			case <-c.done:
				return
			}
		}
	}
}

// writePump sends queued responses and periodic pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case resp := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(resp); err != nil {
				c.log.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// handleMessage applies one client message. Every change to colors or
// waypoints is followed by the recomputed route.
func (s *Server) handleMessage(sess *world.Session, message []byte) []wsResponse {
	var req wsRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return []wsResponse{{Type: msgError, Error: "invalid message: " + err.Error()}}
	}

	var data any
	var err error
	switch req.Type {
	case msgPickColor:
		data, err = pick(sess, geom.Vec2{X: req.X, Y: req.Y})
	case msgAddWaypoint:
		data, err = addWaypoint(sess, waypointRequest{X: req.X, Y: req.Y, Space: req.Space})
	case msgResetWaypoints:
		err = sess.ResetWaypoints()
	case msgRoute:
	default:
		return []wsResponse{{Type: msgError, Error: "unknown message type " + req.Type}}
	}
	if err != nil {
		return []wsResponse{{Type: req.Type, Error: err.Error()}}
	}

	closeLoop := s.cfg.Engine.CloseLoop
	if req.Close != nil {
		closeLoop = *req.Close
	}
	route, err := s.computeRoute(sess, closeLoop)
	routeResp := wsResponse{Type: msgRoute, Data: route}
	if err != nil {
		routeResp = wsResponse{Type: msgRoute, Error: err.Error()}
	}

	if req.Type == msgRoute {
		return []wsResponse{routeResp}
	}
	return []wsResponse{{Type: req.Type, Data: data}, routeResp}
}
