// Package server exposes waypath sessions over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Faultbox/waypath/internal/config"
	"github.com/Faultbox/waypath/internal/render"
	"github.com/Faultbox/waypath/internal/world"
)

const (
	// Sessions untouched for this long are removed.
	sessionIdle   = 30 * time.Minute
	sweepInterval = time.Minute
	// Uploads are limited in bytes by MaxUploadMB and in pixels by this.
	maxImagePixels = 64 << 20
)

// Server is the HTTP host for waypath sessions.
type Server struct {
	cfg      *config.Config
	log      *zap.Logger
	sessions *world.Manager
	style    render.Style
	upgrader websocket.Upgrader

	// maxUpload is the request body limit in bytes; 0 means unlimited.
	maxUpload int64
}

// New creates a server from cfg. log may be nil.
func New(cfg *config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	style, err := render.StyleFromConfig(cfg.Render)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg: cfg,
		log: log,
		sessions: world.NewManager(world.Options{
			Policy:       cfg.Engine.Policy(),
			DeferRebuild: cfg.Engine.DeferRebuild,
			Logger:       log,
		}, cfg.Server.MaxSessions),
		style:     style,
		maxUpload: int64(cfg.Server.MaxUploadMB) << 20,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// Sessions returns the session registry.
func (s *Server) Sessions() *world.Manager {
	return s.sessions
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go s.sweep(ctx)

	errc := make(chan error, 1)
	go func() {
		s.log.Info("server started", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("server stopping")
	return srv.Shutdown(shutdownCtx)
}

// sweep periodically removes idle sessions.
func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sessions.Sweep(sessionIdle)
		}
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
