package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Router builds the HTTP handler with middlewares and routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/health", s.health)
		v1.Post("/sessions", s.createSession)

		v1.Route("/sessions/{id}", func(sr chi.Router) {
			sr.Use(s.sessionCtx)
			sr.Get("/", s.getSession)
			sr.Delete("/", s.deleteSession)
			sr.Put("/policy", s.setPolicy)
			sr.Put("/display", s.setDisplay)

			sr.Get("/colors", s.listColors)
			sr.Post("/colors", s.changeColor)
			sr.Delete("/colors", s.clearColors)
			sr.Post("/colors/pick", s.pickColor)

			sr.Get("/waypoints", s.listWaypoints)
			sr.Post("/waypoints", s.addWaypoint)
			sr.Delete("/waypoints", s.resetWaypoints)

			sr.Get("/route", s.getRoute)
			sr.Get("/route.png", s.routeImage)
			sr.Get("/mask.png", s.maskImage)

			sr.Get("/ws", s.serveWS)
		})
	})

	return r
}

// requestLogger logs one line per request through zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			status := ww.Status()
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			switch {
			case status >= 500:
				s.log.Error("request", fields...)
			case status >= 400:
				s.log.Warn("request", fields...)
			default:
				s.log.Debug("request", fields...)
			}
		}()
		next.ServeHTTP(ww, r)
	})
}
