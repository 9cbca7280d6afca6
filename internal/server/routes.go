// Package server wires HTTP handlers into a chi router.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes returns the HTTP handler with every route of the relay.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.IndexHandler)
	r.Get("/ws", s.WebSocketHandler)
	r.Get("/healthz", HealthHandler)
	r.Get("/api/participants", s.RosterHandler)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}
