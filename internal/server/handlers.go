// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, the roster snapshot and the embedded client page.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

//go:embed static/index.html
var indexHTML []byte

// WebSocketHandler upgrades the request, creates a Client and hands it to
// the hub, which starts its pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg, s.log)
	if err := s.hub.Register(r.Context(), client); err != nil {
		s.log.Warn("Could not register client", "addr", r.RemoteAddr, "error", err)
		client.close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "relaychat server is running!")
}

// RosterHandler serves the joined participants as JSON.
func (s *Server) RosterHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	snapshot, err := s.hub.Snapshot(ctx)
	if err != nil {
		s.log.Warn("Roster query failed", "error", err)
		http.Error(w, "roster unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rosterResponse{
		Snapshot:    snapshot,
		GeneratedAt: time.Now().UTC(),
	}); err != nil {
		s.log.Warn("Error writing roster response", "error", err)
	}
}

// IndexHandler serves the browser client.
func (s *Server) IndexHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(indexHTML); err != nil {
		s.log.Warn("Error writing HTML response", "error", err)
	}
}
