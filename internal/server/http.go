// Package server exposes a read-only HTTP surface over the event log.
// The event table remains the only work-intake channel; these endpoints
// are for operators and reporting.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/store"
)

// Server serves order history queries.
type Server struct {
	log    store.EventLog
	logger *slog.Logger
}

// New creates an HTTP server over the given log.
func New(log store.EventLog, logger *slog.Logger) *Server {
	return &Server{log: log, logger: logger}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/orders/{uuid}/events", s.handleOrderHistory)
	mux.HandleFunc("GET /v1/users/{username}/events", s.handleUserEvents)
	return mux
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleOrderHistory handles GET /v1/orders/{uuid}/events.
func (s *Server) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	uuid := r.PathValue("uuid")
	events, err := s.log.History(r.Context(), uuid)
	if err != nil {
		s.logger.Error("history query failed", "uuid", uuid, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	if len(events) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown order"})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleUserEvents handles GET /v1/users/{username}/events.
func (s *Server) handleUserEvents(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	events, err := s.log.ListByUser(r.Context(), username)
	if err != nil {
		s.logger.Error("user query failed", "username", username, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
