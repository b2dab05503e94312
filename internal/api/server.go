// Package api serves the read-only sweep status endpoints. The sweep itself
// has no remote control surface; stopping it means killing the process.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/accelmap/rfqmap/internal/checkpoint"
	"github.com/accelmap/rfqmap/internal/sweep"
)

// Server exposes live sweep progress and the checkpointed cell list.
type Server struct {
	router   chi.Router
	progress *sweep.Progress
	store    *checkpoint.Store
	log      *slog.Logger
}

func NewServer(progress *sweep.Progress, store *checkpoint.Store, log *slog.Logger) *Server {
	s := &Server{
		progress: progress,
		store:    store,
		log:      log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)
	r.Get("/api/sweep/status", s.handleStatus)
	r.Get("/api/sweep/cells", s.handleCells)

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.progress.Snapshot())
}

func (s *Server) handleCells(w http.ResponseWriter, r *http.Request) {
	cells, err := s.store.Cells()
	if err != nil {
		s.log.Error("cell list failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "checkpoint store unavailable"})
		return
	}
	if cells == nil {
		cells = []int{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cells": cells,
		"count": len(cells),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
