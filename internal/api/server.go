// Package api implements the thin HTTP request router spec.md §6 requires
// in front of the scan lifecycle controller: POST /api/scans, GET
// /api/scans/:id, GET /health. It is deliberately thin — no CORS, no
// webhooks, no auth — those are named out of the core's scope in
// spec.md §1 and are left to whatever reverse proxy fronts this process.
// Grounded on the teacher's internal/api/server.go net/http.ServeMux +
// respondJSON/respondError shape, stripped of GSC/Stripe/RLS concerns
// that have no SPEC_FULL.md home (see DESIGN.md).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rankriot/scanner/internal/logging"
	"github.com/rankriot/scanner/internal/model"
	"github.com/rankriot/scanner/internal/store"
)

// LifecycleController is the subset of *lifecycle.Controller the HTTP
// surface needs.
type LifecycleController interface {
	QueueScan(ctx context.Context, projectID string) (*model.Scan, error)
}

// Server is the thin HTTP API in front of the lifecycle controller.
type Server struct {
	controller LifecycleController
	repo       store.Repository
}

// NewServer builds a Server wired to controller for queueing scans and
// repo for reading scan status back out.
func NewServer(controller LifecycleController, repo store.Repository) *Server {
	return &Server{controller: controller, repo: repo}
}

// Router returns the configured http.Handler.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/scans", s.handleScans)
	mux.HandleFunc("/api/scans/", s.handleScanByID)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queueScanRequest struct {
	ProjectID string `json:"project_id"`
}

// handleScans handles POST /api/scans {project_id} -> 201 {scan} | 404 | 409.
func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req queueScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProjectID == "" {
		s.respondError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	scan, err := s.controller.QueueScan(ctx, req.ProjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "project not found")
			return
		}
		logging.Error("api: queue scan failed", logging.Field("project_id", req.ProjectID), logging.Field("error", err))
		s.respondError(w, http.StatusConflict, "unable to queue scan")
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]*model.Scan{"scan": scan})
}

// handleScanByID handles GET /api/scans/:id -> 200 {scan} | 404.
func (s *Server) handleScanByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/scans/")
	if id == "" {
		s.respondError(w, http.StatusNotFound, "scan not found")
		return
	}

	scan, err := s.repo.GetScan(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "scan not found")
			return
		}
		logging.Error("api: get scan failed", logging.Field("scan_id", id), logging.Field("error", err))
		s.respondError(w, http.StatusInternalServerError, "unable to load scan")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]*model.Scan{"scan": scan})
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error("api: failed to encode response", logging.Field("error", err))
	}
}
