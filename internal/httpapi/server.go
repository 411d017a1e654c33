// Package httpapi exposes the premortem pipeline over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"premortem/internal/graveyard"
	"premortem/internal/premortem"
	"premortem/internal/reportstore"
)

const serviceVersion = "1.0.0"

type Server struct {
	pipeline  *premortem.Pipeline
	store     *reportstore.Store
	graveyard *graveyard.Client
}

// NewServer wires the routes. The store and graveyard client may be nil; the
// corresponding routes then answer 503.
func NewServer(pipeline *premortem.Pipeline, store *reportstore.Store, gy *graveyard.Client) http.Handler {
	s := &Server{pipeline: pipeline, store: store, graveyard: gy}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/analyze", s.handleAnalyze)
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.HandleFunc("/v1/reports", s.handleReports)
	mux.HandleFunc("/v1/reports/", s.handleReportByID)
	mux.HandleFunc("/v1/graveyard", s.handleGraveyard)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return false
	}
	return true
}

type analyzeRequest struct {
	Idea string `json:"idea"`

	// Both spellings accepted; clients of the original service sent the
	// camel-cased form.
	QuickPreview      bool `json:"quick_preview"`
	QuickPreviewCamel bool `json:"quickPreview"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unreadable request body"})
		return
	}
	var req analyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	idea := strings.TrimSpace(req.Idea)
	if idea == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "idea text is required"})
		return
	}

	if req.QuickPreview || req.QuickPreviewCamel {
		dec := s.pipeline.QuickPreview(r.Context(), idea)
		writeJSON(w, http.StatusOK, map[string]any{"decomposition": dec})
		return
	}

	report := s.pipeline.Run(r.Context(), idea, func(p premortem.Progress) {
		log.Printf("httpapi analyze_progress stage=%s pct=%d msg=%q", p.CurrentStage, p.StageProgress, p.StageMessage)
	})
	if s.store != nil {
		if err := s.store.Save(report); err != nil {
			log.Printf("httpapi report_save_failed id=%s err=%v", report.ID, err)
		}
	}

	if report.Status == premortem.StatusError {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   report.Error,
			"report":  nil,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"report":  report,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "premortem-analysis",
		"status":  "ok",
		"version": serviceVersion,
		"usage": map[string]any{
			"endpoint": "POST /v1/analyze",
			"body":     map[string]string{"idea": "string (required)", "quick_preview": "bool (optional)"},
		},
	})
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "report store not configured"})
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	summaries, err := s.store.List(limit, offset)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": summaries})
}

func (s *Server) handleReportByID(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "report store not configured"})
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/reports/")
	if id, ok := strings.CutSuffix(rest, "/rerun"); ok {
		s.handleRerun(w, r, id)
		return
	}
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	report, err := s.store.Get(rest)
	if errors.Is(err, reportstore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "report not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (s *Server) handleRerun(w http.ResponseWriter, r *http.Request, id string) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req struct {
		FromStage string `json:"from_stage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	stage := premortem.Stage(req.FromStage)
	if !premortem.ValidStage(stage) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown stage: " + req.FromStage})
		return
	}

	existing, err := s.store.Get(id)
	if errors.Is(err, reportstore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "report not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	updated := s.pipeline.Rerun(r.Context(), existing, stage, nil)
	if err := s.store.Save(updated); err != nil {
		log.Printf("httpapi report_save_failed id=%s err=%v", updated.ID, err)
	}

	if updated.Status == premortem.StatusError {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   updated.Error,
			"report":  nil,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "report": updated})
}

func (s *Server) handleGraveyard(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.graveyard == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "graveyard not configured"})
		return
	}
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	sector := r.URL.Query().Get("sector")

	startups := s.graveyard.List(r.Context(), graveyard.ListParams{Limit: limit, Offset: offset, Sector: sector})
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		startups = graveyard.Search(q, startups)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"startups":     startups,
		"categories":   graveyard.Categories(startups),
		"total_burned": graveyard.TotalBurned(startups),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
