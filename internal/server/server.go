// Package server exposes the extraction pipeline over HTTP: page ingestion,
// record chat/summary, feedback and audit review.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/bhulekh-seva/ror-cli/internal/audit"
	"github.com/bhulekh-seva/ror-cli/internal/extract"
	"github.com/bhulekh-seva/ror-cli/internal/model"
	"github.com/bhulekh-seva/ror-cli/internal/pipeline"
	"github.com/bhulekh-seva/ror-cli/internal/store"
)

// allowedSourcePaths lists the Bhulekh viewer pages that may be submitted as
// source URLs. Anything else on any host is rejected.
const crorPath = "/crorfront_uni.aspx"

var allowedSourcePaths = map[string]bool{
	"/srorfront_uni.aspx": true,
	crorPath:              true,
}

const allowedSourceHost = "bhulekh.ori.nic.in"

// Server is the HTTP API over the pipeline.
type Server struct {
	processor  *pipeline.Processor
	summarizer *pipeline.Summarizer
	auditor    *audit.Auditor
	store      store.Store
}

// New creates a Server with all dependencies.
func New(proc *pipeline.Processor, sum *pipeline.Summarizer, aud *audit.Auditor, st store.Store) *Server {
	return &Server{processor: proc, summarizer: sum, auditor: aud, store: st}
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/load-content", s.handleLoadContent)
	r.Post("/chat", s.handleChat)
	r.Post("/extractions/{id}/feedback", s.handleFeedback)
	r.Get("/audits", s.handleListAudits)
	r.Post("/audits/{id}/resolve", s.handleResolveAudit)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loadContentRequest struct {
	URL      string               `json:"url"`
	HTML     string               `json:"html"`
	Text     string               `json:"text,omitempty"`
	Identity model.RecordIdentity `json:"identity,omitempty"`
}

func (s *Server) handleLoadContent(w http.ResponseWriter, r *http.Request) {
	var req loadContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" || strings.TrimSpace(req.HTML) == "" {
		writeError(w, http.StatusBadRequest, "url and html are required")
		return
	}
	if !allowedSourceURL(req.URL) {
		writeError(w, http.StatusForbidden, "url is not an allowed Bhulekh viewer page")
		return
	}

	result, err := s.processor.Process(r.Context(), pipeline.PageInput{
		URL:      req.URL,
		HTML:     req.HTML,
		Text:     req.Text,
		Identity: req.Identity,
		LLMOnly:  llmOnlySourceURL(req.URL),
	})
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrIncompleteIdentity):
			writeError(w, http.StatusUnprocessableEntity, "page did not yield a complete record identity")
		case errors.Is(err, extract.ErrExtractionFailed):
			writeError(w, http.StatusUnprocessableEntity, "extraction failed")
		default:
			zap.L().Error("server: load-content failed", zap.String("url", req.URL), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	resp := map[string]any{
		"record_id":  result.Record.ID,
		"created":    result.Created,
		"resolved":   result.Record.Resolved(),
		"viewer_url": result.Record.ViewerURL,
	}
	if result.Extraction != nil {
		resp["method"] = result.Extraction.Method
		resp["confidence"] = result.Extraction.Confidence
	}
	writeJSON(w, http.StatusOK, resp)
}

type chatRequest struct {
	RecordID string `json:"record_id"`
	Force    bool   `json:"force,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RecordID == "" {
		writeError(w, http.StatusBadRequest, "record_id is required")
		return
	}

	rec, err := s.store.GetRecord(r.Context(), req.RecordID)
	if err != nil {
		zap.L().Error("server: chat lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}

	result, err := s.summarizer.Summarize(r.Context(), req.RecordID, req.Force)
	if err != nil {
		zap.L().Error("server: summarize failed", zap.String("record_id", req.RecordID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "summary generation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"record_id":  req.RecordID,
		"summary":    result.Summary.Content,
		"cached":     result.Cached,
		"expires_at": result.Summary.ExpiresAt,
	})
}

type feedbackRequest struct {
	Feedback model.Feedback `json:"feedback"`
	Comment  string         `json:"comment,omitempty"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Feedback != model.FeedbackCorrect && req.Feedback != model.FeedbackWrong {
		writeError(w, http.StatusBadRequest, "feedback must be correct or wrong")
		return
	}

	if err := s.store.UpdateExtractionFeedback(r.Context(), id, req.Feedback, req.Comment); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "extraction not found")
			return
		}
		zap.L().Error("server: feedback update failed", zap.String("extraction_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := s.auditor.ListPending(r.Context(), limit)
	if err != nil {
		zap.L().Error("server: list audits failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": rows, "count": len(rows)})
}

type resolveAuditRequest struct {
	ResolvedBy string `json:"resolved_by"`
	Notes      string `json:"notes,omitempty"`
}

func (s *Server) handleResolveAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req resolveAuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResolvedBy == "" {
		writeError(w, http.StatusBadRequest, "resolved_by is required")
		return
	}

	if err := s.auditor.MarkResolved(r.Context(), id, req.ResolvedBy, req.Notes); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "audit not found")
			return
		}
		zap.L().Error("server: resolve audit failed", zap.String("audit_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// allowedSourceURL accepts only the Bhulekh RoR viewer pages.
func allowedSourceURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if !strings.EqualFold(u.Host, allowedSourceHost) {
		return false
	}
	return allowedSourcePaths[strings.ToLower(u.Path)]
}

// llmOnlySourceURL reports whether the page uses the CRoR layout, which the
// deterministic parser does not understand.
func llmOnlySourceURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.ToLower(u.Path) == crorPath
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Addr formats a listen address from a port.
func Addr(port int) string {
	return fmt.Sprintf(":%d", port)
}
