// Package httpadapter exposes the assistant over a small JSON REST surface.
package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getclever/docqa-assistant/internal/core/domain"
	"github.com/getclever/docqa-assistant/internal/core/ports"
	"github.com/getclever/docqa-assistant/internal/observability/metrics"
)

// TurnHistory reads and clears persisted turns. Optional: without it the
// history endpoint serves only the in-memory window via the assistant stats.
type TurnHistory interface {
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// DocumentStore accepts uploaded source files. Optional: without it the
// upload endpoint is disabled and documents are placed on disk out of band.
type DocumentStore interface {
	Save(ctx context.Context, name string, data io.Reader) error
}

type Router struct {
	assistant ports.Assistant
	queue     ports.IngestQueue
	turns     TurnHistory
	store     DocumentStore
	metrics   *metrics.HTTPServerMetrics
	logger    *slog.Logger
	service   string

	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
	queueWait      time.Duration
}

type Options struct {
	Queue   ports.IngestQueue
	Turns   TurnHistory
	Store   DocumentStore
	Metrics *metrics.HTTPServerMetrics
	Logger  *slog.Logger
	Service string

	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	QueueWait      time.Duration
}

func NewRouter(assistant ports.Assistant, options Options) *Router {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	service := options.Service
	if service == "" {
		service = "docqa-api"
	}
	queueWait := options.QueueWait
	if queueWait <= 0 {
		queueWait = 100 * time.Millisecond
	}
	return &Router{
		assistant:      assistant,
		queue:          options.Queue,
		turns:          options.Turns,
		store:          options.Store,
		metrics:        options.Metrics,
		logger:         logger,
		service:        service,
		rateLimitRPS:   options.RateLimitRPS,
		rateLimitBurst: options.RateLimitBurst,
		maxInFlight:    options.MaxInFlight,
		queueWait:      queueWait,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/ingest", rt.ingest)
	mux.HandleFunc("/v1/query", rt.query)
	mux.HandleFunc("/v1/stats", rt.stats)
	mux.HandleFunc("/v1/sources", rt.sources)
	mux.HandleFunc("/v1/history", rt.history)
	mux.HandleFunc("/v1/reset", rt.reset)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = requestIDMiddleware(accessLogMiddleware(handler))
	if rt.maxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.maxInFlight, rt.queueWait)
	}
	if rt.rateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if rt.store == nil {
		writeError(w, http.StatusNotImplemented, "document upload is not configured")
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	if err := rt.store.Save(r.Context(), fileHeader.Filename, file); err != nil {
		rt.logger.Error("document_upload_failed", "filename", fileHeader.Filename, "error", err)
		writeError(w, http.StatusBadRequest, "failed to store document")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "stored",
		"filename": fileHeader.Filename,
	})
}

func (rt *Router) ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Directory string `json:"directory"`
		Async     bool   `json:"async"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Directory) == "" {
		writeError(w, http.StatusBadRequest, "directory is required")
		return
	}

	if req.Async {
		if rt.queue == nil {
			writeError(w, http.StatusNotImplemented, "async ingestion is not configured")
			return
		}
		if err := rt.queue.PublishIngestRequested(r.Context(), req.Directory); err != nil {
			rt.logger.Error("ingest_enqueue_failed", "directory", req.Directory, "error", err)
			writeError(w, mapErrorToHTTPStatus(err), "failed to enqueue ingestion")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":    "queued",
			"directory": req.Directory,
		})
		return
	}

	report := rt.assistant.Ingest(r.Context(), req.Directory)
	status := http.StatusOK
	if !report.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report)
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		SessionID      string `json:"session_id"`
		Question       string `json:"question"`
		UseHybrid      *bool  `json:"use_hybrid"`
		UseReranking   *bool  `json:"use_reranking"`
		TopK           int    `json:"k"`
		IncludeHistory *bool  `json:"include_history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	start := time.Now()
	result := rt.assistant.Query(r.Context(), domain.QueryRequest{
		SessionID:      req.SessionID,
		Question:       req.Question,
		UseHybrid:      boolOr(req.UseHybrid, true),
		UseReranking:   boolOr(req.UseReranking, true),
		TopK:           req.TopK,
		IncludeHistory: boolOr(req.IncludeHistory, true),
	})

	if rt.metrics != nil {
		rt.metrics.RecordQuery(
			rt.service,
			string(result.SearchMethod),
			string(result.Confidence),
			result.RetrievedCount,
			result.HasSubstantiveAnswer,
			time.Since(start),
		)
		if result.GuardrailReason != "" {
			rt.metrics.RecordGuardrailRefusal(rt.service)
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, rt.assistant.Stats(r.Context()))
}

func (rt *Router) sources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sources := rt.assistant.Sources(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (rt *Router) history(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rt.getHistory(w, r)
	case http.MethodDelete:
		sessionID := sessionIDFromQuery(r)
		rt.assistant.ClearHistory(sessionID)
		// Persisted turns must not outlive the in-memory window, or a
		// cleared session resurfaces on the next GET. Best effort, like
		// turn appends.
		if rt.turns != nil {
			if err := rt.turns.DeleteSession(r.Context(), sessionID); err != nil {
				rt.logger.Warn("history_delete_failed", "session_id", sessionID, "error", err)
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":     "cleared",
			"session_id": sessionID,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (rt *Router) getHistory(w http.ResponseWriter, r *http.Request) {
	if rt.turns == nil {
		writeError(w, http.StatusNotImplemented, "history persistence is not configured")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	sessionID := sessionIDFromQuery(r)
	turns, err := rt.turns.RecentTurns(r.Context(), sessionID, limit)
	if err != nil {
		rt.logger.Error("history_read_failed", "session_id", sessionID, "error", err)
		writeError(w, mapErrorToHTTPStatus(err), "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	})
}

func (rt *Router) reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := rt.assistant.Reset(r.Context()); err != nil {
		rt.logger.Error("reset_failed", "error", err)
		writeError(w, mapErrorToHTTPStatus(err), "reset failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func sessionIDFromQuery(r *http.Request) string {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		return "default"
	}
	return sessionID
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
