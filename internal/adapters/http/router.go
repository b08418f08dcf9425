package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/compliance-analyzer/internal/config"
	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
	"github.com/kirillkom/compliance-analyzer/internal/core/ports"
	"github.com/kirillkom/compliance-analyzer/internal/observability/metrics"
)

const serviceName = "compliance-api"

type RouterDeps struct {
	Sessions ports.SessionService
	Analyzer ports.ComplianceAnalyzer
	Enqueuer ports.AnalysisEnqueuer
	Uploader ports.DocumentUploader
	Catalog  ports.QuestionCatalog
	Metrics  *metrics.HTTPServerMetrics
}

type Router struct {
	cfg      config.Config
	sessions ports.SessionService
	analyzer ports.ComplianceAnalyzer
	enqueuer ports.AnalysisEnqueuer
	uploader ports.DocumentUploader
	catalog  ports.QuestionCatalog
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(cfg config.Config, deps RouterDeps) *Router {
	return &Router{
		cfg:      cfg,
		sessions: deps.Sessions,
		analyzer: deps.Analyzer,
		enqueuer: deps.Enqueuer,
		uploader: deps.Uploader,
		catalog:  deps.Catalog,
		metrics:  deps.Metrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)

	mux.HandleFunc("POST /v1/uploads", rt.uploadDocument)
	mux.HandleFunc("POST /v1/sessions", rt.createSession)
	mux.HandleFunc("GET /v1/sessions/{id}", rt.getSession)
	mux.HandleFunc("POST /v1/sessions/{id}/messages", rt.appendMessage)
	mux.HandleFunc("DELETE /v1/sessions/{id}/index", rt.clearIndex)
	mux.HandleFunc("POST /v1/sessions/{id}/analyze", rt.analyze)
	mux.HandleFunc("POST /v1/sessions/{id}/analyze/stream", rt.analyzeStream)
	mux.HandleFunc("POST /v1/sessions/{id}/enqueue", rt.enqueue)
	mux.HandleFunc("GET /v1/sessions/{id}/suggested-standards", rt.suggestStandards)

	mux.HandleFunc("GET /v1/standards", rt.listStandards)
	mux.HandleFunc("GET /v1/standards/summary", rt.catalogSummary)
	mux.HandleFunc("GET /v1/standards/search", rt.searchCatalog)
	mux.HandleFunc("POST /v1/standards/reload", rt.reloadCatalog)
	mux.HandleFunc("GET /v1/standards/{key}", rt.getStandard)

	var onReject func(string)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
		onReject = func(reason string) { rt.metrics.RecordRejected(serviceName, reason) }
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait, onReject)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.APIMaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.APIMaxUploadBytes)
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	key, err := rt.uploader.Upload(r.Context(), fileHeader.Filename, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"storage_key": key,
		"filename":    fileHeader.Filename,
	})
}

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	var input domain.NewSession
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	session, err := rt.sessions.Create(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := rt.sessions.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (rt *Router) appendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role    domain.MessageRole `json:"role"`
		Content string             `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Role == "" {
		req.Role = domain.RoleUser
	}
	if err := rt.sessions.AppendMessage(r.Context(), r.PathValue("id"), req.Role, req.Content); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) clearIndex(w http.ResponseWriter, r *http.Request) {
	deleted, err := rt.sessions.ClearIndex(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (rt *Router) analyze(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRunRequest(w, r)
	if !ok {
		return
	}
	ctx, cancel := rt.runContext(r.Context())
	defer cancel()

	outcome, err := rt.analyzer.Run(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// analyzeStream writes one JSON event per line and flushes after each.
func (rt *Router) analyzeStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRunRequest(w, r)
	if !ok {
		return
	}
	ctx, cancel := rt.runContext(r.Context())
	defer cancel()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	encoder := json.NewEncoder(w)
	for event := range rt.analyzer.RunStream(ctx, req) {
		if err := encoder.Encode(event); err != nil {
			slog.Warn("stream_write_failed",
				"request_id", requestIDFromContext(r.Context()),
				"session_id", req.SessionID,
				"error", err,
			)
			cancel()
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (rt *Router) enqueue(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRunRequest(w, r)
	if !ok {
		return
	}
	queued, err := rt.enqueuer.Enqueue(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, queued)
}

func (rt *Router) suggestStandards(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	standards, err := rt.analyzer.SuggestStandards(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"standards":  standards,
	})
}

func (rt *Router) listStandards(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"standards": rt.catalog.ListStandards()})
}

func (rt *Router) catalogSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.catalog.Summary())
}

func (rt *Router) searchCatalog(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'q' is required"})
		return
	}
	items := rt.catalog.SearchItems(query)
	writeJSON(w, http.StatusOK, map[string]any{
		"query": query,
		"total": len(items),
		"items": items,
	})
}

func (rt *Router) reloadCatalog(w http.ResponseWriter, r *http.Request) {
	if err := rt.catalog.Reload(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.catalog.Summary())
}

func (rt *Router) getStandard(w http.ResponseWriter, r *http.Request) {
	standard, err := rt.catalog.GetStandard(r.PathValue("key"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, standard)
}

func (rt *Router) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if rt.cfg.APIRunTimeoutMinutes <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, time.Duration(rt.cfg.APIRunTimeoutMinutes)*time.Minute)
}

// decodeRunRequest reads the optional {"job_id"} body of the analysis routes.
func decodeRunRequest(w http.ResponseWriter, r *http.Request) (domain.RunRequest, bool) {
	req := domain.RunRequest{SessionID: r.PathValue("id")}
	var body struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return req, false
	}
	req.JobID = strings.TrimSpace(body.JobID)
	return req, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
