package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cortexa-labs/ragserve/internal/answer"
	"github.com/cortexa-labs/ragserve/internal/crawler"
	"github.com/cortexa-labs/ragserve/internal/domain"
	"github.com/cortexa-labs/ragserve/internal/ingest"
)

// Error response codes returned to clients.
const (
	codeBadRequest           = "bad_request"
	codeValidationFailed     = "validation_failed"
	codeNotFound             = "not_found"
	codeUnsupportedFormat    = "unsupported_format"
	codeFetchFailed          = "fetch_failed"
	codeExtractionFailed     = "extraction_failed"
	codeRateLimited          = "rate_limited"
	codeEmbeddingProviderErr = "embedding_provider_error"
	codeModelUnavailable     = "model_unavailable"
	codeInternalError        = "internal_error"
)

// errorResponse is the JSON error body shared by all endpoints.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// DocumentIngester runs the ingestion pipeline for declared files and URLs.
type DocumentIngester interface {
	IngestDocument(ctx context.Context, tenantID, documentID string, items []ingest.Item) ([]ingest.ItemResult, error)
	IngestURL(ctx context.Context, tenantID, documentID, url string) (int, error)
}

// SiteCrawler ingests a website's outgoing links.
type SiteCrawler interface {
	CrawlSite(ctx context.Context, tenantID, seedURL string) (crawler.Report, error)
}

// Answerer runs the question paths.
type Answerer interface {
	Answer(ctx context.Context, tenantID, question string) (domain.Answer, error)
	AnswerStream(ctx context.Context, tenantID, question string) (<-chan answer.StreamEvent, error)
}

// ConversationMemory exposes the transcript operations the edge needs.
type ConversationMemory interface {
	History(tenantID string) ([]domain.Message, error)
	Clear(tenantID string)
}

// Pinger checks a dependency's connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	ingester      DocumentIngester
	crawler       SiteCrawler
	answers       Answerer
	memory        ConversationMemory
	db            Pinger
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	ingester DocumentIngester,
	siteCrawler SiteCrawler,
	answers Answerer,
	memory ConversationMemory,
	dbPinger Pinger,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ingester: ingester,
		crawler:  siteCrawler,
		answers:  answers,
		memory:   memory,
		db:       dbPinger,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNoHistory, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrFileNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrUnsupportedFormat, http.StatusBadRequest, codeUnsupportedFormat),
		sentinelHandler(domain.ErrFetch, http.StatusUnprocessableEntity, codeFetchFailed),
		sentinelHandler(domain.ErrExtraction, http.StatusUnprocessableEntity, codeExtractionFailed),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderErr),
		sentinelHandler(domain.ErrModelUnavailable, http.StatusServiceUnavailable, codeModelUnavailable),
	}
	return s
}

// Routes registers all endpoints on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/documents", s.IngestDocument)
	r.Post("/urls", s.IngestURL)
	r.Post("/websites", s.CrawlWebsite)
	r.Post("/questions", s.AskQuestion)
	r.Post("/questions/stream", s.AskQuestionStream)
	r.Post("/memory/clear", s.ClearMemory)
	r.Get("/history/{tenantID}", s.GetHistory)
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type ingestItemRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

type ingestDocumentRequest struct {
	DocumentID string              `json:"document_id"`
	TenantID   string              `json:"tenant_id"`
	Items      []ingestItemRequest `json:"items"`
}

type ingestDocumentResponse struct {
	DocumentID string              `json:"document_id"`
	Items      []ingest.ItemResult `json:"items"`
}

// IngestDocument handles POST /documents.
func (s *Server) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.TenantID == "" || req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "tenant_id and document_id are required")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "items must not be empty")
		return
	}

	items := make([]ingest.Item, len(req.Items))
	for i, it := range req.Items {
		if it.Name == "" {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "item name is required")
			return
		}
		items[i] = ingest.Item{Name: it.Name, Type: it.Type, Size: it.Size}
	}

	results, err := s.ingester.IngestDocument(r.Context(), req.TenantID, req.DocumentID, items)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestDocumentResponse{
		DocumentID: req.DocumentID,
		Items:      results,
	})
}

type ingestURLRequest struct {
	DocumentID string `json:"document_id"`
	URL        string `json:"url"`
	TenantID   string `json:"tenant_id"`
}

type ingestURLResponse struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
}

// IngestURL handles POST /urls.
func (s *Server) IngestURL(w http.ResponseWriter, r *http.Request) {
	var req ingestURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.TenantID == "" || req.DocumentID == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "tenant_id, document_id and url are required")
		return
	}

	chunks, err := s.ingester.IngestURL(r.Context(), req.TenantID, req.DocumentID, req.URL)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestURLResponse{
		DocumentID: req.DocumentID,
		Chunks:     chunks,
	})
}

type crawlRequest struct {
	URL      string `json:"url"`
	TenantID string `json:"tenant_id"`
}

// CrawlWebsite handles POST /websites.
func (s *Server) CrawlWebsite(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.TenantID == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "tenant_id and url are required")
		return
	}

	report, err := s.crawler.CrawlSite(r.Context(), req.TenantID, req.URL)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

type questionRequest struct {
	Question string `json:"question"`
	TenantID string `json:"tenant_id"`
}

// AskQuestion handles POST /questions.
func (s *Server) AskQuestion(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	ans, err := s.answers.Answer(r.Context(), req.TenantID, req.Question)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ans)
}

// streamFrame is one SSE data payload of the streaming question path.
type streamFrame struct {
	Type     string         `json:"type"`
	Content  string         `json:"content"`
	Complete bool           `json:"complete"`
	Answer   *domain.Answer `json:"answer,omitempty"`
}

// AskQuestionStream handles POST /questions/stream. Tokens are pushed as SSE
// data frames as the model produces them; the final frame has complete=true
// and carries the full answer. A mid-stream provider failure emits an error
// frame and closes the stream — HTTP status is already committed by then.
func (s *Server) AskQuestionStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	events, err := s.answers.AnswerStream(r.Context(), req.TenantID, req.Question)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	flusher, canFlush := w.(http.Flusher)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for ev := range events {
		var frame streamFrame
		switch {
		case ev.Err != nil:
			s.logger.Warn("stream failed", zap.Error(ev.Err))
			frame = streamFrame{Type: "error", Content: safeDomainMessage(ev.Err)}
		case ev.Last:
			frame = streamFrame{Type: "token", Complete: true, Answer: ev.Answer}
		default:
			frame = streamFrame{Type: "token", Content: ev.Token}
		}

		if err := writeSSE(w, frame); err != nil {
			// Client went away; the answer goroutine unwinds via context.
			return
		}
		if canFlush {
			flusher.Flush()
		}

		if ev.Err != nil || ev.Last {
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, frame streamFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (questionRequest, bool) {
	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return questionRequest{}, false
	}
	if req.TenantID == "" || req.Question == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "tenant_id and question are required")
		return questionRequest{}, false
	}
	return req, true
}

type clearMemoryRequest struct {
	TenantID string `json:"tenant_id"`
}

// ClearMemory handles POST /memory/clear.
func (s *Server) ClearMemory(w http.ResponseWriter, r *http.Request) {
	var req clearMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "tenant_id is required")
		return
	}

	s.memory.Clear(req.TenantID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "cleared"})
}

// GetHistory handles GET /history/{tenantID}.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "tenant id is required")
		return
	}

	msgs, err := s.memory.History(tenantID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}
	status := "healthy"
	httpStatus := http.StatusOK

	if err := s.db.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		checks["database"] = "unavailable"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNoHistory,
		domain.ErrFileNotFound,
		domain.ErrUnsupportedFormat,
		domain.ErrFetch,
		domain.ErrExtraction,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
		domain.ErrModelUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
