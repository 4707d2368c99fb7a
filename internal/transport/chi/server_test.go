package chi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cortexa-labs/ragserve/internal/answer"
	"github.com/cortexa-labs/ragserve/internal/crawler"
	"github.com/cortexa-labs/ragserve/internal/domain"
	"github.com/cortexa-labs/ragserve/internal/ingest"
)

func postJSON(t *testing.T, r http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeErrorResponse(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return errResp
}

func TestIngestDocument_PerItemResults(t *testing.T) {
	r, deps := newTestServer()
	deps.ingester.results = []ingest.ItemResult{
		{Name: "report.pdf", Status: "ok", Chunks: 4},
		{Name: "broken.docx", Status: "error", Error: "file not found"},
	}

	rr := postJSON(t, r, "/documents", `{
		"document_id": "doc-1",
		"tenant_id": "acme",
		"items": [
			{"name": "report.pdf", "type": "application/pdf", "size": 1024},
			{"name": "broken.docx", "type": "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "size": 2048}
		]
	}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp ingestDocumentResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.DocumentID != "doc-1" {
		t.Errorf("document_id: got %q, want doc-1", resp.DocumentID)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("items: got %d, want 2", len(resp.Items))
	}
	if resp.Items[0].Status != "ok" || resp.Items[0].Chunks != 4 {
		t.Errorf("first item: got %+v", resp.Items[0])
	}
	if resp.Items[1].Status != "error" || resp.Items[1].Error == "" {
		t.Errorf("second item should carry the error: got %+v", resp.Items[1])
	}

	if deps.ingester.lastTenant != "acme" || deps.ingester.lastDocID != "doc-1" {
		t.Errorf("ingester called with tenant %q doc %q", deps.ingester.lastTenant, deps.ingester.lastDocID)
	}
	if len(deps.ingester.lastItems) != 2 || deps.ingester.lastItems[0].Name != "report.pdf" {
		t.Errorf("items not forwarded: %+v", deps.ingester.lastItems)
	}
}

func TestIngestDocument_InvalidBody(t *testing.T) {
	r, _ := newTestServer()

	rr := postJSON(t, r, "/documents", `{not json`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if errResp := decodeErrorResponse(t, rr); errResp.Code != codeBadRequest {
		t.Errorf("error code: got %s, want %s", errResp.Code, codeBadRequest)
	}
}

func TestIngestDocument_Validation(t *testing.T) {
	r, _ := newTestServer()

	tests := []struct {
		name string
		body string
	}{
		{"missing tenant", `{"document_id":"doc-1","items":[{"name":"a.txt"}]}`},
		{"missing document id", `{"tenant_id":"acme","items":[{"name":"a.txt"}]}`},
		{"empty items", `{"document_id":"doc-1","tenant_id":"acme","items":[]}`},
		{"item without name", `{"document_id":"doc-1","tenant_id":"acme","items":[{"type":"text/plain"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(t, r, "/documents", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
			}
			if errResp := decodeErrorResponse(t, rr); errResp.Code != codeValidationFailed {
				t.Errorf("error code: got %s, want %s", errResp.Code, codeValidationFailed)
			}
		})
	}
}

func TestIngestURL_Success(t *testing.T) {
	r, deps := newTestServer()
	deps.ingester.chunks = 7

	rr := postJSON(t, r, "/urls",
		`{"document_id":"doc-2","url":"https://example.com/page","tenant_id":"acme"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}

	var resp ingestURLResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Chunks != 7 {
		t.Errorf("chunks: got %d, want 7", resp.Chunks)
	}
	if deps.ingester.lastURL != "https://example.com/page" {
		t.Errorf("url not forwarded: %q", deps.ingester.lastURL)
	}
}

func TestIngestURL_FetchFailure(t *testing.T) {
	r, deps := newTestServer()
	deps.ingester.err = domain.ErrFetch

	rr := postJSON(t, r, "/urls",
		`{"document_id":"doc-2","url":"https://down.example.com","tenant_id":"acme"}`)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
	if errResp := decodeErrorResponse(t, rr); errResp.Code != codeFetchFailed {
		t.Errorf("error code: got %s, want %s", errResp.Code, codeFetchFailed)
	}
}

func TestCrawlWebsite_ReturnsReport(t *testing.T) {
	r, deps := newTestServer()
	deps.crawler.report = crawler.Report{Discovered: 5, Ingested: 4, Failed: 1, Chunks: 12}

	rr := postJSON(t, r, "/websites", `{"url":"https://example.com","tenant_id":"acme"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}

	var report crawler.Report
	if err := json.NewDecoder(rr.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report != deps.crawler.report {
		t.Errorf("report: got %+v, want %+v", report, deps.crawler.report)
	}
	if deps.crawler.lastTenant != "acme" || deps.crawler.lastURL != "https://example.com" {
		t.Errorf("crawler called with tenant %q url %q", deps.crawler.lastTenant, deps.crawler.lastURL)
	}
}

func TestAskQuestion_Success(t *testing.T) {
	r, deps := newTestServer()
	deps.answers.answer = domain.NewAnswer("what is the refund policy?", "Refunds within 30 days.", []domain.Chunk{
		{Metadata: domain.ChunkMetadata{TenantID: "acme", DocumentID: "doc-1", ChunkIndex: 0}},
	})

	rr := postJSON(t, r, "/questions", `{"question":"what is the refund policy?","tenant_id":"acme"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}

	var ans domain.Answer
	if err := json.NewDecoder(rr.Body).Decode(&ans); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if ans.Result != "Refunds within 30 days." {
		t.Errorf("result: got %q", ans.Result)
	}
	if len(ans.Sources) != 1 || ans.Sources[0].Metadata.DocumentID != "doc-1" {
		t.Errorf("sources: got %+v", ans.Sources)
	}
}

func TestAskQuestion_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"model unavailable", domain.ErrModelUnavailable, http.StatusServiceUnavailable, codeModelUnavailable},
		{"embedding provider", domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderErr},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, codeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, deps := newTestServer()
			deps.answers.err = tt.err

			rr := postJSON(t, r, "/questions", `{"question":"q","tenant_id":"acme"}`)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.wantStatus)
			}
			errResp := decodeErrorResponse(t, rr)
			if errResp.Code != tt.wantCode {
				t.Errorf("error code: got %s, want %s", errResp.Code, tt.wantCode)
			}
			if strings.Contains(errResp.Message, "boom") {
				t.Errorf("internal details leaked: %q", errResp.Message)
			}
		})
	}
}

func TestAskQuestion_Validation(t *testing.T) {
	r, _ := newTestServer()

	for _, body := range []string{
		`{"tenant_id":"acme"}`,
		`{"question":"q"}`,
	} {
		rr := postJSON(t, r, "/questions", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %s: got %d, want %d", body, rr.Code, http.StatusBadRequest)
		}
	}
}

// decodeSSEFrames parses "data: {...}" lines from an SSE body.
func decodeSSEFrames(t *testing.T, body string) []streamFrame {
	t.Helper()
	var frames []streamFrame
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame streamFrame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			t.Fatalf("decode frame %q: %v", line, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func TestAskQuestionStream_Framing(t *testing.T) {
	r, deps := newTestServer()
	ans := domain.NewAnswer("q", "Hello world", nil)
	deps.answers.events = []answer.StreamEvent{
		{Token: "Hello"},
		{Token: " world"},
		{Last: true, Answer: &ans},
	}

	rr := postJSON(t, r, "/questions/stream", `{"question":"q","tenant_id":"acme"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type: got %q", ct)
	}

	frames := decodeSSEFrames(t, rr.Body.String())
	if len(frames) != 3 {
		t.Fatalf("frames: got %d, want 3", len(frames))
	}

	for i, want := range []string{"Hello", " world"} {
		if frames[i].Type != "token" || frames[i].Content != want || frames[i].Complete {
			t.Errorf("frame %d: got %+v", i, frames[i])
		}
	}

	last := frames[2]
	if last.Type != "token" || !last.Complete {
		t.Fatalf("terminal frame: got %+v", last)
	}
	if last.Answer == nil || last.Answer.Result != "Hello world" {
		t.Errorf("terminal answer: got %+v", last.Answer)
	}
}

func TestAskQuestionStream_MidStreamError(t *testing.T) {
	r, deps := newTestServer()
	deps.answers.events = []answer.StreamEvent{
		{Token: "par"},
		{Err: domain.ErrModelUnavailable},
	}

	rr := postJSON(t, r, "/questions/stream", `{"question":"q","tenant_id":"acme"}`)

	// The stream already committed a 200; the failure arrives as a frame.
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}

	frames := decodeSSEFrames(t, rr.Body.String())
	if len(frames) != 2 {
		t.Fatalf("frames: got %d, want 2", len(frames))
	}
	if frames[1].Type != "error" {
		t.Errorf("second frame type: got %q, want error", frames[1].Type)
	}
	if frames[1].Content != domain.ErrModelUnavailable.Error() {
		t.Errorf("error content: got %q", frames[1].Content)
	}
}

func TestAskQuestionStream_RetrievalError(t *testing.T) {
	r, deps := newTestServer()
	deps.answers.err = domain.ErrEmbeddingProviderError

	rr := postJSON(t, r, "/questions/stream", `{"question":"q","tenant_id":"acme"}`)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadGateway)
	}
	if errResp := decodeErrorResponse(t, rr); errResp.Code != codeEmbeddingProviderErr {
		t.Errorf("error code: got %s, want %s", errResp.Code, codeEmbeddingProviderErr)
	}
}

func TestClearMemory(t *testing.T) {
	r, deps := newTestServer()

	rr := postJSON(t, r, "/memory/clear", `{"tenant_id":"acme"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["message"] != "cleared" {
		t.Errorf("message: got %q, want cleared", resp["message"])
	}
	if len(deps.memory.cleared) != 1 || deps.memory.cleared[0] != "acme" {
		t.Errorf("cleared tenants: got %v", deps.memory.cleared)
	}
}

func TestGetHistory_Success(t *testing.T) {
	r, deps := newTestServer()
	deps.memory.history = []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
	}

	req := httptest.NewRequest("GET", "/history/acme", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}

	var msgs []domain.Message
	if err := json.NewDecoder(rr.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != domain.RoleUser || msgs[1].Content != "hello" {
		t.Errorf("history: got %+v", msgs)
	}
}

func TestGetHistory_NoHistory404(t *testing.T) {
	r, deps := newTestServer()
	deps.memory.err = domain.ErrNoHistory

	req := httptest.NewRequest("GET", "/history/ghost", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
	if errResp := decodeErrorResponse(t, rr); errResp.Code != codeNotFound {
		t.Errorf("error code: got %s, want %s", errResp.Code, codeNotFound)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		r, _ := newTestServer()
		req := httptest.NewRequest("GET", "/healthz", http.NoBody)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
		}
	})

	t.Run("database down", func(t *testing.T) {
		r, deps := newTestServer()
		deps.db.err = errors.New("connection refused")

		req := httptest.NewRequest("GET", "/healthz", http.NoBody)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("status: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
		}
	})
}
