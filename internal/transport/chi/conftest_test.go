package chi

import (
	"context"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cortexa-labs/ragserve/internal/answer"
	"github.com/cortexa-labs/ragserve/internal/crawler"
	"github.com/cortexa-labs/ragserve/internal/domain"
	"github.com/cortexa-labs/ragserve/internal/ingest"
)

// mockIngester is a test double for DocumentIngester.
type mockIngester struct {
	results    []ingest.ItemResult
	chunks     int
	err        error
	lastTenant string
	lastDocID  string
	lastURL    string
	lastItems  []ingest.Item
}

func (m *mockIngester) IngestDocument(
	_ context.Context, tenantID, documentID string, items []ingest.Item,
) ([]ingest.ItemResult, error) {
	m.lastTenant = tenantID
	m.lastDocID = documentID
	m.lastItems = items
	return m.results, m.err
}

func (m *mockIngester) IngestURL(_ context.Context, tenantID, documentID, url string) (int, error) {
	m.lastTenant = tenantID
	m.lastDocID = documentID
	m.lastURL = url
	return m.chunks, m.err
}

// mockCrawler is a test double for SiteCrawler.
type mockCrawler struct {
	report     crawler.Report
	err        error
	lastTenant string
	lastURL    string
}

func (m *mockCrawler) CrawlSite(_ context.Context, tenantID, seedURL string) (crawler.Report, error) {
	m.lastTenant = tenantID
	m.lastURL = seedURL
	return m.report, m.err
}

// mockAnswerer is a test double for Answerer. events feed the stream path.
type mockAnswerer struct {
	answer       domain.Answer
	events       []answer.StreamEvent
	err          error
	lastTenant   string
	lastQuestion string
}

func (m *mockAnswerer) Answer(_ context.Context, tenantID, question string) (domain.Answer, error) {
	m.lastTenant = tenantID
	m.lastQuestion = question
	return m.answer, m.err
}

func (m *mockAnswerer) AnswerStream(
	_ context.Context, tenantID, question string,
) (<-chan answer.StreamEvent, error) {
	m.lastTenant = tenantID
	m.lastQuestion = question
	if m.err != nil {
		return nil, m.err
	}
	events := make(chan answer.StreamEvent)
	go func() {
		defer close(events)
		for _, ev := range m.events {
			events <- ev
		}
	}()
	return events, nil
}

// mockMemory is a test double for ConversationMemory.
type mockMemory struct {
	history []domain.Message
	err     error
	cleared []string
}

func (m *mockMemory) History(string) ([]domain.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.history, nil
}

func (m *mockMemory) Clear(tenantID string) {
	m.cleared = append(m.cleared, tenantID)
}

// mockPinger is a test double for Pinger.
type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }

// testDeps bundles the server's mocked collaborators.
type testDeps struct {
	ingester *mockIngester
	crawler  *mockCrawler
	answers  *mockAnswerer
	memory   *mockMemory
	db       *mockPinger
}

func newTestServer() (*chirouter.Mux, *testDeps) {
	deps := &testDeps{
		ingester: &mockIngester{},
		crawler:  &mockCrawler{},
		answers:  &mockAnswerer{},
		memory:   &mockMemory{},
		db:       &mockPinger{},
	}
	srv := NewServer(deps.ingester, deps.crawler, deps.answers, deps.memory, deps.db, zap.NewNop())
	r := chirouter.NewRouter()
	srv.Routes(r)
	return r, deps
}
