package answer

import (
	"context"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/cortexa-labs/ragserve/internal/domain"
	"github.com/cortexa-labs/ragserve/internal/vectorstore"
)

// mockRetriever returns scripted matches.
type mockRetriever struct {
	matches []vectorstore.Match
	err     error
	lastK   int
}

func (m *mockRetriever) Retrieve(_ context.Context, _ string, _ string, k int) ([]vectorstore.Match, error) {
	m.lastK = k
	return m.matches, m.err
}

// mockMemory records transcript mutations.
type mockMemory struct {
	mu       sync.Mutex
	msgs     map[string][]domain.Message
	armCalls int
}

func newMockMemory() *mockMemory {
	return &mockMemory{msgs: make(map[string][]domain.Message)}
}

func (m *mockMemory) Append(tenantID string, msgs ...domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs[tenantID] = append(m.msgs[tenantID], msgs...)
}

func (m *mockMemory) History(tenantID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs, ok := m.msgs[tenantID]
	if !ok {
		return nil, domain.ErrNoHistory
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *mockMemory) ArmEviction(_ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armCalls++
}

func (m *mockMemory) transcript(tenantID string) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Message, len(m.msgs[tenantID]))
	copy(out, m.msgs[tenantID])
	return out
}

// scriptedModel emits a fixed token sequence for both the sync and the
// streaming contract, recording the prompt it was given.
type scriptedModel struct {
	tokens   []string
	err      error
	lastMsgs []domain.Message
	calls    int
}

func (m *scriptedModel) Generate(_ context.Context, messages []domain.Message) (string, error) {
	m.calls++
	m.lastMsgs = messages
	if m.err != nil {
		return "", m.err
	}
	return strings.Join(m.tokens, ""), nil
}

func (m *scriptedModel) GenerateStream(
	_ context.Context, messages []domain.Message, onToken func(string) error,
) (string, error) {
	m.calls++
	m.lastMsgs = messages
	var full strings.Builder
	for _, token := range m.tokens {
		if m.err != nil && full.Len() > 0 {
			// Fail partway through, after at least one token went out.
			return "", m.err
		}
		full.WriteString(token)
		if err := onToken(token); err != nil {
			return "", err
		}
	}
	if m.err != nil {
		return "", m.err
	}
	return full.String(), nil
}

func match(tenantID, docID string, index int, text string) vectorstore.Match {
	return vectorstore.Match{
		Chunk: domain.Chunk{
			Metadata: domain.ChunkMetadata{TenantID: tenantID, DocumentID: docID, ChunkIndex: index},
			Text:     text,
		},
		Score: 1.0 - float64(index)*0.1,
	}
}

func newTestService(t *testing.T, r *mockRetriever, mem *mockMemory, model *scriptedModel) *Service {
	t.Helper()
	return New(r, mem, model, model, DefaultTopK, zap.NewNop())
}
