// Package answer implements the retrieval-augmented question answerer over
// a tenant's indexed chunks and conversation memory.
package answer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cortexa-labs/ragserve/internal/domain"
	"github.com/cortexa-labs/ragserve/internal/metrics"
	"github.com/cortexa-labs/ragserve/internal/vectorstore"
)

// DefaultTopK is how many chunks ground an answer.
const DefaultTopK = 3

// Service answers questions against one tenant's knowledge.
type Service struct {
	retriever Retriever
	memory    Memory
	chat      domain.ChatModel
	stream    domain.StreamingChatModel
	topK      int
	logger    *zap.Logger
}

// New creates an answer service. stream may equal chat when the provider
// implements both contracts.
func New(
	retriever Retriever,
	memory Memory,
	chat domain.ChatModel,
	stream domain.StreamingChatModel,
	topK int,
	logger *zap.Logger,
) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{
		retriever: retriever,
		memory:    memory,
		chat:      chat,
		stream:    stream,
		topK:      topK,
		logger:    logger,
	}
}

// Answer runs the synchronous question path: retrieve, generate, remember.
// A tenant with no indexed knowledge gets a fixed answer without a model
// call. No tenant lock is held during the provider round-trips.
func (s *Service) Answer(ctx context.Context, tenantID, question string) (domain.Answer, error) {
	if err := validate(tenantID, question); err != nil {
		return domain.Answer{}, err
	}

	history := s.historySnapshot(tenantID)
	s.memory.Append(tenantID, domain.Message{Role: domain.RoleUser, Content: question})

	matches, err := s.retriever.Retrieve(ctx, tenantID, question, s.topK)
	if err != nil {
		metrics.QuestionsTotal.WithLabelValues("sync", "error").Inc()
		return domain.Answer{}, fmt.Errorf("retrieve context: %w", err)
	}

	if len(matches) == 0 {
		ans := domain.NewAnswer(question, emptyIndexAnswer, nil)
		s.commit(tenantID, ans.Result)
		metrics.QuestionsTotal.WithLabelValues("sync", "empty_index").Inc()
		return ans, nil
	}

	result, err := s.chat.Generate(ctx, buildMessages(matches, history, question))
	if err != nil {
		metrics.QuestionsTotal.WithLabelValues("sync", "error").Inc()
		return domain.Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	ans := domain.NewAnswer(question, result, matchChunks(matches))
	s.commit(tenantID, result)
	metrics.QuestionsTotal.WithLabelValues("sync", "ok").Inc()

	s.logger.Info("question answered",
		zap.String("tenant_id", tenantID),
		zap.Int("sources", len(ans.Sources)),
	)
	return ans, nil
}

// commit records the assistant turn and refreshes the tenant's idle timer.
func (s *Service) commit(tenantID, result string) {
	s.memory.Append(tenantID, domain.Message{Role: domain.RoleAssistant, Content: result})
	s.memory.ArmEviction(tenantID)
}

// historySnapshot returns prior turns, treating an absent tenant as an
// empty conversation.
func (s *Service) historySnapshot(tenantID string) []domain.Message {
	history, err := s.memory.History(tenantID)
	if err != nil && !errors.Is(err, domain.ErrNoHistory) {
		s.logger.Warn("history snapshot failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}
	return history
}

func matchChunks(matches []vectorstore.Match) []domain.Chunk {
	chunks := make([]domain.Chunk, len(matches))
	for i, m := range matches {
		chunks[i] = m.Chunk
	}
	return chunks
}

func validate(tenantID, question string) error {
	if tenantID == "" {
		return errors.New("tenant id is required")
	}
	if question == "" {
		return errors.New("question is required")
	}
	return nil
}
