package answer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cortexa-labs/ragserve/internal/domain"
	"github.com/cortexa-labs/ragserve/internal/metrics"
)

// StreamEvent is one emission of the streaming answer path. Token events
// carry one model token; the terminal event has Last set and carries the
// complete Answer; a failed stream ends with Err set instead.
type StreamEvent struct {
	Token  string
	Last   bool
	Answer *domain.Answer
	Err    error
}

// AnswerStream runs the streaming question path. Tokens are emitted in
// generation order as the model produces them; the channel closes after the
// terminal event. Memory writes and the eviction timer are applied only
// once the model stream has fully drained — a cancelled stream leaves no
// trace in the conversation.
func (s *Service) AnswerStream(ctx context.Context, tenantID, question string) (<-chan StreamEvent, error) {
	if err := validate(tenantID, question); err != nil {
		return nil, err
	}

	history := s.historySnapshot(tenantID)

	matches, err := s.retriever.Retrieve(ctx, tenantID, question, s.topK)
	if err != nil {
		metrics.QuestionsTotal.WithLabelValues("stream", "error").Inc()
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)

		if len(matches) == 0 {
			ans := domain.NewAnswer(question, emptyIndexAnswer, nil)
			if !emit(ctx, events, StreamEvent{Token: ans.Result}) {
				return
			}
			if !emit(ctx, events, StreamEvent{Last: true, Answer: &ans}) {
				return
			}
			s.commitStream(tenantID, question, ans.Result)
			metrics.QuestionsTotal.WithLabelValues("stream", "empty_index").Inc()
			return
		}

		result, err := s.stream.GenerateStream(ctx, buildMessages(matches, history, question),
			func(token string) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				if !emit(ctx, events, StreamEvent{Token: token}) {
					return ctx.Err()
				}
				return nil
			})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logger.Debug("answer stream cancelled", zap.String("tenant_id", tenantID))
				return
			}
			metrics.QuestionsTotal.WithLabelValues("stream", "error").Inc()
			emit(ctx, events, StreamEvent{Err: fmt.Errorf("generate answer: %w", err)})
			return
		}

		// A consumer that cancelled between the last token and here gets
		// no terminal event and leaves no trace in memory.
		if ctx.Err() != nil {
			return
		}
		ans := domain.NewAnswer(question, result, matchChunks(matches))
		if !emit(ctx, events, StreamEvent{Last: true, Answer: &ans}) {
			return
		}
		if ctx.Err() != nil {
			return
		}

		s.commitStream(tenantID, question, result)
		metrics.QuestionsTotal.WithLabelValues("stream", "ok").Inc()
		s.logger.Info("question answered",
			zap.String("tenant_id", tenantID),
			zap.Int("sources", len(ans.Sources)),
			zap.Bool("streamed", true),
		)
	}()

	return events, nil
}

// commitStream records both turns once the stream has drained.
func (s *Service) commitStream(tenantID, question, result string) {
	s.memory.Append(tenantID,
		domain.Message{Role: domain.RoleUser, Content: question},
		domain.Message{Role: domain.RoleAssistant, Content: result},
	)
	s.memory.ArmEviction(tenantID)
}

// emit delivers one event unless the consumer's context is gone.
func emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
