package domain

import "context"

// ChatModel generates a completion for an ordered message sequence.
type ChatModel interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// StreamingChatModel emits the completion incrementally. onToken is invoked
// once per token in generation order; a non-nil return from onToken stops
// generation. The full concatenated text is returned once the model finishes.
type StreamingChatModel interface {
	GenerateStream(ctx context.Context, messages []Message, onToken func(token string) error) (string, error)
}
