package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/cortexa-labs/ragserve/internal/domain"
)

// temperature 0: answers must be grounded in the retrieved context, not
// sampled creatively.
const chatTemperature = 0

// ChatModel is a chat completion provider using the OpenAI-compatible API.
// Implements both domain.ChatModel and domain.StreamingChatModel.
type ChatModel struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// ChatConfig holds the chat provider settings.
type ChatConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewChatModel creates an OpenAI-compatible chat completion provider.
func NewChatModel(cfg *ChatConfig) *ChatModel {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &ChatModel{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// Generate implements domain.ChatModel.
func (c *ChatModel) Generate(ctx context.Context, messages []domain.Message) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toChatMessages(messages),
		Temperature: chatTemperature,
	})
	if err != nil {
		return "", chatError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat response: %w", domain.ErrModelUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream implements domain.StreamingChatModel. Tokens are forwarded
// in generation order; an onToken error stops the stream and is returned
// unchanged so callers can distinguish their own aborts from provider
// failures.
func (c *ChatModel) GenerateStream(
	ctx context.Context, messages []domain.Message, onToken func(token string) error,
) (string, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toChatMessages(messages),
		Temperature: chatTemperature,
		Stream:      true,
	})
	if err != nil {
		return "", chatError(err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", chatError(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		token := chunk.Choices[0].Delta.Content
		if token == "" {
			continue
		}
		full.WriteString(token)
		if err := onToken(token); err != nil {
			return "", err
		}
	}

	return full.String(), nil
}

func toChatMessages(messages []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}
	return out
}

// chatError wraps provider failures with domain.ErrModelUnavailable for
// correct 503 mapping. Context cancellation passes through untouched.
func chatError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("chat API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrModelUnavailable)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("chat API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), domain.ErrModelUnavailable)
	}

	return fmt.Errorf("chat request failed: %w: %w", domain.ErrModelUnavailable, err)
}
