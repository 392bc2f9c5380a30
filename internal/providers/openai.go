package providers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/conduit/internal/engine"
	"github.com/haasonsaas/conduit/pkg/models"
)

// OpenAIBackend streams completions over the OpenAI chat-completions
// wire format. With a custom BaseURL it serves every compatible
// gateway, so Name reports the routed provider rather than "openai".
type OpenAIBackend struct {
	client     *openai.Client
	name       string
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
}

// OpenAIConfig configures an OpenAIBackend.
type OpenAIConfig struct {
	// Provider is the routed provider name, used for logging and Name.
	Provider   string
	APIKey     string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
}

// NewOpenAIBackend creates a chat-completions backend. An empty APIKey
// is allowed for keyless local endpoints.
func NewOpenAIBackend(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIBackend, error) {
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIBackend{
		client:     openai.NewClientWithConfig(clientConfig),
		name:       cfg.Provider,
		logger:     logger.With("component", "backend", "backend", cfg.Provider),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

func (b *OpenAIBackend) Name() string { return b.name }

// Stream opens one streaming pass. The open call is retried with
// linear backoff on transient failures; a non-retryable failure is
// returned immediately.
func (b *OpenAIBackend) Stream(ctx context.Context, req *engine.Request) (<-chan engine.StreamEvent, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: convertOpenAIMessages(req.Messages, req.System),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = req.Temperature
	}

	var stream *openai.ChatCompletionStream
	var lastErr error
	for attempt := 0; attempt < b.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.retryDelay * time.Duration(attempt)):
			}
		}

		stream, lastErr = b.client.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !retryable(lastErr) {
			return nil, lastErr
		}
		b.logger.Warn("stream open failed, retrying", "attempt", attempt+1, "error", lastErr)
	}
	if lastErr != nil {
		return nil, lastErr
	}

	events := make(chan engine.StreamEvent)
	go b.drain(ctx, stream, events)
	return events, nil
}

// drain converts completion deltas into engine events. reasoning_content
// deltas (deepseek and friends) map to reasoning events; the span start
// is left implicit for the orchestrator to synthesize. A caller that
// cancels stops receiving, so every send also watches ctx; bailing out
// closes the channel and releases the HTTP stream.
func (b *OpenAIBackend) drain(ctx context.Context, stream *openai.ChatCompletionStream, events chan<- engine.StreamEvent) {
	defer close(events)
	defer stream.Close()

	emit := func(ev engine.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	inReasoning := false
	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if inReasoning && !emit(engine.StreamEvent{ReasoningEnd: true}) {
					return
				}
				emit(engine.StreamEvent{Done: true})
				return
			}
			emit(engine.StreamEvent{Err: err})
			return
		}

		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta

		if delta.ReasoningContent != "" {
			inReasoning = true
			if !emit(engine.StreamEvent{Reasoning: delta.ReasoningContent}) {
				return
			}
		}
		if delta.Content != "" {
			if inReasoning {
				inReasoning = false
				if !emit(engine.StreamEvent{ReasoningEnd: true}) {
					return
				}
			}
			if !emit(engine.StreamEvent{Text: delta.Content}) {
				return
			}
		}

		if response.Choices[0].FinishReason == openai.FinishReasonStop {
			if inReasoning {
				if !emit(engine.StreamEvent{ReasoningEnd: true}) {
					return
				}
				inReasoning = false
			}
		}
	}
}

// convertOpenAIMessages maps chat turns to the OpenAI message format.
// The system prompt becomes the leading message.
func convertOpenAIMessages(messages []models.ChatMessage, system string) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case models.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case models.RoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		result = append(result, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return result
}
