// Package providers implements the LLM backends behind the engine.
//
// Two transports cover every routed provider: the native Anthropic
// messages API and the OpenAI chat-completions wire format, which the
// compatible gateways (deepseek, groq, mistral, openrouter, together,
// xai, ollama) all speak. Each backend converts its SDK's stream
// events into engine.StreamEvent values on a channel that closes when
// the stream ends.
package providers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/conduit/internal/engine"
	"github.com/haasonsaas/conduit/pkg/models"
)

const defaultMaxTokens = 4096

// maxEmptyStreamEvents bounds consecutive events that carry nothing.
// A stream that floods empty events is treated as malformed.
const maxEmptyStreamEvents = 300

// AnthropicBackend streams completions over the native Anthropic
// messages API. Safe for concurrent use; each Stream call owns an
// independent SSE stream and goroutine.
type AnthropicBackend struct {
	client     anthropic.Client
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
}

// AnthropicConfig configures an AnthropicBackend.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
}

// NewAnthropicBackend creates a native Anthropic backend.
func NewAnthropicBackend(cfg AnthropicConfig, logger *slog.Logger) (*AnthropicBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
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

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicBackend{
		client:     anthropic.NewClient(opts...),
		logger:     logger.With("component", "backend", "backend", "anthropic"),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

func (b *AnthropicBackend) Name() string { return "anthropic" }

// Stream opens one streaming pass. Transient open failures are retried
// with exponential backoff; in-stream failures arrive as Err events.
func (b *AnthropicBackend) Stream(ctx context.Context, req *engine.Request) (<-chan engine.StreamEvent, error) {
	events := make(chan engine.StreamEvent)

	go func() {
		defer close(events)

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		for attempt := 0; ; attempt++ {
			stream = b.client.Messages.NewStreaming(ctx, b.params(req))
			if stream.Err() == nil {
				break
			}
			err := stream.Err()
			if attempt >= b.maxRetries || !retryable(err) {
				select {
				case events <- engine.StreamEvent{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			backoff := b.retryDelay << attempt
			b.logger.Warn("stream open failed, retrying",
				"attempt", attempt+1,
				"backoff", backoff,
				"error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}

		b.drain(ctx, stream, events)
	}()

	return events, nil
}

func (b *AnthropicBackend) params(req *engine.Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  convertMessages(req.Messages),
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}
	return params
}

// drain converts SSE events into engine events until the stream ends.
// Thinking blocks map to reasoning span events; the orchestrator gates
// them on model capability. A caller that cancels stops receiving, so
// every send also watches ctx.
func (b *AnthropicBackend) drain(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], events chan<- engine.StreamEvent) {
	emit := func(ev engine.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	inThinking := false
	empty := 0

	for stream.Next() {
		event := stream.Current()
		produced := false

		switch event.Type {
		case "content_block_start":
			start := event.AsContentBlockStart()
			if start.ContentBlock.Type == "thinking" {
				inThinking = true
				if !emit(engine.StreamEvent{ReasoningStart: true}) {
					return
				}
				produced = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					if !emit(engine.StreamEvent{Text: delta.Text}) {
						return
					}
					produced = true
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					if !emit(engine.StreamEvent{Reasoning: delta.Thinking}) {
						return
					}
					produced = true
				}
			}

		case "content_block_stop":
			if inThinking {
				inThinking = false
				if !emit(engine.StreamEvent{ReasoningEnd: true}) {
					return
				}
				produced = true
			}

		case "message_stop":
			emit(engine.StreamEvent{Done: true})
			return

		case "error":
			emit(engine.StreamEvent{Err: errors.New("anthropic: stream error")})
			return
		}

		if produced {
			empty = 0
		} else if empty++; empty >= maxEmptyStreamEvents {
			emit(engine.StreamEvent{Err: errors.New("anthropic: malformed stream, too many empty events")})
			return
		}
	}

	if err := stream.Err(); err != nil {
		emit(engine.StreamEvent{Err: err})
	}
}

// convertMessages maps chat turns to the Anthropic block format. System
// turns are skipped; they travel in params.System.
func convertMessages(messages []models.ChatMessage) []anthropic.MessageParam {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == models.RoleSystem || msg.Content == "" {
			continue
		}
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(block))
		} else {
			result = append(result, anthropic.NewUserMessage(block))
		}
	}
	return result
}

// retryable reports whether an open failure is worth another attempt.
// Rate limits, 5xx responses, and connectivity blips qualify.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate_limit", "429", "too many requests",
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
