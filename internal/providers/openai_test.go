package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/conduit/internal/engine"
	"github.com/haasonsaas/conduit/pkg/models"
)

func TestNewOpenAIBackendDefaults(t *testing.T) {
	b, err := NewOpenAIBackend(OpenAIConfig{APIKey: "sk-test"}, nil)
	if err != nil {
		t.Fatalf("NewOpenAIBackend: %v", err)
	}
	if b.Name() != "openai" {
		t.Errorf("Name() = %q", b.Name())
	}
	if b.maxRetries != 3 {
		t.Errorf("maxRetries = %d", b.maxRetries)
	}
}

func TestOpenAIBackendNamedAfterProvider(t *testing.T) {
	b, err := NewOpenAIBackend(OpenAIConfig{Provider: "deepseek", APIKey: "sk"}, nil)
	if err != nil {
		t.Fatalf("NewOpenAIBackend: %v", err)
	}
	if b.Name() != "deepseek" {
		t.Errorf("Name() = %q", b.Name())
	}
}

func TestOpenAIBackendAllowsEmptyKey(t *testing.T) {
	if _, err := NewOpenAIBackend(OpenAIConfig{Provider: "ollama", BaseURL: "http://localhost:11434/v1"}, nil); err != nil {
		t.Fatalf("keyless config must be accepted: %v", err)
	}
}

func TestConvertOpenAIMessages(t *testing.T) {
	msgs := convertOpenAIMessages([]models.ChatMessage{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	}, "be brief")

	if len(msgs) != 3 {
		t.Fatalf("len = %d", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem || msgs[0].Content != "be brief" {
		t.Errorf("system turn = %+v", msgs[0])
	}
	if msgs[1].Role != openai.ChatMessageRoleUser {
		t.Errorf("user turn = %+v", msgs[1])
	}
	if msgs[2].Role != openai.ChatMessageRoleAssistant {
		t.Errorf("assistant turn = %+v", msgs[2])
	}
}

func TestConvertOpenAIMessagesNoSystem(t *testing.T) {
	msgs := convertOpenAIMessages([]models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}, "")
	if len(msgs) != 1 {
		t.Fatalf("len = %d", len(msgs))
	}
}

func sseChunk(content, reasoning, finish string) string {
	return fmt.Sprintf(
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":%q,"reasoning_content":%q},"finish_reason":%q}]}`,
		content, reasoning, finish)
}

func TestOpenAIBackendStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, data := range []string{
			sseChunk("", "thinking hard", ""),
			sseChunk("Hello", "", ""),
			sseChunk(" world", "", "stop"),
			"[DONE]",
		} {
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}))
	defer server.Close()

	b, err := NewOpenAIBackend(OpenAIConfig{
		Provider: "deepseek",
		APIKey:   "sk-test",
		BaseURL:  server.URL + "/v1",
	}, nil)
	if err != nil {
		t.Fatalf("NewOpenAIBackend: %v", err)
	}

	events, err := b.Stream(context.Background(), &engine.Request{
		Model:    "deepseek-r1",
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var text, reasoning string
	var done bool
	var reasoningEnds int
	for ev := range events {
		switch {
		case ev.Err != nil:
			t.Fatalf("stream error: %v", ev.Err)
		case ev.Text != "":
			text += ev.Text
		case ev.Reasoning != "":
			reasoning += ev.Reasoning
		case ev.ReasoningEnd:
			reasoningEnds++
		case ev.Done:
			done = true
		}
	}

	if text != "Hello world" {
		t.Errorf("text = %q", text)
	}
	if reasoning != "thinking hard" {
		t.Errorf("reasoning = %q", reasoning)
	}
	if reasoningEnds != 1 {
		t.Errorf("reasoning end events = %d", reasoningEnds)
	}
	if !done {
		t.Error("missing done event")
	}
}

func TestOpenAIBackendStreamCancelClosesChannel(t *testing.T) {
	// A consumer that cancels and walks away must not strand the drain
	// goroutine on a send; the channel has to reach closure on its own.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "data: %s\n\n", sseChunk("Hello", "", ""))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	b, err := NewOpenAIBackend(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1"}, nil)
	if err != nil {
		t.Fatalf("NewOpenAIBackend: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := b.Stream(ctx, &engine.Request{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if ev := <-events; ev.Text != "Hello" {
		t.Fatalf("first event = %+v", ev)
	}

	cancel()
	// No receiver while the backend observes the cancellation.
	time.Sleep(200 * time.Millisecond)

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed channel after cancellation, got a pending event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel still open after cancellation")
	}
}

func TestOpenAIBackendStreamOpenFailureNotRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	b, err := NewOpenAIBackend(OpenAIConfig{APIKey: "sk-bad", BaseURL: server.URL + "/v1"}, nil)
	if err != nil {
		t.Fatalf("NewOpenAIBackend: %v", err)
	}

	if _, err := b.Stream(context.Background(), &engine.Request{Model: "gpt-4o"}); err == nil {
		t.Fatal("expected open error")
	}
}

func TestRetryableErrors(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"rate_limit exceeded", true},
		{"status 429 too many requests", true},
		{"503 service unavailable", true},
		{"context deadline exceeded", true},
		{"connection refused", true},
		{"invalid api key", false},
		{"400 bad request", false},
	}
	for _, tt := range tests {
		if got := retryable(fmt.Errorf("%s", tt.msg)); got != tt.want {
			t.Errorf("retryable(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
	if retryable(nil) {
		t.Error("retryable(nil) = true")
	}
}
