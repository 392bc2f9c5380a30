// Package engine drives multi-pass streaming exchanges: it opens one
// backend stream per pass, separates reasoning from ordinary text,
// detects in-band tool requests, executes them, and feeds the results
// into the next pass.
package engine

import (
	"context"

	"github.com/haasonsaas/conduit/pkg/models"
)

// StreamEvent is one unit of backend output. Exactly one of the fields
// is meaningful per event: a text delta, a reasoning delta or span
// boundary, a terminal Done, or an Err.
type StreamEvent struct {
	Text           string
	Reasoning      string
	ReasoningStart bool
	ReasoningEnd   bool
	Done           bool
	Err            error
}

// Request is the input to a single backend pass.
type Request struct {
	Model       string
	System      string
	Messages    []models.ChatMessage
	MaxTokens   int
	Temperature float32
}

// Backend streams completion events for a request. The returned channel
// is closed when the stream ends; a Done event precedes the close on a
// clean finish.
type Backend interface {
	Name() string
	Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error)
}

// Outcome summarizes a finished exchange.
type Outcome struct {
	// Text is everything forwarded through the text callback, across
	// all passes.
	Text      string
	Passes    int
	ToolCalls int
	// Cancelled is set when the exchange stopped because the caller's
	// context was cancelled rather than because the model finished.
	Cancelled bool
}

// Callbacks receive orchestrated output. Any field may be nil.
type Callbacks struct {
	OnText           func(text string)
	OnReasoningStart func()
	OnReasoning      func(text string)
	OnReasoningEnd   func()
	OnToolCall       func(req models.ToolUseRequest)
	OnToolResult     func(result models.ToolExecutionResult)
	OnDone           func(outcome Outcome)
	OnError          func(err error)
}

func (c Callbacks) text(s string) {
	if c.OnText != nil {
		c.OnText(s)
	}
}

func (c Callbacks) reasoningStart() {
	if c.OnReasoningStart != nil {
		c.OnReasoningStart()
	}
}

func (c Callbacks) reasoning(s string) {
	if c.OnReasoning != nil {
		c.OnReasoning(s)
	}
}

func (c Callbacks) reasoningEnd() {
	if c.OnReasoningEnd != nil {
		c.OnReasoningEnd()
	}
}

func (c Callbacks) toolCall(req models.ToolUseRequest) {
	if c.OnToolCall != nil {
		c.OnToolCall(req)
	}
}

func (c Callbacks) toolResult(result models.ToolExecutionResult) {
	if c.OnToolResult != nil {
		c.OnToolResult(result)
	}
}

func (c Callbacks) done(outcome Outcome) {
	if c.OnDone != nil {
		c.OnDone(outcome)
	}
}

func (c Callbacks) fail(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}
