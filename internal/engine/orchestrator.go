package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/conduit/internal/observability"
	"github.com/haasonsaas/conduit/pkg/models"
)

// MaxDepth is the pass bound for tool recursion: a model that keeps
// requesting tools gets exactly this many passes before the exchange
// finalizes with whatever was produced.
const MaxDepth = 3

// aggregatedTextCap bounds the tool-tag scanning window. Tags show up
// near the point of emission, so only the tail matters.
const aggregatedTextCap = 64 * 1024

// toolExecutor is the coordinator surface the orchestrator needs.
type toolExecutor interface {
	Execute(ctx context.Context, reqs []models.ToolUseRequest, cb Callbacks) (string, error)
}

// Config sets up an orchestrator for one provider/model pair.
type Config struct {
	Provider    string
	Model       string
	System      string
	MaxTokens   int
	Temperature float32
	// MaxDepth overrides the default pass bound when positive.
	MaxDepth int
}

// Orchestrator drives one exchange at a time: a pass streams model
// output, detected tool requests are executed, and their results feed
// the next pass.
type Orchestrator struct {
	backend  Backend
	tools    toolExecutor
	logger   *slog.Logger
	metrics  *observability.Metrics
	cfg      Config
	maxDepth int

	supportsReasoning bool
}

// NewOrchestrator creates an orchestrator. tools may be nil when no tool
// servers are configured; detected tool tags then finalize the exchange.
// metrics may be nil.
func NewOrchestrator(backend Backend, tools *Coordinator, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = MaxDepth
	}

	o := &Orchestrator{
		backend:           backend,
		logger:            logger.With("component", "orchestrator", "provider", cfg.Provider, "model", cfg.Model),
		metrics:           metrics,
		cfg:               cfg,
		maxDepth:          maxDepth,
		supportsReasoning: SupportsReasoning(cfg.Provider, cfg.Model),
	}
	if tools != nil {
		o.tools = tools
	}
	return o
}

// exchange is the state shared by one Run across its passes.
type exchange struct {
	logger    *slog.Logger
	text      strings.Builder
	passes    int
	toolCalls int
	cancelled bool
}

// Run executes a full exchange over the initial messages. The error
// callback fires at most once, for fatal errors only; cancellation and
// the recursion bound finalize with partial output instead.
func (o *Orchestrator) Run(ctx context.Context, messages []models.ChatMessage, cb Callbacks) error {
	o.metrics.ExchangeStarted()

	st := &exchange{logger: o.logger.With("exchange", uuid.NewString())}
	if err := o.runPass(ctx, messages, 1, st, cb); err != nil {
		cb.fail(err)
		return err
	}

	cb.done(Outcome{
		Text:      st.text.String(),
		Passes:    st.passes,
		ToolCalls: st.toolCalls,
		Cancelled: st.cancelled,
	})
	return nil
}

// runPass streams one backend pass and recurses when tools were used.
func (o *Orchestrator) runPass(ctx context.Context, messages []models.ChatMessage, depth int, st *exchange, cb Callbacks) error {
	st.passes = depth
	o.metrics.PassRun()
	st.logger.Debug("starting pass", "depth", depth)

	events, err := o.backend.Stream(ctx, &Request{
		Model:       o.cfg.Model,
		System:      o.cfg.System,
		Messages:    messages,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	})
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}

	window := newTextWindow(aggregatedTextCap)
	toolDetected := false
	didFinish := false
	reasoningOpen := false

drain:
	for {
		select {
		case <-ctx.Done():
			st.cancelled = true
			break drain
		case ev, ok := <-events:
			if !ok {
				break drain
			}

			switch {
			case ev.Err != nil:
				if didFinish {
					// Some backends emit a stray error after a clean
					// finish; it carries no information about this pass.
					st.logger.Debug("late stream error discarded", "error", ev.Err)
					o.metrics.RecordStreamError("late_discarded")
					continue
				}
				if st.cancelled {
					st.logger.Debug("post-cancellation error discarded", "error", ev.Err)
					o.metrics.RecordStreamError("late_discarded")
					continue
				}
				o.metrics.RecordStreamError("fatal")
				return fmt.Errorf("stream: %w", ev.Err)

			case ev.Done:
				didFinish = true

			case ev.ReasoningStart:
				if o.supportsReasoning {
					reasoningOpen = true
					cb.reasoningStart()
				}

			case ev.ReasoningEnd:
				if o.supportsReasoning && reasoningOpen {
					reasoningOpen = false
					cb.reasoningEnd()
				}

			case ev.Reasoning != "":
				if o.supportsReasoning {
					if !reasoningOpen {
						reasoningOpen = true
						cb.reasoningStart()
					}
					cb.reasoning(ev.Reasoning)
				}

			case ev.Text != "":
				window.Append(ev.Text)
				if toolDetected {
					continue
				}
				cb.text(ev.Text)
				st.text.WriteString(ev.Text)
				if HasToolTag(window.String()) {
					toolDetected = true
				}
			}
		}
	}

	if reasoningOpen {
		cb.reasoningEnd()
	}

	if st.cancelled {
		st.logger.Debug("exchange cancelled", "depth", depth)
		return nil
	}

	toolReqs := ParseToolTags(window.String())
	if len(toolReqs) == 0 {
		return nil
	}

	if o.tools == nil {
		st.logger.Warn("tool request with no tool servers configured", "tools", len(toolReqs))
		return nil
	}
	if depth >= o.maxDepth {
		st.logger.Warn("tool recursion bound reached, finalizing with partial output", "depth", depth)
		return nil
	}

	st.toolCalls += len(toolReqs)
	summary, err := o.tools.Execute(ctx, toolReqs, cb)
	if err != nil {
		if ctx.Err() != nil {
			st.cancelled = true
			return nil
		}
		st.logger.Warn("tool execution failed, finalizing with partial output", "error", err)
		return nil
	}

	next := make([]models.ChatMessage, 0, len(messages)+2)
	next = append(next, messages...)
	next = append(next,
		models.ChatMessage{Role: models.RoleAssistant, Content: window.String()},
		models.ChatMessage{Role: models.RoleUser, Content: summary},
	)
	return o.runPass(ctx, next, depth+1, st, cb)
}

// textWindow keeps the tail of the pass's text for tag scanning.
type textWindow struct {
	buf []byte
	max int
}

func newTextWindow(max int) *textWindow {
	return &textWindow{max: max}
}

func (w *textWindow) Append(s string) {
	w.buf = append(w.buf, s...)
	if len(w.buf) > w.max {
		tail := w.buf[len(w.buf)-w.max:]
		w.buf = append(make([]byte, 0, w.max), tail...)
	}
}

func (w *textWindow) String() string {
	return string(w.buf)
}
