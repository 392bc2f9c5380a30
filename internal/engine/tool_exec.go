package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/conduit/internal/errclass"
	"github.com/haasonsaas/conduit/internal/mcp"
	"github.com/haasonsaas/conduit/internal/observability"
	"github.com/haasonsaas/conduit/pkg/models"
)

// ToolSource resolves and invokes tools. *mcp.Pool implements it.
type ToolSource interface {
	FindTool(ctx context.Context, name string) (*mcp.ToolLocation, error)
	CallTool(ctx context.Context, serverID, name string, arguments map[string]any) (*mcp.ToolCallResult, error)
}

// Coordinator executes a batch of tool requests sequentially, in request
// order. Failures are isolated per entry: a bad tool never aborts the
// rest of the batch.
type Coordinator struct {
	source  ToolSource
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewCoordinator creates a coordinator over a tool source. metrics may
// be nil.
func NewCoordinator(source ToolSource, logger *slog.Logger, metrics *observability.Metrics) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		source:  source,
		logger:  logger.With("component", "tool-exec"),
		metrics: metrics,
	}
}

// Execute runs every request and returns a single text block suitable as
// the next turn's content. Tool-call and tool-result callbacks fire for
// every entry regardless of outcome. The only batch-level error is
// context cancellation.
func (c *Coordinator) Execute(ctx context.Context, reqs []models.ToolUseRequest, cb Callbacks) (string, error) {
	var blocks []string
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return strings.Join(blocks, "\n\n"), err
		}

		cb.toolCall(req)
		result := c.executeOne(ctx, req)
		cb.toolResult(result)

		status := "success"
		if result.IsError {
			status = "error"
		}
		c.metrics.RecordToolExecution(result.ToolName, status, result.Duration.Seconds())

		blocks = append(blocks, formatResult(result))
	}
	return strings.Join(blocks, "\n\n"), nil
}

// executeOne resolves, validates, and invokes a single request. Every
// failure mode returns a synthesized error result instead of an error.
func (c *Coordinator) executeOne(ctx context.Context, req models.ToolUseRequest) models.ToolExecutionResult {
	start := time.Now()

	loc, err := c.source.FindTool(ctx, req.ToolName)
	if err != nil {
		c.logger.Warn("tool not found", "tool", req.ToolName)
		return errorResult(req.ToolName, fmt.Sprintf("tool not found: %s", req.ToolName), start)
	}

	if loc.Config.AutoApproveDisabled(req.ToolName) {
		c.logger.Info("tool requires approval", "tool", req.ToolName, "server", loc.ServerID)
		return errorResult(req.ToolName, "approval required: this tool is excluded from auto-approval", start)
	}

	args, argErr := coerceArguments(req.Arguments)
	if argErr != nil {
		return errorResult(req.ToolName, fmt.Sprintf("invalid arguments [%s]: %v", errclass.ParameterError, argErr), start)
	}

	if len(loc.Tool.InputSchema) > 0 {
		if err := validateArguments(loc.Tool.InputSchema, args); err != nil {
			c.logger.Warn("tool arguments rejected by schema", "tool", req.ToolName, "error", err)
			return errorResult(req.ToolName, fmt.Sprintf("invalid arguments [%s]: %v", errclass.ParameterError, err), start)
		}
	}

	callResult, err := c.source.CallTool(ctx, loc.ServerID, req.ToolName, args)
	if err != nil {
		category := errclass.Classify(err)
		c.logger.Warn("tool invocation failed",
			"tool", req.ToolName,
			"server", loc.ServerID,
			"category", string(category),
			"retryable", category.Retryable(),
			"error", err)
		return errorResult(req.ToolName, fmt.Sprintf("invocation failed [%s]: %v", category, err), start)
	}

	result := models.ToolExecutionResult{
		ToolName: req.ToolName,
		IsError:  callResult.IsError,
		Duration: time.Since(start),
	}
	for _, item := range callResult.Content {
		result.Content = append(result.Content, contentItem(item))
	}
	return result
}

// coerceArguments shapes parsed tag arguments into the object form tool
// servers expect.
func coerceArguments(v any) (map[string]any, error) {
	switch args := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return args, nil
	case string:
		// Raw-string fallback from the tag parser. Servers want an
		// object, so the text rides in a conventional field.
		return map[string]any{"input": args}, nil
	default:
		return nil, fmt.Errorf("arguments must be a JSON object, got %T", v)
	}
}

// validateArguments checks the coerced arguments against the tool's
// declared input schema before anything goes over the wire. Coercion
// runs first so raw-string fallbacks are judged in their wire shape.
func validateArguments(schema []byte, args map[string]any) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool-input.json", bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	compiled, err := compiler.Compile("tool-input.json")
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	if args == nil {
		args = map[string]any{}
	}
	return compiled.Validate(args)
}

func errorResult(name, message string, start time.Time) models.ToolExecutionResult {
	return models.ToolExecutionResult{
		ToolName: name,
		Content:  []models.ContentItem{{Kind: models.ContentText, Text: message}},
		IsError:  true,
		Duration: time.Since(start),
	}
}

func contentItem(item mcp.ToolResultContent) models.ContentItem {
	switch item.Type {
	case "image":
		return models.ContentItem{Kind: models.ContentImage, Data: item.Data, MimeType: item.MimeType}
	case "resource":
		return models.ContentItem{Kind: models.ContentResource, URI: item.URI, Text: item.Text, MimeType: item.MimeType}
	default:
		return models.ContentItem{Kind: models.ContentText, Text: item.Text}
	}
}

// formatResult renders one entry of the batch summary.
func formatResult(result models.ToolExecutionResult) string {
	text := result.Text()
	if text == "" {
		text = "(no content)"
	}
	if result.IsError {
		return fmt.Sprintf("result of tool use `%s`: error: %s", result.ToolName, text)
	}
	return fmt.Sprintf("result of tool use `%s`: %s", result.ToolName, text)
}
