package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/conduit/internal/config"
	"github.com/haasonsaas/conduit/internal/engine"
	"github.com/haasonsaas/conduit/internal/infra"
	"github.com/haasonsaas/conduit/internal/mcp"
	"github.com/haasonsaas/conduit/internal/observability"
	"github.com/haasonsaas/conduit/internal/providers"
	"github.com/haasonsaas/conduit/internal/routing"
	"github.com/haasonsaas/conduit/pkg/models"
)

const defaultConfigPath = "conduit.yaml"

// liveConfig adapts a config watcher to the router and pool interfaces
// so file edits apply without restarting.
type liveConfig struct {
	watcher *config.Watcher
}

func (l liveConfig) Provider(name string) (routing.ProviderConfig, bool) {
	return l.watcher.Current().Provider(name)
}

func (l liveConfig) ActiveServers() []mcp.ServerConfig {
	return l.watcher.Current().ActiveServers()
}

func buildChatCmd() *cobra.Command {
	var (
		configPath string
		provider   string
		model      string
		system     string
		maxTokens  int
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Stream one exchange with the routed model",
		Long: `Stream one chat exchange. The prompt is taken from the arguments, or
from stdin when no arguments are given. Tool requests emitted by the
model are executed against the configured MCP servers and fed back
until the model answers or the recursion bound is reached.`,
		Example: `  conduit chat "Summarize the open issues"
  echo "explain this" | conduit chat --model deepseek-r1
  conduit chat --provider anthropic --model claude-sonnet-4-20250514 "hi"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				slog.SetDefault(observability.NewLogger(observability.LogConfig{
					Level:  "debug",
					Format: "text",
					Output: os.Stderr,
				}))
			}
			prompt, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), chatOptions{
				configPath: configPath,
				provider:   provider,
				model:      model,
				system:     system,
				maxTokens:  maxTokens,
				prompt:     prompt,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "Provider to route to (inferred from model when empty)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model identifier")
	cmd.Flags().StringVar(&system, "system", "", "System prompt")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Maximum tokens per pass")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

type chatOptions struct {
	configPath string
	provider   string
	model      string
	system     string
	maxTokens  int
	prompt     string
}

func runChat(parent context.Context, opts chatOptions) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	watcher, err := config.NewWatcher(opts.configPath, logger)
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Watch(ctx); err != nil {
		logger.Warn("config watch unavailable", "error", err)
	}

	cfg := watcher.Current()
	live := liveConfig{watcher: watcher}

	model := opts.model
	if model == "" {
		model = cfg.Engine.DefaultModel
	}
	provider := opts.provider
	if provider == "" && opts.model == "" {
		provider = cfg.Engine.DefaultProvider
	}
	system := opts.system
	if system == "" {
		system = cfg.Engine.SystemPrompt
	}
	maxTokens := opts.maxTokens
	if maxTokens == 0 {
		maxTokens = cfg.Engine.MaxTokens
	}

	metrics := observability.NewMetrics()

	router := routing.NewRouter(live, logger, metrics)
	decision, err := router.Route(provider, model)
	if err != nil {
		return err
	}

	backend, err := providers.FromDecision(&decision, logger)
	if err != nil {
		return err
	}

	var coordinator *engine.Coordinator
	if len(live.ActiveServers()) > 0 {
		cache := infra.NewTTLCache[any](infra.CacheConfig{
			DefaultTTL:      5 * time.Minute,
			CleanupInterval: time.Minute,
		})
		defer cache.Stop()
		observability.RegisterCacheMetrics(prometheus.DefaultRegisterer, cache)

		pool := mcp.NewPool(live, cache, logger)
		defer pool.Close()

		tools, err := pool.AllTools(ctx)
		if err != nil {
			logger.Warn("tool discovery failed", "error", err)
		}
		if len(tools) > 0 {
			system = engine.BuildSystemPrompt(system, tools)
		}
		coordinator = engine.NewCoordinator(pool, logger, metrics)
	}

	orchestrator := engine.NewOrchestrator(backend, coordinator, engine.Config{
		Provider:  decision.Provider,
		Model:     decision.Model,
		System:    system,
		MaxTokens: maxTokens,
		MaxDepth:  cfg.Engine.MaxDepth,
	}, logger, metrics)

	out := os.Stdout
	diag := os.Stderr

	cb := engine.Callbacks{
		OnText: func(text string) {
			fmt.Fprint(out, text)
		},
		OnReasoningStart: func() {
			fmt.Fprint(diag, "[reasoning] ")
		},
		OnReasoning: func(text string) {
			fmt.Fprint(diag, text)
		},
		OnReasoningEnd: func() {
			fmt.Fprintln(diag)
		},
		OnToolCall: func(req models.ToolUseRequest) {
			fmt.Fprintf(diag, "→ tool %s\n", req.ToolName)
		},
		OnToolResult: func(result models.ToolExecutionResult) {
			status := "ok"
			if result.IsError {
				status = "error"
			}
			fmt.Fprintf(diag, "← tool %s (%s, %s)\n", result.ToolName, status, result.Duration.Round(time.Millisecond))
		},
		OnDone: func(outcome engine.Outcome) {
			fmt.Fprintln(out)
			if outcome.Cancelled {
				fmt.Fprintln(diag, "(cancelled)")
			}
		},
	}

	messages := []models.ChatMessage{{Role: models.RoleUser, Content: opts.prompt}}
	return orchestrator.Run(ctx, messages, cb)
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(bufio.NewReader(stdin))
	if err != nil {
		return "", err
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("prompt is required (argument or stdin)")
	}
	return prompt, nil
}

func buildMcpCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect configured MCP servers",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")

	cmd.AddCommand(
		buildMcpListCmd("tools", "List tools across active servers", &configPath, listTools),
		buildMcpListCmd("resources", "List resources across active servers", &configPath, listResources),
		buildMcpListCmd("prompts", "List prompts across active servers", &configPath, listPrompts),
	)
	return cmd
}

func buildMcpListCmd(use, short string, configPath *string, list func(context.Context, *mcp.Pool, mcp.ServerConfig, io.Writer) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			cache := infra.NewTTLCache[any](infra.CacheConfig{DefaultTTL: 5 * time.Minute})
			defer cache.Stop()
			pool := mcp.NewPool(cfg, cache, slog.Default())
			defer pool.Close()

			out := cmd.OutOrStdout()
			servers := cfg.ActiveServers()
			if len(servers) == 0 {
				fmt.Fprintln(out, "no active MCP servers configured")
				return nil
			}
			for _, srv := range servers {
				fmt.Fprintf(out, "%s (%s)\n", srv.ID, srv.BaseURL)
				if err := list(cmd.Context(), pool, srv, out); err != nil {
					fmt.Fprintf(out, "  error: %v\n", err)
				}
			}
			return nil
		},
	}
}

func listTools(ctx context.Context, pool *mcp.Pool, srv mcp.ServerConfig, out io.Writer) error {
	tools, err := pool.ListTools(ctx, srv.ID)
	if err != nil {
		return err
	}
	for _, tool := range tools {
		fmt.Fprintf(out, "  %-24s %s\n", tool.Name, tool.Description)
	}
	return nil
}

func listResources(ctx context.Context, pool *mcp.Pool, srv mcp.ServerConfig, out io.Writer) error {
	resources, err := pool.ListResources(ctx, srv.ID)
	if err != nil {
		return err
	}
	for _, res := range resources {
		fmt.Fprintf(out, "  %-40s %s\n", res.URI, res.Name)
	}
	return nil
}

func listPrompts(ctx context.Context, pool *mcp.Pool, srv mcp.ServerConfig, out io.Writer) error {
	prompts, err := pool.ListPrompts(ctx, srv.ID)
	if err != nil {
		return err
	}
	for _, prompt := range prompts {
		fmt.Fprintf(out, "  %-24s %s\n", prompt.Name, prompt.Description)
	}
	return nil
}
