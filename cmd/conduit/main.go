// Package main provides the conduit CLI: a streaming chat client for
// LLM providers with MCP tool-server support.
//
// Basic usage:
//
//	conduit chat "What files are in the workspace?"
//	conduit chat --provider anthropic --model claude-sonnet-4-20250514 "hi"
//	conduit mcp tools
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/conduit/internal/observability"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  "warn",
		Format: "text",
		Output: os.Stderr,
	})
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "conduit",
		Short: "Conduit - streaming LLM chat with MCP tool servers",
		Long: `Conduit streams chat exchanges against LLM providers and lets the
model call tools exposed by Model Context Protocol servers.

Providers are selected by routing the requested model: anthropic speaks
its native API, everything else goes over the OpenAI-compatible wire.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildChatCmd(),
		buildMcpCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("conduit %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
