package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

const protocolVersion = "2024-11-05"

// Client speaks the MCP protocol to a single server. It performs no
// caching of its own; the pool layers caching on top.
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *slog.Logger

	serverInfo ServerInfo
}

// NewClient creates a client for the given server over an HTTP transport.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config:    cfg,
		transport: NewHTTPTransport(cfg),
		logger:    logger.With("component", "mcp-client", "server", cfg.ID),
	}
}

// NewClientWithTransport creates a client over a caller-supplied transport.
func NewClientWithTransport(cfg *ServerConfig, transport Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config:    cfg,
		transport: transport,
		logger:    logger.With("component", "mcp-client", "server", cfg.ID),
	}
}

// Connect establishes the transport and performs the initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	result, err := c.transport.Call(ctx, MethodInitialize, InitializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    Capabilities{},
		ClientInfo: ClientInfo{
			Name:    "conduit",
			Version: "1.0.0",
		},
	})
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.transport.Close()
		return fmt.Errorf("parse initialize result: %w", err)
	}

	c.serverInfo = initResult.ServerInfo
	c.logger.Info("connected to tool server",
		"name", c.serverInfo.Name,
		"version", c.serverInfo.Version,
		"protocol", initResult.ProtocolVersion)

	if err := c.transport.Notify(ctx, MethodInitialized, nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}

	return nil
}

// Close closes the connection to the server.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Config returns the server configuration.
func (c *Client) Config() *ServerConfig {
	return c.config
}

// ServerInfo returns information about the connected server.
func (c *Client) ServerInfo() ServerInfo {
	return c.serverInfo
}

// Connected returns whether the client is connected.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

// Ping performs a liveness round trip.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.transport.Call(ctx, MethodPing, nil)
	return err
}

// ListTools lists the tools the server advertises.
func (c *Client) ListTools(ctx context.Context) ([]*Tool, error) {
	result, err := c.transport.Call(ctx, MethodToolsList, nil)
	if err != nil {
		return nil, err
	}

	var resp ListToolsResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return resp.Tools, nil
}

// CallTool invokes a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	params := CallToolParams{Name: name}
	if arguments != nil {
		argsJSON, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
		params.Arguments = argsJSON
	}

	result, err := c.transport.Call(ctx, MethodToolsCall, params)
	if err != nil {
		return nil, err
	}

	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &callResult, nil
}

// ListResources lists the resources the server advertises.
func (c *Client) ListResources(ctx context.Context) ([]*Resource, error) {
	result, err := c.transport.Call(ctx, MethodResourcesList, nil)
	if err != nil {
		return nil, err
	}

	var resp ListResourcesResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return resp.Resources, nil
}

// ReadResource reads a resource from the server.
func (c *Client) ReadResource(ctx context.Context, uri string) ([]*ResourceContent, error) {
	result, err := c.transport.Call(ctx, MethodResourcesRead, ReadResourceParams{URI: uri})
	if err != nil {
		return nil, err
	}

	var readResult ReadResourceResult
	if err := json.Unmarshal(result, &readResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return readResult.Contents, nil
}

// ListPrompts lists the prompt templates the server advertises.
func (c *Client) ListPrompts(ctx context.Context) ([]*Prompt, error) {
	result, err := c.transport.Call(ctx, MethodPromptsList, nil)
	if err != nil {
		return nil, err
	}

	var resp ListPromptsResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return resp.Prompts, nil
}

// GetPrompt renders a prompt template on the server.
func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*GetPromptResult, error) {
	result, err := c.transport.Call(ctx, MethodPromptsGet, GetPromptParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}

	var promptResult GetPromptResult
	if err := json.Unmarshal(result, &promptResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &promptResult, nil
}

// Events returns the server's notification channel.
func (c *Client) Events() <-chan *JSONRPCNotification {
	return c.transport.Events()
}
