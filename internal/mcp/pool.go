package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/conduit/internal/infra"
)

// Capability cache TTLs. Tool invocations are never cached.
const (
	toolsTTL     = 5 * time.Minute
	resourcesTTL = 5 * time.Minute
	resourceTTL  = time.Minute
	promptsTTL   = 10 * time.Minute

	probeTimeout = 5 * time.Second
)

// conn is the per-server client surface the pool manages. *Client
// implements it; tests substitute fakes.
type conn interface {
	Connect(ctx context.Context) error
	Close() error
	Connected() bool
	Ping(ctx context.Context) error
	ListTools(ctx context.Context) ([]*Tool, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error)
	ListResources(ctx context.Context) ([]*Resource, error)
	ReadResource(ctx context.Context, uri string) ([]*ResourceContent, error)
	ListPrompts(ctx context.Context) ([]*Prompt, error)
	GetPrompt(ctx context.Context, name string, arguments map[string]string) (*GetPromptResult, error)
	Events() <-chan *JSONRPCNotification
}

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// entry tracks one server's connection lifecycle.
type entry struct {
	state connState
	conn  conn
	// ready is non-nil while a connect attempt is in flight; it is closed
	// when the attempt resolves so waiters share its outcome.
	ready     chan struct{}
	lastErr   error
	watchStop chan struct{}
}

// ToolLocation identifies a tool and the server that hosts it.
type ToolLocation struct {
	ServerID   string
	ServerName string
	Tool       *Tool
	Config     ServerConfig
}

// Pool manages connections to the registered tool servers. Connections
// are established lazily, deduplicated while in flight, probed before
// reuse, and capability reads are served from a shared TTL cache keyed
// under mcp:<serverID>:.
type Pool struct {
	registry ServerRegistry
	cache    *infra.TTLCache[any]
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry

	// dial is swapped out in tests.
	dial func(cfg *ServerConfig) conn
}

// NewPool creates a pool over the given registry and cache.
func NewPool(registry ServerRegistry, cache *infra.TTLCache[any], logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		registry: registry,
		cache:    cache,
		logger:   logger.With("component", "mcp-pool"),
		entries:  make(map[string]*entry),
		dial: func(cfg *ServerConfig) conn {
			return NewClient(cfg, logger)
		},
	}
}

func keyTools(serverID string) string     { return "mcp:" + serverID + ":tools" }
func keyResources(serverID string) string { return "mcp:" + serverID + ":resources" }
func keyResource(serverID, uri string) string {
	return "mcp:" + serverID + ":resource:" + uri
}
func keyPrompts(serverID string) string { return "mcp:" + serverID + ":prompts" }
func keyPrompt(serverID, name string) string {
	return "mcp:" + serverID + ":prompt:" + name
}

// activeConfig returns the registry entry for serverID, or nil if the
// server is unknown or disabled.
func (p *Pool) activeConfig(serverID string) *ServerConfig {
	for _, cfg := range p.registry.ActiveServers() {
		if cfg.ID == serverID {
			c := cfg
			return &c
		}
	}
	return nil
}

// connFor returns a live connection to serverID, connecting if needed.
// Concurrent callers for the same server share a single connect attempt.
func (p *Pool) connFor(ctx context.Context, serverID string) (conn, *ServerConfig, error) {
	cfg := p.activeConfig(serverID)
	if cfg == nil {
		return nil, nil, fmt.Errorf("server %s is not registered or not enabled", serverID)
	}

	for {
		p.mu.Lock()
		e := p.entries[serverID]
		if e == nil {
			e = &entry{}
			p.entries[serverID] = e
		}

		switch e.state {
		case stateConnected:
			c := e.conn
			p.mu.Unlock()

			if p.probe(ctx, c) == nil {
				return c, cfg, nil
			}

			// Stale connection: tear it down and retry, unless someone
			// else already replaced it.
			p.mu.Lock()
			if e.state == stateConnected && e.conn == c {
				p.teardownLocked(serverID, e)
			}
			p.mu.Unlock()

		case stateConnecting:
			ready := e.ready
			p.mu.Unlock()

			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-ready:
			}

			p.mu.Lock()
			if e.state == stateConnected {
				c := e.conn
				p.mu.Unlock()
				return c, cfg, nil
			}
			err := e.lastErr
			p.mu.Unlock()
			if err == nil {
				err = fmt.Errorf("connect %s: attempt aborted", serverID)
			}
			return nil, nil, err

		default: // stateDisconnected
			e.state = stateConnecting
			e.ready = make(chan struct{})
			ready := e.ready
			p.mu.Unlock()

			c := p.dial(cfg)
			err := c.Connect(ctx)

			p.mu.Lock()
			e.ready = nil
			if err != nil {
				e.state = stateDisconnected
				e.lastErr = fmt.Errorf("connect %s: %w", serverID, err)
				err = e.lastErr
				close(ready)
				p.mu.Unlock()
				return nil, nil, err
			}
			e.state = stateConnected
			e.conn = c
			e.lastErr = nil
			e.watchStop = make(chan struct{})
			go p.watch(serverID, c, e.watchStop)
			close(ready)
			p.mu.Unlock()

			p.logger.Info("connected", "server", serverID)
			return c, cfg, nil
		}
	}
}

// probe checks a connection for liveness with a bounded round trip.
func (p *Pool) probe(ctx context.Context, c conn) error {
	if !c.Connected() {
		return fmt.Errorf("transport closed")
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return c.Ping(probeCtx)
}

// teardownLocked closes an entry's connection and drops its cached
// capabilities. Caller holds p.mu.
func (p *Pool) teardownLocked(serverID string, e *entry) {
	if e.watchStop != nil {
		close(e.watchStop)
		e.watchStop = nil
	}
	if e.conn != nil {
		e.conn.Close()
		e.conn = nil
	}
	e.state = stateDisconnected
	p.cache.ClearPrefix("mcp:" + serverID + ":")
	p.logger.Info("disconnected", "server", serverID)
}

// watch routes server notifications to targeted cache invalidation.
func (p *Pool) watch(serverID string, c conn, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case n, ok := <-c.Events():
			if !ok {
				return
			}
			p.handleNotification(serverID, n)
		}
	}
}

func (p *Pool) handleNotification(serverID string, n *JSONRPCNotification) {
	switch n.Method {
	case NotifyToolsListChanged:
		p.cache.Delete(keyTools(serverID))
		p.logger.Debug("tools invalidated", "server", serverID)
	case NotifyResourcesListChanged:
		p.cache.Delete(keyResources(serverID))
		p.cache.ClearPrefix("mcp:" + serverID + ":resource:")
		p.logger.Debug("resources invalidated", "server", serverID)
	case NotifyResourceUpdated:
		var params ResourceUpdatedParams
		if err := unmarshalParams(n.Params, &params); err != nil || params.URI == "" {
			p.cache.ClearPrefix("mcp:" + serverID + ":resource:")
			return
		}
		p.cache.Delete(keyResource(serverID, params.URI))
		p.logger.Debug("resource invalidated", "server", serverID, "uri", params.URI)
	case NotifyPromptsListChanged:
		p.cache.Delete(keyPrompts(serverID))
		p.cache.ClearPrefix("mcp:" + serverID + ":prompt:")
		p.logger.Debug("prompts invalidated", "server", serverID)
	}
}

// ListTools returns the tools a server advertises, cache-backed.
func (p *Pool) ListTools(ctx context.Context, serverID string) ([]*Tool, error) {
	if v, ok := p.cache.Get(keyTools(serverID)); ok {
		return v.([]*Tool), nil
	}

	c, _, err := p.connFor(ctx, serverID)
	if err != nil {
		return nil, err
	}

	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools on %s: %w", serverID, err)
	}

	p.cache.SetWithTTL(keyTools(serverID), tools, toolsTTL)
	return tools, nil
}

// CallTool invokes a tool. Results are never cached.
func (p *Pool) CallTool(ctx context.Context, serverID, name string, arguments map[string]any) (*ToolCallResult, error) {
	c, _, err := p.connFor(ctx, serverID)
	if err != nil {
		return nil, err
	}

	result, err := c.CallTool(ctx, name, arguments)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", name, serverID, err)
	}
	return result, nil
}

// ListResources returns the resources a server advertises, cache-backed.
func (p *Pool) ListResources(ctx context.Context, serverID string) ([]*Resource, error) {
	if v, ok := p.cache.Get(keyResources(serverID)); ok {
		return v.([]*Resource), nil
	}

	c, _, err := p.connFor(ctx, serverID)
	if err != nil {
		return nil, err
	}

	resources, err := c.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list resources on %s: %w", serverID, err)
	}

	p.cache.SetWithTTL(keyResources(serverID), resources, resourcesTTL)
	return resources, nil
}

// ReadResource reads a resource, cache-backed with a short TTL.
func (p *Pool) ReadResource(ctx context.Context, serverID, uri string) ([]*ResourceContent, error) {
	if v, ok := p.cache.Get(keyResource(serverID, uri)); ok {
		return v.([]*ResourceContent), nil
	}

	c, _, err := p.connFor(ctx, serverID)
	if err != nil {
		return nil, err
	}

	contents, err := c.ReadResource(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("read %s on %s: %w", uri, serverID, err)
	}

	p.cache.SetWithTTL(keyResource(serverID, uri), contents, resourceTTL)
	return contents, nil
}

// ListPrompts returns the prompt templates a server advertises, cache-backed.
func (p *Pool) ListPrompts(ctx context.Context, serverID string) ([]*Prompt, error) {
	if v, ok := p.cache.Get(keyPrompts(serverID)); ok {
		return v.([]*Prompt), nil
	}

	c, _, err := p.connFor(ctx, serverID)
	if err != nil {
		return nil, err
	}

	prompts, err := c.ListPrompts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list prompts on %s: %w", serverID, err)
	}

	p.cache.SetWithTTL(keyPrompts(serverID), prompts, promptsTTL)
	return prompts, nil
}

// GetPrompt renders a prompt template. Only argument-free renders are
// cached; rendered output varies with arguments.
func (p *Pool) GetPrompt(ctx context.Context, serverID, name string, arguments map[string]string) (*GetPromptResult, error) {
	cacheable := len(arguments) == 0
	if cacheable {
		if v, ok := p.cache.Get(keyPrompt(serverID, name)); ok {
			return v.(*GetPromptResult), nil
		}
	}

	c, _, err := p.connFor(ctx, serverID)
	if err != nil {
		return nil, err
	}

	result, err := c.GetPrompt(ctx, name, arguments)
	if err != nil {
		return nil, fmt.Errorf("get prompt %s on %s: %w", name, serverID, err)
	}

	if cacheable {
		p.cache.SetWithTTL(keyPrompt(serverID, name), result, promptsTTL)
	}
	return result, nil
}

// FindTool locates a tool by name across the active servers. Servers
// are consulted in registry order; the first match wins. A server that
// fails to answer is skipped.
func (p *Pool) FindTool(ctx context.Context, name string) (*ToolLocation, error) {
	for _, cfg := range p.registry.ActiveServers() {
		tools, err := p.ListTools(ctx, cfg.ID)
		if err != nil {
			p.logger.Warn("skipping server during tool lookup", "server", cfg.ID, "error", err)
			continue
		}
		for _, t := range tools {
			if t.Name == name {
				return &ToolLocation{
					ServerID:   cfg.ID,
					ServerName: cfg.Name,
					Tool:       t,
					Config:     cfg,
				}, nil
			}
		}
	}
	return nil, fmt.Errorf("tool %q not found on any active server", name)
}

// AllTools lists every tool across the active servers, in registry order.
func (p *Pool) AllTools(ctx context.Context) ([]*ToolLocation, error) {
	var out []*ToolLocation
	for _, cfg := range p.registry.ActiveServers() {
		tools, err := p.ListTools(ctx, cfg.ID)
		if err != nil {
			p.logger.Warn("skipping server during tool listing", "server", cfg.ID, "error", err)
			continue
		}
		for _, t := range tools {
			out = append(out, &ToolLocation{
				ServerID:   cfg.ID,
				ServerName: cfg.Name,
				Tool:       t,
				Config:     cfg,
			})
		}
	}
	return out, nil
}

// Disconnect closes the connection to one server and drops its caches.
func (p *Pool) Disconnect(serverID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[serverID]; ok && e.state == stateConnected {
		p.teardownLocked(serverID, e)
	}
}

// Close shuts down every connection.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for serverID, e := range p.entries {
		if e.state == stateConnected {
			p.teardownLocked(serverID, e)
		}
	}
}

func unmarshalParams(raw []byte, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty params")
	}
	return json.Unmarshal(raw, v)
}
