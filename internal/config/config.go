// Package config loads and watches the YAML configuration: provider
// credentials, the MCP server registry, and engine options. A loaded
// Config is immutable; the Watcher swaps whole snapshots atomically.
package config

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/conduit/internal/mcp"
	"github.com/haasonsaas/conduit/internal/routing"
)

// ProviderConfig is one provider entry.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	// Enabled defaults to true when the entry is present; set false to
	// keep an entry around without routing to it.
	Enabled *bool `yaml:"enabled,omitempty"`
}

func (p ProviderConfig) enabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// EngineConfig holds exchange options.
type EngineConfig struct {
	MaxDepth        int    `yaml:"max_depth,omitempty"`
	DefaultProvider string `yaml:"default_provider,omitempty"`
	DefaultModel    string `yaml:"default_model,omitempty"`
	SystemPrompt    string `yaml:"system_prompt,omitempty"`
	MaxTokens       int    `yaml:"max_tokens,omitempty"`
}

// Config is one immutable configuration snapshot. It implements
// routing.CredentialStore and mcp.ServerRegistry.
type Config struct {
	Providers  map[string]ProviderConfig `yaml:"providers"`
	MCPServers []mcp.ServerConfig        `yaml:"mcp_servers"`
	Engine     EngineConfig              `yaml:"engine"`
}

// Validate checks the snapshot before it is put into service.
func (c *Config) Validate() error {
	for name, p := range c.Providers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("provider entry with empty name")
		}
		if p.enabled() && p.APIKey == "" && p.BaseURL == "" {
			return fmt.Errorf("provider %s: api_key or base_url is required", name)
		}
	}

	ids := make(map[string]bool, len(c.MCPServers))
	for i := range c.MCPServers {
		srv := &c.MCPServers[i]
		if err := srv.Validate(); err != nil {
			return fmt.Errorf("mcp server %d: %w", i, err)
		}
		if ids[srv.ID] {
			return fmt.Errorf("mcp server %q declared twice", srv.ID)
		}
		ids[srv.ID] = true
	}

	if c.Engine.MaxDepth < 0 {
		return fmt.Errorf("engine.max_depth must not be negative")
	}
	return nil
}

// Provider implements routing.CredentialStore. Disabled entries are
// invisible to the router.
func (c *Config) Provider(name string) (routing.ProviderConfig, bool) {
	p, ok := c.Providers[strings.ToLower(name)]
	if !ok || !p.enabled() {
		return routing.ProviderConfig{}, false
	}
	return routing.ProviderConfig{APIKey: p.APIKey, BaseURL: p.BaseURL}, true
}

// ActiveServers implements mcp.ServerRegistry.
func (c *Config) ActiveServers() []mcp.ServerConfig {
	var active []mcp.ServerConfig
	for _, srv := range c.MCPServers {
		if srv.Enabled {
			active = append(active, srv)
		}
	}
	return active
}
