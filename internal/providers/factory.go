package providers

import (
	"fmt"
	"log/slog"

	"github.com/haasonsaas/conduit/internal/engine"
	"github.com/haasonsaas/conduit/internal/routing"
)

// FromDecision builds the backend a routing decision calls for.
func FromDecision(d *routing.Decision, logger *slog.Logger) (engine.Backend, error) {
	switch d.Transport {
	case routing.TransportNative:
		return NewAnthropicBackend(AnthropicConfig{
			APIKey:  d.APIKey,
			BaseURL: d.BaseURL,
		}, logger)
	case routing.TransportOpenAICompat:
		return NewOpenAIBackend(OpenAIConfig{
			Provider: d.Provider,
			APIKey:   d.APIKey,
			BaseURL:  d.BaseURL,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown transport mode %q", d.Transport)
	}
}
