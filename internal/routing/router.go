// Package routing resolves a (provider, model) request to a concrete
// backend decision: which provider actually serves the model, over which
// transport, at which endpoint, with which credential.
package routing

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/conduit/internal/observability"
)

// TransportMode selects the wire protocol a decision uses.
type TransportMode string

const (
	// TransportNative is the provider's own API (Anthropic messages).
	TransportNative TransportMode = "native"
	// TransportOpenAICompat is the OpenAI chat-completions dialect that
	// most gateways and open-model hosts expose.
	TransportOpenAICompat TransportMode = "openai-compatible"
)

// DefaultProvider is assumed when a request names no provider and the
// model matches no known family.
const DefaultProvider = "openai"

// ErrMissingCredential reports that the selected provider has no API key
// configured.
var ErrMissingCredential = errors.New("missing credential")

// ProviderConfig carries per-provider overrides from configuration.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
}

// CredentialStore looks up provider credentials and endpoint overrides.
type CredentialStore interface {
	// Provider returns the configuration for a provider, and whether any
	// configuration exists for it.
	Provider(name string) (ProviderConfig, bool)
}

// Decision is a fully resolved routing outcome.
type Decision struct {
	Provider  string
	Model     string
	Transport TransportMode
	BaseURL   string
	APIKey    string
	// Corrected is set when the requested provider was overridden
	// because it does not serve the requested model.
	Corrected bool
}

// defaultBaseURLs maps each known provider to its public endpoint.
// Configuration overrides win.
var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"anthropic":  "https://api.anthropic.com",
	"deepseek":   "https://api.deepseek.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"mistral":    "https://api.mistral.ai/v1",
	"together":   "https://api.together.xyz/v1",
	"xai":        "https://api.x.ai/v1",
	"ollama":     "http://localhost:11434/v1",
}

// correctionCandidates is the order in which alternative providers are
// considered when the requested provider does not serve the model.
var correctionCandidates = []string{
	"deepseek", "openrouter", "groq", "mistral", "together", "xai", "ollama",
}

// modelFamilies maps model name prefixes to the provider that owns them.
var modelFamilies = []struct {
	prefix   string
	provider string
}{
	{"claude-", "anthropic"},
	{"deepseek-", "deepseek"},
	{"grok-", "xai"},
	{"mistral-", "mistral"},
	{"mixtral-", "mistral"},
	{"magistral-", "mistral"},
	{"codestral-", "mistral"},
	{"qwq-", "groq"},
	{"llama-", "groq"},
	{"gemma-", "groq"},
}

// openAIModelPrefixes are model families OpenAI itself serves.
var openAIModelPrefixes = []string{
	"gpt-", "chatgpt-", "o1", "o3", "o4", "davinci", "text-embedding-", "dall-e", "whisper-",
}

// Router turns (provider, model) pairs into backend decisions.
type Router struct {
	creds   CredentialStore
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRouter creates a router over the given credential store. metrics
// may be nil.
func NewRouter(creds CredentialStore, logger *slog.Logger, metrics *observability.Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		creds:   creds,
		logger:  logger.With("component", "router"),
		metrics: metrics,
	}
}

// Route resolves the request. An empty provider is inferred from the
// model. Misassignment correction applies only to the default provider
// on its official endpoint: a custom base URL is a deliberate gateway
// and every model name is taken at face value there, as is any
// explicitly requested non-default provider.
func (r *Router) Route(provider, model string) (Decision, error) {
	provider = normalizeID(provider)
	model = normalizeID(model)
	if model == "" {
		return Decision{}, fmt.Errorf("routing: model is required")
	}

	requested := provider
	if provider == "" {
		provider = r.inferProvider(model)
	}

	corrected := false
	if !serves(provider, model) {
		if !r.correctable(provider) {
			r.logger.Warn("provider does not serve model, keeping it",
				"provider", provider, "model", model)
		} else if fixed, ok := r.correct(model); ok {
			r.logger.Warn("correcting provider for model",
				"requested", provider, "selected", fixed, "model", model)
			r.metrics.RecordRoutingCorrection(provider, fixed)
			provider = fixed
			corrected = requested != "" && requested != fixed
		} else {
			r.logger.Warn("no provider serves model, keeping requested provider",
				"provider", provider, "model", model)
		}
	}

	return r.resolve(provider, model, corrected)
}

// correctable reports whether misassignment correction may override the
// provider. Only the default provider pointed at its official endpoint
// is second-guessed.
func (r *Router) correctable(provider string) bool {
	if provider != DefaultProvider {
		return false
	}
	cfg, ok := r.creds.Provider(provider)
	if !ok {
		return true
	}
	return cfg.BaseURL == "" || cfg.BaseURL == defaultBaseURLs[provider]
}

// inferProvider picks a provider for a bare model name.
func (r *Router) inferProvider(model string) string {
	if owner := familyOwner(model); owner != "" {
		return owner
	}
	if strings.Contains(model, "/") {
		return "openrouter"
	}
	return DefaultProvider
}

// catchAll providers host arbitrary open models. They qualify as
// correction targets only when explicitly configured; otherwise they
// would swallow every unrecognized model.
var catchAll = map[string]bool{"together": true, "ollama": true}

// correct finds a candidate provider that serves the model. Candidates
// with configured credentials win; a family owner without credentials
// is still returned so credential resolution can report what is missing.
func (r *Router) correct(model string) (string, bool) {
	var fallback string
	for _, candidate := range correctionCandidates {
		if !serves(candidate, model) {
			continue
		}
		if _, ok := r.creds.Provider(candidate); ok {
			return candidate, true
		}
		if fallback == "" && !catchAll[candidate] {
			fallback = candidate
		}
	}
	if fallback != "" {
		return fallback, true
	}
	return "", false
}

// resolve fills in transport, endpoint, and credential.
func (r *Router) resolve(provider, model string, corrected bool) (Decision, error) {
	d := Decision{
		Provider:  provider,
		Model:     model,
		Transport: TransportOpenAICompat,
		BaseURL:   defaultBaseURLs[provider],
		Corrected: corrected,
	}
	if provider == "anthropic" {
		d.Transport = TransportNative
	}

	cfg, ok := r.creds.Provider(provider)
	if ok {
		if cfg.BaseURL != "" {
			d.BaseURL = cfg.BaseURL
		}
		d.APIKey = cfg.APIKey
	}

	if d.BaseURL == "" {
		return Decision{}, fmt.Errorf("routing: no endpoint known for provider %q", provider)
	}

	// Local runtimes authenticate with nothing.
	if d.APIKey == "" && provider != "ollama" {
		return Decision{}, fmt.Errorf("routing: provider %q: %w", provider, ErrMissingCredential)
	}

	return d, nil
}

// serves reports whether a provider can handle the model.
func serves(provider, model string) bool {
	switch provider {
	case "openai":
		return hasAnyPrefix(model, openAIModelPrefixes)
	case "anthropic":
		return strings.HasPrefix(model, "claude-")
	case "openrouter":
		// OpenRouter model IDs are vendor-qualified (vendor/model).
		return strings.Contains(model, "/")
	case "ollama", "together":
		// Open-model hosts serve arbitrary model names.
		return true
	default:
		return familyOwner(model) == provider
	}
}

// familyOwner returns the provider that owns a model family, or "".
func familyOwner(model string) string {
	for _, f := range modelFamilies {
		if strings.HasPrefix(model, f.prefix) {
			return f.provider
		}
	}
	return ""
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func normalizeID(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
