package engine

import "strings"

// reasoningModels lists model name patterns that emit a usable reasoning
// stream. A leading or trailing * matches any prefix/suffix.
var reasoningModels = []string{
	"deepseek-r1*",
	"deepseek-reasoner",
	"*-reasoner",
	"o1*",
	"o3*",
	"o4*",
	"qwq*",
	"*thinking*",
	"gemini-*-thinking*",
}

// reasoningProviders emit reasoning for their whole model line.
var reasoningProviders = map[string]bool{}

// SupportsReasoning reports whether reasoning events from the given
// provider/model should be forwarded. Events from models not known to
// reason are dropped: some gateways replay chain-of-thought fields for
// models that never produced them.
func SupportsReasoning(provider, model string) bool {
	provider = strings.ToLower(provider)
	model = strings.ToLower(model)

	if reasoningProviders[provider] {
		return true
	}
	if provider == "anthropic" && strings.HasPrefix(model, "claude-") {
		// Claude reasoning arrives as explicit thinking blocks the
		// native backend only emits when the model sent them.
		return true
	}

	for _, pattern := range reasoningModels {
		if matchPattern(pattern, model) {
			return true
		}
	}
	return false
}

// matchPattern matches with * wildcards at the edges or between segments.
func matchPattern(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return s == pattern
	}

	if parts[0] != "" && !strings.HasPrefix(s, parts[0]) {
		return false
	}
	if last := parts[len(parts)-1]; last != "" && !strings.HasSuffix(s, last) {
		return false
	}

	pos := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(s[pos:], part)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(part)
	}
	return true
}
