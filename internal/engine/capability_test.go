package engine

import "testing"

func TestSupportsReasoning(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		want     bool
	}{
		{"deepseek", "deepseek-r1", true},
		{"deepseek", "deepseek-r1-distill-llama-70b", true},
		{"deepseek", "deepseek-reasoner", true},
		{"deepseek", "deepseek-chat", false},
		{"openai", "o1-preview", true},
		{"openai", "o3-mini", true},
		{"openai", "o4-mini", true},
		{"openai", "gpt-4o", false},
		{"groq", "qwq-32b", true},
		{"openrouter", "qwen/qwen3-32b-thinking", true},
		{"openrouter", "google/gemini-2.5-flash-thinking-exp", true},
		{"anthropic", "claude-sonnet-4-0", true},
		{"mistral", "mistral-large-latest", false},
		{"ollama", "llama3.2", false},
		{"OPENAI", "O3-Mini", true},
	}

	for _, tt := range tests {
		if got := SupportsReasoning(tt.provider, tt.model); got != tt.want {
			t.Errorf("SupportsReasoning(%q, %q) = %v, want %v", tt.provider, tt.model, got, tt.want)
		}
	}
}
