package engine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/conduit/internal/mcp"
)

func TestBuildSystemPromptNoTools(t *testing.T) {
	if got := BuildSystemPrompt("base prompt", nil); got != "base prompt" {
		t.Errorf("got %q", got)
	}
}

func TestBuildSystemPromptListsTools(t *testing.T) {
	tools := []*mcp.ToolLocation{
		{Tool: &mcp.Tool{
			Name:        "search",
			Description: "full text search",
			InputSchema: json.RawMessage(`{"type":"object"}`),
		}},
		{Tool: &mcp.Tool{Name: "echo"}},
	}

	got := BuildSystemPrompt("You are helpful.", tools)

	if !strings.HasPrefix(got, "You are helpful.") {
		t.Errorf("base prompt not preserved: %q", got)
	}
	for _, want := range []string{"<tool_use>", "search", "full text search", `{"type":"object"}`, "echo"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in prompt", want)
		}
	}
}
