package engine

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/conduit/internal/mcp"
)

// BuildSystemPrompt appends tool-use instructions to a base system
// prompt. Models without a structured tool API are told to emit the
// in-band block grammar the tag parser understands.
func BuildSystemPrompt(base string, tools []*mcp.ToolLocation) string {
	if len(tools) == 0 {
		return base
	}

	var b strings.Builder
	if base != "" {
		b.WriteString(base)
		b.WriteString("\n\n")
	}

	b.WriteString("You can use the following tools. To call one, emit a block of this exact form in your reply:\n")
	b.WriteString("<tool_use>\n<name>TOOL_NAME</name>\n<arguments>JSON_OBJECT</arguments>\n</tool_use>\n")
	b.WriteString("The result will be provided in the next turn. Available tools:\n")

	for _, loc := range tools {
		fmt.Fprintf(&b, "\n- %s", loc.Tool.Name)
		if loc.Tool.Description != "" {
			fmt.Fprintf(&b, ": %s", loc.Tool.Description)
		}
		if len(loc.Tool.InputSchema) > 0 {
			fmt.Fprintf(&b, "\n  input schema: %s", string(loc.Tool.InputSchema))
		}
	}
	return b.String()
}
