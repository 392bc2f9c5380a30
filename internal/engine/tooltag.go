package engine

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/haasonsaas/conduit/pkg/models"
)

// Models that cannot use a structured tool API are instructed to emit
// tool requests in-band as delimiter-bounded blocks:
//
//	<tool_use>
//	  <name>search</name>
//	  <arguments>{"query": "go generics"}</arguments>
//	</tool_use>
//
// Only complete blocks count; an unterminated block never produces a
// request.
var toolUseRe = regexp.MustCompile(`(?s)<tool_use>\s*<name>(.*?)</name>\s*<arguments>(.*?)</arguments>\s*</tool_use>`)

// ParseToolTags extracts every complete tool-use block from text, in
// document order. Argument bodies are parsed as JSON; bodies that are
// not valid JSON are kept as the raw string.
func ParseToolTags(text string) []models.ToolUseRequest {
	matches := toolUseRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	reqs := make([]models.ToolUseRequest, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		reqs = append(reqs, models.ToolUseRequest{
			ToolName:  name,
			Arguments: parseArguments(m[2]),
		})
	}
	return reqs
}

// HasToolTag reports whether text contains at least one complete block.
func HasToolTag(text string) bool {
	return toolUseRe.MatchString(text)
}

func parseArguments(body string) any {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return body
	}
	return v
}
