// Package models defines the shared data types exchanged between the
// engine, the provider backends, and the MCP tool layer.
package models

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is a single turn in a conversation.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToolUseRequest is an in-band tool invocation request extracted from
// model output. Arguments holds the parsed JSON body of the request's
// arguments block, or the raw string when the body is not valid JSON.
type ToolUseRequest struct {
	ToolName  string `json:"tool_name"`
	Arguments any    `json:"arguments"`
}

// ContentKind discriminates the content items of a tool result.
type ContentKind string

const (
	ContentText     ContentKind = "text"
	ContentImage    ContentKind = "image"
	ContentResource ContentKind = "resource"
)

// ContentItem is one piece of tool output.
type ContentItem struct {
	Kind     ContentKind `json:"kind"`
	Text     string      `json:"text,omitempty"`
	Data     string      `json:"data,omitempty"` // base64 for images
	MimeType string      `json:"mime_type,omitempty"`
	URI      string      `json:"uri,omitempty"` // for resource items
}

// ToolExecutionResult is the outcome of exactly one tool invocation.
// It is immutable once returned.
type ToolExecutionResult struct {
	ToolName string        `json:"tool_name"`
	Content  []ContentItem `json:"content"`
	IsError  bool          `json:"is_error,omitempty"`
	Duration time.Duration `json:"-"`
}

// Text flattens the textual content items into a single string.
func (r *ToolExecutionResult) Text() string {
	var out string
	for _, item := range r.Content {
		switch item.Kind {
		case ContentText:
			if out != "" {
				out += "\n"
			}
			out += item.Text
		case ContentImage:
			if out != "" {
				out += "\n"
			}
			out += "[image: " + item.MimeType + "]"
		case ContentResource:
			if out != "" {
				out += "\n"
			}
			out += "[resource: " + item.URI + "]"
		}
	}
	return out
}
