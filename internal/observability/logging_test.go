package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		safe string
	}{
		{"anthropic key", "auth failed for sk-ant-REDACTED", "sk-ant-"},
		{"openai key", "key sk-abcdefghijklmnopqrstuvwx0123456789 rejected", "sk-abcdef"},
		{"jwt", "token eyJhbGciOi.eyJzdWIiOi.abc123 expired", "eyJ"},
		{"bearer header", "got Bearer abcdefghijklmnop1234", "abcdefghijklmnop1234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Redact(tt.in)
			if strings.Contains(got, tt.safe) {
				t.Errorf("secret survived: %q", got)
			}
			if !strings.Contains(got, "[REDACTED]") {
				t.Errorf("no redaction marker: %q", got)
			}
		})
	}

	if got := Redact("plain message with no secrets"); got != "plain message with no secrets" {
		t.Errorf("clean string modified: %q", got)
	}
}

func TestNewLoggerRedactsAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	logger.Info("routing decision",
		"provider", "openai",
		"key", "sk-abcdefghijklmnopqrstuvwx0123456789",
		"error", errors.New("bad key sk-ant-REDACTED"))

	out := buf.String()
	if strings.Contains(out, "sk-abcdefghijklmnopqrstuvwx0123456789") {
		t.Errorf("api key leaked: %s", out)
	}
	if strings.Contains(out, "sk-ant-api03") {
		t.Errorf("error secret leaked: %s", out)
	}
	if !strings.Contains(out, `"provider":"openai"`) {
		t.Errorf("ordinary attr lost: %s", out)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "text", Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info leaked at warn level: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn missing: %s", out)
	}
}
