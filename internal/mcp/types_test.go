package mcp

import (
	"encoding/json"
	"testing"
	"time"
)

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{
			name: "valid http",
			cfg:  ServerConfig{ID: "srv", BaseURL: "http://localhost:8080/mcp"},
		},
		{
			name: "valid https",
			cfg:  ServerConfig{ID: "srv", BaseURL: "https://mcp.example.com"},
		},
		{
			name:    "missing id",
			cfg:     ServerConfig{BaseURL: "https://mcp.example.com"},
			wantErr: true,
		},
		{
			name:    "missing url",
			cfg:     ServerConfig{ID: "srv"},
			wantErr: true,
		},
		{
			name:    "bad scheme",
			cfg:     ServerConfig{ID: "srv", BaseURL: "ftp://mcp.example.com"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfigRequestTimeout(t *testing.T) {
	cfg := ServerConfig{ID: "srv", BaseURL: "http://x"}
	if got := cfg.RequestTimeout(); got != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", got)
	}

	cfg.TimeoutSeconds = 5
	if got := cfg.RequestTimeout(); got != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", got)
	}
}

func TestServerConfigAutoApproveDisabled(t *testing.T) {
	cfg := ServerConfig{
		ID:                       "srv",
		DisabledAutoApproveTools: []string{"delete_file", "run_shell"},
	}

	if !cfg.AutoApproveDisabled("delete_file") {
		t.Error("delete_file should be excluded from auto-approval")
	}
	if cfg.AutoApproveDisabled("search") {
		t.Error("search should not be excluded")
	}
}

func TestJSONRPCErrorError(t *testing.T) {
	err := &JSONRPCError{Code: ErrCodeInvalidParams, Message: "missing field"}
	if got := err.Error(); got != "jsonrpc error -32602: missing field" {
		t.Errorf("Error() = %q", got)
	}
	if err.RPCCode() != -32602 {
		t.Errorf("RPCCode() = %d", err.RPCCode())
	}
}

func TestJSONRPCRequestMarshal(t *testing.T) {
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      "req-1",
		Method:  MethodToolsCall,
		Params:  json.RawMessage(`{"name":"search"}`),
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["method"] != "tools/call" {
		t.Errorf("method = %v", decoded["method"])
	}
	if decoded["id"] != "req-1" {
		t.Errorf("id = %v", decoded["id"])
	}
}

func TestJSONRPCResponseErrorDecoding(t *testing.T) {
	raw := `{"jsonrpc":"2.0","id":"1","error":{"code":-32601,"message":"method not found"}}`

	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected error in response")
	}
	if resp.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("code = %d", resp.Error.Code)
	}
}

func TestToolCallResultDecoding(t *testing.T) {
	raw := `{"content":[{"type":"text","text":"hi"},{"type":"image","data":"abcd","mimeType":"image/png"}],"isError":false}`

	var result ToolCallResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(result.Content) != 2 {
		t.Fatalf("expected 2 content items, got %d", len(result.Content))
	}
	if result.Content[0].Text != "hi" {
		t.Errorf("text = %q", result.Content[0].Text)
	}
	if result.Content[1].MimeType != "image/png" {
		t.Errorf("mime = %q", result.Content[1].MimeType)
	}
}
