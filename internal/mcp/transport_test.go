package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewHTTPTransport(t *testing.T) {
	cfg := &ServerConfig{
		ID:             "test-http",
		BaseURL:        "https://mcp.example.com/api",
		Headers:        map[string]string{"Authorization": "Bearer token"},
		TimeoutSeconds: 60,
	}

	transport := NewHTTPTransport(cfg)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}

	if transport.config != cfg {
		t.Error("expected config to be set")
	}
	if transport.events == nil {
		t.Error("expected events channel to be initialized")
	}
}

func TestHTTPTransportDefaultTimeout(t *testing.T) {
	cfg := &ServerConfig{
		ID:      "test",
		BaseURL: "https://mcp.example.com",
	}

	transport := NewHTTPTransport(cfg)

	if transport.client.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", transport.client.Timeout)
	}
}

func TestHTTPTransportCustomTimeout(t *testing.T) {
	cfg := &ServerConfig{
		ID:             "test",
		BaseURL:        "https://mcp.example.com",
		TimeoutSeconds: 60,
	}

	transport := NewHTTPTransport(cfg)

	if transport.client.Timeout != 60*time.Second {
		t.Errorf("expected timeout 60s, got %v", transport.client.Timeout)
	}
}

func TestHTTPTransportConnected(t *testing.T) {
	transport := NewHTTPTransport(&ServerConfig{ID: "test", BaseURL: "https://mcp.example.com"})

	if transport.Connected() {
		t.Error("expected Connected() to return false before Connect()")
	}
}

func TestHTTPTransportConnectNoURL(t *testing.T) {
	transport := NewHTTPTransport(&ServerConfig{ID: "test"})

	if err := transport.Connect(context.Background()); err == nil {
		t.Error("expected error for missing base URL")
	}
}

func TestHTTPTransportConnectBadScheme(t *testing.T) {
	transport := NewHTTPTransport(&ServerConfig{ID: "test", BaseURL: "ftp://mcp.example.com"})

	if err := transport.Connect(context.Background()); err == nil {
		t.Error("expected error for non-http scheme")
	}
}

func TestHTTPTransportCallNotConnected(t *testing.T) {
	transport := NewHTTPTransport(&ServerConfig{ID: "test", BaseURL: "https://mcp.example.com"})

	if _, err := transport.Call(context.Background(), "test", nil); err == nil {
		t.Error("expected error when not connected")
	}
}

func TestHTTPTransportNotifyNotConnected(t *testing.T) {
	transport := NewHTTPTransport(&ServerConfig{ID: "test", BaseURL: "https://mcp.example.com"})

	if err := transport.Notify(context.Background(), "test", nil); err == nil {
		t.Error("expected error when not connected")
	}
}

func TestHTTPTransportCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Ignore the background SSE stream the transport opens on Connect;
		// only the JSON-RPC POST is asserted on.
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req JSONRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("expected jsonrpc 2.0, got %q", req.JSONRPC)
		}
		if req.ID == nil {
			t.Error("expected request ID")
		}
		if req.Method != "tools/list" {
			t.Errorf("unexpected method %q", req.Method)
		}
		json.NewEncoder(w).Encode(JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  json.RawMessage(`{"tools":[{"name":"search"}]}`),
		})
	}))
	defer srv.Close()

	transport := NewHTTPTransport(&ServerConfig{ID: "test", BaseURL: srv.URL})
	if err := transport.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer transport.Close()

	result, err := transport.Call(context.Background(), "tools/list", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	var resp ListToolsResult
	if err := json.Unmarshal(result, &resp); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(resp.Tools) != 1 || resp.Tools[0].Name != "search" {
		t.Errorf("unexpected tools: %+v", resp.Tools)
	}
}

func TestHTTPTransportCallRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req JSONRPCRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &JSONRPCError{Code: ErrCodeInvalidParams, Message: "bad arguments"},
		})
	}))
	defer srv.Close()

	transport := NewHTTPTransport(&ServerConfig{ID: "test", BaseURL: srv.URL})
	if err := transport.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer transport.Close()

	_, err := transport.Call(context.Background(), "tools/call", nil)
	var rpcErr *JSONRPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *JSONRPCError, got %T: %v", err, err)
	}
	if rpcErr.RPCCode() != ErrCodeInvalidParams {
		t.Errorf("expected code %d, got %d", ErrCodeInvalidParams, rpcErr.RPCCode())
	}
}

func TestHTTPTransportCallHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	transport := NewHTTPTransport(&ServerConfig{ID: "test", BaseURL: srv.URL})
	if err := transport.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer transport.Close()

	_, err := transport.Call(context.Background(), "tools/list", nil)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %T: %v", err, err)
	}
	if httpErr.HTTPStatus() != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", httpErr.HTTPStatus())
	}
}

func TestHTTPTransportCloseIdempotent(t *testing.T) {
	transport := NewHTTPTransport(&ServerConfig{ID: "test", BaseURL: "https://mcp.example.com"})

	if err := transport.Close(); err != nil {
		t.Fatalf("Close before Connect: %v", err)
	}
	if err := transport.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
