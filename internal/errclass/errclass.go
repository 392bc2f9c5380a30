// Package errclass classifies arbitrary failures into a fixed set of
// categories with a per-category retryability verdict. Classification is
// pure: it never mutates the error and never triggers retries itself.
// Retrying, if desired, is the caller's decision.
package errclass

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// Category is the classification of a failure.
type Category string

const (
	// ParameterError indicates invalid input or malformed parameters.
	ParameterError Category = "parameter_error"

	// NetworkError indicates connection-level failures (refused, reset, DNS).
	NetworkError Category = "network_error"

	// TimeoutError indicates a deadline or timeout was exceeded.
	TimeoutError Category = "timeout_error"

	// ServerError indicates a remote-side failure (5xx, internal errors).
	ServerError Category = "server_error"

	// Unknown indicates an unclassified error.
	Unknown Category = "unknown"
)

// Retryable returns whether retrying an operation that failed with this
// category may succeed. ParameterError never is: the same input produces
// the same rejection.
func (c Category) Retryable() bool {
	switch c {
	case NetworkError, TimeoutError, ServerError:
		return true
	default:
		return false
	}
}

// RPCCoder is implemented by errors that carry a JSON-RPC error code.
type RPCCoder interface {
	RPCCode() int
}

// StatusCoder is implemented by errors that carry an HTTP-like status.
type StatusCoder interface {
	HTTPStatus() int
}

// Classify maps an error to a Category. Structured signals (JSON-RPC
// codes, HTTP statuses, net timeouts) take precedence over message text.
func Classify(err error) Category {
	if err == nil {
		return Unknown
	}

	var rpc RPCCoder
	if errors.As(err, &rpc) {
		return ClassifyRPCCode(rpc.RPCCode())
	}

	var status StatusCoder
	if errors.As(err, &status) {
		return ClassifyStatus(status.HTTPStatus())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutError
	}
	// Cancellation is the caller's own signal; retrying cannot help.
	if errors.Is(err, context.Canceled) {
		return Unknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return TimeoutError
		}
		return NetworkError
	}

	return classifyMessage(err.Error())
}

// ClassifyRPCCode maps a JSON-RPC 2.0 error code to a Category.
// Codes in the protocol-reserved range describe request defects and are
// the caller's fault; -32603 is the server's.
func ClassifyRPCCode(code int) Category {
	switch code {
	case -32700, -32600, -32601, -32602:
		return ParameterError
	case -32603:
		return ServerError
	}
	// Implementation-defined server errors.
	if code >= -32099 && code <= -32000 {
		return ServerError
	}
	return Unknown
}

// ClassifyStatus maps an HTTP status code to a Category.
func ClassifyStatus(status int) Category {
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return TimeoutError
	case status == http.StatusTooManyRequests:
		return ServerError
	case status >= 500:
		return ServerError
	case status >= 400:
		return ParameterError
	default:
		return Unknown
	}
}

// classifyMessage is the last-resort textual classification.
func classifyMessage(msg string) Category {
	msg = strings.ToLower(msg)

	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "timed out"):
		return TimeoutError
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "network is unreachable"):
		return NetworkError
	case strings.Contains(msg, "invalid params"),
		strings.Contains(msg, "invalid argument"),
		strings.Contains(msg, "invalid request"),
		strings.Contains(msg, "missing required"):
		return ParameterError
	case strings.Contains(msg, "internal server"),
		strings.Contains(msg, "internal error"),
		strings.Contains(msg, "server error"),
		strings.Contains(msg, "bad gateway"),
		strings.Contains(msg, "service unavailable"):
		return ServerError
	}

	return Unknown
}

// Retryable is a convenience wrapper: classify then verdict.
func Retryable(err error) bool {
	return Classify(err).Retryable()
}
