// Package middleware provides net/http middleware that instruments
// JSON-RPC traffic through the telemetry pipeline: request validation,
// per-method call counting, body size and latency measurements, and
// request tracing.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/spire-labs/telemetry/internal/event"
)

// Recorder admits telemetry events. *telemetry.Client and
// *pipeline.Pipeline both satisfy it.
type Recorder interface {
	Record(ev event.Event) error
}

// invalidRequestCode is the JSON-RPC error code for malformed requests.
const invalidRequestCode = -32600

// RPCRequest is the JSON-RPC request envelope. Validation only enforces
// the structure; unknown methods and arbitrary params pass through.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcErrorResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id"`
	Error   rpcErrorBody     `json:"error"`
}

// writeInvalid writes a JSON-RPC invalid-request error. JSON-RPC errors
// ride on HTTP 200; the failure lives in the body.
func writeInvalid(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	resp := rpcErrorResponse{
		JSONRPC: "2.0",
		Error:   rpcErrorBody{Code: invalidRequestCode, Message: message},
	}
	body, err := json.Marshal(resp)
	if err != nil {
		body = []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32600,"message":"Invalid JSON-RPC request"}}`)
	}
	_, _ = w.Write(body)
}

type parsedRequestKey struct{}

type parsedRequest struct {
	rpc      RPCRequest
	bodySize int
}

// withParsedRequest stores the validated request so later middleware does
// not re-read the body.
func withParsedRequest(ctx context.Context, rpc RPCRequest, size int) context.Context {
	return context.WithValue(ctx, parsedRequestKey{}, parsedRequest{rpc: rpc, bodySize: size})
}

// ParsedRequest returns the validated JSON-RPC request placed by
// Validation, if any.
func ParsedRequest(ctx context.Context) (RPCRequest, int, bool) {
	p, ok := ctx.Value(parsedRequestKey{}).(parsedRequest)
	if !ok {
		return RPCRequest{}, 0, false
	}
	return p.rpc, p.bodySize, true
}

// readAndRestore consumes the request body and replaces it so inner
// handlers can read it again.
func readAndRestore(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// parseRPC extracts the JSON-RPC envelope from a request, preferring the
// parsed copy left by Validation.
func parseRPC(r *http.Request) (RPCRequest, int, bool) {
	if rpc, size, ok := ParsedRequest(r.Context()); ok {
		return rpc, size, true
	}
	body, err := readAndRestore(r)
	if err != nil {
		return RPCRequest{}, 0, false
	}
	var rpc RPCRequest
	if err := json.Unmarshal(body, &rpc); err != nil || rpc.Method == "" {
		return RPCRequest{}, 0, false
	}
	return rpc, len(body), true
}
