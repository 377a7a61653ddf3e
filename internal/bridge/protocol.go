package bridge

import (
	"encoding/json"
	"strings"
)

// JSON-RPC 2.0 error codes used when answering server-initiated requests.
const (
	codeMethodNotFound = -32601
)

const methodInitialized = "notifications/initialized"

// request is a JSON-RPC 2.0 request or, without an ID, a notification.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// response answers a request the server sent to us.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// envelope is any inbound message: a reply to one of our requests, a
// notification, or a request from the server.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// idString normalizes an ID so 7 and "7" compare equal.
func (e *envelope) idString() string {
	return strings.Trim(strings.TrimSpace(string(e.ID)), `"`)
}

func (e *envelope) hasID() bool {
	id := strings.TrimSpace(string(e.ID))
	return id != "" && id != "null"
}

// rpcError is a JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// toolCallParams are the params of tools/call.
type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}
