package bridge

import (
	"fmt"

	apperrors "github.com/spec-kit/itsm-triage/pkg/util"
)

// TransportError reports that the conversation with the server broke down:
// spawn, handshake, a stream closing early, a timeout, or a JSON-RPC error.
type TransportError struct {
	Op      string
	Tool    string
	Command string
	Err     error
}

func (e *TransportError) Error() string {
	msg := "bridge " + e.Op
	if e.Tool != "" {
		msg += " " + e.Tool
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == apperrors.ErrTransport }

func (e *TransportError) ErrorDetails() map[string]any {
	details := map[string]any{"transport": "stdio", "op": e.Op}
	if e.Tool != "" {
		details["tool"] = e.Tool
	}
	if e.Command != "" {
		details["command"] = e.Command
	}
	return details
}

// ToolError is a tool reply flagged isError by the server.
type ToolError struct {
	Tool    string
	Code    string
	Message string
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool %s failed [%s]: %s", e.Tool, e.Code, e.Message)
	}
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

func (e *ToolError) Is(target error) bool { return target == apperrors.ErrToolFailed }

func (e *ToolError) ErrorDetails() map[string]any {
	details := map[string]any{"tool": e.Tool}
	if e.Code != "" {
		details["remote_code"] = e.Code
	}
	return details
}

// rpcFailure is a JSON-RPC error object returned for one of our requests.
type rpcFailure struct{ *rpcError }

func (e rpcFailure) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
