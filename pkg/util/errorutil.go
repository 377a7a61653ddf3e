package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Failure kinds shared by the pipeline, the bridge and the outer surfaces.
// Errors produced anywhere in the module wrap one of these so callers can
// branch with errors.Is without knowing the concrete type.
var (
	ErrSchemaViolation  = errors.New("schema violation")
	ErrUnparsableOutput = errors.New("model output unparsable")
	ErrTransport        = errors.New("transport failure")
	ErrToolFailed       = errors.New("tool call failed")
	ErrCompletion       = errors.New("completion service failure")
)

// Error codes rendered to API clients and CLI users.
const (
	CodeValidation        = "VALIDATION_FAILED"
	CodeSchemaViolation   = "SCHEMA_VIOLATION"
	CodeUnparsableOutput  = "MODEL_OUTPUT_UNPARSABLE"
	CodeTransportFailure  = "TRANSPORT_FAILURE"
	CodeToolFailed        = "TOOL_FAILED"
	CodeCompletionFailure = "COMPLETION_FAILURE"
	CodeTimeout           = "TIMEOUT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeInternal          = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// detailer is implemented by errors that carry diagnostic context
// (stage, runner, tool) worth surfacing next to the code.
type detailer interface {
	ErrorDetails() map[string]any
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	out := &DomainError{Err: err}
	switch {
	case errors.Is(err, ErrUnparsableOutput):
		out.Code, out.Message, out.HTTPStatus = CodeUnparsableOutput, "model output could not be parsed", http.StatusUnprocessableEntity
	case errors.Is(err, ErrSchemaViolation):
		out.Code, out.Message, out.HTTPStatus = CodeSchemaViolation, "schema violation", http.StatusUnprocessableEntity
	case errors.Is(err, ErrToolFailed):
		out.Code, out.Message, out.HTTPStatus = CodeToolFailed, "remote tool failed", http.StatusBadGateway
	case errors.Is(err, ErrTransport):
		out.Code, out.Message, out.HTTPStatus = CodeTransportFailure, "tool transport failed", http.StatusBadGateway
	case errors.Is(err, ErrCompletion):
		out.Code, out.Message, out.HTTPStatus = CodeCompletionFailure, "completion service failed", http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		out.Code, out.Message, out.HTTPStatus = CodeTimeout, "operation timed out", http.StatusGatewayTimeout
	default:
		out.Code, out.Message, out.HTTPStatus = CodeInternal, "internal server error", http.StatusInternalServerError
	}

	var d detailer
	if errors.As(err, &d) {
		out.Details = d.ErrorDetails()
	}
	return out
}
