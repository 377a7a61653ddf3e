package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/spec-kit/itsm-triage/pkg/util"
)

// FieldError describes one rejected field of a mapping.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// SchemaViolation is returned when a mapping cannot be turned into a typed
// domain object. It matches apperrors.ErrSchemaViolation, and additionally
// apperrors.ErrUnparsableOutput when the mapping was empty because the
// model output could not be parsed at all.
type SchemaViolation struct {
	Model      string
	Fields     []FieldError
	Unparsable bool
}

func (e *SchemaViolation) Error() string {
	if e.Unparsable {
		return fmt.Sprintf("%s: model output could not be parsed as a JSON object", e.Model)
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Model, strings.Join(parts, "; "))
}

func (e *SchemaViolation) Is(target error) bool {
	switch target {
	case apperrors.ErrSchemaViolation:
		return true
	case apperrors.ErrUnparsableOutput:
		return e.Unparsable
	}
	return false
}

// ErrorDetails exposes the rejected fields to API error rendering.
func (e *SchemaViolation) ErrorDetails() map[string]any {
	details := map[string]any{"model": e.Model}
	if len(e.Fields) > 0 {
		details["fields"] = e.Fields
	}
	return details
}

// NewUnparsableOutput reports that the completion gateway produced an empty
// mapping for the given model, i.e. nothing usable came back.
func NewUnparsableOutput(model string) *SchemaViolation {
	return &SchemaViolation{Model: model, Unparsable: true}
}
