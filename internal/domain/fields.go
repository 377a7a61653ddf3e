package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
)

// fieldReader pulls typed values out of a loosely typed mapping and
// collects every problem instead of stopping at the first one.
type fieldReader struct {
	model string
	m     map[string]any
	errs  []FieldError
}

func newFieldReader(model string, m map[string]any) *fieldReader {
	return &fieldReader{model: model, m: m}
}

func (r *fieldReader) fail(field, format string, args ...any) {
	r.errs = append(r.errs, FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
}

// lookup treats an explicit JSON null the same as an absent key.
func (r *fieldReader) lookup(key string) (any, bool) {
	v, ok := r.m[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (r *fieldReader) requiredString(key string) string {
	v, ok := r.lookup(key)
	if !ok {
		r.fail(key, "field required")
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail(key, "expected string, got %s", typeName(v))
		return ""
	}
	return s
}

func (r *fieldReader) optionalString(key string) *string {
	v, ok := r.lookup(key)
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		r.fail(key, "expected string, got %s", typeName(v))
		return nil
	}
	return &s
}

func (r *fieldReader) stringList(key string, required bool) []string {
	v, ok := r.lookup(key)
	if !ok {
		if required {
			r.fail(key, "field required")
		}
		return []string{}
	}
	out, err := toStringSlice(v)
	if err != nil {
		r.fail(key, "%v", err)
		return []string{}
	}
	return out
}

func (r *fieldReader) unitInterval(key string) float64 {
	v, ok := r.lookup(key)
	if !ok {
		r.fail(key, "field required")
		return 0
	}
	f, ok := toFloat(v)
	if !ok {
		r.fail(key, "expected number, got %s", typeName(v))
		return 0
	}
	if math.IsNaN(f) || f < 0 || f > 1 {
		r.fail(key, "must be between 0 and 1, got %v", f)
		return 0
	}
	return f
}

func (r *fieldReader) boolean(key string) bool {
	v, ok := r.lookup(key)
	if !ok {
		r.fail(key, "field required")
		return false
	}
	b, ok := v.(bool)
	if !ok {
		r.fail(key, "expected boolean, got %s", typeName(v))
		return false
	}
	return b
}

func (r *fieldReader) err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return &SchemaViolation{Model: r.model, Fields: r.errs}
}

func toStringSlice(v any) ([]string, error) {
	switch items := v.(type) {
	case []string:
		return append([]string{}, items...), nil
	case []any:
		out := make([]string, 0, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d: expected string, got %s", i, typeName(item))
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list of strings, got %s", typeName(v))
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64, json.Number:
		return "number"
	case []any, []string:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// enum reads a string restricted to allowed values. An empty fallback
// makes the field required; otherwise an absent field takes the fallback.
func (r *fieldReader) enum(key string, allowed []string, fallback string) string {
	v, ok := r.lookup(key)
	if !ok {
		if fallback != "" {
			return fallback
		}
		r.fail(key, "field required")
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail(key, "expected string, got %s", typeName(v))
		return ""
	}
	if slices.Contains(allowed, s) {
		return s
	}
	r.fail(key, "must be one of %s, got %q", strings.Join(allowed, ", "), s)
	return ""
}
