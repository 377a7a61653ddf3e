package domain

import "encoding/json"

// AsMap converts a domain value into the plain mapping shape used on the
// tool-call wire and in prompts.
func AsMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
