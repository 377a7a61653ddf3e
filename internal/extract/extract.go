// Package extract recovers a JSON object from free-form model output.
//
// Model replies often wrap the payload in markdown fences, surround it with
// prose, leave trailing commas behind or get cut off at the token limit.
// ExtractAndParse absorbs all of that and reports total failure as an
// empty mapping, never as an error.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
)

var (
	fencedObject  = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	trailingComma = regexp.MustCompile(`,\s*$`)
)

// ExtractAndParse returns the first JSON object it can recover from raw.
// Selection order is: a fenced code block holding an object, then the span
// from the first '{' to the last '}', then the text as is. The selection is
// parsed directly and, if that fails, once more after Repair. An empty map
// means nothing usable was found.
func ExtractAndParse(raw string) map[string]any {
	text := strings.TrimSpace(raw)
	if text == "" {
		return map[string]any{}
	}

	candidate := Select(text)
	if obj, ok := parseObject(candidate); ok {
		return obj
	}
	if obj, ok := parseObject(Repair(candidate)); ok {
		return obj
	}
	return map[string]any{}
}

// Select picks the substring of text most likely to hold the JSON payload.
func Select(text string) string {
	text = strings.TrimSpace(text)
	if m := fencedObject.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start != -1 && end > start {
		return strings.TrimSpace(text[start : end+1])
	}
	return text
}

// Repair fixes the damage models usually do to JSON: trailing commas before
// a closer or at the end of the text, and closers lost to truncation.
//
// The closer balance is a plain count of brackets and braces, so brackets
// inside string values skew it. Truncated output with such strings may stay
// unparsable; that is accepted rather than guessed around.
func Repair(s string) string {
	if s == "" {
		return s
	}
	s = string(jsonc.ToJSON([]byte(s)))
	s = trailingComma.ReplaceAllString(s, "")

	if missing := strings.Count(s, "[") - strings.Count(s, "]"); missing > 0 {
		s += strings.Repeat("]", missing)
	}
	if missing := strings.Count(s, "{") - strings.Count(s, "}"); missing > 0 {
		s += strings.Repeat("}", missing)
	}
	return strings.TrimSpace(s)
}

func parseObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
