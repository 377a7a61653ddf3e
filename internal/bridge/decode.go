package bridge

import (
	"encoding/json"
	"strings"
)

// Fallback keys used when a reply cannot be decoded into an object.
const (
	RawTextKey = "raw_text"
	RawKey     = "raw"
)

// DecodeReply turns a tools/call result into a mapping. Servers shape their
// replies differently, so it tries, in order:
//
//  1. the first content item's text, parsed as a JSON object, or wrapped
//     under RawTextKey when it is not one; a content item that is an object
//     without text is returned as is;
//  2. a top-level "text" payload, handled the same way;
//  3. structuredContent, when the server sent one;
//  4. the result object itself;
//  5. the raw bytes as a string under RawKey.
//
// It never fails; whether the mapping is usable is for the caller to decide.
func DecodeReply(raw json.RawMessage) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return map[string]any{RawKey: strings.TrimSpace(string(raw))}
	}

	if content, ok := obj["content"].([]any); ok && len(content) > 0 {
		switch item := content[0].(type) {
		case map[string]any:
			if text, ok := item["text"].(string); ok {
				return decodeText(text)
			}
			return item
		case string:
			return decodeText(item)
		}
	}
	if text, ok := obj["text"].(string); ok {
		return decodeText(text)
	}
	if structured, ok := obj["structuredContent"].(map[string]any); ok {
		return structured
	}
	return obj
}

func decodeText(text string) map[string]any {
	text = strings.TrimSpace(text)
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil || out == nil {
		return map[string]any{RawTextKey: text}
	}
	return out
}

// replyText returns the text of the first content item, if any.
func replyText(raw json.RawMessage) string {
	var res struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &res); err != nil || len(res.Content) == 0 {
		return strings.TrimSpace(string(raw))
	}
	return strings.TrimSpace(res.Content[0].Text)
}
