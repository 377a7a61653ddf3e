// Package ticketfile loads ticket payloads from disk.
package ticketfile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/itsm-triage/internal/domain"
)

// Load reads a .json, .yaml or .yml file and validates it as a ticket.
func Load(path string) (domain.Ticket, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("read ticket file: %w", err)
	}
	m, err := Decode(filepath.Ext(path), raw)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("%s: %w", path, err)
	}
	return domain.ParseTicket(m)
}

// Decode parses raw as a mapping according to ext.
func Decode(ext string, raw []byte) (map[string]any, error) {
	var m map[string]any
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported ticket file extension %q", ext)
	}
	if m == nil {
		return nil, fmt.Errorf("ticket file is not a mapping")
	}
	return m, nil
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
