package game

import (
	"encoding/json"
	"strings"
)

type component struct {
	Text  *string     `json:"text"`
	Extra []component `json:"extra"`
	With  []component `json:"with"`
}

// FlattenText turns a raw title or chat payload into plain text. JSON chat
// components are flattened to their text followed by their extra parts;
// anything that is not a JSON object is returned unchanged.
func FlattenText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return raw
	}

	var c component
	if err := json.Unmarshal([]byte(trimmed), &c); err != nil {
		return raw
	}

	var sb strings.Builder
	if c.Text != nil {
		sb.WriteString(*c.Text)
	}
	for _, part := range c.Extra {
		sb.WriteString(part.plain())
	}
	if sb.Len() == 0 {
		return trimmed
	}
	return sb.String()
}

func (c component) plain() string {
	if c.Text != nil && *c.Text != "" {
		return *c.Text
	}
	if len(c.Extra) > 0 {
		parts := make([]string, 0, len(c.Extra))
		for _, e := range c.Extra {
			parts = append(parts, e.plain())
		}
		return strings.Join(parts, "")
	}
	if len(c.With) > 0 {
		parts := make([]string, 0, len(c.With))
		for _, w := range c.With {
			parts = append(parts, w.plain())
		}
		return strings.Join(parts, " ")
	}
	return ""
}
