package ingest

import (
	"encoding/json"
	"strings"
)

// parseSettings decodes the SETTINGS cell into a plain map, tolerating
// doubly-escaped embedded JSON (SPEC_FULL.md §4.1). encoding/csv already
// un-escapes one layer of RFC 4180 doubled quotes for a quoted field; some
// exporters double-escape on top of that, so a second pass is attempted
// before giving up.
func parseSettings(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err == nil {
		return m, nil
	}

	unescaped := unescapeDoubledQuotes(raw)
	if err := json.Unmarshal([]byte(unescaped), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// unescapeDoubledQuotes walks raw byte-by-byte, collapsing each `""` pair
// into a single `"`. It is a small state machine rather than a regex so it
// never backtracks on pathological input.
func unescapeDoubledQuotes(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	i := 0
	for i < len(raw) {
		if raw[i] == '"' && i+1 < len(raw) && raw[i+1] == '"' {
			b.WriteByte('"')
			i += 2
			continue
		}
		b.WriteByte(raw[i])
		i++
	}
	return b.String()
}
