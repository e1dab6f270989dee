package extract

import (
	"bytes"
	"encoding/json"
	"strings"
)

// decodeJSON parses a loosely formatted payload, keeping numbers exact.
func decodeJSON(raw string) (any, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, ";")
	if raw == "" {
		return nil, false
	}
	// Control characters inside strings are common in hand-written JSON-LD.
	cleaned := strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(raw)
	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// str renders scalar JSON values as text.
func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// field returns the first non-empty scalar among keys.
func field(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := str(m[k]); v != "" {
			return v
		}
	}
	return ""
}

// nameOf reads a value that is either a string or an object with a name.
func nameOf(v any) string {
	switch t := v.(type) {
	case map[string]any:
		return field(t, "name", "legalName", "value")
	case []any:
		for _, item := range t {
			if n := nameOf(item); n != "" {
				return n
			}
		}
		return ""
	default:
		return str(v)
	}
}

// joinList renders a string or a list of strings.
func joinList(v any) string {
	switch t := v.(type) {
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := nameOf(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return nameOf(v)
	}
}

// balancedObject returns the JSON object starting at the first '{' at or after start.
func balancedObject(s string, start int) (string, int) {
	open := strings.IndexByte(s[start:], '{')
	if open < 0 {
		return "", -1
	}
	open += start
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[open : i+1], i + 1
			}
		}
	}
	return "", -1
}
