package normalizer

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject pulls a JSON object out of model output. It accepts a bare
// object, an object wrapped in a ```json fence, or prose that embeds one. It
// returns nil when no object can be decoded.
func ExtractJSONObject(raw string) map[string]any {
	text := stripFence(strings.TrimSpace(raw))
	if text == "" {
		return nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		if m, ok := parsed.(map[string]any); ok {
			return m
		}
	}

	for start := strings.IndexByte(text, '{'); start >= 0; {
		end := matchingBrace(text, start)
		if end < 0 {
			return nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(text[start:end+1]), &m); err == nil {
			return m
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			return nil
		}
		start += next + 1
	}
	return nil
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if len(text) >= 4 && strings.EqualFold(text[:4], "json") {
		text = text[4:]
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// matchingBrace returns the index of the brace closing the one at start,
// skipping braces inside string literals.
func matchingBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
				return i
			}
		}
	}
	return -1
}
