package generate

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a model reply holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in model reply")

var fenced = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)\\s*```")

// ExtractJSON pulls the JSON object out of a model reply that may wrap it in
// a markdown fence or surround it with prose.
func ExtractJSON(reply string) (string, error) {
	s := strings.TrimSpace(reply)
	if m := fenced.FindStringSubmatch(s); len(m) > 1 {
		s = m[1]
	}
	if json.Valid([]byte(s)) && strings.HasPrefix(s, "{") {
		return s, nil
	}
	if obj := matchObject(s); obj != "" && json.Valid([]byte(obj)) {
		return obj, nil
	}
	return "", ErrNoJSON
}

// matchObject returns the first balanced {...} in s, skipping braces inside
// string literals.
func matchObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
