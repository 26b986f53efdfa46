package perception

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RecoverJSON extracts a parseable JSON object from raw model output that may
// be wrapped in prose or markdown, or truncated by an output-token limit.
//
// Recovery is best-effort and strictly lossy: it only strips surrounding
// text, appends missing closing delimiters, or truncates at the last complete
// closing brace. It never fabricates fields.
func RecoverJSON(raw string) (string, error) {
	start := strings.Index(raw, "{")
	if start == -1 {
		return "", fmt.Errorf("no JSON object in response")
	}

	// Strip everything outside the outermost braces.
	candidate := raw[start:]
	if end := strings.LastIndex(candidate, "}"); end >= 0 {
		candidate = candidate[:end+1]
	}
	if json.Valid([]byte(candidate)) {
		return candidate, nil
	}

	// Repair: append closing delimiters for the open/close deficit.
	if repaired := closeDelims(candidate); json.Valid([]byte(repaired)) {
		return repaired, nil
	}

	// Last resort: walk back through complete closing braces, dropping the
	// truncated tail, and repair the surviving prefix.
	for end := strings.LastIndex(candidate, "}"); end > 0; end = strings.LastIndex(candidate[:end], "}") {
		prefix := closeDelims(candidate[:end+1])
		if json.Valid([]byte(prefix)) {
			return prefix, nil
		}
	}

	return "", fmt.Errorf("unrecoverable JSON in response")
}

// closeDelims appends closers for every unmatched '{' and '[', ignoring
// delimiters inside string literals. A truncated string literal is closed
// first. Closers are emitted innermost-first.
func closeDelims(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				stack = append(stack, c)
			}
		case '}', ']':
			if !inString && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(s)
	if inString {
		sb.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			sb.WriteByte('}')
		} else {
			sb.WriteByte(']')
		}
	}
	return sb.String()
}
