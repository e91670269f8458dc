package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON unmarshals an LLM answer into v. Markdown code fences and any
// prose around the outermost JSON object or array are stripped first, since
// models add them even when told not to.
func DecodeJSON(content string, v any) error {
	body := extractJSON(content)
	if body == "" {
		return fmt.Errorf("llm: response contains no JSON: %q", truncate(content, 120))
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("llm: decode JSON response: %w", err)
	}
	return nil
}

func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = strings.TrimSpace(rest)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
