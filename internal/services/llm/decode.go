package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeJSON unmarshals a model answer into target. Answers wrapped in a
// code fence or surrounded by prose are reduced to their outermost JSON
// object or array first.
func DecodeJSON(content string, target any) error {
	content = trimmed(content)
	if content == "" {
		return errors.New("empty payload")
	}
	err := json.Unmarshal([]byte(content), target)
	if err == nil {
		return nil
	}
	body := extractJSON(content)
	if body == "" || body == content {
		return fmt.Errorf("%w (payload snippet: %s)", err, snippet(content))
	}
	if err := json.Unmarshal([]byte(body), target); err != nil {
		return fmt.Errorf("%w (extracted payload snippet: %s)", err, snippet(body))
	}
	return nil
}

func extractJSON(content string) string {
	body := trimmed(unfence(content))
	if body == "" || body[0] == '{' || body[0] == '[' {
		return body
	}
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(body, pair[0])
		end := strings.LastIndex(body, pair[1])
		if start >= 0 && end > start {
			return trimmed(body[start : end+1])
		}
	}
	return body
}

// unfence strips a leading ``` or ```json fence and its closing fence.
func unfence(content string) string {
	body, ok := strings.CutPrefix(trimmed(content), "```")
	if !ok {
		return content
	}
	body = strings.TrimLeft(body, " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return body
}
