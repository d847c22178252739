package stt

import (
	"encoding/json"
	"strings"
)

// extractText pulls the transcript out of a generate response. Known shapes
// are tried in order:
//
//	{"text": "..."}
//	{"candidates": [{"content": {"parts": [{"text": "..."}]}}]}
//	{"response": {"text": "..."}}
//	{"choices": [{"message": {"content": "..."}}]}
//	{"output_text": "..."}
//
// Anything else yields "".
func extractText(body []byte) string {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	if text := stringField(doc, "text"); text != "" {
		return text
	}
	if text := candidatesText(doc["candidates"]); text != "" {
		return text
	}
	if response, ok := doc["response"].(map[string]any); ok {
		if text := stringField(response, "text"); text != "" {
			return text
		}
		if text := candidatesText(response["candidates"]); text != "" {
			return text
		}
	}
	if choices, ok := doc["choices"].([]any); ok {
		for _, raw := range choices {
			choice, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if message, ok := choice["message"].(map[string]any); ok {
				if text := stringField(message, "content"); text != "" {
					return text
				}
			}
		}
	}
	return stringField(doc, "output_text")
}

func candidatesText(value any) string {
	candidates, ok := value.([]any)
	if !ok {
		return ""
	}
	for _, raw := range candidates {
		candidate, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		body, ok := candidate["content"].(map[string]any)
		if !ok {
			continue
		}
		parts, ok := body["parts"].([]any)
		if !ok {
			continue
		}
		var texts []string
		for _, rawPart := range parts {
			p, ok := rawPart.(map[string]any)
			if !ok {
				continue
			}
			if text := stringField(p, "text"); text != "" {
				texts = append(texts, text)
			}
		}
		if len(texts) > 0 {
			return strings.Join(texts, "\n")
		}
	}
	return ""
}

func stringField(doc map[string]any, key string) string {
	value, ok := doc[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
