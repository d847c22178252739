package analysis

import "carescribe/internal/services/llm"

func stringList(maxItems int) map[string]any {
	return map[string]any{
		"type":     "array",
		"items":    map[string]any{"type": "string"},
		"maxItems": maxItems,
	}
}

// ResponseSchema is the structured-output contract for the five Analysis
// fields. The field names match Analysis' JSON tags.
func ResponseSchema() *llm.Schema {
	share := map[string]any{"type": "number", "minimum": 0, "maximum": 1}
	return &llm.Schema{
		Name:        "session_analysis",
		Description: "Sentiment shares, keywords, topics, summary and follow-up actions for one care session transcript.",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sentiments": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"positive": share,
						"neutral":  share,
						"negative": share,
					},
					"required":             []string{"positive", "neutral", "negative"},
					"additionalProperties": false,
				},
				"keywords": stringList(MaxKeywords),
				"topics":   stringList(MaxTopics),
				"summary":  map[string]any{"type": "string"},
				"actionableInsights": map[string]any{
					"type":     "array",
					"items":    map[string]any{"type": "string"},
					"minItems": MinInsights,
					"maxItems": MaxInsights,
				},
			},
			"required":             []string{"sentiments", "keywords", "topics", "summary", "actionableInsights"},
			"additionalProperties": false,
		},
	}
}
