package llm

import (
	"fmt"
	"strings"
)

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatChoice struct {
	Message      chatAnswer `json:"message"`
	Delta        chatAnswer `json:"delta"` // streaming shape returned by some providers for stream=false
	Text         string     `json:"text"`
	FinishReason string     `json:"finish_reason"`
}

type chatAnswer struct {
	Content      string     `json:"content"`
	Refusal      string     `json:"refusal"`
	ToolCalls    []toolCall `json:"tool_calls"`
	FunctionCall *call      `json:"function_call"`
}

type toolCall struct {
	Type     string `json:"type"`
	Function call   `json:"function"`
}

type call struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// arguments returns the first non-empty function or tool call payload.
func (a chatAnswer) arguments() string {
	if a.FunctionCall != nil {
		if args := trimmed(a.FunctionCall.Arguments); args != "" {
			return args
		}
	}
	for _, tc := range a.ToolCalls {
		if args := trimmed(tc.Function.Arguments); args != "" {
			return args
		}
	}
	return ""
}

// answer looks for the reply in message content, delta content, legacy text
// and then call arguments.
func (r chatResponse) answer() string {
	for _, choice := range r.Choices {
		for _, candidate := range []string{
			choice.Message.Content,
			choice.Delta.Content,
			choice.Text,
			choice.Message.arguments(),
			choice.Delta.arguments(),
		} {
			if text := trimmed(candidate); text != "" {
				return text
			}
		}
	}
	return ""
}

func (r chatResponse) emptyError(op string, raw []byte) error {
	if len(r.Choices) == 0 {
		return &emptyAnswerError{op: op, snippet: snippet(string(raw))}
	}
	first := r.Choices[0]
	refusal := trimmed(first.Message.Refusal)
	if refusal == "" {
		refusal = trimmed(first.Delta.Refusal)
	}
	return &emptyAnswerError{
		op:           op,
		finishReason: trimmed(first.FinishReason),
		refusal:      refusal,
		snippet:      snippet(string(raw)),
	}
}

type emptyAnswerError struct {
	op           string
	finishReason string
	refusal      string
	snippet      string
}

func (e *emptyAnswerError) Error() string {
	return fmt.Sprintf("%s: empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
		e.op, e.finishReason, e.refusal, e.snippet)
}

func trimmed(value string) string {
	return strings.TrimSpace(value)
}

// snippet flattens whitespace and shortens content for error messages.
func snippet(content string) string {
	flat := strings.Join(strings.Fields(content), " ")
	if flat == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(flat); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return flat
}
