package llm

import "errors"

// Schema is a JSON Schema the answer must satisfy. Providers that support
// structured outputs enforce it; the rest receive a plain JSON-object request.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

// Request is one system/user exchange.
type Request struct {
	System string
	User   string
	Schema *Schema
}

func (r Request) validate() error {
	switch {
	case trimmed(r.System) == "":
		return errors.New("system prompt required")
	case trimmed(r.User) == "":
		return errors.New("user prompt required")
	case r.Schema != nil && (trimmed(r.Schema.Name) == "" || len(r.Schema.Definition) == 0):
		return errors.New("schema needs a name and a definition")
	}
	return nil
}

func (r Request) format() responseFormat {
	if r.Schema == nil {
		return jsonObjectFormat()
	}
	return responseFormat{
		Type: "json_schema",
		JSONSchema: &jsonSchemaFormat{
			Name:        r.Schema.Name,
			Description: r.Schema.Description,
			Strict:      true,
			Schema:      r.Schema.Definition,
		},
	}
}

func jsonObjectFormat() responseFormat {
	return responseFormat{Type: "json_object"}
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Strict      bool           `json:"strict"`
	Schema      map[string]any `json:"schema"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
