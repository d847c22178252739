// Package llm provides an OpenRouter-compatible chat client used for session
// analysis.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send a Request (system prompt, user prompt and optional
// Schema) and receive the model's JSON answer as text.
// Client.HealthCheck: verify API key and model availability.
// DecodeJSON: decode an answer, tolerating code fences and prose around the
// JSON object.
//
// # Structured Output
//
// A Request with a Schema is sent as a json_schema response format in strict
// mode. Providers that answer 400 about the response format get the same
// request once more with a plain json_object format.
//
// # Response Shapes
//
// Providers disagree on where the answer lives. The client accepts
// message.content, streaming-style delta.content, legacy choice text, and
// function/tool call arguments, in that order.
//
// # Retry Behaviour
//
// Requests are retried with cenkalti/backoff exponential backoff on HTTP
// 408/429/5xx, network timeouts, and empty answers (3 attempts by default).
// Other failures are permanent. Context cancellation aborts retries
// immediately.
package llm
