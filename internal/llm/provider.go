// Package llm abstracts the upstream text-generation providers.
//
// Every provider supports two call shapes: Generate for one schema-validated
// reply, and GenerateStream for a pull-based sequence of raw text chunks.
package llm

import (
	"context"
	"encoding/json"
)

// Provider is the core abstraction for LLM interaction.
type Provider interface {
	// Generate sends a prompt to the LLM and returns a structured response.
	// The request's Schema field, when set, instructs the provider to return
	// JSON conforming to that schema. The response Content will be the
	// sanitized, validated JSON.
	Generate(ctx context.Context, req Request) (*Response, error)

	// GenerateStream starts a streaming generation. The returned stream
	// yields raw text as the model produces it; nothing is validated.
	// Cancelling ctx aborts the upstream call.
	GenerateStream(ctx context.Context, req Request) (TokenStream, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// TokenStream is a pull-based sequence of raw text chunks.
type TokenStream interface {
	// Next blocks until the next non-empty chunk is available. It returns
	// io.EOF once the upstream reply is complete.
	Next() (string, error)

	// Usage reports token consumption. Totals are final only after io.EOF.
	Usage() Usage

	// Close releases the upstream connection. It is safe to call twice.
	Close() error
}

// Request describes what to send to the LLM.
type Request struct {
	// System is the system prompt. Sets the LLM's role and constraints.
	System string

	// Messages is the conversation history. Evaluations and example
	// generation are single-turn, so this usually holds one user message.
	Messages []Message

	// Schema is the JSON Schema the response must conform to.
	// When set, the provider uses its native structured output mechanism.
	// When nil, the response Content is raw text as json.RawMessage.
	Schema *Schema

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int

	// Temperature controls randomness. Range: 0.0 - 1.0.
	// Default: 0.0 (deterministic) when not set.
	Temperature float64
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema defines the JSON structure expected from the LLM.
type Schema struct {
	// Name identifies this schema (used as tool name for Anthropic,
	// schema name for OpenAI). Kebab-case, e.g. "sentence-evaluation".
	Name string

	// Description is a human-readable description of what this schema
	// represents. Sent to the LLM to guide generation.
	Description string

	// Definition is the JSON Schema definition as a map.
	Definition map[string]any
}

// Response holds the LLM's output.
type Response struct {
	// Content is the generated output. When a Schema was provided in the
	// request, this is the validated JSON object. When no Schema was
	// provided, this is the raw text response.
	Content json.RawMessage

	// Usage reports token consumption for this request.
	Usage Usage

	// Model is the actual model that served the request.
	Model string

	// StopReason indicates why generation stopped.
	// Normalized to: "end", "max_tokens", "error"
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
