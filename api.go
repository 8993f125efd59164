// Package sieve extracts schema-constrained records from unstructured text
// through an LLM provider.
//
// A caller declares an output schema once (field names, types, allowed value
// sets, required/optional flags), binds it to a provider, and fires documents
// at it. Sieve renders a structured prompt, sends it through a composable
// pipeline, parses the reply, and validates every field against the schema
// before anything reaches the caller. Replies are validated locally regardless
// of whatever constrained-decoding guarantees the provider claims.
//
// Basic usage:
//
//	schema, _ := sieve.NewSchema("ticket",
//	    sieve.Enum("severity", "low", "medium", "high"),
//	    sieve.BoundedInt("urgency", 1, 5),
//	    sieve.String("summary").Describe("one-line summary"),
//	)
//	extractor := sieve.New(schema, provider, sieve.WithTimeout(10*time.Second))
//	session := sieve.NewSession()
//	record, err := extractor.Fire(ctx, session, reportText)
//
// All reliability behavior (retry, backoff, timeout, circuit breaker, rate
// limiting, fallback) is opt-in and layered by the caller; the core never
// retries on its own.
package sieve

import "context"

// Provider defines the interface for LLM providers.
// Providers accept conversation messages plus the active schema and return
// responses with usage stats. Passing the schema lets a provider constrain its
// own decoding (JSON schema response formats, forced tool use) when the API
// supports that; sieve still validates the reply locally either way.
type Provider interface {
	// Call sends messages to the LLM and returns the response with usage stats.
	// Messages are in chronological order (oldest first). The schema is never
	// nil. This is the single blocking point of an extraction; implementations
	// must honor ctx cancellation.
	Call(ctx context.Context, messages []Message, schema *Schema, temperature float32) (*ProviderResponse, error)

	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string
}

// Message represents a single message in a conversation.
type Message struct {
	Role    string // RoleUser, RoleAssistant, or RoleSystem
	Content string // The message content
}

// Role constants for message types.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// TokenUsage contains token counts from a provider response.
type TokenUsage struct {
	Prompt     int // Tokens used by the prompt/messages
	Completion int // Tokens used by the completion/response
	Total      int // Total tokens used
}

// ProviderResponse contains the response from an LLM provider.
type ProviderResponse struct {
	Content string     // The text response content
	Usage   TokenUsage // Token usage statistics
}

// Temperature constants. Lower values produce more deterministic outputs.
const (
	// TemperatureUnset indicates that no temperature has been explicitly set.
	// A zero-value float32 is also treated as unset for ergonomic struct
	// initialization; use TemperatureZero for an explicit near-zero value.
	TemperatureUnset float32 = -1

	// TemperatureZero is an explicitly near-zero temperature for maximum
	// determinism.
	TemperatureZero float32 = 0.0001

	// DefaultTemperature is the extraction default. Extraction wants
	// consistent, precise output with minimal variation.
	DefaultTemperature float32 = 0.1
)

// Request flows through the pipz pipeline.
// It carries the prompt, the active schema, session context, and the raw
// response once the terminal processor has run.
type Request struct {
	// Input fields
	Prompt      *Prompt // The structured prompt to send to the LLM
	Schema      *Schema // The schema constraining the reply
	Temperature float32 // Temperature parameter for response generation

	// Session fields
	SessionID string    // ID of the conversation session
	Messages  []Message // Message history from the session

	// Metadata fields
	RequestID    string // Unique identifier for this request
	SchemaName   string // Name of the schema being extracted
	ProviderName string // Name of the provider being used

	// Output fields (populated by the pipeline)
	Response string      // Raw text response from the provider
	Usage    *TokenUsage // Token usage from the provider response
}
