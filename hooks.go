package sieve

import "github.com/zoobzio/capitan"

// Signals for hook events.
const (
	RequestStarted        = capitan.Signal("sieve.request.started")
	RequestCompleted      = capitan.Signal("sieve.request.completed")
	RequestFailed         = capitan.Signal("sieve.request.failed")
	ProviderCallStarted   = capitan.Signal("sieve.provider.call.started")
	ProviderCallCompleted = capitan.Signal("sieve.provider.call.completed")
	ProviderCallFailed    = capitan.Signal("sieve.provider.call.failed")
	ReplyMalformed        = capitan.Signal("sieve.reply.malformed")
	ReplyRejected         = capitan.Signal("sieve.reply.rejected")
)

// Keys for hook event fields.
var (
	// Request identification.
	RequestIDKey   = capitan.NewStringKey("sieve.request.id")
	SessionIDKey   = capitan.NewStringKey("sieve.session.id")
	SchemaNameKey  = capitan.NewStringKey("sieve.schema.name")
	TemperatureKey = capitan.NewFloat64Key("sieve.temperature")

	// Input/Output data.
	DocumentKey = capitan.NewStringKey("sieve.document")
	RecordKey   = capitan.NewStringKey("sieve.record")

	// Response data.
	ReplyKey = capitan.NewStringKey("sieve.reply")

	// Error information.
	ErrorKey          = capitan.NewStringKey("sieve.error")
	ErrorTypeKey      = capitan.NewStringKey("sieve.error.type")
	ViolatedFieldsKey = capitan.NewStringKey("sieve.violated.fields")

	// Provider information.
	ProviderKey = capitan.NewStringKey("sieve.provider")
	ModelKey    = capitan.NewStringKey("sieve.model")

	// Provider metrics.
	PromptTokensKey     = capitan.NewIntKey("sieve.tokens.prompt")
	CompletionTokensKey = capitan.NewIntKey("sieve.tokens.completion")
	TotalTokensKey      = capitan.NewIntKey("sieve.tokens.total")
	DurationMsKey       = capitan.NewIntKey("sieve.duration.ms")

	// HTTP/API metadata.
	HTTPStatusCodeKey = capitan.NewIntKey("sieve.http.status.code")
	APIErrorTypeKey   = capitan.NewStringKey("sieve.api.error.type")
	APIErrorCodeKey   = capitan.NewStringKey("sieve.api.error.code")

	// Response metadata.
	ResponseIDKey           = capitan.NewStringKey("sieve.response.id")
	ResponseFinishReasonKey = capitan.NewStringKey("sieve.response.finish.reason")
)
