package sieve

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

// service runs extraction requests through a pipz pipeline and reconciles the
// raw reply with the schema. It is the shared execution core behind Extractor
// and TypedExtractor.
type service struct {
	pipeline           pipz.Chainable[*Request]
	schema             *Schema
	providerName       string
	defaultTemperature float32
}

func newService(pipeline pipz.Chainable[*Request], schema *Schema, provider Provider, defaultTemperature float32) *service {
	return &service{
		pipeline:           pipeline,
		schema:             schema,
		providerName:       provider.Name(),
		defaultTemperature: defaultTemperature,
	}
}

// newTerminal creates the terminal processor that calls the provider with
// session messages plus the rendered prompt. This is the single blocking
// point of an extraction.
//
// Transport and API failures are wrapped as ErrEndpoint so callers can layer
// retry policy on exactly that class; context cancellation passes through
// untouched so an abandoned call reads as cancelled, not retryable.
func newTerminal(provider Provider) pipz.Chainable[*Request] {
	return pipz.Apply("llm-call", func(ctx context.Context, req *Request) (*Request, error) {
		messages := make([]Message, len(req.Messages)+1)
		copy(messages, req.Messages)
		messages[len(messages)-1] = Message{
			Role:    RoleUser,
			Content: req.Prompt.Render(),
		}

		resp, err := provider.Call(ctx, messages, req.Schema, req.Temperature)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return req, ctxErr
			}
			return req, fmt.Errorf("%w: %w", ErrEndpoint, err)
		}
		req.Response = resp.Content
		req.Usage = &resp.Usage
		return req, nil
	})
}

// execute processes a prompt through the pipeline and reconciles the reply
// with the schema.
//
// The session is only updated after the reply has been decoded and fully
// validated; retries layered by pipz never corrupt session state, and a
// rejected reply never becomes conversation history the next attempt would
// anchor on.
func (s *service) execute(ctx context.Context, session *Session, prompt *Prompt, temperature float32) (Result, error) {
	if temperature == TemperatureUnset || temperature == 0 {
		temperature = s.defaultTemperature
	}

	if err := prompt.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid prompt: %w", err)
	}

	requestID := uuid.New().String()
	request := &Request{
		Prompt:       prompt,
		Schema:       s.schema,
		Temperature:  temperature,
		SessionID:    session.ID(),
		Messages:     session.Messages(),
		RequestID:    requestID,
		SchemaName:   s.schema.Name(),
		ProviderName: s.providerName,
	}

	capitan.Info(ctx, RequestStarted,
		RequestIDKey.Field(requestID),
		SessionIDKey.Field(request.SessionID),
		SchemaNameKey.Field(s.schema.Name()),
		ProviderKey.Field(s.providerName),
		DocumentKey.Field(prompt.Document),
		TemperatureKey.Field(float64(temperature)),
	)

	processed, err := s.pipeline.Process(ctx, request)
	if err != nil {
		capitan.Error(ctx, RequestFailed,
			RequestIDKey.Field(requestID),
			SchemaNameKey.Field(s.schema.Name()),
			ProviderKey.Field(s.providerName),
			ErrorKey.Field(err.Error()),
		)
		return Result{}, err
	}

	if processed.Response == "" {
		return Result{}, fmt.Errorf("%w: empty response from provider", ErrMalformedReply)
	}

	reply, err := decodeReply(processed.Response)
	if err != nil {
		capitan.Error(ctx, ReplyMalformed,
			RequestIDKey.Field(requestID),
			SchemaNameKey.Field(s.schema.Name()),
			ProviderKey.Field(s.providerName),
			ReplyKey.Field(processed.Response),
			ErrorKey.Field(err.Error()),
			ErrorTypeKey.Field("parse_error"),
		)
		return Result{}, err
	}

	record, verr := validateReply(s.schema, reply)
	if verr != nil {
		capitan.Error(ctx, ReplyRejected,
			RequestIDKey.Field(requestID),
			SchemaNameKey.Field(s.schema.Name()),
			ProviderKey.Field(s.providerName),
			ReplyKey.Field(processed.Response),
			ViolatedFieldsKey.Field(strings.Join(verr.FieldNames(), ",")),
			ErrorKey.Field(verr.Error()),
			ErrorTypeKey.Field("validation_error"),
		)
		return Result{}, verr
	}

	// Success - update session with conversation and usage.
	// Transactional: only happens after decoding and validation both passed.
	session.Append(RoleUser, prompt.Render())
	session.Append(RoleAssistant, processed.Response)
	session.SetUsage(processed.Usage)

	recordJSON, marshalErr := json.Marshal(record)
	if marshalErr != nil {
		recordJSON = []byte("{}")
	}

	capitan.Info(ctx, RequestCompleted,
		RequestIDKey.Field(requestID),
		SessionIDKey.Field(request.SessionID),
		SchemaNameKey.Field(s.schema.Name()),
		ProviderKey.Field(s.providerName),
		DocumentKey.Field(prompt.Document),
		RecordKey.Field(string(recordJSON)),
		ReplyKey.Field(processed.Response),
	)

	return record, nil
}
