package sieve

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zoobzio/pipz"
)

// TypedExtractor is a typed facade over an Extractor: the schema is derived
// from T's struct tags and validated records are returned as T.
type TypedExtractor[T any] struct {
	inner *Extractor
}

// ForStruct creates a typed extractor whose schema is derived from T via
// SchemaFor. Validation still runs against the derived schema, so T is only
// populated from replies that satisfy every declared constraint.
//
// Example:
//
//	type Labels struct {
//	    Sentiment      string `json:"sentiment" enum:"happy|neutral|sad"`
//	    Aggressiveness int    `json:"aggressiveness" min:"1" max:"5"`
//	}
//	extractor, _ := sieve.ForStruct[Labels]("labels", provider)
//	labels, err := extractor.Fire(ctx, session, document)
func ForStruct[T any](name string, provider Provider, opts ...Option) (*TypedExtractor[T], error) {
	schema, err := SchemaFor[T](name)
	if err != nil {
		return nil, err
	}
	return &TypedExtractor[T]{inner: New(schema, provider, opts...)}, nil
}

// Schema returns the derived schema.
func (t *TypedExtractor[T]) Schema() *Schema { return t.inner.Schema() }

// GetPipeline returns the internal pipeline for composition.
func (t *TypedExtractor[T]) GetPipeline() pipz.Chainable[*Request] {
	return t.inner.GetPipeline()
}

// WithDefaults sets default input values merged into every Fire call.
func (t *TypedExtractor[T]) WithDefaults(defaults Input) *TypedExtractor[T] {
	t.inner.WithDefaults(defaults)
	return t
}

// Fire extracts a T from a document.
func (t *TypedExtractor[T]) Fire(ctx context.Context, session *Session, document string) (T, error) {
	return t.FireWithInput(ctx, session, Input{Document: document})
}

// FireWithInput extracts a T with the rich input structure.
func (t *TypedExtractor[T]) FireWithInput(ctx context.Context, session *Session, input Input) (T, error) {
	var result T

	record, err := t.inner.FireWithInput(ctx, session, input)
	if err != nil {
		return result, err
	}
	return intoStruct[T](record)
}

// Repair re-runs an extraction whose reply violated the schema.
func (t *TypedExtractor[T]) Repair(ctx context.Context, session *Session, document string, verr *ValidationError) (T, error) {
	var result T

	record, err := t.inner.Repair(ctx, session, document, verr)
	if err != nil {
		return result, err
	}
	return intoStruct[T](record)
}

// intoStruct maps a validated record onto T through a JSON round-trip.
// The record holds only coerced values of the declared kinds, so this cannot
// reintroduce type mismatches the validator already rejected.
func intoStruct[T any](record Result) (T, error) {
	var result T

	raw, err := json.Marshal(record)
	if err != nil {
		return result, fmt.Errorf("encoding record: %w", err)
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("decoding record into %T: %w", result, err)
	}
	return result, nil
}
