package sieve

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Callers discriminate with errors.Is.
var (
	// ErrDuplicateField indicates a schema declared the same field name twice.
	ErrDuplicateField = errors.New("duplicate field name")

	// ErrInvalidRange indicates a bounded integer field with min > max.
	ErrInvalidRange = errors.New("invalid integer range")

	// ErrEmptyEnum indicates an enum field with no allowed values.
	ErrEmptyEnum = errors.New("enum requires at least one value")

	// ErrNoFields indicates a schema with no fields at all.
	ErrNoFields = errors.New("schema requires at least one field")

	// ErrSchemaExists indicates a registry already holds a schema by that name.
	ErrSchemaExists = errors.New("schema already defined")

	// ErrSchemaNotFound indicates a registry lookup for an unknown schema.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrEmptyDocument indicates the document was empty after trimming and the
	// schema has at least one required field. Returned before any provider call.
	ErrEmptyDocument = errors.New("document is empty")

	// ErrEndpoint wraps transport or API failures from the provider.
	// Retryable by caller policy (see WithRetry, WithBackoff).
	ErrEndpoint = errors.New("provider endpoint failed")

	// ErrMalformedReply indicates the provider reply could not be decoded into
	// a field mapping at all. Not worth retrying unchanged: a format failure is
	// unlikely to self-correct without altering the prompt.
	ErrMalformedReply = errors.New("malformed provider reply")
)

// Violation reasons reported inside a ValidationError.
const (
	ReasonMissing    = "missing"
	ReasonWrongType  = "wrong-type"
	ReasonOutOfRange = "out-of-range"
	ReasonNotInEnum  = "not-in-enum"
)

// Violation describes a single field that failed validation.
type Violation struct {
	Field  string // Schema field name
	Reason string // One of the Reason* constants
	Value  string // Offending value as received, empty for ReasonMissing
	Detail string // Human-readable constraint description
}

func (v Violation) String() string {
	if v.Value == "" {
		return fmt.Sprintf("%s: %s (%s)", v.Field, v.Reason, v.Detail)
	}
	return fmt.Sprintf("%s: %s, got %q (%s)", v.Field, v.Reason, v.Value, v.Detail)
}

// ValidationError reports a decoded reply that violates the schema.
// It enumerates every violated field, not just the first, so a caller can
// construct a corrective follow-up prompt (see Extractor.Repair).
type ValidationError struct {
	Schema     string      // Name of the schema the reply was validated against
	Violations []Violation // All violations, in schema field order
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("reply violates schema %q: %s", e.Schema, strings.Join(parts, "; "))
}

// FieldNames returns the violated field names in schema order, deduplicated.
func (e *ValidationError) FieldNames() []string {
	seen := make(map[string]bool, len(e.Violations))
	names := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if !seen[v.Field] {
			seen[v.Field] = true
			names = append(names, v.Field)
		}
	}
	return names
}
