package sieve

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Kind tags the semantic type of a schema field.
type Kind int

const (
	// KindString is free-form text.
	KindString Kind = iota
	// KindInt is an integer, optionally bounded to an inclusive range.
	KindInt
	// KindEnum is a string drawn from a finite allowed-value set.
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindEnum:
		return "enum"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Field is one declared output field: a type tag plus metadata.
// Fields are plain values; the With-style methods return modified copies so
// declarations compose without mutation.
type Field struct {
	Name        string
	Description string
	Optional    bool
	Kind        Kind

	// Kind-specific constraints.
	Min, Max int      // KindInt: inclusive bounds
	Values   []string // KindEnum: allowed values
}

// String declares a free-form text field.
func String(name string) Field {
	return Field{Name: name, Kind: KindString}
}

// Int declares an unbounded integer field.
func Int(name string) Field {
	return Field{Name: name, Kind: KindInt, Min: math.MinInt, Max: math.MaxInt}
}

// BoundedInt declares an integer field with inclusive bounds.
// Bounds are checked at schema construction: min > max fails with
// ErrInvalidRange.
func BoundedInt(name string, min, max int) Field {
	return Field{Name: name, Kind: KindInt, Min: min, Max: max}
}

// Enum declares a string field constrained to the given values.
// An empty value set fails schema construction with ErrEmptyEnum.
func Enum(name string, values ...string) Field {
	return Field{Name: name, Kind: KindEnum, Values: values}
}

// Describe returns a copy of the field with a human-readable description.
// Descriptions are rendered into prompts and the emitted JSON Schema.
func (f Field) Describe(desc string) Field {
	f.Description = desc
	return f
}

// AsOptional returns a copy of the field marked optional.
// Optional fields may be absent from a reply without violating the schema.
func (f Field) AsOptional() Field {
	f.Optional = true
	return f
}

// bounded reports whether an integer field carries real bounds.
func (f Field) bounded() bool {
	return f.Kind == KindInt && (f.Min != math.MinInt || f.Max != math.MaxInt)
}

// constraint renders the field's constraint for prompts and violations.
func (f Field) constraint() string {
	switch f.Kind {
	case KindInt:
		if f.bounded() {
			return fmt.Sprintf("integer %d-%d", f.Min, f.Max)
		}
		return "integer"
	case KindEnum:
		return "one of: " + strings.Join(f.Values, " | ")
	default:
		return "string"
	}
}

// Schema is an ordered, immutable set of named output fields.
// Construct with NewSchema; a constructed Schema is read-only and safe to
// share across concurrent extractions without locking.
type Schema struct {
	name     string
	fields   []Field
	byName   map[string]int
	doc      string
	compiled *jsonschema.Schema
}

// NewSchema validates the field declarations and builds a schema.
//
// Construction fails with ErrDuplicateField on repeated field names,
// ErrInvalidRange on a bounded integer with min > max, ErrEmptyEnum on an
// enum with no values, and ErrNoFields on an empty declaration. The JSON
// Schema document emitted for providers is compiled here so a bad emission
// fails at definition time rather than mid-extraction.
func NewSchema(name string, fields ...Field) (*Schema, error) {
	if name == "" {
		return nil, fmt.Errorf("schema name must not be empty")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema %q: %w", name, ErrNoFields)
	}

	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema %q: field %d has no name", name, i)
		}
		if _, exists := byName[f.Name]; exists {
			return nil, fmt.Errorf("schema %q: field %q: %w", name, f.Name, ErrDuplicateField)
		}
		byName[f.Name] = i

		switch f.Kind {
		case KindInt:
			if f.Min > f.Max {
				return nil, fmt.Errorf("schema %q: field %q: min %d > max %d: %w",
					name, f.Name, f.Min, f.Max, ErrInvalidRange)
			}
		case KindEnum:
			if len(f.Values) == 0 {
				return nil, fmt.Errorf("schema %q: field %q: %w", name, f.Name, ErrEmptyEnum)
			}
		}
	}

	s := &Schema{
		name:   name,
		fields: append([]Field(nil), fields...),
		byName: byName,
	}
	s.doc = s.emitJSONSchema()

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(s.doc)); err != nil {
		return nil, fmt.Errorf("schema %q: loading emitted JSON Schema: %w", name, err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("schema %q: compiling emitted JSON Schema: %w", name, err)
	}
	s.compiled = compiled

	return s, nil
}

// MustSchema is NewSchema that panics on error, for package-level definitions.
func MustSchema(name string, fields ...Field) *Schema {
	s, err := NewSchema(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Fields returns a copy of the field declarations in declaration order.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Field returns the declaration for a field name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// AllOptional reports whether every field is optional.
// Such a schema accepts an empty document.
func (s *Schema) AllOptional() bool {
	for _, f := range s.fields {
		if !f.Optional {
			return false
		}
	}
	return true
}

// JSONSchema returns the JSON Schema document for this schema.
// Providers embed it in structured-output request parameters; it is also
// appended to rendered prompts. The document is deterministic for a given
// field set.
func (s *Schema) JSONSchema() string { return s.doc }

// CheckJSON validates a decoded JSON document against the compiled schema.
// This is the structural view only; extraction additionally runs per-field
// validation with coercion (see Extractor).
func (s *Schema) CheckJSON(doc any) error {
	return s.compiled.Validate(doc)
}

// emitJSONSchema builds the provider-facing JSON Schema document.
func (s *Schema) emitJSONSchema() string {
	properties := make(map[string]any, len(s.fields))
	var required []string

	for _, f := range s.fields {
		prop := map[string]any{}
		switch f.Kind {
		case KindInt:
			prop["type"] = "integer"
			if f.bounded() {
				prop["minimum"] = f.Min
				prop["maximum"] = f.Max
			}
		case KindEnum:
			prop["type"] = "string"
			prop["enum"] = f.Values
		default:
			prop["type"] = "string"
		}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		properties[f.Name] = prop

		if !f.Optional {
			required = append(required, f.Name)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		// Unreachable for the value shapes above.
		return "{}"
	}
	return string(jsonBytes)
}
