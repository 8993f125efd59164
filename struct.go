package sieve

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zoobzio/sentinel"
)

// SchemaFor derives a Schema from a Go struct type using sentinel metadata.
//
// Supported field types are string and the integer kinds. Struct tags map to
// field metadata:
//
//	json:"name"        field name ("-" skips the field, omitempty marks it optional)
//	desc:"..."         description
//	enum:"a|b|c"       string field becomes an enum over the listed values
//	min:"1" max:"5"    integer field becomes a bounded integer
//
// Example:
//
//	type Labels struct {
//	    Sentiment      string `json:"sentiment" enum:"happy|neutral|sad"`
//	    Aggressiveness int    `json:"aggressiveness" min:"1" max:"5" desc:"1 is calm, 5 is hostile"`
//	    Language       string `json:"language" enum:"spanish|english|french|german|italian"`
//	}
//	schema, err := sieve.SchemaFor[Labels]("labels")
func SchemaFor[T any](name string) (*Schema, error) {
	metadata := sentinel.Inspect[T]()

	var fields []Field
	for _, fm := range metadata.Fields {
		jsonName, optional := jsonFieldName(fm)
		if jsonName == "-" {
			continue
		}

		field, err := fieldFromMetadata(fm, jsonName)
		if err != nil {
			return nil, fmt.Errorf("schema %q: %w", name, err)
		}
		if optional {
			field = field.AsOptional()
		}
		if desc, ok := fm.Tags["desc"]; ok {
			field = field.Describe(desc)
		}
		fields = append(fields, field)
	}

	return NewSchema(name, fields...)
}

// fieldFromMetadata maps one struct field to a schema field declaration.
func fieldFromMetadata(fm sentinel.FieldMetadata, jsonName string) (Field, error) {
	switch {
	case strings.HasPrefix(fm.Type, "string"):
		if enumTag, ok := fm.Tags["enum"]; ok {
			values := strings.Split(enumTag, "|")
			return Enum(jsonName, values...), nil
		}
		return String(jsonName), nil

	case strings.HasPrefix(fm.Type, "int"), strings.HasPrefix(fm.Type, "uint"):
		minTag, hasMin := fm.Tags["min"]
		maxTag, hasMax := fm.Tags["max"]
		if !hasMin && !hasMax {
			return Int(jsonName), nil
		}
		field := Int(jsonName)
		if hasMin {
			min, err := strconv.Atoi(minTag)
			if err != nil {
				return Field{}, fmt.Errorf("field %q: bad min tag %q: %w", fm.Name, minTag, err)
			}
			field.Min = min
		}
		if hasMax {
			max, err := strconv.Atoi(maxTag)
			if err != nil {
				return Field{}, fmt.Errorf("field %q: bad max tag %q: %w", fm.Name, maxTag, err)
			}
			field.Max = max
		}
		return field, nil

	default:
		return Field{}, fmt.Errorf("field %q: unsupported type %s", fm.Name, fm.Type)
	}
}

// jsonFieldName extracts the JSON field name and omitempty flag from metadata.
func jsonFieldName(fm sentinel.FieldMetadata) (name string, optional bool) {
	name = strings.ToLower(fm.Name[:1]) + fm.Name[1:]
	if jsonTag, ok := fm.Tags["json"]; ok {
		parts := strings.Split(jsonTag, ",")
		if parts[0] != "" {
			name = parts[0]
		}
		for _, opt := range parts[1:] {
			if opt == "omitempty" {
				optional = true
			}
		}
	}
	return name, optional
}
