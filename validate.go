package sieve

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// validateReply checks a decoded field mapping against the schema and builds
// the validated record. It walks every schema field and collects every
// violation rather than stopping at the first, so callers can repair all
// problems in a single follow-up.
//
// Coercion crosses representations, never semantic kinds: a numeric string
// becomes an integer, but an out-of-range integer is never clamped and a
// number never silently becomes free-form text. Fields present in the reply
// but absent from the schema are ignored; the prompt instructs the model not
// to produce them and they carry nothing the caller asked for.
func validateReply(schema *Schema, reply map[string]any) (Result, *ValidationError) {
	record := make(map[string]any, len(schema.fields))
	var violations []Violation

	for _, f := range schema.fields {
		raw, present := reply[f.Name]
		if !present || raw == nil {
			if !f.Optional {
				violations = append(violations, Violation{
					Field:  f.Name,
					Reason: ReasonMissing,
					Detail: "required field absent from reply",
				})
			}
			continue
		}

		value, v := validateField(f, raw)
		if v != nil {
			violations = append(violations, *v)
			continue
		}
		record[f.Name] = value
	}

	if len(violations) > 0 {
		return Result{}, &ValidationError{Schema: schema.name, Violations: violations}
	}
	return Result{fields: record}, nil
}

// validateField checks one raw value against its field declaration and
// returns the coerced value.
func validateField(f Field, raw any) (any, *Violation) {
	switch f.Kind {
	case KindInt:
		return validateInt(f, raw)
	case KindEnum:
		return validateEnum(f, raw)
	default:
		return validateString(f, raw)
	}
}

func validateString(f Field, raw any) (any, *Violation) {
	s, ok := raw.(string)
	if !ok {
		return nil, &Violation{
			Field:  f.Name,
			Reason: ReasonWrongType,
			Value:  renderValue(raw),
			Detail: "expected a string",
		}
	}
	return s, nil
}

func validateInt(f Field, raw any) (any, *Violation) {
	n, ok := coerceInt(raw)
	if !ok {
		return nil, &Violation{
			Field:  f.Name,
			Reason: ReasonWrongType,
			Value:  renderValue(raw),
			Detail: "expected " + f.constraint(),
		}
	}
	if n < f.Min || n > f.Max {
		return nil, &Violation{
			Field:  f.Name,
			Reason: ReasonOutOfRange,
			Value:  strconv.Itoa(n),
			Detail: "expected " + f.constraint(),
		}
	}
	return n, nil
}

func validateEnum(f Field, raw any) (any, *Violation) {
	s, ok := raw.(string)
	if !ok {
		return nil, &Violation{
			Field:  f.Name,
			Reason: ReasonWrongType,
			Value:  renderValue(raw),
			Detail: "expected " + f.constraint(),
		}
	}
	s = strings.TrimSpace(s)
	for _, allowed := range f.Values {
		if s == allowed {
			return s, nil
		}
	}
	return nil, &Violation{
		Field:  f.Name,
		Reason: ReasonNotInEnum,
		Value:  s,
		Detail: "expected " + f.constraint(),
	}
}

// coerceInt accepts JSON numbers with no fractional part and numeric strings.
func coerceInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case json.Number:
		return parseIntString(v.String())
	case string:
		return parseIntString(strings.TrimSpace(v))
	case float64:
		// Replies decoded without UseNumber (typed facade round-trip).
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

func parseIntString(s string) (int, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int(n), true
	}
	// Models sometimes emit "3.0" for integer fields; accept zero fractions.
	if fl, err := strconv.ParseFloat(s, 64); err == nil && fl == float64(int64(fl)) {
		return int(fl), true
	}
	return 0, false
}

func renderValue(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", raw)
	}
}
