package sieve

import "encoding/json"

// Result is a validated extraction record: every required field of the schema
// mapped to its coerced value. Integer fields hold int, string and enum
// fields hold string. Results are plain values owned by the caller.
type Result struct {
	fields map[string]any
}

// Has reports whether a field is present in the record.
// Required fields are always present; optional fields only when the reply
// supplied them.
func (r Result) Has(name string) bool {
	_, ok := r.fields[name]
	return ok
}

// String returns a string or enum field value.
func (r Result) String(name string) (string, bool) {
	s, ok := r.fields[name].(string)
	return s, ok
}

// Int returns an integer field value.
func (r Result) Int(name string) (int, bool) {
	n, ok := r.fields[name].(int)
	return n, ok
}

// Fields returns a copy of the full field mapping.
func (r Result) Fields() map[string]any {
	out := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// Len returns the number of populated fields.
func (r Result) Len() int { return len(r.fields) }

// MarshalJSON renders the record as a JSON object.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.fields)
}
