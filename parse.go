package sieve

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeReply parses a raw provider reply into a field mapping, with
// lightweight recovery for markdown code fences and surrounding prose.
// Numbers are kept as json.Number so integer validation never loses
// precision through float64.
//
// Anything that cannot be recovered into a JSON object is ErrMalformedReply.
func decodeReply(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedReply)
	}

	candidates := []string{trimmed}
	if stripped := stripCodeFences(trimmed); stripped != "" && stripped != trimmed {
		candidates = append(candidates, stripped)
	}
	if extracted := extractObjectCandidate(trimmed); extracted != "" && extracted != trimmed {
		candidates = append(candidates, extracted)
	}

	for _, candidate := range candidates {
		fields, err := decodeObject(candidate)
		if err == nil {
			return fields, nil
		}
	}

	return nil, fmt.Errorf("%w: no JSON object found in reply", ErrMalformedReply)
}

// decodeObject decodes one candidate string into a JSON object.
func decodeObject(candidate string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("reply decoded to null")
	}
	return fields, nil
}

// stripCodeFences removes a surrounding markdown code fence, if present.
func stripCodeFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return ""
	}

	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop the opening fence line (possibly "```json").
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractObjectCandidate pulls the outermost {...} span out of a reply that
// wraps JSON in prose.
func extractObjectCandidate(content string) string {
	start := strings.Index(content, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(content, "}")
	if end < start {
		return ""
	}
	return strings.TrimSpace(content[start : end+1])
}
