package sieve

import (
	"fmt"
	"strings"
)

// Document delimiters. The document travels inside an explicitly fenced block
// so its content cannot be confused with the instruction sections, even when
// the document itself contains text that looks like instructions.
const (
	documentOpen  = "<<<DOCUMENT"
	documentClose = "DOCUMENT>>>"
)

// Prompt represents a structured extraction prompt with consistent formatting.
// It enforces a canonical section ordering so rendering is deterministic for
// identical inputs.
type Prompt struct {
	Task        string              // Required: what the LLM should do
	Document    string              // Required (unless schema is all-optional): text to extract from
	Context     string              // Optional: additional context
	Fields      []Field             // Required: the schema fields being extracted
	Examples    map[string][]string // Optional: example extractions per label
	Feedback    []string            // Optional: corrective feedback from a failed attempt
	Schema      string              // Required: JSON schema for the response
	Constraints []string            // Required: rules and constraints
}

// Render converts the structured prompt to a string for the LLM.
// Rendering is a pure function of the prompt value: same fields, same output.
func (p *Prompt) Render() string {
	var sections []string

	if p.Task != "" {
		sections = append(sections, "Task: "+p.Task)
	}

	// Document is fenced, never inlined.
	if p.Document != "" {
		sections = append(sections, "Document:\n"+documentOpen+"\n"+escapeDelimiters(p.Document)+"\n"+documentClose)
	}

	if p.Context != "" {
		sections = append(sections, "Context: "+p.Context)
	}

	if len(p.Fields) > 0 {
		fields := "Fields:\n"
		for _, f := range p.Fields {
			line := fmt.Sprintf("  - %s (%s", f.Name, f.constraint())
			if f.Optional {
				line += ", optional"
			}
			line += ")"
			if f.Description != "" {
				line += ": " + f.Description
			}
			fields += line + "\n"
		}
		sections = append(sections, strings.TrimSpace(fields))
	}

	if len(p.Examples) > 0 {
		// Iterate fields for stable ordering; map iteration is randomized.
		rendered := "Examples:\n"
		wrote := false
		for _, f := range p.Fields {
			exs := p.Examples[f.Name]
			if len(exs) == 0 {
				continue
			}
			rendered += fmt.Sprintf("  %s:\n", f.Name)
			for _, ex := range exs {
				rendered += fmt.Sprintf("    - %s\n", ex)
			}
			wrote = true
		}
		if wrote {
			sections = append(sections, strings.TrimSpace(rendered))
		}
	}

	if len(p.Feedback) > 0 {
		fb := "Previous attempt was rejected:\n"
		for _, f := range p.Feedback {
			fb += "  - " + f + "\n"
		}
		sections = append(sections, strings.TrimSpace(fb))
	}

	if p.Schema != "" {
		sections = append(sections, "Return JSON matching this schema:\n"+p.Schema)
	}

	if len(p.Constraints) > 0 {
		con := "Constraints:\n"
		for _, c := range p.Constraints {
			con += "- " + c + "\n"
		}
		sections = append(sections, strings.TrimSpace(con))
	}

	return strings.Join(sections, "\n\n")
}

// escapeDelimiters neutralizes fence markers occurring inside the document so
// its text cannot close the block early and read as instruction sections.
func escapeDelimiters(doc string) string {
	// Replacing can recreate a marker from longer runs, so loop to a fixpoint.
	for strings.Contains(doc, documentOpen) {
		doc = strings.ReplaceAll(doc, documentOpen, "<<DOCUMENT")
	}
	for strings.Contains(doc, documentClose) {
		doc = strings.ReplaceAll(doc, documentClose, "DOCUMENT>>")
	}
	return doc
}

// Validate checks if the prompt has required fields.
func (p *Prompt) Validate() error {
	if p.Task == "" {
		return fmt.Errorf("prompt missing required Task field")
	}
	if p.Schema == "" {
		return fmt.Errorf("prompt missing required Schema field")
	}
	if len(p.Fields) == 0 {
		return fmt.Errorf("prompt missing required Fields")
	}
	return nil
}
