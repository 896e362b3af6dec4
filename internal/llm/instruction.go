package llm

import (
	"encoding/json"
	"strings"
)

// SchemaInstruction renders a plain-text instruction asking the model to
// answer with JSON matching c. Backends without native structured output
// append it to the system prompt.
func SchemaInstruction(c *SchemaConstraint) string {
	if c == nil {
		return ""
	}
	doc, err := json.MarshalIndent(c.Document, "", "  ")
	if err != nil {
		doc = []byte("{}")
	}

	var b strings.Builder
	b.WriteString("IMPORTANT: You must respond with valid JSON that follows this exact schema")
	if c.Name != "" {
		b.WriteString(" (")
		b.WriteString(c.Name)
		b.WriteString(")")
	}
	b.WriteString(":\n\n```json\n")
	b.Write(doc)
	b.WriteString("\n```\n\nRespond ONLY with valid JSON that matches this schema. Do not include any other text.")
	return b.String()
}
