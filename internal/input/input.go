// Package input loads the documents a run starts from: the task file, the
// template variables file, and the template itself.
package input

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/efebarandurmaz/llm-ci-runner/internal/llm"
)

// Document is the task file: a list of chat messages plus an optional
// free-form context block. Messages stay undecoded until each entry is
// checked on its own, so a malformed entry is reported by index.
type Document struct {
	Messages any            `json:"messages" yaml:"messages"`
	Context  map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
}

// LoadInput reads the task file at path and builds its Conversation. A
// missing or empty messages array, or a malformed message, yields an
// *llm.ValidationError.
func LoadInput(path string) (*llm.Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}
	conv, err := ParseInput(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("input file %s: %w", path, err)
	}
	return conv, nil
}

// ParseInput decodes a task document. ext selects YAML (".yaml", ".yml")
// or JSON (anything else).
func ParseInput(data []byte, ext string) (*llm.Conversation, error) {
	var doc Document
	if err := decode(data, ext, &doc); err != nil {
		return nil, &llm.ValidationError{Index: -1, Field: "input", Reason: err.Error()}
	}
	raw, err := rawMessages(doc.Messages)
	if err != nil {
		return nil, err
	}
	conv, err := llm.BuildConversation(raw)
	if err != nil {
		return nil, err
	}
	if len(doc.Context) > 0 {
		conv = conv.WithContext(doc.Context)
	}
	return conv, nil
}

// rawMessages converts the decoded messages array entry by entry. Absent
// and null fields stay nil so BuildConversation reports them as missing.
func rawMessages(v any) ([]llm.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, &llm.ValidationError{Index: -1, Field: "messages", Reason: "must be an array"}
	}
	out := make([]llm.RawMessage, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, &llm.ValidationError{Index: i, Field: "message", Reason: fmt.Sprintf("must be an object, got %T", entry)}
		}
		var err error
		if out[i].Role, err = stringField(m, "role", i); err != nil {
			return nil, err
		}
		if out[i].Content, err = stringField(m, "content", i); err != nil {
			return nil, err
		}
		if out[i].Name, err = stringField(m, "name", i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func stringField(m map[string]any, key string, index int) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, &llm.ValidationError{Index: index, Field: key, Reason: fmt.Sprintf("must be a string, got %T", v)}
	}
	return &s, nil
}

// LoadVars reads template variables from a YAML or JSON file. An empty
// path yields an empty map.
func LoadVars(path string) (map[string]any, error) {
	vars := map[string]any{}
	if path == "" {
		return vars, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template vars: %w", err)
	}
	if err := decode(data, filepath.Ext(path), &vars); err != nil {
		return nil, fmt.Errorf("parsing template vars %s: %w", path, err)
	}
	if vars == nil {
		vars = map[string]any{}
	}
	return vars, nil
}

func decode(data []byte, ext string, v any) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}
