package template

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/efebarandurmaz/llm-ci-runner/internal/llm"
	"github.com/efebarandurmaz/llm-ci-runner/internal/schema"
)

// Prompt is a parsed template ready to render.
type Prompt struct {
	Name      string
	Variables []InputVariable

	// Schema is the response schema embedded in a prompt document, or nil.
	Schema *schema.Spec

	// Options are the sampling settings of a prompt document, or nil.
	Options *llm.RequestOptions

	turns []turnTemplate
}

type turnTemplate struct {
	role string
	name string
	tmpl *template.Template
}

// Document is a YAML prompt document:
//
//	name: review
//	template: |
//	  <message role="user">Review {{ .diff }}</message>
//	input_variables:
//	  - name: diff
//	execution_settings:
//	  default:
//	    temperature: 0.1
//	    response_format:
//	      type: json_schema
//	      json_schema:
//	        name: review
//	        schema: {...}
type Document struct {
	Name              string                       `yaml:"name"`
	Description       string                       `yaml:"description"`
	Template          string                       `yaml:"template"`
	InputVariables    []InputVariable              `yaml:"input_variables"`
	ExecutionSettings map[string]ExecutionSettings `yaml:"execution_settings"`
}

// InputVariable declares a template variable. IsRequired defaults to true.
type InputVariable struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Default     any    `yaml:"default"`
	IsRequired  *bool  `yaml:"is_required"`
}

func (v InputVariable) required() bool { return v.IsRequired == nil || *v.IsRequired }

// ExecutionSettings holds the settings for one backend service id.
type ExecutionSettings struct {
	Temperature    *float64       `yaml:"temperature"`
	MaxTokens      *int           `yaml:"max_tokens"`
	ResponseFormat map[string]any `yaml:"response_format"`
}

// Load reads the template at path. A .yaml or .yml file whose top level is
// a mapping with a template key is read as a prompt document; any other
// file is template text.
func Load(path string) (*Prompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var top map[string]any
		if yaml.Unmarshal(data, &top) == nil && top["template"] != nil {
			return ParseDocument(name, data)
		}
	}
	return NewPrompt(name, string(data))
}

// NewPrompt parses template text. Each turn found in the source is parsed
// as its own template.
func NewPrompt(name, text string) (*Prompt, error) {
	turns, ok := llm.SplitTurns(text)
	if !ok {
		turns = []llm.Turn{{Role: string(llm.RoleUser), Body: text}}
	}
	p := &Prompt{Name: name, turns: make([]turnTemplate, 0, len(turns))}
	for i, turn := range turns {
		tmpl, err := Parse(fmt.Sprintf("%s#%d", name, i), turn.Body)
		if err != nil {
			return nil, err
		}
		p.turns = append(p.turns, turnTemplate{role: turn.Role, name: turn.Name, tmpl: tmpl})
	}
	return p, nil
}

// ParseDocument parses a YAML prompt document. An embedded json_schema
// response format is compiled; a schema that does not compile is returned
// as a *schema.CompileError.
func ParseDocument(name string, data []byte) (*Prompt, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &llm.ValidationError{Index: -1, Field: "template", Reason: err.Error()}
	}
	if strings.TrimSpace(doc.Template) == "" {
		return nil, &llm.ValidationError{Index: -1, Field: "template", Reason: "prompt document has no template"}
	}
	if doc.Name != "" {
		name = doc.Name
	}
	p, err := NewPrompt(name, doc.Template)
	if err != nil {
		return nil, err
	}
	p.Variables = doc.InputVariables

	for _, id := range sortedKeys(doc.ExecutionSettings) {
		es := doc.ExecutionSettings[id]
		if p.Options == nil && (es.Temperature != nil || es.MaxTokens != nil) {
			p.Options = &llm.RequestOptions{Temperature: es.Temperature, MaxTokens: es.MaxTokens}
		}
		if p.Schema != nil {
			continue
		}
		sdoc, ok := responseSchema(es.ResponseFormat)
		if !ok {
			continue
		}
		if p.Schema, err = schema.Compile(sdoc); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// responseSchema extracts the schema from a response_format of type
// json_schema. The json_schema name becomes the title when the schema has
// none.
func responseSchema(rf map[string]any) (map[string]any, bool) {
	if rf == nil || rf["type"] != "json_schema" {
		return nil, false
	}
	js, ok := rf["json_schema"].(map[string]any)
	if !ok {
		return nil, false
	}
	doc, ok := js["schema"].(map[string]any)
	if !ok {
		doc = js
	}
	if _, ok := doc["title"]; !ok {
		if name, ok := js["name"].(string); ok && name != "" {
			titled := make(map[string]any, len(doc)+1)
			for k, v := range doc {
				titled[k] = v
			}
			titled["title"] = name
			doc = titled
		}
	}
	return doc, true
}

// Conversation renders every turn with vars. Declared variables missing
// from vars take their default, or fail when required.
func (p *Prompt) Conversation(vars map[string]any) (*llm.Conversation, error) {
	vars, err := p.bind(vars)
	if err != nil {
		return nil, err
	}
	turns := make([]llm.Turn, 0, len(p.turns))
	for _, t := range p.turns {
		body, err := Render(t.tmpl, vars)
		if err != nil {
			return nil, err
		}
		turns = append(turns, llm.Turn{Role: t.role, Name: t.name, Body: body})
	}
	return llm.TurnsConversation(turns)
}

func (p *Prompt) bind(vars map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(vars)+len(p.Variables))
	for k, v := range vars {
		out[k] = v
	}
	for _, v := range p.Variables {
		if _, ok := out[v.Name]; ok {
			continue
		}
		switch {
		case v.Default != nil:
			out[v.Name] = v.Default
		case v.required():
			return nil, &llm.ValidationError{Index: -1, Field: "template", Reason: fmt.Sprintf("required variable %q is not set", v.Name)}
		default:
			out[v.Name] = ""
		}
	}
	return out, nil
}

func sortedKeys(m map[string]ExecutionSettings) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
