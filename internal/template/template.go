// Package template renders prompt templates into conversations.
//
// Templates use Go text/template syntax and describe turns either with
// <message role="..."> tags or with "role:" line prefixes; see
// llm.ParseRendered. Turns are located in the template source before
// rendering, so variable values never add or reorder turns. A consequence
// is that a template action cannot span two turns.
//
// A .yaml or .yml template may instead be a prompt document carrying the
// template text together with its input variables and execution settings,
// including an embedded response schema.
package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/efebarandurmaz/llm-ci-runner/internal/llm"
)

var funcs = template.FuncMap{
	"toJSON": func(v any) (string, error) {
		b, err := json.MarshalIndent(v, "", "  ")
		return string(b), err
	},
	"toYAML": func(v any) (string, error) {
		b, err := yaml.Marshal(v)
		return strings.TrimRight(string(b), "\n"), err
	},
	"join":  func(sep string, items []any) string { return joinAny(items, sep) },
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
	"default": func(def, v any) any {
		if v == nil || v == "" {
			return def
		}
		return v
	},
}

// Parse parses template text. Missing variables are errors rather than
// "<no value>" so a typo in a vars file fails the run.
func Parse(name, text string) (*template.Template, error) {
	t, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, &llm.ValidationError{Index: -1, Field: "template", Reason: err.Error()}
	}
	return t, nil
}

// Render executes t with vars and returns the text.
func Render(t *template.Template, vars map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", &llm.ValidationError{Index: -1, Field: "template", Reason: err.Error()}
	}
	return buf.String(), nil
}

// BuildConversation loads the template at path and renders it with vars.
func BuildConversation(path string, vars map[string]any) (*llm.Conversation, error) {
	p, err := Load(path)
	if err != nil {
		return nil, err
	}
	return p.Conversation(vars)
}

func joinAny(items []any, sep string) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = fmt.Sprint(it)
	}
	return strings.Join(parts, sep)
}
