package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDocument reads a schema document from path. Files ending in .yaml or
// .yml are parsed as YAML, everything else as JSON.
func LoadDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	doc, err := ParseDocument(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parsing schema file %s: %w", path, err)
	}
	return doc, nil
}

// ParseDocument decodes a schema document. ext selects the format (".yaml",
// ".yml" or anything else for JSON).
func ParseDocument(data []byte, ext string) (map[string]any, error) {
	var doc map[string]any
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("document is empty")
	}
	return doc, nil
}

// Load reads and compiles the schema at path.
func Load(path string) (*Spec, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return Compile(doc)
}

// RequestDocument returns the document to send to a backend and whether it
// may be enforced strictly. When strict mode cannot express the schema
// without narrowing it, the untouched source document is returned instead.
func (s *Spec) RequestDocument() (map[string]any, bool) {
	if !s.StrictSupported() {
		return deepCopyMap(s.Document), false
	}
	return s.StrictDocument(), true
}

// StrictSupported reports whether StrictDocument accepts the same values as
// the source document. Free-form objects, untyped properties and
// additionalProperties other than false have no strict equivalent.
func (s *Spec) StrictSupported() bool {
	if !strictExpressible(s.Document) {
		return false
	}
	for _, key := range []string{"definitions", "$defs"} {
		defs, _ := s.Document[key].(map[string]any)
		for _, d := range defs {
			if dm, ok := d.(map[string]any); ok && !strictExpressible(dm) {
				return false
			}
		}
	}
	return true
}

func strictExpressible(node map[string]any) bool {
	if ap, ok := node["additionalProperties"]; ok && ap != false {
		return false
	}
	if items, ok := node["items"].(map[string]any); ok && !strictExpressible(items) {
		return false
	}
	props, ok := node["properties"].(map[string]any)
	if !ok {
		return !hasType(node, "object")
	}
	for _, p := range props {
		pm, ok := p.(map[string]any)
		if !ok || !typed(pm) || !strictExpressible(pm) {
			return false
		}
	}
	return true
}

// typed reports whether node pins down a value's shape.
func typed(node map[string]any) bool {
	for _, key := range []string{"type", "$ref", "enum", "const", "anyOf", "properties", "items"} {
		if _, ok := node[key]; ok {
			return true
		}
	}
	return false
}

func hasType(node map[string]any, want string) bool {
	switch t := node["type"].(type) {
	case string:
		return t == want
	default:
		names, _ := asStrings(t)
		for _, n := range names {
			if n == want {
				return true
			}
		}
	}
	return false
}

// StrictDocument returns a copy of the source document rewritten for
// strict structured-output modes: every object lists all of its properties
// as required and forbids additional ones. Properties that were optional
// become nullable, and Validate treats a null optional field as absent.
func (s *Spec) StrictDocument() map[string]any {
	doc := deepCopyMap(s.Document)
	strictify(doc)
	for _, key := range []string{"definitions", "$defs"} {
		if defs, ok := doc[key].(map[string]any); ok {
			for _, d := range defs {
				if dm, ok := d.(map[string]any); ok {
					strictify(dm)
				}
			}
		}
	}
	return doc
}

func strictify(node map[string]any) {
	if items, ok := node["items"].(map[string]any); ok {
		strictify(items)
	}
	props, ok := node["properties"].(map[string]any)
	if !ok {
		if node["type"] == "object" {
			node["additionalProperties"] = false
			if _, ok := node["properties"]; !ok {
				node["properties"] = map[string]any{}
			}
			node["required"] = []any{}
		}
		return
	}

	required := make(map[string]bool)
	if names, ok := asStrings(node["required"]); ok {
		for _, n := range names {
			required[n] = true
		}
	}

	names := make([]string, 0, len(props))
	for name, p := range props {
		names = append(names, name)
		pm, ok := p.(map[string]any)
		if !ok {
			continue
		}
		strictify(pm)
		if !required[name] {
			props[name] = makeNullable(pm)
		}
	}
	sort.Strings(names)

	all := make([]any, len(names))
	for i, n := range names {
		all[i] = n
	}
	node["required"] = all
	node["additionalProperties"] = false
}

func makeNullable(node map[string]any) map[string]any {
	if _, ok := node["$ref"]; ok {
		return map[string]any{"anyOf": []any{node, map[string]any{"type": "null"}}}
	}
	switch t := node["type"].(type) {
	case string:
		if t != "null" {
			node["type"] = []any{t, "null"}
		}
	case []any:
		for _, v := range t {
			if v == "null" {
				return node
			}
		}
		node["type"] = append(t, "null")
	}
	if enum, ok := node["enum"].([]any); ok {
		for _, v := range enum {
			if v == nil {
				return node
			}
		}
		node["enum"] = append(enum, nil)
	}
	return node
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopySlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopyMap(x)
	case []any:
		return deepCopySlice(x)
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	}
	return v
}
