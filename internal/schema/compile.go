package schema

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// maxRefDepth bounds $ref expansion so that self-referencing definitions
// fail instead of recursing forever.
const maxRefDepth = 32

type compiler struct {
	defs map[string]map[string]any // keyed by "#/definitions/x" and "#/$defs/x"
}

// Compile turns a JSON Schema document into a Spec. The root must describe
// an object. Compile does not retain doc; the Spec holds its own copy.
func Compile(doc map[string]any) (*Spec, error) {
	if doc == nil {
		return nil, &CompileError{Reason: "document is empty"}
	}

	c := &compiler{defs: make(map[string]map[string]any)}
	for _, key := range []string{"definitions", "$defs"} {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		defs, ok := asMap(raw)
		if !ok {
			return nil, &CompileError{Path: "/" + key, Reason: "must be an object"}
		}
		for name, d := range defs {
			m, ok := asMap(d)
			if !ok {
				return nil, &CompileError{Path: "/" + key + "/" + name, Reason: "definition must be an object"}
			}
			c.defs["#/"+key+"/"+name] = m
		}
	}

	root, err := c.resolve(doc, "", 0)
	if err != nil {
		return nil, err
	}
	t, _, err := schemaType(root, "")
	if err != nil {
		return nil, err
	}
	if t != TypeObject {
		return nil, &CompileError{Reason: fmt.Sprintf("root must be an object schema, got %q", displayType(t))}
	}

	spec, err := c.compileObject(root, "", 0)
	if err != nil {
		return nil, err
	}
	spec.Title = DefaultTitle
	if title, ok := root["title"].(string); ok && strings.TrimSpace(title) != "" {
		spec.Title = title
	}
	spec.Document = deepCopyMap(doc)
	return spec, nil
}

// resolve follows $ref chains starting at node.
func (c *compiler) resolve(node map[string]any, path string, depth int) (map[string]any, error) {
	for {
		ref, ok := node["$ref"].(string)
		if !ok {
			return node, nil
		}
		depth++
		if depth > maxRefDepth {
			return nil, &CompileError{Path: path, Reason: fmt.Sprintf("$ref %q is recursive", ref)}
		}
		target, ok := c.defs[ref]
		if !ok {
			return nil, &CompileError{Path: path, Reason: fmt.Sprintf("unresolved $ref %q", ref)}
		}
		node = target
	}
}

func (c *compiler) compileObject(node map[string]any, path string, depth int) (*Spec, error) {
	spec := &Spec{
		Fields:               make(map[string]*FieldSpec),
		Required:             make(map[string]bool),
		AdditionalProperties: true,
	}
	spec.Description, _ = node["description"].(string)

	if raw, ok := node["properties"]; ok {
		props, ok := asMap(raw)
		if !ok {
			return nil, &CompileError{Path: path + "/properties", Reason: "must be an object"}
		}
		for name, p := range props {
			propPath := path + "/properties/" + name
			pm, ok := asMap(p)
			if !ok {
				return nil, &CompileError{Path: propPath, Reason: "property schema must be an object"}
			}
			field, err := c.compileField(pm, propPath, depth)
			if err != nil {
				return nil, err
			}
			spec.Fields[name] = field
			spec.Order = append(spec.Order, name)
		}
	}
	sort.Strings(spec.Order)

	if raw, ok := node["required"]; ok {
		names, ok := asStrings(raw)
		if !ok {
			return nil, &CompileError{Path: path + "/required", Reason: "must be an array of strings"}
		}
		for _, name := range names {
			if _, ok := spec.Fields[name]; !ok {
				return nil, &CompileError{Path: path + "/required", Reason: fmt.Sprintf("required field %q is not declared in properties", name)}
			}
			spec.Required[name] = true
		}
	}

	if ap, ok := node["additionalProperties"].(bool); ok {
		spec.AdditionalProperties = ap
	}
	return spec, nil
}

func (c *compiler) compileField(node map[string]any, path string, depth int) (*FieldSpec, error) {
	node, err := c.resolve(node, path, depth)
	if err != nil {
		return nil, err
	}

	t, nullable, err := schemaType(node, path)
	if err != nil {
		return nil, err
	}
	f := &FieldSpec{Type: t, Nullable: nullable}
	f.Description, _ = node["description"].(string)

	if raw, ok := node["enum"]; ok {
		vals, ok := raw.([]any)
		if !ok || len(vals) == 0 {
			return nil, &CompileError{Path: path + "/enum", Reason: "must be a non-empty array"}
		}
		f.Enum = deepCopySlice(vals)
		for _, v := range vals {
			if v == nil {
				f.Nullable = true
			}
		}
	}
	if raw, ok := node["const"]; ok {
		f.Enum = []any{deepCopyValue(raw)}
	}

	if f.Minimum, err = optFloat(node, "minimum", path); err != nil {
		return nil, err
	}
	if f.Maximum, err = optFloat(node, "maximum", path); err != nil {
		return nil, err
	}
	// Draft 4 spells exclusive bounds as booleans modifying minimum/maximum.
	if b, ok := node["exclusiveMinimum"].(bool); ok {
		if b {
			f.ExclusiveMinimum, f.Minimum = f.Minimum, nil
		}
	} else if f.ExclusiveMinimum, err = optFloat(node, "exclusiveMinimum", path); err != nil {
		return nil, err
	}
	if b, ok := node["exclusiveMaximum"].(bool); ok {
		if b {
			f.ExclusiveMaximum, f.Maximum = f.Maximum, nil
		}
	} else if f.ExclusiveMaximum, err = optFloat(node, "exclusiveMaximum", path); err != nil {
		return nil, err
	}

	if f.MinLength, err = optCount(node, "minLength", path); err != nil {
		return nil, err
	}
	if f.MaxLength, err = optCount(node, "maxLength", path); err != nil {
		return nil, err
	}
	if f.MinItems, err = optCount(node, "minItems", path); err != nil {
		return nil, err
	}
	if f.MaxItems, err = optCount(node, "maxItems", path); err != nil {
		return nil, err
	}

	if raw, ok := node["pattern"]; ok {
		p, ok := raw.(string)
		if !ok {
			return nil, &CompileError{Path: path + "/pattern", Reason: "must be a string"}
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, &CompileError{Path: path + "/pattern", Reason: err.Error()}
		}
		f.Pattern, f.pattern = p, re
	}

	switch t {
	case TypeArray:
		if raw, ok := node["items"]; ok {
			im, ok := asMap(raw)
			if !ok {
				return nil, &CompileError{Path: path + "/items", Reason: "must be a single schema object"}
			}
			if f.Items, err = c.compileField(im, path+"/items", depth+1); err != nil {
				return nil, err
			}
		}
	case TypeObject:
		if f.Nested, err = c.compileObject(node, path, depth+1); err != nil {
			return nil, err
		}
		if title, ok := node["title"].(string); ok {
			f.Nested.Title = title
		}
	}
	return f, nil
}

// schemaType reads "type", which may be a string or an array such as
// ["string", "null"]. A missing type is inferred from structural keywords.
func schemaType(node map[string]any, path string) (Type, bool, error) {
	raw, ok := node["type"]
	if !ok {
		switch {
		case node["properties"] != nil:
			return TypeObject, false, nil
		case node["items"] != nil:
			return TypeArray, false, nil
		}
		return TypeAny, false, nil
	}

	var names []string
	switch v := raw.(type) {
	case string:
		names = []string{v}
	default:
		list, ok := asStrings(v)
		if !ok || len(list) == 0 {
			return "", false, &CompileError{Path: path + "/type", Reason: "must be a string or array of strings"}
		}
		names = list
	}

	var (
		result   Type
		nullable bool
	)
	for _, n := range names {
		t, ok := parseType(n)
		if !ok {
			return "", false, &CompileError{Path: path + "/type", Reason: fmt.Sprintf("unknown type %q", n)}
		}
		if t == TypeNull {
			nullable = true
			continue
		}
		if result != "" && result != t {
			return "", false, &CompileError{Path: path + "/type", Reason: fmt.Sprintf("union of %q and %q is not supported", result, t)}
		}
		result = t
	}
	if result == "" {
		return TypeNull, true, nil
	}
	return result, nullable, nil
}

func displayType(t Type) string {
	if t == TypeAny {
		return "any"
	}
	return string(t)
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asStrings(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func optFloat(node map[string]any, key, path string) (*float64, error) {
	raw, ok := node[key]
	if !ok {
		return nil, nil
	}
	f, ok := toFloat(raw)
	if !ok {
		return nil, &CompileError{Path: path + "/" + key, Reason: "must be a number"}
	}
	return &f, nil
}

func optCount(node map[string]any, key, path string) (*int, error) {
	raw, ok := node[key]
	if !ok {
		return nil, nil
	}
	f, ok := toFloat(raw)
	if !ok || f < 0 || f != math.Trunc(f) {
		return nil, &CompileError{Path: path + "/" + key, Reason: "must be a non-negative integer"}
	}
	n := int(f)
	return &n, nil
}
