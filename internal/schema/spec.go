// Package schema compiles JSON Schema documents into a validated, immutable
// description of the output a model must produce, and checks decoded JSON
// values against it.
//
// Only the subset of JSON Schema that structured-output APIs accept is
// supported: primitive types, enums, numeric and string bounds, patterns,
// arrays, nested objects, local $ref and nullable types.
package schema

import (
	"fmt"
	"regexp"
	"sort"
)

// DefaultTitle names a schema that has no title of its own.
const DefaultTitle = "DynamicOutputModel"

// Type is a JSON Schema primitive type. The empty Type accepts any value.
type Type string

const (
	TypeAny     Type = ""
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
	TypeNull    Type = "null"
)

func parseType(s string) (Type, bool) {
	switch t := Type(s); t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject, TypeNull:
		return t, true
	}
	return "", false
}

// FieldSpec constrains a single value.
type FieldSpec struct {
	Type        Type
	Description string
	Nullable    bool
	Enum        []any

	Minimum          *float64
	Maximum          *float64
	ExclusiveMinimum *float64
	ExclusiveMaximum *float64

	MinLength *int
	MaxLength *int
	Pattern   string
	pattern   *regexp.Regexp

	MinItems *int
	MaxItems *int
	Items    *FieldSpec // element constraint; nil accepts any element

	Nested *Spec // set when Type is object
}

// Spec is a compiled object schema. It is never modified after Compile
// returns, so it may be shared freely.
type Spec struct {
	Title                string
	Description          string
	Fields               map[string]*FieldSpec
	Required             map[string]bool
	Order                []string // field names, sorted
	AdditionalProperties bool

	// Document is a private copy of the source document.
	Document map[string]any
}

// RequiredNames returns the required field names in sorted order.
func (s *Spec) RequiredNames() []string {
	out := make([]string, 0, len(s.Required))
	for name := range s.Required {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Field returns the constraint for name, or nil.
func (s *Spec) Field(name string) *FieldSpec {
	return s.Fields[name]
}

// CompileError reports a document that cannot be compiled. Path is a JSON
// pointer into the source document.
type CompileError struct {
	Path   string
	Reason string
}

func (e *CompileError) Error() string {
	if e.Path == "" {
		return "schema: " + e.Reason
	}
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Reason)
}
