package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// FieldError is one violation found by Validate.
type FieldError struct {
	Path    string // e.g. "$.items[2].name"
	Message string
}

func (e FieldError) String() string { return e.Path + ": " + e.Message }

// ValidationErrors lists every violation in a value, in traversal order.
type ValidationErrors struct {
	Schema string
	Errors []FieldError
}

func (e *ValidationErrors) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.String()
	}
	return fmt.Sprintf("output does not match schema %s: %s", e.Schema, strings.Join(parts, "; "))
}

type validator struct {
	errs []FieldError
}

func (v *validator) addf(path, format string, args ...any) {
	v.errs = append(v.errs, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Validate checks a decoded JSON value (as produced by encoding/json into
// any) against s. It returns nil or a *ValidationErrors.
//
// An optional field that is present with a null value is treated as absent.
func (s *Spec) Validate(value any) error {
	v := &validator{}
	obj, ok := value.(map[string]any)
	if !ok {
		v.addf("$", "expected object, got %s", kindOf(value))
	} else {
		v.object(s, obj, "$")
	}
	if len(v.errs) == 0 {
		return nil
	}
	return &ValidationErrors{Schema: s.Title, Errors: v.errs}
}

func (v *validator) object(s *Spec, obj map[string]any, path string) {
	for _, name := range s.Order {
		f := s.Fields[name]
		val, present := obj[name]
		if !present || (val == nil && !s.Required[name]) {
			if s.Required[name] {
				v.addf(path+"."+name, "required field missing")
			}
			continue
		}
		v.field(f, val, path+"."+name)
	}

	if s.AdditionalProperties {
		return
	}
	var extra []string
	for name := range obj {
		if _, ok := s.Fields[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		v.addf(path+"."+name, "unexpected field")
	}
}

func (v *validator) field(f *FieldSpec, val any, path string) {
	if val == nil {
		if !f.Nullable && f.Type != TypeAny && f.Type != TypeNull {
			v.addf(path, "expected %s, got null", f.Type)
		}
		return
	}

	if len(f.Enum) > 0 && !inEnum(f.Enum, val) {
		v.addf(path, "value %s is not one of %s", brief(val), brief(f.Enum))
		return
	}

	switch f.Type {
	case TypeAny:
	case TypeNull:
		v.addf(path, "expected null, got %s", kindOf(val))
	case TypeString:
		s, ok := val.(string)
		if !ok {
			v.addf(path, "expected string, got %s", kindOf(val))
			return
		}
		n := utf8.RuneCountInString(s)
		if f.MinLength != nil && n < *f.MinLength {
			v.addf(path, "length %d is less than minLength %d", n, *f.MinLength)
		}
		if f.MaxLength != nil && n > *f.MaxLength {
			v.addf(path, "length %d exceeds maxLength %d", n, *f.MaxLength)
		}
		if f.pattern != nil && !f.pattern.MatchString(s) {
			v.addf(path, "does not match pattern %q", f.Pattern)
		}
	case TypeInteger, TypeNumber:
		n, ok := toFloat(val)
		if !ok {
			v.addf(path, "expected %s, got %s", f.Type, kindOf(val))
			return
		}
		if f.Type == TypeInteger && n != math.Trunc(n) {
			v.addf(path, "expected integer, got %s", brief(val))
			return
		}
		v.bounds(f, n, path)
	case TypeBoolean:
		if _, ok := val.(bool); !ok {
			v.addf(path, "expected boolean, got %s", kindOf(val))
		}
	case TypeArray:
		list, ok := val.([]any)
		if !ok {
			v.addf(path, "expected array, got %s", kindOf(val))
			return
		}
		if f.MinItems != nil && len(list) < *f.MinItems {
			v.addf(path, "has %d items, fewer than minItems %d", len(list), *f.MinItems)
		}
		if f.MaxItems != nil && len(list) > *f.MaxItems {
			v.addf(path, "has %d items, more than maxItems %d", len(list), *f.MaxItems)
		}
		if f.Items != nil {
			for i, item := range list {
				v.field(f.Items, item, path+"["+strconv.Itoa(i)+"]")
			}
		}
	case TypeObject:
		obj, ok := val.(map[string]any)
		if !ok {
			v.addf(path, "expected object, got %s", kindOf(val))
			return
		}
		if f.Nested != nil {
			v.object(f.Nested, obj, path)
		}
	}
}

func (v *validator) bounds(f *FieldSpec, n float64, path string) {
	if f.Minimum != nil && n < *f.Minimum {
		v.addf(path, "%v is less than minimum %v", n, *f.Minimum)
	}
	if f.Maximum != nil && n > *f.Maximum {
		v.addf(path, "%v exceeds maximum %v", n, *f.Maximum)
	}
	if f.ExclusiveMinimum != nil && n <= *f.ExclusiveMinimum {
		v.addf(path, "%v must be greater than %v", n, *f.ExclusiveMinimum)
	}
	if f.ExclusiveMaximum != nil && n >= *f.ExclusiveMaximum {
		v.addf(path, "%v must be less than %v", n, *f.ExclusiveMaximum)
	}
}

func inEnum(enum []any, val any) bool {
	for _, e := range enum {
		if equalValues(e, val) {
			return true
		}
	}
	return false
}

// equalValues compares decoded values, treating every numeric type alike.
func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func brief(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	if len(b) > 80 {
		return string(b[:77]) + "..."
	}
	return string(b)
}
