// Package llmutil holds glue shared by the CLI and the execution engine:
// backend registration and identifier helpers for backend APIs.
package llmutil

import (
	"strings"
	"unicode"

	"github.com/efebarandurmaz/llm-ci-runner/internal/schema"
)

// maxSchemaNameLen is the longest json_schema name OpenAI accepts.
const maxSchemaNameLen = 64

// SchemaName converts a schema title such as "Sentiment analysis v2" into a
// name accepted by structured-output APIs ([A-Za-z0-9_-], at most 64 chars).
// Words are joined in PascalCase.
func SchemaName(title string) string {
	out := ToPascalCase(title)
	if out == "" {
		return schema.DefaultTitle
	}
	if len(out) > maxSchemaNameLen {
		out = out[:maxSchemaNameLen]
	}
	return out
}

// ToPascalCase joins the words of name in PascalCase. Separators are any
// rune other than ASCII letters and digits; casing inside a word is kept
// except for the first letter. Returns "" when name has no usable runes.
func ToPascalCase(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
