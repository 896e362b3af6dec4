package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/efebarandurmaz/llm-ci-runner/internal/llm"
	"github.com/efebarandurmaz/llm-ci-runner/internal/metrics"
	"github.com/efebarandurmaz/llm-ci-runner/internal/schema"
)

// Kind discriminates Outcome.
type Kind string

const (
	KindText       Kind = "text"
	KindStructured Kind = "structured"
	KindFailure    Kind = "failure"
)

// ErrorKind classifies a failed execution.
type ErrorKind string

const (
	ErrValidation       ErrorKind = "validation"
	ErrAuthentication   ErrorKind = "authentication"
	ErrTransientBackend ErrorKind = "transient_backend" // retries exhausted
	ErrBackend          ErrorKind = "backend"
	ErrSchemaViolation  ErrorKind = "schema_violation"
	ErrSchemaCompile    ErrorKind = "schema_compile"
	ErrCanceled         ErrorKind = "canceled"
)

// Failure is the error carried by a failed Outcome. Err is the underlying
// cause, reachable with errors.As.
type Failure struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Outcome is the result of one execution. Exactly one of Text, Fields or
// Failure is meaningful, selected by Kind.
type Outcome struct {
	Kind    Kind
	Text    string
	Fields  map[string]any
	Failure *Failure

	// Metrics is always set, including on failure.
	Metrics *metrics.RunMetrics
}

// Err returns the failure, or nil for a successful outcome.
func (o Outcome) Err() error {
	if o.Kind != KindFailure || o.Failure == nil {
		return nil
	}
	return o.Failure
}

// OK reports whether the execution succeeded.
func (o Outcome) OK() bool { return o.Kind != KindFailure }

// Response returns the payload for the output document: the text for
// KindText, the field map for KindStructured and nil otherwise.
func (o Outcome) Response() any {
	switch o.Kind {
	case KindText:
		return o.Text
	case KindStructured:
		return o.Fields
	}
	return nil
}

// Fail wraps err in a failed Outcome. Callers outside the engine use it
// for validation and schema compile errors so every failure flows through
// the same reporting path.
func Fail(kind ErrorKind, message string, err error, m *metrics.RunMetrics) Outcome {
	return Outcome{Kind: KindFailure, Failure: &Failure{Kind: kind, Message: message, Err: err}, Metrics: m}
}

// KindOf picks the ErrorKind for an error produced before or during a run.
func KindOf(err error) ErrorKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	var ve *llm.ValidationError
	if errors.As(err, &ve) {
		return ErrValidation
	}
	var ce *schema.CompileError
	if errors.As(err, &ce) {
		return ErrSchemaCompile
	}
	var sv *schema.ValidationErrors
	if errors.As(err, &sv) {
		return ErrSchemaViolation
	}
	return backendKind(err)
}

// backendKind classifies an error returned by the retry loop.
func backendKind(err error) ErrorKind {
	if errors.Is(err, context.Canceled) {
		return ErrCanceled
	}
	var ae *llm.AuthError
	if errors.As(err, &ae) {
		return ErrAuthentication
	}
	if llm.ClassifyError(err).ShouldRetry {
		return ErrTransientBackend
	}
	return ErrBackend
}
