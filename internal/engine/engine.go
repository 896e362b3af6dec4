// Package engine drives one completion call from a prepared conversation to
// a normalized Outcome: retrying transient backend failures, then checking
// the reply against an optional schema.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/efebarandurmaz/llm-ci-runner/internal/llm"
	"github.com/efebarandurmaz/llm-ci-runner/internal/llmutil"
	"github.com/efebarandurmaz/llm-ci-runner/internal/metrics"
	"github.com/efebarandurmaz/llm-ci-runner/internal/observability"
	"github.com/efebarandurmaz/llm-ci-runner/internal/schema"
)

// Config controls an Engine. The zero value is usable.
type Config struct {
	// Policy decides which failures are retried and how long to wait.
	// Defaults to llm.DefaultRetryPolicy().
	Policy *llm.RetryPolicy

	// AttemptTimeout bounds each backend call. Zero means no bound beyond
	// the caller's context.
	AttemptTimeout time.Duration

	Options *llm.RequestOptions
	Logger  *slog.Logger
	Audit   *observability.AuditLogger

	// Sleep replaces the backoff timer; tests use it to skip real waits.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Engine executes conversations against a Provider.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Policy == nil {
		cfg.Policy = llm.DefaultRetryPolicy()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Execute sends conv to provider and normalizes the reply. When spec is
// non-nil the backend is asked for JSON matching it, and a reply that does
// not validate fails the run without a second request.
func (e *Engine) Execute(ctx context.Context, conv *llm.Conversation, spec *schema.Spec, provider llm.Provider) Outcome {
	var schemaName string
	if spec != nil {
		schemaName = spec.Title
	}
	m := metrics.New(provider.Name(), schemaName)

	ctx, span := observability.StartRunSpan(ctx, provider.Name(), spec != nil, schemaName)
	defer span.End()

	out := e.execute(ctx, conv, spec, provider, m)

	m.Finish(string(out.Kind))
	out.Metrics = m
	observability.RecordOutcome(span, string(out.Kind), m.AttemptCount())
	if err := out.Err(); err != nil {
		observability.RecordError(span, err)
	}
	e.cfg.Audit.LogRunEnd(string(out.Kind), m.AttemptCount(), m.Duration, out.Err())
	return out
}

func (e *Engine) execute(ctx context.Context, conv *llm.Conversation, spec *schema.Spec, provider llm.Provider, m *metrics.RunMetrics) Outcome {
	if conv == nil || conv.Len() == 0 {
		return Fail(ErrValidation, "conversation is empty", nil, m)
	}

	logger := e.logger.With("provider", provider.Name())

	req := &llm.Request{Messages: conv.Messages()}
	if spec != nil {
		doc, strict := spec.RequestDocument()
		if !strict {
			logger.Warn("schema cannot be enforced in strict mode, sending it unmodified", "schema", spec.Title)
		}
		req.Schema = &llm.SchemaConstraint{
			Name:        llmutil.SchemaName(spec.Title),
			Description: spec.Description,
			Document:    doc,
			Strict:      strict,
		}
	}
	m.EstimatedPromptTokens = llm.EstimatePromptTokens(req.Messages)

	logger.Info("executing LLM task",
		"messages", conv.Len(),
		"structured", spec != nil,
		"estimated_prompt_tokens", m.EstimatedPromptTokens,
	)
	if c := conv.Context(); len(c) > 0 {
		logger.Debug("input context", "context", c)
	}
	e.cfg.Audit.LogRunStart(provider.Name(), conv.Len(), m.Schema)

	resp, err := e.complete(ctx, req, provider, m, logger)
	if err != nil {
		kind := backendKind(err)
		if ctx.Err() != nil {
			kind = ErrCanceled
		}
		logger.Error("LLM call failed", "kind", kind, "attempts", m.AttemptCount(), "error", err)
		return Fail(kind, fmt.Sprintf("LLM call failed after %d attempt(s)", m.AttemptCount()), err, m)
	}

	logger.Info("LLM call succeeded",
		"model", resp.Model,
		"attempts", m.AttemptCount(),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)
	return e.normalize(resp.Content, spec, logger, m)
}

// complete runs provider.Complete under the retry policy.
func (e *Engine) complete(ctx context.Context, req *llm.Request, provider llm.Provider, m *metrics.RunMetrics, logger *slog.Logger) (*llm.Response, error) {
	retry := e.cfg.Policy.Config()
	retry.Sleep = e.cfg.Sleep
	retry.OnRetry = func(attempt int, err error, d llm.RetryDecision, wait time.Duration) {
		logger.Warn("LLM attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", retry.MaxAttempts,
			"reason", d.Reason,
			"wait", wait,
			"error", err,
		)
		observability.RecordRetry(trace.SpanFromContext(ctx), attempt, string(d.Reason), wait)
		e.cfg.Audit.LogRetry(provider.Name(), attempt, string(d.Reason), wait)
	}

	var resp *llm.Response
	_, err := llm.Retry(ctx, retry, func(ctx context.Context, attempt int) error {
		attemptCtx, cancel := e.attemptContext(ctx)
		defer cancel()

		attemptCtx, span := observability.StartAttemptSpan(attemptCtx, provider.Name(), attempt)
		defer span.End()

		e.cfg.Audit.LogLLMRequest(provider.Name(), attempt, m.EstimatedPromptTokens)
		start := time.Now()
		r, err := provider.Complete(attemptCtx, req, e.cfg.Options)
		elapsed := time.Since(start)

		if err != nil {
			// A per-attempt deadline is a timeout, not a caller cancellation.
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				err = &llm.TimeoutError{Provider: provider.Name(), Err: err}
			}
			decision := llm.ClassifyError(err)
			m.AddAttempt(attempt, elapsed, err, string(decision.Reason))
			observability.RecordError(span, err)
			e.cfg.Audit.LogLLMError(provider.Name(), attempt, elapsed, err)
			return err
		}

		m.AddAttempt(attempt, elapsed, nil, "")
		m.RecordUsage(r.Model, r.InputTokens, r.OutputTokens)
		observability.RecordLLMMetrics(span, r.Model, r.InputTokens, r.OutputTokens, elapsed)
		e.cfg.Audit.LogLLMResponse(provider.Name(), r.Model, attempt, elapsed, r.InputTokens, r.OutputTokens)
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.AttemptTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	}
	return context.WithCancel(ctx)
}

// normalize turns raw backend content into Text or Structured.
func (e *Engine) normalize(content string, spec *schema.Spec, logger *slog.Logger, m *metrics.RunMetrics) Outcome {
	cleaned := llm.CleanOutput(content)

	if spec == nil {
		if fields, ok := parseObject(cleaned); ok {
			logger.Debug("response parsed as JSON object", "fields", len(fields))
			return Outcome{Kind: KindStructured, Fields: fields}
		}
		return Outcome{Kind: KindText, Text: llm.StripThinkingTags(content)}
	}

	var value any
	if err := json.Unmarshal([]byte(cleaned), &value); err != nil {
		err = fmt.Errorf("response is not valid JSON: %w", err)
		e.cfg.Audit.LogSchemaViolation(spec.Title, err)
		logger.Error("schema violation", "schema", spec.Title, "error", err, "content", preview(cleaned))
		return Fail(ErrSchemaViolation, "response does not match schema "+spec.Title, err, m)
	}
	if err := spec.Validate(value); err != nil {
		e.cfg.Audit.LogSchemaViolation(spec.Title, err)
		logger.Error("schema violation", "schema", spec.Title, "error", err)
		return Fail(ErrSchemaViolation, "response does not match schema "+spec.Title, err, m)
	}
	return Outcome{Kind: KindStructured, Fields: value.(map[string]any)}
}

func parseObject(s string) (map[string]any, bool) {
	if len(s) == 0 || s[0] != '{' {
		return nil, false
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func preview(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
