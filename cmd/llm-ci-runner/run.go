package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/llm-ci-runner/internal/config"
	"github.com/efebarandurmaz/llm-ci-runner/internal/engine"
	"github.com/efebarandurmaz/llm-ci-runner/internal/input"
	"github.com/efebarandurmaz/llm-ci-runner/internal/llm"
	"github.com/efebarandurmaz/llm-ci-runner/internal/llmutil"
	"github.com/efebarandurmaz/llm-ci-runner/internal/logging"
	"github.com/efebarandurmaz/llm-ci-runner/internal/observability"
	"github.com/efebarandurmaz/llm-ci-runner/internal/output"
	"github.com/efebarandurmaz/llm-ci-runner/internal/schema"
	"github.com/efebarandurmaz/llm-ci-runner/internal/shutdown"
	"github.com/efebarandurmaz/llm-ci-runner/internal/template"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

type options struct {
	configPath     string
	inputFile      string
	templateFile   string
	templateVars   string
	schemaFile     string
	outputFile     string
	provider       string
	model          string
	maxAttempts    int
	attemptTimeout time.Duration
	logLevel       string
	logFormat      string
	auditLog       string
	summary        bool
}

// applyOverrides lets command-line flags win over file and environment.
func (o options) applyOverrides(cfg *config.Config) {
	if o.provider != "" {
		cfg.LLM.Provider = o.provider
	}
	if o.model != "" {
		cfg.LLM.Model = o.model
	}
	if o.maxAttempts > 0 {
		cfg.Retry.MaxAttempts = o.maxAttempts
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if o.auditLog != "" {
		cfg.Audit.Path = o.auditLog
	}
}

// run executes one task and returns the process exit code. Every cleanup
// hook has run by the time it returns.
func run(parent context.Context, opts options, stdout, stderr io.Writer) int {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	opts.applyOverrides(cfg)

	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	for _, w := range cfg.Validate() {
		logger.Warn("config", "warning", w)
	}

	sh := shutdown.New(parent, &shutdown.Config{Logger: logger})
	sh.Start()
	defer sh.Close()
	ctx := sh.Context()

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	// Inputs are validated before any backend is constructed.
	job, err := loadTask(opts)
	if err != nil {
		return reportFailure(logger, stderr, engine.Fail(inputKind(err), "invalid input", err, nil))
	}
	spec := job.spec
	if opts.schemaFile != "" {
		if spec != nil {
			logger.Info("--schema-file overrides the template's response schema", "template_schema", spec.Title)
		}
		spec, err = schema.Load(opts.schemaFile)
		if err != nil {
			return reportFailure(logger, stderr, engine.Fail(inputKind(err), "invalid schema", err, nil))
		}
	}
	if spec != nil {
		logger.Info("schema loaded", "title", spec.Title, "fields", len(spec.Fields), "required", spec.RequiredNames())
	}

	tp, err := observability.InitTracing(ctx, cfg.Tracing.TracingConfig(version))
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	} else {
		sh.Add(shutdown.TracingHook(tp.Shutdown))
	}

	audit, err := observability.NewAuditLogger(observability.AuditConfig{OutputPath: cfg.Audit.Path, RunID: runID})
	if err != nil {
		return reportFailure(logger, stderr, engine.Fail(engine.ErrValidation, "audit log", err, nil))
	}
	sh.Add(shutdown.AuditHook(audit.Close))

	factory := llm.NewFactory()
	llmutil.RegisterDefaultProviders(factory)
	provider, err := factory.Create(cfg.LLM.ProviderConfig())
	if err != nil {
		return reportFailure(logger, stderr, engine.Fail(engine.ErrValidation, "provider", err, nil))
	}
	sh.Add(shutdown.ProviderHook(provider))

	attemptTimeout := opts.attemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = cfg.LLM.Timeout
	}
	eng := engine.New(engine.Config{
		Policy:         cfg.Retry.Policy(),
		AttemptTimeout: attemptTimeout,
		Options:        mergeOptions(cfg.LLM.RequestOptions(), job.options),
		Logger:         logger,
		Audit:          audit,
	})

	out := eng.Execute(ctx, job.conv, spec, provider)
	if opts.summary && out.Metrics != nil {
		if err := out.Metrics.WriteSummary(stderr, cfg.Log.Format); err != nil {
			logger.Warn("writing summary failed", "error", err)
		}
	}
	if !out.OK() {
		code := reportFailure(logger, stderr, out)
		if sh.Interrupted() {
			return exitInterrupted
		}
		return code
	}

	result, err := output.NewResult(out, runID)
	if err != nil {
		return reportFailure(logger, stderr, engine.Fail(engine.ErrBackend, "building result", err, out.Metrics))
	}
	if opts.outputFile == "" {
		if err := output.Encode(stdout, result, output.FormatJSON); err != nil {
			logger.Error("writing result to stdout failed", "error", err)
			return exitFailure
		}
		return exitOK
	}

	err = output.Write(opts.outputFile, result)
	audit.LogOutputWrite(opts.outputFile, err)
	if err != nil {
		logger.Error("writing output failed", "path", opts.outputFile, "error", err)
		return exitFailure
	}
	logger.Info("output written", "path", opts.outputFile, "format", output.FormatFor(opts.outputFile))
	return exitOK
}

// task is what a run starts from: the conversation plus whatever a prompt
// document contributes.
type task struct {
	conv    *llm.Conversation
	spec    *schema.Spec
	options *llm.RequestOptions
}

func loadTask(opts options) (*task, error) {
	if opts.templateFile != "" {
		vars, err := input.LoadVars(opts.templateVars)
		if err != nil {
			return nil, err
		}
		p, err := template.Load(opts.templateFile)
		if err != nil {
			return nil, err
		}
		conv, err := p.Conversation(vars)
		if err != nil {
			return nil, err
		}
		return &task{conv: conv, spec: p.Schema, options: p.Options}, nil
	}
	if opts.inputFile == "" {
		return nil, &llm.ValidationError{Index: -1, Field: "input", Reason: "one of --input-file or --template-file is required"}
	}
	conv, err := input.LoadInput(opts.inputFile)
	if err != nil {
		return nil, err
	}
	return &task{conv: conv}, nil
}

// inputKind reports schema compile errors as such and everything else
// found while loading inputs as a validation failure.
func inputKind(err error) engine.ErrorKind {
	if kind := engine.KindOf(err); kind == engine.ErrSchemaCompile {
		return kind
	}
	return engine.ErrValidation
}

// mergeOptions fills settings missing from cfg with those of a prompt
// document.
func mergeOptions(cfg, doc *llm.RequestOptions) *llm.RequestOptions {
	if doc == nil {
		return cfg
	}
	if cfg == nil {
		return doc
	}
	out := *cfg
	if out.Temperature == nil {
		out.Temperature = doc.Temperature
	}
	if out.MaxTokens == nil {
		out.MaxTokens = doc.MaxTokens
	}
	return &out
}

// reportFailure logs a failed outcome and picks its exit code.
func reportFailure(logger *slog.Logger, stderr io.Writer, out engine.Outcome) int {
	f := out.Failure
	logger.Error("run failed", "kind", f.Kind, "error", f.Err)
	fmt.Fprintf(stderr, "Error: %v\n", out.Err())

	var ve *schema.ValidationErrors
	if errors.As(f.Err, &ve) {
		for _, fe := range ve.Errors {
			fmt.Fprintf(stderr, "  %s\n", fe)
		}
	}
	if f.Kind == engine.ErrCanceled {
		return exitInterrupted
	}
	return exitFailure
}
