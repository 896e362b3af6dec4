package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventRunStart        AuditEventType = "run.start"
	AuditEventRunEnd          AuditEventType = "run.end"
	AuditEventLLMRequest      AuditEventType = "llm.request"
	AuditEventLLMResponse     AuditEventType = "llm.response"
	AuditEventLLMError        AuditEventType = "llm.error"
	AuditEventLLMRetry        AuditEventType = "llm.retry"
	AuditEventSchemaViolation AuditEventType = "schema.violation"
	AuditEventOutputWrite     AuditEventType = "output.write"
)

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"event_type"`
	RunID     string         `json:"run_id"`
	Provider  string         `json:"provider,omitempty"`
	Model     string         `json:"model,omitempty"`
	Attempt   int            `json:"attempt,omitempty"`
	Success   bool           `json:"success"`
	Duration  int64          `json:"duration_ms,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// AuditLogger appends AuditEvents as JSON lines. The zero value and a nil
// *AuditLogger are disabled and drop every event.
type AuditLogger struct {
	mu      sync.Mutex
	writer  io.Writer
	closer  io.Closer
	runID   string
	enabled bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	// OutputPath is a file path or "stdout"/"stderr". Empty disables auditing.
	OutputPath string
	RunID      string
}

// NewAuditLogger opens the audit destination. Files are appended to so one
// trail can span several runs of a pipeline.
func NewAuditLogger(cfg AuditConfig) (*AuditLogger, error) {
	l := &AuditLogger{runID: cfg.RunID}
	switch cfg.OutputPath {
	case "":
		return l, nil
	case "stdout":
		l.writer = os.Stdout
	case "stderr":
		l.writer = os.Stderr
	default:
		f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		l.writer, l.closer = f, f
	}
	l.enabled = true
	return l, nil
}

// NewWriterAuditLogger writes events to w.
func NewWriterAuditLogger(w io.Writer, runID string) *AuditLogger {
	return &AuditLogger{writer: w, runID: runID, enabled: true}
}

// Enabled reports whether events are recorded.
func (l *AuditLogger) Enabled() bool {
	return l != nil && l.enabled
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if !l.Enabled() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RunID == "" {
		event.RunID = l.runID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogRunStart records the start of an execution.
func (l *AuditLogger) LogRunStart(provider string, messages int, schemaName string) {
	details := map[string]any{"messages": messages}
	if schemaName != "" {
		details["schema"] = schemaName
	}
	l.Log(&AuditEvent{EventType: AuditEventRunStart, Provider: provider, Success: true, Details: details})
}

// LogLLMRequest records an outgoing backend call.
func (l *AuditLogger) LogLLMRequest(provider string, attempt, promptTokens int) {
	l.Log(&AuditEvent{
		EventType: AuditEventLLMRequest,
		Provider:  provider,
		Attempt:   attempt,
		Success:   true,
		Details:   map[string]any{"estimated_prompt_tokens": promptTokens},
	})
}

// LogLLMResponse records a successful backend call.
func (l *AuditLogger) LogLLMResponse(provider, model string, attempt int, duration time.Duration, inputTokens, outputTokens int) {
	l.Log(&AuditEvent{
		EventType: AuditEventLLMResponse,
		Provider:  provider,
		Model:     model,
		Attempt:   attempt,
		Success:   true,
		Duration:  duration.Milliseconds(),
		Details: map[string]any{
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
		},
	})
}

// LogLLMError records a failed backend call.
func (l *AuditLogger) LogLLMError(provider string, attempt int, duration time.Duration, err error) {
	l.Log(&AuditEvent{
		EventType: AuditEventLLMError,
		Provider:  provider,
		Attempt:   attempt,
		Duration:  duration.Milliseconds(),
		Error:     err.Error(),
	})
}

// LogRetry records a scheduled retry.
func (l *AuditLogger) LogRetry(provider string, attempt int, reason string, wait time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventLLMRetry,
		Provider:  provider,
		Attempt:   attempt,
		Details:   map[string]any{"reason": reason, "wait_ms": wait.Milliseconds()},
	})
}

// LogSchemaViolation records output rejected by the schema.
func (l *AuditLogger) LogSchemaViolation(schemaName string, err error) {
	l.Log(&AuditEvent{
		EventType: AuditEventSchemaViolation,
		Message:   schemaName,
		Error:     err.Error(),
	})
}

// LogOutputWrite records where the result went.
func (l *AuditLogger) LogOutputWrite(path string, err error) {
	ev := &AuditEvent{EventType: AuditEventOutputWrite, Success: err == nil, Message: path}
	if err != nil {
		ev.Error = err.Error()
	}
	l.Log(ev)
}

// LogRunEnd records the final outcome of an execution.
func (l *AuditLogger) LogRunEnd(outcome string, attempts int, duration time.Duration, err error) {
	ev := &AuditEvent{
		EventType: AuditEventRunEnd,
		Success:   err == nil,
		Attempt:   attempts,
		Duration:  duration.Milliseconds(),
		Message:   outcome,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	l.Log(ev)
}

// Close closes the audit file, if one was opened.
func (l *AuditLogger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
