package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// RunMetrics collects statistics for one runner execution.
type RunMetrics struct {
	mu sync.Mutex

	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Provider   string
	Model      string
	Schema     string
	Attempts   []AttemptMetrics

	EstimatedPromptTokens int
	InputTokens           int
	OutputTokens          int

	Outcome string
}

// AttemptMetrics describes one backend call.
type AttemptMetrics struct {
	Number   int
	Duration time.Duration
	Reason   string // classification of a failed call
	Error    string
}

// New starts collecting metrics for a run against provider.
func New(provider, schema string) *RunMetrics {
	return &RunMetrics{StartedAt: time.Now(), Provider: provider, Schema: schema}
}

// AddAttempt records a finished backend call. err is nil on success.
func (m *RunMetrics) AddAttempt(n int, d time.Duration, err error, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := AttemptMetrics{Number: n, Duration: d, Reason: reason}
	if err != nil {
		a.Error = err.Error()
	}
	m.Attempts = append(m.Attempts, a)
}

// RecordUsage stores the model and token usage reported by the backend.
func (m *RunMetrics) RecordUsage(model string, inputTokens, outputTokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if model != "" {
		m.Model = model
	}
	m.InputTokens += inputTokens
	m.OutputTokens += outputTokens
}

// Finish stamps the end time and outcome.
func (m *RunMetrics) Finish(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
	m.Outcome = outcome
}

// AttemptCount returns the number of backend calls made.
func (m *RunMetrics) AttemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Attempts)
}

// TotalTokens returns input plus output tokens.
func (m *RunMetrics) TotalTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.InputTokens + m.OutputTokens
}

// PrintSummary writes a short human-readable report.
func (m *RunMetrics) PrintSummary(w io.Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fmt.Fprintf(w, "llm-ci-runner: %s via %s", m.Outcome, m.Provider)
	if m.Model != "" {
		fmt.Fprintf(w, " (%s)", m.Model)
	}
	fmt.Fprintf(w, " in %s\n", m.Duration.Round(time.Millisecond))
	if m.Schema != "" {
		fmt.Fprintf(w, "  schema:   %s\n", m.Schema)
	}
	fmt.Fprintf(w, "  tokens:   %d in / %d out", m.InputTokens, m.OutputTokens)
	if m.EstimatedPromptTokens > 0 {
		fmt.Fprintf(w, " (estimated prompt %d)", m.EstimatedPromptTokens)
	}
	fmt.Fprintln(w)
	for _, a := range m.Attempts {
		status := "ok"
		if a.Error != "" {
			status = a.Reason + ": " + a.Error
		}
		fmt.Fprintf(w, "  attempt %d %8s  %s\n", a.Number, a.Duration.Round(time.Millisecond), status)
	}
}

type runJSON struct {
	StartedAt             time.Time     `json:"started_at"`
	FinishedAt            *time.Time    `json:"finished_at,omitempty"`
	DurationMS            int64         `json:"duration_ms"`
	Provider              string        `json:"provider"`
	Model                 string        `json:"model,omitempty"`
	Schema                string        `json:"schema,omitempty"`
	Outcome               string        `json:"outcome,omitempty"`
	EstimatedPromptTokens int           `json:"estimated_prompt_tokens,omitempty"`
	InputTokens           int           `json:"input_tokens"`
	OutputTokens          int           `json:"output_tokens"`
	Attempts              []attemptJSON `json:"attempts"`
}

type attemptJSON struct {
	Number     int    `json:"number"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// JSON returns the metrics as formatted JSON. Durations are milliseconds.
func (m *RunMetrics) JSON() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := runJSON{
		StartedAt:             m.StartedAt,
		DurationMS:            m.Duration.Milliseconds(),
		Provider:              m.Provider,
		Model:                 m.Model,
		Schema:                m.Schema,
		Outcome:               m.Outcome,
		EstimatedPromptTokens: m.EstimatedPromptTokens,
		InputTokens:           m.InputTokens,
		OutputTokens:          m.OutputTokens,
		Attempts:              make([]attemptJSON, len(m.Attempts)),
	}
	if !m.FinishedAt.IsZero() {
		finished := m.FinishedAt
		out.FinishedAt = &finished
	}
	for i, a := range m.Attempts {
		out.Attempts[i] = attemptJSON{Number: a.Number, DurationMS: a.Duration.Milliseconds(), Reason: a.Reason, Error: a.Error}
	}
	return json.MarshalIndent(out, "", "  ")
}

// WriteSummary writes the summary as JSON when format is "json" and as
// text otherwise, following the log format.
func (m *RunMetrics) WriteSummary(w io.Writer, format string) error {
	if format != "json" {
		m.PrintSummary(w)
		return nil
	}
	data, err := m.JSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
