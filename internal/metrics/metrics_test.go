package metrics

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunMetrics_Lifecycle(t *testing.T) {
	m := New("openai", "Verdict")
	m.EstimatedPromptTokens = 40
	m.AddAttempt(1, 20*time.Millisecond, errors.New("503 Service Unavailable"), "server_5xx")
	m.AddAttempt(2, 30*time.Millisecond, nil, "")
	m.RecordUsage("gpt-4o-2024-08-06", 42, 8)
	m.Finish("structured")

	if m.AttemptCount() != 2 {
		t.Errorf("attempts = %d", m.AttemptCount())
	}
	if m.TotalTokens() != 50 {
		t.Errorf("total tokens = %d", m.TotalTokens())
	}
	if m.Model != "gpt-4o-2024-08-06" || m.Outcome != "structured" {
		t.Errorf("model/outcome = %q/%q", m.Model, m.Outcome)
	}
	if m.Duration < 0 || m.FinishedAt.IsZero() {
		t.Errorf("duration = %v", m.Duration)
	}
}

func TestRunMetrics_RecordUsageKeepsModel(t *testing.T) {
	m := New("ollama", "")
	m.RecordUsage("llama3", 1, 1)
	m.RecordUsage("", 2, 2)
	if m.Model != "llama3" || m.InputTokens != 3 {
		t.Errorf("got model=%q in=%d", m.Model, m.InputTokens)
	}
}

func TestRunMetrics_PrintSummary(t *testing.T) {
	m := New("anthropic", "Review")
	m.AddAttempt(1, time.Millisecond, errors.New("connection refused"), "connection")
	m.AddAttempt(2, time.Millisecond, nil, "")
	m.Finish("structured")

	var buf bytes.Buffer
	m.PrintSummary(&buf)
	out := buf.String()
	for _, want := range []string{"structured via anthropic", "schema:   Review", "connection: connection refused", "attempt 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRunMetrics_JSON(t *testing.T) {
	m := New("openai", "")
	m.AddAttempt(1, time.Millisecond, nil, "")
	m.Finish("text")

	data, err := m.JSON()
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["provider"] != "openai" || decoded["outcome"] != "text" {
		t.Errorf("decoded = %v", decoded)
	}
	if _, ok := decoded["schema"]; ok {
		t.Error("empty schema should be omitted")
	}
}

func TestRunMetrics_JSONMilliseconds(t *testing.T) {
	m := New("openai", "")
	m.AddAttempt(1, 1500*time.Millisecond, nil, "")
	m.Finish("text")
	m.Duration = 2500 * time.Millisecond

	data, err := m.JSON()
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		DurationMS int64 `json:"duration_ms"`
		Attempts   []struct {
			DurationMS int64 `json:"duration_ms"`
		} `json:"attempts"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.DurationMS != 2500 {
		t.Errorf("duration_ms = %d", decoded.DurationMS)
	}
	if len(decoded.Attempts) != 1 || decoded.Attempts[0].DurationMS != 1500 {
		t.Errorf("attempts = %+v", decoded.Attempts)
	}
}

func TestRunMetrics_WriteSummary(t *testing.T) {
	m := New("openai", "")
	m.AddAttempt(1, time.Millisecond, nil, "")
	m.Finish("text")

	var js bytes.Buffer
	if err := m.WriteSummary(&js, "json"); err != nil {
		t.Fatal(err)
	}
	if !json.Valid(js.Bytes()) {
		t.Errorf("json summary:\n%s", js.String())
	}

	var text bytes.Buffer
	if err := m.WriteSummary(&text, "text"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text.String(), "text via openai") {
		t.Errorf("text summary:\n%s", text.String())
	}
}
