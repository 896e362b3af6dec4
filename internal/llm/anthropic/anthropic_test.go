package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/efebarandurmaz/llm-ci-runner/internal/llm"
)

func okHandler(capture func(r *http.Request, body map[string]any)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			raw, _ := io.ReadAll(r.Body)
			var body map[string]any
			json.Unmarshal(raw, &body)
			capture(r, body)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]string{{"type": "text", "text": "response"}},
			"model":       "claude-test",
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 20},
		})
	}
}

func userRequest(content string) *llm.Request {
	return &llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: content}}}
}

func TestNew_SetsDefaults(t *testing.T) {
	client := New("test-key", "test-model", "", time.Minute)

	if client.baseURL != defaultBaseURL {
		t.Errorf("expected default baseURL %q, got %q", defaultBaseURL, client.baseURL)
	}
	if client.http.Timeout != time.Minute {
		t.Errorf("expected timeout 1m, got %v", client.http.Timeout)
	}
	if client.Name() != "anthropic" {
		t.Errorf("expected name 'anthropic', got %q", client.Name())
	}
}

func TestComplete_CorrectHeaders(t *testing.T) {
	var headers http.Header
	server := httptest.NewServer(okHandler(func(r *http.Request, _ map[string]any) {
		headers = r.Header
	}))
	defer server.Close()

	client := New("test-api-key", "model", server.URL, time.Minute)
	if _, err := client.Complete(context.Background(), userRequest("hi"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if headers.Get("x-api-key") != "test-api-key" {
		t.Errorf("expected x-api-key 'test-api-key', got %q", headers.Get("x-api-key"))
	}
	if headers.Get("anthropic-version") != apiVersion {
		t.Errorf("expected anthropic-version %q, got %q", apiVersion, headers.Get("anthropic-version"))
	}
}

func TestComplete_SystemMessagesLiftedOut(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(okHandler(func(_ *http.Request, b map[string]any) { body = b }))
	defer server.Close()

	client := New("key", "test-model", server.URL, time.Minute)
	temp := 0.7
	maxTokens := 2048
	_, err := client.Complete(context.Background(), &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a helpful assistant"},
			{Role: llm.RoleUser, Content: "Hello"},
		},
	}, &llm.RequestOptions{Temperature: &temp, MaxTokens: &maxTokens, StopSeqs: []string{"STOP"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if body["system"] != "You are a helpful assistant" {
		t.Errorf("expected system prompt, got %v", body["system"])
	}
	if body["max_tokens"] != float64(2048) {
		t.Errorf("expected max_tokens 2048, got %v", body["max_tokens"])
	}
	if body["temperature"] != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", body["temperature"])
	}
	msgs := body["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message after lifting system, got %d", len(msgs))
	}
	if role := msgs[0].(map[string]any)["role"]; role != "user" {
		t.Errorf("expected user role, got %v", role)
	}
	if _, ok := body["top_p"]; ok {
		t.Error("top_p should be omitted when unset")
	}
}

func TestComplete_SchemaInstructionAppended(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(okHandler(func(_ *http.Request, b map[string]any) { body = b }))
	defer server.Close()

	client := New("key", "model", server.URL, time.Minute)
	req := userRequest("classify")
	req.Messages = append([]llm.Message{{Role: llm.RoleSystem, Content: "Be terse."}}, req.Messages...)
	req.Schema = &llm.SchemaConstraint{
		Name:     "Verdict",
		Document: map[string]any{"type": "object"},
	}
	if _, err := client.Complete(context.Background(), req, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	system, _ := body["system"].(string)
	if !strings.HasPrefix(system, "Be terse.\n\n") {
		t.Errorf("expected original system prompt first, got %q", system)
	}
	if !strings.Contains(system, "Verdict") || !strings.Contains(system, "valid JSON") {
		t.Errorf("expected schema instruction in system prompt, got %q", system)
	}
	if body["max_tokens"] != float64(defaultMaxTokens) {
		t.Errorf("expected default max_tokens, got %v", body["max_tokens"])
	}
}

func TestComplete_ParsesSuccessfulResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "This is "},
				{"type": "text", "text": "the response"},
			},
			"model":       "claude-3-opus",
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 100, "output_tokens": 50},
		})
	}))
	defer server.Close()

	client := New("key", "model", server.URL, time.Minute)
	resp, err := client.Complete(context.Background(), userRequest("test"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "This is the response" {
		t.Errorf("expected joined content, got %q", resp.Content)
	}
	if resp.Provider != "anthropic" || resp.Model != "claude-3-opus" {
		t.Errorf("unexpected provider/model %q/%q", resp.Provider, resp.Model)
	}
	if resp.TotalTokens() != 150 {
		t.Errorf("expected 150 total tokens, got %d", resp.TotalTokens())
	}
}

func TestComplete_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantRetry bool
		check     func(error) bool
	}{
		{"unauthorized", http.StatusUnauthorized, false, func(err error) bool {
			var ae *llm.AuthError
			return errors.As(err, &ae)
		}},
		{"rate limited", http.StatusTooManyRequests, true, func(err error) bool {
			var rl *llm.RateLimitError
			return errors.As(err, &rl)
		}},
		{"overloaded", http.StatusServiceUnavailable, true, func(err error) bool {
			var se *llm.StatusError
			return errors.As(err, &se) && se.Code == http.StatusServiceUnavailable
		}},
		{"bad request", http.StatusBadRequest, false, func(err error) bool {
			var se *llm.StatusError
			return errors.As(err, &se) && se.Code == http.StatusBadRequest
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error": "nope"}`))
			}))
			defer server.Close()

			client := New("key", "model", server.URL, time.Minute)
			_, err := client.Complete(context.Background(), userRequest("test"), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if !tt.check(err) {
				t.Errorf("unexpected error type: %T %v", err, err)
			}
			if d := llm.ClassifyError(err); d.ShouldRetry != tt.wantRetry {
				t.Errorf("ShouldRetry = %v, want %v (reason %s)", d.ShouldRetry, tt.wantRetry, d.Reason)
			}
		})
	}
}

func TestComplete_HandlesMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{invalid json`))
	}))
	defer server.Close()

	client := New("key", "model", server.URL, time.Minute)
	if _, err := client.Complete(context.Background(), userRequest("test"), nil); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestComplete_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(okHandler(nil))
	url := server.URL
	server.Close()

	client := New("key", "model", url, time.Minute)
	_, err := client.Complete(context.Background(), userRequest("test"), nil)
	var ce *llm.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectionError, got %T %v", err, err)
	}
}
