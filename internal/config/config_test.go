package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func ptr(f float64) *float64 { return &f }

func TestValidate_Empty(t *testing.T) {
	cfg := &Config{}
	warnings := cfg.Validate()
	if len(warnings) != 0 {
		t.Errorf("empty config should have no warnings, got %v", warnings)
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	tests := []struct {
		provider string
		want     bool
	}{
		{"openai", true},
		{"anthropic", true},
		{"ollama", false},
		{"custom", false},
	}
	for _, tt := range tests {
		cfg := &Config{LLM: LLMConfig{Provider: tt.provider}}
		found := false
		for _, w := range cfg.Validate() {
			if strings.Contains(w, "api_key") {
				found = true
			}
		}
		if found != tt.want {
			t.Errorf("provider %s: warned=%v, want %v", tt.provider, found, tt.want)
		}
	}
}

func TestValidate_InvalidTemperature(t *testing.T) {
	tests := []struct {
		name string
		temp *float64
		want bool // true = should warn
	}{
		{"unset", nil, false},
		{"zero", ptr(0), false},
		{"normal", ptr(0.7), false},
		{"max", ptr(2.0), false},
		{"negative", ptr(-1), true},
		{"too_high", ptr(3.0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LLM: LLMConfig{Temperature: tt.temp}}
			warnings := cfg.Validate()
			hasWarn := false
			for _, w := range warnings {
				if strings.Contains(w, "temperature") {
					hasWarn = true
				}
			}
			if hasWarn != tt.want {
				t.Errorf("hasWarn=%v, want=%v", hasWarn, tt.want)
			}
		})
	}
}

func TestValidate_Retry(t *testing.T) {
	cfg := &Config{Retry: RetryConfig{MaxAttempts: -1, MinWait: 10 * time.Second, MaxWait: time.Second}}
	warnings := cfg.Validate()
	if len(warnings) != 2 {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestValidate_NegativeMaxAttemptsMatchesPolicy(t *testing.T) {
	cfg := &Config{Retry: RetryConfig{MaxAttempts: -2}}
	warnings := cfg.Validate()
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v", warnings)
	}
	want := fmt.Sprintf("using default %d", cfg.Retry.Policy().MaxAttempts)
	if !strings.Contains(warnings[0], want) {
		t.Errorf("warning %q does not report the policy's %q", warnings[0], want)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Timeout != 2*time.Minute {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.MinWait != time.Second || cfg.Retry.MaxWait != 30*time.Second {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.LLM.Temperature != nil {
		t.Errorf("temperature should be unset, got %v", *cfg.LLM.Temperature)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runner.yaml")
	content := `
llm:
  provider: anthropic
  model: claude-sonnet-4
  temperature: 0.2
  max_tokens: 1024
  timeout: 45s
retry:
  max_attempts: 5
  max_wait: 10s
log:
  level: debug
  format: json
tracing:
  otlp_endpoint: localhost:4317
audit:
  path: audit.jsonl
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.Model != "claude-sonnet-4" || cfg.LLM.Timeout != 45*time.Second {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.LLM.Temperature == nil || *cfg.LLM.Temperature != 0.2 {
		t.Errorf("temperature = %v", cfg.LLM.Temperature)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.MaxWait != 10*time.Second || cfg.Retry.MinWait != time.Second {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Log.Format != "json" || cfg.Tracing.OTLPEndpoint != "localhost:4317" || cfg.Audit.Path != "audit.jsonl" {
		t.Errorf("cfg = %+v", cfg)
	}

	opts := cfg.LLM.RequestOptions()
	if opts == nil || *opts.MaxTokens != 1024 || *opts.Temperature != 0.2 {
		t.Errorf("options = %+v", opts)
	}
	policy := cfg.Retry.Policy()
	if policy.MaxAttempts != 5 || policy.MaxWait != 10*time.Second {
		t.Errorf("policy = %+v", policy)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("LLM_RUNNER_LLM_API_KEY", "sk-env")
	t.Setenv("LLM_RUNNER_LLM_PROVIDER", "groq")
	t.Setenv("LLM_RUNNER_RETRY_MAX_ATTEMPTS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.APIKey != "sk-env" || cfg.LLM.Provider != "groq" || cfg.Retry.MaxAttempts != 7 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestProviderConfig(t *testing.T) {
	pc := LLMConfig{Provider: "azure", Model: "gpt-4o", APIKey: "k", BaseURL: "https://x.openai.azure.com"}.ProviderConfig()
	if pc.APIVersion == "" || pc.Timeout == 0 {
		t.Errorf("defaults not applied: %+v", pc)
	}
	if pc.Provider != "azure" || pc.Model != "gpt-4o" {
		t.Errorf("pc = %+v", pc)
	}
	if (LLMConfig{}).RequestOptions() != nil {
		t.Error("expected nil options when nothing is set")
	}
}

func TestTracingConfig(t *testing.T) {
	tc := TracingConfig{OTLPEndpoint: "otel:4317"}.TracingConfig("1.2.3")
	if tc.ServiceName != "llm-ci-runner" || tc.ServiceVersion != "1.2.3" || tc.SampleRate != 1.0 {
		t.Errorf("tc = %+v", tc)
	}
}
