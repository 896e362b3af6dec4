package llmutil_test

import (
	"strings"
	"testing"

	"github.com/efebarandurmaz/llm-ci-runner/internal/llm"
	"github.com/efebarandurmaz/llm-ci-runner/internal/llmutil"
	"github.com/efebarandurmaz/llm-ci-runner/internal/schema"
)

func TestSchemaName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "already valid", input: "SentimentAnalysis", want: "SentimentAnalysis"},
		{name: "spaces", input: "code review result", want: "CodeReviewResult"},
		{name: "punctuation", input: "PR: triage (v2)", want: "PRTriageV2"},
		{name: "snake case", input: "release_notes", want: "ReleaseNotes"},
		{name: "non ascii dropped", input: "résumé parser", want: "RSumParser"},
		{name: "empty", input: "", want: schema.DefaultTitle},
		{name: "only symbols", input: "!!!", want: schema.DefaultTitle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := llmutil.SchemaName(tt.input); got != tt.want {
				t.Errorf("SchemaName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSchemaName_Truncates(t *testing.T) {
	got := llmutil.SchemaName(strings.Repeat("word ", 30))
	if len(got) != 64 {
		t.Errorf("expected 64 chars, got %d", len(got))
	}
}

func TestRegisterDefaultProviders(t *testing.T) {
	f := llm.NewFactory()
	llmutil.RegisterDefaultProviders(f)

	want := []string{"anthropic", "azure", "custom", "deepseek", "groq", "ollama", "openai", "together"}
	if got := strings.Join(f.Names(), ","); got != strings.Join(want, ",") {
		t.Fatalf("Names() = %s", got)
	}

	p, err := f.Create(llm.ProviderConfig{Provider: "ollama", Model: "llama3"})
	if err != nil {
		t.Fatalf("ollama: %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("expected ollama, got %q", p.Name())
	}
	llm.CloseProvider(p)
}

func TestRegisterDefaultProviders_MissingSettings(t *testing.T) {
	f := llm.NewFactory()
	llmutil.RegisterDefaultProviders(f)

	for _, cfg := range []llm.ProviderConfig{
		{Provider: "azure", APIKey: "k", Model: "deploy"},
		{Provider: "azure", APIKey: "k", BaseURL: "https://x.openai.azure.com"},
		{Provider: "custom", Model: "m"},
		{Provider: "anthropic", Model: "claude"},
		{Provider: "openai", Model: "gpt-4o"},
	} {
		if _, err := f.Create(cfg); err == nil {
			t.Errorf("%s %+v: expected configuration error", cfg.Provider, cfg)
		}
	}
}
