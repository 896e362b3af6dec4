package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// stubProvider is a fixed-answer provider for tests in this package.
type stubProvider struct {
	name   string
	closed bool
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(_ context.Context, _ *Request, _ *RequestOptions) (*Response, error) {
	return &Response{Content: "ok", Provider: s.name}, nil
}

func (s *stubProvider) Close() error {
	s.closed = true
	return nil
}

func TestFactoryCreate_EmptyProvider(t *testing.T) {
	f := NewFactory()
	f.Register("openai", func(ProviderConfig) (Provider, error) { return &stubProvider{name: "openai"}, nil })

	p, err := f.Create(ProviderConfig{})
	if err == nil {
		t.Fatal("expected error for empty provider name")
	}
	if p != nil {
		t.Fatal("expected nil provider")
	}
	if !strings.Contains(err.Error(), "openai") {
		t.Errorf("error should list registered providers, got %v", err)
	}
}

func TestFactoryCreate_UnknownProvider(t *testing.T) {
	f := NewFactory()
	f.Register("b", func(ProviderConfig) (Provider, error) { return nil, nil })
	f.Register("a", func(ProviderConfig) (Provider, error) { return nil, nil })

	_, err := f.Create(ProviderConfig{Provider: "unknown"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), `"unknown"`) || !strings.Contains(err.Error(), "[a b]") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestFactoryCreate_RegisteredProvider(t *testing.T) {
	f := NewFactory()
	var got ProviderConfig
	f.Register("test", func(cfg ProviderConfig) (Provider, error) {
		got = cfg
		return &stubProvider{name: "test"}, nil
	})

	p, err := f.Create(ProviderConfig{Provider: "test", Model: "m", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*stubProvider); !ok {
		t.Fatalf("expected unwrapped provider without rate limit, got %T", p)
	}
	if got.Model != "m" || got.Timeout != 5*time.Second {
		t.Errorf("constructor received %+v", got)
	}
}

func TestFactoryCreate_RateLimited(t *testing.T) {
	f := NewFactory()
	inner := &stubProvider{name: "inner"}
	f.Register("test", func(ProviderConfig) (Provider, error) { return inner, nil })

	p, err := f.Create(ProviderConfig{Provider: "test", RequestsPerMinute: 60})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rl, ok := p.(*RateLimitProvider)
	if !ok {
		t.Fatalf("expected *RateLimitProvider, got %T", p)
	}
	if rl.Name() != "inner" {
		t.Errorf("expected name passthrough, got %q", rl.Name())
	}
	if err := CloseProvider(p); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !inner.closed {
		t.Error("Close should reach the inner provider")
	}
}

func TestFactoryCreate_ConstructorError(t *testing.T) {
	f := NewFactory()
	want := errors.New("constructor failed")
	f.Register("failing", func(ProviderConfig) (Provider, error) { return nil, want })

	p, err := f.Create(ProviderConfig{Provider: "failing"})
	if !errors.Is(err, want) {
		t.Fatalf("expected constructor error, got: %v", err)
	}
	if p != nil {
		t.Fatal("expected nil provider on error")
	}
}

func TestFactoryNames_Sorted(t *testing.T) {
	f := NewFactory()
	for _, n := range []string{"ollama", "anthropic", "openai"} {
		f.Register(n, func(ProviderConfig) (Provider, error) { return nil, nil })
	}
	got := strings.Join(f.Names(), ",")
	if got != "anthropic,ollama,openai" {
		t.Errorf("Names() = %s", got)
	}
}

func TestDefaultProviderConfig(t *testing.T) {
	cfg := DefaultProviderConfig()
	if cfg.Provider != "openai" {
		t.Errorf("expected default provider openai, got %q", cfg.Provider)
	}
	if cfg.Timeout != 2*time.Minute {
		t.Errorf("expected 2m timeout, got %v", cfg.Timeout)
	}
	if cfg.APIVersion == "" {
		t.Error("expected a default Azure api version")
	}
}

func TestKnownProviders(t *testing.T) {
	for _, name := range []string{"openai", "azure", "anthropic", "groq", "ollama"} {
		if _, ok := KnownProviders[name]; !ok {
			t.Errorf("expected %q in KnownProviders", name)
		}
	}
	if KnownProviders["azure"] != "" {
		t.Error("azure has no default endpoint")
	}
}

func TestCloseProvider_NonCloser(t *testing.T) {
	if err := CloseProvider(noCloseProvider{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

type noCloseProvider struct{}

func (noCloseProvider) Name() string { return "plain" }
func (noCloseProvider) Complete(context.Context, *Request, *RequestOptions) (*Response, error) {
	return nil, nil
}
