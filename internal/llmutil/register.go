package llmutil

import (
	"fmt"

	"github.com/efebarandurmaz/llm-ci-runner/internal/llm"
	"github.com/efebarandurmaz/llm-ci-runner/internal/llm/anthropic"
	"github.com/efebarandurmaz/llm-ci-runner/internal/llm/openai"
)

// RegisterDefaultProviders registers all built-in backends (openai, azure,
// anthropic and the OpenAI-compatible presets) into factory.
func RegisterDefaultProviders(factory *llm.ProviderFactory) {
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		if c.APIKey == "" {
			return nil, fmt.Errorf("anthropic requires an API key")
		}
		return anthropic.New(c.APIKey, c.Model, c.BaseURL, c.Timeout), nil
	})
	factory.Register("azure", func(c llm.ProviderConfig) (llm.Provider, error) {
		if c.BaseURL == "" {
			return nil, fmt.Errorf("azure requires an endpoint (llm.base_url)")
		}
		if c.Model == "" {
			return nil, fmt.Errorf("azure requires a deployment name (llm.model)")
		}
		return openai.NewAzure(c.APIKey, c.Model, c.BaseURL, c.APIVersion, c.Timeout), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		if c.APIKey == "" && c.BaseURL == "" {
			return nil, fmt.Errorf("openai requires an API key")
		}
		return openai.New("openai", c.APIKey, c.Model, c.BaseURL, c.Timeout), nil
	})
	// OpenAI-compatible endpoints. "custom" has no default and needs base_url.
	for _, p := range []struct{ name, url string }{
		{"groq", llm.KnownProviders["groq"]},
		{"ollama", llm.KnownProviders["ollama"]},
		{"together", llm.KnownProviders["together"]},
		{"deepseek", llm.KnownProviders["deepseek"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			if base == "" {
				return nil, fmt.Errorf("%s requires llm.base_url", p.name)
			}
			return openai.New(p.name, c.APIKey, c.Model, base, c.Timeout), nil
		})
	}
}
