package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/efebarandurmaz/llm-ci-runner/internal/llm"
	"github.com/efebarandurmaz/llm-ci-runner/internal/observability"
)

// EnvPrefix prefixes every environment override, e.g.
// LLM_RUNNER_LLM_API_KEY for llm.api_key.
const EnvPrefix = "LLM_RUNNER"

// Config holds all application configuration.
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Log     LogConfig     `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Audit   AuditConfig   `mapstructure:"audit"`
}

type LLMConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	APIVersion        string        `mapstructure:"api_version"`
	Temperature       *float64      `mapstructure:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinWait     time.Duration `mapstructure:"min_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	Multiplier  time.Duration `mapstructure:"multiplier"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	Environment  string  `mapstructure:"environment"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

type AuditConfig struct {
	Path string `mapstructure:"path"`
}

// ProviderConfig converts the llm section for the provider factory.
func (c LLMConfig) ProviderConfig() llm.ProviderConfig {
	pc := llm.DefaultProviderConfig()
	pc.Provider = c.Provider
	pc.Model = c.Model
	pc.APIKey = c.APIKey
	pc.BaseURL = c.BaseURL
	if c.APIVersion != "" {
		pc.APIVersion = c.APIVersion
	}
	if c.Timeout > 0 {
		pc.Timeout = c.Timeout
	}
	pc.RequestsPerMinute = c.RequestsPerMinute
	return pc
}

// RequestOptions returns the sampling options, or nil when none are set.
func (c LLMConfig) RequestOptions() *llm.RequestOptions {
	if c.Temperature == nil && c.MaxTokens <= 0 {
		return nil
	}
	opts := &llm.RequestOptions{Temperature: c.Temperature}
	if c.MaxTokens > 0 {
		n := c.MaxTokens
		opts.MaxTokens = &n
	}
	return opts
}

// Policy builds the retry policy.
func (c RetryConfig) Policy() *llm.RetryPolicy {
	p := llm.DefaultRetryPolicy()
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}
	if c.MinWait > 0 {
		p.MinWait = c.MinWait
	}
	if c.MaxWait > 0 {
		p.MaxWait = c.MaxWait
	}
	if c.Multiplier > 0 {
		p.Multiplier = c.Multiplier
	}
	return p
}

// TracingConfig converts the tracing section for observability.InitTracing.
func (c TracingConfig) TracingConfig(version string) *observability.TracingConfig {
	tc := observability.DefaultTracingConfig()
	tc.OTLPEndpoint = c.OTLPEndpoint
	tc.ServiceVersion = version
	if c.ServiceName != "" {
		tc.ServiceName = c.ServiceName
	}
	if c.Environment != "" {
		tc.Environment = c.Environment
	}
	if c.SampleRate > 0 {
		tc.SampleRate = c.SampleRate
	}
	return tc
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	// Local backends run without a key.
	if c.LLM.Provider != "" && c.LLM.Provider != "ollama" && c.LLM.Provider != "custom" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}

	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2.0) {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", *t))
	}

	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}

	if c.Retry.MaxAttempts < 0 {
		warnings = append(warnings, fmt.Sprintf("retry max_attempts %d is negative; using default %d",
			c.Retry.MaxAttempts, llm.DefaultRetryPolicy().MaxAttempts))
	}

	if c.Retry.MaxWait > 0 && c.Retry.MinWait > c.Retry.MaxWait {
		warnings = append(warnings, fmt.Sprintf("retry min_wait %s exceeds max_wait %s", c.Retry.MinWait, c.Retry.MaxWait))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

func setDefaults(v *viper.Viper) {
	def := llm.DefaultProviderConfig()
	policy := llm.DefaultRetryPolicy()

	v.SetDefault("llm.provider", def.Provider)
	v.SetDefault("llm.api_version", def.APIVersion)
	v.SetDefault("llm.timeout", def.Timeout)
	v.SetDefault("retry.max_attempts", policy.MaxAttempts)
	v.SetDefault("retry.min_wait", policy.MinWait)
	v.SetDefault("retry.max_wait", policy.MaxWait)
	v.SetDefault("retry.multiplier", policy.Multiplier)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tracing.service_name", "llm-ci-runner")
	v.SetDefault("tracing.environment", "ci")
	v.SetDefault("tracing.sample_rate", 1.0)

	// Keys without a default must be registered for AutomaticEnv to see
	// them during Unmarshal.
	for _, key := range []string{
		"llm.model", "llm.api_key", "llm.base_url", "llm.temperature",
		"llm.max_tokens", "llm.requests_per_minute",
		"tracing.otlp_endpoint", "audit.path",
	} {
		v.SetDefault(key, nil)
	}
}

// Load reads configuration from the optional YAML file at path and from
// LLM_RUNNER_* environment variables. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}
