package llm

import "context"

// Provider is the interface all completion backends must implement.
type Provider interface {
	// Complete sends a conversation (and optional output constraint) and
	// returns the assistant's reply.
	Complete(ctx context.Context, req *Request, opts *RequestOptions) (*Response, error)
	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}

// Request is the full input to a single completion call.
type Request struct {
	Messages []Message `json:"messages"`
	// Schema, when set, asks the backend to constrain generation to a JSON
	// document of this shape.
	Schema *SchemaConstraint `json:"schema,omitempty"`
}

// SchemaConstraint describes the JSON shape a backend should produce.
type SchemaConstraint struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Document    map[string]any `json:"document"`
	Strict      bool           `json:"strict"`
}

// RequestOptions carries sampling parameters. Nil fields use backend defaults.
type RequestOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	StopSeqs    []string `json:"stop,omitempty"`
}
