// Package openai implements llm.Provider on the official openai-go SDK. It
// serves OpenAI itself, Azure OpenAI deployments and any OpenAI-compatible
// endpoint (Groq, Ollama, vLLM, Together, ...).
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/efebarandurmaz/llm-ci-runner/internal/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client implements llm.Provider for OpenAI-compatible APIs.
type Client struct {
	name  string
	model string
	cli   openai.Client
	http  *http.Client
}

// New creates an OpenAI-compatible provider. name is reported by Name and
// used in error messages.
func New(name, apiKey, model, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	hc := newHTTPClient(timeout)
	return &Client{
		name:  name,
		model: model,
		http:  hc,
		cli: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
			option.WithHTTPClient(hc),
			// Retries are owned by the execution engine's policy.
			option.WithMaxRetries(0),
		),
	}
}

// NewAzure creates a provider for an Azure OpenAI deployment. model is the
// deployment name.
func NewAzure(apiKey, deployment, endpoint, apiVersion string, timeout time.Duration) *Client {
	hc := newHTTPClient(timeout)
	return &Client{
		name:  "azure",
		model: deployment,
		http:  hc,
		cli: openai.NewClient(
			azure.WithEndpoint(endpoint, apiVersion),
			azure.WithAPIKey(apiKey),
			option.WithHTTPClient(hc),
			option.WithMaxRetries(0),
		),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
		},
	}
}

func (c *Client) Name() string { return c.name }

// Close drops pooled connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) Complete(ctx context.Context, req *llm.Request, opts *llm.RequestOptions) (*llm.Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: toMessageParams(req.Messages),
	}
	if req.Schema != nil {
		js := shared.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   req.Schema.Name,
			Schema: req.Schema.Document,
			Strict: openai.Bool(req.Schema.Strict),
		}
		if req.Schema.Description != "" {
			js.Description = openai.String(req.Schema.Description)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{JSONSchema: js},
		}
	}
	if opts != nil {
		if opts.Temperature != nil {
			params.Temperature = openai.Float(*opts.Temperature)
		}
		if opts.TopP != nil {
			params.TopP = openai.Float(*opts.TopP)
		}
		if opts.MaxTokens != nil {
			params.MaxCompletionTokens = openai.Int(int64(*opts.MaxTokens))
		}
	}

	resp, err := c.cli.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.translateError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: response contained no choices", c.name)
	}

	choice := resp.Choices[0]
	if choice.Message.Content == "" && choice.Message.Refusal != "" {
		return nil, fmt.Errorf("%s: model refused: %s", c.name, choice.Message.Refusal)
	}

	return &llm.Response{
		Content:      choice.Message.Content,
		Provider:     c.name,
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		StopReason:   string(choice.FinishReason),
	}, nil
}

// translateError maps SDK errors onto the llm error taxonomy while keeping
// the SDK error reachable through errors.As.
func (c *Client) translateError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llm.NewStatusError(c.name, apiErr.StatusCode, apiErr.Error(), err)
	}
	return llm.WrapTransportError(c.name, err)
}

func toMessageParams(msgs []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			p := &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(m.Content)},
			}
			if m.Name != "" {
				p.Name = openai.String(m.Name)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfSystem: p})
		case llm.RoleUser:
			p := &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(m.Content)},
			}
			if m.Name != "" {
				p.Name = openai.String(m.Name)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfUser: p})
		case llm.RoleAssistant:
			p := &openai.ChatCompletionAssistantMessageParam{
				Content: openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(m.Content)},
			}
			if m.Name != "" {
				p.Name = openai.String(m.Name)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: p})
		case llm.RoleTool:
			// Plain conversations carry no tool-call IDs; the name stands in.
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					ToolCallID: m.Name,
					Content:    openai.ChatCompletionToolMessageParamContentUnion{OfString: openai.String(m.Content)},
				},
			})
		}
	}
	return out
}
