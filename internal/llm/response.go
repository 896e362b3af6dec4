package llm

// Response is the envelope a Provider returns for one completion call.
// Content holds the single string of assistant output; everything else is
// best-effort accounting that backends fill when their API reports it.
type Response struct {
	Content      string `json:"content"`
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
}

// TotalTokens returns input plus output tokens.
func (r *Response) TotalTokens() int {
	if r == nil {
		return 0
	}
	return r.InputTokens + r.OutputTokens
}
