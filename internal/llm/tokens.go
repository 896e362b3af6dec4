package llm

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// getCodec returns a shared BPE codec (o200k_base, falling back to
// cl100k_base). It returns nil if neither encoding can be loaded, in which
// case callers fall back to a character heuristic.
func getCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.O200kBase)
		if err != nil {
			c, err = tokenizer.Get(tokenizer.Cl100kBase)
			if err != nil {
				return
			}
		}
		codec = c
	})
	return codec
}

// CountTokens returns the number of BPE tokens in text.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	c := getCodec()
	if c == nil {
		return (len(text) + 3) / 4
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(ids)
}

// EstimatePromptTokens approximates the prompt size of msgs using the
// OpenAI chat convention: 4 tokens of framing per message, plus content and
// name, plus 3 for the reply primer.
func EstimatePromptTokens(msgs []Message) int {
	total := 3
	for _, m := range msgs {
		total += 4
		total += CountTokens(string(m.Role))
		total += CountTokens(m.Content)
		if m.Name != "" {
			total += CountTokens(m.Name) + 1
		}
	}
	return total
}
