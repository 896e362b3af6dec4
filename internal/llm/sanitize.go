package llm

import "strings"

// StripThinkingTags removes <think>...</think> blocks from LLM output.
// Some models (e.g. qwen3, deepseek-r1) wrap their reasoning in these tags.
func StripThinkingTags(s string) string {
	for {
		start := strings.Index(s, "<think>")
		if start == -1 {
			break
		}
		end := strings.Index(s, "</think>")
		if end == -1 {
			s = strings.TrimSpace(s[:start])
			break
		}
		s = s[:start] + s[end+len("</think>"):]
	}
	return strings.TrimSpace(s)
}

// StripCodeFence removes one markdown code fence wrapping the whole output,
// e.g. "```json\n{...}\n```". Text that is not entirely fenced is returned
// trimmed but otherwise unchanged.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	body := s[3 : len(s)-3]
	nl := strings.IndexByte(body, '\n')
	if nl == -1 {
		return strings.TrimSpace(body)
	}
	// The first line is the info string ("json", "JSON", or empty).
	if info := strings.TrimSpace(body[:nl]); strings.ContainsAny(info, "{[\"") {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(body[nl+1:])
}

// CleanOutput applies StripThinkingTags then StripCodeFence.
func CleanOutput(s string) string {
	return StripCodeFence(StripThinkingTags(s))
}
