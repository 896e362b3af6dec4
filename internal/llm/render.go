package llm

import (
	"regexp"
	"strings"
)

var (
	messageTagRe = regexp.MustCompile(`(?s)<message\s+role\s*=\s*["']([^"']*)["'](?:\s+name\s*=\s*["']([^"']*)["'])?\s*>(.*?)</message>`)
	roleMarkerRe = regexp.MustCompile(`(?i)^\s*(system|user|assistant|tool)\s*:\s?(.*)$`)
)

// Turn is one role-tagged section of template text.
type Turn struct {
	Role string
	Name string
	Body string
}

// ParseRendered turns rendered template output into a Conversation.
//
// Two turn conventions are recognized:
//
//	<message role="system">You are a reviewer.</message>
//	<message role="user">Review this diff.</message>
//
// and line-prefixed markers:
//
//	system: You are a reviewer.
//	user: Review this diff.
//
// Message tags take precedence. Without any marker the whole text becomes a
// single user message.
func ParseRendered(text string) (*Conversation, error) {
	turns, ok := SplitTurns(text)
	if !ok {
		turns = []Turn{{Role: string(RoleUser), Body: text}}
	}
	return TurnsConversation(turns)
}

// SplitTurns locates turn markers in text. It reports false when text has
// none. Callers that render templates split the template source, not its
// output, so variable data cannot open a turn of its own.
func SplitTurns(text string) ([]Turn, bool) {
	if matches := messageTagRe.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		turns := make([]Turn, 0, len(matches))
		for _, m := range matches {
			turns = append(turns, Turn{Role: m[1], Name: m[2], Body: m[3]})
		}
		return turns, true
	}
	if turns := splitRoleMarkers(text); len(turns) > 0 {
		return turns, true
	}
	return nil, false
}

// TurnsConversation trims each turn body and builds the Conversation.
func TurnsConversation(turns []Turn) (*Conversation, error) {
	raw := make([]RawMessage, 0, len(turns))
	for _, t := range turns {
		role, content := t.Role, strings.TrimSpace(t.Body)
		rm := RawMessage{Role: &role, Content: &content}
		if t.Name != "" {
			name := t.Name
			rm.Name = &name
		}
		raw = append(raw, rm)
	}
	if len(raw) == 1 && *raw[0].Content == "" {
		return nil, &ValidationError{Index: -1, Field: "template", Reason: "rendered template is empty"}
	}
	return BuildConversation(raw)
}

// splitRoleMarkers splits text on lines that begin with "role:". Text before
// the first marker is kept as a user turn. Returns nil when no marker exists.
func splitRoleMarkers(text string) []Turn {
	var (
		turns    []Turn
		current  *Turn
		buf      []string
		preamble []string
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Body = strings.Join(buf, "\n")
		turns = append(turns, *current)
		buf = buf[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if m := roleMarkerRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &Turn{Role: strings.ToLower(m[1])}
			buf = append(buf, m[2])
			continue
		}
		if current == nil {
			preamble = append(preamble, line)
			continue
		}
		buf = append(buf, line)
	}
	flush()

	if len(turns) == 0 {
		return nil
	}
	if pre := strings.Join(preamble, "\n"); strings.TrimSpace(pre) != "" {
		turns = append([]Turn{{Role: string(RoleUser), Body: pre}}, turns...)
	}
	return turns
}
