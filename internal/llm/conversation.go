package llm

import (
	"fmt"
	"strings"
)

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the recognized roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ParseRole converts s into a Role, accepting any letter case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q (want system, user, assistant or tool)", s)
	}
	return r, nil
}

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// NewMessage builds a Message, rejecting unknown roles.
func NewMessage(role Role, content, name string) (Message, error) {
	if !role.Valid() {
		return Message{}, fmt.Errorf("invalid role %q", role)
	}
	return Message{Role: role, Content: content, Name: name}, nil
}

// RawMessage is a message as it arrives from an input document. Pointer
// fields distinguish an absent key from an empty value.
type RawMessage struct {
	Role    *string `json:"role" yaml:"role"`
	Content *string `json:"content" yaml:"content"`
	Name    *string `json:"name,omitempty" yaml:"name,omitempty"`
}

// ValidationError reports malformed conversation input. Index is the
// 0-based position of the first offending message, or -1 when the problem
// concerns the list as a whole.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("message %d: %s: %s", e.Index, e.Field, e.Reason)
}

// Conversation is an ordered, non-empty list of messages. Insertion order is
// the turn order sent to the backend.
type Conversation struct {
	messages []Message
	context  map[string]any
}

// NewConversation builds a Conversation from already-valid messages.
func NewConversation(msgs ...Message) (*Conversation, error) {
	if len(msgs) == 0 {
		return nil, &ValidationError{Index: -1, Field: "messages", Reason: "must be a non-empty array"}
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return nil, &ValidationError{Index: i, Field: "role", Reason: fmt.Sprintf("invalid role %q", m.Role)}
		}
	}
	owned := make([]Message, len(msgs))
	copy(owned, msgs)
	return &Conversation{messages: owned}, nil
}

// BuildConversation normalizes raw input messages into a Conversation. It
// fails on the first entry that lacks role or content, or whose role is not
// recognized.
func BuildConversation(raw []RawMessage) (*Conversation, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{Index: -1, Field: "messages", Reason: "must be a non-empty array"}
	}

	msgs := make([]Message, 0, len(raw))
	for i, r := range raw {
		if r.Role == nil {
			return nil, &ValidationError{Index: i, Field: "role", Reason: "missing required field"}
		}
		if r.Content == nil {
			return nil, &ValidationError{Index: i, Field: "content", Reason: "missing required field"}
		}
		role, err := ParseRole(*r.Role)
		if err != nil {
			return nil, &ValidationError{Index: i, Field: "role", Reason: err.Error()}
		}
		var name string
		if r.Name != nil {
			name = *r.Name
		}
		msgs = append(msgs, Message{Role: role, Content: *r.Content, Name: name})
	}
	return &Conversation{messages: msgs}, nil
}

// WithContext returns a copy of c carrying the input document's context
// block. The block is informational; it is never sent to the backend.
func (c *Conversation) WithContext(ctx map[string]any) *Conversation {
	out := &Conversation{messages: c.messages, context: make(map[string]any, len(ctx))}
	for k, v := range ctx {
		out.context[k] = v
	}
	return out
}

// Messages returns a copy of the conversation's messages.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.messages) }

// Context returns the context block attached to the conversation, if any.
func (c *Conversation) Context() map[string]any {
	if c.context == nil {
		return nil
	}
	out := make(map[string]any, len(c.context))
	for k, v := range c.context {
		out[k] = v
	}
	return out
}

// SplitSystem separates system messages (joined by blank lines) from the
// rest. Backends whose APIs carry the system prompt out of band use this.
func SplitSystem(msgs []Message) (string, []Message) {
	var system []string
	var rest []Message
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
