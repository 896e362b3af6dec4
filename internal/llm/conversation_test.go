package llm

import (
	"errors"
	"strings"
	"testing"
)

func strp(s string) *string { return &s }

func TestParseRole(t *testing.T) {
	for _, in := range []string{"system", "USER", " Assistant ", "tool"} {
		if _, err := ParseRole(in); err != nil {
			t.Errorf("ParseRole(%q): %v", in, err)
		}
	}
	if _, err := ParseRole("narrator"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestNewMessage_RejectsInvalidRole(t *testing.T) {
	if _, err := NewMessage(Role("bot"), "hi", ""); err == nil {
		t.Fatal("expected error")
	}
	m, err := NewMessage(RoleUser, "hi", "alice")
	if err != nil || m.Name != "alice" {
		t.Fatalf("unexpected %+v %v", m, err)
	}
}

func TestBuildConversation_PreservesOrder(t *testing.T) {
	conv, err := BuildConversation([]RawMessage{
		{Role: strp("system"), Content: strp("You are terse.")},
		{Role: strp("User"), Content: strp("Hi"), Name: strp("dev")},
		{Role: strp("assistant"), Content: strp("")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := conv.Messages()
	if len(msgs) != 3 || conv.Len() != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleSystem || msgs[1].Role != RoleUser || msgs[2].Role != RoleAssistant {
		t.Errorf("order not preserved: %+v", msgs)
	}
	if msgs[1].Name != "dev" {
		t.Errorf("expected name to carry through, got %q", msgs[1].Name)
	}
}

func TestBuildConversation_Errors(t *testing.T) {
	tests := []struct {
		name      string
		raw       []RawMessage
		wantIndex int
		wantField string
	}{
		{"empty", nil, -1, "messages"},
		{"missing role", []RawMessage{{Role: strp("user"), Content: strp("a")}, {Content: strp("b")}}, 1, "role"},
		{"missing content", []RawMessage{{Role: strp("user")}}, 0, "content"},
		{"bad role", []RawMessage{{Role: strp("user"), Content: strp("a")}, {Role: strp("user"), Content: strp("b")}, {Role: strp("robot"), Content: strp("c")}}, 2, "role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildConversation(tt.raw)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T %v", err, err)
			}
			if ve.Index != tt.wantIndex || ve.Field != tt.wantField {
				t.Errorf("got index=%d field=%s, want index=%d field=%s", ve.Index, ve.Field, tt.wantIndex, tt.wantField)
			}
		})
	}
}

func TestConversation_MessagesIsCopy(t *testing.T) {
	conv, _ := NewConversation(Message{Role: RoleUser, Content: "original"})
	msgs := conv.Messages()
	msgs[0].Content = "mutated"
	if conv.Messages()[0].Content != "original" {
		t.Error("Messages must not expose internal storage")
	}
}

func TestConversation_WithContext(t *testing.T) {
	conv, _ := NewConversation(Message{Role: RoleUser, Content: "x"})
	if conv.Context() != nil {
		t.Error("expected nil context by default")
	}
	withCtx := conv.WithContext(map[string]any{"session_id": "abc"})
	if withCtx.Context()["session_id"] != "abc" {
		t.Errorf("context not attached: %v", withCtx.Context())
	}
	if conv.Context() != nil {
		t.Error("WithContext must not modify the receiver")
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := SplitSystem([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "q"},
		{Role: RoleSystem, Content: "b"},
	})
	if system != "a\n\nb" {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 1 || rest[0].Content != "q" {
		t.Errorf("rest = %+v", rest)
	}
}

func TestParseRendered_MessageTags(t *testing.T) {
	text := `<message role="system">You review code.</message>
<message role="user" name="ci">Check this diff:
+ added line</message>`
	conv, err := ParseRendered(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := conv.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleSystem || msgs[0].Content != "You review code." {
		t.Errorf("first = %+v", msgs[0])
	}
	if msgs[1].Name != "ci" || !strings.Contains(msgs[1].Content, "+ added line") {
		t.Errorf("second = %+v", msgs[1])
	}
}

func TestParseRendered_InvalidTagRole(t *testing.T) {
	_, err := ParseRendered(`<message role="wizard">hi</message>`)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "role" {
		t.Fatalf("expected role validation error, got %v", err)
	}
}

func TestParseRendered_RoleMarkers(t *testing.T) {
	text := "Context first.\nsystem: Be brief.\nUser: line one\nline two\nassistant: ok"
	conv, err := ParseRendered(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := conv.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "Context first." {
		t.Errorf("preamble = %+v", msgs[0])
	}
	if msgs[2].Content != "line one\nline two" {
		t.Errorf("multi-line content = %q", msgs[2].Content)
	}
	if msgs[3].Role != RoleAssistant {
		t.Errorf("last role = %s", msgs[3].Role)
	}
}

func TestParseRendered_PlainText(t *testing.T) {
	conv, err := ParseRendered("  Summarize the release notes.  \n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := conv.Messages()
	if len(msgs) != 1 || msgs[0].Role != RoleUser || msgs[0].Content != "Summarize the release notes." {
		t.Errorf("got %+v", msgs)
	}
}

func TestParseRendered_Empty(t *testing.T) {
	_, err := ParseRendered(" \n\t")
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "template" {
		t.Fatalf("expected template validation error, got %v", err)
	}
}

func TestEstimatePromptTokens(t *testing.T) {
	small := EstimatePromptTokens([]Message{{Role: RoleUser, Content: "hi"}})
	large := EstimatePromptTokens([]Message{{Role: RoleUser, Content: strings.Repeat("hello world ", 50)}})
	if small <= 3 {
		t.Errorf("expected framing overhead, got %d", small)
	}
	if large <= small {
		t.Errorf("longer content should cost more tokens: %d <= %d", large, small)
	}
	if CountTokens("") != 0 {
		t.Error("empty text has no tokens")
	}
}
