package convo

import (
	"errors"
	"testing"

	"github.com/chronolens/chronolens/internal/domain"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		conv    Conversation
		wantErr error
	}{
		{
			name:    "nil conversation",
			conv:    nil,
			wantErr: domain.ErrEmptyConversation,
		},
		{
			name:    "system only",
			conv:    Conversation{{Role: RoleSystem, Content: "be nice"}},
			wantErr: domain.ErrEmptyConversation,
		},
		{
			name: "has user turn",
			conv: Conversation{{Role: RoleUser, Content: "what did I do today"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conv.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLastUserMessage(t *testing.T) {
	conv := Conversation{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "first question"},
		{Role: RoleAssistant, Content: "first answer"},
		{Role: RoleUser, Content: "second question"},
	}

	got, ok := conv.LastUserMessage()
	if !ok {
		t.Fatal("LastUserMessage() ok = false, want true")
	}
	if got != "second question" {
		t.Errorf("LastUserMessage() = %q, want %q", got, "second question")
	}
}

func TestWithContextBeforeLastUser(t *testing.T) {
	conv := Conversation{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "answer"},
		{Role: RoleUser, Content: "second"},
	}

	got := conv.WithContextBeforeLastUser("retrieved context")

	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if got[2].Role != RoleSystem || got[2].Content != "retrieved context" {
		t.Errorf("inserted = %+v, want system context before last user turn", got[2])
	}
	if got[3].Content != "second" {
		t.Errorf("last turn = %q, want %q", got[3].Content, "second")
	}

	// Original must be untouched.
	if len(conv) != 3 {
		t.Errorf("receiver mutated: len = %d, want 3", len(conv))
	}
	if conv[2].Content != "second" {
		t.Errorf("receiver mutated: last = %q, want %q", conv[2].Content, "second")
	}
}

func TestWithContextBeforeLastUser_NoUserTurn(t *testing.T) {
	conv := Conversation{{Role: RoleSystem, Content: "sys"}}

	got := conv.WithContextBeforeLastUser("ctx")

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].Role != RoleSystem || got[1].Content != "ctx" {
		t.Errorf("appended = %+v, want trailing system context", got[1])
	}
}

func TestAppendAssistant(t *testing.T) {
	conv := Conversation{{Role: RoleUser, Content: "hi"}}

	got := conv.AppendAssistant("hello")

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].Role != RoleAssistant || got[1].Content != "hello" {
		t.Errorf("appended = %+v, want assistant turn", got[1])
	}
	if len(conv) != 1 {
		t.Errorf("receiver mutated: len = %d, want 1", len(conv))
	}
}

func TestAppendToLastAssistant(t *testing.T) {
	conv := Conversation{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}

	got := conv.AppendToLastAssistant("\n\nfootnote")

	if got[1].Content != "hello\n\nfootnote" {
		t.Errorf("assistant turn = %q, want appended footnote", got[1].Content)
	}
	if conv[1].Content != "hello" {
		t.Errorf("receiver mutated: %q", conv[1].Content)
	}
}

func TestAppendToLastAssistant_NoAssistantTurn(t *testing.T) {
	conv := Conversation{{Role: RoleUser, Content: "hi"}}

	got := conv.AppendToLastAssistant("footnote")

	if len(got) != 1 || got[0].Content != "hi" {
		t.Errorf("conversation changed: %+v", got)
	}
}
