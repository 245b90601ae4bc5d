package convo

import "github.com/chronolens/chronolens/internal/domain"

// Role identifies the author of a conversation message.
type Role string

// Conversation roles, matching the chat-completion wire values.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered chat history, oldest turn first.
type Conversation []Message

// Validate checks that the conversation can drive a pipeline run: it must
// carry at least one user turn.
func (c Conversation) Validate() error {
	if _, ok := c.LastUserMessage(); !ok {
		return domain.ErrEmptyConversation
	}
	return nil
}

// LastUserMessage returns the content of the most recent user turn.
func (c Conversation) LastUserMessage() (string, bool) {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Role == RoleUser {
			return c[i].Content, true
		}
	}
	return "", false
}

// WithContextBeforeLastUser returns a copy of the conversation with a
// synthetic system message inserted immediately before the most recent user
// turn. The receiver is never mutated. When no user turn exists the message
// is appended instead.
func (c Conversation) WithContextBeforeLastUser(content string) Conversation {
	msg := Message{Role: RoleSystem, Content: content}

	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Role != RoleUser {
			continue
		}
		out := make(Conversation, 0, len(c)+1)
		out = append(out, c[:i]...)
		out = append(out, msg)
		out = append(out, c[i:]...)
		return out
	}

	out := make(Conversation, 0, len(c)+1)
	out = append(out, c...)
	return append(out, msg)
}

// AppendAssistant returns a copy of the conversation with an assistant turn
// appended.
func (c Conversation) AppendAssistant(content string) Conversation {
	out := make(Conversation, 0, len(c)+1)
	out = append(out, c...)
	return append(out, Message{Role: RoleAssistant, Content: content})
}

// AppendToLastAssistant returns a copy of the conversation with content
// appended to the most recent assistant turn. When no assistant turn exists
// the conversation is returned unchanged.
func (c Conversation) AppendToLastAssistant(content string) Conversation {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Role != RoleAssistant {
			continue
		}
		out := make(Conversation, len(c))
		copy(out, c)
		out[i].Content += content
		return out
	}
	return c
}
