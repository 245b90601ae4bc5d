package llm

import (
	"encoding/json"

	"github.com/chronolens/chronolens/internal/domain/usage"
)

// Endpoint identifies an OpenAI-compatible model API to call.
type Endpoint struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Function describes a tool the model may call.
type Function struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ToolCall is a request for structured extraction via tool calling.
type ToolCall struct {
	System   string
	User     string
	Function Function
	Force    bool // require the named tool instead of letting the model choose
}

// ToolReply is the model's answer to a tool call request. Args carries the
// tool arguments when the model invoked the tool; Content carries the raw
// assistant text otherwise (some providers emit the call as plain text).
type ToolReply struct {
	Args    json.RawMessage
	Content string
	Tokens  usage.Tokens
}

// CompletionOptions tune a chat completion request.
type CompletionOptions struct {
	System    string // prepended as a system turn when non-empty
	MaxTokens int
}

// TokenStream is an in-flight streaming completion. Recv blocks for the next
// content chunk and returns io.EOF once the stream is done; Usage is valid
// only after that. Close releases the underlying connection and is safe to
// call at any point.
type TokenStream interface {
	Recv() (string, error)
	Close() error
	Usage() usage.Tokens
}
