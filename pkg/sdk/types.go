package chronolens

import (
	"context"
	"time"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Hook transforms a conversation at a pipeline boundary.
type Hook func(ctx context.Context, messages []Message) ([]Message, error)

// Replacement is one literal substitution applied to retrieved text.
type Replacement struct {
	Old string
	New string
}

// QueryInfo describes the structured query extracted from a chat turn.
type QueryInfo struct {
	ContentType string
	From        time.Time
	To          time.Time
	Limit       int
	Substring   string
	Application string
}

// TokenUsage is the token accounting of one pipeline run.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Answer is the outcome of a non-streaming run.
type Answer struct {
	RunID       string
	Text        string
	Messages    []Message
	Query       QueryInfo
	ResultsUsed int
	Truncated   bool
	Usage       TokenUsage
}

// SearchParams selects activity records for a direct index query.
// Zero time bounds are unbounded; a zero Limit uses the server default.
type SearchParams struct {
	ContentType string
	From        time.Time
	To          time.Time
	Limit       int
	Substring   string
	Application string
	Offset      int
}

// SearchResult is one retrieved activity record.
type SearchResult struct {
	ID         int64
	Kind       string
	Text       string
	Source     string
	Timestamp  time.Time
	AppName    string
	WindowName string
	DeviceName string
	FilePath   string
	Tags       []string
}
