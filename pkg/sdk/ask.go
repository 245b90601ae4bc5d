package chronolens

import (
	"context"
	"fmt"
	"time"

	"github.com/chronolens/chronolens/internal/domain/usage"
	pipelineuc "github.com/chronolens/chronolens/internal/usecase/pipeline"
)

// Ask runs one full chat turn: extraction, retrieval, injection, and (with
// the GET_RESPONSE valve on) a grounded completion. Overrides are per-call
// valve values and may be nil.
func (c *Client) Ask(ctx context.Context, messages []Message, overrides map[string]string) (_ Answer, err error) {
	start := time.Now()
	defer func() { c.obs.observe("ask", start, err) }()

	res, err := c.pipe.Run(ctx, conversationFromMessages(messages), overrides)
	if err != nil {
		return Answer{}, fmt.Errorf("chronolens: ask: %w", err)
	}
	return answerFromResult(res), nil
}

// Inlet runs extraction, retrieval, and injection only, returning the
// transformed conversation for callers that drive their own completion.
func (c *Client) Inlet(ctx context.Context, messages []Message, overrides map[string]string) (_ Answer, err error) {
	start := time.Now()
	defer func() { c.obs.observe("inlet", start, err) }()

	res, err := c.pipe.Inlet(ctx, conversationFromMessages(messages), overrides)
	if err != nil {
		return Answer{}, fmt.Errorf("chronolens: inlet: %w", err)
	}
	return answerFromResult(res), nil
}

// Outlet applies the configured outlet hook to an outgoing conversation.
func (c *Client) Outlet(ctx context.Context, messages []Message) []Message {
	start := time.Now()
	defer func() { c.obs.observe("outlet", start, nil) }()

	return messagesFromConversation(c.pipe.Outlet(ctx, conversationFromMessages(messages)))
}

// Stream is an in-flight streaming run. Chunks yields response chunks in
// order; the channel closes when the stream ends for any reason, and Wait
// reports how. Cancelling the context passed to AskStream stops the stream
// cleanly.
type Stream struct {
	run   *pipelineuc.StreamRun
	obs   *observer
	start time.Time
}

// AskStream runs one chat turn with a streamed response.
func (c *Client) AskStream(ctx context.Context, messages []Message, overrides map[string]string) (*Stream, error) {
	start := time.Now()

	run, err := c.pipe.RunStream(ctx, conversationFromMessages(messages), overrides)
	if err != nil {
		c.obs.observe("ask_stream", start, err)
		return nil, fmt.Errorf("chronolens: ask stream: %w", err)
	}
	return &Stream{run: run, obs: c.obs, start: start}, nil
}

// Chunks returns the response chunk channel.
func (s *Stream) Chunks() <-chan string { return s.run.Chunks() }

// Wait blocks until the stream is drained and returns the terminal error,
// if any. Cancellation is a clean termination, not an error.
func (s *Stream) Wait() error {
	err := s.run.Wait()
	s.obs.observe("ask_stream", s.start, err)
	if err != nil {
		return fmt.Errorf("chronolens: stream: %w", err)
	}
	return nil
}

// RunID identifies this run in logs.
func (s *Stream) RunID() string { return s.run.RunID.String() }

// Query returns the structured query the stream was grounded on.
func (s *Stream) Query() QueryInfo { return queryToInfo(s.run.Query) }

// ResultsUsed returns how many records made it into the context block.
func (s *Stream) ResultsUsed() int { return s.run.ResultsUsed }

// Truncated reports whether the context block hit its budget.
func (s *Stream) Truncated() bool { return s.run.Truncated }

func answerFromResult(res pipelineuc.Result) Answer {
	return Answer{
		RunID:       res.RunID.String(),
		Text:        res.Response,
		Messages:    messagesFromConversation(res.Conversation),
		Query:       queryToInfo(res.Query),
		ResultsUsed: res.ResultsUsed,
		Truncated:   res.Truncated,
		Usage:       tokensToUsage(res.Tokens),
	}
}

func tokensToUsage(t usage.Tokens) TokenUsage {
	return TokenUsage{
		PromptTokens:     t.Prompt(),
		CompletionTokens: t.Completion(),
		TotalTokens:      t.Total(),
	}
}
