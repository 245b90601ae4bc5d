// Package openai calls OpenAI-compatible chat completion APIs for tool
// call extraction, final answers, and token streaming.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/chronolens/chronolens/internal/domain"
	"github.com/chronolens/chronolens/internal/domain/convo"
	"github.com/chronolens/chronolens/internal/domain/llm"
	"github.com/chronolens/chronolens/internal/domain/usage"
	"github.com/chronolens/chronolens/internal/metrics"
)

// Metric label values for the request kind.
const (
	opToolCall   = "tool_call"
	opCompletion = "completion"
	opStream     = "stream"
)

// Client is a chat completion client. The endpoint (base URL, key, model)
// is passed per call because it comes from valves resolved at request time.
type Client struct {
	// Shared transport without a global timeout: streams stay open far
	// longer than any fixed deadline. Callers bound requests via ctx.
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a chat completion client.
func NewClient(logger *zap.Logger) *Client {
	return &Client{
		http:   &http.Client{},
		logger: logger,
	}
}

func (c *Client) api(ep llm.Endpoint) *openai.Client {
	cfg := openai.DefaultConfig(ep.APIKey)
	cfg.BaseURL = ep.BaseURL
	cfg.HTTPClient = c.http
	return openai.NewClientWithConfig(cfg)
}

// ToolCall asks the model to extract structured arguments by calling the
// supplied function. When the model answers with plain text instead of a
// tool invocation, the text is returned in ToolReply.Content and Args is nil.
func (c *Client) ToolCall(ctx context.Context, ep llm.Endpoint, call llm.ToolCall) (llm.ToolReply, error) {
	req := openai.ChatCompletionRequest{
		Model: ep.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: call.System},
			{Role: openai.ChatMessageRoleUser, Content: call.User},
		},
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        call.Function.Name,
				Description: call.Function.Description,
				Parameters:  call.Function.Parameters,
			},
		}},
	}
	if call.Force {
		req.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: call.Function.Name},
		}
	}

	start := time.Now()

	resp, err := c.api(ep).CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(opToolCall, ep.Model, "error").Inc()
		metrics.LLMErrorsTotal.WithLabelValues(opToolCall, ep.Model, "api_error").Inc()
		return llm.ToolReply{}, parseAPIError(err)
	}

	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(opToolCall, ep.Model, "error").Inc()
		metrics.LLMErrorsTotal.WithLabelValues(opToolCall, ep.Model, "empty_response").Inc()
		return llm.ToolReply{}, fmt.Errorf("empty completion response: %w", domain.ErrCompletionFailed)
	}

	metrics.LLMRequestsTotal.WithLabelValues(opToolCall, ep.Model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(opToolCall, ep.Model).Observe(duration.Seconds())
	recordTokens(ep.Model, resp.Usage)

	reply := llm.ToolReply{
		Content: resp.Choices[0].Message.Content,
		Tokens:  usage.NewTokens(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}
	if calls := resp.Choices[0].Message.ToolCalls; len(calls) > 0 {
		reply.Args = json.RawMessage(calls[0].Function.Arguments)
	}
	return reply, nil
}

// Complete runs a non-streaming chat completion over the conversation.
func (c *Client) Complete(ctx context.Context, ep llm.Endpoint, conv convo.Conversation, opts llm.CompletionOptions) (string, usage.Tokens, error) {
	req := completionRequest(ep, conv, opts)

	start := time.Now()

	resp, err := c.api(ep).CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(opCompletion, ep.Model, "error").Inc()
		metrics.LLMErrorsTotal.WithLabelValues(opCompletion, ep.Model, "api_error").Inc()
		return "", usage.Tokens{}, parseAPIError(err)
	}

	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(opCompletion, ep.Model, "error").Inc()
		metrics.LLMErrorsTotal.WithLabelValues(opCompletion, ep.Model, "empty_response").Inc()
		return "", usage.Tokens{}, fmt.Errorf("empty completion response: %w", domain.ErrCompletionFailed)
	}

	metrics.LLMRequestsTotal.WithLabelValues(opCompletion, ep.Model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(opCompletion, ep.Model).Observe(duration.Seconds())
	recordTokens(ep.Model, resp.Usage)

	tokens := usage.NewTokens(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, tokens, nil
}

// Stream starts a streaming chat completion. The returned stream yields
// content chunks as the model produces them.
func (c *Client) Stream(ctx context.Context, ep llm.Endpoint, conv convo.Conversation, opts llm.CompletionOptions) (llm.TokenStream, error) {
	req := completionRequest(ep, conv, opts)
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	start := time.Now()

	stream, err := c.api(ep).CreateChatCompletionStream(ctx, req)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(opStream, ep.Model, "error").Inc()
		metrics.LLMErrorsTotal.WithLabelValues(opStream, ep.Model, "api_error").Inc()
		return nil, parseAPIError(err)
	}

	return &tokenStream{stream: stream, model: ep.Model, start: start}, nil
}

// Health verifies API availability via ListModels (free endpoint).
func (c *Client) Health(ctx context.Context, ep llm.Endpoint) error {
	if _, err := c.api(ep).ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func completionRequest(ep llm.Endpoint, conv convo.Conversation, opts llm.CompletionOptions) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(conv)+1)
	if opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.System,
		})
	}
	for _, m := range conv {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:    ep.Model,
		Messages: messages,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	return req
}

func recordTokens(model string, u openai.Usage) {
	if u.TotalTokens > 0 {
		metrics.LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(u.PromptTokens))
		metrics.LLMTokensTotal.WithLabelValues(model, "total").Add(float64(u.TotalTokens))
	}
}

// tokenStream adapts the SDK stream to llm.TokenStream. Recv skips frames
// without content (role preludes, the usage-only tail) so callers see only
// text chunks.
type tokenStream struct {
	stream *openai.ChatCompletionStream
	model  string
	start  time.Time
	tokens usage.Tokens
	closed bool
}

func (s *tokenStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.finish("success")
			return "", io.EOF
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.finish("canceled")
				return "", err
			}
			s.finish("error")
			metrics.LLMErrorsTotal.WithLabelValues(opStream, s.model, "stream_error").Inc()
			return "", parseAPIError(err)
		}

		if resp.Usage != nil {
			s.tokens = usage.NewTokens(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if content := resp.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}
}

func (s *tokenStream) Close() error {
	s.finish("canceled")
	return s.stream.Close()
}

// Usage returns the final token accounting. Zero until the stream ends.
func (s *tokenStream) Usage() usage.Tokens { return s.tokens }

// finish records request metrics exactly once per stream.
func (s *tokenStream) finish(status string) {
	if s.closed {
		return
	}
	s.closed = true
	metrics.LLMRequestsTotal.WithLabelValues(opStream, s.model, status).Inc()
	metrics.LLMRequestDuration.WithLabelValues(opStream, s.model).Observe(time.Since(s.start).Seconds())
	if !s.tokens.IsZero() {
		metrics.LLMTokensTotal.WithLabelValues(s.model, "prompt").Add(float64(s.tokens.Prompt()))
		metrics.LLMTokensTotal.WithLabelValues(s.model, "total").Add(float64(s.tokens.Total()))
	}
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrCompletionFailed for correct 502
// mapping; context cancellation passes through untouched.
func parseAPIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	wrap := domain.ErrCompletionFailed

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("llm API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("llm API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("llm API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("llm request failed: %v: %w", err, wrap)
}

// extractDetail extracts the "detail" field from a JSON error body
// (LiteLLM proxy error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
