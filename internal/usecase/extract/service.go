// Package extract turns a natural-language chat turn into a structured
// activity query via a tool-calling model.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chronolens/chronolens/internal/domain"
	"github.com/chronolens/chronolens/internal/domain/llm"
	"github.com/chronolens/chronolens/internal/domain/query"
	"github.com/chronolens/chronolens/internal/domain/usage"
	"github.com/chronolens/chronolens/internal/valves"
)

// Service builds structured queries from chat turns.
type Service struct {
	llm    LLM
	logger *zap.Logger
}

// New creates an extraction service.
func New(llm LLM, logger *zap.Logger) *Service {
	return &Service{llm: llm, logger: logger}
}

// Build extracts a query from userQuery. Relative time phrases resolve
// against ref, never wall clock. Build never fails: any extraction or
// validation problem falls back to the default two-day window so the
// retrieval stage always has a usable query.
func (s *Service) Build(ctx context.Context, userQuery string, ref time.Time, v valves.Valves) (query.Query, usage.Tokens) {
	q, tokens, err := s.extract(ctx, userQuery, ref, v)
	if err != nil {
		s.logger.Warn("query extraction failed, using default window", zap.Error(err))
		return query.Default(ref), tokens
	}
	return q, tokens
}

func (s *Service) extract(ctx context.Context, userQuery string, ref time.Time, v valves.Valves) (query.Query, usage.Tokens, error) {
	ep := llm.Endpoint{
		BaseURL: v.LLMAPIBaseURL(),
		APIKey:  v.LLMAPIKey(),
		Model:   v.ToolModel(),
	}
	call := llm.ToolCall{
		System:   toolSystemMessage,
		User:     fmt.Sprintf(userMessageFormat, userQuery, ref.UTC().Format(referenceTimeLayout)),
		Function: searchFunction,
		Force:    v.ForceToolCalling(),
	}

	reply, err := s.llm.ToolCall(ctx, ep, call)
	if err != nil {
		return query.Query{}, usage.Tokens{}, err
	}

	args := reply.Args
	if len(args) == 0 {
		args = recoverCall(reply.Content)
	}
	if len(args) == 0 {
		return query.Query{}, reply.Tokens, fmt.Errorf("assistant answered in plain text: %w", domain.ErrNoToolCall)
	}

	q, err := parseArgs(args, ref)
	if err != nil {
		return query.Query{}, reply.Tokens, err
	}
	return q, reply.Tokens, nil
}

// recoverCall salvages a tool invocation the model wrote as plain text,
// e.g. `<function=activity_search>{"content_type": "OCR"}`. Returns nil
// when the content carries no recoverable call.
func recoverCall(content string) json.RawMessage {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, callPrefix) {
		return nil
	}
	end := strings.LastIndex(trimmed, "}")
	if end < len(callPrefix) {
		return nil
	}
	raw := trimmed[len(callPrefix) : end+1]
	if !json.Valid([]byte(raw)) {
		return nil
	}
	return json.RawMessage(raw)
}

type toolArgs struct {
	ContentType     string `json:"content_type"`
	FromTime        string `json:"from_time"`
	ToTime          string `json:"to_time"`
	Limit           *int   `json:"limit"`
	SearchSubstring string `json:"search_substring"`
	Application     string `json:"application"`
}

func parseArgs(raw json.RawMessage, ref time.Time) (query.Query, error) {
	var args toolArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return query.Query{}, fmt.Errorf("unmarshal tool arguments: %w", err)
	}

	from, err := parseBound(args.FromTime, "T00:00:00Z")
	if err != nil {
		return query.Query{}, err
	}
	to, err := parseBound(args.ToTime, "T23:59:59Z")
	if err != nil {
		return query.Query{}, err
	}

	limit := 0
	if args.Limit != nil {
		limit = *args.Limit
	}

	return query.New(
		query.ContentType(strings.ToLower(args.ContentType)),
		from, to, limit,
		args.SearchSubstring,
		args.Application,
	)
}

// parseBound parses a tool-supplied timestamp. Date-only values expand to
// the start or end of that day (fill), matching how users phrase day ranges.
func parseBound(value, fill string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if !strings.Contains(value, "T") {
		value += fill
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	// Some models omit the zone suffix; treat those as UTC.
	t, err := time.Parse("2006-01-02T15:04:05", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", value, err)
	}
	return t.UTC(), nil
}
