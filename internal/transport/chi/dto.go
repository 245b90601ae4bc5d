package chi

import (
	"encoding/json"
	"time"

	"github.com/chronolens/chronolens/internal/domain/convo"
	"github.com/chronolens/chronolens/internal/domain/query"
	"github.com/chronolens/chronolens/internal/domain/record"
	"github.com/chronolens/chronolens/internal/domain/usage"
	"github.com/chronolens/chronolens/internal/usecase/pipeline"
)

func marshalQuery(q query.Query) json.RawMessage {
	b, err := json.Marshal(q)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// errorCode is the machine-readable error class in error responses.
type errorCode string

const (
	codeBadRequest        errorCode = "bad_request"
	codeUnauthorized      errorCode = "unauthorized"
	codeInvalidValves     errorCode = "invalid_valves"
	codeEmptyConversation errorCode = "empty_conversation"
	codeBudgetExceeded    errorCode = "budget_exceeded"
	codeIndexRejected     errorCode = "index_rejected"
	codeIndexUnavailable  errorCode = "index_unavailable"
	codeCompletionFailed  errorCode = "completion_failed"
	codeInternalError     errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

type messageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toConversation(msgs []messageDTO) convo.Conversation {
	conv := make(convo.Conversation, len(msgs))
	for i, m := range msgs {
		conv[i] = convo.Message{Role: convo.Role(m.Role), Content: m.Content}
	}
	return conv
}

func fromConversation(conv convo.Conversation) []messageDTO {
	msgs := make([]messageDTO, len(conv))
	for i, m := range conv {
		msgs[i] = messageDTO{Role: string(m.Role), Content: m.Content}
	}
	return msgs
}

type pipeRequest struct {
	Messages []messageDTO      `json:"messages"`
	Valves   map[string]string `json:"valves,omitempty"`
}

// outletRequest carries the response conversation plus the run metadata the
// host got back from the inlet call, echoed verbatim.
type outletRequest struct {
	Messages    []messageDTO    `json:"messages"`
	Query       json.RawMessage `json:"query,omitempty"`
	ResultsUsed int             `json:"results_used,omitempty"`
}

type tokenUsageDTO struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func tokenUsageToDTO(t usage.Tokens) tokenUsageDTO {
	return tokenUsageDTO{
		PromptTokens:     t.Prompt(),
		CompletionTokens: t.Completion(),
		TotalTokens:      t.Total(),
	}
}

type pipeResponse struct {
	RunID       string          `json:"run_id"`
	Response    string          `json:"response"`
	Messages    []messageDTO    `json:"messages"`
	Query       json.RawMessage `json:"query"`
	ResultsUsed int             `json:"results_used"`
	Truncated   bool            `json:"truncated"`
	Usage       tokenUsageDTO   `json:"usage"`
}

func pipeResultToDTO(res pipeline.Result) pipeResponse {
	return pipeResponse{
		RunID:       res.RunID.String(),
		Response:    res.Response,
		Messages:    fromConversation(res.Conversation),
		Query:       marshalQuery(res.Query),
		ResultsUsed: res.ResultsUsed,
		Truncated:   res.Truncated,
		Usage:       tokenUsageToDTO(res.Tokens),
	}
}

type filterResponse struct {
	Messages    []messageDTO    `json:"messages"`
	Query       json.RawMessage `json:"query,omitempty"`
	ResultsUsed int             `json:"results_used,omitempty"`
	Truncated   bool            `json:"truncated,omitempty"`
}

type searchItemDTO struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	Text       string    `json:"text"`
	Source     string    `json:"source,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	AppName    string    `json:"app_name,omitempty"`
	WindowName string    `json:"window_name,omitempty"`
	DeviceName string    `json:"device_name,omitempty"`
	FilePath   string    `json:"file_path,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
}

type searchResponseDTO struct {
	Results []searchItemDTO `json:"results"`
	Total   int             `json:"total"`
}

func recordsToDTO(records []record.Record, total int) searchResponseDTO {
	items := make([]searchItemDTO, len(records))
	for i, r := range records {
		items[i] = searchItemDTO{
			ID:         r.ID(),
			Kind:       string(r.Kind()),
			Text:       r.Text(),
			Source:     r.Source(),
			Timestamp:  r.Timestamp(),
			AppName:    r.AppName(),
			WindowName: r.WindowName(),
			DeviceName: r.DeviceName(),
			FilePath:   r.FilePath(),
			Tags:       r.Tags(),
		}
	}
	return searchResponseDTO{Results: items, Total: total}
}

type valvesResponse struct {
	Valves map[string]string `json:"valves"`
}

type usageMetricsDTO struct {
	Requests int64 `json:"requests"`
	Tokens   int64 `json:"tokens"`
}

type budgetStatusDTO struct {
	TokensLimit     int64      `json:"tokens_limit"`
	TokensRemaining int64      `json:"tokens_remaining"`
	IsExhausted     bool       `json:"is_exhausted"`
	ResetsAt        *time.Time `json:"resets_at,omitempty"`
}

type usageResponse struct {
	Period        string          `json:"period"`
	Usage         usageMetricsDTO `json:"usage"`
	Budget        budgetStatusDTO `json:"budget"`
	PeriodStartAt *time.Time      `json:"period_start_at,omitempty"`
	PeriodEndAt   *time.Time      `json:"period_end_at,omitempty"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
