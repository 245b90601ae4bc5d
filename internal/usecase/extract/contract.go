package extract

import (
	"context"

	"github.com/chronolens/chronolens/internal/domain/llm"
)

// LLM invokes tool-calling chat completions.
type LLM interface {
	ToolCall(ctx context.Context, ep llm.Endpoint, call llm.ToolCall) (llm.ToolReply, error)
}
