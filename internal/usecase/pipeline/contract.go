package pipeline

import (
	"context"
	"time"

	"github.com/chronolens/chronolens/internal/domain/convo"
	"github.com/chronolens/chronolens/internal/domain/grounding"
	"github.com/chronolens/chronolens/internal/domain/llm"
	"github.com/chronolens/chronolens/internal/domain/query"
	"github.com/chronolens/chronolens/internal/domain/record"
	"github.com/chronolens/chronolens/internal/domain/usage"
	"github.com/chronolens/chronolens/internal/usecase/aggregate"
	"github.com/chronolens/chronolens/internal/valves"
)

// ValveResolver resolves the layered runtime configuration per request.
type ValveResolver interface {
	Resolve(overrides map[string]string) (valves.Valves, error)
}

// QueryBuilder extracts a structured query from a chat turn. Must not fail:
// malformed extractions fall back to the default window.
type QueryBuilder interface {
	Build(ctx context.Context, userQuery string, ref time.Time, v valves.Valves) (query.Query, usage.Tokens)
}

// Searcher retrieves activity records from the index.
type Searcher interface {
	Search(ctx context.Context, baseURL string, q query.Query, offset int) ([]record.Record, int, error)
}

// Aggregator packs records into a budget-bounded context block.
type Aggregator interface {
	Aggregate(records []record.Record, opts aggregate.Options) grounding.Context
}

// Completer runs chat completions against the response model.
type Completer interface {
	Complete(ctx context.Context, ep llm.Endpoint, conv convo.Conversation, opts llm.CompletionOptions) (string, usage.Tokens, error)
	Stream(ctx context.Context, ep llm.Endpoint, conv convo.Conversation, opts llm.CompletionOptions) (llm.TokenStream, error)
}

// UsageRecorder enforces and records token budgets.
type UsageRecorder interface {
	Check(ctx context.Context) error
	Record(tokens int64)
}

// Hooks are host integration points around the completion call. Inlet runs
// on the incoming conversation before retrieval; Outlet runs on the outgoing
// conversation before it reaches the end user. A failing hook is logged and
// skipped, never fatal.
type Hooks struct {
	Inlet  func(ctx context.Context, conv convo.Conversation) (convo.Conversation, error)
	Outlet func(ctx context.Context, conv convo.Conversation) (convo.Conversation, error)
}
