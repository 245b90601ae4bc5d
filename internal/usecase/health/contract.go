package health

import (
	"context"

	"github.com/chronolens/chronolens/internal/domain/llm"
	"github.com/chronolens/chronolens/internal/valves"
)

// ValveResolver supplies the currently configured backend targets.
type ValveResolver interface {
	Resolve(overrides map[string]string) (valves.Valves, error)
}

// IndexChecker checks activity index availability.
type IndexChecker interface {
	Health(ctx context.Context, baseURL string) error
}

// LLMChecker checks completion backend availability.
type LLMChecker interface {
	Health(ctx context.Context, ep llm.Endpoint) error
}

// KVPinger checks key-value store availability.
type KVPinger interface {
	Ping(ctx context.Context) error
}
