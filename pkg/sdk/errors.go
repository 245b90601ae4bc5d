package chronolens

import "github.com/chronolens/chronolens/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidValves       = domain.ErrInvalidValves
	ErrEmptyConversation   = domain.ErrEmptyConversation
	ErrNoToolCall          = domain.ErrNoToolCall
	ErrIndexUnavailable    = domain.ErrIndexUnavailable
	ErrIndexRejected       = domain.ErrIndexRejected
	ErrCompletionFailed    = domain.ErrCompletionFailed
	ErrTokenBudgetExceeded = domain.ErrTokenBudgetExceeded
)
