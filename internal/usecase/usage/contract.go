package usage

import "context"

// BudgetReader provides read-only access to token budget state.
type BudgetReader interface {
	DailyLimit() int64
	MonthlyLimit() int64
	DailyUsed() int64
	MonthlyUsed() int64
	DailyRequests() int64
	MonthlyRequests() int64
	RemainingDaily() int64
	RemainingMonthly() int64
}

// CounterStore is the persistence interface for usage counters.
// Implementations must be idempotent (IncrBy can be called repeatedly).
type CounterStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}
