package usage

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodTotal Period = "total"
)

// Tokens is the token accounting of a single model API call.
type Tokens struct {
	prompt     int
	completion int
}

// NewTokens creates a token count from a model API usage block.
func NewTokens(prompt, completion int) Tokens {
	return Tokens{prompt: prompt, completion: completion}
}

// Prompt returns prompt tokens consumed.
func (t Tokens) Prompt() int { return t.prompt }

// Completion returns completion tokens consumed.
func (t Tokens) Completion() int { return t.completion }

// Total returns the combined token count.
func (t Tokens) Total() int { return t.prompt + t.completion }

// Add returns the sum of two counts.
func (t Tokens) Add(o Tokens) Tokens {
	return Tokens{prompt: t.prompt + o.prompt, completion: t.completion + o.completion}
}

// IsZero reports whether no tokens were counted.
func (t Tokens) IsZero() bool { return t.prompt == 0 && t.completion == 0 }

// Budget tracks model API token budget state.
type Budget struct {
	tokensLimit     int64
	tokensRemaining int64
	isExhausted     bool
	resetsAt        int64 // unix millis, converted to ISO 8601 at transport layer
}

// NewBudget creates a Budget snapshot.
func NewBudget(limit, remaining int64, isExhausted bool, resetsAt int64) Budget {
	return Budget{
		tokensLimit:     limit,
		tokensRemaining: remaining,
		isExhausted:     isExhausted,
		resetsAt:        resetsAt,
	}
}

// TokensLimit returns the token cap.
func (b Budget) TokensLimit() int64 { return b.tokensLimit }

// TokensRemaining returns tokens left.
func (b Budget) TokensRemaining() int64 { return b.tokensRemaining }

// IsExhausted reports whether the budget is spent.
func (b Budget) IsExhausted() bool { return b.isExhausted }

// ResetsAt returns the reset timestamp (unix millis).
func (b Budget) ResetsAt() int64 { return b.resetsAt }

// Report is a model API usage report for a time period.
type Report struct {
	period      Period
	periodStart int64
	periodEnd   int64
	requests    int64
	tokens      int64
	budget      Budget
}

// NewReport creates a usage report.
func NewReport(period Period, start, end, requests, tokens int64, b Budget) Report {
	return Report{
		period:      period,
		periodStart: start,
		periodEnd:   end,
		requests:    requests,
		tokens:      tokens,
		budget:      b,
	}
}

// Period returns the aggregation granularity.
func (r *Report) Period() Period { return r.period }

// PeriodStart returns the period start timestamp (unix millis).
func (r *Report) PeriodStart() int64 { return r.periodStart }

// PeriodEnd returns the period end timestamp (unix millis).
func (r *Report) PeriodEnd() int64 { return r.periodEnd }

// Requests returns the number of model API calls.
func (r *Report) Requests() int64 { return r.requests }

// Tokens returns the total tokens consumed.
func (r *Report) Tokens() int64 { return r.tokens }

// Budget returns the budget status.
func (r *Report) Budget() Budget { return r.budget }
