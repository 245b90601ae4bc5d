package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chronolens/chronolens/internal/domain"
	"github.com/chronolens/chronolens/internal/metrics"
)

// Action defines behavior when the token budget is exceeded.
type Action string

const (
	// ActionWarn logs a warning but allows the request.
	ActionWarn Action = "warn"
	// ActionReject blocks the request.
	ActionReject Action = "reject"
)

// Tracker is an in-memory token budget tracker with optional persistence.
// Hot path (Check) is in-memory only, no round-trip.
// Record updates in-memory first, then write-behind to store.
type Tracker struct {
	mu              sync.Mutex
	dailyTokens     int64
	monthlyTokens   int64
	dailyRequests   int64
	monthlyRequests int64
	dailyLimit      int64
	monthlyLimit    int64
	action          Action
	lastDayReset    time.Time
	lastMonthReset  time.Time
	store           CounterStore
	logger          *zap.Logger
}

// NewTracker creates a tracker with the given token limits. A zero limit
// means unlimited for that period.
func NewTracker(dailyLimit, monthlyLimit int64, action Action, logger *zap.Logger) *Tracker {
	now := time.Now().UTC()
	return &Tracker{
		dailyLimit:     dailyLimit,
		monthlyLimit:   monthlyLimit,
		action:         action,
		lastDayReset:   truncateToDay(now),
		lastMonthReset: truncateToMonth(now),
		logger:         logger,
	}
}

// WithStore attaches a persistence store and loads current counters.
func (t *Tracker) WithStore(ctx context.Context, store CounterStore) *Tracker {
	t.store = store
	t.loadFromStore(ctx)
	return t
}

func (t *Tracker) loadFromStore(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	load := func(key string, into *int64) {
		val, err := t.store.Get(ctx, key)
		if err != nil {
			t.logger.Warn("Failed to load usage counter from store", zap.String("key", key), zap.Error(err))
			return
		}
		*into = val
	}
	load(dailyKey("tokens", now), &t.dailyTokens)
	load(dailyKey("requests", now), &t.dailyRequests)
	load(monthlyKey("tokens", now), &t.monthlyTokens)
	load(monthlyKey("requests", now), &t.monthlyRequests)

	t.logger.Info("Usage counters loaded from store",
		zap.Int64("daily_tokens", t.dailyTokens),
		zap.Int64("monthly_tokens", t.monthlyTokens),
	)
}

func dailyKey(counter string, now time.Time) string {
	return fmt.Sprintf("%susage:daily:%s:%s", domain.KeyPrefix, counter, now.Format("2006-01-02"))
}

func monthlyKey(counter string, now time.Time) string {
	return fmt.Sprintf("%susage:monthly:%s:%s", domain.KeyPrefix, counter, now.Format("2006-01"))
}

// Check verifies the budget allows a new request. In-memory only (hot path).
func (t *Tracker) Check(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()

	dailyExceeded := t.dailyLimit > 0 && t.dailyTokens >= t.dailyLimit
	monthlyExceeded := t.monthlyLimit > 0 && t.monthlyTokens >= t.monthlyLimit

	if !dailyExceeded && !monthlyExceeded {
		return nil
	}

	if t.action == ActionReject {
		return domain.ErrTokenBudgetExceeded
	}

	// action=warn: log but allow the request through
	t.logger.Warn("Token budget exceeded",
		zap.Int64("daily_tokens", t.dailyTokens),
		zap.Int64("daily_limit", t.dailyLimit),
		zap.Int64("monthly_tokens", t.monthlyTokens),
		zap.Int64("monthly_limit", t.monthlyLimit),
	)
	return nil
}

// Record registers one model API call and its consumed tokens.
// Updates in-memory counters, then write-behind to store (if attached).
func (t *Tracker) Record(tokens int64) {
	t.mu.Lock()
	t.resetIfNeeded()
	t.dailyTokens += tokens
	t.monthlyTokens += tokens
	t.dailyRequests++
	t.monthlyRequests++
	t.updateGauges()
	store := t.store
	now := time.Now().UTC()
	t.mu.Unlock()

	if store == nil {
		return
	}

	// Write-behind: fire-and-forget INCRBY to store.
	// Uses background context so store writes don't block the caller.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	persist := func(key string, val int64) {
		if err := store.IncrBy(ctx, key, val); err != nil {
			t.logger.Warn("Failed to persist usage counter", zap.String("key", key), zap.Error(err))
		}
	}
	persist(dailyKey("tokens", now), tokens)
	persist(monthlyKey("tokens", now), tokens)
	persist(dailyKey("requests", now), 1)
	persist(monthlyKey("requests", now), 1)
}

// updateGauges exports remaining budget. Callers must hold mu.
func (t *Tracker) updateGauges() {
	if t.dailyLimit > 0 {
		metrics.BudgetTokensRemaining.WithLabelValues("day").Set(float64(clampZero(t.dailyLimit - t.dailyTokens)))
	}
	if t.monthlyLimit > 0 {
		metrics.BudgetTokensRemaining.WithLabelValues("month").Set(float64(clampZero(t.monthlyLimit - t.monthlyTokens)))
	}
}

// RemainingDaily returns tokens left in the daily budget (-1 if unlimited).
func (t *Tracker) RemainingDaily() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()
	if t.dailyLimit == 0 {
		return -1 // unlimited
	}
	return clampZero(t.dailyLimit - t.dailyTokens)
}

// RemainingMonthly returns tokens left in the monthly budget (-1 if unlimited).
func (t *Tracker) RemainingMonthly() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()
	if t.monthlyLimit == 0 {
		return -1 // unlimited
	}
	return clampZero(t.monthlyLimit - t.monthlyTokens)
}

// DailyLimit returns the daily token cap.
func (t *Tracker) DailyLimit() int64 { return t.dailyLimit }

// MonthlyLimit returns the monthly token cap.
func (t *Tracker) MonthlyLimit() int64 { return t.monthlyLimit }

// DailyUsed returns tokens consumed today.
func (t *Tracker) DailyUsed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.dailyTokens
}

// MonthlyUsed returns tokens consumed this month.
func (t *Tracker) MonthlyUsed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.monthlyTokens
}

// DailyRequests returns model API calls made today.
func (t *Tracker) DailyRequests() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.dailyRequests
}

// MonthlyRequests returns model API calls made this month.
func (t *Tracker) MonthlyRequests() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.monthlyRequests
}

// resetIfNeeded zeroes counters when the day or month rolls over.
func (t *Tracker) resetIfNeeded() {
	now := time.Now().UTC()
	today := truncateToDay(now)
	thisMonth := truncateToMonth(now)

	if today.After(t.lastDayReset) {
		t.dailyTokens = 0
		t.dailyRequests = 0
		t.lastDayReset = today
	}
	if thisMonth.After(t.lastMonthReset) {
		t.monthlyTokens = 0
		t.monthlyRequests = 0
		t.lastMonthReset = thisMonth
	}
}

func clampZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
