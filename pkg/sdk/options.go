package chronolens

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	valves       map[string]string
	replacements []Replacement

	budgetDaily   int64
	budgetMonthly int64
	budgetReject  bool

	inlet  Hook
	outlet Hook

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithValves sets the file-layer valve defaults. Environment variables and
// per-call overrides still take precedence on resolution.
func WithValves(valves map[string]string) Option {
	return optionFunc(func(c *clientConfig) {
		c.valves = valves
	})
}

// WithReplacement adds a literal substitution applied to retrieved text
// before it is injected into the conversation.
func WithReplacement(old, new string) Option {
	return optionFunc(func(c *clientConfig) {
		c.replacements = append(c.replacements, Replacement{Old: old, New: new})
	})
}

// WithBudget enables token budget tracking. Zero limits are unlimited.
// With reject set, requests past the limit fail with ErrTokenBudgetExceeded;
// otherwise they only log a warning.
func WithBudget(dailyTokens, monthlyTokens int64, reject bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.budgetDaily = dailyTokens
		c.budgetMonthly = monthlyTokens
		c.budgetReject = reject
	})
}

// WithInletHook installs a transform applied to the conversation before
// retrieval. A failing hook is logged and skipped.
func WithInletHook(h Hook) Option {
	return optionFunc(func(c *clientConfig) {
		c.inlet = h
	})
}

// WithOutletHook installs a transform applied to the outgoing conversation.
// A failing hook is logged and the conversation passes through unmodified.
func WithOutletHook(h Hook) Option {
	return optionFunc(func(c *clientConfig) {
		c.outlet = h
	})
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers client metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
