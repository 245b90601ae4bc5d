package health

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/chronolens/chronolens/internal/domain/llm"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks against the configured backends.
type Service struct {
	valves ValveResolver
	index  IndexChecker
	llm    LLMChecker
	kv     KVPinger
}

// New creates a Service. kv can be nil.
func New(valves ValveResolver, index IndexChecker, llm LLMChecker, kv KVPinger) *Service {
	return &Service{valves: valves, index: index, llm: llm, kv: kv}
}

// Check probes all components in parallel. A valve resolution failure means
// no backend target is known, so it reports total failure on its own.
func (s *Service) Check(ctx context.Context) Report {
	v, err := s.valves.Resolve(nil)
	if err != nil {
		return Report{
			Status: Unhealthy,
			Checks: map[string]CheckResult{"valves": CheckError},
		}
	}

	var indexErr, llmErr, kvErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		indexErr = s.index.Health(gctx, v.IndexURL())
		return nil
	})
	g.Go(func() error {
		llmErr = s.llm.Health(gctx, llm.Endpoint{
			BaseURL: v.LLMAPIBaseURL(),
			APIKey:  v.LLMAPIKey(),
			Model:   v.ResponseModel(),
		})
		return nil
	})
	if s.kv != nil {
		g.Go(func() error {
			kvErr = s.kv.Ping(gctx)
			return nil
		})
	}
	_ = g.Wait()

	checks := map[string]CheckResult{
		"index": resultOf(indexErr),
		"llm":   resultOf(llmErr),
	}
	if s.kv != nil {
		checks["kv"] = resultOf(kvErr)
	}

	status := Healthy
	for _, c := range checks {
		if c == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}

func resultOf(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
