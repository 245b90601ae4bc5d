// Package pipeline orchestrates one chat turn: valve resolution, query
// extraction, retrieval, aggregation, context injection, completion, and
// the outlet transform, in streaming or non-streaming mode.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chronolens/chronolens/internal/domain"
	"github.com/chronolens/chronolens/internal/domain/convo"
	"github.com/chronolens/chronolens/internal/domain/grounding"
	"github.com/chronolens/chronolens/internal/domain/llm"
	"github.com/chronolens/chronolens/internal/domain/query"
	"github.com/chronolens/chronolens/internal/domain/usage"
	"github.com/chronolens/chronolens/internal/logger"
	"github.com/chronolens/chronolens/internal/metrics"
	"github.com/chronolens/chronolens/internal/usecase/aggregate"
	"github.com/chronolens/chronolens/internal/valves"
)

// Pipeline stage labels for duration metrics.
const (
	stageExtract   = "extract"
	stageRetrieve  = "retrieve"
	stageAggregate = "aggregate"
	stageInject    = "inject"
	stageComplete  = "complete"
)

// Run mode labels for the runs counter.
const (
	modeCompletion = "completion"
	modeContext    = "context"
	modeStream     = "stream"
)

// Deps carries the pipeline's collaborators. Usage, Hooks, Replacements,
// and Now are optional.
type Deps struct {
	Valves       ValveResolver
	Builder      QueryBuilder
	Searcher     Searcher
	Aggregator   Aggregator
	Completer    Completer
	Usage        UsageRecorder
	Hooks        Hooks
	Replacements []aggregate.Replacement
	Logger       *zap.Logger
	Now          func() time.Time
}

// Service runs chat turns through the pipeline. Each call is an independent
// run; the service itself holds no per-request state.
type Service struct {
	deps Deps
}

// New creates a pipeline service.
func New(deps Deps) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}
}

// Result is the outcome of one pipeline run.
type Result struct {
	RunID        uuid.UUID
	Conversation convo.Conversation
	Response     string
	Query        query.Query
	ResultsUsed  int
	Truncated    bool
	Tokens       usage.Tokens
}

// runState carries one run between stages.
type runState struct {
	runID    uuid.UUID
	valves   valves.Valves
	conv     convo.Conversation
	query    query.Query
	grounded grounding.Context
	tokens   usage.Tokens
	log      *zap.Logger
}

// Run executes a full non-streaming chat turn. With the GET_RESPONSE valve
// off, the aggregated context itself is returned as the assistant message
// and no completion call is made.
func (s *Service) Run(ctx context.Context, conv convo.Conversation, overrides map[string]string) (Result, error) {
	st, err := s.prepare(ctx, conv, overrides)
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues(modeCompletion, "error").Inc()
		return Result{}, err
	}

	mode := modeContext
	var response string
	if st.valves.GetResponse() {
		mode = modeCompletion
		response, err = s.complete(ctx, st)
		if err != nil {
			metrics.PipelineRunsTotal.WithLabelValues(mode, "error").Inc()
			return Result{}, err
		}
	} else {
		response = st.grounded.Text()
	}

	final := s.Outlet(ctx, st.conv.AppendAssistant(response))

	metrics.PipelineRunsTotal.WithLabelValues(mode, "success").Inc()
	return s.result(st, final, response), nil
}

// StreamRun is an in-flight streaming chat turn. Chunks yields response
// chunks in backend emission order over an unbuffered channel, so at most
// one chunk is in flight and backpressure reaches the backend read. The
// channel closes when the stream ends for any reason; Wait reports how.
type StreamRun struct {
	RunID       uuid.UUID
	Query       query.Query
	ResultsUsed int
	Truncated   bool

	chunks chan string
	g      *errgroup.Group
}

// Chunks returns the response chunk channel.
func (r *StreamRun) Chunks() <-chan string { return r.chunks }

// Wait blocks until the stream is drained and returns the terminal error,
// if any. Caller cancellation is a clean termination, not an error.
func (r *StreamRun) Wait() error { return r.g.Wait() }

// RunStream executes a streaming chat turn. Cancelling ctx stops the run:
// no further chunks are emitted and the backend stream is closed.
func (s *Service) RunStream(ctx context.Context, conv convo.Conversation, overrides map[string]string) (*StreamRun, error) {
	st, err := s.prepare(ctx, conv, overrides)
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues(modeStream, "error").Inc()
		return nil, err
	}

	run := &StreamRun{
		RunID:       st.runID,
		Query:       st.query,
		ResultsUsed: st.grounded.Items(),
		Truncated:   st.grounded.Truncated(),
		chunks:      make(chan string),
	}

	if !st.valves.GetResponse() {
		// Context-only mode: the rendered block is the whole response.
		g, gctx := errgroup.WithContext(ctx)
		run.g = g
		text := st.grounded.Text()
		g.Go(func() error {
			defer close(run.chunks)
			select {
			case run.chunks <- text:
				metrics.PipelineRunsTotal.WithLabelValues(modeStream, "success").Inc()
				return nil
			case <-gctx.Done():
				metrics.StreamCancellationsTotal.Inc()
				metrics.PipelineRunsTotal.WithLabelValues(modeStream, "canceled").Inc()
				return nil
			}
		})
		return run, nil
	}

	if s.deps.Usage != nil {
		if err := s.deps.Usage.Check(ctx); err != nil {
			metrics.PipelineRunsTotal.WithLabelValues(modeStream, "error").Inc()
			return nil, err
		}
	}

	stream, err := s.deps.Completer.Stream(ctx, s.responseEndpoint(st.valves), st.conv, llm.CompletionOptions{
		System:    finalResponseSystemMessage,
		MaxTokens: maxCompletionTokens,
	})
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues(modeStream, "error").Inc()
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	run.g = g
	g.Go(func() error {
		defer close(run.chunks)
		defer stream.Close()
		start := time.Now()
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				observeStage(stageComplete, start)
				s.recordUsage(stream.Usage())
				metrics.PipelineRunsTotal.WithLabelValues(modeStream, "success").Inc()
				return nil
			}
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					metrics.StreamCancellationsTotal.Inc()
					metrics.PipelineRunsTotal.WithLabelValues(modeStream, "canceled").Inc()
					return nil
				}
				metrics.PipelineRunsTotal.WithLabelValues(modeStream, "error").Inc()
				return err
			}

			select {
			case run.chunks <- chunk:
			case <-gctx.Done():
				metrics.StreamCancellationsTotal.Inc()
				metrics.PipelineRunsTotal.WithLabelValues(modeStream, "canceled").Inc()
				return nil
			}
		}
	})
	return run, nil
}

// Inlet runs the pre-completion half of the pipeline (valve resolution,
// extraction, retrieval, aggregation, injection) and returns the
// transformed conversation for a host that drives its own completion.
func (s *Service) Inlet(ctx context.Context, conv convo.Conversation, overrides map[string]string) (Result, error) {
	st, err := s.prepare(ctx, conv, overrides)
	if err != nil {
		return Result{}, err
	}
	return s.result(st, st.conv, ""), nil
}

// Outlet applies the host outlet hook to an outgoing conversation. A hook
// failure is logged and the conversation is returned unmodified.
func (s *Service) Outlet(ctx context.Context, conv convo.Conversation) convo.Conversation {
	if s.deps.Hooks.Outlet == nil {
		return conv
	}
	out, err := s.deps.Hooks.Outlet(ctx, conv)
	if err != nil {
		s.deps.Logger.Warn("outlet hook failed, returning response unmodified", zap.Error(err))
		return conv
	}
	return out
}

// OutletSummary renders the footnote the outlet appends to the assistant
// reply when the host passes back the run metadata it received from Inlet:
// the result count and the search parameters as indented JSON.
func OutletSummary(params json.RawMessage, resultsUsed int) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, params, "", "  "); err != nil {
		buf.Reset()
		buf.Write(params)
	}
	return fmt.Sprintf(outletSummaryFormat, resultsUsed, buf.String())
}

// prepare runs every stage up to and including injection. Valve resolution
// happens first so a bad configuration fails before any network call.
func (s *Service) prepare(ctx context.Context, conv convo.Conversation, overrides map[string]string) (*runState, error) {
	v, err := s.deps.Valves.Resolve(overrides)
	if err != nil {
		return nil, err
	}

	if err := conv.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New()
	log := logger.WithRun(s.deps.Logger, runID.String())

	if s.deps.Hooks.Inlet != nil {
		transformed, err := s.deps.Hooks.Inlet(ctx, conv)
		if err != nil {
			log.Warn("inlet hook failed, continuing with original conversation", zap.Error(err))
		} else {
			conv = transformed
		}
	}

	userQuery, _ := conv.LastUserMessage()
	ref := s.deps.Now().UTC()

	start := time.Now()
	q, tokens := s.deps.Builder.Build(ctx, userQuery, ref, v)
	observeStage(stageExtract, start)
	s.recordUsage(tokens)

	start = time.Now()
	records, _, err := s.deps.Searcher.Search(ctx, v.IndexURL(), q, 0)
	observeStage(stageRetrieve, start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Degrade to an empty result set; the turn must survive a dead index.
		metrics.RetrievalFailuresTotal.WithLabelValues(failureReason(err)).Inc()
		log.Warn("retrieval failed, continuing with empty results", zap.Error(err))
		records = nil
	}

	start = time.Now()
	grounded := s.deps.Aggregator.Aggregate(records, aggregate.Options{
		Budget:       v.ContextBudget(),
		PerItemCap:   aggregate.DefaultPerItemCap,
		UTCOffset:    v.UTCOffset(),
		Replacements: s.deps.Replacements,
	})
	observeStage(stageAggregate, start)

	start = time.Now()
	injected := injectedMessage(userQuery, q, grounded)
	conv = conv.WithContextBeforeLastUser(injected)
	observeStage(stageInject, start)

	log.Debug("prepared pipeline run",
		zap.String("content_type", string(q.ContentType())),
		zap.Int("results_used", grounded.Items()),
		zap.Bool("truncated", grounded.Truncated()),
	)

	return &runState{
		runID:    runID,
		valves:   v,
		conv:     conv,
		query:    q,
		grounded: grounded,
		tokens:   tokens,
		log:      log,
	}, nil
}

func (s *Service) complete(ctx context.Context, st *runState) (string, error) {
	if s.deps.Usage != nil {
		if err := s.deps.Usage.Check(ctx); err != nil {
			return "", err
		}
	}

	start := time.Now()
	answer, tokens, err := s.deps.Completer.Complete(ctx, s.responseEndpoint(st.valves), st.conv, llm.CompletionOptions{
		System:    finalResponseSystemMessage,
		MaxTokens: maxCompletionTokens,
	})
	observeStage(stageComplete, start)
	if err != nil {
		return "", err
	}

	st.tokens = st.tokens.Add(tokens)
	s.recordUsage(tokens)
	return answer, nil
}

func (s *Service) responseEndpoint(v valves.Valves) llm.Endpoint {
	return llm.Endpoint{
		BaseURL: v.LLMAPIBaseURL(),
		APIKey:  v.LLMAPIKey(),
		Model:   v.ResponseModel(),
	}
}

func (s *Service) recordUsage(tokens usage.Tokens) {
	if s.deps.Usage == nil || tokens.IsZero() {
		return
	}
	s.deps.Usage.Record(int64(tokens.Total()))
}

func (s *Service) result(st *runState, conv convo.Conversation, response string) Result {
	return Result{
		RunID:        st.runID,
		Conversation: conv,
		Response:     response,
		Query:        st.query,
		ResultsUsed:  st.grounded.Items(),
		Truncated:    st.grounded.Truncated(),
		Tokens:       st.tokens,
	}
}

// injectedMessage renders the synthetic grounding turn.
func injectedMessage(userQuery string, q query.Query, grounded grounding.Context) string {
	params, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		params = []byte("{}")
	}
	return fmt.Sprintf(injectedMessageFormat, userQuery, params, grounded.Text())
}

func failureReason(err error) string {
	if errors.Is(err, domain.ErrIndexRejected) {
		return "rejected"
	}
	return "unavailable"
}

func observeStage(stage string, start time.Time) {
	metrics.PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
