package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chronolens/chronolens/internal/domain"
	"github.com/chronolens/chronolens/internal/domain/query"
	"github.com/chronolens/chronolens/internal/domain/record"
	domusage "github.com/chronolens/chronolens/internal/domain/usage"
	healthuc "github.com/chronolens/chronolens/internal/usecase/health"
	pipelineuc "github.com/chronolens/chronolens/internal/usecase/pipeline"
	usageuc "github.com/chronolens/chronolens/internal/usecase/usage"
	"github.com/chronolens/chronolens/internal/valves"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Searcher retrieves activity records from the index for direct queries.
type Searcher interface {
	Search(ctx context.Context, baseURL string, q query.Query, offset int) ([]record.Record, int, error)
}

// Server exposes the pipeline over HTTP.
type Server struct {
	pipeline      *pipelineuc.Service
	searcher      Searcher
	valves        *valves.Store
	usage         *usageuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	pipeline *pipelineuc.Service,
	searcher Searcher,
	valveStore *valves.Store,
	usage *usageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		pipeline: pipeline,
		searcher: searcher,
		valves:   valveStore,
		usage:    usage,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		valveErrorHandler,
		sentinelHandler(domain.ErrEmptyConversation, http.StatusBadRequest, codeEmptyConversation),
		sentinelHandler(domain.ErrTokenBudgetExceeded, http.StatusTooManyRequests, codeBudgetExceeded),
		sentinelHandler(domain.ErrIndexRejected, http.StatusBadRequest, codeIndexRejected),
		sentinelHandler(domain.ErrIndexUnavailable, http.StatusBadGateway, codeIndexUnavailable),
		sentinelHandler(domain.ErrCompletionFailed, http.StatusBadGateway, codeCompletionFailed),
	}
	return s
}

// Mount registers all routes on r.
func (s *Server) Mount(r chi.Router) {
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/pipe", s.Pipe)
		r.Post("/pipe/stream", s.PipeStream)
		r.Post("/filter/inlet", s.FilterInlet)
		r.Post("/filter/outlet", s.FilterOutlet)
		r.Get("/search", s.Search)
		r.Get("/valves", s.GetValves)
		r.Post("/valves", s.UpdateValves)
		r.Get("/usage", s.GetUsage)
	})
}

// Pipe handles POST /api/v1/pipe.
func (s *Server) Pipe(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePipeRequest(w, r)
	if !ok {
		return
	}

	res, err := s.pipeline.Run(r.Context(), toConversation(req.Messages), req.Valves)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pipeResultToDTO(res))
}

// PipeStream handles POST /api/v1/pipe/stream. The response is a server-sent
// event stream: one meta event, content chunks as data events, and a [DONE]
// sentinel. Errors before the first byte are plain JSON; errors mid-stream
// arrive as an error event.
func (s *Server) PipeStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePipeRequest(w, r)
	if !ok {
		return
	}

	run, err := s.pipeline.RunStream(r.Context(), toConversation(req.Messages), req.Valves)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		for range run.Chunks() {
		}
		_ = run.Wait()
		writeError(w, http.StatusInternalServerError, codeInternalError, "streaming not supported")
		return
	}

	_ = sse.event("meta", streamMeta{
		RunID:       run.RunID.String(),
		Query:       marshalQuery(run.Query),
		ResultsUsed: run.ResultsUsed,
		Truncated:   run.Truncated,
	})

	// Drain the channel even after a write failure so the producer can finish.
	writeFailed := false
	for chunk := range run.Chunks() {
		if writeFailed {
			continue
		}
		if err := sse.data(streamChunk{Content: chunk}); err != nil {
			s.logger.Debug("stream write failed, abandoning client", zap.Error(err))
			writeFailed = true
		}
	}

	if err := run.Wait(); err != nil {
		_ = sse.event("error", streamFailure{
			Code:    streamErrorCode(err),
			Message: safeDomainMessage(err),
		})
		return
	}
	if !writeFailed {
		sse.done()
	}
}

// FilterInlet handles POST /api/v1/filter/inlet. It runs retrieval and
// injection only, returning the transformed conversation for a host that
// drives its own completion.
func (s *Server) FilterInlet(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePipeRequest(w, r)
	if !ok {
		return
	}

	res, err := s.pipeline.Inlet(r.Context(), toConversation(req.Messages), req.Valves)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, filterResponse{
		Messages:    fromConversation(res.Conversation),
		Query:       marshalQuery(res.Query),
		ResultsUsed: res.ResultsUsed,
		Truncated:   res.Truncated,
	})
}

// FilterOutlet handles POST /api/v1/filter/outlet. When the request echoes
// the run metadata from the inlet response, the summary footnote is appended
// to the assistant reply before the outlet hook runs. Outlet hook failures
// are swallowed upstream, so this never fails on valid input.
func (s *Server) FilterOutlet(w http.ResponseWriter, r *http.Request) {
	var req outletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "messages are required")
		return
	}

	conv := toConversation(req.Messages)
	if len(req.Query) > 0 {
		conv = conv.AppendToLastAssistant(pipelineuc.OutletSummary(req.Query, req.ResultsUsed))
	}

	out := s.pipeline.Outlet(r.Context(), conv)
	writeJSON(w, http.StatusOK, filterResponse{Messages: fromConversation(out)})
}

// Search handles GET /api/v1/search: a direct structured query against the
// activity index, bypassing extraction.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	q, offset, err := bindSearchQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	v, err := s.valves.Resolve(nil)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	records, total, err := s.searcher.Search(r.Context(), v.IndexURL(), q, offset)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, recordsToDTO(records, total))
}

// GetValves handles GET /api/v1/valves.
func (s *Server) GetValves(w http.ResponseWriter, r *http.Request) {
	v, err := s.valves.Resolve(nil)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, valvesResponse{Valves: v.Snapshot()})
}

// UpdateValves handles POST /api/v1/valves. Updates land in the file layer
// of the store; environment overrides still win on resolution.
func (s *Server) UpdateValves(w http.ResponseWriter, r *http.Request) {
	var req valvesResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Valves) == 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "valves are required")
		return
	}

	if err := s.valves.UpdateDefaults(req.Valves); err != nil {
		s.handleDomainError(w, err)
		return
	}

	v, err := s.valves.Resolve(nil)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, valvesResponse{Valves: v.Snapshot()})
}

// GetUsage handles GET /api/v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period := domusage.PeriodMonth
	switch r.URL.Query().Get("period") {
	case "day":
		period = domusage.PeriodDay
	case "total":
		period = domusage.PeriodTotal
	}

	report := s.usage.GetReport(r.Context(), period)

	resp := usageResponse{
		Period: string(report.Period()),
		Usage: usageMetricsDTO{
			Requests: report.Requests(),
			Tokens:   report.Tokens(),
		},
		Budget: budgetStatusDTO{
			TokensLimit:     report.Budget().TokensLimit(),
			TokensRemaining: report.Budget().TokensRemaining(),
			IsExhausted:     report.Budget().IsExhausted(),
		},
	}

	if report.PeriodStart() > 0 {
		start := time.UnixMilli(report.PeriodStart()).UTC()
		end := time.UnixMilli(report.PeriodEnd()).UTC()
		resp.PeriodStartAt = &start
		resp.PeriodEndAt = &end
	}
	if report.Budget().ResetsAt() > 0 {
		resetsAt := time.UnixMilli(report.Budget().ResetsAt()).UTC()
		resp.Budget.ResetsAt = &resetsAt
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) decodePipeRequest(w http.ResponseWriter, r *http.Request) (pipeRequest, bool) {
	var req pipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return pipeRequest{}, false
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "messages are required")
		return pipeRequest{}, false
	}
	return req, true
}

// bindSearchQuery parses and validates GET /search query parameters.
func bindSearchQuery(r *http.Request) (query.Query, int, error) {
	params := r.URL.Query()

	var (
		contentType string
		fromRaw     string
		toRaw       string
		substring   string
		application string
		limit       int
		offset      int
	)
	for name, dest := range map[string]any{
		"content_type":     &contentType,
		"from_time":        &fromRaw,
		"to_time":          &toRaw,
		"search_substring": &substring,
		"application":      &application,
		"limit":            &limit,
		"offset":           &offset,
	} {
		if err := runtime.BindQueryParameter("form", true, false, name, params, dest); err != nil {
			return query.Query{}, 0, err
		}
	}

	from, err := parseTimeBound(fromRaw, "T00:00:00Z")
	if err != nil {
		return query.Query{}, 0, err
	}
	to, err := parseTimeBound(toRaw, "T23:59:59Z")
	if err != nil {
		return query.Query{}, 0, err
	}
	if offset < 0 {
		offset = 0
	}

	q, err := query.New(query.ContentType(strings.ToLower(contentType)), from, to, limit, substring, application)
	if err != nil {
		return query.Query{}, 0, err
	}
	return q, offset, nil
}

// parseTimeBound accepts RFC 3339, a zoneless timestamp read as UTC, or a
// bare date expanded with fill to the edge of the day.
func parseTimeBound(raw, fill string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if !strings.Contains(raw, "T") {
		raw += fill
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.ParseInLocation("2006-01-02T15:04:05", raw, time.UTC)
	if err != nil {
		return time.Time{}, errors.New("invalid timestamp: " + raw)
	}
	return ts, nil
}

func streamErrorCode(err error) errorCode {
	switch {
	case errors.Is(err, domain.ErrTokenBudgetExceeded):
		return codeBudgetExceeded
	case errors.Is(err, domain.ErrCompletionFailed):
		return codeCompletionFailed
	default:
		return codeInternalError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidValves,
		domain.ErrEmptyConversation,
		domain.ErrTokenBudgetExceeded,
		domain.ErrIndexRejected,
		domain.ErrIndexUnavailable,
		domain.ErrCompletionFailed,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// valveErrorHandler handles ErrInvalidValves, naming the offending valve when known.
func valveErrorHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrInvalidValves) {
		return false
	}
	var ve *domain.ValveError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":    codeInvalidValves,
			"message": msg,
			"valve":   ve.Name,
			"reason":  ve.Reason,
		})
		return true
	}
	writeError(w, http.StatusBadRequest, codeInvalidValves, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
