package chronolens

import (
	"context"

	"github.com/chronolens/chronolens/internal/domain/convo"
	"github.com/chronolens/chronolens/internal/domain/query"
	"github.com/chronolens/chronolens/internal/domain/record"
	domusage "github.com/chronolens/chronolens/internal/domain/usage"
	healthuc "github.com/chronolens/chronolens/internal/usecase/health"
	pipelineuc "github.com/chronolens/chronolens/internal/usecase/pipeline"
	"github.com/chronolens/chronolens/internal/valves"
)

// --- pipelineUseCase mock ---

type mockPipelineUC struct {
	runFn       func(ctx context.Context, conv convo.Conversation, overrides map[string]string) (pipelineuc.Result, error)
	runStreamFn func(ctx context.Context, conv convo.Conversation, overrides map[string]string) (*pipelineuc.StreamRun, error)
	inletFn     func(ctx context.Context, conv convo.Conversation, overrides map[string]string) (pipelineuc.Result, error)
	outletFn    func(ctx context.Context, conv convo.Conversation) convo.Conversation
}

func (m *mockPipelineUC) Run(
	ctx context.Context, conv convo.Conversation, overrides map[string]string,
) (pipelineuc.Result, error) {
	return m.runFn(ctx, conv, overrides)
}

func (m *mockPipelineUC) RunStream(
	ctx context.Context, conv convo.Conversation, overrides map[string]string,
) (*pipelineuc.StreamRun, error) {
	return m.runStreamFn(ctx, conv, overrides)
}

func (m *mockPipelineUC) Inlet(
	ctx context.Context, conv convo.Conversation, overrides map[string]string,
) (pipelineuc.Result, error) {
	return m.inletFn(ctx, conv, overrides)
}

func (m *mockPipelineUC) Outlet(ctx context.Context, conv convo.Conversation) convo.Conversation {
	return m.outletFn(ctx, conv)
}

// --- searchUseCase mock ---

type mockSearchUC struct {
	searchFn func(ctx context.Context, baseURL string, q query.Query, offset int) ([]record.Record, int, error)
}

func (m *mockSearchUC) Search(
	ctx context.Context, baseURL string, q query.Query, offset int,
) ([]record.Record, int, error) {
	return m.searchFn(ctx, baseURL, q, offset)
}

// --- healthUseCase mock ---

type mockHealthUC struct {
	report healthuc.Report
}

func (m *mockHealthUC) Check(_ context.Context) healthuc.Report { return m.report }

// --- usageUseCase mock ---

type mockUsageUC struct {
	reportFn func(ctx context.Context, period domusage.Period) domusage.Report
}

func (m *mockUsageUC) GetReport(ctx context.Context, period domusage.Period) domusage.Report {
	return m.reportFn(ctx, period)
}

// --- helpers ---

func noEnv(string) (string, bool) { return "", false }

func testStore() *valves.Store { return valves.NewStoreWithLookup(noEnv) }

func testClient(
	pipe pipelineUseCase,
	searcher searchUseCase,
	healthSvc healthUseCase,
	usageSvc usageUseCase,
) *Client {
	return &Client{
		valves:    testStore(),
		pipe:      pipe,
		searcher:  searcher,
		healthSvc: healthSvc,
		usageSvc:  usageSvc,
	}
}
