package chronolens

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chronolens/chronolens/internal/domain/convo"
	"github.com/chronolens/chronolens/internal/domain/query"
	"github.com/chronolens/chronolens/internal/domain/record"
	domusage "github.com/chronolens/chronolens/internal/domain/usage"
	"github.com/chronolens/chronolens/internal/transport/activity"
	"github.com/chronolens/chronolens/internal/transport/openai"
	"github.com/chronolens/chronolens/internal/usecase/aggregate"
	"github.com/chronolens/chronolens/internal/usecase/extract"
	healthuc "github.com/chronolens/chronolens/internal/usecase/health"
	pipelineuc "github.com/chronolens/chronolens/internal/usecase/pipeline"
	usageuc "github.com/chronolens/chronolens/internal/usecase/usage"
	"github.com/chronolens/chronolens/internal/valves"
)

// Internal interfaces so tests can substitute the wiring.
type pipelineUseCase interface {
	Run(ctx context.Context, conv convo.Conversation, overrides map[string]string) (pipelineuc.Result, error)
	RunStream(ctx context.Context, conv convo.Conversation, overrides map[string]string) (*pipelineuc.StreamRun, error)
	Inlet(ctx context.Context, conv convo.Conversation, overrides map[string]string) (pipelineuc.Result, error)
	Outlet(ctx context.Context, conv convo.Conversation) convo.Conversation
}

type searchUseCase interface {
	Search(ctx context.Context, baseURL string, q query.Query, offset int) ([]record.Record, int, error)
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

type usageUseCase interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}

// Client is the chronolens SDK entry point. It runs the whole pipeline in
// process; only the activity index and the model API are remote.
type Client struct {
	valves    *valves.Store
	pipe      pipelineUseCase
	searcher  searchUseCase
	healthSvc healthUseCase
	usageSvc  usageUseCase
	obs       *observer
}

// New creates a chronolens Client.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	store := valves.NewStore()
	if len(cfg.valves) > 0 {
		if err := store.SetFileDefaults(cfg.valves); err != nil {
			return nil, fmt.Errorf("chronolens: invalid valves: %w", err)
		}
	}

	zlog := zap.NewNop()
	llmClient := openai.NewClient(zlog)
	idxClient := activity.NewClient(zlog)

	var tracker *usageuc.Tracker
	if cfg.budgetDaily > 0 || cfg.budgetMonthly > 0 {
		action := usageuc.ActionWarn
		if cfg.budgetReject {
			action = usageuc.ActionReject
		}
		tracker = usageuc.NewTracker(cfg.budgetDaily, cfg.budgetMonthly, action, zlog)
	}

	// Pass nil interface (not typed nil pointer!) if no budget is configured.
	var recorder pipelineuc.UsageRecorder
	var reader usageuc.BudgetReader
	if tracker != nil {
		recorder = tracker
		reader = tracker
	}

	pipe := pipelineuc.New(pipelineuc.Deps{
		Valves:       store,
		Builder:      extract.New(llmClient, zlog),
		Searcher:     idxClient,
		Aggregator:   aggregate.New(zlog),
		Completer:    llmClient,
		Usage:        recorder,
		Hooks:        hooksFromConfig(cfg),
		Replacements: replacementsToInternal(cfg.replacements),
		Logger:       zlog,
	})

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		valves:    store,
		pipe:      pipe,
		searcher:  idxClient,
		healthSvc: healthuc.New(store, idxClient, llmClient, nil),
		usageSvc:  usageuc.New(reader),
		obs:       obs,
	}, nil
}

// Valves returns the resolved valve snapshot: built-in defaults, file-layer
// values, and environment overrides merged.
func (c *Client) Valves() (map[string]string, error) {
	v, err := c.valves.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("chronolens: resolve valves: %w", err)
	}
	return v.Snapshot(), nil
}

// SetValves merges updates into the file-layer valve defaults.
func (c *Client) SetValves(updates map[string]string) error {
	if err := c.valves.UpdateDefaults(updates); err != nil {
		return fmt.Errorf("chronolens: update valves: %w", err)
	}
	return nil
}

func hooksFromConfig(cfg *clientConfig) pipelineuc.Hooks {
	var hooks pipelineuc.Hooks
	if cfg.inlet != nil {
		hooks.Inlet = hookToInternal(cfg.inlet)
	}
	if cfg.outlet != nil {
		hooks.Outlet = hookToInternal(cfg.outlet)
	}
	return hooks
}

func hookToInternal(h Hook) func(context.Context, convo.Conversation) (convo.Conversation, error) {
	return func(ctx context.Context, conv convo.Conversation) (convo.Conversation, error) {
		out, err := h(ctx, messagesFromConversation(conv))
		if err != nil {
			return nil, err
		}
		return conversationFromMessages(out), nil
	}
}

func replacementsToInternal(reps []Replacement) []aggregate.Replacement {
	if len(reps) == 0 {
		return nil
	}
	out := make([]aggregate.Replacement, len(reps))
	for i, r := range reps {
		out[i] = aggregate.Replacement{Old: r.Old, New: r.New}
	}
	return out
}

func conversationFromMessages(msgs []Message) convo.Conversation {
	conv := make(convo.Conversation, len(msgs))
	for i, m := range msgs {
		conv[i] = convo.Message{Role: convo.Role(m.Role), Content: m.Content}
	}
	return conv
}

func messagesFromConversation(conv convo.Conversation) []Message {
	msgs := make([]Message, len(conv))
	for i, m := range conv {
		msgs[i] = Message{Role: string(m.Role), Content: m.Content}
	}
	return msgs
}

func queryToInfo(q query.Query) QueryInfo {
	return QueryInfo{
		ContentType: string(q.ContentType()),
		From:        q.From(),
		To:          q.To(),
		Limit:       q.Limit(),
		Substring:   q.Substring(),
		Application: q.Application(),
	}
}
