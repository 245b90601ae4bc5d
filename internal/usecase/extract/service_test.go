package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chronolens/chronolens/internal/domain/llm"
	"github.com/chronolens/chronolens/internal/domain/query"
	"github.com/chronolens/chronolens/internal/domain/usage"
	"github.com/chronolens/chronolens/internal/valves"
)

// --- Mocks ---

type fakeLLM struct {
	reply llm.ToolReply
	err   error
	got   llm.ToolCall
}

func (f *fakeLLM) ToolCall(_ context.Context, _ llm.Endpoint, call llm.ToolCall) (llm.ToolReply, error) {
	f.got = call
	return f.reply, f.err
}

func argsReply(args string) llm.ToolReply {
	return llm.ToolReply{
		Args:   json.RawMessage(args),
		Tokens: usage.NewTokens(100, 20),
	}
}

func testValves(t *testing.T, overrides map[string]string) valves.Valves {
	t.Helper()
	store := valves.NewStoreWithLookup(func(string) (string, bool) { return "", false })
	v, err := store.Resolve(overrides)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return v
}

var ref = time.Date(2024, 11, 19, 12, 0, 0, 0, time.UTC)

// --- Tests ---

func TestBuild_ExtractsQuery(t *testing.T) {
	f := &fakeLLM{reply: argsReply(`{
		"content_type": "AUDIO",
		"from_time": "2024-11-17T12:00:00Z",
		"to_time": "2024-11-19T12:00:00Z"
	}`)}
	svc := New(f, zap.NewNop())

	q, tokens := svc.Build(context.Background(), "audio content from the last 2 days", ref, testValves(t, nil))

	if q.ContentType() != query.Audio {
		t.Errorf("ContentType() = %q, want %q", q.ContentType(), query.Audio)
	}
	if want := time.Date(2024, 11, 17, 12, 0, 0, 0, time.UTC); !q.From().Equal(want) {
		t.Errorf("From() = %v, want %v", q.From(), want)
	}
	if !q.To().Equal(ref) {
		t.Errorf("To() = %v, want %v", q.To(), ref)
	}
	if q.Limit() != 0 || q.Substring() != "" || q.Application() != "" {
		t.Errorf("Build() set filters %d/%q/%q, want none", q.Limit(), q.Substring(), q.Application())
	}
	if tokens.Total() != 120 {
		t.Errorf("tokens.Total() = %d, want 120", tokens.Total())
	}
}

func TestBuild_PromptCarriesReferenceTime(t *testing.T) {
	f := &fakeLLM{reply: argsReply(`{"content_type": "ALL"}`)}
	svc := New(f, zap.NewNop())

	svc.Build(context.Background(), "what did I work on?", ref, testValves(t, nil))

	if f.got.System != toolSystemMessage {
		t.Errorf("System = %q, want extraction system message", f.got.System)
	}
	if !strings.Contains(f.got.User, "USER MESSAGE: what did I work on?") {
		t.Errorf("User = %q, want embedded user message", f.got.User)
	}
	if !strings.Contains(f.got.User, "(CURRENT TIME: 2024-11-19T12:00:00Z)") {
		t.Errorf("User = %q, want reference time, not wall clock", f.got.User)
	}
	if f.got.Function.Name != toolName {
		t.Errorf("Function.Name = %q, want %q", f.got.Function.Name, toolName)
	}
	if f.got.Force {
		t.Error("Force = true, want false by default")
	}
}

func TestBuild_ForceToolCallingValve(t *testing.T) {
	f := &fakeLLM{reply: argsReply(`{"content_type": "ALL"}`)}
	svc := New(f, zap.NewNop())

	v := testValves(t, map[string]string{valves.NameForceToolCalling: "true"})
	svc.Build(context.Background(), "anything", ref, v)

	if !f.got.Force {
		t.Error("Force = false, want true")
	}
}

func TestBuild_DateOnlyBoundsExpand(t *testing.T) {
	f := &fakeLLM{reply: argsReply(`{
		"content_type": "OCR",
		"from_time": "2024-11-17",
		"to_time": "2024-11-18"
	}`)}
	svc := New(f, zap.NewNop())

	q, _ := svc.Build(context.Background(), "screen text from the 17th to the 18th", ref, testValves(t, nil))

	if want := time.Date(2024, 11, 17, 0, 0, 0, 0, time.UTC); !q.From().Equal(want) {
		t.Errorf("From() = %v, want start of day %v", q.From(), want)
	}
	if want := time.Date(2024, 11, 18, 23, 59, 59, 0, time.UTC); !q.To().Equal(want) {
		t.Errorf("To() = %v, want end of day %v", q.To(), want)
	}
}

func TestBuild_FallsBackToDefaultWindow(t *testing.T) {
	tests := []struct {
		name  string
		reply llm.ToolReply
		err   error
	}{
		{name: "llm error", err: errors.New("connection refused")},
		{name: "plain text answer", reply: llm.ToolReply{Content: "I cannot search for that."}},
		{name: "garbage json", reply: argsReply(`{"content_type": `)},
		{name: "unknown content type", reply: argsReply(`{"content_type": "VIDEO"}`)},
		{name: "negative limit", reply: argsReply(`{"content_type": "ALL", "limit": -2}`)},
		{name: "malformed timestamp", reply: argsReply(`{"content_type": "ALL", "from_time": "next tuesday"}`)},
		{name: "inverted range", reply: argsReply(`{"content_type": "ALL", "from_time": "2024-11-19T00:00:00Z", "to_time": "2024-11-17T00:00:00Z"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeLLM{reply: tt.reply, err: tt.err}
			svc := New(f, zap.NewNop())

			q, _ := svc.Build(context.Background(), "anything recent", ref, testValves(t, nil))

			want := query.Default(ref)
			if q.ContentType() != want.ContentType() || !q.From().Equal(want.From()) || !q.To().Equal(want.To()) {
				t.Errorf("Build() = %+v, want default window %+v", q, want)
			}
			if q.Limit() != 0 || q.Substring() != "" || q.Application() != "" {
				t.Errorf("Build() kept filters %d/%q/%q, want none", q.Limit(), q.Substring(), q.Application())
			}
		})
	}
}

func TestBuild_RecoversTextualToolCall(t *testing.T) {
	f := &fakeLLM{reply: llm.ToolReply{
		Content: `<function=activity_search>{"content_type": "OCR", "search_substring": "invoice"}`,
		Tokens:  usage.NewTokens(90, 30),
	}}
	svc := New(f, zap.NewNop())

	q, tokens := svc.Build(context.Background(), "find the invoice I saw", ref, testValves(t, nil))

	if q.ContentType() != query.OCR {
		t.Errorf("ContentType() = %q, want %q", q.ContentType(), query.OCR)
	}
	if q.Substring() != "invoice" {
		t.Errorf("Substring() = %q, want %q", q.Substring(), "invoice")
	}
	if tokens.Total() != 120 {
		t.Errorf("tokens.Total() = %d, want tokens kept on recovery", tokens.Total())
	}
}

func TestBuild_ClampsLimit(t *testing.T) {
	tests := []struct {
		name string
		raw  int
		want int
	}{
		{name: "in range passes through", raw: 10, want: 10},
		{name: "above max clamps", raw: 500, want: query.MaxLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeLLM{reply: argsReply(fmt.Sprintf(`{"content_type": "ALL", "limit": %d}`, tt.raw))}
			svc := New(f, zap.NewNop())

			q, _ := svc.Build(context.Background(), "everything", ref, testValves(t, nil))

			if q.Limit() != tt.want {
				t.Errorf("Limit() = %d, want %d", q.Limit(), tt.want)
			}
		})
	}
}

func TestRecoverCall(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "well formed",
			content: `<function=activity_search>{"content_type": "ALL"}`,
			want:    `{"content_type": "ALL"}`,
		},
		{
			name:    "trailing prose after json",
			content: `<function=activity_search>{"content_type": "ALL"} hope that helps`,
			want:    `{"content_type": "ALL"}`,
		},
		{
			name:    "leading whitespace",
			content: "  \n<function=activity_search>{\"limit\": 5}",
			want:    `{"limit": 5}`,
		},
		{name: "no prefix", content: `{"content_type": "ALL"}`, want: ""},
		{name: "wrong function", content: `<function=other_tool>{"a": 1}`, want: ""},
		{name: "no closing brace", content: `<function=activity_search>{"content_type": "ALL"`, want: ""},
		{name: "invalid json", content: `<function=activity_search>{content_type}`, want: ""},
		{name: "empty", content: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := recoverCall(tt.content)
			if string(got) != tt.want {
				t.Errorf("recoverCall() = %q, want %q", got, tt.want)
			}
		})
	}
}
