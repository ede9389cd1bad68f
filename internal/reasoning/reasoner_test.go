package reasoning

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/HendryAvila/sage/internal/config"
	"github.com/HendryAvila/sage/internal/semantic"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// stubService returns a canned completion or error.
type stubService struct {
	ready bool
	text  string
	err   error
	last  Request
	delay time.Duration
}

func (s *stubService) Ready() bool { return s.ready }

func (s *stubService) Complete(ctx context.Context, req Request) (string, error) {
	s.last = req
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.text, s.err
}

func fenced(body string) string {
	return "Here is my answer.\n```json\n" + body + "\n```\ntrailing words"
}

var allIntents = []string{"analyze", "explain", "suggest", "plan", "reflect", ""}

// ─── Primary path ────────────────────────────────────────────────────────────

func TestReason_ParsesModelCompletion(t *testing.T) {
	svc := &stubService{ready: true, text: fenced(
		`{"answer": "The auth module lives in internal/auth.", "actions": [{"tool": "docs_search", "params": {"query": "auth"}, "reason": "find docs"}, {"tool": "", "params": {}}]}`,
	)}
	r := New(svc, WithLogger(zaptest.NewLogger(t)))

	out := r.Reason(context.Background(), Input{
		Intent: "analyze",
		Query:  "Where is auth?",
		MemoryContext: []semantic.Hit{
			{Source: semantic.SourceFile, PathOrURL: "/p/auth.go", Score: 0.8, Snippet: "package auth"},
		},
		WorkingState: map[string]any{"lastQuery": "before"},
		Environment:  map[string]string{"editor": "vim"},
		Tools:        []string{"docs_search"},
	})

	assert.False(t, out.Fallback)
	assert.Equal(t, "The auth module lives in internal/auth.", out.Answer)
	require.Len(t, out.Actions, 1)
	assert.Equal(t, "docs_search", out.Actions[0].Tool)
	assert.Equal(t, "auth", out.Actions[0].Params["query"])

	assert.Contains(t, svc.last.Prompt, "/p/auth.go")
	assert.Contains(t, svc.last.Prompt, "lastQuery")
	assert.Contains(t, svc.last.Prompt, "- docs_search")
	assert.Contains(t, svc.last.Prompt, "## Environment\n- editor: vim")
	assert.Contains(t, svc.last.SystemInstructions, "```json")
}

func TestReason_AcceptsBareFence(t *testing.T) {
	svc := &stubService{ready: true, text: "```\n{\"answer\": \"ok\"}\n```"}
	out := New(svc).Reason(context.Background(), Input{Intent: "explain", Query: "q"})
	assert.False(t, out.Fallback)
	assert.Equal(t, "ok", out.Answer)
	assert.Empty(t, out.Actions)
}

func TestReason_FallsBackOnBadCompletions(t *testing.T) {
	tests := []struct {
		name string
		svc  *stubService
	}{
		{"service error", &stubService{ready: true, err: errors.New("503 unavailable")}},
		{"no fence", &stubService{ready: true, text: `{"answer": "unfenced"}`}},
		{"invalid json", &stubService{ready: true, text: fenced(`{"answer": `)}},
		{"empty answer", &stubService{ready: true, text: fenced(`{"answer": "  ", "actions": []}`)}},
		{"wrong shape", &stubService{ready: true, text: fenced(`["answer"]`)}},
		{"not ready", &stubService{ready: false, text: fenced(`{"answer": "unused"}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := New(tt.svc, WithLogger(zaptest.NewLogger(t))).Reason(context.Background(),
				Input{Intent: "analyze", Query: "List my indexed repositories"})
			assert.True(t, out.Fallback)
			assert.NotEmpty(t, out.Answer)
			assert.Equal(t, "repo_list", out.Actions[0].Tool)
		})
	}
}

func TestReason_ServiceTimeoutFallsBack(t *testing.T) {
	svc := &stubService{ready: true, text: fenced(`{"answer":"late"}`), delay: time.Second}
	r := New(svc, WithTimeout(20*time.Millisecond))

	out := r.Reason(context.Background(), Input{Intent: "plan", Query: "q"})

	assert.True(t, out.Fallback)
	assert.Contains(t, out.Reasoning, "service call failed")
}

// ─── Fallback ────────────────────────────────────────────────────────────────

func TestFallback_CompleteForEveryIntent(t *testing.T) {
	queries := []string{
		"List my indexed repositories",
		"Plan a refactor of the auth module",
		"Explain what this project does",
		"Draw a diagram of the services and search the web for the latest docs",
		"",
	}
	r := New(nil)
	for _, intent := range allIntents {
		for _, q := range queries {
			out := r.Reason(context.Background(), Input{Intent: intent, Query: q})
			assert.NotEmpty(t, strings.TrimSpace(out.Answer), "intent=%q query=%q", intent, q)
			assert.True(t, out.Fallback)
			assert.LessOrEqual(t, len(out.Actions), maxFallbackActions)
		}
	}
}

func TestFallback_RuleOrderAndCap(t *testing.T) {
	in := Input{
		Query:       "Draw a diagram, read the docs, init the project, search the web and list repositories",
		ProjectPath: "/p",
	}
	actions := fallbackActions(in)

	require.Len(t, actions, 3)
	assert.Equal(t, "visualizer_render", actions[0].Tool)
	assert.Equal(t, "docs_search", actions[1].Tool)
	assert.Equal(t, "project_init", actions[2].Tool)
	assert.Equal(t, "/p", actions[2].Params["path"])
}

func TestFallback_ShortKeywordsMatchWholeWords(t *testing.T) {
	assert.Empty(t, fallbackActions(Input{Query: "Why does the docker build fail"}))
	assert.Empty(t, fallbackActions(Input{Query: "Review the initial commit"}))
	assert.Empty(t, fallbackActions(Input{Query: "Add a graphql resolver"}))

	actions := fallbackActions(Input{Query: "Update the docs and graphs, then init"})
	require.Len(t, actions, 3)
	assert.Equal(t, "visualizer_render", actions[0].Tool)
	assert.Equal(t, "docs_search", actions[1].Tool)
	assert.Equal(t, "project_init", actions[2].Tool)
}

func TestFallback_KeywordsMatchWordPrefixes(t *testing.T) {
	assert.Empty(t, fallbackActions(Input{Query: "Explain what this project does"}))
	assert.Empty(t, fallbackActions(Input{Query: "Plan a refactor of the auth module"}))

	actions := fallbackActions(Input{Query: "Delegate this to a team of agents"})
	require.Len(t, actions, 1)
	assert.Equal(t, "agents_delegate", actions[0].Tool)
	assert.Equal(t, "Delegate this to a team of agents", actions[0].Params["task"])
}

func TestFallback_Deterministic(t *testing.T) {
	in := Input{
		Intent: "plan",
		Query:  "Plan a refactor of the auth module",
		MemoryContext: []semantic.Hit{
			{PathOrURL: "/p/auth.go", Title: "auth.go", Score: 0.5},
		},
		WorkingState: map[string]any{"b": 1, "a": 2, "lastIntent": "plan"},
	}
	r := New(nil)
	first := r.Reason(context.Background(), in)
	second := r.Reason(context.Background(), in)

	assert.Equal(t, first, second)
	assert.Contains(t, first.Answer, "Proposed steps")
	assert.Contains(t, first.Answer, "auth.go")
	assert.Contains(t, first.Answer, "a, b, lastIntent")
	assert.Contains(t, first.Answer, "Reduced capability")
}

func TestReason_TraceIsCapped(t *testing.T) {
	long := strings.Repeat("x", 10_000)
	svc := &stubService{ready: true, text: fenced(`{"answer": "short"}`) + long}
	out := New(svc, WithMaxTraceChars(100)).Reason(context.Background(), Input{Intent: "analyze", Query: "q"})

	assert.LessOrEqual(t, len(out.Reasoning), 103)
	assert.Equal(t, "short", out.Answer)
}

func TestNewGenAIService_RequiresKey(t *testing.T) {
	_, err := NewGenAIService(context.Background(), config.Reasoning{Model: "gemini-2.5-flash"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
