package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/HendryAvila/sage/internal/config"
	"github.com/HendryAvila/sage/internal/reasoning"
	"github.com/HendryAvila/sage/internal/router"
	"github.com/HendryAvila/sage/internal/semantic"
	"github.com/HendryAvila/sage/internal/workmem"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// proposingService always proposes the same actions, whatever the intent.
type proposingService struct {
	completion string
}

func (proposingService) Ready() bool { return true }

func (s proposingService) Complete(context.Context, reasoning.Request) (string, error) {
	return s.completion, nil
}

// everything proposes one action per category.
const everything = "```json\n" + `{"answer": "Model answer.", "actions": [
	{"tool": "repo_list", "params": {}},
	{"tool": "docs_search", "params": {"query": "auth"}},
	{"tool": "web_research", "params": {"query": "auth"}},
	{"tool": "project_init", "params": {"path": "/tmp/p"}},
	{"tool": "agents_delegate", "params": {"task": "t"}},
	{"tool": "visualizer_render", "params": {"subject": "s"}}
]}` + "\n```"

type panickingService struct{}

func (panickingService) Ready() bool { return true }

func (panickingService) Complete(context.Context, reasoning.Request) (string, error) {
	panic("reasoning exploded")
}

func stubEntry(name string, cat router.Category, calls *atomic.Int32) router.Entry {
	return router.Entry{
		Tool: mcp.NewTool(name,
			mcp.WithString("query"), mcp.WithString("path"),
			mcp.WithString("task"), mcp.WithString("subject"),
		),
		Handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if calls != nil {
				calls.Add(1)
			}
			return mcp.NewToolResultText(name + " ok"), nil
		},
		Category: cat,
	}
}

func testRegistry(calls *atomic.Int32) *router.Registry {
	reg := router.NewRegistry()
	reg.MustRegister(stubEntry("repo_list", router.CategoryRepository, calls))
	reg.MustRegister(stubEntry("docs_search", router.CategoryDocumentation, calls))
	reg.MustRegister(stubEntry("web_research", router.CategoryWebResearch, calls))
	reg.MustRegister(stubEntry("project_init", router.CategoryProjectInit, calls))
	reg.MustRegister(stubEntry("agents_delegate", router.CategoryMultiAgent, calls))
	reg.MustRegister(stubEntry("visualizer_render", router.CategoryVisualizer, calls))
	return reg
}

func allCategories() config.Categories {
	return config.Categories{
		Repository: true, Documentation: true, WebResearch: true,
		ProjectInit: true, MultiAgent: true, Visualizer: true,
	}
}

func newTestOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	base := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithRouter(router.New(testRegistry(nil))),
		WithCategories(config.Default().Categories),
	}
	return New(append(base, opts...)...)
}

func boolPtr(b bool) *bool { return &b }

func newTestMemory(t *testing.T) (*semantic.Memory, string) {
	t.Helper()
	vectors, err := semantic.NewSQLiteVectors(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	project := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, "README.md"),
		[]byte("# Billing\n\nThe billing service computes invoices and applies tax rules."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(project, "auth.go"),
		[]byte("package auth\n\n// Authenticate checks a session token against the user store.\nfunc Authenticate(token string) bool { return token != \"\" }\n"), 0o644))

	return semantic.New(config.Default().SemanticMemory, vectors, semantic.NewHashEmbedder(256)), project
}

// ─── Scenarios ───────────────────────────────────────────────────────────────

func TestScenarioA_ListRepositories(t *testing.T) {
	o := newTestOrchestrator(t)

	resp, err := o.Handle(context.Background(),
		Query{Intent: IntentAnalyze, Text: "List my indexed repositories"},
		Context{SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, KindResponse, resp.Kind)
	assert.Equal(t, "ANALYZE", resp.Title)
	assert.Contains(t, resp.UsedTools, "repo_list")
	assert.NotEmpty(t, resp.Text)
	assert.True(t, resp.Meta.Fallback)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "repo_list ok", resp.Data[0].Result)
}

func TestScenarioB_PlanIsStrategy(t *testing.T) {
	o := newTestOrchestrator(t)

	resp, err := o.Handle(context.Background(),
		Query{Intent: IntentPlan, Text: "Plan a refactor of the auth module"},
		Context{SessionID: "s2"})
	require.NoError(t, err)

	assert.Equal(t, KindStrategy, resp.Kind)
	assert.Equal(t, "PLAN", resp.Title)
	assert.NotEmpty(t, resp.Text)
}

func TestScenarioC_ExplainWithoutProject(t *testing.T) {
	o := newTestOrchestrator(t)

	resp, err := o.Handle(context.Background(),
		Query{Intent: IntentExplain, Text: "Explain what this project does"},
		Context{SessionID: "s3"})
	require.NoError(t, err)

	assert.NotNil(t, resp.MemoryHits)
	assert.Empty(t, resp.MemoryHits)
	assert.NotNil(t, resp.UsedTools)
	assert.Empty(t, resp.UsedTools)
	assert.NotEmpty(t, resp.Text)
	assert.Equal(t, KindResponse, resp.Kind)
}

func TestKindAndTitleMapping(t *testing.T) {
	o := newTestOrchestrator(t)
	want := map[Intent]Kind{
		IntentAnalyze: KindResponse,
		IntentExplain: KindResponse,
		IntentSuggest: KindResponse,
		IntentPlan:    KindStrategy,
		IntentReflect: KindInsight,
		IntentNone:    KindResponse,
	}
	for intent, kind := range want {
		resp, err := o.Handle(context.Background(), Query{Intent: intent, Text: "q"}, Context{SessionID: "k"})
		require.NoError(t, err)
		assert.Equal(t, kind, resp.Kind, "intent %q", intent)
		assert.Equal(t, strings.ToUpper(string(intent)), resp.Title)
	}
}

// ─── Safety boundary and policy ──────────────────────────────────────────────

func TestSafetyBoundary_AnswerOnlyIntentsNeverRoute(t *testing.T) {
	var calls atomic.Int32
	o := New(
		WithReasoner(reasoning.New(proposingService{completion: everything})),
		WithRouter(router.New(testRegistry(&calls))),
		WithCategories(allCategories()),
	)

	for _, intent := range []Intent{IntentExplain, IntentSuggest, IntentNone} {
		resp, err := o.Handle(context.Background(), Query{Intent: intent, Text: "do everything"}, Context{SessionID: "safe"})
		require.NoError(t, err)
		assert.Empty(t, resp.UsedTools, "intent %q", intent)
		assert.Equal(t, "Model answer.", resp.Text)
	}
	assert.Zero(t, calls.Load())

	resp, err := o.Handle(context.Background(), Query{Intent: IntentAnalyze, Text: "do everything"}, Context{SessionID: "safe"})
	require.NoError(t, err)
	assert.Len(t, resp.UsedTools, 6)
}

func TestMaxDepth_CapsRoutedActions(t *testing.T) {
	var calls atomic.Int32
	o := New(
		WithReasoner(reasoning.New(proposingService{completion: everything})),
		WithRouter(router.New(testRegistry(&calls))),
		WithCategories(allCategories()),
	)

	resp, err := o.Handle(context.Background(),
		Query{Intent: IntentAnalyze, Text: "do everything", MaxDepth: 2},
		Context{SessionID: "depth"})
	require.NoError(t, err)
	assert.Equal(t, []string{"repo_list", "docs_search"}, resp.UsedTools)
	assert.Equal(t, int32(2), calls.Load())
	assert.False(t, resp.Meta.Degraded)
}

// recordingService captures the last prompt it was given.
type recordingService struct {
	prompt *string
}

func (recordingService) Ready() bool { return true }

func (s recordingService) Complete(_ context.Context, req reasoning.Request) (string, error) {
	*s.prompt = req.Prompt
	return "```json\n{\"answer\": \"ok\"}\n```", nil
}

func TestEnvironment_ReachesReasoning(t *testing.T) {
	var prompt string
	o := newTestOrchestrator(t, WithReasoner(reasoning.New(recordingService{prompt: &prompt})))

	_, err := o.Handle(context.Background(),
		Query{Intent: IntentExplain, Text: "how do I run the tests"},
		Context{SessionID: "env", Environment: map[string]string{"os": "linux", "editor": "vim"}})
	require.NoError(t, err)
	assert.Contains(t, prompt, "- editor: vim\n- os: linux")
}

func TestPolicyGating_DisabledCategoriesNeverUsed(t *testing.T) {
	for _, cat := range router.AllCategories() {
		t.Run(string(cat), func(t *testing.T) {
			cats := allCategories()
			switch cat {
			case router.CategoryRepository:
				cats.Repository = false
			case router.CategoryDocumentation:
				cats.Documentation = false
			case router.CategoryWebResearch:
				cats.WebResearch = false
			case router.CategoryProjectInit:
				cats.ProjectInit = false
			case router.CategoryMultiAgent:
				cats.MultiAgent = false
			case router.CategoryVisualizer:
				cats.Visualizer = false
			}
			reg := testRegistry(nil)
			o := New(
				WithReasoner(reasoning.New(proposingService{completion: everything})),
				WithRouter(router.New(reg)),
				WithCategories(cats),
			)

			resp, err := o.Handle(context.Background(), Query{Intent: IntentPlan, Text: "go"}, Context{SessionID: "p"})
			require.NoError(t, err)

			assert.Len(t, resp.UsedTools, 5)
			for _, name := range resp.UsedTools {
				e, ok := reg.Lookup(name)
				require.True(t, ok)
				assert.NotEqual(t, cat, e.Category)
			}
		})
	}
}

func TestPolicyGating_PreferencesOnlyNarrow(t *testing.T) {
	cats := allCategories()
	cats.WebResearch = false
	o := New(
		WithReasoner(reasoning.New(proposingService{completion: everything})),
		WithRouter(router.New(testRegistry(nil))),
		WithCategories(cats),
	)

	resp, err := o.Handle(context.Background(), Query{Intent: IntentAnalyze, Text: "go"}, Context{
		SessionID: "prefs",
		ToolPreferences: ToolPreferences{
			AllowExternalSearch: boolPtr(true),
			AllowVisualizer:     boolPtr(false),
			AllowInit:           boolPtr(false),
		},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"repo_list", "docs_search", "agents_delegate"}, resp.UsedTools)
}

// ─── Working memory ──────────────────────────────────────────────────────────

func TestHandle_PatchesWorkingMemory(t *testing.T) {
	store := workmem.New(nil, 30*time.Minute)
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	o := newTestOrchestrator(t, WithWorkingMemory(store), WithClock(func() time.Time { return fixed }))

	resp, err := o.Handle(context.Background(),
		Query{Intent: IntentAnalyze, Text: "List my indexed repositories", Area: "infra"},
		Context{SessionID: "wm"})
	require.NoError(t, err)

	state, ok := store.Get(context.Background(), "wm")
	require.True(t, ok)
	assert.Equal(t, "List my indexed repositories", state["lastQuery"])
	assert.Equal(t, "analyze", state["lastIntent"])
	assert.Equal(t, "infra", state["area"])

	outcome, ok := state["lastOutcome"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "response", outcome["kind"])
	assert.Equal(t, []string{"repo_list"}, outcome["usedTools"])
	assert.Equal(t, "2026-03-01T09:30:00Z", outcome["timestamp"])

	assert.Equal(t, map[string]any(state), resp.WorkingState)
}

func TestHandle_ReflectSeesPreviousState(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.Handle(ctx, Query{Intent: IntentPlan, Text: "Plan the migration"}, Context{SessionID: "r"})
	require.NoError(t, err)
	resp, err := o.Handle(ctx, Query{Intent: IntentReflect, Text: "How did that go?"}, Context{SessionID: "r"})
	require.NoError(t, err)

	assert.Equal(t, KindInsight, resp.Kind)
	assert.Contains(t, resp.Text, "lastOutcome")
}

// ─── Retrieval ───────────────────────────────────────────────────────────────

func TestHandle_RetrievesProjectContext(t *testing.T) {
	mem, project := newTestMemory(t)
	o := newTestOrchestrator(t, WithSemanticMemory(mem))

	resp, err := o.Handle(context.Background(),
		Query{Intent: IntentExplain, Text: "How are invoices and tax computed by billing?"},
		Context{SessionID: "ret", ProjectPath: project})
	require.NoError(t, err)

	require.NotEmpty(t, resp.MemoryHits)
	assert.Equal(t, filepath.Join(project, "README.md"), resp.MemoryHits[0].PathOrURL)
	require.NotNil(t, resp.Meta.Index)
	assert.Equal(t, 2, resp.Meta.Index.Files)
	for i := 1; i < len(resp.MemoryHits); i++ {
		assert.LessOrEqual(t, resp.MemoryHits[i].Score, resp.MemoryHits[i-1].Score)
	}
}

func TestHandle_ReflectSkipsRetrievalWhenInternalAnalysisNotPreferred(t *testing.T) {
	mem, project := newTestMemory(t)
	o := newTestOrchestrator(t, WithSemanticMemory(mem))

	resp, err := o.Handle(context.Background(),
		Query{Intent: IntentReflect, Text: "billing invoices tax"},
		Context{
			SessionID:       "refl",
			ProjectPath:     project,
			ToolPreferences: ToolPreferences{PreferInternalAnalysis: boolPtr(false)},
		})
	require.NoError(t, err)

	assert.Empty(t, resp.MemoryHits)
	assert.Nil(t, resp.Meta.Index)
}

func TestHandle_DegradesWithoutSemanticMemory(t *testing.T) {
	o := newTestOrchestrator(t)

	resp, err := o.Handle(context.Background(),
		Query{Intent: IntentAnalyze, Text: "What does the billing service do?"},
		Context{SessionID: "deg", ProjectPath: t.TempDir()})
	require.NoError(t, err)

	assert.Empty(t, resp.MemoryHits)
	assert.True(t, resp.Meta.Degraded)
	assert.Contains(t, resp.Text, "semantic memory unavailable")
	assert.Contains(t, resp.Text, "reasoning service unavailable")
}

func TestHandle_ReasonerPanicFallsBack(t *testing.T) {
	o := newTestOrchestrator(t, WithReasoner(reasoning.New(panickingService{})))

	resp, err := o.Handle(context.Background(),
		Query{Intent: IntentAnalyze, Text: "List my indexed repositories"},
		Context{SessionID: "panic"})
	require.NoError(t, err)

	assert.True(t, resp.Meta.Fallback)
	assert.Contains(t, resp.UsedTools, "repo_list")
}

// ─── Invoke boundary ─────────────────────────────────────────────────────────

func TestInvoke_InvalidInputBecomesErrorResponse(t *testing.T) {
	o := newTestOrchestrator(t)
	tests := []struct {
		name string
		q    Query
		c    Context
	}{
		{"bad intent", Query{Intent: "destroy", Text: "q"}, Context{SessionID: "e"}},
		{"missing session", Query{Intent: IntentExplain, Text: "q"}, Context{}},
		{"empty text", Query{Intent: IntentExplain, Text: "  "}, Context{SessionID: "e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := o.Invoke(context.Background(), tt.q, tt.c)
			assert.True(t, strings.HasPrefix(resp.Text, ErrorMarker), resp.Text)
			assert.True(t, resp.Meta.Error)
			assert.Empty(t, resp.UsedTools)
		})
	}
}

// explodingBackend panics on every load.
type explodingBackend struct{ *workmem.MapBackend }

func (explodingBackend) Load(context.Context, string) (workmem.Record, bool, error) {
	panic("storage corrupted")
}

func TestInvoke_RecoversPanics(t *testing.T) {
	store := workmem.New(explodingBackend{workmem.NewMapBackend()}, time.Minute)
	o := newTestOrchestrator(t, WithWorkingMemory(store))

	var resp Response
	require.NotPanics(t, func() {
		resp = o.Invoke(context.Background(), Query{Intent: IntentExplain, Text: "q"}, Context{SessionID: "boom"})
	})
	assert.True(t, resp.Meta.Error)
	assert.Contains(t, resp.Text, "storage corrupted")
	assert.Equal(t, "boom", resp.SessionID)
}

func TestInvoke_CanceledContextIsTagged(t *testing.T) {
	store := workmem.New(nil, time.Minute)
	o := newTestOrchestrator(t, WithWorkingMemory(store))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan Response, 1)
	go func() {
		done <- o.Invoke(ctx, Query{Intent: IntentAnalyze, Text: "List my indexed repositories"}, Context{SessionID: "c"})
	}()

	select {
	case resp := <-done:
		assert.True(t, resp.Meta.Canceled)
		assert.True(t, strings.HasPrefix(resp.Text, CanceledMarker), resp.Text)
		assert.Empty(t, resp.UsedTools)

		state, ok := store.Get(context.Background(), "c")
		require.True(t, ok)
		assert.Contains(t, state, "lastOutcome")
	case <-time.After(5 * time.Second):
		t.Fatal("Invoke hung on a canceled context")
	}
}

func TestParseIntent(t *testing.T) {
	i, err := ParseIntent(" PLAN ")
	require.NoError(t, err)
	assert.Equal(t, IntentPlan, i)

	i, err = ParseIntent("")
	require.NoError(t, err)
	assert.Equal(t, IntentNone, i)

	_, err = ParseIntent("delete")
	assert.ErrorIs(t, err, ErrInvalidIntent)
}
