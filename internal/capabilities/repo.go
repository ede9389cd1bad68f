package capabilities

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/sage/internal/semantic"
)

// ─── repo_list ───────────────────────────────────────────────────────────────

// RepoListTool handles the repo_list tool.
type RepoListTool struct {
	memory *semantic.Memory
}

// NewRepoListTool creates a RepoListTool.
func NewRepoListTool(mem *semantic.Memory) *RepoListTool {
	return &RepoListTool{memory: mem}
}

// Definition returns the MCP tool definition for repo_list.
func (t *RepoListTool) Definition() mcp.Tool {
	return mcp.NewTool("repo_list",
		mcp.WithDescription(
			"List the repositories indexed in semantic memory, with file and chunk counts "+
				"and when each was last indexed.",
		),
	)
}

// Handle processes the repo_list tool call.
func (t *RepoListTool) Handle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := t.memory.Projects(ctx)
	if errors.Is(err, semantic.ErrNotReady) {
		return mcp.NewToolResultError("semantic memory is not available"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing projects failed: %v", err)), nil
	}
	if len(projects) == 0 {
		return mcp.NewToolResultText("No repositories indexed yet. Use repo_index with a project path."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Indexed repositories (%d):\n\n", len(projects))
	for i, p := range projects {
		fmt.Fprintf(&b, "[%d] %s\n    %d files, %d chunks | indexed %s\n",
			i+1, p.Path, p.Files, p.Chunks, p.IndexedAt.UTC().Format(time.RFC3339))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── repo_index ──────────────────────────────────────────────────────────────

// RepoIndexTool handles the repo_index tool.
type RepoIndexTool struct {
	memory *semantic.Memory
}

// NewRepoIndexTool creates a RepoIndexTool.
func NewRepoIndexTool(mem *semantic.Memory) *RepoIndexTool {
	return &RepoIndexTool{memory: mem}
}

// Definition returns the MCP tool definition for repo_index.
func (t *RepoIndexTool) Definition() mcp.Tool {
	return mcp.NewTool("repo_index",
		mcp.WithDescription(
			"Index (or refresh) a project directory in semantic memory. Unchanged content "+
				"is never embedded twice.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Project directory to index"),
		),
		mcp.WithString("scope",
			mcp.Description("What to index: 'all' (default), 'code' or 'docs'"),
			mcp.DefaultString("all"),
			mcp.Enum("all", "code", "docs"),
		),
	)
}

// Handle processes the repo_index tool call.
func (t *RepoIndexTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	scope, err := semantic.ParseScope(req.GetString("scope", "all"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	r := t.memory.EnsureIndexedProject(ctx, path, scope)
	if r.Skipped {
		return mcp.NewToolResultError("indexing skipped: " + strings.Join(r.Warnings, "; ")), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Indexed %s (scope: %s)\n", r.Project, r.Scope)
	if r.Unchanged {
		fmt.Fprintf(&b, "No changes since the last pass (%d files).\n", r.Files)
	} else {
		fmt.Fprintf(&b, "%d files, %d chunks: %d embedded, %d pruned.\n", r.Files, r.Chunks, r.Embedded, r.Pruned)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── docs_search ─────────────────────────────────────────────────────────────

// DocsSearchTool handles the docs_search tool.
type DocsSearchTool struct {
	memory *semantic.Memory
}

// NewDocsSearchTool creates a DocsSearchTool.
func NewDocsSearchTool(mem *semantic.Memory) *DocsSearchTool {
	return &DocsSearchTool{memory: mem}
}

// Definition returns the MCP tool definition for docs_search.
func (t *DocsSearchTool) Definition() mcp.Tool {
	return mcp.NewTool("docs_search",
		mcp.WithDescription(
			"Search indexed documentation (markdown, text, READMEs) by meaning. "+
				"Use this to find how a project describes a feature or procedure.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query, natural language or keywords"),
		),
		mcp.WithString("project",
			mcp.Description("Restrict to one indexed project path"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 5, max: 20)"),
		),
	)
}

// Handle processes the docs_search tool call.
func (t *DocsSearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	if !t.memory.Ready() {
		return mcp.NewToolResultError("semantic memory is not available"), nil
	}
	limit := intArg(req, "limit", 5)
	if limit <= 0 || limit > 20 {
		limit = 5
	}

	hits := t.memory.SearchProject(ctx, query, semantic.SearchOptions{
		Project: req.GetString("project", ""),
		Source:  semantic.SourceDoc,
		Limit:   limit,
	})
	if len(hits) == 0 {
		return mcp.NewToolResultText("No documentation found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d documentation snippets:\n\n", len(hits))
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d] %s (score %.2f)\n    %s\n    %s\n\n",
			i+1, h.Title, h.Score, h.PathOrURL, semantic.Truncate(h.Snippet, 300))
	}
	return mcp.NewToolResultText(b.String()), nil
}
