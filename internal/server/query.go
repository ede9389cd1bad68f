package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"

	"github.com/HendryAvila/sage/internal/orchestrator"
)

// QueryTool handles the sage_query tool, the kernel's single entry point.
type QueryTool struct {
	orch *orchestrator.Orchestrator
}

// NewQueryTool creates a QueryTool.
func NewQueryTool(orch *orchestrator.Orchestrator) *QueryTool {
	return &QueryTool{orch: orch}
}

// Definition returns the MCP tool definition for sage_query.
func (t *QueryTool) Definition() mcp.Tool {
	intents := []string{}
	for _, i := range orchestrator.Intents() {
		intents = append(intents, string(i))
	}
	return mcp.NewTool("sage_query",
		mcp.WithDescription(
			"Ask a question about a project. Relevant project content is retrieved, "+
				"reasoned over, and tools are run when the intent allows it "+
				"(analyze, plan, reflect). explain and suggest only answer. "+
				"Returns the response as JSON: kind, text, memory_hits, used_tools, meta.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The question or request in natural language"),
		),
		mcp.WithString("intent",
			mcp.Description("What the query is for. Omit to answer without running tools."),
			mcp.Enum(intents...),
		),
		mcp.WithString("session_id",
			mcp.Description("Stable id for this conversation. A new one is generated when omitted."),
		),
		mcp.WithString("project_path",
			mcp.Description("Project directory used for retrieval. Indexed on first use."),
		),
		mcp.WithString("area",
			mcp.Description("Focus area, e.g. 'auth' or 'build'"),
		),
		mcp.WithString("target_path",
			mcp.Description("File or directory the query is about"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Maximum number of tool actions to run. 0 means no limit."),
			mcp.Min(0),
		),
		mcp.WithObject("environment",
			mcp.Description("Host environment as string key/value pairs, e.g. {\"os\": \"linux\"}"),
		),
		mcp.WithBoolean("allow_external_search",
			mcp.Description("Set false to forbid web research for this call"),
		),
		mcp.WithBoolean("allow_visualizer",
			mcp.Description("Set false to forbid visualizer tools for this call"),
		),
		mcp.WithBoolean("allow_init",
			mcp.Description("Set false to forbid project initialization for this call"),
		),
		mcp.WithBoolean("prefer_internal_analysis",
			mcp.Description("Set false to skip project retrieval for reflect queries"),
		),
	)
}

// Handle processes the sage_query tool call. Kernel failures come back as
// error responses inside the JSON, not as tool errors.
func (t *QueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	args := req.GetArguments()
	q := orchestrator.Query{
		Intent:     orchestrator.Intent(req.GetString("intent", "")),
		Text:       text,
		Area:       req.GetString("area", ""),
		TargetPath: req.GetString("target_path", ""),
		MaxDepth:   req.GetInt("max_depth", 0),
	}
	c := orchestrator.Context{
		SessionID:   sessionID,
		ProjectPath: req.GetString("project_path", ""),
		ToolPreferences: orchestrator.ToolPreferences{
			AllowExternalSearch:    boolArg(args, "allow_external_search"),
			AllowVisualizer:        boolArg(args, "allow_visualizer"),
			AllowInit:              boolArg(args, "allow_init"),
			PreferInternalAnalysis: boolArg(args, "prefer_internal_analysis"),
		},
		Environment: cast.ToStringMapString(args["environment"]),
	}

	resp := t.orch.Invoke(ctx, q, c)
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling response: %w", err)
	}
	result := mcp.NewToolResultText(string(data))
	result.IsError = resp.Meta.Error
	return result, nil
}

// boolArg returns nil when key is absent so the configured policy applies.
func boolArg(args map[string]any, key string) *bool {
	v, ok := args[key].(bool)
	if !ok {
		return nil
	}
	return &v
}
