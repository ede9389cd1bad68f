// Package prompts implements MCP prompt handlers for the kernel.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// AskPrompt handles the sage_ask MCP prompt.
// It guides the AI to route a question through sage_query.
type AskPrompt struct{}

// NewAskPrompt creates an AskPrompt.
func NewAskPrompt() *AskPrompt {
	return &AskPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *AskPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("sage_ask",
		mcp.WithPromptDescription(
			"Ask sage a question about a project. "+
				"Retrieves relevant project context, reasons over it and "+
				"runs the tools the intent allows.",
		),
		mcp.WithArgument("question",
			mcp.ArgumentDescription("What you want to know or do"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("intent",
			mcp.ArgumentDescription(
				"analyze, explain, suggest, plan or reflect. Default: explain",
			),
		),
		mcp.WithArgument("project_path",
			mcp.ArgumentDescription("Project directory to use as context"),
		),
	)
}

// Handle processes the sage_ask prompt request.
func (p *AskPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := req.Params.Arguments
	question := strings.TrimSpace(args["question"])
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	intent := "explain"
	if i := strings.TrimSpace(args["intent"]); i != "" {
		intent = strings.ToLower(i)
	}

	project := ""
	if path := strings.TrimSpace(args["project_path"]); path != "" {
		project = fmt.Sprintf(", project_path='%s'", path)
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Ask sage (%s)", intent),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"%s\n\n"+
						"Please:\n"+
						"1. Run `sage_query` with intent='%s', text=my question above%s and a stable session_id for this conversation\n"+
						"2. Answer from the returned `text`, citing `memory_hits` paths when you use them\n"+
						"3. If `meta.degraded` is true, tell me what capability was reduced\n"+
						"4. Summarise any tool results in `data` instead of pasting them verbatim",
					question, intent, project,
				)),
			},
		},
	}, nil
}
