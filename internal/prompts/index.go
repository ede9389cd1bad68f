package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// IndexPrompt handles the sage_index MCP prompt.
// It instructs the AI to index a project and report what memory holds.
type IndexPrompt struct{}

// NewIndexPrompt creates an IndexPrompt.
func NewIndexPrompt() *IndexPrompt {
	return &IndexPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *IndexPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("sage_index",
		mcp.WithPromptDescription(
			"Index a project into semantic memory and show what is indexed.",
		),
		mcp.WithArgument("project_path",
			mcp.ArgumentDescription("Project directory. Default: the current workspace"),
		),
	)
}

// Handle processes the sage_index prompt request.
func (p *IndexPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	path := "the current workspace directory"
	if v := req.Params.Arguments["project_path"]; v != "" {
		path = fmt.Sprintf("'%s'", v)
	}
	return &mcp.GetPromptResult{
		Description: "Index project",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Please run `repo_index` with path=%s.\n\n"+
						"Then:\n"+
						"1. Run `repo_list` and show me the indexed projects\n"+
						"2. Report any warnings from the index pass\n"+
						"3. Suggest two questions I could ask with `sage_query` about this project",
					path,
				)),
			},
		},
	}, nil
}
