package server

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/sage/internal/prompts"
	"github.com/HendryAvila/sage/internal/resources"
)

// NewMCPServer exposes k over MCP: the sage_query entry point, every
// registered capability as a plain tool, session and project resources, and
// the guided prompts.
func NewMCPServer(k *Kernel) *server.MCPServer {
	s := server.NewMCPServer(
		"sage",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Entry point ---

	queryTool := NewQueryTool(k.Orchestrator)
	s.AddTool(queryTool.Definition(), queryTool.Handle)

	// --- Capabilities ---
	//
	// Direct calls bypass the category policy: the host asked for the tool
	// by name. Routed calls from sage_query are still gated.

	for _, e := range k.Registry.Entries() {
		s.AddTool(e.Tool, e.Handler)
	}

	// --- Prompts ---

	askPrompt := prompts.NewAskPrompt()
	s.AddPrompt(askPrompt.Definition(), askPrompt.Handle)

	indexPrompt := prompts.NewIndexPrompt()
	s.AddPrompt(indexPrompt.Definition(), indexPrompt.Handle)

	// --- Resources ---

	resourceHandler := resources.NewHandler(k.Orchestrator, k.Memory)
	s.AddResourceTemplate(resourceHandler.SessionTemplate(), resourceHandler.HandleSession)
	s.AddResource(resourceHandler.ProjectsResource(), resourceHandler.HandleProjects)

	return s
}

// serverInstructions returns the system instructions that tell the AI
// how to use sage effectively.
func serverInstructions() string {
	return `You have access to sage, a project-aware reasoning kernel.

## HOW TO USE sage

Call sage_query for any question about a codebase or its documentation.
Always pass:
- text: the user's question
- session_id: the same id for the whole conversation
- project_path: the project root when you know it

Choose an intent:
- explain: describe how something works (answer only)
- suggest: propose options (answer only)
- analyze: inspect the project, may run repository and documentation tools
- plan: produce a step-by-step strategy, may run tools
- reflect: review the session so far, may run tools

## READING THE RESPONSE

- text is the answer. Present it to the user.
- memory_hits are the project snippets the answer used. Cite their paths.
- used_tools and data show which tools ran and what they returned.
- meta.degraded means a capability was unavailable. Tell the user briefly.
- A text starting with [error] means the request was rejected.

## OTHER TOOLS

repo_index, repo_list, docs_search and project_init can be called directly.
The sage_index prompt indexes a project; sage_ask routes a question.`
}
