// Package capabilities provides the tools the kernel ships with.
//
// Each tool follows the same pattern:
// - A struct with its dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Register adds them to a router.Registry under their category.
package capabilities

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"

	"github.com/HendryAvila/sage/internal/router"
	"github.com/HendryAvila/sage/internal/semantic"
)

// intArg extracts an integer argument, returning defaultVal if the key is
// missing or not numeric. Routed calls carry float64, direct MCP calls may
// carry strings.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key]
	if !ok || v == nil {
		return defaultVal
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// Tool is implemented by every capability.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Register adds the built-in capabilities to reg.
func Register(reg *router.Registry, mem *semantic.Memory) error {
	entries := []struct {
		tool     Tool
		category router.Category
	}{
		{NewRepoListTool(mem), router.CategoryRepository},
		{NewRepoIndexTool(mem), router.CategoryRepository},
		{NewDocsSearchTool(mem), router.CategoryDocumentation},
		{NewProjectInitTool(), router.CategoryProjectInit},
	}
	for _, e := range entries {
		if err := reg.Register(router.Entry{
			Tool:     e.tool.Definition(),
			Handler:  e.tool.Handle,
			Category: e.category,
		}); err != nil {
			return err
		}
	}
	return nil
}
