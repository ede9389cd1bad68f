// Package resources implements MCP resource handlers for the kernel.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (sage://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/sage/internal/semantic"
)

// SessionURIPrefix prefixes session resource URIs.
const SessionURIPrefix = "sage://sessions/"

// SessionReader returns a session's working state.
type SessionReader interface {
	WorkingState(ctx context.Context, sessionID string) (map[string]any, bool)
}

// Handler manages kernel resource endpoints.
type Handler struct {
	sessions SessionReader
	memory   *semantic.Memory
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(sessions SessionReader, mem *semantic.Memory) *Handler {
	return &Handler{sessions: sessions, memory: mem}
}

// SessionTemplate returns the MCP resource template for session state.
func (h *Handler) SessionTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		SessionURIPrefix+"{session_id}",
		"Session Working State",
		mcp.WithTemplateDescription("Working memory of one session: last query, intent, area and outcome"),
		mcp.WithTemplateMIMEType("application/json"),
	)
}

// HandleSession returns one session's working state as JSON. Unknown or
// expired sessions read as an empty object.
func (h *Handler) HandleSession(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id := strings.TrimPrefix(req.Params.URI, SessionURIPrefix)
	if id == "" || id == req.Params.URI {
		return errorResource(req.Params.URI, "expected "+SessionURIPrefix+"{session_id}"), nil
	}

	state, ok := h.sessions.WorkingState(ctx, id)
	if !ok {
		state = map[string]any{}
	}
	return jsonResource(req.Params.URI, state)
}

// ProjectsResource returns the MCP resource definition for indexed projects.
func (h *Handler) ProjectsResource() mcp.Resource {
	return mcp.NewResource(
		"sage://projects",
		"Indexed Projects",
		mcp.WithResourceDescription("Projects indexed in semantic memory with file and chunk counts"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleProjects returns the indexed projects as JSON.
func (h *Handler) HandleProjects(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	projects, err := h.memory.Projects(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	if projects == nil {
		projects = []semantic.ProjectInfo{}
	}
	return jsonResource(req.Params.URI, projects)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
