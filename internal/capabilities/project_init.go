package capabilities

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"
)

// MarkerDir is the per-project directory the kernel writes to.
const MarkerDir = ".sage"

// ProjectMarker is the content of .sage/project.yaml.
type ProjectMarker struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	CreatedAt   time.Time `yaml:"created_at"`
	Index       struct {
		Scope string `yaml:"scope"`
	} `yaml:"index"`
}

// ProjectInitTool handles the project_init tool. It marks a directory as a
// sage project so later sessions can find it.
type ProjectInitTool struct {
	now func() time.Time
}

// NewProjectInitTool creates a ProjectInitTool.
func NewProjectInitTool() *ProjectInitTool {
	return &ProjectInitTool{now: time.Now}
}

// Definition returns the MCP tool definition for project_init.
func (t *ProjectInitTool) Definition() mcp.Tool {
	return mcp.NewTool("project_init",
		mcp.WithDescription(
			"Initialize a project for sage. Creates .sage/project.yaml in the project "+
				"directory. Refuses to overwrite an existing project.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Project directory"),
		),
		mcp.WithString("name",
			mcp.Description("Project name (defaults to the directory name)"),
		),
		mcp.WithString("description",
			mcp.Description("Brief description of what the project does"),
		),
		mcp.WithString("scope",
			mcp.Description("Default index scope: 'all', 'code' or 'docs'"),
			mcp.DefaultString("all"),
			mcp.Enum("all", "code", "docs"),
		),
	)
}

// Handle processes the project_init tool call.
func (t *ProjectInitTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving project path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return mcp.NewToolResultError(fmt.Sprintf("%s is not a directory", root)), nil
	}

	markerPath := filepath.Join(root, MarkerDir, "project.yaml")
	// Guard: don't overwrite an existing project.
	if _, err := os.Stat(markerPath); err == nil {
		return mcp.NewToolResultError("project already initialized: " + markerPath), nil
	}

	name := req.GetString("name", "")
	if name == "" {
		name = filepath.Base(root)
	}
	marker := ProjectMarker{
		Name:        name,
		Description: req.GetString("description", ""),
		CreatedAt:   t.now().UTC(),
	}
	marker.Index.Scope = req.GetString("scope", "all")

	data, err := yaml.Marshal(marker)
	if err != nil {
		return nil, fmt.Errorf("encoding project marker: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(markerPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", filepath.Dir(markerPath), err)
	}
	if err := os.WriteFile(markerPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing project marker: %w", err)
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"# Project Initialized\n\n"+
			"**Project:** %s\n"+
			"**Location:** `%s`\n\n"+
			"Run `repo_index` with this path to make its content searchable.",
		name, markerPath,
	)), nil
}

// ReadProjectMarker loads .sage/project.yaml from root.
func ReadProjectMarker(root string) (ProjectMarker, error) {
	var m ProjectMarker
	data, err := os.ReadFile(filepath.Join(root, MarkerDir, "project.yaml"))
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decoding project marker: %w", err)
	}
	return m, nil
}

// FindProjectRoot walks up from start looking for a sage marker or a .git
// directory. It returns start itself when neither is found.
func FindProjectRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", start, err)
	}

	current := dir
	for {
		for _, candidate := range []string{filepath.Join(MarkerDir, "project.yaml"), ".git"} {
			if _, err := os.Stat(filepath.Join(current, candidate)); err == nil {
				return current, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return dir, nil
		}
		current = parent
	}
}
