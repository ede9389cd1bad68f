package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/sage/internal/orchestrator"
	"github.com/HendryAvila/sage/internal/router"
	"github.com/HendryAvila/sage/internal/semantic"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// writeConfig writes a config file pointing the data dir at a temp directory.
func writeConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "data_dir: " + filepath.Join(dir, "data") + "\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// ─── Commands ────────────────────────────────────────────────────────────────

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "sage v"))
}

func TestQuery_JSON(t *testing.T) {
	cfg := writeConfig(t)
	out, err := execute(t, "--config", cfg, "query", "--intent", "reflect", "--session", "cli", "--format", "json", "what", "happened")
	require.NoError(t, err)

	var resp orchestrator.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, orchestrator.KindInsight, resp.Kind)
	assert.Equal(t, "cli", resp.SessionID)
	assert.Equal(t, "what happened", resp.WorkingState["lastQuery"])
}

func TestQuery_YAML(t *testing.T) {
	cfg := writeConfig(t)
	out, err := execute(t, "--config", cfg, "query", "-f", "yaml", "explain", "the", "layout")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc), out)
	assert.Equal(t, "response", doc["kind"])
}

func TestQuery_MaxDepthAndEnv(t *testing.T) {
	cfg := writeConfig(t)
	out, err := execute(t, "--config", cfg, "query", "-f", "json", "-i", "analyze",
		"--max-depth", "1", "--env", "os=linux,editor=vim",
		"Read the docs and list repositories")
	require.NoError(t, err)

	var resp orchestrator.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, []string{"docs_search"}, resp.UsedTools)

	_, err = execute(t, "--config", cfg, "query", "--env", "novalue", "hello")
	assert.Error(t, err)
}

func TestQuery_RejectsBadInput(t *testing.T) {
	cfg := writeConfig(t)

	_, err := execute(t, "--config", cfg, "query", "--intent", "dance", "hello")
	assert.ErrorIs(t, err, orchestrator.ErrInvalidIntent)

	_, err = execute(t, "--config", cfg, "query", "--format", "xml", "hello")
	assert.ErrorContains(t, err, "unknown format")

	_, err = execute(t, "--config", cfg, "query")
	assert.Error(t, err)
}

func TestIndex_ThenQueryUsesProject(t *testing.T) {
	cfg := writeConfig(t)
	project := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, "README.md"),
		[]byte("# Billing\n\nInvoices are generated on the first day of each month."), 0o644))

	out, err := execute(t, "--config", cfg, "index", project)
	require.NoError(t, err)
	assert.Contains(t, out, "1 files")

	// A new process keeps the stored vectors and embeds nothing again.
	out, err = execute(t, "--config", cfg, "index", project)
	require.NoError(t, err)
	assert.Contains(t, out, "0 embedded")

	out, err = execute(t, "--config", cfg, "query", "-f", "json", "-p", project, "-i", "explain", "when are invoices generated")
	require.NoError(t, err)
	var resp orchestrator.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.MemoryHits)
	assert.Contains(t, resp.MemoryHits[0].PathOrURL, "README.md")
}

func TestIndex_RejectsBadScope(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "index", "--scope", "images", t.TempDir())
	assert.ErrorContains(t, err, "unknown scope")
}

// ─── Rendering ───────────────────────────────────────────────────────────────

func TestRenderText(t *testing.T) {
	resp := orchestrator.Response{
		Kind:      orchestrator.KindStrategy,
		Title:     "PLAN",
		Text:      "Do the thing.",
		SessionID: "s1",
		MemoryHits: []semantic.Hit{
			{PathOrURL: "/p/README.md", Score: 0.91},
		},
		UsedTools: []string{"repo_list"},
		Data:      []router.RoutedResult{{Name: "repo_list", Result: "1 project"}},
		Meta: orchestrator.Meta{
			TraceID:  "t1",
			Failures: []router.Failure{{Tool: "web_research", Kind: router.FailureSkipped, Reason: "category disabled"}},
		},
	}

	text := renderText(resp)
	for _, want := range []string{"PLAN", "Do the thing.", "/p/README.md", "0.91", "repo_list", "1 project", "web_research"} {
		assert.Contains(t, text, want)
	}
}

func TestValidateFormat(t *testing.T) {
	for _, f := range []string{"text", "json", "yaml"} {
		assert.NoError(t, validateFormat(f))
	}
	assert.Error(t, validateFormat("toml"))
}

func TestChangedBool(t *testing.T) {
	cmd := newQueryCmd(&rootOptions{})
	require.NoError(t, cmd.ParseFlags([]string{"--allow-init=false"}))

	got := changedBool(cmd, "allow-init", false)
	require.NotNil(t, got)
	assert.False(t, *got)
	assert.Nil(t, changedBool(cmd, "allow-visualizer", true))
}
