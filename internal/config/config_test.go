package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Default ---

func TestDefault_SpecValues(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 30*time.Minute, cfg.WorkingMemory.TTL)
	assert.Equal(t, "memory", cfg.WorkingMemory.Backend)
	assert.Equal(t, 4000, cfg.Reasoning.MaxTraceChars)
	assert.True(t, cfg.Categories.Repository)
	assert.False(t, cfg.Categories.WebResearch, "external search is opt-in")
	assert.Less(t, cfg.SemanticMemory.ChunkOverlap, cfg.SemanticMemory.ChunkSize)
	require.NoError(t, cfg.Validate())
}

// --- Load ---

func TestLoad_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sage.yaml")
	content := `
data_dir: ` + dir + `
categories:
  web_research: true
  visualizer: false
working_memory:
  ttl: 1800s
  backend: sqlite
semantic_memory:
  max_results: 3
  score_threshold: 0.5
reasoning:
  model: gemini-test
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadWith(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.True(t, cfg.Categories.WebResearch)
	assert.False(t, cfg.Categories.Visualizer)
	assert.True(t, cfg.Categories.Repository, "unset keys keep defaults")
	assert.Equal(t, 1800*time.Second, cfg.WorkingMemory.TTL)
	assert.Equal(t, "sqlite", cfg.WorkingMemory.Backend)
	assert.Equal(t, 3, cfg.SemanticMemory.MaxResults)
	assert.InDelta(t, 0.5, cfg.SemanticMemory.ScoreThreshold, 1e-9)
	assert.Equal(t, "gemini-test", cfg.Reasoning.Model)
	assert.Equal(t, 400, cfg.SemanticMemory.ChunkSize)
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reasoning:\n  model: from-file\n"), 0o644))

	t.Setenv("SAGE_REASONING_MODEL", "from-env")
	t.Setenv("GEMINI_API_KEY", "secret")

	cfg, err := LoadWith(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Reasoning.Model)
	assert.Equal(t, "secret", cfg.Reasoning.APIKey)
	assert.Equal(t, "secret", cfg.Embedding.APIKey)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := LoadWith(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

// --- Validate ---

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.WorkingMemory.Backend = "redis" }},
		{"overlap too large", func(c *Config) { c.SemanticMemory.ChunkOverlap = c.SemanticMemory.ChunkSize }},
		{"threshold above one", func(c *Config) { c.SemanticMemory.ScoreThreshold = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
