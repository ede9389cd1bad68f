// Package config defines the resolved configuration surface consumed by the
// kernel and loads it from a config file plus environment.
//
// The kernel itself never reads files or environment: the composition root
// calls Load once at startup and injects the resulting Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (SAGE_REASONING_MODEL, ...).
const EnvPrefix = "SAGE"

// Categories holds the per-category enablement flags for routed capabilities.
type Categories struct {
	Repository    bool `mapstructure:"repository"`
	Documentation bool `mapstructure:"documentation"`
	WebResearch   bool `mapstructure:"web_research"`
	ProjectInit   bool `mapstructure:"project_init"`
	MultiAgent    bool `mapstructure:"multi_agent"`
	Visualizer    bool `mapstructure:"visualizer"`
}

// WorkingMemory configures the per-session state store.
type WorkingMemory struct {
	TTL           time.Duration `mapstructure:"ttl"`
	Backend       string        `mapstructure:"backend"` // "memory" or "sqlite"
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// SemanticMemory configures project indexing and retrieval.
type SemanticMemory struct {
	Enabled        bool          `mapstructure:"enabled"`
	MaxResults     int           `mapstructure:"max_results"`
	ScoreThreshold float64       `mapstructure:"score_threshold"`
	ChunkSize      int           `mapstructure:"chunk_size"`
	ChunkOverlap   int           `mapstructure:"chunk_overlap"`
	MaxFileBytes   int64         `mapstructure:"max_file_bytes"`
	MaxFiles       int           `mapstructure:"max_files"`
	SearchTimeout  time.Duration `mapstructure:"search_timeout"`
	IndexTimeout   time.Duration `mapstructure:"index_timeout"`
}

// Embedding selects the embedding provider used by semantic memory.
type Embedding struct {
	Provider       string `mapstructure:"provider"` // "local", "ollama" or "genai"
	OllamaEndpoint string `mapstructure:"ollama_endpoint"`
	OllamaModel    string `mapstructure:"ollama_model"`
	GenAIModel     string `mapstructure:"genai_model"`
	APIKey         string `mapstructure:"api_key"`
	Dimensions     int    `mapstructure:"dimensions"`
}

// Reasoning configures the external reasoning service.
type Reasoning struct {
	Model         string        `mapstructure:"model"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxTraceChars int           `mapstructure:"max_trace_chars"`
}

// Router configures tool dispatch.
type Router struct {
	Concurrency int           `mapstructure:"concurrency"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// Logging configures the zap logger.
type Logging struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Config is the fully resolved kernel configuration.
type Config struct {
	DataDir        string         `mapstructure:"data_dir"`
	Categories     Categories     `mapstructure:"categories"`
	WorkingMemory  WorkingMemory  `mapstructure:"working_memory"`
	SemanticMemory SemanticMemory `mapstructure:"semantic_memory"`
	Embedding      Embedding      `mapstructure:"embedding"`
	Reasoning      Reasoning      `mapstructure:"reasoning"`
	Router         Router         `mapstructure:"router"`
	Logging        Logging        `mapstructure:"logging"`
}

// Default returns the configuration used when no file or env overrides exist.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir: filepath.Join(home, ".sage"),
		Categories: Categories{
			Repository:    true,
			Documentation: true,
			WebResearch:   false,
			ProjectInit:   false,
			MultiAgent:    false,
			Visualizer:    true,
		},
		WorkingMemory: WorkingMemory{
			TTL:           30 * time.Minute,
			Backend:       "memory",
			SweepInterval: 5 * time.Minute,
		},
		SemanticMemory: SemanticMemory{
			Enabled:        true,
			MaxResults:     8,
			ScoreThreshold: 0.1,
			ChunkSize:      400,
			ChunkOverlap:   50,
			MaxFileBytes:   256 * 1024,
			MaxFiles:       2000,
			SearchTimeout:  10 * time.Second,
			IndexTimeout:   5 * time.Minute,
		},
		Embedding: Embedding{
			Provider:       "local",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			Dimensions:     256,
		},
		Reasoning: Reasoning{
			Model:         "gemini-2.5-flash",
			Timeout:       60 * time.Second,
			MaxTraceChars: 4000,
		},
		Router: Router{
			Concurrency: 4,
			CallTimeout: 30 * time.Second,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// Load resolves configuration from defaults, an optional config file and the
// environment. An empty path looks for config.{yaml,toml,json} in DataDir.
func Load(path string) (Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load with an injected viper instance.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	def := Default()
	setDefaults(v, def)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(def.DataDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}

	// Shared Gemini credentials apply to both reasoning and embeddings
	// unless set explicitly.
	key := firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
	if cfg.Reasoning.APIKey == "" {
		cfg.Reasoning.APIKey = key
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = key
	}

	cfg = cfg.normalized()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration values that can never work.
func (c Config) Validate() error {
	switch c.WorkingMemory.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("config: unknown working_memory.backend %q (use 'memory' or 'sqlite')", c.WorkingMemory.Backend)
	}
	if c.SemanticMemory.ChunkOverlap >= c.SemanticMemory.ChunkSize {
		return fmt.Errorf("config: chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.SemanticMemory.ChunkOverlap, c.SemanticMemory.ChunkSize)
	}
	if c.SemanticMemory.ScoreThreshold < 0 || c.SemanticMemory.ScoreThreshold > 1 {
		return fmt.Errorf("config: score_threshold must be within [0,1], got %v", c.SemanticMemory.ScoreThreshold)
	}
	return nil
}

// normalized fills zero values a partial file may leave behind.
func (c Config) normalized() Config {
	def := Default()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.WorkingMemory.TTL <= 0 {
		c.WorkingMemory.TTL = def.WorkingMemory.TTL
	}
	if c.SemanticMemory.MaxResults <= 0 {
		c.SemanticMemory.MaxResults = def.SemanticMemory.MaxResults
	}
	if c.SemanticMemory.ChunkSize <= 0 {
		c.SemanticMemory.ChunkSize = def.SemanticMemory.ChunkSize
	}
	if c.Reasoning.MaxTraceChars <= 0 {
		c.Reasoning.MaxTraceChars = def.Reasoning.MaxTraceChars
	}
	if c.Router.Concurrency <= 0 {
		c.Router.Concurrency = def.Router.Concurrency
	}
	return c
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("data_dir", d.DataDir)

	v.SetDefault("categories.repository", d.Categories.Repository)
	v.SetDefault("categories.documentation", d.Categories.Documentation)
	v.SetDefault("categories.web_research", d.Categories.WebResearch)
	v.SetDefault("categories.project_init", d.Categories.ProjectInit)
	v.SetDefault("categories.multi_agent", d.Categories.MultiAgent)
	v.SetDefault("categories.visualizer", d.Categories.Visualizer)

	v.SetDefault("working_memory.ttl", d.WorkingMemory.TTL)
	v.SetDefault("working_memory.backend", d.WorkingMemory.Backend)
	v.SetDefault("working_memory.sweep_interval", d.WorkingMemory.SweepInterval)

	v.SetDefault("semantic_memory.enabled", d.SemanticMemory.Enabled)
	v.SetDefault("semantic_memory.max_results", d.SemanticMemory.MaxResults)
	v.SetDefault("semantic_memory.score_threshold", d.SemanticMemory.ScoreThreshold)
	v.SetDefault("semantic_memory.chunk_size", d.SemanticMemory.ChunkSize)
	v.SetDefault("semantic_memory.chunk_overlap", d.SemanticMemory.ChunkOverlap)
	v.SetDefault("semantic_memory.max_file_bytes", d.SemanticMemory.MaxFileBytes)
	v.SetDefault("semantic_memory.max_files", d.SemanticMemory.MaxFiles)
	v.SetDefault("semantic_memory.search_timeout", d.SemanticMemory.SearchTimeout)
	v.SetDefault("semantic_memory.index_timeout", d.SemanticMemory.IndexTimeout)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.ollama_endpoint", d.Embedding.OllamaEndpoint)
	v.SetDefault("embedding.ollama_model", d.Embedding.OllamaModel)
	v.SetDefault("embedding.genai_model", d.Embedding.GenAIModel)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	v.SetDefault("reasoning.model", d.Reasoning.Model)
	v.SetDefault("reasoning.api_key", "")
	v.SetDefault("reasoning.timeout", d.Reasoning.Timeout)
	v.SetDefault("reasoning.max_trace_chars", d.Reasoning.MaxTraceChars)

	v.SetDefault("router.concurrency", d.Router.Concurrency)
	v.SetDefault("router.call_timeout", d.Router.CallTimeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.json", d.Logging.JSON)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
