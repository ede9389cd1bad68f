package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HendryAvila/sage/internal/config"
	"github.com/HendryAvila/sage/internal/logging"
	"github.com/HendryAvila/sage/internal/server"
)

// rootOptions holds the global flags.
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "sage",
		Short: "Project-aware reasoning kernel for AI coding tools",
		Long: `sage answers questions about your project.

Each query is handled in one cycle: session state is updated, relevant
project content is retrieved, a reasoning service drafts the answer and
proposes tool calls, and the allowed calls are executed.

Quick Start:
  sage index .                               # Index the current project
  sage query --project . "how is config loaded"
  sage serve                                 # Run as an MCP server

Configuration is read from ~/.sage/config.yaml (or --config) and SAGE_*
environment variables. GEMINI_API_KEY enables the reasoning service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: ~/.sage/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newQueryCmd(opts),
		newIndexCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig resolves the config file and applies flag overrides.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

// kernel loads config and builds the kernel. The caller must Close it and
// Sync the logger.
func (o *rootOptions) kernel(ctx context.Context) (*server.Kernel, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	k, err := server.Build(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("building kernel: %w", err)
	}
	return k, nil
}

// shutdown closes k and flushes its logger.
func shutdown(k *server.Kernel) {
	if err := k.Close(); err != nil {
		k.Logger.Warn("kernel close", zap.Error(err))
	}
	_ = k.Logger.Sync()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "sage v%s\n", server.Version)
			return err
		},
	}
}
