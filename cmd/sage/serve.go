package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/sage/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio transport)",
		Long: `Start the MCP server on stdin/stdout.

Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "sage": {
        "command": "sage",
        "args": ["serve"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Graceful shutdown on interrupt.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			k, err := opts.kernel(ctx)
			if err != nil {
				return err
			}
			defer shutdown(k)

			s := server.NewMCPServer(k)
			stdio := mcpserver.NewStdioServer(s)
			if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
				return fmt.Errorf("serving stdio: %w", err)
			}
			return nil
		},
	}
}
