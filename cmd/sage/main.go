// sage: project-aware reasoning kernel
//
// sage answers questions about a codebase by combining per-session working
// memory, semantic retrieval over the project, a reasoning service and a
// policy-gated tool router. It runs as an MCP server or as a one-shot CLI.
//
// Usage:
//
//	sage serve                       # Start MCP server (stdio transport)
//	sage query --intent plan "..."   # Ask one question
//	sage index [path] --watch        # Index a project, optionally keep watching
//	sage version
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
