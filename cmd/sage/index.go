package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HendryAvila/sage/internal/capabilities"
	"github.com/HendryAvila/sage/internal/semantic"
)

type indexOptions struct {
	scope    string
	watch    bool
	debounce time.Duration
}

func newIndexCmd(root *rootOptions) *cobra.Command {
	opts := &indexOptions{}
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a project into semantic memory",
		Long: `Index a project directory into semantic memory.

Without a path, the project root is found by walking up from the current
directory to the nearest .sage/project.yaml or .git. Unchanged content is
never embedded twice. With --watch, the project is re-indexed whenever
files change until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := semantic.ParseScope(opts.scope)
			if err != nil {
				return err
			}

			start := "."
			if len(args) == 1 {
				start = args[0]
			}
			path := start
			if len(args) == 0 {
				if path, err = capabilities.FindProjectRoot(start); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			k, err := root.kernel(ctx)
			if err != nil {
				return err
			}
			defer shutdown(k)

			if !k.Memory.Ready() {
				return fmt.Errorf("semantic memory is not available (check the embedding config)")
			}

			out := cmd.OutOrStdout()
			report := k.Memory.EnsureIndexedProject(ctx, path, scope)
			printReport(out, report)
			if report.Skipped {
				return fmt.Errorf("indexing skipped")
			}
			if !opts.watch {
				return nil
			}

			fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", report.Project)
			w := semantic.NewWatcher(k.Memory, report.Project, scope,
				semantic.WithDebounce(opts.debounce),
				semantic.WithWatchLogger(k.Logger.Named("watch")),
				semantic.WithIndexCallback(func(r semantic.IndexReport) { printReport(out, r) }),
			)
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				k.Logger.Error("watcher stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.scope, "scope", "all", "What to index: all, code or docs")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Keep re-indexing on file changes")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", 500*time.Millisecond, "Quiet period before a watch re-index")
	return cmd
}

func printReport(w io.Writer, r semantic.IndexReport) {
	switch {
	case r.Skipped:
		fmt.Fprintf(w, "%s: skipped\n", r.Project)
	case r.Unchanged:
		fmt.Fprintf(w, "%s: unchanged (%d files)\n", r.Project, r.Files)
	default:
		fmt.Fprintf(w, "%s: %d files, %d chunks, %d embedded, %d pruned\n",
			r.Project, r.Files, r.Chunks, r.Embedded, r.Pruned)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintln(w, warnStyle.Render("  warning: "+warning))
	}
}
