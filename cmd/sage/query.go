package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/sage/internal/orchestrator"
)

type queryOptions struct {
	intent  string
	session string
	project string
	area    string
	target  string
	format  string
	depth   int
	env     map[string]string

	allowExternalSearch    bool
	allowVisualizer        bool
	allowInit              bool
	preferInternalAnalysis bool
}

func newQueryCmd(root *rootOptions) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query [flags] <text>",
		Short: "Ask one question and print the response",
		Long: `Run one query through the kernel and print the response.

Intents: analyze, explain, suggest, plan, reflect. Without --intent the
query is answered without running tools. Reuse --session across calls to
keep working memory between them.`,
		Example: `  sage query --intent explain --project . "how is config loaded"
  sage query --intent plan --session s1 --format yaml "add a cache layer"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := orchestrator.ParseIntent(opts.intent); err != nil {
				return err
			}
			if err := validateFormat(opts.format); err != nil {
				return err
			}

			k, err := root.kernel(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdown(k)

			q := orchestrator.Query{
				Intent:     orchestrator.Intent(opts.intent),
				Text:       strings.Join(args, " "),
				Area:       opts.area,
				TargetPath: opts.target,
				MaxDepth:   opts.depth,
			}
			c := orchestrator.Context{
				SessionID:   opts.session,
				ProjectPath: opts.project,
				ToolPreferences: orchestrator.ToolPreferences{
					AllowExternalSearch:    changedBool(cmd, "allow-external-search", opts.allowExternalSearch),
					AllowVisualizer:        changedBool(cmd, "allow-visualizer", opts.allowVisualizer),
					AllowInit:              changedBool(cmd, "allow-init", opts.allowInit),
					PreferInternalAnalysis: changedBool(cmd, "prefer-internal-analysis", opts.preferInternalAnalysis),
				},
				Environment: opts.env,
			}
			if c.SessionID == "" {
				c.SessionID = uuid.NewString()
			}

			resp := k.Orchestrator.Invoke(cmd.Context(), q, c)
			if err := renderResponse(cmd.OutOrStdout(), resp, opts.format); err != nil {
				return err
			}
			if resp.Meta.Error {
				return fmt.Errorf("query failed")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.intent, "intent", "i", "", "Intent: analyze, explain, suggest, plan or reflect")
	f.StringVarP(&opts.session, "session", "s", "", "Session id (default: a new one)")
	f.StringVarP(&opts.project, "project", "p", "", "Project directory used for retrieval")
	f.StringVar(&opts.area, "area", "", "Focus area")
	f.StringVar(&opts.target, "target", "", "File or directory the query is about")
	f.StringVarP(&opts.format, "format", "f", "text", "Output format: text, json or yaml")
	f.IntVar(&opts.depth, "max-depth", 0, "Maximum tool actions to run (0: no limit)")
	f.StringToStringVar(&opts.env, "env", nil, "Host environment passed to reasoning, e.g. --env os=linux,editor=vim")
	f.BoolVar(&opts.allowExternalSearch, "allow-external-search", true, "Allow web research tools")
	f.BoolVar(&opts.allowVisualizer, "allow-visualizer", true, "Allow visualizer tools")
	f.BoolVar(&opts.allowInit, "allow-init", true, "Allow project initialization")
	f.BoolVar(&opts.preferInternalAnalysis, "prefer-internal-analysis", true, "Use project retrieval for reflect queries")
	return cmd
}

// changedBool returns a pointer to v only when the flag was set explicitly,
// so unset flags leave the configured policy alone.
func changedBool(cmd *cobra.Command, name string, v bool) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}
