// Package reasoning turns a query and its context into an answer plus
// proposed actions, through a reasoning service when one is configured and a
// deterministic keyword fallback otherwise.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HendryAvila/sage/internal/router"
	"github.com/HendryAvila/sage/internal/semantic"
)

const (
	maxModelActions  = 8
	defaultMaxTrace  = 4000
	promptHitLimit   = 5
	promptSnippetMax = 600
)

// Preferences is the resolved tool policy for one call, shown to the model.
type Preferences struct {
	AllowExternalSearch    bool
	AllowVisualizer        bool
	AllowInit              bool
	PreferInternalAnalysis bool
}

// Input is everything the reasoner sees for one query.
type Input struct {
	Intent        string
	Query         string
	Area          string
	ProjectPath   string
	MemoryContext []semantic.Hit
	WorkingState  map[string]any
	Preferences   Preferences
	// Environment is host-supplied context such as OS or editor.
	Environment map[string]string
	// Tools are the capability names the router may dispatch to.
	Tools []string
}

// Output is the reasoning result. Answer is never empty.
type Output struct {
	Reasoning string
	Answer    string
	Actions   []router.ProposedAction
	Fallback  bool
}

// Reasoner is the reflective layer.
type Reasoner struct {
	service  Service
	maxTrace int
	timeout  time.Duration
	logger   *zap.Logger
}

// Option configures a Reasoner.
type Option func(*Reasoner)

// WithLogger sets the reasoner's logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reasoner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMaxTraceChars caps the length of Output.Reasoning.
func WithMaxTraceChars(n int) Option {
	return func(r *Reasoner) {
		if n > 0 {
			r.maxTrace = n
		}
	}
}

// WithTimeout bounds each service call.
func WithTimeout(d time.Duration) Option {
	return func(r *Reasoner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New creates a Reasoner. A nil service runs every call on the fallback.
func New(service Service, opts ...Option) *Reasoner {
	r := &Reasoner{
		service:  service,
		maxTrace: defaultMaxTrace,
		timeout:  60 * time.Second,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Ready reports whether a reasoning service is configured.
func (r *Reasoner) Ready() bool {
	return r != nil && r.service != nil && r.service.Ready()
}

// Reason produces an answer for in. It never fails: service errors and
// unparseable completions switch to the fallback.
func (r *Reasoner) Reason(ctx context.Context, in Input) Output {
	if !r.Ready() {
		return r.fallback(in, "reasoning service not configured")
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	completion, err := r.service.Complete(cctx, Request{
		SystemInstructions: systemInstructions,
		Prompt:             buildPrompt(in),
	})
	if err != nil {
		r.logger.Warn("reasoning degraded, service call failed", zap.Error(err))
		return r.fallback(in, "service call failed: "+err.Error())
	}

	answer, actions, err := parseCompletion(completion)
	if err != nil {
		r.logger.Warn("reasoning degraded, unparseable completion", zap.Int("chars", len(completion)))
		return r.fallback(in, "unparseable completion")
	}

	trace := fmt.Sprintf("mode=model intent=%s hits=%d actions=%s\n%s",
		in.Intent, len(in.MemoryContext), actionNames(actions), completion)
	return Output{
		Reasoning: semantic.Truncate(trace, r.maxTrace),
		Answer:    answer,
		Actions:   actions,
	}
}

func (r *Reasoner) fallback(in Input, why string) Output {
	actions := fallbackActions(in)
	trace := fmt.Sprintf("mode=fallback intent=%s hits=%d actions=%s cause=%s",
		in.Intent, len(in.MemoryContext), actionNames(actions), why)
	return Output{
		Reasoning: semantic.Truncate(trace, r.maxTrace),
		Answer:    fallbackAnswer(in, actions),
		Actions:   actions,
		Fallback:  true,
	}
}

func actionNames(actions []router.ProposedAction) string {
	if len(actions) == 0 {
		return "none"
	}
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = a.Tool
	}
	return strings.Join(names, ",")
}

// ─── Prompt ──────────────────────────────────────────────────────────────────

const systemInstructions = `You are the reasoning stage of a software project assistant.
Answer the user's query using the project context and session state provided.
Propose tool actions only when a listed tool would materially help, and only
tools from the provided list.

Reply with exactly one fenced JSON block and nothing else:

` + "```json" + `
{"answer": "<markdown answer>", "actions": [{"tool": "<name>", "params": {}, "reason": "<why>"}]}
` + "```"

func buildPrompt(in Input) string {
	var b strings.Builder

	intent := in.Intent
	if intent == "" {
		intent = "(none)"
	}
	fmt.Fprintf(&b, "## Intent\n%s\n\n## Query\n%s\n", intent, in.Query)
	if in.Area != "" {
		fmt.Fprintf(&b, "\n## Area\n%s\n", in.Area)
	}

	if len(in.WorkingState) > 0 {
		keys := make([]string, 0, len(in.WorkingState))
		for k := range in.WorkingState {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n## Session state\n")
		for _, k := range keys {
			v, err := json.Marshal(in.WorkingState[k])
			if err != nil {
				v = []byte(fmt.Sprint(in.WorkingState[k]))
			}
			fmt.Fprintf(&b, "- %s: %s\n", k, semantic.Truncate(string(v), 300))
		}
	}

	if len(in.Environment) > 0 {
		keys := make([]string, 0, len(in.Environment))
		for k := range in.Environment {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n## Environment\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, semantic.Truncate(in.Environment[k], 200))
		}
	}

	if len(in.MemoryContext) > 0 {
		b.WriteString("\n## Project context\n")
		for i, h := range in.MemoryContext {
			if i == promptHitLimit {
				break
			}
			fmt.Fprintf(&b, "\n### %s (%s, score %.2f)\n%s\n", h.PathOrURL, h.Source, h.Score,
				semantic.Truncate(h.Snippet, promptSnippetMax))
		}
	}

	b.WriteString("\n## Available tools\n")
	if len(in.Tools) == 0 {
		b.WriteString("(none; return an empty actions list)\n")
	} else {
		for _, t := range in.Tools {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}

	p := in.Preferences
	fmt.Fprintf(&b, "\n## Preferences\nexternal search: %t, visualizer: %t, project init: %t, prefer internal analysis: %t\n",
		p.AllowExternalSearch, p.AllowVisualizer, p.AllowInit, p.PreferInternalAnalysis)
	return b.String()
}
