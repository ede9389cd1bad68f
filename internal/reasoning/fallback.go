package reasoning

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/HendryAvila/sage/internal/router"
)

// maxFallbackActions bounds the actions proposed without a model.
const maxFallbackActions = 3

// rule proposes one tool when the query mentions any of its keywords. A
// keyword matches a whole word or its plural, a trailing '*' makes it a word
// prefix, and keywords with a space match as phrases.
type rule struct {
	tool     string
	reason   string
	keywords []string
	params   func(in Input) map[string]any
}

func queryParam(key string) func(Input) map[string]any {
	return func(in Input) map[string]any { return map[string]any{key: in.Query} }
}

var rules = []rule{
	{
		tool:     "visualizer_render",
		reason:   "the query asks for a visual representation",
		keywords: []string{"diagram", "visuali*", "chart", "graph", "draw", "drawing", "mermaid", "flowchart"},
		params:   queryParam("subject"),
	},
	{
		tool:     "docs_search",
		reason:   "the query refers to documentation",
		keywords: []string{"doc", "docs", "documentation", "readme", "guide", "manual"},
		params:   queryParam("query"),
	},
	{
		tool:     "project_init",
		reason:   "the query asks to initialise a project",
		keywords: []string{"initiali*", "init", "scaffold", "bootstrap", "new project", "set up"},
		params: func(in Input) map[string]any {
			p := map[string]any{}
			if in.ProjectPath != "" {
				p["path"] = in.ProjectPath
			}
			return p
		},
	},
	{
		tool:     "web_research",
		reason:   "the query needs information from outside the project",
		keywords: []string{"web", "online", "internet", "latest", "news", "paper", "research"},
		params:   queryParam("query"),
	},
	{
		tool:     "agents_delegate",
		reason:   "the query asks for delegation to other agents",
		keywords: []string{"delegat*", "agents", "multi-agent", "team of"},
		params:   queryParam("task"),
	},
	{
		tool:     "repo_list",
		reason:   "the query asks about indexed repositories",
		keywords: []string{"repositor*", "repos", "indexed projects", "list projects"},
		params:   func(Input) map[string]any { return map[string]any{} },
	},
}

// fallbackActions applies the keyword rules in fixed order.
func fallbackActions(in Input) []router.ProposedAction {
	text := strings.ToLower(in.Query)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	var out []router.ProposedAction
	for _, r := range rules {
		if !matches(text, words, r.keywords) {
			continue
		}
		out = append(out, router.ProposedAction{Tool: r.tool, Params: r.params(in), Reason: r.reason})
		if len(out) == maxFallbackActions {
			break
		}
	}
	return out
}

func matches(text string, words, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(text, kw) {
				return true
			}
			continue
		}
		stem, prefix := strings.CutSuffix(kw, "*")
		for _, w := range words {
			if prefix && strings.HasPrefix(w, stem) {
				return true
			}
			if w == kw || w == kw+"s" {
				return true
			}
		}
	}
	return false
}

// intentLead opens a fallback answer.
var intentLead = map[string]string{
	"analyze": "Analysis",
	"explain": "Explanation",
	"suggest": "Suggestions",
	"plan":    "Plan",
	"reflect": "Reflection",
}

// fallbackAnswer synthesises a deterministic, non-empty answer.
func fallbackAnswer(in Input, actions []router.ProposedAction) string {
	var b strings.Builder

	lead, ok := intentLead[in.Intent]
	if !ok {
		lead = "Answer"
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		query = "(no query text)"
	}
	fmt.Fprintf(&b, "%s for %q", lead, query)
	if in.Area != "" {
		fmt.Fprintf(&b, " in area %q", in.Area)
	}
	b.WriteString(".\n")

	if len(in.MemoryContext) > 0 {
		b.WriteString("\nMost relevant project context:\n")
		for i, h := range in.MemoryContext {
			if i == 3 {
				break
			}
			title := h.Title
			if title == "" {
				title = h.PathOrURL
			}
			fmt.Fprintf(&b, "- %s (%s, score %.2f)\n", title, h.PathOrURL, h.Score)
		}
	} else {
		b.WriteString("\nNo indexed project context matched this query.\n")
	}

	switch in.Intent {
	case "plan":
		b.WriteString("\nProposed steps:\n")
		b.WriteString("1. Review the context listed above and confirm the scope.\n")
		b.WriteString("2. Break the change into small, independently verifiable steps.\n")
		b.WriteString("3. Implement each step with tests, then review the result.\n")
	case "suggest":
		b.WriteString("\nStart from the most relevant files above and compare them against the goal of the query.\n")
	case "reflect":
		if prev, ok := in.WorkingState["lastIntent"]; ok {
			fmt.Fprintf(&b, "\nThe previous request in this session was a %v query.\n", prev)
		}
	}

	if len(in.WorkingState) > 0 {
		keys := make([]string, 0, len(in.WorkingState))
		for k := range in.WorkingState {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(&b, "\nSession state keys: %s.\n", strings.Join(keys, ", "))
	}

	if len(actions) > 0 {
		b.WriteString("\nSuggested capabilities:\n")
		for _, a := range actions {
			fmt.Fprintf(&b, "- %s: %s\n", a.Tool, a.Reason)
		}
	}

	b.WriteString("\n(Reduced capability: no reasoning service was available, so this answer was produced by deterministic rules.)")
	return b.String()
}
