package router

import (
	"fmt"
	"sort"

	"github.com/HendryAvila/sage/internal/config"
)

// Category is the capability class a tool is registered under. Policy is
// decided on the category, never on the tool's name.
type Category string

const (
	CategoryRepository    Category = "repository"
	CategoryDocumentation Category = "documentation"
	CategoryWebResearch   Category = "web_research"
	CategoryProjectInit   Category = "project_init"
	CategoryMultiAgent    Category = "multi_agent"
	CategoryVisualizer    Category = "visualizer"
)

// AllCategories returns every known category in a stable order.
func AllCategories() []Category {
	return []Category{
		CategoryRepository,
		CategoryDocumentation,
		CategoryWebResearch,
		CategoryProjectInit,
		CategoryMultiAgent,
		CategoryVisualizer,
	}
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range AllCategories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("router: unknown category %q", s)
}

// Policy is the set of enabled categories for one routing batch.
type Policy map[Category]bool

// PolicyFromConfig builds a policy from the configured category flags.
func PolicyFromConfig(c config.Categories) Policy {
	return Policy{
		CategoryRepository:    c.Repository,
		CategoryDocumentation: c.Documentation,
		CategoryWebResearch:   c.WebResearch,
		CategoryProjectInit:   c.ProjectInit,
		CategoryMultiAgent:    c.MultiAgent,
		CategoryVisualizer:    c.Visualizer,
	}
}

// Allows reports whether c is enabled.
func (p Policy) Allows(c Category) bool { return p[c] }

// Without returns a copy of p with the given categories disabled.
func (p Policy) Without(cs ...Category) Policy {
	out := make(Policy, len(p))
	for k, v := range p {
		out[k] = v
	}
	for _, c := range cs {
		out[c] = false
	}
	return out
}

// Enabled lists enabled categories, sorted.
func (p Policy) Enabled() []Category {
	var out []Category
	for c, on := range p {
		if on {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ProposedAction is a candidate tool invocation. It lives for one call.
type ProposedAction struct {
	Tool   string         `json:"tool" yaml:"tool"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Reason string         `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// RoutedResult is the outcome of one successfully invoked action.
type RoutedResult struct {
	Name   string `json:"name" yaml:"name"`
	Result any    `json:"result" yaml:"result"`
}

// FailureKind classifies why an action produced no result.
type FailureKind string

const (
	// FailureSkipped covers disabled categories and unregistered tools. It
	// is a policy outcome, recorded for diagnostics only.
	FailureSkipped FailureKind = "skipped"
	// FailureRejected means the params failed the tool's input schema.
	FailureRejected FailureKind = "rejected"
	// FailureError means the handler failed, panicked or timed out.
	FailureError FailureKind = "error"
)

// Failure records an action that was not turned into a result.
type Failure struct {
	Tool   string      `json:"tool" yaml:"tool"`
	Kind   FailureKind `json:"kind" yaml:"kind"`
	Reason string      `json:"reason" yaml:"reason"`
}

// Batch is the outcome of one Route call. Both slices follow input order.
type Batch struct {
	Results  []RoutedResult `json:"results"`
	Failures []Failure      `json:"failures,omitempty"`
}

// UsedTools lists the names of tools that produced a result.
func (b Batch) UsedTools() []string {
	out := make([]string, 0, len(b.Results))
	for _, r := range b.Results {
		out = append(out, r.Name)
	}
	return out
}
