package semantic

import (
	"fmt"
	"time"
)

// Source tells where a hit came from.
type Source string

const (
	SourceFile Source = "file"
	SourceDoc  Source = "doc"
)

// Scope selects which project content an index pass covers.
type Scope string

const (
	ScopeAll  Scope = "all"
	ScopeCode Scope = "code"
	ScopeDocs Scope = "docs"
)

// ParseScope validates a scope string. Empty means ScopeAll.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeCode, ScopeDocs:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("semantic: unknown scope %q (use all, code or docs)", s)
	}
}

// sources lists the sources a scope covers.
func (s Scope) sources() []Source {
	switch s {
	case ScopeCode:
		return []Source{SourceFile}
	case ScopeDocs:
		return []Source{SourceDoc}
	default:
		return []Source{SourceFile, SourceDoc}
	}
}

func (s Scope) includes(src Source) bool {
	for _, x := range s.sources() {
		if x == src {
			return true
		}
	}
	return false
}

// Hit is one retrieved snippet with its relevance score and provenance.
// Hits are produced read-only and never mutated afterwards.
type Hit struct {
	Source    Source  `json:"source" yaml:"source"`
	PathOrURL string  `json:"path_or_url" yaml:"path_or_url"`
	Title     string  `json:"title,omitempty" yaml:"title,omitempty"`
	Language  string  `json:"language,omitempty" yaml:"language,omitempty"`
	Score     float64 `json:"score" yaml:"score"`
	Snippet   string  `json:"snippet" yaml:"snippet"`

	chunk int
}

// SearchOptions bounds a search. Zero Limit and ScoreThreshold use the
// memory's configured defaults; a negative threshold means "no threshold".
type SearchOptions struct {
	Project        string
	Source         Source
	Limit          int
	ScoreThreshold float64
}

// IndexReport summarises one EnsureIndexedProject call.
type IndexReport struct {
	Project   string   `json:"project"`
	Scope     Scope    `json:"scope"`
	Files     int      `json:"files"`
	Chunks    int      `json:"chunks"`
	Embedded  int      `json:"embedded"`
	Pruned    int      `json:"pruned"`
	Unchanged bool     `json:"unchanged,omitempty"`
	Skipped   bool     `json:"skipped,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// ProjectInfo describes one indexed project.
type ProjectInfo struct {
	Path      string    `json:"path"`
	Files     int       `json:"files"`
	Chunks    int       `json:"chunks"`
	IndexedAt time.Time `json:"indexed_at"`
}
