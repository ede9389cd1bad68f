package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/sage/internal/router"
	"github.com/HendryAvila/sage/internal/semantic"
)

// Errors surfaced by Invoke as error responses.
var (
	ErrInvalidIntent  = errors.New("orchestrator: invalid intent")
	ErrMissingSession = errors.New("orchestrator: session id is required")
	ErrEmptyQuery     = errors.New("orchestrator: query text is required")
)

// Intent is the declared purpose of a query.
type Intent string

const (
	IntentNone    Intent = ""
	IntentAnalyze Intent = "analyze"
	IntentExplain Intent = "explain"
	IntentSuggest Intent = "suggest"
	IntentPlan    Intent = "plan"
	IntentReflect Intent = "reflect"
)

// Intents lists the valid intents.
func Intents() []Intent {
	return []Intent{IntentAnalyze, IntentExplain, IntentSuggest, IntentPlan, IntentReflect}
}

// ParseIntent validates s, case-insensitively. Empty is IntentNone.
func ParseIntent(s string) (Intent, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return IntentNone, nil
	}
	for _, i := range Intents() {
		if string(i) == s {
			return i, nil
		}
	}
	return "", fmt.Errorf("%w: %q (use analyze, explain, suggest, plan or reflect)", ErrInvalidIntent, s)
}

// MayRoute reports whether actions proposed for this intent may reach the
// router. explain and suggest are answer-only, and so is a missing intent.
func (i Intent) MayRoute() bool {
	switch i {
	case IntentAnalyze, IntentPlan, IntentReflect:
		return true
	default:
		return false
	}
}

// Kind classifies a response.
type Kind string

const (
	KindResponse Kind = "response"
	KindStrategy Kind = "strategy"
	KindInsight  Kind = "insight"
)

// Kind maps the intent to its response kind.
func (i Intent) Kind() Kind {
	switch i {
	case IntentPlan:
		return KindStrategy
	case IntentReflect:
		return KindInsight
	default:
		return KindResponse
	}
}

// Query is one natural-language request.
type Query struct {
	Intent     Intent `json:"intent,omitempty" yaml:"intent,omitempty"`
	Text       string `json:"text" yaml:"text"`
	Area       string `json:"area,omitempty" yaml:"area,omitempty"`
	TargetPath string `json:"target_path,omitempty" yaml:"target_path,omitempty"`
	MaxDepth   int    `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
}

// ToolPreferences narrows the configured category policy for one call. A
// nil field leaves the configured value untouched.
type ToolPreferences struct {
	AllowExternalSearch    *bool `json:"allow_external_search,omitempty"`
	AllowVisualizer        *bool `json:"allow_visualizer,omitempty"`
	AllowInit              *bool `json:"allow_init,omitempty"`
	PreferInternalAnalysis *bool `json:"prefer_internal_analysis,omitempty"`
}

// Context carries the per-call session and policy. It is not persisted.
type Context struct {
	SessionID       string            `json:"session_id"`
	ProjectPath     string            `json:"project_path,omitempty"`
	ToolPreferences ToolPreferences   `json:"tool_preferences"`
	Environment     map[string]string `json:"environment,omitempty"`
}

// Meta describes how a response was produced.
type Meta struct {
	TraceID    string                `json:"trace_id" yaml:"trace_id"`
	DurationMS int64                 `json:"duration_ms" yaml:"duration_ms"`
	Degraded   bool                  `json:"degraded,omitempty" yaml:"degraded,omitempty"`
	Fallback   bool                  `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Canceled   bool                  `json:"canceled,omitempty" yaml:"canceled,omitempty"`
	Error      bool                  `json:"error,omitempty" yaml:"error,omitempty"`
	Notes      []string              `json:"notes,omitempty" yaml:"notes,omitempty"`
	Failures   []router.Failure      `json:"failures,omitempty" yaml:"failures,omitempty"`
	Index      *semantic.IndexReport `json:"index,omitempty" yaml:"index,omitempty"`
}

// Response is the terminal artifact of one query.
type Response struct {
	Kind         Kind                  `json:"kind" yaml:"kind"`
	Title        string                `json:"title,omitempty" yaml:"title,omitempty"`
	Text         string                `json:"text" yaml:"text"`
	Data         []router.RoutedResult `json:"data,omitempty" yaml:"data,omitempty"`
	MemoryHits   []semantic.Hit        `json:"memory_hits" yaml:"memory_hits"`
	UsedTools    []string              `json:"used_tools" yaml:"used_tools"`
	SessionID    string                `json:"session_id" yaml:"session_id"`
	WorkingState map[string]any        `json:"working_state,omitempty" yaml:"working_state,omitempty"`
	Trace        string                `json:"trace,omitempty" yaml:"trace,omitempty"`
	Meta         Meta                  `json:"meta" yaml:"meta"`
}

// ErrorMarker prefixes the text of error responses.
const ErrorMarker = "[error]"

// CanceledMarker prefixes the text of canceled responses.
const CanceledMarker = "[canceled]"
