// Package orchestrator composes working memory, semantic memory, the
// reasoner and the tool router into one request/response cycle.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HendryAvila/sage/internal/config"
	"github.com/HendryAvila/sage/internal/reasoning"
	"github.com/HendryAvila/sage/internal/router"
	"github.com/HendryAvila/sage/internal/semantic"
	"github.com/HendryAvila/sage/internal/workmem"
)

// Orchestrator handles queries. It is safe for concurrent use.
type Orchestrator struct {
	categories config.Categories
	working    *workmem.Store
	memory     *semantic.Memory
	reasoner   *reasoning.Reasoner
	router     *router.Router
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCategories sets the configured category flags.
func WithCategories(c config.Categories) Option {
	return func(o *Orchestrator) { o.categories = c }
}

// WithWorkingMemory sets the session store.
func WithWorkingMemory(s *workmem.Store) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.working = s
		}
	}
}

// WithSemanticMemory enables retrieval. Without it every call runs without
// project context.
func WithSemanticMemory(m *semantic.Memory) Option {
	return func(o *Orchestrator) { o.memory = m }
}

// WithReasoner sets the reflective layer.
func WithReasoner(r *reasoning.Reasoner) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.reasoner = r
		}
	}
}

// WithRouter sets the tool router.
func WithRouter(r *router.Router) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.router = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now for outcome timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an Orchestrator. Unset collaborators get working defaults: an
// in-process working memory, a fallback-only reasoner and an empty registry.
func New(opts ...Option) *Orchestrator {
	d := config.Default()
	o := &Orchestrator{
		categories: d.Categories,
		working:    workmem.New(nil, d.WorkingMemory.TTL),
		reasoner:   reasoning.New(nil),
		router:     router.New(router.NewRegistry()),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Invoke is the outer boundary around Handle. It never panics and never
// returns an error: failures become responses tagged with ErrorMarker.
func (o *Orchestrator) Invoke(ctx context.Context, q Query, c Context) (resp Response) {
	start := o.now()
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("handle panicked",
				zap.String("session_id", c.SessionID),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			resp = errorResponse(c.SessionID, fmt.Sprintf("internal error: %v", p), o.now().Sub(start))
		}
	}()

	resp, err := o.Handle(ctx, q, c)
	if err != nil {
		return errorResponse(c.SessionID, err.Error(), o.now().Sub(start))
	}
	return resp
}

func errorResponse(sessionID, msg string, elapsed time.Duration) Response {
	return Response{
		Kind:       KindResponse,
		Text:       ErrorMarker + " " + msg,
		MemoryHits: []semantic.Hit{},
		UsedTools:  []string{},
		SessionID:  sessionID,
		Meta: Meta{
			TraceID:    uuid.NewString(),
			DurationMS: elapsed.Milliseconds(),
			Error:      true,
		},
	}
}

// Handle runs one query. It returns an error only for invalid input; every
// failure inside the pipeline degrades the response instead.
func (o *Orchestrator) Handle(ctx context.Context, q Query, c Context) (Response, error) {
	start := o.now()
	if strings.TrimSpace(c.SessionID) == "" {
		return Response{}, ErrMissingSession
	}
	intent, err := ParseIntent(string(q.Intent))
	if err != nil {
		return Response{}, err
	}
	if strings.TrimSpace(q.Text) == "" {
		return Response{}, ErrEmptyQuery
	}

	traceID := uuid.NewString()
	log := o.logger.With(zap.String("trace_id", traceID), zap.String("session_id", c.SessionID))
	meta := Meta{TraceID: traceID}

	// Intent patch; must commit before reasoning.
	if err := o.working.Patch(ctx, c.SessionID, map[string]any{
		"lastQuery":  q.Text,
		"lastIntent": string(intent),
		"area":       q.Area,
		"targetPath": q.TargetPath,
	}); err != nil {
		log.Warn("intent patch failed", zap.Error(err))
		meta.Notes = append(meta.Notes, "session state could not be saved")
	}

	policy := o.effectivePolicy(c.ToolPreferences)
	hits := o.retrieve(ctx, log, intent, q, c, &meta)

	state, _ := o.working.Get(ctx, c.SessionID)

	var tools []string
	if intent.MayRoute() {
		tools = o.router.Registry().Names(policy)
	}
	out := o.reason(ctx, log, reasoning.Input{
		Intent:        string(intent),
		Query:         q.Text,
		Area:          q.Area,
		ProjectPath:   c.ProjectPath,
		MemoryContext: hits,
		WorkingState:  state,
		Preferences:   o.preferences(policy, c.ToolPreferences),
		Environment:   c.Environment,
		Tools:         tools,
	})
	if out.Fallback {
		meta.Fallback = true
		meta.Notes = append(meta.Notes, "reasoning service unavailable")
	}

	// explain, suggest and a missing intent never reach the router.
	batch := router.Batch{Results: []router.RoutedResult{}}
	actions := out.Actions
	if q.MaxDepth > 0 && len(actions) > q.MaxDepth {
		log.Info("proposed actions capped", zap.Int("proposed", len(actions)), zap.Int("max_depth", q.MaxDepth))
		actions = actions[:q.MaxDepth]
	}
	if intent.MayRoute() && len(actions) > 0 {
		batch = o.router.Route(ctx, policy, actions)
	}
	meta.Failures = batch.Failures

	resp := Response{
		Kind:       intent.Kind(),
		Title:      strings.ToUpper(string(intent)),
		Text:       out.Answer,
		MemoryHits: hits,
		UsedTools:  batch.UsedTools(),
		SessionID:  c.SessionID,
		Trace:      out.Reasoning,
	}
	if len(batch.Results) > 0 {
		resp.Data = batch.Results
	}

	if ctx.Err() != nil {
		meta.Canceled = true
		resp.Text = CanceledMarker + " " + resp.Text
	}
	if len(meta.Notes) > 0 {
		meta.Degraded = true
		resp.Text += "\n\n_Note: reduced capability (" + strings.Join(meta.Notes, "; ") + ")._"
	}

	// Outcome patch; must commit before returning even if the caller gave up.
	persistCtx := context.WithoutCancel(ctx)
	if err := o.working.Patch(persistCtx, c.SessionID, map[string]any{
		"lastOutcome": map[string]any{
			"kind":      string(resp.Kind),
			"usedTools": resp.UsedTools,
			"timestamp": o.now().UTC().Format(time.RFC3339),
		},
	}); err != nil {
		log.Warn("outcome patch failed", zap.Error(err))
	}
	if snapshot, ok := o.working.Get(persistCtx, c.SessionID); ok {
		resp.WorkingState = snapshot
	}

	meta.DurationMS = o.now().Sub(start).Milliseconds()
	resp.Meta = meta
	log.Info("query handled",
		zap.String("intent", string(intent)),
		zap.String("kind", string(resp.Kind)),
		zap.Int("hits", len(resp.MemoryHits)),
		zap.Strings("used_tools", resp.UsedTools),
		zap.Bool("degraded", meta.Degraded),
	)
	return resp, nil
}

// retrieve indexes and searches the project when one is given. Panics and
// failures turn into empty hits.
func (o *Orchestrator) retrieve(ctx context.Context, log *zap.Logger, intent Intent, q Query, c Context, meta *Meta) (hits []semantic.Hit) {
	hits = []semantic.Hit{}
	if c.ProjectPath == "" {
		return hits
	}
	if intent == IntentReflect && isFalse(c.ToolPreferences.PreferInternalAnalysis) {
		return hits
	}
	if !o.memory.Ready() {
		meta.Notes = append(meta.Notes, "semantic memory unavailable")
		return hits
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error("retrieval panicked", zap.Any("panic", p))
			meta.Notes = append(meta.Notes, "retrieval failed")
			hits = []semantic.Hit{}
		}
	}()

	report := o.memory.EnsureIndexedProject(ctx, c.ProjectPath, semantic.ScopeAll)
	meta.Index = &report
	if report.Skipped {
		meta.Notes = append(meta.Notes, "project could not be indexed")
		return hits
	}

	text := q.Text
	if q.Area != "" {
		text = q.Area + ": " + text
	}
	return o.memory.SearchProject(ctx, text, semantic.SearchOptions{Project: c.ProjectPath})
}

// reason calls the reasoner, falling back to rule-based reasoning if it panics.
func (o *Orchestrator) reason(ctx context.Context, log *zap.Logger, in reasoning.Input) (out reasoning.Output) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("reasoning panicked", zap.Any("panic", p))
			out = reasoning.New(nil).Reason(ctx, in)
		}
	}()
	return o.reasoner.Reason(ctx, in)
}

// effectivePolicy is the configured category flags narrowed by the call's
// preferences. Preferences never enable a category the config disables.
func (o *Orchestrator) effectivePolicy(p ToolPreferences) router.Policy {
	policy := router.PolicyFromConfig(o.categories)
	if isFalse(p.AllowExternalSearch) {
		policy = policy.Without(router.CategoryWebResearch)
	}
	if isFalse(p.AllowVisualizer) {
		policy = policy.Without(router.CategoryVisualizer)
	}
	if isFalse(p.AllowInit) {
		policy = policy.Without(router.CategoryProjectInit)
	}
	return policy
}

func (o *Orchestrator) preferences(policy router.Policy, p ToolPreferences) reasoning.Preferences {
	return reasoning.Preferences{
		AllowExternalSearch:    policy.Allows(router.CategoryWebResearch),
		AllowVisualizer:        policy.Allows(router.CategoryVisualizer),
		AllowInit:              policy.Allows(router.CategoryProjectInit),
		PreferInternalAnalysis: !isFalse(p.PreferInternalAnalysis),
	}
}

// WorkingState returns the session's current state, for hosts that expose it.
func (o *Orchestrator) WorkingState(ctx context.Context, sessionID string) (map[string]any, bool) {
	return o.working.Get(ctx, sessionID)
}

func isFalse(b *bool) bool { return b != nil && !*b }
