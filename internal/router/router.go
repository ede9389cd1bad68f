// Package router dispatches proposed actions to registered capabilities.
//
// Each action passes a category policy check, a registry lookup and schema
// validation before its handler runs. Handler failures are isolated: one
// failing call never discards the results of the others in its batch.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Router validates and invokes actions against a Registry.
type Router struct {
	registry    *Registry
	concurrency int
	callTimeout time.Duration
	logger      *zap.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithConcurrency bounds how many handlers run at once.
func WithConcurrency(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithCallTimeout bounds each handler invocation.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.callTimeout = d
		}
	}
}

// WithLogger sets the router's logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Router over reg.
func New(reg *Registry, opts ...Option) *Router {
	r := &Router{
		registry:    reg,
		concurrency: 4,
		callTimeout: 30 * time.Second,
		logger:      zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Registry returns the registry the router dispatches to.
func (r *Router) Registry() *Registry { return r.registry }

type outcome struct {
	result  *RoutedResult
	failure *Failure
}

// Route runs calls under policy. Results and failures follow input order.
func (r *Router) Route(ctx context.Context, policy Policy, calls []ProposedAction) Batch {
	outcomes := make([]outcome, len(calls))

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i, call := range calls {
		entry, ok := r.registry.Lookup(call.Tool)
		if !ok {
			outcomes[i].failure = &Failure{Tool: call.Tool, Kind: FailureSkipped, Reason: "tool not registered"}
			continue
		}
		if !policy.Allows(entry.Category) {
			outcomes[i].failure = &Failure{Tool: call.Tool, Kind: FailureSkipped,
				Reason: fmt.Sprintf("category %s disabled", entry.Category)}
			continue
		}
		params, err := ValidateParams(entry.Tool, call.Params)
		if err != nil {
			r.logger.Info("action rejected", zap.String("tool", call.Tool), zap.Error(err))
			outcomes[i].failure = &Failure{Tool: call.Tool, Kind: FailureRejected, Reason: err.Error()}
			continue
		}

		g.Go(func() error {
			outcomes[i] = r.invoke(ctx, entry, params)
			return nil
		})
	}
	_ = g.Wait()

	var batch Batch
	batch.Results = []RoutedResult{}
	for _, o := range outcomes {
		switch {
		case o.result != nil:
			batch.Results = append(batch.Results, *o.result)
		case o.failure != nil:
			batch.Failures = append(batch.Failures, *o.failure)
		}
	}
	return batch
}

type handlerReturn struct {
	res *mcp.CallToolResult
	err error
}

func (r *Router) invoke(ctx context.Context, entry Entry, params map[string]any) outcome {
	name := entry.Name()
	fail := func(reason string) outcome {
		r.logger.Warn("tool call failed", zap.String("tool", name), zap.String("reason", reason))
		return outcome{failure: &Failure{Tool: name, Kind: FailureError, Reason: reason}}
	}
	if err := ctx.Err(); err != nil {
		return fail(err.Error())
	}

	cctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = params

	done := make(chan handlerReturn, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- handlerReturn{err: fmt.Errorf("handler panicked: %v", p)}
			}
		}()
		res, err := entry.Handler(cctx, req)
		done <- handlerReturn{res: res, err: err}
	}()

	hr, timedOut := await(ctx, cctx, done)
	if timedOut {
		return fail(fmt.Sprintf("timed out after %s", r.callTimeout))
	}

	switch {
	case hr.err != nil:
		return fail(hr.err.Error())
	case hr.res == nil:
		return fail("handler returned no result")
	case hr.res.IsError:
		return fail(ResultText(hr.res))
	}
	r.logger.Debug("tool call succeeded", zap.String("tool", name))
	return outcome{result: &RoutedResult{Name: name, Result: ResultText(hr.res)}}
}

// await waits for the handler or for cctx to end. A result already delivered
// wins over a deadline that expires at the same moment. timedOut is set only
// when the per-call deadline, not the parent context, ended the call.
func await(ctx, cctx context.Context, done <-chan handlerReturn) (hr handlerReturn, timedOut bool) {
	deadline := func() bool {
		return errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	}
	select {
	case hr = <-done:
		return hr, hr.err != nil && errors.Is(hr.err, context.DeadlineExceeded) && deadline()
	case <-cctx.Done():
	}
	select {
	case hr = <-done:
		return hr, hr.err != nil && errors.Is(hr.err, context.DeadlineExceeded) && deadline()
	default:
	}
	return handlerReturn{err: cctx.Err()}, deadline()
}

// ResultText joins the text contents of a tool result.
func ResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
