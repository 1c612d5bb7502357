// Package middleware provides composable middleware for step execution.
// Middleware wraps each step call synchronously and can modify execution
// (recover from panics, log, add tracing and metrics).
package middleware

import (
	"context"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/id"
)

// StepInfo describes the step being executed, for middleware consumption.
type StepInfo struct {
	// Workflow is the definition name.
	Workflow string
	// Step is the step name.
	Step string
	// Optional mirrors the step's Optional flag.
	Optional bool
	// ExecutionID identifies the run.
	ExecutionID id.ID
	// Context is the immutable execution context of the run.
	Context saga.ExecutionContext
}

// Handler is the terminal function that executes step logic.
type Handler func(ctx context.Context) saga.Result[any]

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the step being executed, and the next handler to call.
// Middleware MUST call next to continue the chain (unless short-circuiting
// with a failed result).
type Middleware func(ctx context.Context, info *StepInfo, next Handler) saga.Result[any]

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, tracing) executes as:
//
//	logging → recover → tracing → step
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, info *StepInfo, next Handler) saga.Result[any] {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) saga.Result[any] {
				return mw(ctx, info, prev)
			}
		}
		return h(ctx)
	}
}
