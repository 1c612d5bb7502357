package workflow

import (
	"context"

	saga "github.com/cybinfo/pg-manager-sub005"
)

// StepFunc executes one unit of work. It receives the immutable execution
// context, the workflow input, and a read-only view of prior step results,
// and returns a tagged result. Implementations must not panic; the engine
// converts panics that escape anyway into KindUnknown errors.
type StepFunc[In any] func(ctx context.Context, ec saga.ExecutionContext, input In, prior Results) saga.Result[any]

// RollbackFunc undoes a committed step during compensation. produced is the
// value the step's Execute returned.
type RollbackFunc[In any] func(ctx context.Context, ec saga.ExecutionContext, input In, produced any) error

// Step is a named unit of work inside a workflow definition.
type Step[In any] struct {
	// Name is the key under which the step's result is stored in the
	// shared results view. Unique within a definition.
	Name string

	// Execute performs the work. Required.
	Execute StepFunc[In]

	// Rollback compensates a committed Execute when a later required step
	// fails. Steps without Rollback are never undone.
	Rollback RollbackFunc[In]

	// Optional marks a step whose failure is recorded but neither aborts
	// the workflow nor triggers compensation.
	Optional bool
}

// ──────────────────────────────────────────────────
// Results
// ──────────────────────────────────────────────────

// resultEntry is one slot in the accumulator: either a produced value or a
// failed-optional-step marker.
type resultEntry struct {
	value  any
	failed bool
}

// Results is the read-only view of accumulated step results handed to step
// functions and derivation functions. A failed optional step occupies its
// slot with a marker: Get reports it as absent, Failed reports it as failed.
type Results struct {
	m map[string]resultEntry
}

// Get returns the value produced by the named step. ok is false if the step
// has not run, or ran and failed.
func (r Results) Get(name string) (any, bool) {
	e, ok := r.m[name]
	if !ok || e.failed {
		return nil, false
	}
	return e.value, true
}

// Failed reports whether the named step ran and failed (optional steps only;
// a required failure aborts the run before the view escapes).
func (r Results) Failed(name string) bool {
	e, ok := r.m[name]
	return ok && e.failed
}

// Len returns the number of steps that have a slot (committed or failed).
func (r Results) Len() int { return len(r.m) }

// As returns the value produced by the named step, typed. ok is false when
// the step is absent, failed, or produced a different type. Derivation
// functions use it to read defensively:
//
//	bill, _ := workflow.As[*Bill](results, "generate_initial_bill")
func As[T any](r Results, name string) (T, bool) {
	var zero T
	v, ok := r.Get(name)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// ResultSet is the mutable accumulator owned by the engine. Steps never see
// it; they get the Results view, which shares the underlying map but
// exposes no mutation.
type ResultSet struct {
	m map[string]resultEntry
}

// NewResultSet returns an empty accumulator.
func NewResultSet() *ResultSet {
	return &ResultSet{m: make(map[string]resultEntry)}
}

// Set stores a committed step value.
func (s *ResultSet) Set(name string, value any) {
	s.m[name] = resultEntry{value: value}
}

// MarkFailed stores the failed-step marker for an optional step.
func (s *ResultSet) MarkFailed(name string) {
	s.m[name] = resultEntry{failed: true}
}

// View returns the read-only view over the accumulator. The view is live:
// values set after View is called are visible through it, which is how
// step N+1 observes step N's result.
func (s *ResultSet) View() Results { return Results{m: s.m} }
