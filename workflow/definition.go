package workflow

import (
	"fmt"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/audit"
	"github.com/cybinfo/pg-manager-sub005/notify"
)

// Definition is a typed workflow: an ordered step list plus the three
// derivation functions the engine calls on terminal success.
//
// In is the input type, Out the projected output type. AuditEvents and
// Notifications may be nil (nothing derived); BuildOutput is required and
// must tolerate failed optional steps by reading the results defensively.
type Definition[In, Out any] struct {
	// Name is the unique identifier for this workflow type.
	Name string

	// Steps run sequentially in slice order.
	Steps []Step[In]

	// AuditEvents builds the audit trail entries for a successful run.
	AuditEvents func(ec saga.ExecutionContext, input In, results Results) []*audit.Event

	// Notifications builds the payloads to dispatch after a successful run.
	Notifications func(ec saga.ExecutionContext, input In, results Results) []*notify.Payload

	// BuildOutput projects the final output from the accumulated results.
	BuildOutput func(results Results) Out
}

// Validate checks the structural invariants of the definition: a non-empty
// name, at least one step, unique step names, and non-nil Execute and
// BuildOutput functions. Returned errors wrap saga.ErrInvalidDefinition.
func (d *Definition[In, Out]) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: empty workflow name", saga.ErrInvalidDefinition)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: workflow %q has no steps", saga.ErrInvalidDefinition, d.Name)
	}
	if d.BuildOutput == nil {
		return fmt.Errorf("%w: workflow %q has no BuildOutput", saga.ErrInvalidDefinition, d.Name)
	}

	seen := make(map[string]struct{}, len(d.Steps))
	for i, step := range d.Steps {
		if step.Name == "" {
			return fmt.Errorf("%w: workflow %q step %d has no name", saga.ErrInvalidDefinition, d.Name, i)
		}
		if step.Execute == nil {
			return fmt.Errorf("%w: workflow %q step %q has no Execute", saga.ErrInvalidDefinition, d.Name, step.Name)
		}
		if _, dup := seen[step.Name]; dup {
			return fmt.Errorf("%w: workflow %q has duplicate step %q", saga.ErrInvalidDefinition, d.Name, step.Name)
		}
		seen[step.Name] = struct{}{}
	}
	return nil
}

// Warnings reports ordering hazards that are legal but risky: an optional,
// rollback-less step that precedes a required step commits a side effect
// the compensation phase can never undo. Authors either accept the
// inconsistency window (and say so) or reorder the steps.
func (d *Definition[In, Out]) Warnings() []string {
	lastRequired := -1
	for i := len(d.Steps) - 1; i >= 0; i-- {
		if !d.Steps[i].Optional {
			lastRequired = i
			break
		}
	}

	var warnings []string
	for i, step := range d.Steps {
		if i >= lastRequired {
			break
		}
		if step.Optional && step.Rollback == nil {
			warnings = append(warnings, fmt.Sprintf(
				"workflow %q: optional step %q has no rollback but precedes required step %q; its side effects survive a later abort",
				d.Name, step.Name, d.Steps[lastRequired].Name))
		}
	}
	return warnings
}
