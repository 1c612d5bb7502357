package workflow

import (
	"encoding/json"
	"fmt"

	saga "github.com/cybinfo/pg-manager-sub005"
)

// Outcome is the typed result of one workflow execution.
//
// Success with a non-empty FailedSteps is the explicit partial-success
// contract: the run committed, but the listed optional steps did not.
// Failure carries the aborting step's error (never rollback errors, which
// are diagnostic only).
type Outcome[Out any] struct {
	Success     bool          `json:"success"`
	Data        Out           `json:"data,omitempty"`
	Errors      []*saga.Error `json:"errors,omitempty"`
	FailedSteps []string      `json:"failed_steps,omitempty"`
}

// RawOutcome is the serialized form of an Outcome, with the output held as
// JSON. It is what the idempotency cache stores and what the registry's
// type-erased executors return.
type RawOutcome struct {
	Success     bool            `json:"success"`
	Data        json.RawMessage `json:"data,omitempty"`
	Errors      []*saga.Error   `json:"errors,omitempty"`
	FailedSteps []string        `json:"failed_steps,omitempty"`
}

// Marshal converts a typed outcome to its raw form.
func Marshal[Out any](o *Outcome[Out]) (*RawOutcome, error) {
	raw := &RawOutcome{
		Success:     o.Success,
		Errors:      o.Errors,
		FailedSteps: o.FailedSteps,
	}
	if o.Success {
		data, err := json.Marshal(o.Data)
		if err != nil {
			return nil, fmt.Errorf("workflow: marshal outcome data: %w", err)
		}
		raw.Data = data
	}
	return raw, nil
}

// Unmarshal converts a raw outcome back to its typed form.
func Unmarshal[Out any](raw *RawOutcome) (*Outcome[Out], error) {
	o := &Outcome[Out]{
		Success:     raw.Success,
		Errors:      raw.Errors,
		FailedSteps: raw.FailedSteps,
	}
	if len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, &o.Data); err != nil {
			return nil, fmt.Errorf("workflow: unmarshal outcome data: %w", err)
		}
	}
	return o, nil
}
