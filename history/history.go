// Package history records workflow executions: one row per run, updated on
// terminal completion. The engine writes records best-effort; a history
// failure never changes a workflow's reported outcome.
//
// History is the out-of-band detection channel for the compensation
// algorithm's accepted gaps: when a rollback itself fails, the execution
// record plus the audit trail are what an operator inspects to find
// orphaned side effects.
package history

import (
	"context"
	"time"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/id"
)

// State represents the lifecycle state of an execution.
type State string

const (
	// StateRunning means the workflow is currently executing.
	StateRunning State = "running"
	// StateCompleted means the workflow finished successfully
	// (possibly with failed optional steps).
	StateCompleted State = "completed"
	// StateFailed means a required step failed and compensation ran.
	StateFailed State = "failed"
)

// Execution is one workflow run record.
type Execution struct {
	saga.Entity

	ID             id.ID          `json:"id"`
	Workflow       string         `json:"workflow"`
	State          State          `json:"state"`
	ActorID        string         `json:"actor_id,omitempty"`
	ActorKind      saga.ActorKind `json:"actor_kind,omitempty"`
	ScopeID        string         `json:"scope_id,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Error          string         `json:"error,omitempty"`
	FailedSteps    []string       `json:"failed_steps,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// ListOpts controls filtering and pagination for execution list queries.
type ListOpts struct {
	// Limit is the maximum number of executions to return. Zero means no limit.
	Limit int
	// Offset is the number of executions to skip.
	Offset int
	// State filters by state. Empty means all states.
	State State
	// Workflow filters by definition name. Empty means all workflows.
	Workflow string
}

// Store defines the persistence contract for execution records.
type Store interface {
	// CreateExecution persists a new execution record.
	CreateExecution(ctx context.Context, e *Execution) error

	// UpdateExecution persists changes to an existing execution record.
	UpdateExecution(ctx context.Context, e *Execution) error

	// GetExecution retrieves an execution by ID.
	GetExecution(ctx context.Context, execID id.ID) (*Execution, error)

	// ListExecutions returns executions matching the given options,
	// newest first.
	ListExecutions(ctx context.Context, opts ListOpts) ([]*Execution, error)
}
