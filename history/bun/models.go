package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/history"
	"github.com/cybinfo/pg-manager-sub005/id"
)

type executionModel struct {
	bun.BaseModel `bun:"table:saga_executions"`

	ID             string     `bun:"id,pk"`
	Workflow       string     `bun:"workflow,notnull"`
	State          string     `bun:"state,notnull,default:'running'"`
	ActorID        string     `bun:"actor_id"`
	ActorKind      string     `bun:"actor_kind"`
	ScopeID        string     `bun:"scope_id"`
	IdempotencyKey string     `bun:"idempotency_key"`
	Error          string     `bun:"error"`
	FailedSteps    []string   `bun:"failed_steps,array"`
	StartedAt      time.Time  `bun:"started_at,notnull"`
	CompletedAt    *time.Time `bun:"completed_at"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toExecutionModel(e *history.Execution) *executionModel {
	return &executionModel{
		ID:             e.ID.String(),
		Workflow:       e.Workflow,
		State:          string(e.State),
		ActorID:        e.ActorID,
		ActorKind:      string(e.ActorKind),
		ScopeID:        e.ScopeID,
		IdempotencyKey: e.IdempotencyKey,
		Error:          e.Error,
		FailedSteps:    e.FailedSteps,
		StartedAt:      e.StartedAt,
		CompletedAt:    e.CompletedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func fromExecutionModel(m *executionModel) (*history.Execution, error) {
	execID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("history/bun: parse execution id: %w", err)
	}

	return &history.Execution{
		Entity: saga.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             execID,
		Workflow:       m.Workflow,
		State:          history.State(m.State),
		ActorID:        m.ActorID,
		ActorKind:      saga.ActorKind(m.ActorKind),
		ScopeID:        m.ScopeID,
		IdempotencyKey: m.IdempotencyKey,
		Error:          m.Error,
		FailedSteps:    m.FailedSteps,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
	}, nil
}
