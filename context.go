package saga

// ActorKind distinguishes the owning principal of a workspace from
// delegated staff acting on their behalf.
type ActorKind string

const (
	// ActorOwner is the owning principal of the property workspace.
	ActorOwner ActorKind = "owner"
	// ActorStaff is a delegated staff member.
	ActorStaff ActorKind = "staff"
)

// ExecutionContext identifies one workflow invocation: who is acting, in
// which workspace, and under which idempotency key (if any). It is a value
// type and is never mutated by steps; derive variants with the With*
// methods.
type ExecutionContext struct {
	// ActorID identifies the acting user.
	ActorID string
	// ActorKind is owner or staff.
	ActorKind ActorKind
	// ScopeID is the workspace (property) the execution is scoped to.
	ScopeID string
	// IdempotencyKey deduplicates logically identical retries. Empty
	// means the execution is not deduplicated.
	IdempotencyKey string
}

// NewExecutionContext builds a context for the given actor and scope.
func NewExecutionContext(actorID string, kind ActorKind, scopeID string) ExecutionContext {
	return ExecutionContext{ActorID: actorID, ActorKind: kind, ScopeID: scopeID}
}

// WithIdempotencyKey returns a copy with the idempotency key set.
func (c ExecutionContext) WithIdempotencyKey(key string) ExecutionContext {
	c.IdempotencyKey = key
	return c
}
