// Package audit defines the immutable audit trail contract: the event
// record written after each successful workflow completion and the sink
// interface that persists it.
//
// Audit persistence is best-effort: the engine logs and swallows
// sink failures because the business transaction already succeeded from the
// caller's point of view.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/id"
)

// Severity constants for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is one entry in the immutable audit trail.
type Event struct {
	ID id.ID `json:"id"`

	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	ActorKind  saga.ActorKind `json:"actor_kind,omitempty"`
	ScopeID    string         `json:"scope_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`

	RecordedAt time.Time `json:"recorded_at"`
}

// New creates an Event with a fresh ID, info severity, and success outcome.
// Adjust fields on the returned value before recording.
func New(action, resource, resourceID string) *Event {
	return &Event{
		ID:         id.NewAuditEventID(),
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Outcome:    OutcomeSuccess,
		Severity:   SeverityInfo,
		RecordedAt: time.Now().UTC(),
	}
}

// WithActor stamps the acting identity from an execution context.
func (e *Event) WithActor(ec saga.ExecutionContext) *Event {
	e.ActorID = ec.ActorID
	e.ActorKind = ec.ActorKind
	e.ScopeID = ec.ScopeID
	return e
}

// Sink is the interface audit backends implement.
type Sink interface {
	// Record persists fully-formed audit events. Implementations should
	// persist all events or none where the backend allows it.
	Record(ctx context.Context, events []*Event) error
}

// SinkFunc is an adapter to use a plain function as a Sink.
type SinkFunc func(ctx context.Context, events []*Event) error

// Record implements Sink.
func (f SinkFunc) Record(ctx context.Context, events []*Event) error {
	return f(ctx, events)
}

// ──────────────────────────────────────────────────
// Memory sink
// ──────────────────────────────────────────────────

// Memory is an in-memory Sink for tests and local development.
// Safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	events []*Event
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory { return &Memory{} }

// Record implements Sink.
func (m *Memory) Record(_ context.Context, events []*Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

// Events returns a copy of everything recorded so far.
func (m *Memory) Events() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Event, len(m.events))
	copy(out, m.events)
	return out
}

// ──────────────────────────────────────────────────
// Log sink
// ──────────────────────────────────────────────────

// LogSink writes each event to a slog logger. Useful as a development
// backend and as a fallback when no durable sink is wired.
func LogSink(logger *slog.Logger) Sink {
	return SinkFunc(func(_ context.Context, events []*Event) error {
		for _, e := range events {
			logger.Info("audit event",
				slog.String("audit_id", e.ID.String()),
				slog.String("action", e.Action),
				slog.String("resource", e.Resource),
				slog.String("resource_id", e.ResourceID),
				slog.String("outcome", e.Outcome),
				slog.String("severity", e.Severity),
				slog.String("actor_id", e.ActorID),
				slog.String("scope_id", e.ScopeID),
			)
		}
		return nil
	})
}
