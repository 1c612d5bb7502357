// Package saga provides the workflow orchestration core of the PG manager
// backend: a saga-style executor that runs multi-step business transactions
// (tenant onboarding, room transfers, exit clearance, refunds) against a
// datastore with no multi-table atomicity guarantee.
//
// Saga is designed as a library, not a service. Import it, define workflows
// as ordered step lists, and execute them through an engine.
//
// # Quick Start
//
//	eng := engine.New(
//	    engine.WithIdempotencyStore(idempotency.NewMemory()),
//	    engine.WithAuditSink(auditSink),
//	)
//
//	outcome, err := engine.Execute(ctx, eng, tenancy.Onboarding(store), input, execCtx)
//
// # Architecture
//
// Each concern lives in its own package: workflow (definitions, steps,
// outcomes), engine (the executor and compensation algorithm), idempotency
// (at-most-one execution per key within a TTL window), audit and notify
// (best-effort side-effect dispatch), history (execution records), and
// middleware (per-step logging, recovery, tracing, metrics).
//
// Every step returns a tagged [Result]; no panic crosses a step boundary.
// A required step's failure aborts the run and triggers compensation of
// already-committed steps in reverse order. An optional step's failure is
// recorded and skipped over.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers with compile-time safe constructors.
package saga
