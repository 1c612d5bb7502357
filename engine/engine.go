// Package engine drives saga workflow executions: it runs a definition's
// steps sequentially through the middleware chain, compensates committed
// steps in reverse order when a required step fails, caches terminal
// outcomes under idempotency keys, records execution history, and fires
// audit events and notifications after success.
//
// This package exists to break the import cycle: the root saga package
// defines Result, Error, and ExecutionContext (imported by workflow,
// audit, etc.) and so cannot import those packages back. The engine
// package sits above all subsystem packages and below the application
// layer.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/audit"
	"github.com/cybinfo/pg-manager-sub005/history"
	"github.com/cybinfo/pg-manager-sub005/id"
	"github.com/cybinfo/pg-manager-sub005/idempotency"
	mw "github.com/cybinfo/pg-manager-sub005/middleware"
	"github.com/cybinfo/pg-manager-sub005/notify"
	"github.com/cybinfo/pg-manager-sub005/workflow"
)

// Engine executes workflow definitions. Create one with New, then run
// typed definitions through Execute or register them for name-based
// invocation with Register and ExecuteRaw.
type Engine struct {
	config   saga.Config
	logger   *slog.Logger
	clock    saga.Clock
	cache    idempotency.Store
	sink     audit.Sink
	notifier notify.Dispatcher
	history  history.Store
	registry *workflow.Registry

	mws   []mw.Middleware
	chain mw.Middleware

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// Definitions whose ordering warnings were already logged.
	warned sync.Map
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithConfig replaces the default configuration.
func WithConfig(cfg saga.Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithClock sets the clock used for history timestamps. Tests inject a
// fake clock here; the idempotency store carries its own.
func WithClock(clock saga.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithIdempotencyStore sets the idempotency cache. Defaults to the
// in-memory store.
func WithIdempotencyStore(store idempotency.Store) Option {
	return func(e *Engine) { e.cache = store }
}

// WithAuditSink sets the audit sink. Defaults to logging events.
func WithAuditSink(sink audit.Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithNotifier sets the notification dispatcher. Defaults to logging
// payloads.
func WithNotifier(d notify.Dispatcher) Option {
	return func(e *Engine) { e.notifier = d }
}

// WithHistoryStore sets the execution history store. Defaults to the
// in-memory store.
func WithHistoryStore(store history.Store) Option {
	return func(e *Engine) { e.history = store }
}

// WithMiddleware appends middleware to the step chain, inside the
// always-on recover/tracing/metrics/logging stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m) }
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// New creates an Engine. All collaborators have in-process defaults so a
// zero-option engine is fully functional for tests and local use.
func New(opts ...Option) *Engine {
	e := &Engine{
		config:   saga.DefaultConfig(),
		logger:   slog.Default(),
		clock:    saga.SystemClock(),
		registry: workflow.NewRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = idempotency.NewMemory()
	}
	if e.sink == nil {
		e.sink = audit.LogSink(e.logger)
	}
	if e.notifier == nil {
		e.notifier = notify.Log(e.logger)
	}
	if e.history == nil {
		e.history = history.NewMemory()
	}

	// Build tracing middleware (custom provider or global).
	tracingMw := mw.Tracing()
	if e.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(e.tracerProvider.Tracer("github.com/cybinfo/pg-manager-sub005"))
	}

	// Build metrics middleware (custom provider or global).
	metricsMw := mw.Metrics()
	if e.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(e.meterProvider.Meter("github.com/cybinfo/pg-manager-sub005"))
	}

	// Default middleware stack: recover → tracing → metrics → logging,
	// then caller middleware. Recover is always outermost so no panic
	// escapes a step, whatever else is in the chain.
	all := make([]mw.Middleware, 0, 4+len(e.mws))
	all = append(all, mw.Recover(e.logger), tracingMw, metricsMw, mw.Logging(e.logger))
	all = append(all, e.mws...)
	e.chain = mw.Chain(all...)

	return e
}

// Registry returns the engine's workflow registry.
func (e *Engine) Registry() *workflow.Registry { return e.registry }

// Config returns the engine's configuration.
func (e *Engine) Config() saga.Config { return e.config }

// History returns the engine's execution history store.
func (e *Engine) History() history.Store { return e.history }

// ──────────────────────────────────────────────────
// Execution
// ──────────────────────────────────────────────────

// committedStep is one entry on the compensation stack: a step that ran,
// succeeded, and declared a rollback.
type committedStep[In any] struct {
	step     workflow.Step[In]
	produced any
}

// Execute runs a definition to a terminal outcome.
//
// The returned error covers pre-execution failures only: an invalid
// definition, an idempotency store failure, or an unresolvable in-flight
// conflict. Once steps start running, failures are reported inside the
// Outcome (Success=false plus the aborting step's error) and the error is
// nil. A nil-error failed outcome is a real answer, cached and replayed
// like any other.
func Execute[In, Out any](ctx context.Context, e *Engine, def *workflow.Definition[In, Out], input In, ec saga.ExecutionContext) (*workflow.Outcome[Out], error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	e.warnOnce(def.Name, def.Warnings())

	// Idempotency gate. Empty key means the caller opted out.
	var leader bool
	if ec.IdempotencyKey != "" {
		raw, ok, err := e.cache.Acquire(ctx, ec.IdempotencyKey, e.config.InFlightWait)
		if err != nil {
			return nil, err
		}
		if ok {
			cached, err := workflow.Unmarshal[Out](raw)
			if err != nil {
				return nil, fmt.Errorf("engine: decode cached outcome for key %q: %w", ec.IdempotencyKey, err)
			}
			e.logger.Debug("returning cached outcome",
				slog.String("workflow", def.Name),
				slog.String("idempotency_key", ec.IdempotencyKey),
			)
			return cached, nil
		}
		leader = true
	}

	// If this call holds the in-flight marker and bails before publishing
	// (context cancellation, marshal failure, a panic below the recover
	// middleware), release it so a waiter can take over.
	published := false
	if leader {
		defer func() {
			if !published {
				if err := e.cache.Abandon(context.WithoutCancel(ctx), ec.IdempotencyKey); err != nil {
					e.logger.Warn("failed to release in-flight idempotency marker",
						slog.String("idempotency_key", ec.IdempotencyKey),
						slog.String("error", err.Error()),
					)
				}
			}
		}()
	}

	execID := id.NewExecutionID()
	rec := e.beginHistory(ctx, execID, def.Name, ec)

	results := workflow.NewResultSet()
	var committed []committedStep[In]
	var failedSteps []string

	for _, step := range def.Steps {
		info := &mw.StepInfo{
			Workflow:    def.Name,
			Step:        step.Name,
			Optional:    step.Optional,
			ExecutionID: execID,
			Context:     ec,
		}
		res := e.chain(ctx, info, func(ctx context.Context) saga.Result[any] {
			return step.Execute(ctx, ec, input, results.View())
		})

		if res.IsOk() {
			results.Set(step.Name, res.Value())
			if step.Rollback != nil {
				committed = append(committed, committedStep[In]{step: step, produced: res.Value()})
			}
			continue
		}

		if step.Optional {
			results.MarkFailed(step.Name)
			failedSteps = append(failedSteps, step.Name)
			continue
		}

		// Required step failed: unwind committed steps newest-first, then
		// report the aborting error. Rollback errors never join Errors;
		// they are logged and left to the history and audit trail.
		stepErr := res.Err().WithDetail(saga.DetailStep, step.Name)
		compensate(ctx, e, def.Name, execID, ec, input, committed)

		outcome := &workflow.Outcome[Out]{
			Success:     false,
			Errors:      []*saga.Error{stepErr},
			FailedSteps: failedSteps,
		}
		published = e.finish(ctx, ec, rec, outcome.Success, mustRaw(e, outcome), stepErr.Error(), failedSteps)
		return outcome, nil
	}

	// All required steps committed. Fire-and-record side effects, then
	// project the output.
	sideEffects(ctx, e, def, execID, ec, input, results.View())

	outcome := &workflow.Outcome[Out]{
		Success:     true,
		Data:        def.BuildOutput(results.View()),
		FailedSteps: failedSteps,
	}
	published = e.finish(ctx, ec, rec, outcome.Success, mustRaw(e, outcome), "", failedSteps)
	return outcome, nil
}

// compensate unwinds the committed stack in reverse order. Each rollback
// is individually panic-guarded and its error logged; compensation always
// visits every entry.
func compensate[In any](ctx context.Context, e *Engine, workflowName string, execID id.ID, ec saga.ExecutionContext, input In, committed []committedStep[In]) {
	for i := len(committed) - 1; i >= 0; i-- {
		c := committed[i]
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("rollback panicked",
						slog.String("workflow", workflowName),
						slog.String("step", c.step.Name),
						slog.String("execution_id", execID.String()),
						slog.Any("panic", r),
					)
				}
			}()
			if err := c.step.Rollback(ctx, ec, input, c.produced); err != nil {
				e.logger.Error("rollback failed",
					slog.String("workflow", workflowName),
					slog.String("step", c.step.Name),
					slog.String("execution_id", execID.String()),
					slog.String("scope_id", ec.ScopeID),
					slog.String("error", err.Error()),
				)
			} else {
				e.logger.Debug("rollback completed",
					slog.String("workflow", workflowName),
					slog.String("step", c.step.Name),
					slog.String("execution_id", execID.String()),
				)
			}
		}()
	}
}

// sideEffects records audit events and dispatches notifications for a
// successful run. Both are best-effort: failures are logged and never
// change the outcome, and the whole phase is bounded by SideEffectTimeout
// detached from the caller's cancellation.
func sideEffects[In, Out any](ctx context.Context, e *Engine, def *workflow.Definition[In, Out], execID id.ID, ec saga.ExecutionContext, input In, results workflow.Results) {
	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.SideEffectTimeout)
	defer cancel()

	if def.AuditEvents != nil {
		events := deriveAudit(e, def, execID, ec, input, results)
		if len(events) > 0 {
			if err := e.sink.Record(sideCtx, events); err != nil {
				e.logger.Error("audit recording failed",
					slog.String("workflow", def.Name),
					slog.String("execution_id", execID.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if def.Notifications != nil {
		payloads := deriveNotifications(e, def, execID, ec, input, results)
		if len(payloads) > 0 {
			if err := e.notifier.Send(sideCtx, payloads); err != nil {
				e.logger.Error("notification dispatch failed",
					slog.String("workflow", def.Name),
					slog.String("execution_id", execID.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// deriveAudit calls the definition's AuditEvents, converting a panic into
// an empty slice. Derivations run after the business transaction committed
// and must not fail it.
func deriveAudit[In, Out any](e *Engine, def *workflow.Definition[In, Out], execID id.ID, ec saga.ExecutionContext, input In, results workflow.Results) (events []*audit.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("audit derivation panicked",
				slog.String("workflow", def.Name),
				slog.String("execution_id", execID.String()),
				slog.Any("panic", r),
			)
			events = nil
		}
	}()
	return def.AuditEvents(ec, input, results)
}

func deriveNotifications[In, Out any](e *Engine, def *workflow.Definition[In, Out], execID id.ID, ec saga.ExecutionContext, input In, results workflow.Results) (payloads []*notify.Payload) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("notification derivation panicked",
				slog.String("workflow", def.Name),
				slog.String("execution_id", execID.String()),
				slog.Any("panic", r),
			)
			payloads = nil
		}
	}()
	return def.Notifications(ec, input, results)
}

// warnOnce logs a definition's ordering warnings the first time it runs.
func (e *Engine) warnOnce(name string, warnings []string) {
	if _, loaded := e.warned.LoadOrStore(name, struct{}{}); loaded {
		return
	}
	for _, w := range warnings {
		e.logger.Warn(w, slog.String("workflow", name))
	}
}

// mustRaw marshals an outcome for caching. A data type that cannot be
// JSON-encoded is a programming error; the raw form degrades to the
// outcome's flags so caching still works.
func mustRaw[Out any](e *Engine, o *workflow.Outcome[Out]) *workflow.RawOutcome {
	raw, err := workflow.Marshal(o)
	if err != nil {
		e.logger.Error("failed to encode outcome for caching", slog.String("error", err.Error()))
		return &workflow.RawOutcome{Success: o.Success, Errors: o.Errors, FailedSteps: o.FailedSteps}
	}
	return raw
}

// beginHistory writes the running execution record. Best-effort: a nil
// return means history is unavailable for this run.
func (e *Engine) beginHistory(ctx context.Context, execID id.ID, workflowName string, ec saga.ExecutionContext) *history.Execution {
	rec := &history.Execution{
		Entity:         saga.NewEntity(),
		ID:             execID,
		Workflow:       workflowName,
		State:          history.StateRunning,
		ActorID:        ec.ActorID,
		ActorKind:      ec.ActorKind,
		ScopeID:        ec.ScopeID,
		IdempotencyKey: ec.IdempotencyKey,
		StartedAt:      e.clock.Now(),
	}
	if err := e.history.CreateExecution(ctx, rec); err != nil {
		e.logger.Warn("failed to create execution record",
			slog.String("workflow", workflowName),
			slog.String("execution_id", execID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return rec
}

// finish publishes the terminal outcome to the idempotency cache and
// closes the history record. It reports whether the outcome reached the
// cache, so the caller knows whether to abandon the in-flight marker.
func (e *Engine) finish(ctx context.Context, ec saga.ExecutionContext, rec *history.Execution, success bool, raw *workflow.RawOutcome, errMsg string, failedSteps []string) bool {
	published := false
	if ec.IdempotencyKey != "" {
		if err := e.cache.Publish(context.WithoutCancel(ctx), ec.IdempotencyKey, raw, e.config.IdempotencyTTL); err != nil {
			e.logger.Error("failed to publish outcome to idempotency cache",
				slog.String("idempotency_key", ec.IdempotencyKey),
				slog.String("error", err.Error()),
			)
		} else {
			published = true
		}
	}

	if rec != nil {
		now := e.clock.Now()
		rec.State = history.StateCompleted
		if !success {
			rec.State = history.StateFailed
		}
		rec.Error = errMsg
		rec.FailedSteps = failedSteps
		rec.CompletedAt = &now
		rec.Touch()
		if err := e.history.UpdateExecution(context.WithoutCancel(ctx), rec); err != nil {
			e.logger.Warn("failed to update execution record",
				slog.String("execution_id", rec.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return published
}

// ──────────────────────────────────────────────────
// Name-based invocation
// ──────────────────────────────────────────────────

// Register validates a definition and adds it to the engine's registry so
// boundary layers can invoke it by name with raw JSON input.
func Register[In, Out any](e *Engine, def *workflow.Definition[In, Out]) error {
	if err := def.Validate(); err != nil {
		return err
	}
	return e.registry.Register(def.Name, func(ctx context.Context, ec saga.ExecutionContext, input []byte) (*workflow.RawOutcome, error) {
		var in In
		if len(input) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, fmt.Errorf("engine: decode input for workflow %q: %w", def.Name, err)
			}
		}
		outcome, err := Execute(ctx, e, def, in, ec)
		if err != nil {
			return nil, err
		}
		return workflow.Marshal(outcome)
	})
}

// ExecuteRaw runs a registered workflow by name with raw JSON input.
// Returns saga.ErrWorkflowNotRegistered when the name is unknown.
func (e *Engine) ExecuteRaw(ctx context.Context, name string, ec saga.ExecutionContext, input []byte) (*workflow.RawOutcome, error) {
	exec, ok := e.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", saga.ErrWorkflowNotRegistered, name)
	}
	return exec(ctx, ec, input)
}
