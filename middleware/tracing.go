package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	saga "github.com/cybinfo/pg-manager-sub005"
)

// tracerName is the instrumentation scope name for saga tracing.
const tracerName = "github.com/cybinfo/pg-manager-sub005"

// Tracing returns middleware that wraps step execution in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop
// tracer is used and this middleware becomes a pass-through with zero
// overhead.
//
// Span attributes include: saga.workflow, saga.step, saga.step.optional,
// saga.execution_id, saga.scope_id, saga.actor_kind. A failed result sets
// the span status to codes.Error with the error message; optional-step
// failures are still errors at the span level; the demotion to a
// failed-steps entry happens above, in the engine.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, info *StepInfo, next Handler) saga.Result[any] {
		ctx, span := tracer.Start(ctx, "saga.step.execute",
			trace.WithAttributes(
				attribute.String("saga.workflow", info.Workflow),
				attribute.String("saga.step", info.Step),
				attribute.Bool("saga.step.optional", info.Optional),
				attribute.String("saga.execution_id", info.ExecutionID.String()),
				attribute.String("saga.scope_id", info.Context.ScopeID),
				attribute.String("saga.actor_kind", string(info.Context.ActorKind)),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		res := next(ctx)
		if err := res.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Message)
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return res
	}
}
