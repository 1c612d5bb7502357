package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	saga "github.com/cybinfo/pg-manager-sub005"
)

// meterName is the instrumentation scope name for saga metrics.
const meterName = "github.com/cybinfo/pg-manager-sub005"

// Metrics returns middleware that records per-step execution metrics using
// the global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - saga.step.duration (Float64Histogram): execution time in seconds,
//     with attributes: workflow, step, status ("ok" or "error")
//   - saga.step.executions (Int64Counter): total executions,
//     with attributes: workflow, step, status ("ok" or "error")
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Create instruments once at middleware construction time.
	// OTel instruments are safe for concurrent use. On error, the API
	// returns noop instruments so the middleware degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"saga.step.duration",
		metric.WithDescription("Duration of step execution in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	executions, eErr := meter.Int64Counter(
		"saga.step.executions",
		metric.WithDescription("Total number of step executions"),
		metric.WithUnit("{execution}"),
	)
	_ = eErr // noop fallback guaranteed by OTel API contract

	return func(ctx context.Context, info *StepInfo, next Handler) saga.Result[any] {
		start := time.Now()
		res := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if !res.IsOk() {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("workflow", info.Workflow),
			attribute.String("step", info.Step),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return res
	}
}
