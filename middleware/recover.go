package middleware

import (
	"context"
	"log/slog"
	"runtime/debug"

	saga "github.com/cybinfo/pg-manager-sub005"
)

// Recover returns middleware that recovers from panics in the step chain.
// Panics are converted to failed results with KindUnknown and logged with a
// stack trace, so no panic ever crosses a step boundary.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, info *StepInfo, next Handler) (res saga.Result[any]) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("step panicked",
					slog.String("workflow", info.Workflow),
					slog.String("step", info.Step),
					slog.String("execution_id", info.ExecutionID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				res = saga.Errf[any](saga.KindUnknown, "panic in step %s: %v", info.Step, r)
			}
		}()
		return next(ctx)
	}
}
