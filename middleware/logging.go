package middleware

import (
	"context"
	"log/slog"
	"time"

	saga "github.com/cybinfo/pg-manager-sub005"
)

// Logging returns middleware that logs step start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, info *StepInfo, next Handler) saga.Result[any] {
		logger.Debug("step started",
			slog.String("workflow", info.Workflow),
			slog.String("step", info.Step),
			slog.String("execution_id", info.ExecutionID.String()),
		)

		start := time.Now()
		res := next(ctx)
		elapsed := time.Since(start)

		if err := res.Err(); err != nil {
			logger.Error("step failed",
				slog.String("workflow", info.Workflow),
				slog.String("step", info.Step),
				slog.String("execution_id", info.ExecutionID.String()),
				slog.Bool("optional", info.Optional),
				slog.Duration("elapsed", elapsed),
				slog.String("kind", string(err.Kind)),
				slog.String("error", err.Message),
			)
		} else {
			logger.Debug("step completed",
				slog.String("workflow", info.Workflow),
				slog.String("step", info.Step),
				slog.String("execution_id", info.ExecutionID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return res
	}
}
