package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics are converted to errors and logged with a stack trace,
// so one poisoned chunk fails alone instead of killing the worker.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, c *chunk.Chunk, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("chunk processor panicked",
					slog.String("chunk_id", c.ID.String()),
					slog.String("job_id", c.JobID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in chunk %d: %v", c.Ordinal, r)
			}
		}()
		return next(ctx)
	}
}
