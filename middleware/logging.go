package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
)

// Logging returns middleware that logs chunk start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, c *chunk.Chunk, next Handler) error {
		logger.Info("chunk started",
			slog.String("chunk_id", c.ID.String()),
			slog.String("job_id", c.JobID.String()),
			slog.Int("ordinal", c.Ordinal),
			slog.Int("items", c.Items()),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("chunk failed",
				slog.String("chunk_id", c.ID.String()),
				slog.String("job_id", c.JobID.String()),
				slog.Int("ordinal", c.Ordinal),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("chunk completed",
				slog.String("chunk_id", c.ID.String()),
				slog.String("job_id", c.JobID.String()),
				slog.Int("ordinal", c.Ordinal),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
