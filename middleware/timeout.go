package middleware

import (
	"context"
	"time"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
)

// Timeout returns middleware that enforces a per-chunk execution
// deadline. When the deadline is exceeded the context is cancelled and
// the processor should return context.DeadlineExceeded, which
// classifies as transient and is retried.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *chunk.Chunk, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
