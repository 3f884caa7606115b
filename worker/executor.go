// Package worker provides chunk execution — an Executor that invokes
// registered processors through middleware, and a Runner that drives a
// claimed batch of chunks with bounded concurrency and inter-batch
// pauses.
package worker

import (
	"context"
	"log/slog"
	"time"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/hook"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/job"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/middleware"
)

// Executor runs a single claimed chunk through middleware and the
// registered processor, then records the outcome with a conditional
// update. Retry policy is NOT the executor's concern: a failed chunk
// stays failed until the retry controller decides its fate.
type Executor struct {
	registry *job.Registry
	chunks   chunk.Store
	hooks    *hook.Registry
	mw       middleware.Middleware
	logger   *slog.Logger
}

// NewExecutor creates an Executor. hooks may be nil.
func NewExecutor(
	registry *job.Registry,
	chunks chunk.Store,
	hooks *hook.Registry,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		chunks:   chunks,
		hooks:    hooks,
		mw:       middleware.Chain(mws...),
		logger:   logger,
	}
}

// Execute runs one claimed chunk.
// On success: conditionally marks completed, emits ChunkCompleted.
// On failure: conditionally marks failed, emits ChunkFailed.
// A chunk claimed with its retry budget already exhausted is
// terminalized immediately so it can never loop.
func (e *Executor) Execute(ctx context.Context, j *job.Job, c *chunk.Chunk) error {
	if c.RetryCount > c.MaxRetries {
		if ffErr := e.chunks.ForceFailChunk(ctx, c.ID, "retry budget exhausted before execution"); ffErr != nil {
			e.logger.Error("force-fail over-budget chunk",
				slog.String("chunk_id", c.ID.String()),
				slog.String("error", ffErr.Error()),
			)
		}
		return batch.ErrMaxRetriesExceeded
	}

	proc, ok := e.registry.Get(j.Kind)
	if !ok {
		// No processor is permanent; record it so the retry controller
		// dead-letters rather than spins.
		if _, failErr := e.chunks.FailChunk(ctx, c.ID, "unauthorized kind: no processor registered for "+j.Kind); failErr != nil {
			e.logger.Error("fail chunk without processor",
				slog.String("chunk_id", c.ID.String()),
				slog.String("error", failErr.Error()),
			)
		}
		return batch.ErrNoProcessor
	}

	if e.hooks != nil {
		e.hooks.EmitChunkClaimed(ctx, c)
	}

	start := time.Now()
	terminal := func(ctx context.Context) error {
		return proc(ctx, j, c.Start, c.End)
	}
	err := e.mw(ctx, c, terminal)
	elapsed := time.Since(start)

	if err != nil {
		return e.handleFailure(ctx, c, err)
	}
	return e.handleSuccess(ctx, c, elapsed)
}

func (e *Executor) handleSuccess(ctx context.Context, c *chunk.Chunk, elapsed time.Duration) error {
	ok, err := e.chunks.CompleteChunk(ctx, c.ID)
	if err != nil {
		e.logger.Error("complete chunk failed",
			slog.String("chunk_id", c.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	if !ok {
		// A stall sweep reclaimed the chunk mid-flight. The work is
		// done, but another invocation owns the row now; its outcome is
		// authoritative and re-processing the same range is idempotent.
		e.logger.Warn("chunk completion lost race, result discarded",
			slog.String("chunk_id", c.ID.String()),
			slog.String("job_id", c.JobID.String()),
		)
		return nil
	}

	if e.hooks != nil {
		e.hooks.EmitChunkCompleted(ctx, c, elapsed)
	}
	return nil
}

func (e *Executor) handleFailure(ctx context.Context, c *chunk.Chunk, procErr error) error {
	ok, err := e.chunks.FailChunk(ctx, c.ID, procErr.Error())
	if err != nil {
		e.logger.Error("fail chunk failed",
			slog.String("chunk_id", c.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	if ok && e.hooks != nil {
		e.hooks.EmitChunkFailed(ctx, c, procErr)
	}
	return procErr
}
