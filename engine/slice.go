package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/job"
)

// Continuation re-triggers the engine for a job's next slice on a
// fresh invocation. Deployments with bounded invocation time implement
// this as an HTTP self-call or a queue message; Drive covers processes
// that can simply loop.
type Continuation interface {
	Trigger(ctx context.Context, jobID id.JobID, cursor int) error
}

// ContinuationFunc adapts a function to the Continuation interface.
type ContinuationFunc func(ctx context.Context, jobID id.JobID, cursor int) error

// Trigger calls f.
func (f ContinuationFunc) Trigger(ctx context.Context, jobID id.JobID, cursor int) error {
	return f(ctx, jobID, cursor)
}

// SliceResult reports what one invocation accomplished.
type SliceResult struct {
	// Claimed is the number of chunks this slice took ownership of.
	Claimed int
	// Succeeded and Failed partition the claimed chunks by outcome.
	Succeeded int
	Failed    int

	// NextCursor is the ordinal the next slice resumes from.
	NextCursor int

	// Done means no further slice is needed right now: the job is
	// terminal, was asked to cancel, or has no claimable work left
	// (failed chunks awaiting a retry sweep do not hold a slice open).
	Done bool
}

// ProcessSlice claims and processes at most one slice of the job's
// chunks, starting at cursor, then persists the advanced cursor and
// the recomputed aggregates. It is safe to call concurrently for the
// same job: claims are atomic and disjoint, and every downstream
// mutation is conditional.
func (e *Engine) ProcessSlice(ctx context.Context, jobID id.JobID, cursor int) (SliceResult, error) {
	var res SliceResult
	res.NextCursor = cursor

	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return res, err
	}

	if j.Status.Terminal() {
		res.Done = true
		return res, nil
	}
	if j.Status == job.StatusCancelling {
		return e.settleCancelled(ctx, j, res)
	}
	if j.Status == job.StatusPending {
		// First slice for this job. A lost race means another slice got
		// there first, which is fine.
		if _, err := e.store.SetJobStatus(ctx, jobID, job.StatusPending, job.StatusRunning); err != nil {
			return res, err
		}
	}

	// The persisted cursor is authoritative; a caller resuming with a
	// stale one would re-scan ordinals that are already terminal.
	if j.Cursor > cursor {
		cursor = j.Cursor
		res.NextCursor = cursor
	}

	claimed, err := e.store.ClaimPending(ctx, jobID, cursor, e.cfg.SliceBudget)
	if err != nil {
		return res, err
	}
	if len(claimed) == 0 && cursor > 0 {
		// The forward pass is exhausted. Chunks requeued for retry sit
		// at ordinals behind the cursor, so wrap the claim to the start;
		// their RunAt keeps backoff delays honored.
		claimed, err = e.store.ClaimPending(ctx, jobID, 0, e.cfg.SliceBudget)
		if err != nil {
			return res, err
		}
	}
	res.Claimed = len(claimed)

	if len(claimed) > 0 {
		run := e.runner.Process(ctx, j, claimed)
		res.Succeeded = run.Succeeded
		res.Failed = run.Failed

		for _, c := range claimed {
			if c.Ordinal+1 > res.NextCursor {
				res.NextCursor = c.Ordinal + 1
			}
		}
	}

	advanced, err := e.advance(ctx, jobID, res.NextCursor)
	if err != nil {
		return res, err
	}

	res.Done = advanced.Status.Terminal() || len(claimed) == 0
	if !res.Done {
		e.kickContinuation(ctx, jobID, res.NextCursor)
	}
	return res, nil
}

// Drive loops slices until the job needs no more, for callers without
// an invocation time limit. The final job state is returned.
func (e *Engine) Drive(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	cursor := 0
	for {
		res, err := e.ProcessSlice(ctx, jobID, cursor)
		if err != nil {
			return nil, err
		}
		cursor = res.NextCursor
		if res.Done {
			return e.store.GetJob(ctx, jobID)
		}
	}
}

// kickContinuation fires the continuation without holding the slice
// open. Trigger failures only log: the job's cursor is persisted, so
// the next tick resumes it regardless.
func (e *Engine) kickContinuation(ctx context.Context, jobID id.JobID, cursor int) {
	if e.continuation == nil {
		return
	}
	go func(ctx context.Context) {
		if err := e.continuation.Trigger(ctx, jobID, cursor); err != nil {
			e.logger.Error("continuation trigger failed",
				slog.String("job_id", jobID.String()),
				slog.Int("cursor", cursor),
				slog.String("error", err.Error()),
			)
		}
	}(context.WithoutCancel(ctx))
}

// settleCancelled finishes a cancelling job once nothing is in flight.
// Pending chunks stay pending as an audit trail of what never ran.
func (e *Engine) settleCancelled(ctx context.Context, j *job.Job, res SliceResult) (SliceResult, error) {
	res.Done = true

	counts, err := e.store.CountChunks(ctx, j.ID)
	if err != nil {
		return res, err
	}
	if counts.Processing > 0 {
		// In-flight chunks finish or stall out first; a later slice or
		// tick settles the job.
		return res, nil
	}

	ok, err := e.store.SetJobStatus(ctx, j.ID, job.StatusCancelling, job.StatusFailed)
	if err != nil {
		return res, err
	}
	if ok {
		e.logger.Info("cancelled job settled",
			slog.String("job_id", j.ID.String()),
			slog.Int64("chunks_never_run", counts.Pending),
		)
	}
	return res, nil
}

// AdvanceJob recomputes the job's aggregates from its chunk rows and
// derives its status. Counters are never incremented in place, so
// duplicate or concurrent invocations converge on the same totals.
func (e *Engine) AdvanceJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return e.advance(ctx, jobID, -1)
}

// maxUnitErrors caps the per-unit error summary carried on the job row.
const maxUnitErrors = 50

func (e *Engine) advance(ctx context.Context, jobID id.JobID, cursor int) (*job.Job, error) {
	const attempts = 3

	for attempt := 1; ; attempt++ {
		j, err := e.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if j.Status.Terminal() {
			return j, nil
		}

		counts, err := e.store.CountChunks(ctx, jobID)
		if err != nil {
			return nil, err
		}

		j.CompletedChunks = int(counts.Completed)
		j.FailedChunks = int(counts.Failed)
		if cursor > j.Cursor {
			j.Cursor = cursor
		}

		switch {
		case counts.Terminal():
			if counts.DeadLettered > 0 {
				j.Status = job.StatusCompletedWithErrors
				if errs, lerr := e.collectUnitErrors(ctx, jobID); lerr != nil {
					e.logger.Warn("collect unit errors failed",
						slog.String("job_id", jobID.String()),
						slog.String("error", lerr.Error()),
					)
				} else {
					j.Errors = errs
				}
			} else {
				j.Status = job.StatusCompleted
			}
			now := time.Now().UTC()
			j.CompletedAt = &now
		case j.Status == job.StatusPending && counts.Pending != counts.Total():
			j.Status = job.StatusRunning
		}

		err = e.store.UpdateJob(ctx, j)
		if errors.Is(err, batch.ErrInvalidTransition) && attempt < attempts {
			// Version conflict with a concurrent advance; reload and
			// recompute from the fresher rows.
			continue
		}
		if err != nil {
			return nil, err
		}

		e.hooks.EmitJobAdvanced(ctx, j)
		if j.Status.Terminal() {
			e.logger.Info("job finished",
				slog.String("job_id", j.ID.String()),
				slog.String("status", string(j.Status)),
				slog.Int("completed_chunks", j.CompletedChunks),
				slog.Int("failed_chunks", j.FailedChunks),
			)
		}
		return j, nil
	}
}

// collectUnitErrors summarizes the job's dead-lettered chunks.
func (e *Engine) collectUnitErrors(ctx context.Context, jobID id.JobID) ([]job.UnitError, error) {
	chunks, err := e.store.ListChunksByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var errs []job.UnitError
	for _, c := range chunks {
		if !c.DeadLettered() {
			continue
		}
		errs = append(errs, job.UnitError{
			Unit:    fmt.Sprintf("chunk-%d", c.Ordinal),
			Message: c.LastError,
		})
		if len(errs) == maxUnitErrors {
			break
		}
	}
	return errs, nil
}
