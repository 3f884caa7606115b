package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/job"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/task"
)

// TaskOption configures a task at submission time.
type TaskOption func(*task.Task)

// WithPriority sets the task's claim priority. Higher runs first.
func WithPriority(p int) TaskOption {
	return func(t *task.Task) { t.Priority = p }
}

// WithFingerprint attaches the identity used for duplicate detection:
// sourceID names where the delivery came from, contentID what it
// carries. Tasks without a fingerprint are never deduplicated.
func WithFingerprint(sourceID, contentID string) TaskOption {
	return func(t *task.Task) {
		t.SourceID = sourceID
		t.ContentID = contentID
	}
}

// WithTaskOwner sets the owning account.
func WithTaskOwner(owner string) TaskOption {
	return func(t *task.Task) { t.Owner = owner }
}

// WithTaskMaxRetries overrides the engine's default retry ceiling.
func WithTaskMaxRetries(n int) TaskOption {
	return func(t *task.Task) { t.MaxRetries = n }
}

// WithRunAt delays the task's first claim eligibility.
func WithRunAt(at time.Time) TaskOption {
	return func(t *task.Task) { t.RunAt = at }
}

// SubmitTask records an incoming single-item task. A delivery whose
// fingerprint matches work completed within the dedup window is still
// persisted, then immediately marked ignored: the row is the audit
// trail for the duplicate.
func (e *Engine) SubmitTask(ctx context.Context, kind, payloadRef string, opts ...TaskOption) (*task.Task, error) {
	if kind == "" {
		return nil, fmt.Errorf("%w: empty task kind", batch.ErrInvalidInput)
	}

	t := &task.Task{
		Entity:     batch.NewEntity(),
		ID:         id.NewTaskID(),
		Kind:       kind,
		PayloadRef: payloadRef,
		Status:     task.StatusPending,
		MaxRetries: e.cfg.MaxRetries,
		RunAt:      time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if err := e.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}

	if e.filter.IsDuplicate(ctx, t) {
		if err := e.ignoreDuplicate(ctx, t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (e *Engine) ignoreDuplicate(ctx context.Context, t *task.Task) error {
	const reason = "duplicate of a delivery completed within the dedup window"

	if err := e.store.IgnoreTask(ctx, t.ID, reason); err != nil {
		return err
	}
	t.Status = task.StatusIgnored
	e.hooks.EmitTaskIgnored(ctx, t, reason)
	e.logger.Info("duplicate task ignored",
		slog.String("task_id", t.ID.String()),
		slog.String("source_id", t.SourceID),
		slog.String("content_id", t.ContentID),
	)
	return nil
}

// TickResult summarizes one maintenance pass.
type TickResult struct {
	// Processed counts units (chunks and tasks) executed this tick.
	Processed int
	Succeeded int
	Failed    int
	// Skipped counts duplicate tasks detected and ignored at claim time.
	Skipped int
}

// RunTick is the periodic entry point: recover stalls, sweep failed
// units for retry or dead-lettering, resume unfinished jobs, drain the
// task queue, and evaluate alert thresholds. kind restricts job
// resumption to one job kind; empty means all. Recovery sweeps and
// alerting degrade to log lines on error rather than aborting the
// tick, since each is independently retried next tick.
func (e *Engine) RunTick(ctx context.Context, kind string) (TickResult, error) {
	var res TickResult

	e.hooks.EmitTickFired(ctx, kind)

	if _, err := e.detector.Sweep(ctx); err != nil {
		e.logger.Error("stall sweep failed", slog.String("error", err.Error()))
	}
	if _, err := e.retries.Sweep(ctx); err != nil {
		e.logger.Error("retry sweep failed", slog.String("error", err.Error()))
	}

	if err := e.resumeJobs(ctx, kind, &res); err != nil {
		return res, err
	}
	if err := e.drainTasks(ctx, &res); err != nil {
		return res, err
	}

	if _, err := e.evaluator.Evaluate(ctx); err != nil {
		e.logger.Error("alert evaluation failed", slog.String("error", err.Error()))
	}
	return res, nil
}

// resumeJobs processes one slice for every pending, running, or
// cancelling job, resuming each from its persisted cursor.
func (e *Engine) resumeJobs(ctx context.Context, kind string, res *TickResult) error {
	opts := job.ListOpts{Kind: kind}

	// A pending job turns running as its first slice starts; the seen
	// set keeps it from being picked up twice in the same tick.
	seen := make(map[string]bool)

	for _, status := range []job.Status{job.StatusRunning, job.StatusCancelling, job.StatusPending} {
		jobs, err := e.store.ListJobsByStatus(ctx, status, opts)
		if err != nil {
			return err
		}
		for _, j := range jobs {
			if seen[j.ID.String()] {
				continue
			}
			seen[j.ID.String()] = true
			slice, err := e.ProcessSlice(ctx, j.ID, j.Cursor)
			if err != nil {
				e.logger.Error("slice failed",
					slog.String("job_id", j.ID.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			res.Processed += slice.Claimed
			res.Succeeded += slice.Succeeded
			res.Failed += slice.Failed
		}
	}
	return nil
}

// drainTasks claims and runs one batch of queue tasks. The filter is
// re-checked at claim time: a task admitted at intake becomes a
// duplicate if its twin completed while it sat in the queue.
func (e *Engine) drainTasks(ctx context.Context, res *TickResult) error {
	claimed, err := e.store.ClaimPendingTasks(ctx, e.cfg.SliceBudget)
	if err != nil {
		return err
	}

	for _, t := range claimed {
		if e.filter.IsDuplicate(ctx, t) {
			if err := e.ignoreDuplicate(ctx, t); err != nil {
				e.logger.Error("ignore duplicate task failed",
					slog.String("task_id", t.ID.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			res.Skipped++
			continue
		}

		res.Processed++
		if e.runTask(ctx, t) {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	return nil
}

// runTask executes one claimed task and records the outcome. Reports
// success.
func (e *Engine) runTask(ctx context.Context, t *task.Task) bool {
	proc, ok := e.taskProcessor(t.Kind)
	if !ok {
		e.failTask(ctx, t, "no task processor registered for "+t.Kind)
		return false
	}

	if err := proc(ctx, t); err != nil {
		e.failTask(ctx, t, err.Error())
		return false
	}

	ok, err := e.store.CompleteTask(ctx, t.ID)
	if err != nil {
		e.logger.Error("complete task failed",
			slog.String("task_id", t.ID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !ok {
		// A stall sweep reclaimed the task mid-flight; the next claim
		// re-runs it, which is why task processors must be idempotent.
		e.logger.Warn("task completion lost race",
			slog.String("task_id", t.ID.String()),
		)
		return true
	}

	e.filter.Record(ctx, t)
	return true
}

func (e *Engine) failTask(ctx context.Context, t *task.Task, msg string) {
	if _, err := e.store.FailTask(ctx, t.ID, msg); err != nil {
		e.logger.Error("fail task failed",
			slog.String("task_id", t.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}
