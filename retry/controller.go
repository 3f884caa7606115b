package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/backoff"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/hook"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/task"
)

// Result summarizes one controller sweep.
type Result struct {
	Requeued     int
	DeadLettered int
}

// Controller re-admits transiently failed units with backoff and pins
// permanent failures as dead-letters. It owns retry policy entirely:
// the stores record failures, the controller decides what happens next.
type Controller struct {
	chunks chunk.Store
	tasks  task.Store
	bo     backoff.Strategy
	hooks  *hook.Registry
	logger *slog.Logger

	sweepLimit int
}

// Option configures a Controller.
type Option func(*Controller)

// WithBackoff sets the retry backoff strategy.
// Defaults to backoff.DefaultStrategy().
func WithBackoff(b backoff.Strategy) Option {
	return func(c *Controller) { c.bo = b }
}

// WithSweepLimit caps how many failed units one sweep examines.
func WithSweepLimit(n int) Option {
	return func(c *Controller) { c.sweepLimit = n }
}

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// NewController creates a retry controller over the chunk and task
// stores. hooks may be nil.
func NewController(chunks chunk.Store, tasks task.Store, hooks *hook.Registry, opts ...Option) *Controller {
	c := &Controller{
		chunks:     chunks,
		tasks:      tasks,
		bo:         backoff.DefaultStrategy(),
		hooks:      hooks,
		logger:     slog.Default(),
		sweepLimit: 100,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sweep examines failed chunks and tasks and either requeues them with
// backoff or dead-letters them. Units requeued in the same sweep are
// staggered so the burst of retries does not overwhelm downstream
// dependencies. Safe to run concurrently with active workers: every
// transition is a conditional update, and a lost race is skipped.
func (c *Controller) Sweep(ctx context.Context) (Result, error) {
	var res Result
	now := time.Now().UTC()

	if c.chunks != nil {
		failed, err := c.chunks.ListFailedRetryable(ctx, c.sweepLimit)
		if err != nil {
			return res, err
		}
		for i, ch := range failed {
			c.decideChunk(ctx, ch, i, now, &res)
		}
	}

	if c.tasks != nil {
		failed, err := c.tasks.ListFailedRetryableTasks(ctx, c.sweepLimit)
		if err != nil {
			return res, err
		}
		for i, t := range failed {
			c.decideTask(ctx, t, i, now, &res)
		}
	}

	return res, nil
}

func (c *Controller) decideChunk(ctx context.Context, ch *chunk.Chunk, index int, now time.Time, res *Result) {
	class := Decide(ch.LastError, ch.RetryCount, ch.MaxRetries)

	if class == ClassPermanent {
		ok, err := c.chunks.DeadLetterChunk(ctx, ch.ID)
		if err != nil {
			c.logger.Error("dead-letter chunk failed",
				slog.String("chunk_id", ch.ID.String()),
				slog.String("error", err.Error()),
			)
			return
		}
		if ok {
			res.DeadLettered++
			if c.hooks != nil {
				c.hooks.EmitChunkDeadLettered(ctx, ch)
			}
			c.logger.Warn("chunk dead-lettered",
				slog.String("chunk_id", ch.ID.String()),
				slog.String("job_id", ch.JobID.String()),
				slog.Int("retry_count", ch.RetryCount),
				slog.String("last_error", ch.LastError),
			)
		}
		return
	}

	attempt := ch.RetryCount + 1
	delay := c.bo.Delay(attempt) + backoff.Stagger(index)
	entry := chunk.RetryEntry{
		Attempt:   attempt,
		Reason:    ch.LastError,
		Timestamp: now,
	}

	ok, err := c.chunks.RequeueChunk(ctx, ch.ID, now.Add(delay), entry)
	if err != nil {
		c.logger.Error("requeue chunk failed",
			slog.String("chunk_id", ch.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok {
		// Lost the race to a concurrent sweep or worker; harmless.
		return
	}

	res.Requeued++
	if c.hooks != nil {
		c.hooks.EmitChunkRetrying(ctx, ch, attempt, delay)
	}
	c.logger.Info("chunk requeued for retry",
		slog.String("chunk_id", ch.ID.String()),
		slog.String("job_id", ch.JobID.String()),
		slog.Int("attempt", attempt),
		slog.Int("max_retries", ch.MaxRetries),
		slog.Duration("delay", delay),
	)
}

func (c *Controller) decideTask(ctx context.Context, t *task.Task, index int, now time.Time, res *Result) {
	class := Decide(t.LastError, t.RetryCount, t.MaxRetries)

	if class == ClassPermanent {
		ok, err := c.tasks.DeadLetterTask(ctx, t.ID)
		if err != nil {
			c.logger.Error("dead-letter task failed",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()),
			)
			return
		}
		if ok {
			res.DeadLettered++
			c.logger.Warn("task dead-lettered",
				slog.String("task_id", t.ID.String()),
				slog.Int("retry_count", t.RetryCount),
				slog.String("last_error", t.LastError),
			)
		}
		return
	}

	attempt := t.RetryCount + 1
	delay := c.bo.Delay(attempt) + backoff.Stagger(index)

	ok, err := c.tasks.RequeueTask(ctx, t.ID, now.Add(delay), t.LastError)
	if err != nil {
		c.logger.Error("requeue task failed",
			slog.String("task_id", t.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok {
		return
	}

	res.Requeued++
	c.logger.Info("task requeued for retry",
		slog.String("task_id", t.ID.String()),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
	)
}
