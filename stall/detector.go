// Package stall recovers work orphaned by crashed or hung workers.
//
// A chunk that has sat in processing for longer than its stall
// threshold is presumed orphaned: the worker that claimed it died, hung
// on an unresponsive upstream, or lost its invocation slot. The
// detector resets such chunks to pending so the next slice picks them
// up. Resets race against in-flight completions; a completion that
// lands first wins, because a slow worker that eventually reports
// success is recovery enough.
package stall

import (
	"context"
	"log/slog"
	"time"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/hook"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/job"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/task"
)

// DefaultThreshold is how long a chunk may sit in processing before it
// is presumed orphaned. Generous on purpose: a slow-but-alive worker
// must not have its work stolen.
const DefaultThreshold = 60 * time.Minute

// Result summarizes one detector sweep.
type Result struct {
	ChunksReset int
	TasksReset  int
}

// Detector finds and resets stalled chunks and tasks.
type Detector struct {
	chunks chunk.Store
	tasks  task.Store
	jobs   job.Store
	hooks  *hook.Registry
	logger *slog.Logger

	threshold      time.Duration
	taskThreshold  time.Duration
	kindThresholds map[string]time.Duration
}

// Option configures a Detector.
type Option func(*Detector)

// WithThreshold sets the default stall threshold for chunks.
func WithThreshold(d time.Duration) Option {
	return func(det *Detector) { det.threshold = d }
}

// WithKindThreshold overrides the stall threshold for one job kind.
// Long-running kinds (large catalog syncs, slow AI enrichment) get a
// higher threshold so they are not reset mid-flight.
func WithKindThreshold(kind string, d time.Duration) Option {
	return func(det *Detector) { det.kindThresholds[kind] = d }
}

// WithTaskThreshold sets the stall threshold for queue tasks.
// Defaults to the chunk threshold.
func WithTaskThreshold(d time.Duration) Option {
	return func(det *Detector) { det.taskThreshold = d }
}

// WithLogger sets the detector's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(det *Detector) { det.logger = logger }
}

// NewDetector creates a stall detector. jobs is needed only when
// per-kind thresholds are configured; hooks may be nil.
func NewDetector(chunks chunk.Store, tasks task.Store, jobs job.Store, hooks *hook.Registry, opts ...Option) *Detector {
	det := &Detector{
		chunks:         chunks,
		tasks:          tasks,
		jobs:           jobs,
		hooks:          hooks,
		logger:         slog.Default(),
		threshold:      DefaultThreshold,
		kindThresholds: make(map[string]time.Duration),
	}
	for _, opt := range opts {
		opt(det)
	}
	if det.taskThreshold == 0 {
		det.taskThreshold = det.threshold
	}
	return det
}

// Sweep resets stalled chunks and tasks. Safe to run concurrently with
// active workers: every reset is conditional, and a completion that
// lands mid-sweep wins.
func (d *Detector) Sweep(ctx context.Context) (Result, error) {
	var res Result

	if d.chunks != nil {
		n, err := d.sweepChunks(ctx)
		if err != nil {
			return res, err
		}
		res.ChunksReset = n
	}

	if d.tasks != nil {
		reset, err := d.tasks.ResetStalledTasks(ctx, d.taskThreshold)
		if err != nil {
			return res, err
		}
		res.TasksReset = len(reset)
		for _, t := range reset {
			d.logger.Warn("stalled task reset",
				slog.String("task_id", t.ID.String()),
				slog.String("kind", t.Kind),
			)
		}
	}

	return res, nil
}

func (d *Detector) sweepChunks(ctx context.Context) (int, error) {
	// Without per-kind overrides one bulk reset does the whole job.
	if len(d.kindThresholds) == 0 {
		reset, err := d.chunks.ResetStalled(ctx, d.threshold)
		if err != nil {
			return 0, err
		}
		for _, c := range reset {
			d.reportReset(ctx, c)
		}
		return len(reset), nil
	}

	// With overrides, list candidates at the most aggressive threshold
	// and decide each one against its job kind's threshold.
	minThreshold := d.threshold
	for _, t := range d.kindThresholds {
		if t < minThreshold {
			minThreshold = t
		}
	}

	candidates, err := d.chunks.ListStalled(ctx, minThreshold)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	kinds := make(map[string]string)
	n := 0
	for _, c := range candidates {
		threshold := d.threshold
		if kind, kerr := d.jobKind(ctx, c.JobID, kinds); kerr == nil {
			if override, ok := d.kindThresholds[kind]; ok {
				threshold = override
			}
		}
		if c.StartedAt == nil || now.Sub(*c.StartedAt) < threshold {
			continue
		}

		ok, rerr := d.chunks.ResetChunkIfStalled(ctx, c.ID, c.Version)
		if rerr != nil {
			d.logger.Error("stall reset failed",
				slog.String("chunk_id", c.ID.String()),
				slog.String("error", rerr.Error()),
			)
			continue
		}
		if !ok {
			// Completed or failed between listing and reset; it won.
			continue
		}
		n++
		d.reportReset(ctx, c)
	}
	return n, nil
}

func (d *Detector) jobKind(ctx context.Context, jobID id.JobID, cache map[string]string) (string, error) {
	if kind, ok := cache[jobID.String()]; ok {
		return kind, nil
	}
	j, err := d.jobs.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	cache[jobID.String()] = j.Kind
	return j.Kind, nil
}

func (d *Detector) reportReset(ctx context.Context, c *chunk.Chunk) {
	if d.hooks != nil {
		d.hooks.EmitChunkStalled(ctx, c)
	}
	d.logger.Warn("stalled chunk reset",
		slog.String("chunk_id", c.ID.String()),
		slog.String("job_id", c.JobID.String()),
		slog.Int("ordinal", c.Ordinal),
	)
}

// Run sweeps on the given interval until ctx is cancelled.
func (d *Detector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Sweep(ctx); err != nil {
				d.logger.Error("stall sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
