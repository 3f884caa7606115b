// Package hook defines the lifecycle hook system for the engine.
// Hooks are notified of lifecycle events (chunk claimed, completed,
// dead-lettered, alert fired, etc.) and can react to them — metrics,
// tracing, audit, notification fan-out.
//
// Each lifecycle event is a separate interface so hooks opt in only to
// the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/alert"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/job"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/task"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// ──────────────────────────────────────────────────
// Chunk lifecycle events
// ──────────────────────────────────────────────────

// ChunkClaimed is called when a worker claims a chunk for processing.
type ChunkClaimed interface {
	OnChunkClaimed(ctx context.Context, c *chunk.Chunk) error
}

// ChunkCompleted is called after a chunk finishes successfully.
type ChunkCompleted interface {
	OnChunkCompleted(ctx context.Context, c *chunk.Chunk, elapsed time.Duration) error
}

// ChunkFailed is called when a chunk attempt fails.
type ChunkFailed interface {
	OnChunkFailed(ctx context.Context, c *chunk.Chunk, err error) error
}

// ChunkRetrying is called when the retry controller re-admits a chunk.
type ChunkRetrying interface {
	OnChunkRetrying(ctx context.Context, c *chunk.Chunk, attempt int, delay time.Duration) error
}

// ChunkDeadLettered is called when a chunk exhausts its retry budget.
type ChunkDeadLettered interface {
	OnChunkDeadLettered(ctx context.Context, c *chunk.Chunk) error
}

// ChunkStalled is called when the stall detector reclaims a chunk.
type ChunkStalled interface {
	OnChunkStalled(ctx context.Context, c *chunk.Chunk) error
}

// ──────────────────────────────────────────────────
// Task and job lifecycle events
// ──────────────────────────────────────────────────

// TaskIgnored is called when the dedup filter marks a task as a
// duplicate delivery.
type TaskIgnored interface {
	OnTaskIgnored(ctx context.Context, t *task.Task, reason string) error
}

// JobAdvanced is called after a job's aggregate status is recomputed.
type JobAdvanced interface {
	OnJobAdvanced(ctx context.Context, j *job.Job) error
}

// AlertFired is called after an alert is persisted.
type AlertFired interface {
	OnAlertFired(ctx context.Context, a *alert.Alert) error
}

// TickFired is called when a trigger (scheduled, manual, or
// continuation) starts an engine sweep.
type TickFired interface {
	OnTickFired(ctx context.Context, kind string) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
