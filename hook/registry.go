package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/alert"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/job"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/task"
)

// Named entry types pair a hook implementation with the hook name
// captured at registration time. This avoids type-asserting back to
// Hook inside the emit methods.
type chunkClaimedEntry struct {
	name string
	hook ChunkClaimed
}

type chunkCompletedEntry struct {
	name string
	hook ChunkCompleted
}

type chunkFailedEntry struct {
	name string
	hook ChunkFailed
}

type chunkRetryingEntry struct {
	name string
	hook ChunkRetrying
}

type chunkDeadLetteredEntry struct {
	name string
	hook ChunkDeadLettered
}

type chunkStalledEntry struct {
	name string
	hook ChunkStalled
}

type taskIgnoredEntry struct {
	name string
	hook TaskIgnored
}

type jobAdvancedEntry struct {
	name string
	hook JobAdvanced
}

type alertFiredEntry struct {
	name string
	hook AlertFired
}

type tickFiredEntry struct {
	name string
	hook TickFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered hooks and dispatches lifecycle events to
// them. It type-caches hooks at registration time so emit calls iterate
// only over hooks that implement the relevant event.
type Registry struct {
	hooks  []Hook
	logger *slog.Logger

	// Type-cached slices for each lifecycle event.
	chunkClaimed      []chunkClaimedEntry
	chunkCompleted    []chunkCompletedEntry
	chunkFailed       []chunkFailedEntry
	chunkRetrying     []chunkRetryingEntry
	chunkDeadLettered []chunkDeadLetteredEntry
	chunkStalled      []chunkStalledEntry
	taskIgnored       []taskIgnoredEntry
	jobAdvanced       []jobAdvancedEntry
	alertFired        []alertFiredEntry
	tickFired         []tickFiredEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates a hook registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a hook and type-asserts it into all applicable event
// caches. Hooks are notified in registration order.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
	name := h.Name()

	if hk, ok := h.(ChunkClaimed); ok {
		r.chunkClaimed = append(r.chunkClaimed, chunkClaimedEntry{name, hk})
	}
	if hk, ok := h.(ChunkCompleted); ok {
		r.chunkCompleted = append(r.chunkCompleted, chunkCompletedEntry{name, hk})
	}
	if hk, ok := h.(ChunkFailed); ok {
		r.chunkFailed = append(r.chunkFailed, chunkFailedEntry{name, hk})
	}
	if hk, ok := h.(ChunkRetrying); ok {
		r.chunkRetrying = append(r.chunkRetrying, chunkRetryingEntry{name, hk})
	}
	if hk, ok := h.(ChunkDeadLettered); ok {
		r.chunkDeadLettered = append(r.chunkDeadLettered, chunkDeadLetteredEntry{name, hk})
	}
	if hk, ok := h.(ChunkStalled); ok {
		r.chunkStalled = append(r.chunkStalled, chunkStalledEntry{name, hk})
	}
	if hk, ok := h.(TaskIgnored); ok {
		r.taskIgnored = append(r.taskIgnored, taskIgnoredEntry{name, hk})
	}
	if hk, ok := h.(JobAdvanced); ok {
		r.jobAdvanced = append(r.jobAdvanced, jobAdvancedEntry{name, hk})
	}
	if hk, ok := h.(AlertFired); ok {
		r.alertFired = append(r.alertFired, alertFiredEntry{name, hk})
	}
	if hk, ok := h.(TickFired); ok {
		r.tickFired = append(r.tickFired, tickFiredEntry{name, hk})
	}
	if hk, ok := h.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, hk})
	}
}

// Hooks returns all registered hooks.
func (r *Registry) Hooks() []Hook { return r.hooks }

// ──────────────────────────────────────────────────
// Chunk event emitters
// ──────────────────────────────────────────────────

// EmitChunkClaimed notifies all hooks that implement ChunkClaimed.
func (r *Registry) EmitChunkClaimed(ctx context.Context, c *chunk.Chunk) {
	for _, e := range r.chunkClaimed {
		if err := e.hook.OnChunkClaimed(ctx, c); err != nil {
			r.logHookError("OnChunkClaimed", e.name, err)
		}
	}
}

// EmitChunkCompleted notifies all hooks that implement ChunkCompleted.
func (r *Registry) EmitChunkCompleted(ctx context.Context, c *chunk.Chunk, elapsed time.Duration) {
	for _, e := range r.chunkCompleted {
		if err := e.hook.OnChunkCompleted(ctx, c, elapsed); err != nil {
			r.logHookError("OnChunkCompleted", e.name, err)
		}
	}
}

// EmitChunkFailed notifies all hooks that implement ChunkFailed.
func (r *Registry) EmitChunkFailed(ctx context.Context, c *chunk.Chunk, chunkErr error) {
	for _, e := range r.chunkFailed {
		if err := e.hook.OnChunkFailed(ctx, c, chunkErr); err != nil {
			r.logHookError("OnChunkFailed", e.name, err)
		}
	}
}

// EmitChunkRetrying notifies all hooks that implement ChunkRetrying.
func (r *Registry) EmitChunkRetrying(ctx context.Context, c *chunk.Chunk, attempt int, delay time.Duration) {
	for _, e := range r.chunkRetrying {
		if err := e.hook.OnChunkRetrying(ctx, c, attempt, delay); err != nil {
			r.logHookError("OnChunkRetrying", e.name, err)
		}
	}
}

// EmitChunkDeadLettered notifies all hooks that implement ChunkDeadLettered.
func (r *Registry) EmitChunkDeadLettered(ctx context.Context, c *chunk.Chunk) {
	for _, e := range r.chunkDeadLettered {
		if err := e.hook.OnChunkDeadLettered(ctx, c); err != nil {
			r.logHookError("OnChunkDeadLettered", e.name, err)
		}
	}
}

// EmitChunkStalled notifies all hooks that implement ChunkStalled.
func (r *Registry) EmitChunkStalled(ctx context.Context, c *chunk.Chunk) {
	for _, e := range r.chunkStalled {
		if err := e.hook.OnChunkStalled(ctx, c); err != nil {
			r.logHookError("OnChunkStalled", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Task, job, alert, and trigger event emitters
// ──────────────────────────────────────────────────

// EmitTaskIgnored notifies all hooks that implement TaskIgnored.
func (r *Registry) EmitTaskIgnored(ctx context.Context, t *task.Task, reason string) {
	for _, e := range r.taskIgnored {
		if err := e.hook.OnTaskIgnored(ctx, t, reason); err != nil {
			r.logHookError("OnTaskIgnored", e.name, err)
		}
	}
}

// EmitJobAdvanced notifies all hooks that implement JobAdvanced.
func (r *Registry) EmitJobAdvanced(ctx context.Context, j *job.Job) {
	for _, e := range r.jobAdvanced {
		if err := e.hook.OnJobAdvanced(ctx, j); err != nil {
			r.logHookError("OnJobAdvanced", e.name, err)
		}
	}
}

// EmitAlertFired notifies all hooks that implement AlertFired.
func (r *Registry) EmitAlertFired(ctx context.Context, a *alert.Alert) {
	for _, e := range r.alertFired {
		if err := e.hook.OnAlertFired(ctx, a); err != nil {
			r.logHookError("OnAlertFired", e.name, err)
		}
	}
}

// EmitTickFired notifies all hooks that implement TickFired.
func (r *Registry) EmitTickFired(ctx context.Context, kind string) {
	for _, e := range r.tickFired {
		if err := e.hook.OnTickFired(ctx, kind); err != nil {
			r.logHookError("OnTickFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all hooks that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError records a hook failure without interrupting dispatch.
// Hook errors never affect engine correctness.
func (r *Registry) logHookError(event, name string, err error) {
	r.logger.Warn("hook error",
		slog.String("event", event),
		slog.String("hook", name),
		slog.String("error", err.Error()),
	)
}
