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

// Audit event actions. Each constant corresponds to one lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionChunkClaimed      = "chunk.claimed"
	ActionChunkCompleted    = "chunk.completed"
	ActionChunkFailed       = "chunk.failed"
	ActionChunkRetrying     = "chunk.retrying"
	ActionChunkDeadLettered = "chunk.dead_lettered"
	ActionChunkStalled      = "chunk.stalled"
	ActionTaskIgnored       = "task.ignored"
	ActionJobAdvanced       = "job.advanced"
	ActionAlertFired        = "alert.fired"
	ActionTickFired         = "tick.fired"
)

// Outcome constants for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditEvent is one record in the processing audit trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id,omitempty"`
	Outcome    string         `json:"outcome"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Recorder is the interface audit backends implement. Defined locally
// so callers inject their audit system at wiring time instead of this
// package importing it.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// RecorderFunc adapts a plain function to the Recorder interface.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// AuditHook records every lifecycle event to a Recorder, forming a
// tamper-evident processing history for compliance review. Without an
// explicit recorder, events land in the structured log.
type AuditHook struct {
	recorder Recorder
}

// Compile-time interface checks.
var (
	_ Hook              = (*AuditHook)(nil)
	_ ChunkClaimed      = (*AuditHook)(nil)
	_ ChunkCompleted    = (*AuditHook)(nil)
	_ ChunkFailed       = (*AuditHook)(nil)
	_ ChunkRetrying     = (*AuditHook)(nil)
	_ ChunkDeadLettered = (*AuditHook)(nil)
	_ ChunkStalled      = (*AuditHook)(nil)
	_ TaskIgnored       = (*AuditHook)(nil)
	_ JobAdvanced       = (*AuditHook)(nil)
	_ AlertFired        = (*AuditHook)(nil)
	_ TickFired         = (*AuditHook)(nil)
)

// NewAuditHook creates an audit hook over the given recorder. A nil
// recorder falls back to logging events via logger.
func NewAuditHook(recorder Recorder, logger *slog.Logger) *AuditHook {
	if recorder == nil {
		if logger == nil {
			logger = slog.Default()
		}
		recorder = slogRecorder(logger)
	}
	return &AuditHook{recorder: recorder}
}

// slogRecorder writes audit events as structured log lines.
func slogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(_ context.Context, evt *AuditEvent) error {
		attrs := []any{
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
		}
		if evt.Reason != "" {
			attrs = append(attrs, slog.String("reason", evt.Reason))
		}
		logger.Info("audit", attrs...)
		return nil
	})
}

// Name implements Hook.
func (h *AuditHook) Name() string { return "audit" }

// OnChunkClaimed implements ChunkClaimed.
func (h *AuditHook) OnChunkClaimed(ctx context.Context, c *chunk.Chunk) error {
	return h.recorder.Record(ctx, &AuditEvent{
		Action:     ActionChunkClaimed,
		Resource:   "chunk",
		ResourceID: c.ID.String(),
		Outcome:    OutcomeSuccess,
		Metadata: map[string]any{
			"job_id":  c.JobID.String(),
			"ordinal": c.Ordinal,
		},
	})
}

// OnChunkCompleted implements ChunkCompleted.
func (h *AuditHook) OnChunkCompleted(ctx context.Context, c *chunk.Chunk, elapsed time.Duration) error {
	return h.recorder.Record(ctx, &AuditEvent{
		Action:     ActionChunkCompleted,
		Resource:   "chunk",
		ResourceID: c.ID.String(),
		Outcome:    OutcomeSuccess,
		Metadata: map[string]any{
			"job_id":     c.JobID.String(),
			"ordinal":    c.Ordinal,
			"elapsed_ms": elapsed.Milliseconds(),
		},
	})
}

// OnChunkFailed implements ChunkFailed.
func (h *AuditHook) OnChunkFailed(ctx context.Context, c *chunk.Chunk, chunkErr error) error {
	return h.recorder.Record(ctx, &AuditEvent{
		Action:     ActionChunkFailed,
		Resource:   "chunk",
		ResourceID: c.ID.String(),
		Outcome:    OutcomeFailure,
		Reason:     chunkErr.Error(),
		Metadata: map[string]any{
			"job_id":      c.JobID.String(),
			"ordinal":     c.Ordinal,
			"retry_count": c.RetryCount,
		},
	})
}

// OnChunkRetrying implements ChunkRetrying.
func (h *AuditHook) OnChunkRetrying(ctx context.Context, c *chunk.Chunk, attempt int, delay time.Duration) error {
	return h.recorder.Record(ctx, &AuditEvent{
		Action:     ActionChunkRetrying,
		Resource:   "chunk",
		ResourceID: c.ID.String(),
		Outcome:    OutcomeSuccess,
		Reason:     c.LastError,
		Metadata: map[string]any{
			"job_id":   c.JobID.String(),
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		},
	})
}

// OnChunkDeadLettered implements ChunkDeadLettered.
func (h *AuditHook) OnChunkDeadLettered(ctx context.Context, c *chunk.Chunk) error {
	return h.recorder.Record(ctx, &AuditEvent{
		Action:     ActionChunkDeadLettered,
		Resource:   "chunk",
		ResourceID: c.ID.String(),
		Outcome:    OutcomeFailure,
		Reason:     c.LastError,
		Metadata: map[string]any{
			"job_id":      c.JobID.String(),
			"retry_count": c.RetryCount,
		},
	})
}

// OnChunkStalled implements ChunkStalled.
func (h *AuditHook) OnChunkStalled(ctx context.Context, c *chunk.Chunk) error {
	return h.recorder.Record(ctx, &AuditEvent{
		Action:     ActionChunkStalled,
		Resource:   "chunk",
		ResourceID: c.ID.String(),
		Outcome:    OutcomeFailure,
		Reason:     "processing past stall threshold, reset to pending",
		Metadata: map[string]any{
			"job_id": c.JobID.String(),
		},
	})
}

// OnTaskIgnored implements TaskIgnored.
func (h *AuditHook) OnTaskIgnored(ctx context.Context, t *task.Task, reason string) error {
	return h.recorder.Record(ctx, &AuditEvent{
		Action:     ActionTaskIgnored,
		Resource:   "task",
		ResourceID: t.ID.String(),
		Outcome:    OutcomeSuccess,
		Reason:     reason,
		Metadata: map[string]any{
			"source_id":  t.SourceID,
			"content_id": t.ContentID,
		},
	})
}

// OnJobAdvanced implements JobAdvanced.
func (h *AuditHook) OnJobAdvanced(ctx context.Context, j *job.Job) error {
	return h.recorder.Record(ctx, &AuditEvent{
		Action:     ActionJobAdvanced,
		Resource:   "job",
		ResourceID: j.ID.String(),
		Outcome:    OutcomeSuccess,
		Metadata: map[string]any{
			"status":           string(j.Status),
			"completed_chunks": j.CompletedChunks,
			"failed_chunks":    j.FailedChunks,
			"cursor":           j.Cursor,
		},
	})
}

// OnAlertFired implements AlertFired.
func (h *AuditHook) OnAlertFired(ctx context.Context, a *alert.Alert) error {
	return h.recorder.Record(ctx, &AuditEvent{
		Action:     ActionAlertFired,
		Resource:   "alert",
		ResourceID: a.ID.String(),
		Outcome:    OutcomeFailure,
		Reason:     a.Message,
		Metadata: map[string]any{
			"severity":  string(a.Severity),
			"component": a.Component,
		},
	})
}

// OnTickFired implements TickFired.
func (h *AuditHook) OnTickFired(ctx context.Context, kind string) error {
	return h.recorder.Record(ctx, &AuditEvent{
		Action:   ActionTickFired,
		Resource: "tick",
		Outcome:  OutcomeSuccess,
		Metadata: map[string]any{
			"kind": kind,
		},
	})
}
