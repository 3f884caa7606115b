package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/alert"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/hook"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/job"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/task"
)

// Compile-time interface checks.
var (
	_ hook.Hook              = (*OTelHook)(nil)
	_ hook.ChunkClaimed      = (*OTelHook)(nil)
	_ hook.ChunkCompleted    = (*OTelHook)(nil)
	_ hook.ChunkFailed       = (*OTelHook)(nil)
	_ hook.ChunkRetrying     = (*OTelHook)(nil)
	_ hook.ChunkDeadLettered = (*OTelHook)(nil)
	_ hook.ChunkStalled      = (*OTelHook)(nil)
	_ hook.TaskIgnored       = (*OTelHook)(nil)
	_ hook.JobAdvanced       = (*OTelHook)(nil)
	_ hook.AlertFired        = (*OTelHook)(nil)
	_ hook.TickFired         = (*OTelHook)(nil)
)

// OTelHook exports lifecycle counters and the chunk duration histogram
// to OpenTelemetry. Register it on the hook registry to feed external
// dashboards; the Collector remains the source of truth for windowed
// aggregates.
type OTelHook struct {
	chunkClaimed     metric.Int64Counter
	chunkCompleted   metric.Int64Counter
	chunkFailed      metric.Int64Counter
	chunkRetried     metric.Int64Counter
	chunkDeadLetters metric.Int64Counter
	chunkStalled     metric.Int64Counter
	taskIgnored      metric.Int64Counter
	jobAdvanced      metric.Int64Counter
	alertFired       metric.Int64Counter
	tickFired        metric.Int64Counter
	chunkDuration    metric.Float64Histogram
}

// NewOTelHook creates an OTelHook on the global meter provider.
func NewOTelHook() (*OTelHook, error) {
	return NewOTelHookWithMeter(otel.Meter("batch"))
}

// NewOTelHookWithMeter creates an OTelHook on the given meter.
func NewOTelHookWithMeter(meter metric.Meter) (*OTelHook, error) {
	h := &OTelHook{}

	var err error
	if h.chunkClaimed, err = meter.Int64Counter("batch.chunk.claimed"); err != nil {
		return nil, err
	}
	if h.chunkCompleted, err = meter.Int64Counter("batch.chunk.completed"); err != nil {
		return nil, err
	}
	if h.chunkFailed, err = meter.Int64Counter("batch.chunk.failed"); err != nil {
		return nil, err
	}
	if h.chunkRetried, err = meter.Int64Counter("batch.chunk.retried"); err != nil {
		return nil, err
	}
	if h.chunkDeadLetters, err = meter.Int64Counter("batch.chunk.dead_lettered"); err != nil {
		return nil, err
	}
	if h.chunkStalled, err = meter.Int64Counter("batch.chunk.stalled"); err != nil {
		return nil, err
	}
	if h.taskIgnored, err = meter.Int64Counter("batch.task.ignored"); err != nil {
		return nil, err
	}
	if h.jobAdvanced, err = meter.Int64Counter("batch.job.advanced"); err != nil {
		return nil, err
	}
	if h.alertFired, err = meter.Int64Counter("batch.alert.fired"); err != nil {
		return nil, err
	}
	if h.tickFired, err = meter.Int64Counter("batch.tick.fired"); err != nil {
		return nil, err
	}
	if h.chunkDuration, err = meter.Float64Histogram("batch.chunk.duration_seconds"); err != nil {
		return nil, err
	}

	return h, nil
}

// Name implements hook.Hook.
func (h *OTelHook) Name() string { return "otel-metrics" }

// OnChunkClaimed implements hook.ChunkClaimed.
func (h *OTelHook) OnChunkClaimed(ctx context.Context, c *chunk.Chunk) error {
	h.chunkClaimed.Add(ctx, 1, jobAttr(c))
	return nil
}

// OnChunkCompleted implements hook.ChunkCompleted.
func (h *OTelHook) OnChunkCompleted(ctx context.Context, c *chunk.Chunk, elapsed time.Duration) error {
	h.chunkCompleted.Add(ctx, 1, jobAttr(c))
	h.chunkDuration.Record(ctx, elapsed.Seconds(), jobAttr(c))
	return nil
}

// OnChunkFailed implements hook.ChunkFailed.
func (h *OTelHook) OnChunkFailed(ctx context.Context, c *chunk.Chunk, _ error) error {
	h.chunkFailed.Add(ctx, 1, jobAttr(c))
	return nil
}

// OnChunkRetrying implements hook.ChunkRetrying.
func (h *OTelHook) OnChunkRetrying(ctx context.Context, c *chunk.Chunk, attempt int, _ time.Duration) error {
	h.chunkRetried.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_id", c.JobID.String()),
		attribute.Int("attempt", attempt),
	))
	return nil
}

// OnChunkDeadLettered implements hook.ChunkDeadLettered.
func (h *OTelHook) OnChunkDeadLettered(ctx context.Context, c *chunk.Chunk) error {
	h.chunkDeadLetters.Add(ctx, 1, jobAttr(c))
	return nil
}

// OnChunkStalled implements hook.ChunkStalled.
func (h *OTelHook) OnChunkStalled(ctx context.Context, c *chunk.Chunk) error {
	h.chunkStalled.Add(ctx, 1, jobAttr(c))
	return nil
}

// OnTaskIgnored implements hook.TaskIgnored.
func (h *OTelHook) OnTaskIgnored(ctx context.Context, t *task.Task, _ string) error {
	h.taskIgnored.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", t.Kind),
	))
	return nil
}

// OnJobAdvanced implements hook.JobAdvanced.
func (h *OTelHook) OnJobAdvanced(ctx context.Context, j *job.Job) error {
	h.jobAdvanced.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", j.Kind),
		attribute.String("status", string(j.Status)),
	))
	return nil
}

// OnAlertFired implements hook.AlertFired.
func (h *OTelHook) OnAlertFired(ctx context.Context, a *alert.Alert) error {
	h.alertFired.Add(ctx, 1, metric.WithAttributes(
		attribute.String("severity", string(a.Severity)),
		attribute.String("component", a.Component),
	))
	return nil
}

// OnTickFired implements hook.TickFired.
func (h *OTelHook) OnTickFired(ctx context.Context, kind string) error {
	h.tickFired.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
	return nil
}

func jobAttr(c *chunk.Chunk) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("job_id", c.JobID.String()))
}
