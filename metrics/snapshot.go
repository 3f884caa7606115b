package metrics

import (
	"context"
	"time"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/task"
)

// Windows are the sliding aggregation windows snapshots are computed
// over, from near-real-time to weekly trend.
var Windows = []time.Duration{
	15 * time.Minute,
	time.Hour,
	6 * time.Hour,
	24 * time.Hour,
	7 * 24 * time.Hour,
}

// Snapshot is a point-in-time view of pipeline health over one window.
type Snapshot struct {
	Window time.Duration `json:"window"`
	At     time.Time     `json:"at"`

	// ChunksCompleted counts chunks completed within the window.
	ChunksCompleted int64 `json:"chunks_completed"`

	// Throughput is completed chunks per hour over the window.
	Throughput float64 `json:"throughput"`

	// AvgDuration is the mean chunk processing duration in the window.
	AvgDuration time.Duration `json:"avg_duration"`

	// Chunks is the current per-status breakdown across all jobs.
	// State counts are instantaneous, not windowed.
	Chunks chunk.StatusCounts `json:"chunks"`

	// ErrorRate is failed/(failed+completed) over all chunks, 0..1.
	// Dead-lettered chunks count as failed; ignored duplicates count as
	// nothing.
	ErrorRate float64 `json:"error_rate"`

	// Tasks is the current per-status task breakdown.
	Tasks map[task.Status]int64 `json:"tasks,omitempty"`
}

// Collector computes snapshots by querying the stores. Stateless by
// design: counters derived from rows survive restarts and agree across
// concurrent invocations.
type Collector struct {
	chunks chunk.Store
	tasks  task.Store
}

// NewCollector creates a Collector. tasks may be nil when the intake
// queue is not in use.
func NewCollector(chunks chunk.Store, tasks task.Store) *Collector {
	return &Collector{chunks: chunks, tasks: tasks}
}

// Snapshot computes one snapshot over the given window.
func (c *Collector) Snapshot(ctx context.Context, window time.Duration) (*Snapshot, error) {
	now := time.Now().UTC()

	completed, totalDur, err := c.chunks.CountCompletedSince(ctx, now.Add(-window))
	if err != nil {
		return nil, err
	}

	counts, err := c.chunks.CountChunks(ctx, id.Nil)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Window:          window,
		At:              now,
		ChunksCompleted: completed,
		Chunks:          counts,
	}

	if completed > 0 {
		snap.Throughput = float64(completed) / window.Hours()
		snap.AvgDuration = totalDur / time.Duration(completed)
	}

	if terminal := counts.Completed + counts.Failed; terminal > 0 {
		snap.ErrorRate = float64(counts.Failed) / float64(terminal)
	}

	if c.tasks != nil {
		taskCounts, terr := c.tasks.CountTasksByStatus(ctx)
		if terr != nil {
			return nil, terr
		}
		snap.Tasks = taskCounts
	}

	return snap, nil
}

// SnapshotAll computes snapshots over every standard window.
func (c *Collector) SnapshotAll(ctx context.Context) ([]*Snapshot, error) {
	snaps := make([]*Snapshot, 0, len(Windows))
	for _, w := range Windows {
		s, err := c.Snapshot(ctx, w)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, nil
}
