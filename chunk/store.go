package chunk

import (
	"context"
	"time"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
)

// StatusCounts is a per-status breakdown of a job's chunks, used by the
// derived job aggregation and by metrics.
type StatusCounts struct {
	Pending      int64
	Processing   int64
	Completed    int64
	Failed       int64
	DeadLettered int64
}

// Terminal reports whether every chunk is in a terminal-ish state:
// completed, or failed with no retry budget left.
func (c StatusCounts) Terminal() bool {
	return c.Pending == 0 && c.Processing == 0 && c.Failed == c.DeadLettered
}

// Total returns the total number of chunks counted.
func (c StatusCounts) Total() int64 {
	return c.Pending + c.Processing + c.Completed + c.Failed
}

// Store defines the persistence contract for chunks. Every mutation is
// a single conditional update; implementations must never read-modify-
// write across two round trips.
type Store interface {
	// CreateChunks persists a job's chunks in bulk, all pending.
	CreateChunks(ctx context.Context, chunks []*Chunk) error

	// ClaimPending atomically selects up to limit pending chunks of the
	// job with ordinal >= cursor and RunAt <= now, transitions them to
	// processing, stamps StartedAt, and returns them in ordinal order.
	// A chunk already claimed by a concurrent caller is silently
	// skipped. Zero claimed chunks is not an error; it means no work is
	// available now.
	ClaimPending(ctx context.Context, jobID id.JobID, cursor, limit int) ([]*Chunk, error)

	// GetChunk retrieves a chunk by ID.
	GetChunk(ctx context.Context, chunkID id.ChunkID) (*Chunk, error)

	// CompleteChunk transitions processing → completed. Returns false
	// if the chunk was not in processing (the transition lost a race);
	// completion losing to a stall reset is re-resolved by the caller.
	CompleteChunk(ctx context.Context, chunkID id.ChunkID) (bool, error)

	// FailChunk transitions processing → failed and records the error.
	// It does NOT touch the retry count; retry policy belongs to the
	// retry controller. Returns false if the chunk was not processing.
	FailChunk(ctx context.Context, chunkID id.ChunkID, errMsg string) (bool, error)

	// RequeueChunk transitions failed → pending, increments the retry
	// count, clears StartedAt, sets RunAt to the given eligibility
	// time, and appends a retry history entry. Returns false if the
	// chunk was not in failed state.
	RequeueChunk(ctx context.Context, chunkID id.ChunkID, runAt time.Time, entry RetryEntry) (bool, error)

	// DeadLetterChunk pins a failed chunk above its retry ceiling so
	// metrics can tell dead-lettered from retryable failures. Returns
	// false if the chunk was not in failed state.
	DeadLetterChunk(ctx context.Context, chunkID id.ChunkID) (bool, error)

	// ForceFailChunk marks a chunk failed regardless of its current
	// non-terminal state, recording the error. Used to terminalize a
	// claimed chunk whose retry count already exceeds its ceiling.
	ForceFailChunk(ctx context.Context, chunkID id.ChunkID, errMsg string) error

	// ResetStalled finds chunks in processing whose StartedAt is older
	// than the threshold and resets them to pending, clearing StartedAt.
	// The status match makes the reset conditional: a completion that
	// lands first changes the status and wins. Returns the chunks that
	// were actually reset. This is the kind-agnostic path; detectors
	// with per-kind thresholds use ListStalled plus ResetChunkIfStalled.
	ResetStalled(ctx context.Context, threshold time.Duration) ([]*Chunk, error)

	// ListStalled returns chunks in processing whose StartedAt is older
	// than the threshold, without modifying them.
	ListStalled(ctx context.Context, threshold time.Duration) ([]*Chunk, error)

	// ResetChunkIfStalled resets one processing chunk to pending,
	// conditional on its version being unchanged since it was read.
	// A completion or failure that landed in between bumped the version
	// and wins; the reset returns false.
	ResetChunkIfStalled(ctx context.Context, chunkID id.ChunkID, version int64) (bool, error)

	// ListChunksByJob returns all chunks of a job in ordinal order.
	ListChunksByJob(ctx context.Context, jobID id.JobID) ([]*Chunk, error)

	// ListFailedRetryable returns failed chunks that still have retry
	// budget, oldest first, up to limit.
	ListFailedRetryable(ctx context.Context, limit int) ([]*Chunk, error)

	// CountChunks returns the per-status breakdown for a job.
	// A nil jobID counts across all jobs.
	CountChunks(ctx context.Context, jobID id.JobID) (StatusCounts, error)

	// CountCompletedSince returns, for throughput metrics, the number
	// of chunks completed after the given time and the sum of their
	// processing durations.
	CountCompletedSince(ctx context.Context, since time.Time) (int64, time.Duration, error)
}
