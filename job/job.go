package job

import (
	"time"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
)

// Status represents the lifecycle state of a job. Transitions only move
// forward (pending → running → terminal); chunks inside the job may
// retry, but the job itself never moves backward.
type Status string

const (
	// StatusPending means the job has been registered but no chunk has
	// been claimed yet.
	StatusPending Status = "pending"
	// StatusRunning means at least one chunk has been claimed and not
	// all chunks are terminal.
	StatusRunning Status = "running"
	// StatusCancelling means an operator asked the job to stop; slices
	// check this before claiming more work so a continuation chain can
	// be halted.
	StatusCancelling Status = "cancelling"
	// StatusCompleted means every chunk completed successfully.
	StatusCompleted Status = "completed"
	// StatusCompletedWithErrors means all chunks are terminal and at
	// least one is permanently failed.
	StatusCompletedWithErrors Status = "completed_with_errors"
	// StatusFailed means the job could not run at all (e.g. its input
	// set could not be read). Chunk-level failures never set this.
	StatusFailed Status = "failed"
)

// Terminal reports whether s is a terminal job status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusFailed:
		return true
	default:
		return false
	}
}

// UnitError records one failed unit of work in the job's error summary.
type UnitError struct {
	Unit    string `json:"unit"`
	Message string `json:"message"`
}

// Job is a top-level import/processing request partitioned into chunks.
// Aggregate counters are recomputed from chunk rows on every advance,
// never incremented, so concurrent or duplicate invocations converge on
// the same result.
type Job struct {
	batch.Entity

	ID    id.JobID `json:"id"`
	Kind  string   `json:"kind"`
	Owner string   `json:"owner,omitempty"`

	TotalItems  int `json:"total_items"`
	ChunkSize   int `json:"chunk_size"`
	TotalChunks int `json:"total_chunks"`

	// Cursor is the chunk ordinal the continuation engine resumes from.
	Cursor int `json:"cursor"`

	Status Status `json:"status"`

	CompletedChunks int `json:"completed_chunks"`
	FailedChunks    int `json:"failed_chunks"`

	Errors []UnitError `json:"errors,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
