package chunk

import (
	"time"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
)

// Status represents the lifecycle state of a chunk.
type Status string

const (
	// StatusPending means the chunk is waiting to be claimed.
	StatusPending Status = "pending"
	// StatusProcessing means a worker has claimed the chunk.
	StatusProcessing Status = "processing"
	// StatusCompleted means the chunk finished successfully. Terminal.
	StatusCompleted Status = "completed"
	// StatusFailed means the chunk's last attempt failed. The retry
	// controller decides whether it goes back to pending or stays here
	// as a dead-letter (retry count above the ceiling).
	StatusFailed Status = "failed"
)

// RetryEntry is one record in a chunk's retry history.
type RetryEntry struct {
	Attempt   int       `json:"attempt"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Chunk is a bounded partition [Start, End) of a job's input set,
// processed independently of its siblings.
type Chunk struct {
	batch.Entity

	ID    id.ChunkID `json:"id"`
	JobID id.JobID   `json:"job_id"`

	// Ordinal is the chunk's position within the job, used as the
	// continuation cursor.
	Ordinal int `json:"ordinal"`

	// Start and End delimit the half-open item range [Start, End).
	Start int `json:"start"`
	End   int `json:"end"`

	Status     Status `json:"status"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
	LastError  string `json:"last_error,omitempty"`

	RetryHistory []RetryEntry `json:"retry_history,omitempty"`

	// RunAt is the earliest time the chunk may be claimed. The retry
	// controller pushes it forward to implement backoff.
	RunAt time.Time `json:"run_at"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DeadLettered reports whether the chunk has exhausted its retry budget.
// Dead-letter is not a separate state: a failed chunk whose retry count
// exceeds its ceiling is the dead-letter marker.
func (c *Chunk) DeadLettered() bool {
	return c.Status == StatusFailed && c.RetryCount > c.MaxRetries
}

// Items returns the number of items the chunk covers.
func (c *Chunk) Items() int {
	return c.End - c.Start
}
