package task

import (
	"time"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
)

// Status represents the lifecycle state of a queue task.
type Status string

const (
	// StatusPending means the task is waiting to be picked up.
	StatusPending Status = "pending"
	// StatusProcessing means a worker is handling the task.
	StatusProcessing Status = "processing"
	// StatusCompleted means the task finished successfully. Terminal.
	StatusCompleted Status = "completed"
	// StatusFailed means the task's last attempt failed.
	StatusFailed Status = "failed"
	// StatusIgnored is terminal and reserved for detected duplicates.
	// Ignored tasks count toward neither error rates nor retries.
	StatusIgnored Status = "ignored"
)

// LogType classifies entries in a task's processing log.
type LogType string

const (
	LogReceived  LogType = "received"
	LogStarted   LogType = "started"
	LogCompleted LogType = "completed"
	LogFailed    LogType = "failed"
	LogRetried   LogType = "retried"
	LogIgnored   LogType = "ignored"
)

// LogEntry is one record in a task's append-only processing log.
type LogEntry struct {
	Type      LogType   `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

// Task is a single-item unit of work with its own lifecycle.
type Task struct {
	batch.Entity

	ID    id.TaskID `json:"id"`
	Owner string    `json:"owner,omitempty"`

	// Kind selects the registered processor, mirroring job kinds.
	Kind string `json:"kind"`

	// PayloadRef points at the task's input (e.g. a stored attachment),
	// not the payload itself.
	PayloadRef string `json:"payload_ref"`

	// SourceID and ContentID feed the dedup fingerprint: SourceID
	// identifies where the event came from, ContentID what it carries.
	SourceID  string `json:"source_id"`
	ContentID string `json:"content_id"`

	Status     Status `json:"status"`
	Priority   int    `json:"priority"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
	LastError  string `json:"last_error,omitempty"`

	// Log is append-only; retry history is reconstructed from it.
	Log []LogEntry `json:"log,omitempty"`

	// RunAt is the earliest time the task may be claimed. The retry
	// controller pushes it forward to implement backoff.
	RunAt time.Time `json:"run_at"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DeadLettered reports whether the task has exhausted its retry budget.
func (t *Task) DeadLettered() bool {
	return t.Status == StatusFailed && t.RetryCount > t.MaxRetries
}

// RetryAttempts counts retry entries in the processing log.
func (t *Task) RetryAttempts() int {
	n := 0
	for _, e := range t.Log {
		if e.Type == LogRetried {
			n++
		}
	}
	return n
}
