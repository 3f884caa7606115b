package task

import (
	"context"
	"time"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
)

// Store defines the persistence contract for queue tasks.
type Store interface {
	// CreateTask persists a new task in pending state with a
	// "received" log entry.
	CreateTask(ctx context.Context, t *Task) error

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, taskID id.TaskID) (*Task, error)

	// ClaimPendingTasks atomically selects up to limit pending tasks
	// with RunAt <= now, ordered by priority (descending) then creation
	// time, transitions them to processing, and returns them.
	ClaimPendingTasks(ctx context.Context, limit int) ([]*Task, error)

	// CompleteTask transitions processing → completed and appends a
	// "completed" log entry. Returns false on a lost race.
	CompleteTask(ctx context.Context, taskID id.TaskID) (bool, error)

	// FailTask transitions processing → failed, records the error, and
	// appends a "failed" log entry. Retry count is untouched; that is
	// the retry controller's job. Returns false on a lost race.
	FailTask(ctx context.Context, taskID id.TaskID, errMsg string) (bool, error)

	// IgnoreTask marks a task ignored (duplicate delivery) and appends
	// an "ignored" log entry. Valid from pending or processing.
	IgnoreTask(ctx context.Context, taskID id.TaskID, reason string) error

	// RequeueTask transitions failed → pending, increments the retry
	// count, sets RunAt to the given eligibility time, and appends a
	// "retried" log entry with the reason. Returns false if the task
	// was not in failed state.
	RequeueTask(ctx context.Context, taskID id.TaskID, runAt time.Time, reason string) (bool, error)

	// DeadLetterTask pins a failed task above its retry ceiling so
	// metrics can tell dead-lettered from retryable failures. Returns
	// false if the task was not in failed state.
	DeadLetterTask(ctx context.Context, taskID id.TaskID) (bool, error)

	// ListCompletedSince returns tasks completed within the window
	// [since, now], newest first. The dedup filter scans these for
	// fingerprint matches.
	ListCompletedSince(ctx context.Context, since time.Time) ([]*Task, error)

	// ListFailedRetryableTasks returns failed tasks that still have
	// retry budget, oldest first, up to limit.
	ListFailedRetryableTasks(ctx context.Context, limit int) ([]*Task, error)

	// ResetStalledTasks resets processing tasks whose StartedAt is
	// older than the threshold back to pending, version-guarded like
	// chunk resets. Returns the tasks that were actually reset.
	ResetStalledTasks(ctx context.Context, threshold time.Duration) ([]*Task, error)

	// CountTasksByStatus returns the number of tasks per status.
	CountTasksByStatus(ctx context.Context) (map[Status]int64, error)
}
