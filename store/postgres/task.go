package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/task"
)

const taskColumns = `
	id, owner, kind, payload_ref, source_id, content_id,
	status, priority, retry_count, max_retries, last_error, log,
	run_at, started_at, completed_at, created_at, updated_at, version`

// logEntryJSON marshals one log entry for a jsonb append. Marshal
// failures on this shape are programming errors.
func logEntryJSON(typ task.LogType, msg string) []byte {
	data, err := json.Marshal([]task.LogEntry{{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Message:   msg,
	}})
	if err != nil {
		panic(fmt.Sprintf("batch/postgres: marshal log entry: %v", err))
	}
	return data
}

// CreateTask persists a new task in pending state with a "received"
// log entry.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	received := task.LogEntry{Type: task.LogReceived, Timestamp: time.Now().UTC()}
	logJSON, err := json.Marshal(append(t.Log, received))
	if err != nil {
		return fmt.Errorf("batch/postgres: marshal task log: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO batch_tasks (
			id, owner, kind, payload_ref, source_id, content_id,
			status, priority, retry_count, max_retries, last_error, log,
			run_at, started_at, completed_at, created_at, updated_at, version
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18
		)`,
		t.ID.String(), t.Owner, t.Kind, t.PayloadRef, t.SourceID, t.ContentID,
		string(t.Status), t.Priority, t.RetryCount, t.MaxRetries, t.LastError, logJSON,
		nullableTime(t.RunAt), t.StartedAt, t.CompletedAt, t.CreatedAt, t.UpdatedAt, t.Version,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return batch.ErrTaskAlreadyExists
		}
		return fmt.Errorf("batch/postgres: create task: %w", err)
	}
	t.Log = append(t.Log, received)
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM batch_tasks WHERE id = $1`,
		taskID.String(),
	)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, batch.ErrTaskNotFound
		}
		return nil, fmt.Errorf("batch/postgres: get task: %w", err)
	}
	return t, nil
}

// ClaimPendingTasks atomically claims up to limit eligible pending
// tasks, highest priority first.
func (s *Store) ClaimPendingTasks(ctx context.Context, limit int) ([]*task.Task, error) {
	rows, err := s.pool.Query(ctx, `
		WITH claimed AS (
			UPDATE batch_tasks
			SET status = 'processing', started_at = NOW(),
				log = log || $2::jsonb,
				updated_at = NOW(), version = version + 1
			WHERE id IN (
				SELECT id FROM batch_tasks
				WHERE status = 'pending'
				  AND (run_at IS NULL OR run_at <= NOW())
				ORDER BY priority DESC, created_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $1
			)
			RETURNING `+taskColumns+`
		)
		SELECT * FROM claimed ORDER BY priority DESC, created_at ASC`,
		limit, logEntryJSON(task.LogStarted, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("batch/postgres: claim tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// CompleteTask transitions processing → completed.
func (s *Store) CompleteTask(ctx context.Context, taskID id.TaskID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE batch_tasks SET
			status = 'completed', completed_at = NOW(),
			log = log || $2::jsonb,
			updated_at = NOW(), version = version + 1
		WHERE id = $1 AND status = 'processing'`,
		taskID.String(), logEntryJSON(task.LogCompleted, ""),
	)
	if err != nil {
		return false, fmt.Errorf("batch/postgres: complete task: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FailTask transitions processing → failed and records the error.
func (s *Store) FailTask(ctx context.Context, taskID id.TaskID, errMsg string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE batch_tasks SET
			status = 'failed', last_error = $2,
			log = log || $3::jsonb,
			updated_at = NOW(), version = version + 1
		WHERE id = $1 AND status = 'processing'`,
		taskID.String(), errMsg, logEntryJSON(task.LogFailed, errMsg),
	)
	if err != nil {
		return false, fmt.Errorf("batch/postgres: fail task: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IgnoreTask marks a task ignored (duplicate delivery).
func (s *Store) IgnoreTask(ctx context.Context, taskID id.TaskID, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE batch_tasks SET
			status = 'ignored',
			log = log || $2::jsonb,
			updated_at = NOW(), version = version + 1
		WHERE id = $1 AND status IN ('pending', 'processing')`,
		taskID.String(), logEntryJSON(task.LogIgnored, reason),
	)
	if err != nil {
		return fmt.Errorf("batch/postgres: ignore task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if qerr := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM batch_tasks WHERE id = $1)`,
			taskID.String(),
		).Scan(&exists); qerr != nil {
			return fmt.Errorf("batch/postgres: ignore task: %w", qerr)
		}
		if !exists {
			return batch.ErrTaskNotFound
		}
		return batch.ErrInvalidTransition
	}
	return nil
}

// RequeueTask transitions failed → pending with an incremented retry
// count, a new eligibility time, and a "retried" log entry.
func (s *Store) RequeueTask(ctx context.Context, taskID id.TaskID, runAt time.Time, reason string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE batch_tasks SET
			status = 'pending', retry_count = retry_count + 1,
			run_at = $2, started_at = NULL,
			log = log || $3::jsonb,
			updated_at = NOW(), version = version + 1
		WHERE id = $1 AND status = 'failed'`,
		taskID.String(), runAt, logEntryJSON(task.LogRetried, reason),
	)
	if err != nil {
		return false, fmt.Errorf("batch/postgres: requeue task: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeadLetterTask pins a failed task above its retry ceiling.
func (s *Store) DeadLetterTask(ctx context.Context, taskID id.TaskID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE batch_tasks SET
			retry_count = max_retries + 1,
			updated_at = NOW(), version = version + 1
		WHERE id = $1 AND status = 'failed' AND retry_count <= max_retries`,
		taskID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("batch/postgres: dead-letter task: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListCompletedSince returns tasks completed at or after the given
// time, newest first.
func (s *Store) ListCompletedSince(ctx context.Context, since time.Time) ([]*task.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM batch_tasks
		WHERE status = 'completed' AND completed_at >= $1
		ORDER BY completed_at DESC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("batch/postgres: list completed tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ListFailedRetryableTasks returns failed tasks within their retry
// budget, oldest first.
func (s *Store) ListFailedRetryableTasks(ctx context.Context, limit int) ([]*task.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM batch_tasks
		WHERE status = 'failed' AND retry_count <= max_retries
		ORDER BY updated_at ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("batch/postgres: list failed retryable tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ResetStalledTasks resets processing tasks older than the threshold
// back to pending.
func (s *Store) ResetStalledTasks(ctx context.Context, threshold time.Duration) ([]*task.Task, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	rows, err := s.pool.Query(ctx, `
		UPDATE batch_tasks SET
			status = 'pending', started_at = NULL, run_at = NULL,
			updated_at = NOW(), version = version + 1
		WHERE status = 'processing'
		  AND started_at IS NOT NULL
		  AND started_at < $1
		RETURNING `+taskColumns,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("batch/postgres: reset stalled tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// CountTasksByStatus returns the number of tasks per status.
func (s *Store) CountTasksByStatus(ctx context.Context) (map[task.Status]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM batch_tasks GROUP BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("batch/postgres: count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[task.Status]int64)
	for rows.Next() {
		var (
			statusStr string
			n         int64
		)
		if err := rows.Scan(&statusStr, &n); err != nil {
			return nil, fmt.Errorf("batch/postgres: scan task count: %w", err)
		}
		counts[task.Status(statusStr)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch/postgres: iterate task counts: %w", err)
	}
	return counts, nil
}

// scanTask scans a single task row.
func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t         task.Task
		idStr     string
		statusStr string
		logJSON   []byte
		runAt     *time.Time
	)
	err := row.Scan(
		&idStr, &t.Owner, &t.Kind, &t.PayloadRef, &t.SourceID, &t.ContentID,
		&statusStr, &t.Priority, &t.RetryCount, &t.MaxRetries, &t.LastError, &logJSON,
		&runAt, &t.StartedAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt, &t.Version,
	)
	if err != nil {
		return nil, err
	}

	t.Status = task.Status(statusStr)
	t.RunAt = timeOrZero(runAt)

	if len(logJSON) > 0 {
		if uerr := json.Unmarshal(logJSON, &t.Log); uerr != nil {
			return nil, fmt.Errorf("batch/postgres: unmarshal task log: %w", uerr)
		}
	}

	parsedID, parseErr := id.ParseTaskID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("batch/postgres: parse task id %q: %w", idStr, parseErr)
	}
	t.ID = parsedID

	return &t, nil
}

// collectTasks collects all tasks from query rows.
func collectTasks(rows pgx.Rows) ([]*task.Task, error) {
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("batch/postgres: scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch/postgres: iterate task rows: %w", err)
	}
	return tasks, nil
}
