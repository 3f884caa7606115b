package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
)

const chunkColumns = `
	id, job_id, ordinal, start_item, end_item,
	status, retry_count, max_retries, last_error, retry_history,
	run_at, started_at, completed_at, created_at, updated_at, version`

// CreateChunks persists a job's chunks in bulk inside one transaction.
func (s *Store) CreateChunks(ctx context.Context, chunks []*chunk.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("batch/postgres: create chunks: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range chunks {
		histJSON, merr := json.Marshal(c.RetryHistory)
		if merr != nil {
			return fmt.Errorf("batch/postgres: marshal retry history: %w", merr)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO batch_chunks (
				id, job_id, ordinal, start_item, end_item,
				status, retry_count, max_retries, last_error, retry_history,
				run_at, started_at, completed_at, created_at, updated_at, version
			) VALUES (
				$1, $2, $3, $4, $5,
				$6, $7, $8, $9, $10,
				$11, $12, $13, $14, $15, $16
			)`,
			c.ID.String(), c.JobID.String(), c.Ordinal, c.Start, c.End,
			string(c.Status), c.RetryCount, c.MaxRetries, c.LastError, histJSON,
			nullableTime(c.RunAt), c.StartedAt, c.CompletedAt, c.CreatedAt, c.UpdatedAt, c.Version,
		)
		if err != nil {
			return fmt.Errorf("batch/postgres: create chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("batch/postgres: create chunks: commit: %w", err)
	}
	return nil
}

// ClaimPending atomically claims up to limit pending chunks of the job
// at or beyond the cursor that are eligible now. Uses SELECT FOR UPDATE
// SKIP LOCKED so concurrent claimers receive disjoint sets.
func (s *Store) ClaimPending(ctx context.Context, jobID id.JobID, cursor, limit int) ([]*chunk.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		WITH claimed AS (
			UPDATE batch_chunks
			SET status = 'processing', started_at = NOW(),
				updated_at = NOW(), version = version + 1
			WHERE id IN (
				SELECT id FROM batch_chunks
				WHERE job_id = $1
				  AND status = 'pending'
				  AND ordinal >= $2
				  AND (run_at IS NULL OR run_at <= NOW())
				ORDER BY ordinal ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $3
			)
			RETURNING `+chunkColumns+`
		)
		SELECT * FROM claimed ORDER BY ordinal ASC`,
		jobID.String(), cursor, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("batch/postgres: claim chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// GetChunk retrieves a chunk by ID.
func (s *Store) GetChunk(ctx context.Context, chunkID id.ChunkID) (*chunk.Chunk, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+chunkColumns+` FROM batch_chunks WHERE id = $1`,
		chunkID.String(),
	)

	c, err := scanChunk(row)
	if err != nil {
		if isNoRows(err) {
			return nil, batch.ErrChunkNotFound
		}
		return nil, fmt.Errorf("batch/postgres: get chunk: %w", err)
	}
	return c, nil
}

// CompleteChunk transitions processing → completed.
func (s *Store) CompleteChunk(ctx context.Context, chunkID id.ChunkID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE batch_chunks SET
			status = 'completed', completed_at = NOW(),
			updated_at = NOW(), version = version + 1
		WHERE id = $1 AND status = 'processing'`,
		chunkID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("batch/postgres: complete chunk: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FailChunk transitions processing → failed and records the error.
func (s *Store) FailChunk(ctx context.Context, chunkID id.ChunkID, errMsg string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE batch_chunks SET
			status = 'failed', last_error = $2,
			updated_at = NOW(), version = version + 1
		WHERE id = $1 AND status = 'processing'`,
		chunkID.String(), errMsg,
	)
	if err != nil {
		return false, fmt.Errorf("batch/postgres: fail chunk: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RequeueChunk transitions failed → pending with an incremented retry
// count, a new eligibility time, and an appended history entry.
func (s *Store) RequeueChunk(ctx context.Context, chunkID id.ChunkID, runAt time.Time, entry chunk.RetryEntry) (bool, error) {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("batch/postgres: marshal retry entry: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE batch_chunks SET
			status = 'pending', retry_count = retry_count + 1,
			run_at = $2, started_at = NULL,
			retry_history = retry_history || $3::jsonb,
			updated_at = NOW(), version = version + 1
		WHERE id = $1 AND status = 'failed'`,
		chunkID.String(), runAt, entryJSON,
	)
	if err != nil {
		return false, fmt.Errorf("batch/postgres: requeue chunk: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeadLetterChunk pins a failed chunk above its retry ceiling.
func (s *Store) DeadLetterChunk(ctx context.Context, chunkID id.ChunkID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE batch_chunks SET
			retry_count = max_retries + 1,
			updated_at = NOW(), version = version + 1
		WHERE id = $1 AND status = 'failed' AND retry_count <= max_retries`,
		chunkID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("batch/postgres: dead-letter chunk: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ForceFailChunk terminalizes a chunk regardless of non-terminal state.
func (s *Store) ForceFailChunk(ctx context.Context, chunkID id.ChunkID, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE batch_chunks SET
			status = 'failed', last_error = $2,
			retry_count = GREATEST(retry_count, max_retries + 1),
			updated_at = NOW(), version = version + 1
		WHERE id = $1 AND status <> 'completed'`,
		chunkID.String(), errMsg,
	)
	if err != nil {
		return fmt.Errorf("batch/postgres: force-fail chunk: %w", err)
	}
	return nil
}

// ResetStalled resets processing chunks whose StartedAt is older than
// the threshold back to pending. The status match in the WHERE clause
// makes the reset conditional: a completion that landed first changed
// the status and wins.
func (s *Store) ResetStalled(ctx context.Context, threshold time.Duration) ([]*chunk.Chunk, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	rows, err := s.pool.Query(ctx, `
		UPDATE batch_chunks SET
			status = 'pending', started_at = NULL, run_at = NULL,
			updated_at = NOW(), version = version + 1
		WHERE status = 'processing'
		  AND started_at IS NOT NULL
		  AND started_at < $1
		RETURNING `+chunkColumns,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("batch/postgres: reset stalled chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// ListStalled returns processing chunks older than the threshold
// without modifying them.
func (s *Store) ListStalled(ctx context.Context, threshold time.Duration) ([]*chunk.Chunk, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	rows, err := s.pool.Query(ctx, `
		SELECT `+chunkColumns+`
		FROM batch_chunks
		WHERE status = 'processing'
		  AND started_at IS NOT NULL
		  AND started_at < $1
		ORDER BY started_at ASC`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("batch/postgres: list stalled chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// ResetChunkIfStalled resets one processing chunk to pending,
// conditional on its version being unchanged since it was read.
func (s *Store) ResetChunkIfStalled(ctx context.Context, chunkID id.ChunkID, version int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE batch_chunks SET
			status = 'pending', started_at = NULL, run_at = NULL,
			updated_at = NOW(), version = version + 1
		WHERE id = $1 AND status = 'processing' AND version = $2`,
		chunkID.String(), version,
	)
	if err != nil {
		return false, fmt.Errorf("batch/postgres: reset stalled chunk: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListChunksByJob returns all chunks of a job in ordinal order.
func (s *Store) ListChunksByJob(ctx context.Context, jobID id.JobID) ([]*chunk.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+chunkColumns+` FROM batch_chunks WHERE job_id = $1 ORDER BY ordinal ASC`,
		jobID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("batch/postgres: list chunks by job: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// ListFailedRetryable returns failed chunks within their retry budget,
// oldest first.
func (s *Store) ListFailedRetryable(ctx context.Context, limit int) ([]*chunk.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+chunkColumns+`
		FROM batch_chunks
		WHERE status = 'failed' AND retry_count <= max_retries
		ORDER BY updated_at ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("batch/postgres: list failed retryable chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// CountChunks returns the per-status breakdown for a job (all jobs when
// jobID is Nil).
func (s *Store) CountChunks(ctx context.Context, jobID id.JobID) (chunk.StatusCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'failed' AND retry_count > max_retries)
		FROM batch_chunks`
	args := []interface{}{}
	if !jobID.IsNil() {
		query += ` WHERE job_id = $1`
		args = append(args, jobID.String())
	}

	var counts chunk.StatusCounts
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&counts.Pending, &counts.Processing, &counts.Completed,
		&counts.Failed, &counts.DeadLettered,
	)
	if err != nil {
		return chunk.StatusCounts{}, fmt.Errorf("batch/postgres: count chunks: %w", err)
	}
	return counts, nil
}

// CountCompletedSince returns completion count and total processing
// duration for chunks completed after the given time.
func (s *Store) CountCompletedSince(ctx context.Context, since time.Time) (int64, time.Duration, error) {
	var (
		n       int64
		seconds float64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(EXTRACT(EPOCH FROM SUM(completed_at - started_at)), 0)
		FROM batch_chunks
		WHERE status = 'completed'
		  AND completed_at >= $1
		  AND started_at IS NOT NULL`,
		since,
	).Scan(&n, &seconds)
	if err != nil {
		return 0, 0, fmt.Errorf("batch/postgres: count completed chunks: %w", err)
	}
	return n, time.Duration(seconds * float64(time.Second)), nil
}

// scanChunk scans a single chunk row.
func scanChunk(row pgx.Row) (*chunk.Chunk, error) {
	var (
		c         chunk.Chunk
		idStr     string
		jobIDStr  string
		statusStr string
		histJSON  []byte
		runAt     *time.Time
	)
	err := row.Scan(
		&idStr, &jobIDStr, &c.Ordinal, &c.Start, &c.End,
		&statusStr, &c.RetryCount, &c.MaxRetries, &c.LastError, &histJSON,
		&runAt, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt, &c.Version,
	)
	if err != nil {
		return nil, err
	}

	c.Status = chunk.Status(statusStr)
	c.RunAt = timeOrZero(runAt)

	if len(histJSON) > 0 {
		if uerr := json.Unmarshal(histJSON, &c.RetryHistory); uerr != nil {
			return nil, fmt.Errorf("batch/postgres: unmarshal retry history: %w", uerr)
		}
	}

	parsedID, parseErr := id.ParseChunkID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("batch/postgres: parse chunk id %q: %w", idStr, parseErr)
	}
	c.ID = parsedID

	parsedJobID, parseErr := id.ParseJobID(jobIDStr)
	if parseErr != nil {
		return nil, fmt.Errorf("batch/postgres: parse job id %q: %w", jobIDStr, parseErr)
	}
	c.JobID = parsedJobID

	return &c, nil
}

// collectChunks collects all chunks from query rows.
func collectChunks(rows pgx.Rows) ([]*chunk.Chunk, error) {
	var chunks []*chunk.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("batch/postgres: scan chunk row: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch/postgres: iterate chunk rows: %w", err)
	}
	return chunks, nil
}
