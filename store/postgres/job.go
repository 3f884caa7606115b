package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/job"
)

const jobColumns = `
	id, kind, owner, total_items, chunk_size, total_chunks, cursor,
	status, completed_chunks, failed_chunks, errors, completed_at,
	created_at, updated_at, version`

// CreateJob persists a new job in pending state.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	errJSON, err := json.Marshal(j.Errors)
	if err != nil {
		return fmt.Errorf("batch/postgres: marshal job errors: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO batch_jobs (
			id, kind, owner, total_items, chunk_size, total_chunks, cursor,
			status, completed_chunks, failed_chunks, errors, completed_at,
			created_at, updated_at, version
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15
		)`,
		j.ID.String(), j.Kind, j.Owner, j.TotalItems, j.ChunkSize, j.TotalChunks, j.Cursor,
		string(j.Status), j.CompletedChunks, j.FailedChunks, errJSON, j.CompletedAt,
		j.CreatedAt, j.UpdatedAt, j.Version,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return batch.ErrJobAlreadyExists
		}
		return fmt.Errorf("batch/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM batch_jobs WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, batch.ErrJobNotFound
		}
		return nil, fmt.Errorf("batch/postgres: get job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job, conditional on the
// job's version being unchanged since it was read.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	errJSON, err := json.Marshal(j.Errors)
	if err != nil {
		return fmt.Errorf("batch/postgres: marshal job errors: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE batch_jobs SET
			cursor = $3, status = $4, completed_chunks = $5,
			failed_chunks = $6, errors = $7, completed_at = $8,
			updated_at = NOW(), version = version + 1
		WHERE id = $1 AND version = $2`,
		j.ID.String(), j.Version,
		j.Cursor, string(j.Status), j.CompletedChunks,
		j.FailedChunks, errJSON, j.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("batch/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Missing row or lost version race; tell them apart.
		var exists bool
		if qerr := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM batch_jobs WHERE id = $1)`,
			j.ID.String(),
		).Scan(&exists); qerr != nil {
			return fmt.Errorf("batch/postgres: update job: %w", qerr)
		}
		if !exists {
			return batch.ErrJobNotFound
		}
		return batch.ErrInvalidTransition
	}
	j.Version++
	return nil
}

// ListJobsByStatus returns jobs matching the given status.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM batch_jobs WHERE status = $1`
	args := []interface{}{string(status)}
	argIdx := 2

	if opts.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, opts.Kind)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("batch/postgres: list jobs by status: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// SetJobStatus transitions a job from an expected status to a new one
// as a single conditional update.
func (s *Store) SetJobStatus(ctx context.Context, jobID id.JobID, from, to job.Status) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE batch_jobs SET
			status = $3,
			completed_at = CASE WHEN $4 THEN NOW() ELSE completed_at END,
			updated_at = NOW(), version = version + 1
		WHERE id = $1 AND status = $2`,
		jobID.String(), string(from), string(to), to.Terminal(),
	)
	if err != nil {
		return false, fmt.Errorf("batch/postgres: set job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if qerr := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM batch_jobs WHERE id = $1)`,
			jobID.String(),
		).Scan(&exists); qerr != nil {
			return false, fmt.Errorf("batch/postgres: set job status: %w", qerr)
		}
		if !exists {
			return false, batch.ErrJobNotFound
		}
		return false, nil
	}
	return true, nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		statusStr string
		errJSON   []byte
	)
	err := row.Scan(
		&idStr, &j.Kind, &j.Owner, &j.TotalItems, &j.ChunkSize, &j.TotalChunks, &j.Cursor,
		&statusStr, &j.CompletedChunks, &j.FailedChunks, &errJSON, &j.CompletedAt,
		&j.CreatedAt, &j.UpdatedAt, &j.Version,
	)
	if err != nil {
		return nil, err
	}

	j.Status = job.Status(statusStr)

	if len(errJSON) > 0 {
		if uerr := json.Unmarshal(errJSON, &j.Errors); uerr != nil {
			return nil, fmt.Errorf("batch/postgres: unmarshal job errors: %w", uerr)
		}
	}

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("batch/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("batch/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
