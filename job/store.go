package job

import (
	"context"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Kind filters by job kind. Empty means all kinds.
	Kind string
}

// Store defines the persistence contract for jobs.
type Store interface {
	// CreateJob persists a new job in pending state.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job. The update is
	// conditional on the job's version; a lost race returns
	// batch.ErrInvalidTransition and the caller should reload.
	UpdateJob(ctx context.Context, j *Job) error

	// ListJobsByStatus returns jobs matching the given status.
	ListJobsByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Job, error)

	// SetJobStatus transitions a job from an expected status to a new
	// one as a single conditional update. Returns false if the job was
	// not in the expected status (the race was lost).
	SetJobStatus(ctx context.Context, jobID id.JobID, from, to Status) (bool, error)
}
