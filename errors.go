package batch

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("batch: no store configured")
	ErrStoreClosed     = errors.New("batch: store closed")
	ErrMigrationFailed = errors.New("batch: migration failed")

	// Input errors.
	ErrInvalidInput = errors.New("batch: invalid input")

	// Not found errors.
	ErrJobNotFound   = errors.New("batch: job not found")
	ErrChunkNotFound = errors.New("batch: chunk not found")
	ErrTaskNotFound  = errors.New("batch: task not found")
	ErrAlertNotFound = errors.New("batch: alert not found")

	// Conflict errors.
	ErrJobAlreadyExists  = errors.New("batch: job already exists")
	ErrTaskAlreadyExists = errors.New("batch: task already exists")

	// State errors.
	ErrInvalidTransition  = errors.New("batch: invalid state transition")
	ErrMaxRetriesExceeded = errors.New("batch: max retries exceeded")
	ErrJobCancelling      = errors.New("batch: job is cancelling")

	// Registry errors.
	ErrNoProcessor = errors.New("batch: no processor registered for job kind")
)
