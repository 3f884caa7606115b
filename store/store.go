package store

import (
	"context"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/alert"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/job"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/task"
)

// Store is the composite interface a backend must satisfy to drive the
// whole engine.
type Store interface {
	job.Store
	chunk.Store
	task.Store
	alert.Store

	// Migrate creates or upgrades the backing schema.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
