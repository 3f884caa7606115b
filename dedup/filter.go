package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/task"
)

// Index answers whether a fingerprint belongs to work completed within
// the dedup window. Seen is read-only: a submitted or claimed task must
// never match its own fingerprint, only a finished twin's.
type Index interface {
	Seen(ctx context.Context, fp Fingerprint) (bool, error)
}

// Recorder is implemented by indexes that keep their own fingerprint
// state (the Redis index; the store index reads completed rows and
// needs no recording). Record is called once the task completes.
type Recorder interface {
	Record(ctx context.Context, fp Fingerprint) error
}

// CompletedLister is the slice of task.Store the StoreIndex needs.
type CompletedLister interface {
	ListCompletedSince(ctx context.Context, since time.Time) ([]*task.Task, error)
}

// StoreIndex detects duplicates by scanning tasks completed within the
// window. It needs no infrastructure beyond the task store itself; the
// store records completions, so Seen never writes.
type StoreIndex struct {
	tasks  CompletedLister
	window time.Duration
}

var _ Index = (*StoreIndex)(nil)

// NewStoreIndex creates an index over the task store with the given
// dedup window.
func NewStoreIndex(tasks CompletedLister, window time.Duration) *StoreIndex {
	return &StoreIndex{tasks: tasks, window: window}
}

// Seen reports whether a task with the same fingerprint completed
// within the window.
func (i *StoreIndex) Seen(ctx context.Context, fp Fingerprint) (bool, error) {
	completed, err := i.tasks.ListCompletedSince(ctx, time.Now().UTC().Add(-i.window))
	if err != nil {
		return false, err
	}
	for _, t := range completed {
		if t.SourceID == fp.SourceID && t.ContentID == fp.ContentID {
			return true, nil
		}
	}
	return false, nil
}

// Filter decides whether an incoming task is a duplicate delivery.
type Filter struct {
	index  Index
	logger *slog.Logger
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithLogger sets the filter's logger.
func WithLogger(logger *slog.Logger) FilterOption {
	return func(f *Filter) { f.logger = logger }
}

// NewFilter creates a Filter over the given index.
func NewFilter(index Index, opts ...FilterOption) *Filter {
	f := &Filter{index: index, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsDuplicate reports whether the task duplicates an earlier delivery.
// Tasks without a fingerprint are never duplicates. An index error is
// resolved toward processing: a transient index outage must not drop
// real work, at worst it lets a duplicate through.
func (f *Filter) IsDuplicate(ctx context.Context, t *task.Task) bool {
	fp := FingerprintOf(t)
	if fp.Zero() {
		return false
	}

	seen, err := f.index.Seen(ctx, fp)
	if err != nil {
		f.logger.Warn("dedup index check failed, admitting task",
			slog.String("task_id", t.ID.String()),
			slog.String("source_id", t.SourceID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return seen
}

// Record marks a completed task's fingerprint as seen in indexes that
// keep their own state; for the store-backed index the completed row
// already is the record. A record failure only logs: at worst a later
// duplicate slips through, which is the tolerated failure mode.
func (f *Filter) Record(ctx context.Context, t *task.Task) {
	fp := FingerprintOf(t)
	if fp.Zero() {
		return
	}
	rec, ok := f.index.(Recorder)
	if !ok {
		return
	}
	if err := rec.Record(ctx, fp); err != nil {
		f.logger.Warn("dedup index record failed",
			slog.String("task_id", t.ID.String()),
			slog.String("source_id", t.SourceID),
			slog.String("error", err.Error()),
		)
	}
}
