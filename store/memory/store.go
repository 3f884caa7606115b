// Package memory provides a fully in-memory Store implementation.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/alert"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/job"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/task"
)

// Ensure Store implements each subsystem interface at compile time.
var (
	_ job.Store   = (*Store)(nil)
	_ chunk.Store = (*Store)(nil)
	_ task.Store  = (*Store)(nil)
	_ alert.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	jobs   map[string]*job.Job
	chunks map[string]*chunk.Chunk
	tasks  map[string]*task.Task
	alerts map[string]*alert.Alert
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:   make(map[string]*job.Job),
		chunks: make(map[string]*chunk.Chunk),
		tasks:  make(map[string]*task.Task),
		alerts: make(map[string]*alert.Alert),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job in pending state.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return batch.ErrJobAlreadyExists
	}
	cp := copyJob(j)
	m.jobs[key] = cp
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, batch.ErrJobNotFound
	}
	return copyJob(j), nil
}

// UpdateJob persists changes to an existing job, guarded by version.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.jobs[j.ID.String()]
	if !ok {
		return batch.ErrJobNotFound
	}
	if stored.Version != j.Version {
		return batch.ErrInvalidTransition
	}
	cp := copyJob(j)
	cp.Touch()
	m.jobs[j.ID.String()] = cp
	// Reflect the new version back to the caller.
	j.Entity = cp.Entity
	return nil
}

// ListJobsByStatus returns jobs matching the given status.
func (m *Store) ListJobsByStatus(_ context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*job.Job
	for _, j := range m.jobs {
		if j.Status != status {
			continue
		}
		if opts.Kind != "" && j.Kind != opts.Kind {
			continue
		}
		out = append(out, copyJob(j))
	}

	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// SetJobStatus transitions a job between statuses as a single
// conditional update.
func (m *Store) SetJobStatus(_ context.Context, jobID id.JobID, from, to job.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return false, batch.ErrJobNotFound
	}
	if j.Status != from {
		return false, nil
	}
	j.Status = to
	if to.Terminal() {
		now := time.Now().UTC()
		j.CompletedAt = &now
	}
	j.Touch()
	return true, nil
}

// ──────────────────────────────────────────────────
// Chunk Store
// ──────────────────────────────────────────────────

// CreateChunks persists a job's chunks in bulk.
func (m *Store) CreateChunks(_ context.Context, chunks []*chunk.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range chunks {
		m.chunks[c.ID.String()] = copyChunk(c)
	}
	return nil
}

// ClaimPending atomically claims up to limit pending chunks of the job
// at or beyond the cursor, eligible now.
func (m *Store) ClaimPending(_ context.Context, jobID id.JobID, cursor, limit int) ([]*chunk.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()

	candidates := make([]*chunk.Chunk, 0, limit)
	for _, c := range m.chunks {
		if c.JobID.String() != jobID.String() {
			continue
		}
		if c.Status != chunk.StatusPending {
			continue
		}
		if c.Ordinal < cursor {
			continue
		}
		if !c.RunAt.IsZero() && c.RunAt.After(now) {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].Ordinal < candidates[k].Ordinal
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*chunk.Chunk, len(candidates))
	for i, c := range candidates {
		c.Status = chunk.StatusProcessing
		n := now
		c.StartedAt = &n
		c.Touch()
		result[i] = copyChunk(c)
	}
	return result, nil
}

// GetChunk retrieves a chunk by ID.
func (m *Store) GetChunk(_ context.Context, chunkID id.ChunkID) (*chunk.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.chunks[chunkID.String()]
	if !ok {
		return nil, batch.ErrChunkNotFound
	}
	return copyChunk(c), nil
}

// CompleteChunk transitions processing → completed.
func (m *Store) CompleteChunk(_ context.Context, chunkID id.ChunkID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chunks[chunkID.String()]
	if !ok {
		return false, batch.ErrChunkNotFound
	}
	if c.Status != chunk.StatusProcessing {
		return false, nil
	}
	now := time.Now().UTC()
	c.Status = chunk.StatusCompleted
	c.CompletedAt = &now
	c.Touch()
	return true, nil
}

// FailChunk transitions processing → failed and records the error.
func (m *Store) FailChunk(_ context.Context, chunkID id.ChunkID, errMsg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chunks[chunkID.String()]
	if !ok {
		return false, batch.ErrChunkNotFound
	}
	if c.Status != chunk.StatusProcessing {
		return false, nil
	}
	c.Status = chunk.StatusFailed
	c.LastError = errMsg
	c.Touch()
	return true, nil
}

// RequeueChunk transitions failed → pending with an incremented retry
// count and a history entry.
func (m *Store) RequeueChunk(_ context.Context, chunkID id.ChunkID, runAt time.Time, entry chunk.RetryEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chunks[chunkID.String()]
	if !ok {
		return false, batch.ErrChunkNotFound
	}
	if c.Status != chunk.StatusFailed {
		return false, nil
	}
	c.Status = chunk.StatusPending
	c.RetryCount++
	c.RunAt = runAt
	c.StartedAt = nil
	c.RetryHistory = append(c.RetryHistory, entry)
	c.Touch()
	return true, nil
}

// DeadLetterChunk pins a failed chunk above its retry ceiling.
func (m *Store) DeadLetterChunk(_ context.Context, chunkID id.ChunkID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chunks[chunkID.String()]
	if !ok {
		return false, batch.ErrChunkNotFound
	}
	if c.Status != chunk.StatusFailed {
		return false, nil
	}
	if c.RetryCount > c.MaxRetries {
		// Already dead-lettered.
		return false, nil
	}
	c.RetryCount = c.MaxRetries + 1
	c.Touch()
	return true, nil
}

// ForceFailChunk terminalizes a chunk regardless of non-terminal state.
func (m *Store) ForceFailChunk(_ context.Context, chunkID id.ChunkID, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chunks[chunkID.String()]
	if !ok {
		return batch.ErrChunkNotFound
	}
	if c.Status == chunk.StatusCompleted {
		return nil
	}
	c.Status = chunk.StatusFailed
	c.LastError = errMsg
	if c.RetryCount <= c.MaxRetries {
		c.RetryCount = c.MaxRetries + 1
	}
	c.Touch()
	return nil
}

// ResetStalled resets processing chunks whose StartedAt is older than
// the threshold back to pending. Under the store lock the version
// guard is implicit: a completion that already landed changed the
// status, so the chunk no longer matches.
func (m *Store) ResetStalled(_ context.Context, threshold time.Duration) ([]*chunk.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var reset []*chunk.Chunk
	for _, c := range m.chunks {
		if c.Status != chunk.StatusProcessing {
			continue
		}
		if c.StartedAt == nil || c.StartedAt.After(cutoff) {
			continue
		}
		c.Status = chunk.StatusPending
		c.StartedAt = nil
		c.RunAt = time.Time{}
		c.Touch()
		reset = append(reset, copyChunk(c))
	}
	return reset, nil
}

// ListStalled returns processing chunks older than the threshold
// without modifying them.
func (m *Store) ListStalled(_ context.Context, threshold time.Duration) ([]*chunk.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var out []*chunk.Chunk
	for _, c := range m.chunks {
		if c.Status != chunk.StatusProcessing {
			continue
		}
		if c.StartedAt == nil || c.StartedAt.After(cutoff) {
			continue
		}
		out = append(out, copyChunk(c))
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].Ordinal < out[k].Ordinal
	})
	return out, nil
}

// ResetChunkIfStalled resets one processing chunk to pending,
// conditional on its version being unchanged.
func (m *Store) ResetChunkIfStalled(_ context.Context, chunkID id.ChunkID, version int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chunks[chunkID.String()]
	if !ok {
		return false, batch.ErrChunkNotFound
	}
	if c.Status != chunk.StatusProcessing || c.Version != version {
		return false, nil
	}
	c.Status = chunk.StatusPending
	c.StartedAt = nil
	c.RunAt = time.Time{}
	c.Touch()
	return true, nil
}

// ListChunksByJob returns all chunks of a job in ordinal order.
func (m *Store) ListChunksByJob(_ context.Context, jobID id.JobID) ([]*chunk.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*chunk.Chunk
	for _, c := range m.chunks {
		if c.JobID.String() == jobID.String() {
			out = append(out, copyChunk(c))
		}
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].Ordinal < out[k].Ordinal
	})
	return out, nil
}

// ListFailedRetryable returns failed chunks within their retry budget.
func (m *Store) ListFailedRetryable(_ context.Context, limit int) ([]*chunk.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*chunk.Chunk
	for _, c := range m.chunks {
		if c.Status != chunk.StatusFailed {
			continue
		}
		if c.RetryCount > c.MaxRetries {
			continue
		}
		out = append(out, copyChunk(c))
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].UpdatedAt.Before(out[k].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountChunks returns the per-status breakdown for a job (or all jobs
// when jobID is Nil).
func (m *Store) CountChunks(_ context.Context, jobID id.JobID) (chunk.StatusCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var counts chunk.StatusCounts
	for _, c := range m.chunks {
		if !jobID.IsNil() && c.JobID.String() != jobID.String() {
			continue
		}
		switch c.Status {
		case chunk.StatusPending:
			counts.Pending++
		case chunk.StatusProcessing:
			counts.Processing++
		case chunk.StatusCompleted:
			counts.Completed++
		case chunk.StatusFailed:
			counts.Failed++
			if c.RetryCount > c.MaxRetries {
				counts.DeadLettered++
			}
		}
	}
	return counts, nil
}

// CountCompletedSince returns completion count and total processing
// duration for chunks completed after the given time.
func (m *Store) CountCompletedSince(_ context.Context, since time.Time) (int64, time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	var total time.Duration
	for _, c := range m.chunks {
		if c.Status != chunk.StatusCompleted || c.CompletedAt == nil {
			continue
		}
		if c.CompletedAt.Before(since) {
			continue
		}
		n++
		if c.StartedAt != nil {
			total += c.CompletedAt.Sub(*c.StartedAt)
		}
	}
	return n, total, nil
}

// ──────────────────────────────────────────────────
// Task Store
// ──────────────────────────────────────────────────

// CreateTask persists a new task in pending state.
func (m *Store) CreateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, exists := m.tasks[key]; exists {
		return batch.ErrTaskAlreadyExists
	}
	cp := copyTask(t)
	cp.Log = append(cp.Log, task.LogEntry{
		Type:      task.LogReceived,
		Timestamp: time.Now().UTC(),
	})
	m.tasks[key] = cp
	t.Log = append([]task.LogEntry(nil), cp.Log...)
	return nil
}

// GetTask retrieves a task by ID.
func (m *Store) GetTask(_ context.Context, taskID id.TaskID) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return nil, batch.ErrTaskNotFound
	}
	return copyTask(t), nil
}

// ClaimPendingTasks atomically claims up to limit eligible pending
// tasks, highest priority first.
func (m *Store) ClaimPendingTasks(_ context.Context, limit int) ([]*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var candidates []*task.Task
	for _, t := range m.tasks {
		if t.Status != task.StatusPending {
			continue
		}
		if !t.RunAt.IsZero() && t.RunAt.After(now) {
			continue
		}
		candidates = append(candidates, t)
	}

	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*task.Task, len(candidates))
	for i, t := range candidates {
		t.Status = task.StatusProcessing
		n := now
		t.StartedAt = &n
		t.Log = append(t.Log, task.LogEntry{Type: task.LogStarted, Timestamp: now})
		t.Touch()
		result[i] = copyTask(t)
	}
	return result, nil
}

// CompleteTask transitions processing → completed.
func (m *Store) CompleteTask(_ context.Context, taskID id.TaskID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return false, batch.ErrTaskNotFound
	}
	if t.Status != task.StatusProcessing {
		return false, nil
	}
	now := time.Now().UTC()
	t.Status = task.StatusCompleted
	t.CompletedAt = &now
	t.Log = append(t.Log, task.LogEntry{Type: task.LogCompleted, Timestamp: now})
	t.Touch()
	return true, nil
}

// FailTask transitions processing → failed and records the error.
func (m *Store) FailTask(_ context.Context, taskID id.TaskID, errMsg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return false, batch.ErrTaskNotFound
	}
	if t.Status != task.StatusProcessing {
		return false, nil
	}
	t.Status = task.StatusFailed
	t.LastError = errMsg
	t.Log = append(t.Log, task.LogEntry{
		Type:      task.LogFailed,
		Timestamp: time.Now().UTC(),
		Message:   errMsg,
	})
	t.Touch()
	return true, nil
}

// IgnoreTask marks a task ignored (duplicate delivery).
func (m *Store) IgnoreTask(_ context.Context, taskID id.TaskID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return batch.ErrTaskNotFound
	}
	if t.Status != task.StatusPending && t.Status != task.StatusProcessing {
		return batch.ErrInvalidTransition
	}
	t.Status = task.StatusIgnored
	t.Log = append(t.Log, task.LogEntry{
		Type:      task.LogIgnored,
		Timestamp: time.Now().UTC(),
		Message:   reason,
	})
	t.Touch()
	return nil
}

// RequeueTask transitions failed → pending with an incremented retry
// count and a "retried" log entry.
func (m *Store) RequeueTask(_ context.Context, taskID id.TaskID, runAt time.Time, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return false, batch.ErrTaskNotFound
	}
	if t.Status != task.StatusFailed {
		return false, nil
	}
	t.Status = task.StatusPending
	t.RetryCount++
	t.RunAt = runAt
	t.StartedAt = nil
	t.Log = append(t.Log, task.LogEntry{
		Type:      task.LogRetried,
		Timestamp: time.Now().UTC(),
		Message:   reason,
	})
	t.Touch()
	return true, nil
}

// DeadLetterTask pins a failed task above its retry ceiling.
func (m *Store) DeadLetterTask(_ context.Context, taskID id.TaskID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return false, batch.ErrTaskNotFound
	}
	if t.Status != task.StatusFailed {
		return false, nil
	}
	if t.RetryCount > t.MaxRetries {
		return false, nil
	}
	t.RetryCount = t.MaxRetries + 1
	t.Touch()
	return true, nil
}

// ListCompletedSince returns tasks completed at or after the given
// time, newest first.
func (m *Store) ListCompletedSince(_ context.Context, since time.Time) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*task.Task
	for _, t := range m.tasks {
		if t.Status != task.StatusCompleted || t.CompletedAt == nil {
			continue
		}
		if t.CompletedAt.Before(since) {
			continue
		}
		out = append(out, copyTask(t))
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CompletedAt.After(*out[k].CompletedAt)
	})
	return out, nil
}

// ListFailedRetryableTasks returns failed tasks within their retry budget.
func (m *Store) ListFailedRetryableTasks(_ context.Context, limit int) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*task.Task
	for _, t := range m.tasks {
		if t.Status != task.StatusFailed {
			continue
		}
		if t.RetryCount > t.MaxRetries {
			continue
		}
		out = append(out, copyTask(t))
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].UpdatedAt.Before(out[k].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ResetStalledTasks resets processing tasks older than the threshold
// back to pending.
func (m *Store) ResetStalledTasks(_ context.Context, threshold time.Duration) ([]*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var reset []*task.Task
	for _, t := range m.tasks {
		if t.Status != task.StatusProcessing {
			continue
		}
		if t.StartedAt == nil || t.StartedAt.After(cutoff) {
			continue
		}
		t.Status = task.StatusPending
		t.StartedAt = nil
		t.RunAt = time.Time{}
		t.Touch()
		reset = append(reset, copyTask(t))
	}
	return reset, nil
}

// CountTasksByStatus returns the number of tasks per status.
func (m *Store) CountTasksByStatus(_ context.Context) (map[task.Status]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[task.Status]int64)
	for _, t := range m.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

// ──────────────────────────────────────────────────
// Alert Store
// ──────────────────────────────────────────────────

// CreateAlert persists a new alert.
func (m *Store) CreateAlert(_ context.Context, a *alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.alerts[a.ID.String()] = &cp
	return nil
}

// GetAlert retrieves an alert by ID.
func (m *Store) GetAlert(_ context.Context, alertID id.AlertID) (*alert.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.alerts[alertID.String()]
	if !ok {
		return nil, batch.ErrAlertNotFound
	}
	cp := *a
	return &cp, nil
}

// ListAlertsSince returns alerts created after the given time, newest
// first.
func (m *Store) ListAlertsSince(_ context.Context, since time.Time) ([]*alert.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*alert.Alert
	for _, a := range m.alerts {
		if a.CreatedAt.Before(since) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out, nil
}

// ──────────────────────────────────────────────────
// Copy helpers — callers must never share memory with the store.
// ──────────────────────────────────────────────────

func copyJob(j *job.Job) *job.Job {
	cp := *j
	cp.Errors = append([]job.UnitError(nil), j.Errors...)
	return &cp
}

func copyChunk(c *chunk.Chunk) *chunk.Chunk {
	cp := *c
	cp.RetryHistory = append([]chunk.RetryEntry(nil), c.RetryHistory...)
	return &cp
}

func copyTask(t *task.Task) *task.Task {
	cp := *t
	cp.Log = append([]task.LogEntry(nil), t.Log...)
	return &cp
}
