package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/job"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/store/memory"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/task"
)

func newJob(t *testing.T, s *memory.Store, totalChunks int) *job.Job {
	t.Helper()

	j := &job.Job{
		Entity:      batch.NewEntity(),
		ID:          id.NewJobID(),
		Kind:        "product_import",
		TotalItems:  totalChunks * 50,
		ChunkSize:   50,
		TotalChunks: totalChunks,
		Status:      job.StatusPending,
	}
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	chunks := make([]*chunk.Chunk, totalChunks)
	for i := range chunks {
		chunks[i] = &chunk.Chunk{
			Entity:     batch.NewEntity(),
			ID:         id.NewChunkID(),
			JobID:      j.ID,
			Ordinal:    i,
			Start:      i * 50,
			End:        (i + 1) * 50,
			Status:     chunk.StatusPending,
			MaxRetries: 3,
		}
	}
	if err := s.CreateChunks(context.Background(), chunks); err != nil {
		t.Fatalf("CreateChunks: %v", err)
	}
	return j
}

func TestJobLifecycle(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()
	j := newJob(t, s, 2)

	if err := s.CreateJob(ctx, j); !errors.Is(err, batch.ErrJobAlreadyExists) {
		t.Fatalf("duplicate CreateJob err = %v, want ErrJobAlreadyExists", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StatusPending {
		t.Fatalf("status = %q, want pending", got.Status)
	}

	ok, err := s.SetJobStatus(ctx, j.ID, job.StatusPending, job.StatusRunning)
	if err != nil || !ok {
		t.Fatalf("SetJobStatus pending→running = (%v, %v), want (true, nil)", ok, err)
	}

	// Conditional transition from a stale expectation must lose.
	ok, err = s.SetJobStatus(ctx, j.ID, job.StatusPending, job.StatusRunning)
	if err != nil {
		t.Fatalf("SetJobStatus: %v", err)
	}
	if ok {
		t.Fatal("stale transition should return false")
	}

	ok, err = s.SetJobStatus(ctx, j.ID, job.StatusRunning, job.StatusCompleted)
	if err != nil || !ok {
		t.Fatalf("SetJobStatus running→completed = (%v, %v)", ok, err)
	}
	got, _ = s.GetJob(ctx, j.ID)
	if got.CompletedAt == nil {
		t.Fatal("terminal transition should stamp CompletedAt")
	}
}

func TestUpdateJob_VersionGuard(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()
	j := newJob(t, s, 1)

	fresh, _ := s.GetJob(ctx, j.ID)
	stale, _ := s.GetJob(ctx, j.ID)

	fresh.CompletedChunks = 1
	if err := s.UpdateJob(ctx, fresh); err != nil {
		t.Fatalf("UpdateJob fresh: %v", err)
	}

	stale.CompletedChunks = 99
	if err := s.UpdateJob(ctx, stale); !errors.Is(err, batch.ErrInvalidTransition) {
		t.Fatalf("UpdateJob stale err = %v, want ErrInvalidTransition", err)
	}
}

func TestClaimPending_CursorAndOrder(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()
	j := newJob(t, s, 5)

	claimed, err := s.ClaimPending(ctx, j.ID, 2, 2)
	if err != nil {
		t.Fatalf("ClaimPending: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d chunks, want 2", len(claimed))
	}
	if claimed[0].Ordinal != 2 || claimed[1].Ordinal != 3 {
		t.Fatalf("ordinals = %d, %d, want 2, 3", claimed[0].Ordinal, claimed[1].Ordinal)
	}
	for _, c := range claimed {
		if c.Status != chunk.StatusProcessing {
			t.Fatalf("claimed chunk status = %q, want processing", c.Status)
		}
		if c.StartedAt == nil {
			t.Fatal("claimed chunk missing StartedAt")
		}
	}
}

func TestClaimPending_RespectsRunAt(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()
	j := newJob(t, s, 1)

	claimed, _ := s.ClaimPending(ctx, j.ID, 0, 10)
	ok, _ := s.FailChunk(ctx, claimed[0].ID, "timeout")
	if !ok {
		t.Fatal("FailChunk lost")
	}

	// Requeue far in the future; the chunk must not be claimable now.
	ok, err := s.RequeueChunk(ctx, claimed[0].ID, time.Now().Add(time.Hour), chunk.RetryEntry{Attempt: 1, Reason: "timeout"})
	if err != nil || !ok {
		t.Fatalf("RequeueChunk = (%v, %v)", ok, err)
	}

	claimed, err = s.ClaimPending(ctx, j.ID, 0, 10)
	if err != nil {
		t.Fatalf("ClaimPending: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("claimed %d chunks before RunAt, want 0", len(claimed))
	}
}

func TestClaimPending_ConcurrentClaimsDisjoint(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()
	j := newJob(t, s, 40)

	const claimers = 8
	var wg sync.WaitGroup
	results := make([][]*chunk.Chunk, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			got, err := s.ClaimPending(ctx, j.ID, 0, 10)
			if err != nil {
				t.Errorf("ClaimPending: %v", err)
				return
			}
			results[slot] = got
		}(i)
	}
	wg.Wait()

	seen := make(map[string]int)
	total := 0
	for slot, got := range results {
		for _, c := range got {
			seen[c.ID.String()]++
			if seen[c.ID.String()] > 1 {
				t.Fatalf("chunk %s claimed by more than one caller (slot %d)", c.ID, slot)
			}
			total++
		}
	}
	if total != 40 {
		t.Fatalf("total claimed = %d, want 40", total)
	}
}

func TestChunkTransitions_Conditional(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()
	j := newJob(t, s, 1)

	claimed, _ := s.ClaimPending(ctx, j.ID, 0, 1)
	chID := claimed[0].ID

	ok, err := s.CompleteChunk(ctx, chID)
	if err != nil || !ok {
		t.Fatalf("CompleteChunk = (%v, %v)", ok, err)
	}

	// A duplicate worker reporting completion must lose the race.
	ok, err = s.CompleteChunk(ctx, chID)
	if err != nil {
		t.Fatalf("CompleteChunk: %v", err)
	}
	if ok {
		t.Fatal("second CompleteChunk should return false")
	}

	// And failure against a completed chunk must lose too.
	ok, _ = s.FailChunk(ctx, chID, "late failure")
	if ok {
		t.Fatal("FailChunk against completed chunk should return false")
	}

	got, _ := s.GetChunk(ctx, chID)
	if got.Status != chunk.StatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if got.LastError != "" {
		t.Fatalf("LastError = %q, want empty", got.LastError)
	}
}

func TestDeadLetterChunk(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()
	j := newJob(t, s, 1)

	claimed, _ := s.ClaimPending(ctx, j.ID, 0, 1)
	chID := claimed[0].ID
	s.FailChunk(ctx, chID, "schema mismatch")

	ok, err := s.DeadLetterChunk(ctx, chID)
	if err != nil || !ok {
		t.Fatalf("DeadLetterChunk = (%v, %v)", ok, err)
	}

	got, _ := s.GetChunk(ctx, chID)
	if !got.DeadLettered() {
		t.Fatalf("chunk not dead-lettered: status=%q retry=%d max=%d", got.Status, got.RetryCount, got.MaxRetries)
	}

	// Dead-lettered chunks must not show up as retryable.
	retryable, _ := s.ListFailedRetryable(ctx, 10)
	if len(retryable) != 0 {
		t.Fatalf("retryable = %d, want 0", len(retryable))
	}

	counts, _ := s.CountChunks(ctx, j.ID)
	if counts.Failed != 1 || counts.DeadLettered != 1 {
		t.Fatalf("counts = %+v, want Failed=1 DeadLettered=1", counts)
	}
	if !counts.Terminal() {
		t.Fatal("counts should be terminal")
	}
}

func TestResetStalled(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()
	j := newJob(t, s, 2)

	claimed, _ := s.ClaimPending(ctx, j.ID, 0, 2)

	// First chunk completes; it must survive the sweep untouched.
	s.CompleteChunk(ctx, claimed[0].ID)

	// Threshold of zero makes the still-processing chunk instantly stale.
	time.Sleep(5 * time.Millisecond)
	reset, err := s.ResetStalled(ctx, 0)
	if err != nil {
		t.Fatalf("ResetStalled: %v", err)
	}
	if len(reset) != 1 {
		t.Fatalf("reset %d chunks, want 1", len(reset))
	}
	if reset[0].ID.String() != claimed[1].ID.String() {
		t.Fatal("wrong chunk reset")
	}
	if reset[0].Status != chunk.StatusPending || reset[0].StartedAt != nil {
		t.Fatalf("reset chunk = %+v, want pending with nil StartedAt", reset[0])
	}

	done, _ := s.GetChunk(ctx, claimed[0].ID)
	if done.Status != chunk.StatusCompleted {
		t.Fatal("completed chunk must not be reset by the stall sweep")
	}
}

func TestTaskLifecycle(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()

	tk := &task.Task{
		Entity:     batch.NewEntity(),
		ID:         id.NewTaskID(),
		Kind:       "supplier_webhook",
		SourceID:   "supplier-9",
		ContentID:  "sku-123",
		Status:     task.StatusPending,
		MaxRetries: 3,
	}
	if err := s.CreateTask(ctx, tk); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if len(tk.Log) != 1 || tk.Log[0].Type != task.LogReceived {
		t.Fatalf("log after create = %+v, want one received entry", tk.Log)
	}

	claimed, err := s.ClaimPendingTasks(ctx, 10)
	if err != nil {
		t.Fatalf("ClaimPendingTasks: %v", err)
	}
	if len(claimed) != 1 || claimed[0].Status != task.StatusProcessing {
		t.Fatalf("claimed = %+v", claimed)
	}

	ok, err := s.FailTask(ctx, tk.ID, "connection reset")
	if err != nil || !ok {
		t.Fatalf("FailTask = (%v, %v)", ok, err)
	}

	ok, err = s.RequeueTask(ctx, tk.ID, time.Now().Add(-time.Second), "connection reset")
	if err != nil || !ok {
		t.Fatalf("RequeueTask = (%v, %v)", ok, err)
	}

	claimed, _ = s.ClaimPendingTasks(ctx, 10)
	if len(claimed) != 1 {
		t.Fatalf("re-claim after requeue got %d tasks, want 1", len(claimed))
	}
	if claimed[0].RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", claimed[0].RetryCount)
	}

	ok, err = s.CompleteTask(ctx, tk.ID)
	if err != nil || !ok {
		t.Fatalf("CompleteTask = (%v, %v)", ok, err)
	}

	got, _ := s.GetTask(ctx, tk.ID)
	if got.RetryAttempts() != 1 {
		t.Fatalf("RetryAttempts = %d, want 1", got.RetryAttempts())
	}
	types := make([]task.LogType, len(got.Log))
	for i, e := range got.Log {
		types[i] = e.Type
	}
	want := []task.LogType{task.LogReceived, task.LogStarted, task.LogFailed, task.LogRetried, task.LogStarted, task.LogCompleted}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Fatalf("log types = %v, want %v", types, want)
	}
}

func TestClaimPendingTasks_PriorityOrder(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()

	for _, prio := range []int{1, 5, 3} {
		tk := &task.Task{
			Entity:   batch.NewEntity(),
			ID:       id.NewTaskID(),
			Kind:     "supplier_webhook",
			Status:   task.StatusPending,
			Priority: prio,
		}
		if err := s.CreateTask(ctx, tk); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}

	claimed, _ := s.ClaimPendingTasks(ctx, 3)
	if len(claimed) != 3 {
		t.Fatalf("claimed %d, want 3", len(claimed))
	}
	if claimed[0].Priority != 5 || claimed[1].Priority != 3 || claimed[2].Priority != 1 {
		t.Fatalf("priorities = %d, %d, %d, want 5, 3, 1",
			claimed[0].Priority, claimed[1].Priority, claimed[2].Priority)
	}
}

func TestIgnoreTask(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()

	tk := &task.Task{
		Entity: batch.NewEntity(),
		ID:     id.NewTaskID(),
		Kind:   "supplier_webhook",
		Status: task.StatusPending,
	}
	s.CreateTask(ctx, tk)

	if err := s.IgnoreTask(ctx, tk.ID, "duplicate of task_x"); err != nil {
		t.Fatalf("IgnoreTask: %v", err)
	}
	got, _ := s.GetTask(ctx, tk.ID)
	if got.Status != task.StatusIgnored {
		t.Fatalf("status = %q, want ignored", got.Status)
	}

	// Ignored is terminal.
	if err := s.IgnoreTask(ctx, tk.ID, "again"); !errors.Is(err, batch.ErrInvalidTransition) {
		t.Fatalf("second IgnoreTask err = %v, want ErrInvalidTransition", err)
	}

	counts, _ := s.CountTasksByStatus(ctx)
	if counts[task.StatusIgnored] != 1 {
		t.Fatalf("ignored count = %d, want 1", counts[task.StatusIgnored])
	}
}
