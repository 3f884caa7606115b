package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/backoff"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/dedup"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/engine"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/job"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/retry"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/store/memory"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/task"
)

func testConfig() batch.Config {
	cfg := batch.DefaultConfig()
	cfg.BatchPause = time.Millisecond
	return cfg
}

func newEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *memory.Store) {
	t.Helper()

	s := memory.New()
	opts = append([]engine.Option{engine.WithConfig(testConfig())}, opts...)
	e, err := engine.New(s, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, s
}

func TestEngine_DriveCompletesJob(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SliceBudget = 2

	s := memory.New()
	e, err := engine.New(s, engine.WithConfig(cfg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var mu sync.Mutex
	covered := make(map[int]bool)
	e.Register("product_import", func(_ context.Context, _ *job.Job, start, end int) error {
		mu.Lock()
		defer mu.Unlock()
		for i := start; i < end; i++ {
			if covered[i] {
				t.Errorf("item %d processed twice", i)
			}
			covered[i] = true
		}
		return nil
	})

	ctx := context.Background()
	j, err := e.CreateJob(ctx, "product_import", 250, job.WithOwner("acct_42"))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if j.TotalChunks != 5 {
		t.Fatalf("TotalChunks = %d, want 5", j.TotalChunks)
	}

	final, err := e.Drive(ctx, j.ID)
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if final.Status != job.StatusCompleted {
		t.Fatalf("status = %q, want completed", final.Status)
	}
	if final.CompletedChunks != 5 || final.FailedChunks != 0 {
		t.Fatalf("chunks = %d/%d, want 5/0", final.CompletedChunks, final.FailedChunks)
	}
	if final.Cursor != 5 {
		t.Fatalf("cursor = %d, want 5", final.Cursor)
	}
	if final.CompletedAt == nil {
		t.Fatal("CompletedAt not stamped")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(covered) != 250 {
		t.Fatalf("covered %d items, want 250", len(covered))
	}
}

func TestEngine_CreateJob_Validation(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t)
	ctx := context.Background()

	if _, err := e.CreateJob(ctx, "", 100); !errors.Is(err, batch.ErrInvalidInput) {
		t.Fatalf("empty kind err = %v, want ErrInvalidInput", err)
	}
	if _, err := e.CreateJob(ctx, "product_import", 0); !errors.Is(err, batch.ErrInvalidInput) {
		t.Fatalf("zero items err = %v, want ErrInvalidInput", err)
	}
}

func TestEngine_CreateJob_UnevenLastChunk(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()

	j, err := e.CreateJob(ctx, "product_import", 120)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if j.TotalChunks != 3 {
		t.Fatalf("TotalChunks = %d, want 3", j.TotalChunks)
	}

	chunks, err := s.ListChunksByJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("ListChunksByJob: %v", err)
	}
	last := chunks[len(chunks)-1]
	if last.Start != 100 || last.End != 120 {
		t.Fatalf("last chunk = [%d, %d), want [100, 120)", last.Start, last.End)
	}
}

func TestEngine_RetryThenDeadLetter(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t, engine.WithBackoff(backoff.NewConstant(0)))
	e.Register("product_import", func(_ context.Context, _ *job.Job, _, _ int) error {
		return errors.New("timeout contacting supplier feed")
	})

	ctx := context.Background()
	j, err := e.CreateJob(ctx, "product_import", 50, job.WithMaxRetries(1))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	var final *job.Job
	for i := 0; i < 6; i++ {
		if _, err := e.RunTick(ctx, ""); err != nil {
			t.Fatalf("RunTick: %v", err)
		}
		final, err = e.GetJob(ctx, j.ID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if final.Status.Terminal() {
			break
		}
	}

	if final.Status != job.StatusCompletedWithErrors {
		t.Fatalf("status = %q, want completed_with_errors", final.Status)
	}
	if len(final.Errors) != 1 || final.Errors[0].Unit != "chunk-0" {
		t.Fatalf("errors = %+v, want one entry for chunk-0", final.Errors)
	}

	chunks, _ := s.ListChunksByJob(ctx, j.ID)
	if !chunks[0].DeadLettered() {
		t.Fatalf("chunk not dead-lettered: status=%q retry=%d", chunks[0].Status, chunks[0].RetryCount)
	}
	// One original attempt plus one retry.
	if chunks[0].RetryCount != 2 {
		t.Fatalf("RetryCount = %d, want 2 (pinned above ceiling)", chunks[0].RetryCount)
	}
}

func TestEngine_CancelJob(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SliceBudget = 2

	s := memory.New()
	e, err := engine.New(s, engine.WithConfig(cfg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.Register("product_import", func(_ context.Context, _ *job.Job, _, _ int) error {
		return nil
	})

	ctx := context.Background()
	j, err := e.CreateJob(ctx, "product_import", 300)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	res, err := e.ProcessSlice(ctx, j.ID, 0)
	if err != nil {
		t.Fatalf("ProcessSlice: %v", err)
	}
	if res.Claimed != 2 || res.Done {
		t.Fatalf("first slice = %+v, want 2 claimed, not done", res)
	}

	if err := e.CancelJob(ctx, j.ID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}

	res, err = e.ProcessSlice(ctx, j.ID, res.NextCursor)
	if err != nil {
		t.Fatalf("ProcessSlice after cancel: %v", err)
	}
	if !res.Done || res.Claimed != 0 {
		t.Fatalf("cancelled slice = %+v, want done with nothing claimed", res)
	}

	final, _ := e.GetJob(ctx, j.ID)
	if final.Status != job.StatusFailed {
		t.Fatalf("status = %q, want failed", final.Status)
	}
	counts, _ := s.CountChunks(ctx, j.ID)
	if counts.Pending != 4 {
		t.Fatalf("pending = %d, want 4 untouched chunks", counts.Pending)
	}

	// A settled job cannot be cancelled again.
	if err := e.CancelJob(ctx, j.ID); !errors.Is(err, batch.ErrInvalidTransition) {
		t.Fatalf("second cancel err = %v, want ErrInvalidTransition", err)
	}
}

func TestEngine_Continuation(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SliceBudget = 2

	triggered := make(chan int, 1)
	s := memory.New()
	e, err := engine.New(s,
		engine.WithConfig(cfg),
		engine.WithContinuation(engine.ContinuationFunc(func(_ context.Context, _ id.JobID, cursor int) error {
			triggered <- cursor
			return nil
		})),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.Register("product_import", func(_ context.Context, _ *job.Job, _, _ int) error {
		return nil
	})

	ctx := context.Background()
	j, err := e.CreateJob(ctx, "product_import", 200)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	res, err := e.ProcessSlice(ctx, j.ID, 0)
	if err != nil {
		t.Fatalf("ProcessSlice: %v", err)
	}
	if res.Done {
		t.Fatalf("slice done after %d of 4 chunks", res.Claimed)
	}

	select {
	case cursor := <-triggered:
		if cursor != res.NextCursor {
			t.Fatalf("continuation cursor = %d, want %d", cursor, res.NextCursor)
		}
	case <-time.After(time.Second):
		t.Fatal("continuation never triggered")
	}
}

func TestEngine_SubmitTask_DuplicateIgnored(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	e.RegisterTask("asin_enrich", func(_ context.Context, _ *task.Task) error {
		return nil
	})

	ctx := context.Background()
	first, err := e.SubmitTask(ctx, "asin_enrich", "attachments/feed-1.json",
		engine.WithFingerprint("amazon", "B00EXAMPLE"),
	)
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	res, err := e.RunTick(ctx, "")
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if res.Succeeded != 1 {
		t.Fatalf("tick = %+v, want 1 succeeded", res)
	}

	got, _ := s.GetTask(ctx, first.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("first task status = %q, want completed", got.Status)
	}

	dup, err := e.SubmitTask(ctx, "asin_enrich", "attachments/feed-1-redelivery.json",
		engine.WithFingerprint("amazon", "B00EXAMPLE"),
	)
	if err != nil {
		t.Fatalf("SubmitTask duplicate: %v", err)
	}
	if dup.Status != task.StatusIgnored {
		t.Fatalf("duplicate status = %q, want ignored", dup.Status)
	}
}

func TestEngine_RunTick_ClaimTimeDedup(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	e.RegisterTask("asin_enrich", func(_ context.Context, _ *task.Task) error {
		return nil
	})

	ctx := context.Background()
	// Both deliveries arrive before either completes, so intake admits
	// them both; the second becomes a duplicate only at claim time.
	if _, err := e.SubmitTask(ctx, "asin_enrich", "attachments/a.json",
		engine.WithFingerprint("shopify", "sku-100")); err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	twin, err := e.SubmitTask(ctx, "asin_enrich", "attachments/b.json",
		engine.WithFingerprint("shopify", "sku-100"))
	if err != nil {
		t.Fatalf("SubmitTask twin: %v", err)
	}

	res, err := e.RunTick(ctx, "")
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if res.Succeeded != 1 || res.Skipped != 1 {
		t.Fatalf("tick = %+v, want 1 succeeded 1 skipped", res)
	}

	got, _ := s.GetTask(ctx, twin.ID)
	if got.Status != task.StatusIgnored {
		t.Fatalf("twin status = %q, want ignored", got.Status)
	}
}

func TestEngine_RunTick_TaskWithoutProcessorFails(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()

	submitted, err := e.SubmitTask(ctx, "unregistered_kind", "attachments/x.json")
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	res, err := e.RunTick(ctx, "")
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if res.Failed != 1 {
		t.Fatalf("tick = %+v, want 1 failed", res)
	}

	got, _ := s.GetTask(ctx, submitted.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
}

func TestEngine_RunTick_ResumesJobsFromCursor(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SliceBudget = 2

	s := memory.New()
	e, err := engine.New(s, engine.WithConfig(cfg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.Register("product_import", func(_ context.Context, _ *job.Job, _, _ int) error {
		return nil
	})

	ctx := context.Background()
	j, err := e.CreateJob(ctx, "product_import", 250)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// Each tick advances one slice; 5 chunks at budget 2 need 3 ticks.
	for i := 0; i < 4; i++ {
		if _, err := e.RunTick(ctx, ""); err != nil {
			t.Fatalf("RunTick %d: %v", i, err)
		}
		got, _ := e.GetJob(ctx, j.ID)
		if got.Status.Terminal() {
			break
		}
	}

	final, _ := e.GetJob(ctx, j.ID)
	if final.Status != job.StatusCompleted {
		t.Fatalf("status = %q, want completed", final.Status)
	}
	counts, _ := s.CountChunks(ctx, j.ID)
	if counts.Completed != 5 {
		t.Fatalf("completed = %d, want 5", counts.Completed)
	}
}

func TestEngine_AdvanceJob_Recomputes(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	e.Register("product_import", func(_ context.Context, _ *job.Job, _, _ int) error {
		return nil
	})

	ctx := context.Background()
	j, err := e.CreateJob(ctx, "product_import", 100)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// Complete one chunk behind the engine's back.
	claimed, _ := s.ClaimPending(ctx, j.ID, 0, 1)
	if _, err := s.CompleteChunk(ctx, claimed[0].ID); err != nil {
		t.Fatalf("CompleteChunk: %v", err)
	}

	advanced, err := e.AdvanceJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("AdvanceJob: %v", err)
	}
	if advanced.CompletedChunks != 1 {
		t.Fatalf("CompletedChunks = %d, want 1 (derived from rows)", advanced.CompletedChunks)
	}
	if advanced.Status.Terminal() {
		t.Fatalf("status = %q, want non-terminal with one chunk left", advanced.Status)
	}
}

func TestEngine_TransientFailureRetriedToCompletion(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t, engine.WithBackoff(backoff.NewConstant(0)))

	var calls atomic.Int32
	e.Register("product_import", func(_ context.Context, _ *job.Job, _, _ int) error {
		if calls.Add(1) == 1 {
			return errors.New("timeout fetching supplier feed")
		}
		return nil
	})

	ctx := context.Background()
	j, err := e.CreateJob(ctx, "product_import", 50)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	var final *job.Job
	for i := 0; i < 5; i++ {
		if _, err := e.RunTick(ctx, ""); err != nil {
			t.Fatalf("RunTick: %v", err)
		}
		final, err = e.GetJob(ctx, j.ID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if final.Status.Terminal() {
			break
		}
	}

	if final.Status != job.StatusCompleted {
		t.Fatalf("status = %q, want completed after the retry succeeds", final.Status)
	}
	if final.CompletedChunks != 1 || final.FailedChunks != 0 {
		t.Fatalf("chunks = %d/%d, want 1/0", final.CompletedChunks, final.FailedChunks)
	}

	chunks, _ := s.ListChunksByJob(ctx, j.ID)
	c := chunks[0]
	if c.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", c.RetryCount)
	}
	if len(c.RetryHistory) != 1 {
		t.Fatalf("retry history has %d entries, want 1: %+v", len(c.RetryHistory), c.RetryHistory)
	}
	if c.RetryHistory[0].Attempt != 1 || c.RetryHistory[0].Reason == "" {
		t.Fatalf("retry entry = %+v, want attempt 1 with a reason", c.RetryHistory[0])
	}
}

func TestEngine_ClassifiedTransientSurvivesPersistence(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t, engine.WithBackoff(backoff.NewConstant(0)))

	// The message carries no heuristic marker; only the persisted class
	// keeps the second retry alive.
	var calls atomic.Int32
	e.Register("product_import", func(_ context.Context, _ *job.Job, _, _ int) error {
		if calls.Add(1) <= 2 {
			return retry.Transient(errors.New("upstream degraded"))
		}
		return nil
	})

	ctx := context.Background()
	j, err := e.CreateJob(ctx, "product_import", 50)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	var final *job.Job
	for i := 0; i < 6; i++ {
		if _, err := e.RunTick(ctx, ""); err != nil {
			t.Fatalf("RunTick: %v", err)
		}
		final, err = e.GetJob(ctx, j.ID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if final.Status.Terminal() {
			break
		}
	}

	if final.Status != job.StatusCompleted {
		t.Fatalf("status = %q, want completed after two transient retries", final.Status)
	}

	chunks, _ := s.ListChunksByJob(ctx, j.ID)
	c := chunks[0]
	if c.DeadLettered() {
		t.Fatalf("explicitly transient chunk dead-lettered: retry=%d", c.RetryCount)
	}
	if c.RetryCount != 2 || len(c.RetryHistory) != 2 {
		t.Fatalf("retries = %d, history %d, want 2 and 2", c.RetryCount, len(c.RetryHistory))
	}
}

// recordingIndex mimics the Redis index: fingerprint state of its own,
// read-only Seen, writes only in Record.
type recordingIndex struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{keys: make(map[string]bool)}
}

func (r *recordingIndex) Seen(_ context.Context, fp dedup.Fingerprint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys[fp.Key()], nil
}

func (r *recordingIndex) Record(_ context.Context, fp dedup.Fingerprint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[fp.Key()] = true
	return nil
}

func TestEngine_RecordingIndex_TaskNotItsOwnDuplicate(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t, engine.WithDedupIndex(newRecordingIndex()))
	e.RegisterTask("asin_enrich", func(_ context.Context, _ *task.Task) error {
		return nil
	})

	ctx := context.Background()
	submitted, err := e.SubmitTask(ctx, "asin_enrich", "attachments/feed-1.json",
		engine.WithFingerprint("amazon", "B00EXAMPLE"),
	)
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	if submitted.Status != task.StatusPending {
		t.Fatalf("fresh task status = %q, want pending", submitted.Status)
	}

	// The claim-time re-check must not match the task's own intake.
	res, err := e.RunTick(ctx, "")
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if res.Succeeded != 1 || res.Skipped != 0 {
		t.Fatalf("tick = %+v, want 1 succeeded 0 skipped", res)
	}

	got, _ := s.GetTask(ctx, submitted.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("task status = %q, want completed", got.Status)
	}

	// Only now, after completion, is the fingerprint recorded.
	dup, err := e.SubmitTask(ctx, "asin_enrich", "attachments/feed-1-redelivery.json",
		engine.WithFingerprint("amazon", "B00EXAMPLE"),
	)
	if err != nil {
		t.Fatalf("SubmitTask duplicate: %v", err)
	}
	if dup.Status != task.StatusIgnored {
		t.Fatalf("duplicate status = %q, want ignored", dup.Status)
	}
}
