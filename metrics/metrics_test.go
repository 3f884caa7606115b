package metrics_test

import (
	"context"
	"testing"
	"time"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/alert"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/job"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/metrics"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/store/memory"
)

func seed(t *testing.T, s *memory.Store, chunks int) *job.Job {
	t.Helper()

	j := &job.Job{
		Entity:      batch.NewEntity(),
		ID:          id.NewJobID(),
		Kind:        "product_import",
		TotalItems:  chunks * 50,
		ChunkSize:   50,
		TotalChunks: chunks,
		Status:      job.StatusRunning,
	}
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	cs := make([]*chunk.Chunk, chunks)
	for i := range cs {
		cs[i] = &chunk.Chunk{
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
	if err := s.CreateChunks(context.Background(), cs); err != nil {
		t.Fatalf("CreateChunks: %v", err)
	}
	return j
}

// deadLetter drives n chunks of the job to the dead-letter state.
func deadLetter(t *testing.T, s *memory.Store, j *job.Job, n int) {
	t.Helper()
	ctx := context.Background()

	claimed, err := s.ClaimPending(ctx, j.ID, 0, n)
	if err != nil || len(claimed) != n {
		t.Fatalf("claim for dead-letter: got %d, err %v", len(claimed), err)
	}
	for _, c := range claimed {
		if ok, _ := s.FailChunk(ctx, c.ID, "401 unauthorized"); !ok {
			t.Fatal("FailChunk lost")
		}
		if ok, _ := s.DeadLetterChunk(ctx, c.ID); !ok {
			t.Fatal("DeadLetterChunk lost")
		}
	}
}

func TestCollector_Snapshot(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()
	j := seed(t, s, 4)

	claimed, _ := s.ClaimPending(ctx, j.ID, 0, 3)
	s.CompleteChunk(ctx, claimed[0].ID)
	s.CompleteChunk(ctx, claimed[1].ID)
	s.FailChunk(ctx, claimed[2].ID, "timeout")

	collector := metrics.NewCollector(s, s)
	snap, err := collector.Snapshot(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap.ChunksCompleted != 2 {
		t.Errorf("ChunksCompleted = %d, want 2", snap.ChunksCompleted)
	}
	if snap.Chunks.Pending != 1 || snap.Chunks.Completed != 2 || snap.Chunks.Failed != 1 {
		t.Errorf("Chunks = %+v", snap.Chunks)
	}
	// 1 failed out of 3 terminal.
	if snap.ErrorRate < 0.33 || snap.ErrorRate > 0.34 {
		t.Errorf("ErrorRate = %f, want ~0.333", snap.ErrorRate)
	}
	if snap.Throughput != 2 {
		t.Errorf("Throughput = %f, want 2/hr", snap.Throughput)
	}
}

func TestEvaluator_DeadLetterThresholds(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()
	j := seed(t, s, 5)
	deadLetter(t, s, j, 3)

	// Thresholds scaled down so the fixture stays small.
	ev := metrics.NewEvaluator(s, s, nil, metrics.WithThresholds(metrics.Thresholds{
		DeadLetterWarning:  2,
		DeadLetterCritical: 4,
		StalledWarning:     5,
	}))

	fired, err := ev.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(fired) != 1 {
		t.Fatalf("fired %d alerts, want 1", len(fired))
	}
	if fired[0].Severity != alert.SeverityWarning || fired[0].Component != "dead-letter" {
		t.Fatalf("alert = %+v", fired[0])
	}

	// Push past the critical threshold; the next pass escalates because
	// critical is a different severity than the debounced warning.
	deadLetter(t, s, j, 2)
	fired, err = ev.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(fired) != 1 || fired[0].Severity != alert.SeverityCritical {
		t.Fatalf("escalation = %+v", fired)
	}
}

func TestEvaluator_Debounce(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()
	j := seed(t, s, 3)
	deadLetter(t, s, j, 3)

	ev := metrics.NewEvaluator(s, s, nil,
		metrics.WithThresholds(metrics.Thresholds{
			DeadLetterWarning:  2,
			DeadLetterCritical: 100,
			StalledWarning:     100,
		}),
		metrics.WithDebounce(15*time.Minute),
	)

	fired, _ := ev.Evaluate(ctx)
	if len(fired) != 1 {
		t.Fatalf("first pass fired %d, want 1", len(fired))
	}

	// Condition persists but the identical alert is debounced.
	fired, _ = ev.Evaluate(ctx)
	if len(fired) != 0 {
		t.Fatalf("second pass fired %d, want 0 (debounced)", len(fired))
	}

	alerts, _ := s.ListAlertsSince(ctx, time.Time{})
	if len(alerts) != 1 {
		t.Fatalf("persisted alerts = %d, want 1", len(alerts))
	}
}

func TestEvaluator_StalledWarning(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()
	j := seed(t, s, 3)
	s.ClaimPending(ctx, j.ID, 0, 3)
	time.Sleep(5 * time.Millisecond)

	ev := metrics.NewEvaluator(s, s, nil,
		metrics.WithThresholds(metrics.Thresholds{
			DeadLetterWarning:  100,
			DeadLetterCritical: 200,
			StalledWarning:     2,
		}),
		metrics.WithStallThreshold(0),
	)

	fired, err := ev.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(fired) != 1 || fired[0].Component != "stall" {
		t.Fatalf("fired = %+v, want one stall warning", fired)
	}
}
