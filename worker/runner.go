package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/job"
)

// Result summarizes one processed batch.
type Result struct {
	Succeeded int
	Failed    int
}

// Runner drives a claimed batch of chunks through the Executor. Chunks
// run in waves of at most `concurrency` goroutines with a pause between
// waves, keeping pressure on rate-limited upstreams (supplier APIs,
// LLM providers) predictable regardless of batch size.
type Runner struct {
	executor    *Executor
	concurrency int
	batchPause  time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConcurrency sets how many chunks run simultaneously. Default 3.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) { r.concurrency = n }
}

// WithBatchPause sets the pause between waves. Default 3s.
func WithBatchPause(d time.Duration) RunnerOption {
	return func(r *Runner) { r.batchPause = d }
}

// WithLimiter sets a rate limiter applied before each chunk launch, on
// top of the wave pacing. Nil disables it.
func WithLimiter(l *rate.Limiter) RunnerOption {
	return func(r *Runner) { r.limiter = l }
}

// WithRunnerLogger sets the runner's logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a Runner over the given executor.
func NewRunner(executor *Executor, opts ...RunnerOption) *Runner {
	r := &Runner{
		executor:    executor,
		concurrency: 3,
		batchPause:  3 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.concurrency < 1 {
		r.concurrency = 1
	}
	return r
}

// Process executes the claimed chunks and returns per-chunk outcomes.
// Returns early (with partial results) when ctx is cancelled between
// waves; chunks never started stay claimed and are recovered by the
// stall detector.
func (r *Runner) Process(ctx context.Context, j *job.Job, chunks []*chunk.Chunk) Result {
	var res Result
	var mu sync.Mutex

	for start := 0; start < len(chunks); start += r.concurrency {
		if start > 0 {
			select {
			case <-ctx.Done():
				return res
			case <-time.After(r.batchPause):
			}
		}

		end := start + r.concurrency
		if end > len(chunks) {
			end = len(chunks)
		}
		wave := chunks[start:end]

		var wg sync.WaitGroup
		for _, c := range wave {
			if r.limiter != nil {
				if err := r.limiter.Wait(ctx); err != nil {
					return res
				}
			}

			wg.Add(1)
			go func(c *chunk.Chunk) {
				defer wg.Done()
				err := r.executor.Execute(ctx, j, c)
				mu.Lock()
				if err != nil {
					res.Failed++
				} else {
					res.Succeeded++
				}
				mu.Unlock()
			}(c)
		}
		wg.Wait()
	}

	return res
}
