package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/alert"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/backoff"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/dedup"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/hook"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/job"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/metrics"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/middleware"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/retry"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/stall"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/store"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/task"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/worker"
)

// TaskProcessor handles one claimed queue task.
type TaskProcessor func(ctx context.Context, t *task.Task) error

// Engine is the top-level façade over the batch subsystems.
type Engine struct {
	store  store.Store
	cfg    batch.Config
	logger *slog.Logger

	registry *job.Registry
	hooks    *hook.Registry

	taskMu    sync.RWMutex
	taskProcs map[string]TaskProcessor

	executor  *worker.Executor
	runner    *worker.Runner
	retries   *retry.Controller
	detector  *stall.Detector
	filter    *dedup.Filter
	collector *metrics.Collector
	evaluator *metrics.Evaluator

	continuation Continuation
}

// options collects everything the functional options configure before
// the subsystems are wired together.
type options struct {
	cfg    batch.Config
	logger *slog.Logger

	hooks          []hook.Hook
	mws            []middleware.Middleware
	chunkTimeout   time.Duration
	limiter        *rate.Limiter
	bo             backoff.Strategy
	index          dedup.Index
	notifier       alert.Notifier
	thresholds     *metrics.Thresholds
	kindThresholds map[string]time.Duration
	continuation   Continuation
	metricsHook    bool
}

// Option configures the engine at construction time.
type Option func(*options)

// WithConfig replaces the default processing policy.
func WithConfig(cfg batch.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the engine's logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHook registers a lifecycle hook.
func WithHook(h hook.Hook) Option {
	return func(o *options) { o.hooks = append(o.hooks, h) }
}

// WithMiddleware appends chunk middleware after the built-in stack
// (recover, tracing, metrics, logging) and before the processor.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.mws = append(o.mws, mws...) }
}

// WithChunkTimeout bounds a single chunk execution. Zero (the default)
// leaves chunk runtime bounded only by the stall detector.
func WithChunkTimeout(d time.Duration) Option {
	return func(o *options) { o.chunkTimeout = d }
}

// WithLimiter applies a rate limiter to chunk launches, on top of the
// wave pacing.
func WithLimiter(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithBackoff replaces the retry backoff strategy.
func WithBackoff(b backoff.Strategy) Option {
	return func(o *options) { o.bo = b }
}

// WithDedupIndex replaces the store-backed duplicate index, e.g. with
// dedup.NewRedisIndex for cross-process SetNX semantics.
func WithDedupIndex(idx dedup.Index) Option {
	return func(o *options) { o.index = idx }
}

// WithNotifier sets the alert delivery channel.
func WithNotifier(n alert.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithThresholds overrides the alert trigger levels.
func WithThresholds(t metrics.Thresholds) Option {
	return func(o *options) { o.thresholds = &t }
}

// WithKindStallThreshold overrides the stall threshold for one job
// kind.
func WithKindStallThreshold(kind string, d time.Duration) Option {
	return func(o *options) { o.kindThresholds[kind] = d }
}

// WithContinuation sets how the engine re-triggers itself for the next
// slice of an unfinished job. Without one, callers drive slices
// themselves (see Drive).
func WithContinuation(c Continuation) Option {
	return func(o *options) { o.continuation = c }
}

// WithoutMetricsHook disables the built-in OTel lifecycle hook.
func WithoutMetricsHook() Option {
	return func(o *options) { o.metricsHook = false }
}

// New wires an Engine over the given store.
func New(st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, batch.ErrNoStore
	}

	o := &options{
		cfg:            batch.DefaultConfig(),
		logger:         slog.Default(),
		kindThresholds: make(map[string]time.Duration),
		metricsHook:    true,
	}
	for _, opt := range opts {
		opt(o)
	}

	e := &Engine{
		store:        st,
		cfg:          o.cfg,
		logger:       o.logger,
		registry:     job.NewRegistry(),
		hooks:        hook.NewRegistry(o.logger),
		taskProcs:    make(map[string]TaskProcessor),
		continuation: o.continuation,
	}

	if o.metricsHook {
		mh, err := metrics.NewOTelHook()
		if err != nil {
			o.logger.Warn("otel metrics hook unavailable", slog.String("error", err.Error()))
		} else {
			e.hooks.Register(mh)
		}
	}
	for _, h := range o.hooks {
		e.hooks.Register(h)
	}

	mws := []middleware.Middleware{
		middleware.Recover(o.logger),
		middleware.Tracing(),
		middleware.Metrics(),
		middleware.Logging(o.logger),
	}
	mws = append(mws, o.mws...)
	if o.chunkTimeout > 0 {
		mws = append(mws, middleware.Timeout(o.chunkTimeout))
	}

	e.executor = worker.NewExecutor(e.registry, st, e.hooks, o.logger, mws...)

	runnerOpts := []worker.RunnerOption{
		worker.WithConcurrency(o.cfg.Concurrency),
		worker.WithBatchPause(o.cfg.BatchPause),
		worker.WithRunnerLogger(o.logger),
	}
	if o.limiter != nil {
		runnerOpts = append(runnerOpts, worker.WithLimiter(o.limiter))
	}
	e.runner = worker.NewRunner(e.executor, runnerOpts...)

	retryOpts := []retry.Option{retry.WithLogger(o.logger)}
	if o.bo != nil {
		retryOpts = append(retryOpts, retry.WithBackoff(o.bo))
	}
	e.retries = retry.NewController(st, st, e.hooks, retryOpts...)

	stallOpts := []stall.Option{
		stall.WithThreshold(o.cfg.StallThreshold),
		stall.WithLogger(o.logger),
	}
	for kind, d := range o.kindThresholds {
		stallOpts = append(stallOpts, stall.WithKindThreshold(kind, d))
	}
	e.detector = stall.NewDetector(st, st, st, e.hooks, stallOpts...)

	index := o.index
	if index == nil {
		index = dedup.NewStoreIndex(st, o.cfg.DedupWindow)
	}
	e.filter = dedup.NewFilter(index, dedup.WithLogger(o.logger))

	e.collector = metrics.NewCollector(st, st)

	evalOpts := []metrics.EvaluatorOption{
		metrics.WithDebounce(o.cfg.AlertDebounce),
		metrics.WithStallThreshold(o.cfg.StallThreshold),
		metrics.WithLogger(o.logger),
	}
	if o.thresholds != nil {
		evalOpts = append(evalOpts, metrics.WithThresholds(*o.thresholds))
	}
	if o.notifier != nil {
		evalOpts = append(evalOpts, metrics.WithNotifier(o.notifier))
	}
	e.evaluator = metrics.NewEvaluator(st, st, e.hooks, evalOpts...)

	return e, nil
}

// Register binds a chunk processor to a job kind.
func (e *Engine) Register(kind string, p job.Processor) {
	e.registry.Register(kind, p)
}

// RegisterTask binds a processor to a queue task kind.
func (e *Engine) RegisterTask(kind string, p TaskProcessor) {
	e.taskMu.Lock()
	defer e.taskMu.Unlock()
	e.taskProcs[kind] = p
}

func (e *Engine) taskProcessor(kind string) (TaskProcessor, bool) {
	e.taskMu.RLock()
	defer e.taskMu.RUnlock()
	p, ok := e.taskProcs[kind]
	return p, ok
}

// ──────────────────────────────────────────────────
// Job lifecycle
// ──────────────────────────────────────────────────

// CreateJob registers a job and materializes its chunks, all pending.
// The job is inert until a slice processes it.
func (e *Engine) CreateJob(ctx context.Context, kind string, totalItems int, opts ...job.Option) (*job.Job, error) {
	if kind == "" {
		return nil, fmt.Errorf("%w: empty job kind", batch.ErrInvalidInput)
	}
	if totalItems <= 0 {
		return nil, fmt.Errorf("%w: total items must be positive, got %d", batch.ErrInvalidInput, totalItems)
	}

	var jo job.Options
	for _, opt := range opts {
		opt(&jo)
	}

	chunkSize := jo.ChunkSize
	if chunkSize <= 0 {
		chunkSize = e.cfg.ChunkSize
	}
	maxRetries := jo.MaxRetries
	if maxRetries <= 0 {
		maxRetries = e.cfg.MaxRetries
	}

	totalChunks := (totalItems + chunkSize - 1) / chunkSize

	j := &job.Job{
		Entity:      batch.NewEntity(),
		ID:          id.NewJobID(),
		Kind:        kind,
		Owner:       jo.Owner,
		TotalItems:  totalItems,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		Status:      job.StatusPending,
	}
	if err := e.store.CreateJob(ctx, j); err != nil {
		return nil, err
	}

	chunks := make([]*chunk.Chunk, totalChunks)
	for i := range chunks {
		end := (i + 1) * chunkSize
		if end > totalItems {
			end = totalItems
		}
		chunks[i] = &chunk.Chunk{
			Entity:     batch.NewEntity(),
			ID:         id.NewChunkID(),
			JobID:      j.ID,
			Ordinal:    i,
			Start:      i * chunkSize,
			End:        end,
			Status:     chunk.StatusPending,
			MaxRetries: maxRetries,
		}
	}
	if err := e.store.CreateChunks(ctx, chunks); err != nil {
		// The job row exists but has no work; fail it so it cannot sit
		// pending forever.
		if _, ffErr := e.store.SetJobStatus(ctx, j.ID, job.StatusPending, job.StatusFailed); ffErr != nil {
			e.logger.Error("fail chunkless job",
				slog.String("job_id", j.ID.String()),
				slog.String("error", ffErr.Error()),
			)
		}
		return nil, err
	}

	e.logger.Info("job created",
		slog.String("job_id", j.ID.String()),
		slog.String("kind", kind),
		slog.Int("total_items", totalItems),
		slog.Int("total_chunks", totalChunks),
	)
	return j, nil
}

// GetJob returns the job's current persisted state.
func (e *Engine) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return e.store.GetJob(ctx, jobID)
}

// CancelJob asks a pending or running job to stop. In-flight chunks
// finish; no new slice claims work for the job. The next advance with
// no work in flight settles the job as failed.
func (e *Engine) CancelJob(ctx context.Context, jobID id.JobID) error {
	ok, err := e.store.SetJobStatus(ctx, jobID, job.StatusRunning, job.StatusCancelling)
	if err != nil {
		return err
	}
	if !ok {
		ok, err = e.store.SetJobStatus(ctx, jobID, job.StatusPending, job.StatusCancelling)
		if err != nil {
			return err
		}
	}
	if !ok {
		return fmt.Errorf("%w: job is not pending or running", batch.ErrInvalidTransition)
	}

	e.logger.Info("job cancelling", slog.String("job_id", jobID.String()))
	return nil
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Store returns the backing store.
func (e *Engine) Store() store.Store { return e.store }

// Hooks returns the engine's hook registry for late registration.
func (e *Engine) Hooks() *hook.Registry { return e.hooks }

// Collector returns the metrics collector.
func (e *Engine) Collector() *metrics.Collector { return e.collector }

// Snapshot computes a pipeline health snapshot over one window.
func (e *Engine) Snapshot(ctx context.Context, window time.Duration) (*metrics.Snapshot, error) {
	return e.collector.Snapshot(ctx, window)
}
