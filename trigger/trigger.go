// Package trigger schedules periodic engine ticks per job kind.
//
// Each kind gets its own cron cadence so heavyweight kinds (full
// catalog syncs) can tick hourly while lightweight ones (price
// updates) tick every minute. Fire runs one kind's tick on demand,
// outside its schedule.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// TickFunc runs one maintenance tick for a job kind. The engine
// provides the implementation; the indirection keeps this package from
// importing it.
type TickFunc func(ctx context.Context, kind string) error

// cronParser supports standard 5-field cron and descriptors like
// "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// entry is one kind's schedule and its next due time.
type entry struct {
	kind     string
	expr     string
	schedule cronlib.Schedule
	nextRun  time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithResolution sets how often the scheduler checks for due entries.
// Default 1s.
func WithResolution(d time.Duration) Option {
	return func(s *Scheduler) { s.resolution = d }
}

// WithLogger sets the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// Scheduler fires per-kind ticks on their cron cadences.
type Scheduler struct {
	tick       TickFunc
	logger     *slog.Logger
	resolution time.Duration

	mu      sync.Mutex
	entries map[string]*entry

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a Scheduler over the given tick function.
func NewScheduler(tick TickFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		tick:       tick,
		logger:     slog.Default(),
		resolution: time.Second,
		entries:    make(map[string]*entry),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers or replaces the cadence for one job kind.
func (s *Scheduler) Add(kind, expr string) error {
	if kind == "" {
		return fmt.Errorf("trigger: empty kind")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("trigger: parse schedule %q for kind %q: %w", expr, kind, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[kind] = &entry{
		kind:     kind,
		expr:     expr,
		schedule: schedule,
		nextRun:  schedule.Next(time.Now()),
	}
	return nil
}

// Remove drops a kind's schedule.
func (s *Scheduler) Remove(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, kind)
}

// Kinds returns the scheduled kinds.
func (s *Scheduler) Kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, 0, len(s.entries))
	for k := range s.entries {
		kinds = append(kinds, k)
	}
	return kinds
}

// Fire runs one kind's tick immediately, outside its schedule. The
// next scheduled run is unaffected.
func (s *Scheduler) Fire(ctx context.Context, kind string) error {
	return s.tick(ctx, kind)
}

// Start launches the tick loop. The loop stops when ctx is cancelled
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.resolution)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case now := <-ticker.C:
				s.runDue(ctx, now)
			}
		}
	}()
}

// Stop halts the tick loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// runDue fires every entry whose nextRun has passed. Entries run
// sequentially within one pass; a kind's tick already fans out
// internally, and serializing here keeps one slow kind from piling up
// concurrent passes against the same rows.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if !e.nextRun.After(now) {
			due = append(due, e)
			e.nextRun = e.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		if err := s.tick(ctx, e.kind); err != nil {
			s.logger.Error("scheduled tick failed",
				slog.String("kind", e.kind),
				slog.String("schedule", e.expr),
				slog.String("error", err.Error()),
			)
		}
	}
}
