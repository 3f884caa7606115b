package batch

import "time"

// Config holds engine-wide processing policy. Individual job kinds may
// override StallThreshold via job options; everything else applies
// uniformly.
type Config struct {
	// Concurrency is the maximum number of chunks processed
	// simultaneously within one invocation.
	Concurrency int

	// BatchPause is the fixed pause between consecutive batches of
	// concurrent chunks. Static backpressure for downstream rate limits.
	BatchPause time.Duration

	// ChunkSize is the default number of items per chunk when a job is
	// created without an explicit size.
	ChunkSize int

	// MaxRetries is the retry ceiling per unit of work. A unit whose
	// retry count exceeds this is dead-lettered.
	MaxRetries int

	// SliceBudget is the maximum number of chunks one invocation may
	// claim before handing off to a continuation.
	SliceBudget int

	// StallThreshold is how long a chunk may sit in processing before
	// the stall detector reclaims it.
	StallThreshold time.Duration

	// DedupWindow is the tolerance window for duplicate detection:
	// a candidate matching a completed task's fingerprint within this
	// window (either side) is a duplicate.
	DedupWindow time.Duration

	// AlertDebounce suppresses identical repeat alerts fired within
	// this window. Alerting stays level-triggered; only the persisted
	// duplicates are elided.
	AlertDebounce time.Duration
}

// DefaultConfig returns a Config with the engine's standard policy.
func DefaultConfig() Config {
	return Config{
		Concurrency:    3,
		BatchPause:     3 * time.Second,
		ChunkSize:      50,
		MaxRetries:     3,
		SliceBudget:    25,
		StallThreshold: 60 * time.Minute,
		DedupWindow:    time.Hour,
		AlertDebounce:  15 * time.Minute,
	}
}
