package job

// Options configures per-job behavior at creation time.
type Options struct {
	// Owner identifies the account the job belongs to.
	Owner string

	// ChunkSize is the number of items per chunk. Zero means use the
	// engine default.
	ChunkSize int

	// MaxRetries is the retry ceiling for this job's chunks. Zero means
	// use the engine default.
	MaxRetries int
}

// Option is a functional option for configuring a job at creation.
type Option func(*Options)

// WithOwner sets the owning account for the job.
func WithOwner(owner string) Option {
	return func(o *Options) {
		o.Owner = owner
	}
}

// WithChunkSize overrides the engine's default chunk size.
func WithChunkSize(n int) Option {
	return func(o *Options) {
		o.ChunkSize = n
	}
}

// WithMaxRetries overrides the engine's default retry ceiling.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}
