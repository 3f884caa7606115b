package job

import (
	"context"
	"sync"
)

// Processor handles the items of one claimed chunk, identified by the
// half-open ordinal range [start, end) into the job's input set. The
// source fetcher and per-platform mapping live behind this function;
// the engine only observes success or failure.
type Processor func(ctx context.Context, j *Job, start, end int) error

// Registry maps job kinds to their processors. It is safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

// NewRegistry creates an empty processor registry.
func NewRegistry() *Registry {
	return &Registry{
		processors: make(map[string]Processor),
	}
}

// Register binds a processor to a job kind, replacing any previous
// binding for the same kind.
func (r *Registry) Register(kind string, p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[kind] = p
}

// Get returns the processor for the given job kind.
// Returns false if no processor is registered.
func (r *Registry) Get(kind string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[kind]
	return p, ok
}

// Kinds returns all registered job kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.processors))
	for kind := range r.processors {
		kinds = append(kinds, kind)
	}
	return kinds
}
