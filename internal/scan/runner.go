package scan

import (
	"context"
	"sync"
)

// Runner enforces the single-flight rule: at most one orchestration run is
// active at a time, and starting a new run first requests cancellation of
// any run already in flight.
type Runner struct {
	orch *Orchestrator

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewRunner wraps an orchestrator with single-flight semantics.
func NewRunner(orch *Orchestrator) *Runner {
	return &Runner{orch: orch}
}

// Run cancels any in-flight run, then executes the job on the calling
// goroutine. The superseded run observes context cancellation and winds
// down with its partial results.
func (r *Runner) Run(ctx context.Context, job Job) (*Report, error) {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.gen++
	mine := r.gen
	r.cancel = cancel
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		// Only clear the slot if a newer run has not already claimed it.
		if r.gen == mine {
			r.cancel = nil
		}
		r.mu.Unlock()
	}()

	return r.orch.Run(ctx, job)
}

// Cancel requests cancellation of the active run, if any.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}
