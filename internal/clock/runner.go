package clock

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TickFunc performs one scheduled tick. Returning false stops the runner.
type TickFunc func(ctx context.Context) bool

// Runner schedules ticks on a fixed interval. Stopping it pauses tick
// scheduling without touching simulation state.
type Runner struct {
	interval time.Duration
	tick     TickFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates a runner calling fn every interval
func NewRunner(interval time.Duration, fn TickFunc) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{
		interval: interval,
		tick:     fn,
	}
}

// Start begins ticking in a goroutine. Starting a running runner is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go r.run(runCtx, done)
}

// Stop halts ticking and waits for an in-flight tick to finish.
// It must not be called from inside the TickFunc.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether ticks are being scheduled
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *Runner) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.tick(ctx) {
				slog.Debug("tick runner finished")
				r.release(done)
				return
			}
		}
	}
}

// release clears the runner's handle if it still belongs to this run
func (r *Runner) release(done chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == done {
		r.cancel()
		r.cancel, r.done = nil, nil
	}
}
