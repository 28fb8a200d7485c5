// Package unit defines the lifecycle contract shared by every managed
// background unit (worker pool, schedule poller, dequeued-jobs watcher,
// server watchdog) and a Runner that turns a plain loop function into one.
//
// The server coordinator drives units purely through this contract: Start
// must begin independent execution and return immediately; Stop must signal
// cooperative cancellation and block until the unit has released all of its
// resources. The wrapper imposes no stop timeout — a unit that never stops
// will hang teardown, which indicates a bug in that unit.
package unit

import (
	"context"
	"log/slog"
	"sync"
)

// Unit is anything with a start/stop lifetime the coordinator can drive.
type Unit interface {
	// Start begins independent execution and returns without blocking.
	// Starting an already-running unit is a no-op.
	Start(ctx context.Context) error

	// Stop signals cancellation and blocks until the unit has fully
	// released its resources. Stopping a unit that never started is a
	// no-op.
	Stop(ctx context.Context) error
}

// RunFunc is a unit body. It must return promptly once ctx is cancelled.
type RunFunc func(ctx context.Context)

// Runner adapts a RunFunc to the Unit contract: Start spawns one goroutine
// running the function under a cancellable context, Stop cancels that
// context and joins the goroutine.
type Runner struct {
	name   string
	run    RunFunc
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewRunner creates a Runner. The name appears in lifecycle log lines.
func NewRunner(name string, run RunFunc, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{name: name, run: run, logger: logger}
}

// Start implements Unit. The unit's lifetime is bound to Stop, not to the
// passed context, so the goroutine runs under its own cancellable context.
func (r *Runner) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	r.running = true

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	r.logger.Info("unit started", slog.String("unit", r.name))

	go func(done chan struct{}) {
		defer close(done)
		r.run(ctx)
	}(r.done)

	return nil
}

// Stop implements Unit. It blocks until the run function has returned,
// regardless of any deadline on the passed context.
func (r *Runner) Stop(_ context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done

	r.logger.Info("unit stopped", slog.String("unit", r.name))
	return nil
}
