// Package watcher implements the dequeued-jobs watcher: the managed unit
// that returns orphaned claims to their queues. A claim is orphaned when the
// server that fetched it died before acknowledging; its fetch timestamp
// stops advancing and eventually exceeds the checkout timeout.
package watcher

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stripeyjumper/Hangfire/unit"
)

// Store is the storage capability the watcher consumes.
type Store interface {
	// RequeueOrphans returns every claim on the queue fetched before
	// cutoff back to the queue, returning how many were requeued.
	RequeueOrphans(ctx context.Context, queue string, cutoff time.Time) (int, error)
}

// Watcher scans the server's queues for orphaned claims.
type Watcher struct {
	*unit.Runner

	store    Store
	queues   []string
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithCheckoutTimeout sets how long a claim may stay checked out before it
// is considered orphaned. Default 15 minutes.
func WithCheckoutTimeout(d time.Duration) Option {
	return func(w *Watcher) { w.timeout = d }
}

// WithInterval sets how often the watcher scans. Default 1 minute.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) { w.interval = d }
}

// New creates a Watcher over the given queues.
func New(store Store, queues []string, logger *slog.Logger, opts ...Option) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		store:    store,
		queues:   queues,
		timeout:  15 * time.Minute,
		interval: time.Minute,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.Runner = unit.NewRunner("dequeued jobs watcher", w.loop, logger)
	return w
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
		w.scan(ctx)
	}
}

func (w *Watcher) scan(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.timeout)

	var requeued atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, queue := range w.queues {
		g.Go(func() error {
			n, err := w.store.RequeueOrphans(gctx, queue, cutoff)
			if err != nil {
				w.logger.Error("requeue orphans",
					slog.String("queue", queue),
					slog.String("error", err.Error()),
				)
				return nil // keep scanning the other queues
			}
			requeued.Add(int64(n))
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	if n := requeued.Load(); n > 0 {
		w.logger.Warn("requeued orphaned jobs", slog.Int64("count", n))
	}
}
