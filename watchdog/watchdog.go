// Package watchdog implements the server watchdog: the managed unit that
// reaps cluster members whose heartbeats have gone stale. It uses the same
// removal primitive a clean shutdown uses, so reclaiming a crashed server
// leaves the registry exactly as if that server had deregistered itself.
package watchdog

import (
	"context"
	"log/slog"
	"time"

	hangfire "github.com/stripeyjumper/Hangfire"
	"github.com/stripeyjumper/Hangfire/unit"
)

// Watchdog periodically removes servers with stale heartbeats.
type Watchdog struct {
	*unit.Runner

	storage   hangfire.Storage
	self      hangfire.ServerID
	threshold time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithThreshold sets how stale a heartbeat must be before the server is
// reaped. Default 5 minutes; it must comfortably exceed the heartbeat
// period or healthy servers will be reaped between beats.
func WithThreshold(d time.Duration) Option {
	return func(w *Watchdog) { w.threshold = d }
}

// WithInterval sets how often the watchdog checks. Default 1 minute.
func WithInterval(d time.Duration) Option {
	return func(w *Watchdog) { w.interval = d }
}

// New creates a Watchdog. self is the identity of the server running it,
// which is never reaped by its own watchdog: its staleness is for the rest
// of the cluster to judge.
func New(storage hangfire.Storage, self hangfire.ServerID, logger *slog.Logger, opts ...Option) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watchdog{
		storage:   storage,
		self:      self,
		threshold: 5 * time.Minute,
		interval:  time.Minute,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.Runner = unit.NewRunner("server watchdog", w.loop, logger)
	return w
}

func (w *Watchdog) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
		w.reap(ctx)
	}
}

func (w *Watchdog) reap(ctx context.Context) {
	servers, err := w.storage.Servers(ctx)
	if err != nil {
		w.logger.Error("list servers", slog.String("error", err.Error()))
		return
	}

	cutoff := time.Now().UTC().Add(-w.threshold)
	for _, s := range servers {
		if s.ID == w.self {
			continue
		}
		// A server that announced but never heartbeat is judged by its
		// start time.
		last := s.Heartbeat
		if last.IsZero() {
			last = s.StartedAt
		}
		if !last.Before(cutoff) {
			continue
		}

		if err := w.storage.RemoveServer(ctx, s.ID); err != nil {
			w.logger.Error("remove stale server",
				slog.String("server_id", s.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		w.logger.Warn("reaped stale server",
			slog.String("server_id", s.ID.String()),
			slog.Time("last_heartbeat", last),
		)
	}
}
