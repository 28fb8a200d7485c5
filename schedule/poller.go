// Package schedule implements the schedule poller: the managed unit that
// promotes delayed jobs into their queues once they come due and fires
// recurring entries from cron expressions.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/stripeyjumper/Hangfire/unit"
)

// DefaultPollInterval is used when the caller passes a zero poll interval.
const DefaultPollInterval = 15 * time.Second

// RecurringJob is a registry-resident entry that enqueues a fresh job every
// time its cron expression comes due.
type RecurringJob struct {
	// Name uniquely identifies the entry.
	Name string

	// Queue receives the fired jobs.
	Queue string

	// Spec is a standard 5-field cron expression or a descriptor such as
	// "@every 30s".
	Spec string

	// NextRun is when the entry next fires. The zero value means the
	// entry has never fired and is due immediately.
	NextRun time.Time
}

// Store is the storage capability the poller consumes.
type Store interface {
	// PromoteDue moves every delayed job whose run-at time has passed
	// into its queue, returning how many were promoted.
	PromoteDue(ctx context.Context, now time.Time) (int, error)

	// ListRecurring returns all recurring entries.
	ListRecurring(ctx context.Context) ([]*RecurringJob, error)

	// FireRecurring enqueues jobID on queue and advances the entry's
	// next-run time, atomically.
	FireRecurring(ctx context.Context, name, jobID, queue string, nextRun time.Time) error
}

// parser accepts standard 5-field cron expressions plus descriptors.
var parser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSpec validates a recurring-job cron expression.
func ParseSpec(spec string) (cronlib.Schedule, error) {
	return parser.Parse(spec)
}

// Poller is the schedule-polling managed unit.
type Poller struct {
	*unit.Runner

	store    Store
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a Poller waking at the given interval. A zero interval
// selects DefaultPollInterval.
func NewPoller(store Store, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if interval == 0 {
		interval = DefaultPollInterval
	}
	p := &Poller{
		store:    store,
		interval: interval,
		logger:   logger,
	}
	p.Runner = unit.NewRunner("schedule poller", p.loop, logger)
	return p
}

func (p *Poller) loop(ctx context.Context) {
	for {
		p.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval):
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	now := time.Now().UTC()

	promoted, err := p.store.PromoteDue(ctx, now)
	if err != nil {
		p.logger.Error("promote due jobs", slog.String("error", err.Error()))
	} else if promoted > 0 {
		p.logger.Info("promoted scheduled jobs", slog.Int("count", promoted))
	}

	entries, err := p.store.ListRecurring(ctx)
	if err != nil {
		p.logger.Error("list recurring jobs", slog.String("error", err.Error()))
		return
	}

	for _, e := range entries {
		if e.NextRun.After(now) {
			continue
		}
		p.fire(ctx, e, now)
	}
}

func (p *Poller) fire(ctx context.Context, e *RecurringJob, now time.Time) {
	sched, err := ParseSpec(e.Spec)
	if err != nil {
		p.logger.Error("invalid recurring spec",
			slog.String("name", e.Name),
			slog.String("spec", e.Spec),
			slog.String("error", err.Error()),
		)
		return
	}

	jobID := fmt.Sprintf("%s:%d", e.Name, now.Unix())
	next := sched.Next(now)

	if err := p.store.FireRecurring(ctx, e.Name, jobID, e.Queue, next); err != nil {
		p.logger.Error("fire recurring job",
			slog.String("name", e.Name),
			slog.String("error", err.Error()),
		)
		return
	}

	p.logger.Info("recurring job fired",
		slog.String("name", e.Name),
		slog.String("job_id", jobID),
		slog.Time("next_run", next),
	)
}
