package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/stripeyjumper/Hangfire/schedule"
)

// ScheduleJob registers a delayed job, fetchable once its run-at time has
// been promoted.
func (s *Store) ScheduleJob(ctx context.Context, jobID, queue string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hangfire_jobs (id, queue, scheduled_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			queue = EXCLUDED.queue,
			scheduled_at = EXCLUDED.scheduled_at`,
		jobID, queue, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("hangfire/postgres: schedule job: %w", err)
	}
	return nil
}

// PromoteDue implements schedule.Store.
func (s *Store) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE hangfire_jobs SET scheduled_at = NULL
		WHERE scheduled_at IS NOT NULL AND scheduled_at <= $1`,
		now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("hangfire/postgres: promote due: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// AddRecurring registers a recurring entry, replacing any with the same
// name.
func (s *Store) AddRecurring(ctx context.Context, e *schedule.RecurringJob) error {
	var nextRun *time.Time
	if !e.NextRun.IsZero() {
		t := e.NextRun.UTC()
		nextRun = &t
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hangfire_recurring_jobs (name, queue, cron, next_run)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			queue = EXCLUDED.queue,
			cron = EXCLUDED.cron,
			next_run = EXCLUDED.next_run`,
		e.Name, e.Queue, e.Spec, nextRun,
	)
	if err != nil {
		return fmt.Errorf("hangfire/postgres: add recurring: %w", err)
	}
	return nil
}

// ListRecurring implements schedule.Store, sorted by name.
func (s *Store) ListRecurring(ctx context.Context) ([]*schedule.RecurringJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, queue, cron, next_run
		FROM hangfire_recurring_jobs
		ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("hangfire/postgres: list recurring: %w", err)
	}
	defer rows.Close()

	var out []*schedule.RecurringJob
	for rows.Next() {
		var (
			e       schedule.RecurringJob
			nextRun *time.Time
		)
		if err := rows.Scan(&e.Name, &e.Queue, &e.Spec, &nextRun); err != nil {
			return nil, fmt.Errorf("hangfire/postgres: scan recurring: %w", err)
		}
		if nextRun != nil {
			e.NextRun = nextRun.UTC()
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hangfire/postgres: iterate recurring: %w", err)
	}
	return out, nil
}

// FireRecurring implements schedule.Store: enqueue and next-run advance in
// one transaction.
func (s *Store) FireRecurring(ctx context.Context, name, jobID, queue string, nextRun time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("hangfire/postgres: fire begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx, `
		INSERT INTO hangfire_jobs (id, queue) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`,
		jobID, queue,
	)
	if err != nil {
		return fmt.Errorf("hangfire/postgres: fire enqueue: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE hangfire_recurring_jobs SET next_run = $2 WHERE name = $1`,
		name, nextRun.UTC(),
	)
	if err != nil {
		return fmt.Errorf("hangfire/postgres: fire advance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("hangfire/postgres: fire commit: %w", err)
	}
	return nil
}
