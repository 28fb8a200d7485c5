package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stripeyjumper/Hangfire/job"
)

// EnqueueJob makes a job immediately fetchable from the queue.
func (s *Store) EnqueueJob(ctx context.Context, jobID, queue string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hangfire_jobs (id, queue) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`,
		jobID, queue,
	)
	if err != nil {
		return fmt.Errorf("hangfire/postgres: enqueue job: %w", err)
	}
	return nil
}

// FetchJob implements worker.Fetcher. SKIP LOCKED keeps concurrent pools
// from claiming the same row; queue order in the argument is the claim
// priority.
func (s *Store) FetchJob(ctx context.Context, queues []string) (*job.Job, error) {
	var (
		j       job.Job
		fetched time.Time
	)
	err := s.pool.QueryRow(ctx, `
		UPDATE hangfire_jobs SET fetched_at = NOW()
		WHERE id = (
			SELECT id FROM hangfire_jobs
			WHERE queue = ANY($1)
			  AND fetched_at IS NULL
			  AND scheduled_at IS NULL
			ORDER BY array_position($1, queue), enqueued_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, queue, fetched_at`,
		queues,
	).Scan(&j.ID, &j.Queue, &fetched)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hangfire/postgres: fetch job: %w", err)
	}
	j.FetchedAt = fetched.UTC()
	return &j, nil
}

// AckJob implements worker.Fetcher.
func (s *Store) AckJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM hangfire_jobs WHERE id = $1`,
		j.ID,
	)
	if err != nil {
		return fmt.Errorf("hangfire/postgres: ack job: %w", err)
	}
	return nil
}

// RequeueOrphans implements watcher.Store: clearing fetched_at puts the row
// back in the fetchable set.
func (s *Store) RequeueOrphans(ctx context.Context, queue string, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE hangfire_jobs SET fetched_at = NULL
		WHERE queue = $1 AND fetched_at < $2`,
		queue, cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("hangfire/postgres: requeue orphans: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
