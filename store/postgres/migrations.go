package postgres

import (
	"context"
	"fmt"
)

// schema holds the statements Migrate applies, in order. All statements are
// idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS hangfire_servers (
		id           TEXT PRIMARY KEY,
		worker_count INTEGER NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		heartbeat    TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS hangfire_server_queues (
		server_id TEXT NOT NULL REFERENCES hangfire_servers (id) ON DELETE CASCADE,
		position  INTEGER NOT NULL,
		queue     TEXT NOT NULL,
		PRIMARY KEY (server_id, position)
	)`,

	`CREATE TABLE IF NOT EXISTS hangfire_jobs (
		id           TEXT PRIMARY KEY,
		queue        TEXT NOT NULL,
		enqueued_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		scheduled_at TIMESTAMPTZ,
		fetched_at   TIMESTAMPTZ
	)`,

	`CREATE INDEX IF NOT EXISTS idx_hangfire_jobs_fetch
		ON hangfire_jobs (queue, enqueued_at)
		WHERE fetched_at IS NULL AND scheduled_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS hangfire_recurring_jobs (
		name     TEXT PRIMARY KEY,
		queue    TEXT NOT NULL,
		cron     TEXT NOT NULL,
		next_run TIMESTAMPTZ
	)`,
}

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("hangfire/postgres: migrate: %w", err)
		}
	}
	return nil
}
