package postgres

import (
	"context"
	"fmt"
	"time"

	hangfire "github.com/stripeyjumper/Hangfire"
)

// AnnounceServer implements hangfire.Storage. Descriptor row and queue rows
// are written in one transaction.
func (s *Store) AnnounceServer(ctx context.Context, a *hangfire.ServerAnnouncement) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("hangfire/postgres: announce begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx, `
		INSERT INTO hangfire_servers (id, worker_count, started_at, heartbeat)
		VALUES ($1, $2, $3, NULL)
		ON CONFLICT (id) DO UPDATE SET
			worker_count = EXCLUDED.worker_count,
			started_at = EXCLUDED.started_at,
			heartbeat = NULL`,
		a.ID.String(), a.WorkerCount, a.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("hangfire/postgres: announce server: %w", err)
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM hangfire_server_queues WHERE server_id = $1`,
		a.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("hangfire/postgres: announce clear queues: %w", err)
	}

	for i, q := range a.Queues {
		_, err = tx.Exec(ctx, `
			INSERT INTO hangfire_server_queues (server_id, position, queue)
			VALUES ($1, $2, $3)`,
			a.ID.String(), i, q,
		)
		if err != nil {
			return fmt.Errorf("hangfire/postgres: announce queue: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("hangfire/postgres: announce commit: %w", err)
	}
	return nil
}

// HeartbeatServer implements hangfire.Storage.
func (s *Store) HeartbeatServer(ctx context.Context, id hangfire.ServerID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE hangfire_servers SET heartbeat = $2 WHERE id = $1`,
		id.String(), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("hangfire/postgres: heartbeat server: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hangfire.ErrServerNotFound
	}
	return nil
}

// RemoveServer implements hangfire.Storage. The queue rows go with the
// server row via ON DELETE CASCADE; deleting an absent row is a no-op.
func (s *Store) RemoveServer(ctx context.Context, id hangfire.ServerID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM hangfire_servers WHERE id = $1`,
		id.String(),
	)
	if err != nil {
		return fmt.Errorf("hangfire/postgres: remove server: %w", err)
	}
	return nil
}

// Servers implements hangfire.Storage, sorted by identity.
func (s *Store) Servers(ctx context.Context) ([]*hangfire.ServerDescriptor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.worker_count, s.started_at, s.heartbeat,
			COALESCE(
				array_agg(q.queue ORDER BY q.position)
					FILTER (WHERE q.queue IS NOT NULL),
				'{}'
			)
		FROM hangfire_servers s
		LEFT JOIN hangfire_server_queues q ON q.server_id = s.id
		GROUP BY s.id
		ORDER BY s.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("hangfire/postgres: list servers: %w", err)
	}
	defer rows.Close()

	var out []*hangfire.ServerDescriptor
	for rows.Next() {
		var (
			d         hangfire.ServerDescriptor
			id        string
			heartbeat *time.Time
		)
		if err := rows.Scan(&id, &d.WorkerCount, &d.StartedAt, &heartbeat, &d.Queues); err != nil {
			return nil, fmt.Errorf("hangfire/postgres: scan server: %w", err)
		}
		d.ID = hangfire.ServerID(id)
		if heartbeat != nil {
			d.Heartbeat = heartbeat.UTC()
		}
		d.StartedAt = d.StartedAt.UTC()
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hangfire/postgres: iterate servers: %w", err)
	}
	return out, nil
}
