package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	hangfire "github.com/stripeyjumper/Hangfire"
)

// AnnounceServer implements hangfire.Storage. Membership, descriptor and
// queue list are written in one transaction; other members either see the
// fully announced server or nothing.
func (s *Store) AnnounceServer(ctx context.Context, a *hangfire.ServerAnnouncement) error {
	id := a.ID.String()
	qKey := serverQueuesKey(id)

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, serversKey, id)
	pipe.HSet(ctx, serverKey(id),
		"WorkerCount", strconv.Itoa(a.WorkerCount),
		"StartedAt", hangfire.FormatTimestamp(a.StartedAt),
	)
	pipe.Del(ctx, qKey)
	for _, q := range a.Queues {
		pipe.RPush(ctx, qKey, q)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hangfire/redis: announce server: %w", err)
	}
	return nil
}

// HeartbeatServer implements hangfire.Storage.
func (s *Store) HeartbeatServer(ctx context.Context, id hangfire.ServerID, at time.Time) error {
	key := serverKey(id.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("hangfire/redis: heartbeat exists: %w", err)
	}
	if exists == 0 {
		return hangfire.ErrServerNotFound
	}

	if err := s.client.HSet(ctx, key,
		"Heartbeat", hangfire.FormatTimestamp(at),
	).Err(); err != nil {
		return fmt.Errorf("hangfire/redis: heartbeat server: %w", err)
	}
	return nil
}

// RemoveServer implements hangfire.Storage. SREM and DEL are no-ops on
// missing keys, so removing an unregistered identity succeeds silently.
func (s *Store) RemoveServer(ctx context.Context, id hangfire.ServerID) error {
	sid := id.String()

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, serversKey, sid)
	pipe.Del(ctx, serverKey(sid), serverQueuesKey(sid))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hangfire/redis: remove server: %w", err)
	}
	return nil
}

// Servers implements hangfire.Storage, sorted by identity. Identities whose
// descriptor has vanished mid-scan are skipped.
func (s *Store) Servers(ctx context.Context) ([]*hangfire.ServerDescriptor, error) {
	ids, err := s.client.SMembers(ctx, serversKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hangfire/redis: list servers: %w", err)
	}
	sort.Strings(ids)

	out := make([]*hangfire.ServerDescriptor, 0, len(ids))
	for _, id := range ids {
		vals, getErr := s.client.HGetAll(ctx, serverKey(id)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		queues, qErr := s.client.LRange(ctx, serverQueuesKey(id), 0, -1).Result()
		if qErr != nil {
			return nil, fmt.Errorf("hangfire/redis: server queues: %w", qErr)
		}

		d := &hangfire.ServerDescriptor{
			ID:     hangfire.ServerID(id),
			Queues: queues,
		}
		d.WorkerCount, _ = strconv.Atoi(vals["WorkerCount"]) //nolint:errcheck // best-effort parse of our own writes
		if v := vals["StartedAt"]; v != "" {
			d.StartedAt, _ = hangfire.ParseTimestamp(v) //nolint:errcheck
		}
		if v := vals["Heartbeat"]; v != "" {
			d.Heartbeat, _ = hangfire.ParseTimestamp(v) //nolint:errcheck
		}
		out = append(out, d)
	}
	return out, nil
}
