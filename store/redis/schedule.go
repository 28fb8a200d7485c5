package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	hangfire "github.com/stripeyjumper/Hangfire"
	"github.com/stripeyjumper/Hangfire/schedule"
)

// ScheduleJob registers a delayed job: a member of the schedule sorted set
// scored by its run-at time.
func (s *Store) ScheduleJob(ctx context.Context, jobID, queue string, at time.Time) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, jobKey(jobID), "Queue", queue)
	pipe.ZAdd(ctx, scheduleKey, goredis.Z{
		Score:  float64(at.UTC().Unix()),
		Member: jobID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hangfire/redis: schedule job: %w", err)
	}
	return nil
}

// PromoteDue implements schedule.Store. Each due member is moved out of the
// sorted set and onto its queue in one transaction.
func (s *Store) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, scheduleKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UTC().Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("hangfire/redis: due jobs: %w", err)
	}

	promoted := 0
	for _, id := range ids {
		queue, getErr := s.client.HGet(ctx, jobKey(id), "Queue").Result()
		if getErr != nil || queue == "" {
			queue = "default"
		}

		pipe := s.client.TxPipeline()
		pipe.ZRem(ctx, scheduleKey, id)
		pipe.RPush(ctx, queueKey(queue), id)
		if _, execErr := pipe.Exec(ctx); execErr != nil {
			return promoted, fmt.Errorf("hangfire/redis: promote job: %w", execErr)
		}
		promoted++
	}
	return promoted, nil
}

// AddRecurring registers a recurring entry, replacing any with the same
// name.
func (s *Store) AddRecurring(ctx context.Context, e *schedule.RecurringJob) error {
	nextRun := ""
	if !e.NextRun.IsZero() {
		nextRun = hangfire.FormatTimestamp(e.NextRun)
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, recurringSetKey, e.Name)
	pipe.HSet(ctx, recurringKey(e.Name),
		"Queue", e.Queue,
		"Cron", e.Spec,
		"NextRun", nextRun,
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hangfire/redis: add recurring: %w", err)
	}
	return nil
}

// ListRecurring implements schedule.Store, sorted by name.
func (s *Store) ListRecurring(ctx context.Context) ([]*schedule.RecurringJob, error) {
	names, err := s.client.SMembers(ctx, recurringSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hangfire/redis: list recurring: %w", err)
	}
	sort.Strings(names)

	out := make([]*schedule.RecurringJob, 0, len(names))
	for _, name := range names {
		vals, getErr := s.client.HGetAll(ctx, recurringKey(name)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		e := &schedule.RecurringJob{
			Name:  name,
			Queue: vals["Queue"],
			Spec:  vals["Cron"],
		}
		if v := vals["NextRun"]; v != "" {
			e.NextRun, _ = hangfire.ParseTimestamp(v) //nolint:errcheck // best-effort parse of our own writes
		}
		out = append(out, e)
	}
	return out, nil
}

// FireRecurring implements schedule.Store: the fired job lands on its queue
// and the entry's next-run time advances, atomically.
func (s *Store) FireRecurring(ctx context.Context, name, jobID, queue string, nextRun time.Time) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, jobKey(jobID), "Queue", queue)
	pipe.RPush(ctx, queueKey(queue), jobID)
	pipe.HSet(ctx, recurringKey(name), "NextRun", hangfire.FormatTimestamp(nextRun))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hangfire/redis: fire recurring: %w", err)
	}
	return nil
}
