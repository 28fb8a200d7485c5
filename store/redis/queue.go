package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	hangfire "github.com/stripeyjumper/Hangfire"
	"github.com/stripeyjumper/Hangfire/job"
)

// EnqueueJob makes a job immediately fetchable from the queue.
func (s *Store) EnqueueJob(ctx context.Context, jobID, queue string) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, jobKey(jobID), "Queue", queue)
	pipe.RPush(ctx, queueKey(queue), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hangfire/redis: enqueue job: %w", err)
	}
	return nil
}

// FetchJob implements worker.Fetcher. The claim is a single LMOVE from the
// pending list to the dequeued list, so the job is never invisible: a crash
// between claim and ack leaves it on the dequeued list for the watcher.
func (s *Store) FetchJob(ctx context.Context, queues []string) (*job.Job, error) {
	for _, q := range queues {
		id, err := s.client.LMove(ctx, queueKey(q), dequeuedKey(q), "LEFT", "RIGHT").Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("hangfire/redis: fetch job: %w", err)
		}

		now := time.Now().UTC()
		if err := s.client.HSet(ctx, jobKey(id),
			"Queue", q,
			"Fetched", hangfire.FormatTimestamp(now),
		).Err(); err != nil {
			return nil, fmt.Errorf("hangfire/redis: mark fetched: %w", err)
		}
		return &job.Job{ID: id, Queue: q, FetchedAt: now}, nil
	}
	return nil, nil
}

// AckJob implements worker.Fetcher.
func (s *Store) AckJob(ctx context.Context, j *job.Job) error {
	pipe := s.client.TxPipeline()
	pipe.LRem(ctx, dequeuedKey(j.Queue), 1, j.ID)
	pipe.Del(ctx, jobKey(j.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hangfire/redis: ack job: %w", err)
	}
	return nil
}

// RequeueOrphans implements watcher.Store. Claims without a Fetched
// timestamp are in the middle of being fetched and are left alone.
func (s *Store) RequeueOrphans(ctx context.Context, queue string, cutoff time.Time) (int, error) {
	ids, err := s.client.LRange(ctx, dequeuedKey(queue), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("hangfire/redis: list dequeued: %w", err)
	}

	requeued := 0
	for _, id := range ids {
		raw, getErr := s.client.HGet(ctx, jobKey(id), "Fetched").Result()
		if errors.Is(getErr, goredis.Nil) {
			continue
		}
		if getErr != nil {
			return requeued, fmt.Errorf("hangfire/redis: fetched timestamp: %w", getErr)
		}
		fetched, parseErr := hangfire.ParseTimestamp(raw)
		if parseErr != nil || !fetched.Before(cutoff) {
			continue
		}

		pipe := s.client.TxPipeline()
		pipe.LRem(ctx, dequeuedKey(queue), 1, id)
		pipe.RPush(ctx, queueKey(queue), id)
		pipe.HDel(ctx, jobKey(id), "Fetched")
		if _, execErr := pipe.Exec(ctx); execErr != nil {
			return requeued, fmt.Errorf("hangfire/redis: requeue orphan: %w", execErr)
		}
		requeued++
	}
	return requeued, nil
}
