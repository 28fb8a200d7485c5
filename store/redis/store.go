// Package redis implements the storage backend against Redis, the
// contract-native registry: the key layout below is shared bit-for-bit with
// any external tooling that inspects or reclaims servers.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//
// Multi-key protocol steps (announce, deregister, claim moves) run inside
// MULTI/EXEC transactions via TxPipeline, so partial state is never
// observable by other cluster members.
package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	hangfire "github.com/stripeyjumper/Hangfire"
	"github.com/stripeyjumper/Hangfire/schedule"
	"github.com/stripeyjumper/Hangfire/watcher"
	"github.com/stripeyjumper/Hangfire/worker"
)

// Compile-time interface checks.
var (
	_ hangfire.Storage = (*Store)(nil)
	_ worker.Fetcher   = (*Store)(nil)
	_ schedule.Store   = (*Store)(nil)
	_ watcher.Store    = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is the Redis-backed storage.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
}

// New creates a Redis-backed store. The caller owns the client lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
