package hangfire

import (
	"context"
	"time"

	"github.com/stripeyjumper/Hangfire/job"
)

// ServerContext carries the facts about a server that its managed units
// need: who the server is, which queues it services, how many workers it
// runs and how often the schedule poller wakes. It is built once at server
// construction and never mutated afterwards.
type ServerContext struct {
	ID           ServerID
	Queues       []string
	WorkerCount  int
	PollInterval time.Duration
}

// Activator prepares the context a claimed job executes under. Hosts use it
// to inject per-execution dependencies (request scopes, tenancy, deadlines)
// without the pool knowing about them.
type Activator interface {
	Activate(ctx context.Context, j *job.Job) context.Context
}

// ActivatorFunc adapts a function to the Activator interface.
type ActivatorFunc func(ctx context.Context, j *job.Job) context.Context

// Activate implements Activator.
func (f ActivatorFunc) Activate(ctx context.Context, j *job.Job) context.Context {
	return f(ctx, j)
}

// DefaultActivator returns the pass-through activator used when the host
// does not supply one.
func DefaultActivator() Activator {
	return ActivatorFunc(func(ctx context.Context, _ *job.Job) context.Context {
		return ctx
	})
}
