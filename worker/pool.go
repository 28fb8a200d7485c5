// Package worker implements the worker pool: a fixed number of goroutines
// that claim jobs from the server's queues and hand them to the host's
// processor through a middleware chain. The pool owns claiming and
// acknowledging only; what a job means is entirely the processor's concern.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	hangfire "github.com/stripeyjumper/Hangfire"
	"github.com/stripeyjumper/Hangfire/job"
	"github.com/stripeyjumper/Hangfire/middleware"
)

// Fetcher is the storage capability the pool consumes.
type Fetcher interface {
	// FetchJob atomically claims one job from the first non-empty queue,
	// recording the checkout so the watcher can recover it if this
	// process dies. It returns (nil, nil) when every queue is empty.
	FetchJob(ctx context.Context, queues []string) (*job.Job, error)

	// AckJob releases the claim after processing.
	AckJob(ctx context.Context, j *job.Job) error
}

// Processor executes one claimed job. Retry and failure policy live here,
// on the host side; the pool acks the claim whatever the outcome.
type Processor interface {
	Process(ctx context.Context, j *job.Job) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, j *job.Job) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, j *job.Job) error { return f(ctx, j) }

// Discard returns a processor that acknowledges every job without doing
// anything. It is the default when the host has not supplied one.
func Discard(logger *slog.Logger) Processor {
	return ProcessorFunc(func(_ context.Context, j *job.Job) error {
		logger.Debug("discarding job: no processor configured",
			slog.String("job_id", j.ID))
		return nil
	})
}

// Pool manages the worker goroutines.
type Pool struct {
	fetcher   Fetcher
	processor Processor
	activator hangfire.Activator
	chain     middleware.Middleware
	logger    *slog.Logger

	queues      []string
	concurrency int
	idleSleep   time.Duration
	limiter     *rate.Limiter

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of worker goroutines.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithQueues sets the queues the pool claims from, in priority order.
func WithQueues(queues []string) PoolOption {
	return func(p *Pool) { p.queues = queues }
}

// WithIdleSleep sets how long a worker sleeps after finding every queue
// empty or hitting a fetch error.
func WithIdleSleep(d time.Duration) PoolOption {
	return func(p *Pool) { p.idleSleep = d }
}

// WithFetchLimit caps the aggregate claim rate across all workers,
// protecting the registry store from a hot-spinning pool.
func WithFetchLimit(limit rate.Limit, burst int) PoolOption {
	return func(p *Pool) { p.limiter = rate.NewLimiter(limit, burst) }
}

// WithMiddleware sets the middleware applied around the processor,
// outermost first. The default chain is Logging and Recover.
func WithMiddleware(mws ...middleware.Middleware) PoolOption {
	return func(p *Pool) { p.chain = middleware.Chain(mws...) }
}

// WithActivator sets the execution-context activator.
func WithActivator(a hangfire.Activator) PoolOption {
	return func(p *Pool) { p.activator = a }
}

// NewPool creates a worker pool.
func NewPool(fetcher Fetcher, processor Processor, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		fetcher:     fetcher,
		processor:   processor,
		activator:   hangfire.DefaultActivator(),
		logger:      logger,
		queues:      []string{"default"},
		concurrency: 10,
		idleSleep:   time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.processor == nil {
		p.processor = Discard(logger)
	}
	if p.chain == nil {
		p.chain = middleware.Chain(
			middleware.Logging(logger),
			middleware.Recover(logger),
		)
	}
	return p
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.logger.Info("worker pool starting",
		slog.Int("concurrency", p.concurrency),
		slog.Any("queues", p.queues),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.claimLoop(ctx)
	}
	return nil
}

// Stop signals the workers and blocks until every claim loop has exited.
func (p *Pool) Stop(_ context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()

	p.logger.Info("worker pool stopped")
	return nil
}

func (p *Pool) claimLoop(ctx context.Context) {
	defer p.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
		}

		j, err := p.fetcher.FetchJob(ctx, p.queues)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("fetch error", slog.String("error", err.Error()))
			p.sleep(ctx)
			continue
		}
		if j == nil {
			p.sleep(ctx)
			continue
		}

		p.process(ctx, j)
	}
}

func (p *Pool) process(ctx context.Context, j *job.Job) {
	jctx := p.activator.Activate(ctx, j)

	err := p.chain(jctx, j, func(ctx context.Context) error {
		return p.processor.Process(ctx, j)
	})
	if err != nil {
		p.logger.Debug("processor returned error",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}

	// The ack must go through even when the pool is mid-shutdown,
	// otherwise a clean stop strands the claim until the watcher's
	// checkout timeout.
	ackCtx := context.WithoutCancel(ctx)
	if err := p.fetcher.AckJob(ackCtx, j); err != nil {
		p.logger.Error("ack error",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pool) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.idleSleep):
	}
}
