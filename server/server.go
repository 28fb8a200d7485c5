package server

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	hangfire "github.com/stripeyjumper/Hangfire"
	"github.com/stripeyjumper/Hangfire/schedule"
	"github.com/stripeyjumper/Hangfire/unit"
	"github.com/stripeyjumper/Hangfire/watcher"
	"github.com/stripeyjumper/Hangfire/watchdog"
	"github.com/stripeyjumper/Hangfire/worker"
)

// DefaultHeartbeatInterval is the period of the liveness heartbeat. It is
// independent of, and normally much shorter than, the poll interval.
const DefaultHeartbeatInterval = 5 * time.Second

// State is the lifecycle state of a Server. It only moves forward:
// Created → Running → Stopping → Stopped. There is no restart.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Server is the lifecycle coordinator for one cluster member. New starts it
// immediately; Stop (or Close) tears it down and blocks until the control
// goroutine has exited.
type Server struct {
	storage   hangfire.Storage
	sctx      hangfire.ServerContext
	logger    *slog.Logger
	activator hangfire.Activator

	heartbeatInterval time.Duration
	units             []unit.Unit

	// Knobs forwarded into the default units.
	processor    worker.Processor
	poolOpts     []worker.PoolOption
	watcherOpts  []watcher.Option
	watchdogOpts []watchdog.Option

	state    atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithHeartbeatInterval overrides the heartbeat period. Values of zero or
// less are ignored.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeatInterval = d
		}
	}
}

// WithActivator sets the execution-context activator forwarded to the
// worker pool. Defaults to the pass-through activator.
func WithActivator(a hangfire.Activator) Option {
	return func(s *Server) { s.activator = a }
}

// WithProcessor sets the processor the worker pool hands claims to.
func WithProcessor(p worker.Processor) Option {
	return func(s *Server) { s.processor = p }
}

// WithPoolOptions appends options for the default worker pool.
func WithPoolOptions(opts ...worker.PoolOption) Option {
	return func(s *Server) { s.poolOpts = append(s.poolOpts, opts...) }
}

// WithWatcherOptions appends options for the default dequeued-jobs watcher.
func WithWatcherOptions(opts ...watcher.Option) Option {
	return func(s *Server) { s.watcherOpts = append(s.watcherOpts, opts...) }
}

// WithWatchdogOptions appends options for the default server watchdog.
func WithWatchdogOptions(opts ...watchdog.Option) Option {
	return func(s *Server) { s.watchdogOpts = append(s.watchdogOpts, opts...) }
}

// WithUnits replaces the default managed units entirely. Units are started
// in the given order and stopped in reverse.
func WithUnits(units ...unit.Unit) Option {
	return func(s *Server) { s.units = units }
}

// New validates the configuration and starts the coordinator. The control
// goroutine is spawned before New returns; New never blocks waiting for
// registration to complete. Configuration errors are the only errors a
// caller sees — everything after construction surfaces through logs and
// through the absence of a fresh heartbeat.
func New(
	storage hangfire.Storage,
	host string,
	workerCount int,
	queues []string,
	pollInterval time.Duration,
	opts ...Option,
) (*Server, error) {
	if storage == nil {
		return nil, hangfire.ErrNoStorage
	}
	if len(queues) == 0 {
		return nil, hangfire.ErrNoQueues
	}
	if pollInterval < 0 {
		return nil, hangfire.ErrNegativePollInterval
	}
	if workerCount <= 0 {
		return nil, hangfire.ErrInvalidWorkerCount
	}

	s := &Server{
		storage:           storage,
		logger:            slog.Default(),
		activator:         hangfire.DefaultActivator(),
		heartbeatInterval: DefaultHeartbeatInterval,
		stopCh:            make(chan struct{}),
		done:              make(chan struct{}),
	}
	s.sctx = hangfire.ServerContext{
		ID:           hangfire.NewServerID(host),
		Queues:       append([]string(nil), queues...),
		WorkerCount:  workerCount,
		PollInterval: pollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.units == nil {
		units, err := s.defaultUnits()
		if err != nil {
			return nil, err
		}
		s.units = units
	}

	s.state.Store(int32(StateRunning))
	go s.run()

	return s, nil
}

// ID returns the server's cluster identity.
func (s *Server) ID() hangfire.ServerID { return s.sctx.ID }

// State returns the current lifecycle state.
func (s *Server) State() State { return State(s.state.Load()) }

// Context returns a copy of the immutable execution context.
func (s *Server) Context() hangfire.ServerContext {
	sctx := s.sctx
	sctx.Queues = append([]string(nil), s.sctx.Queues...)
	return sctx
}

// Stop requests teardown and blocks until the control goroutine has exited,
// so a nil return guarantees the units were stopped and the server
// deregistered — unless a fault occurred, which the goroutine has logged.
// The context only bounds how long the caller waits, not the teardown
// itself. Stop is idempotent.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
		close(s.stopCh)
	})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements io.Closer. It is Stop without a deadline.
func (s *Server) Close() error {
	return s.Stop(context.Background())
}

// Remove deletes every registry trace of the given identity — membership
// set entry, descriptor and queue list — in one atomic transaction, exactly
// as a clean shutdown would. Removing an identity that was never registered
// is a no-op. It needs no live Server, so reaper tooling can clean up after
// a crashed process.
func Remove(ctx context.Context, storage hangfire.Storage, id hangfire.ServerID) error {
	if storage == nil {
		return hangfire.ErrNoStorage
	}
	return storage.RemoveServer(ctx, id)
}

// defaultUnits builds the four managed units from the storage backend,
// which must implement each collaborator interface.
func (s *Server) defaultUnits() ([]unit.Unit, error) {
	fetcher, okF := s.storage.(worker.Fetcher)
	schedStore, okS := s.storage.(schedule.Store)
	watchStore, okW := s.storage.(watcher.Store)
	if !okF || !okS || !okW {
		return nil, hangfire.ErrIncompleteStorage
	}

	poolOpts := append([]worker.PoolOption{
		worker.WithConcurrency(s.sctx.WorkerCount),
		worker.WithQueues(s.sctx.Queues),
		worker.WithActivator(s.activator),
	}, s.poolOpts...)

	return []unit.Unit{
		worker.NewPool(fetcher, s.processor, s.logger, poolOpts...),
		schedule.NewPoller(schedStore, s.sctx.PollInterval, s.logger),
		watcher.New(watchStore, s.sctx.Queues, s.logger, s.watcherOpts...),
		watchdog.New(s.storage, s.sctx.ID, s.logger, s.watchdogOpts...),
	}, nil
}

// run is the control goroutine. The deferred recover is the supervisor
// boundary: no fault below it may reach the hosting process.
func (s *Server) run() {
	defer close(s.done)
	defer s.state.Store(int32(StateStopped))
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("server control goroutine panicked",
				slog.String("server_id", s.sctx.ID.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	if err := s.serve(); err != nil {
		s.logger.Error("server terminated",
			slog.String("server_id", s.sctx.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// serve sequences the protocol. Announcement strictly precedes unit
// startup, startup strictly precedes the first heartbeat, and every unit
// has confirmed release before deregistration is attempted.
func (s *Server) serve() error {
	ctx := context.Background()

	ann := &hangfire.ServerAnnouncement{
		ID:          s.sctx.ID,
		WorkerCount: s.sctx.WorkerCount,
		Queues:      s.sctx.Queues,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.storage.AnnounceServer(ctx, ann); err != nil {
		return fmt.Errorf("announce server: %w", err)
	}
	s.logger.Info("server announced",
		slog.String("server_id", s.sctx.ID.String()),
		slog.Int("worker_count", s.sctx.WorkerCount),
		slog.Any("queues", s.sctx.Queues),
	)

	var started []unit.Unit
	for _, u := range s.units {
		if err := u.Start(ctx); err != nil {
			if stopErr := stopUnits(ctx, started); stopErr != nil {
				s.logger.Error("stopping units after failed start",
					slog.String("error", stopErr.Error()))
			}
			return fmt.Errorf("start unit: %w", err)
		}
		started = append(started, u)
	}

	if err := s.heartbeatLoop(ctx); err != nil {
		if stopErr := stopUnits(ctx, started); stopErr != nil {
			s.logger.Error("stopping units after heartbeat failure",
				slog.String("error", stopErr.Error()))
		}
		return err
	}

	if err := stopUnits(ctx, started); err != nil {
		return err
	}

	if err := s.storage.RemoveServer(ctx, s.sctx.ID); err != nil {
		return fmt.Errorf("deregister server: %w", err)
	}
	s.logger.Info("server deregistered",
		slog.String("server_id", s.sctx.ID.String()))
	return nil
}

// heartbeatLoop writes a heartbeat, then waits for the next period or the
// stop signal, whichever comes first. A nil return means stop was
// requested.
func (s *Server) heartbeatLoop(ctx context.Context) error {
	for {
		if err := s.storage.HeartbeatServer(ctx, s.sctx.ID, time.Now().UTC()); err != nil {
			return fmt.Errorf("heartbeat: %w", err)
		}

		select {
		case <-s.stopCh:
			return nil
		case <-time.After(s.heartbeatInterval):
		}
	}
}

// stopUnits stops units in exact reverse order of start, waiting for each
// to release its resources. The first Stop error aborts the remaining
// stops.
func stopUnits(ctx context.Context, units []unit.Unit) error {
	for i := len(units) - 1; i >= 0; i-- {
		if err := units[i].Stop(ctx); err != nil {
			return fmt.Errorf("stop unit: %w", err)
		}
	}
	return nil
}
