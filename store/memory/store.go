// Package memory is a fully in-memory storage backend. Safe for concurrent
// access. Intended for unit testing and development; nothing survives the
// process.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	hangfire "github.com/stripeyjumper/Hangfire"
	"github.com/stripeyjumper/Hangfire/job"
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

type serverRecord struct {
	workerCount int
	queues      []string
	startedAt   time.Time
	heartbeat   time.Time
}

type jobRecord struct {
	queue       string
	fetchedAt   time.Time // zero: not checked out
	scheduledAt time.Time // zero: immediately fetchable
}

// Store is the in-memory backend. The zero value is not usable; create one
// with New.
type Store struct {
	mu        sync.Mutex
	servers   map[hangfire.ServerID]*serverRecord
	pending   map[string][]string // queue -> pending job IDs, FIFO
	dequeued  map[string][]string // queue -> checked-out job IDs
	jobs      map[string]*jobRecord
	recurring map[string]*schedule.RecurringJob
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		servers:   make(map[hangfire.ServerID]*serverRecord),
		pending:   make(map[string][]string),
		dequeued:  make(map[string][]string),
		jobs:      make(map[string]*jobRecord),
		recurring: make(map[string]*schedule.RecurringJob),
	}
}

// ── Registry ──

// AnnounceServer implements hangfire.Storage.
func (m *Store) AnnounceServer(_ context.Context, a *hangfire.ServerAnnouncement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.servers[a.ID] = &serverRecord{
		workerCount: a.WorkerCount,
		queues:      append([]string(nil), a.Queues...),
		startedAt:   a.StartedAt.UTC(),
	}
	return nil
}

// HeartbeatServer implements hangfire.Storage.
func (m *Store) HeartbeatServer(_ context.Context, id hangfire.ServerID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.servers[id]
	if !ok {
		return hangfire.ErrServerNotFound
	}
	rec.heartbeat = at.UTC()
	return nil
}

// RemoveServer implements hangfire.Storage. Unknown identities are a no-op.
func (m *Store) RemoveServer(_ context.Context, id hangfire.ServerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.servers, id)
	return nil
}

// Servers implements hangfire.Storage, sorted by identity.
func (m *Store) Servers(_ context.Context) ([]*hangfire.ServerDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*hangfire.ServerDescriptor, 0, len(m.servers))
	for id, rec := range m.servers {
		out = append(out, &hangfire.ServerDescriptor{
			ID:          id,
			WorkerCount: rec.workerCount,
			Queues:      append([]string(nil), rec.queues...),
			StartedAt:   rec.startedAt,
			Heartbeat:   rec.heartbeat,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ── Queues ──

// EnqueueJob makes a job immediately fetchable from the queue.
func (m *Store) EnqueueJob(_ context.Context, jobID, queue string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobs[jobID] = &jobRecord{queue: queue}
	m.pending[queue] = append(m.pending[queue], jobID)
	return nil
}

// FetchJob implements worker.Fetcher: FIFO within a queue, queues tried in
// the order given.
func (m *Store) FetchJob(_ context.Context, queues []string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, q := range queues {
		ids := m.pending[q]
		if len(ids) == 0 {
			continue
		}
		id := ids[0]
		m.pending[q] = ids[1:]
		m.dequeued[q] = append(m.dequeued[q], id)

		rec, ok := m.jobs[id]
		if !ok {
			rec = &jobRecord{queue: q}
			m.jobs[id] = rec
		}
		rec.fetchedAt = now

		return &job.Job{ID: id, Queue: q, FetchedAt: now}, nil
	}
	return nil, nil
}

// AckJob implements worker.Fetcher.
func (m *Store) AckJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dequeued[j.Queue] = remove(m.dequeued[j.Queue], j.ID)
	delete(m.jobs, j.ID)
	return nil
}

// RequeueOrphans implements watcher.Store.
func (m *Store) RequeueOrphans(_ context.Context, queue string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []string
	requeued := 0
	for _, id := range m.dequeued[queue] {
		rec, ok := m.jobs[id]
		if ok && !rec.fetchedAt.IsZero() && rec.fetchedAt.Before(cutoff) {
			rec.fetchedAt = time.Time{}
			m.pending[queue] = append(m.pending[queue], id)
			requeued++
			continue
		}
		kept = append(kept, id)
	}
	m.dequeued[queue] = kept
	return requeued, nil
}

// ── Schedule ──

// ScheduleJob registers a delayed job, fetchable only after at.
func (m *Store) ScheduleJob(_ context.Context, jobID, queue string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobs[jobID] = &jobRecord{queue: queue, scheduledAt: at.UTC()}
	return nil
}

// PromoteDue implements schedule.Store.
func (m *Store) PromoteDue(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	promoted := 0
	for id, rec := range m.jobs {
		if rec.scheduledAt.IsZero() || rec.scheduledAt.After(now) {
			continue
		}
		rec.scheduledAt = time.Time{}
		m.pending[rec.queue] = append(m.pending[rec.queue], id)
		promoted++
	}
	return promoted, nil
}

// AddRecurring registers a recurring entry, replacing any with the same
// name.
func (m *Store) AddRecurring(_ context.Context, e *schedule.RecurringJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	m.recurring[e.Name] = &cp
	return nil
}

// ListRecurring implements schedule.Store, sorted by name.
func (m *Store) ListRecurring(_ context.Context) ([]*schedule.RecurringJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*schedule.RecurringJob, 0, len(m.recurring))
	for _, e := range m.recurring {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FireRecurring implements schedule.Store.
func (m *Store) FireRecurring(_ context.Context, name, jobID, queue string, nextRun time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobs[jobID] = &jobRecord{queue: queue}
	m.pending[queue] = append(m.pending[queue], jobID)
	if e, ok := m.recurring[name]; ok {
		e.NextRun = nextRun
	}
	return nil
}

func remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
