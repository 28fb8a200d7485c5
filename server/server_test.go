package server_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	hangfire "github.com/stripeyjumper/Hangfire"
	"github.com/stripeyjumper/Hangfire/job"
	"github.com/stripeyjumper/Hangfire/server"
	"github.com/stripeyjumper/Hangfire/store/memory"
	"github.com/stripeyjumper/Hangfire/unit"
	"github.com/stripeyjumper/Hangfire/worker"
)

// eventLog records unit lifecycle events across goroutines.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeUnit implements unit.Unit and records start/stop order.
type fakeUnit struct {
	name     string
	log      *eventLog
	startErr error
	stopErr  error
	onStart  func()
}

func (u *fakeUnit) Start(_ context.Context) error {
	if u.onStart != nil {
		u.onStart()
	}
	u.log.add("start:" + u.name)
	return u.startErr
}

func (u *fakeUnit) Stop(_ context.Context) error {
	u.log.add("stop:" + u.name)
	return u.stopErr
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func descriptor(t *testing.T, st hangfire.Storage, id hangfire.ServerID) *hangfire.ServerDescriptor {
	t.Helper()
	servers, err := st.Servers(context.Background())
	if err != nil {
		t.Fatalf("list servers: %v", err)
	}
	for _, d := range servers {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func newTestServer(t *testing.T, st hangfire.Storage, log *eventLog, opts ...server.Option) *server.Server {
	t.Helper()
	units := []unit.Unit{
		&fakeUnit{name: "a", log: log},
		&fakeUnit{name: "b", log: log},
	}
	opts = append([]server.Option{
		server.WithUnits(units...),
		server.WithHeartbeatInterval(10 * time.Millisecond),
	}, opts...)

	srv, err := server.New(st, "testhost", 4, []string{"critical", "default"}, 50*time.Millisecond, opts...)
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}
	return srv
}

func TestNew_Validation(t *testing.T) {
	st := memory.New()

	cases := []struct {
		name    string
		storage hangfire.Storage
		queues  []string
		workers int
		poll    time.Duration
		want    error
	}{
		{"nil storage", nil, []string{"default"}, 1, time.Second, hangfire.ErrNoStorage},
		{"nil queues", st, nil, 1, time.Second, hangfire.ErrNoQueues},
		{"empty queues", st, []string{}, 1, time.Second, hangfire.ErrNoQueues},
		{"negative poll interval", st, []string{"default"}, 1, -time.Second, hangfire.ErrNegativePollInterval},
		{"zero worker count", st, []string{"default"}, 0, time.Second, hangfire.ErrInvalidWorkerCount},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := server.New(tc.storage, "testhost", tc.workers, tc.queues, tc.poll)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}

	// Failed construction must leave no trace in the registry.
	servers, err := st.Servers(context.Background())
	if err != nil {
		t.Fatalf("list servers: %v", err)
	}
	if len(servers) != 0 {
		t.Fatalf("expected no registry writes, found %d servers", len(servers))
	}
}

func TestNew_IncompleteStorage(t *testing.T) {
	// A registry-only storage cannot back the default units.
	type registryOnly struct{ hangfire.Storage }

	_, err := server.New(registryOnly{memory.New()}, "testhost", 1, []string{"default"}, 0)
	if !errors.Is(err, hangfire.ErrIncompleteStorage) {
		t.Fatalf("got %v, want ErrIncompleteStorage", err)
	}
}

func TestServer_AnnouncesOnConstruction(t *testing.T) {
	st := memory.New()
	log := &eventLog{}
	srv := newTestServer(t, st, log)
	defer srv.Close() //nolint:errcheck

	waitFor(t, time.Second, func() bool {
		return descriptor(t, st, srv.ID()) != nil
	}, "server announced")

	d := descriptor(t, st, srv.ID())
	if d.WorkerCount != 4 {
		t.Errorf("WorkerCount = %d, want 4", d.WorkerCount)
	}
	if len(d.Queues) != 2 || d.Queues[0] != "critical" || d.Queues[1] != "default" {
		t.Errorf("Queues = %v, want [critical default]", d.Queues)
	}
	if d.StartedAt.IsZero() {
		t.Error("StartedAt not set")
	}
	if got := srv.State(); got != server.StateRunning {
		t.Errorf("State = %v, want running", got)
	}
}

func TestServer_NoHeartbeatBeforeUnitsStart(t *testing.T) {
	st := memory.New()
	log := &eventLog{}

	var sawHeartbeat bool
	check := &fakeUnit{name: "check", log: log, onStart: func() {
		for _, d := range mustServers(t, st) {
			if !d.Heartbeat.IsZero() {
				sawHeartbeat = true
			}
		}
	}}

	srv, err := server.New(st, "testhost", 1, []string{"default"}, 0,
		server.WithUnits(check),
		server.WithHeartbeatInterval(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("construction error: %v", err)
	}
	defer srv.Close() //nolint:errcheck

	waitFor(t, time.Second, func() bool {
		d := descriptor(t, st, srv.ID())
		return d != nil && !d.Heartbeat.IsZero()
	}, "first heartbeat written")

	if sawHeartbeat {
		t.Error("heartbeat was written before unit startup completed")
	}
}

func TestServer_HeartbeatAdvances(t *testing.T) {
	st := memory.New()
	log := &eventLog{}
	srv := newTestServer(t, st, log)
	defer srv.Close() //nolint:errcheck

	waitFor(t, time.Second, func() bool {
		d := descriptor(t, st, srv.ID())
		return d != nil && !d.Heartbeat.IsZero()
	}, "first heartbeat")

	first := descriptor(t, st, srv.ID()).Heartbeat
	waitFor(t, time.Second, func() bool {
		return descriptor(t, st, srv.ID()).Heartbeat.After(first)
	}, "heartbeat advanced")
}

func TestServer_StopDeregistersAndReversesUnits(t *testing.T) {
	st := memory.New()
	log := &eventLog{}
	srv := newTestServer(t, st, log)

	waitFor(t, time.Second, func() bool {
		return descriptor(t, st, srv.ID()) != nil
	}, "server announced")

	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if d := descriptor(t, st, srv.ID()); d != nil {
		t.Error("server still registered after clean stop")
	}
	if got := srv.State(); got != server.StateStopped {
		t.Errorf("State = %v, want stopped", got)
	}

	want := []string{"start:a", "start:b", "stop:b", "stop:a"}
	got := log.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	// Stop is idempotent.
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestServer_UnitStopErrorSkipsDeregistration(t *testing.T) {
	st := memory.New()
	log := &eventLog{}
	units := []unit.Unit{
		&fakeUnit{name: "a", log: log},
		&fakeUnit{name: "b", log: log, stopErr: errors.New("release failed")},
	}

	srv, err := server.New(st, "testhost", 1, []string{"default"}, 0,
		server.WithUnits(units...),
		server.WithHeartbeatInterval(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("construction error: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return descriptor(t, st, srv.ID()) != nil
	}, "server announced")

	// Disposal still returns cleanly; the fault is contained and logged.
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// Unit b's failure aborted teardown: a was never stopped and the
	// descriptor was left behind for the watchdog.
	events := log.snapshot()
	if events[len(events)-1] != "stop:b" {
		t.Errorf("events = %v, want teardown aborted after stop:b", events)
	}
	if descriptor(t, st, srv.ID()) == nil {
		t.Error("descriptor removed despite aborted teardown")
	}
}

func TestServer_UnitStartErrorStopsStartedUnits(t *testing.T) {
	st := memory.New()
	log := &eventLog{}
	units := []unit.Unit{
		&fakeUnit{name: "a", log: log},
		&fakeUnit{name: "b", log: log, startErr: errors.New("acquire failed")},
	}

	srv, err := server.New(st, "testhost", 1, []string{"default"}, 0,
		server.WithUnits(units...),
	)
	if err != nil {
		t.Fatalf("construction error: %v", err)
	}

	// The control goroutine exits on its own.
	waitFor(t, time.Second, func() bool {
		return srv.State() == server.StateStopped
	}, "control goroutine exited")

	want := []string{"start:a", "start:b", "stop:a"}
	got := log.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestServer_ReclaimedIdentityTerminates(t *testing.T) {
	st := memory.New()
	log := &eventLog{}
	srv := newTestServer(t, st, log)

	waitFor(t, time.Second, func() bool {
		return descriptor(t, st, srv.ID()) != nil
	}, "server announced")

	// A reaper steals the identity out from under the server. The next
	// heartbeat fails and the control goroutine shuts itself down.
	if err := st.RemoveServer(context.Background(), srv.ID()); err != nil {
		t.Fatalf("remove: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return srv.State() == server.StateStopped
	}, "control goroutine exited after heartbeat failure")

	events := log.snapshot()
	if events[len(events)-1] != "stop:a" {
		t.Errorf("events = %v, want units stopped after heartbeat failure", events)
	}
}

func TestServer_ConcurrentServersKeepDistinctEntries(t *testing.T) {
	st := memory.New()

	one := newTestServer(t, st, &eventLog{})
	defer one.Close() //nolint:errcheck
	twoLog := &eventLog{}
	two, err := server.New(st, "otherhost", 2, []string{"default"}, 0,
		server.WithUnits(&fakeUnit{name: "x", log: twoLog}),
		server.WithHeartbeatInterval(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("construction error: %v", err)
	}
	defer two.Close() //nolint:errcheck

	if one.ID() == two.ID() {
		t.Fatalf("identical identities for distinct hosts: %s", one.ID())
	}

	waitFor(t, time.Second, func() bool {
		return len(mustServers(t, st)) == 2
	}, "both servers registered")

	if err := two.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	servers := mustServers(t, st)
	if len(servers) != 1 || servers[0].ID != one.ID() {
		t.Fatalf("registry = %v, want only %s", servers, one.ID())
	}
}

func TestServer_DefaultUnitsProcessJobs(t *testing.T) {
	st := memory.New()

	var processed sync.Map
	processor := worker.ProcessorFunc(func(_ context.Context, j *job.Job) error {
		processed.Store(j.ID, j.Queue)
		return nil
	})

	srv, err := server.New(st, "testhost", 2, []string{"default"}, 20*time.Millisecond,
		server.WithProcessor(processor),
		server.WithHeartbeatInterval(10*time.Millisecond),
		server.WithPoolOptions(worker.WithIdleSleep(10*time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("construction error: %v", err)
	}
	defer srv.Close() //nolint:errcheck

	if err := st.EnqueueJob(context.Background(), "job-1", "default"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// A delayed job already due gets promoted by the poller, then claimed.
	if err := st.ScheduleJob(context.Background(), "job-2", "default", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		_, ok1 := processed.Load("job-1")
		_, ok2 := processed.Load("job-2")
		return ok1 && ok2
	}, "both jobs processed")

	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if d := descriptor(t, st, srv.ID()); d != nil {
		t.Error("server still registered after stop")
	}
}

func TestRemove_UnknownIdentityIsNoop(t *testing.T) {
	st := memory.New()
	if err := server.Remove(context.Background(), st, hangfire.ServerID("ghost:123")); err != nil {
		t.Fatalf("remove unknown identity: %v", err)
	}
}

func mustServers(t *testing.T, st hangfire.Storage) []*hangfire.ServerDescriptor {
	t.Helper()
	servers, err := st.Servers(context.Background())
	if err != nil {
		t.Fatalf("list servers: %v", err)
	}
	return servers
}
