package schedule_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stripeyjumper/Hangfire/schedule"
	"github.com/stripeyjumper/Hangfire/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
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

func TestParseSpec(t *testing.T) {
	for _, spec := range []string{"* * * * *", "0 12 * * MON", "@every 30s", "@hourly"} {
		if _, err := schedule.ParseSpec(spec); err != nil {
			t.Errorf("ParseSpec(%q): %v", spec, err)
		}
	}
	for _, spec := range []string{"", "not cron", "* * * *", "61 * * * *"} {
		if _, err := schedule.ParseSpec(spec); err == nil {
			t.Errorf("ParseSpec(%q) accepted invalid spec", spec)
		}
	}
}

func TestPollerPromotesDueJobs(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	if err := st.ScheduleJob(ctx, "due", "default", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := st.ScheduleJob(ctx, "future", "default", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	p := schedule.NewPoller(st, 10*time.Millisecond, discardLogger())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop(ctx) //nolint:errcheck

	waitFor(t, 2*time.Second, func() bool {
		j, err := st.FetchJob(ctx, []string{"default"})
		return err == nil && j != nil && j.ID == "due"
	}, "due job promoted")

	// The future job stays out of the queue.
	if j, err := st.FetchJob(ctx, []string{"default"}); err != nil || j != nil {
		t.Errorf("FetchJob = (%v, %v), want (nil, nil)", j, err)
	}
}

func TestPollerFiresRecurringEntry(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	// Zero NextRun means the entry has never fired and is due now.
	if err := st.AddRecurring(ctx, &schedule.RecurringJob{
		Name:  "cleanup",
		Queue: "default",
		Spec:  "@every 1h",
	}); err != nil {
		t.Fatalf("add recurring: %v", err)
	}

	p := schedule.NewPoller(st, 10*time.Millisecond, discardLogger())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop(ctx) //nolint:errcheck

	waitFor(t, 2*time.Second, func() bool {
		j, err := st.FetchJob(ctx, []string{"default"})
		return err == nil && j != nil && strings.HasPrefix(j.ID, "cleanup:")
	}, "recurring entry fired")

	// The next-run advance keeps the entry from firing again this hour.
	entries, err := st.ListRecurring(ctx)
	if err != nil {
		t.Fatalf("list recurring: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if !entries[0].NextRun.After(time.Now()) {
		t.Errorf("NextRun = %v, want in the future", entries[0].NextRun)
	}
}

func TestPollerSkipsEntryNotYetDue(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	if err := st.AddRecurring(ctx, &schedule.RecurringJob{
		Name:    "nightly",
		Queue:   "default",
		Spec:    "@daily",
		NextRun: time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("add recurring: %v", err)
	}

	p := schedule.NewPoller(st, 10*time.Millisecond, discardLogger())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if j, err := st.FetchJob(ctx, []string{"default"}); err != nil || j != nil {
		t.Errorf("entry fired early: FetchJob = (%v, %v)", j, err)
	}
}

func TestPollerInvalidSpecIsContained(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	if err := st.AddRecurring(ctx, &schedule.RecurringJob{
		Name:  "broken",
		Queue: "default",
		Spec:  "not cron",
	}); err != nil {
		t.Fatalf("add recurring: %v", err)
	}
	// A valid entry alongside the broken one still fires.
	if err := st.AddRecurring(ctx, &schedule.RecurringJob{
		Name:  "working",
		Queue: "default",
		Spec:  "@every 1h",
	}); err != nil {
		t.Fatalf("add recurring: %v", err)
	}

	p := schedule.NewPoller(st, 10*time.Millisecond, discardLogger())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop(ctx) //nolint:errcheck

	waitFor(t, 2*time.Second, func() bool {
		j, err := st.FetchJob(ctx, []string{"default"})
		return err == nil && j != nil && strings.HasPrefix(j.ID, "working:")
	}, "valid entry fired despite broken sibling")
}
