package unit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunnerStartStop(t *testing.T) {
	var (
		started  atomic.Bool
		returned atomic.Bool
	)
	r := NewRunner("test", func(ctx context.Context) {
		started.Store(true)
		<-ctx.Done()
		returned.Store(true)
	}, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for !started.Load() {
		if time.Now().After(deadline) {
			t.Fatal("run function never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Stop joins the goroutine, so the body must have returned by now.
	if !returned.Load() {
		t.Error("Stop returned before the run function did")
	}
}

func TestRunnerStartIsIdempotent(t *testing.T) {
	var starts atomic.Int32
	r := NewRunner("test", func(ctx context.Context) {
		starts.Add(1)
		<-ctx.Done()
	}, nil)

	for range 3 {
		if err := r.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if got := starts.Load(); got != 1 {
		t.Errorf("run function started %d times, want 1", got)
	}
}

func TestRunnerStopBeforeStart(t *testing.T) {
	r := NewRunner("test", func(ctx context.Context) {
		t.Error("run function must not execute")
	}, nil)

	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("stop before start: %v", err)
	}
}

func TestRunnerRestart(t *testing.T) {
	var runs atomic.Int32
	r := NewRunner("test", func(ctx context.Context) {
		runs.Add(1)
		<-ctx.Done()
	}, nil)

	for range 2 {
		if err := r.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
		if err := r.Stop(context.Background()); err != nil {
			t.Fatalf("stop: %v", err)
		}
	}

	if got := runs.Load(); got != 2 {
		t.Errorf("run function executed %d times, want 2", got)
	}
}
