package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNothingRunsBeforeReady(t *testing.T) {
	s := NewScheduler()
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	var ticks, once atomic.Int32
	if _, err := s.Every("tick", 5*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Every: %v", err)
	}
	if err := s.Go("loop", func(context.Context) error {
		once.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Go: %v", err)
	}

	time.Sleep(40 * time.Millisecond)
	if ticks.Load() != 0 || once.Load() != 0 {
		t.Fatalf("jobs ran before ready: ticks=%d once=%d", ticks.Load(), once.Load())
	}

	s.MarkReady()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && (ticks.Load() < 2 || once.Load() != 1) {
		time.Sleep(5 * time.Millisecond)
	}
	if ticks.Load() < 2 || once.Load() != 1 {
		t.Fatalf("jobs did not run after ready: ticks=%d once=%d", ticks.Load(), once.Load())
	}
}

func TestBusyTicksAreSkipped(t *testing.T) {
	s := NewScheduler()
	s.MarkReady()

	var active, maxActive, runs atomic.Int32
	if _, err := s.Every("slow", 2*time.Millisecond, func(ctx context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		runs.Add(1)
		select {
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil
	}); err != nil {
		t.Fatalf("Every: %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if maxActive.Load() != 1 {
		t.Fatalf("runs overlapped: max active %d", maxActive.Load())
	}
	if runs.Load() == 0 {
		t.Fatalf("job never ran")
	}
}

func TestShutdownWaitsForJobs(t *testing.T) {
	s := NewScheduler()
	s.MarkReady()

	started := make(chan struct{})
	var exited atomic.Bool
	if err := s.Go("listen", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		exited.Store(true)
		return ctx.Err()
	}); err != nil {
		t.Fatalf("Go: %v", err)
	}
	<-started

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !exited.Load() {
		t.Fatalf("Shutdown returned before the job exited")
	}
	if err := s.Go("late", func(context.Context) error { return nil }); !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected ErrShutdown, got %v", err)
	}
}

func TestShutdownIsBounded(t *testing.T) {
	s := NewScheduler()
	s.MarkReady()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	started := make(chan struct{})
	if err := s.Go("stuck", func(context.Context) error {
		close(started)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("Go: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestJobFailuresDoNotStopSchedule(t *testing.T) {
	s := NewScheduler()
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	s.MarkReady()

	var runs atomic.Int32
	if _, err := s.Every("flaky", 2*time.Millisecond, func(context.Context) error {
		if runs.Add(1) == 1 {
			panic("boom")
		}
		return errors.New("backend down")
	}); err != nil {
		t.Fatalf("Every: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && runs.Load() < 3 {
		time.Sleep(2 * time.Millisecond)
	}
	if runs.Load() < 3 {
		t.Fatalf("schedule stopped after %d runs", runs.Load())
	}
}

func TestCancelStopsJob(t *testing.T) {
	s := NewScheduler()
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	s.MarkReady()

	var runs atomic.Int32
	cancel, err := s.Every("once", 2*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Every: %v", err)
	}
	for runs.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	time.Sleep(10 * time.Millisecond)
	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != after {
		t.Fatalf("job kept running after cancel")
	}
	if _, err := s.Every("bad", 0, nil); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}
