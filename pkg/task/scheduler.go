// Package task runs the bot's periodic jobs and long-lived loops.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/small-frappuccino/plana/pkg/log"
)

// Job is one run of a task.
type Job func(ctx context.Context) error

// Cancel stops a scheduled job.
type Cancel func()

var ErrShutdown = errors.New("scheduler is shut down")

// Scheduler starts jobs only after MarkReady and stops them all on
// Shutdown.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	ready     chan struct{}
	readyOnce sync.Once

	mu     sync.Mutex
	closed bool
}

func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	return &Scheduler{
		ctx:    gctx,
		cancel: cancel,
		group:  group,
		ready:  make(chan struct{}),
	}
}

// MarkReady releases every job waiting to start.
func (s *Scheduler) MarkReady() {
	s.readyOnce.Do(func() {
		close(s.ready)
		log.ApplicationLogger().Info("Scheduler ready")
	})
}

// waitReady blocks until MarkReady or shutdown and reports whether to run.
func (s *Scheduler) waitReady(ctx context.Context) bool {
	select {
	case <-s.ready:
		return ctx.Err() == nil
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) spawn(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrShutdown
	}
	s.group.Go(fn)
	return nil
}

// Every runs job each interval once the scheduler is ready. A tick that
// arrives while the previous run is still going is skipped. Job errors are
// logged and do not stop the schedule.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) (Cancel, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("job %s: interval must be positive", name)
	}
	ctx, cancel := context.WithCancel(s.ctx)
	var running atomic.Bool

	err := s.spawn(func() error {
		defer cancel()
		if !s.waitReady(ctx) {
			return nil
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var runs sync.WaitGroup
		defer runs.Wait()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if !running.CompareAndSwap(false, true) {
					log.ApplicationLogger().Debug("Skipping tick of busy job", "job", name)
					continue
				}
				runs.Add(1)
				go func() {
					defer runs.Done()
					defer running.Store(false)
					s.run(ctx, name, job)
				}()
			}
		}
	})
	if err != nil {
		cancel()
		return nil, err
	}
	return Cancel(cancel), nil
}

// Go runs job once, after the scheduler is ready, until it returns or the
// scheduler shuts down.
func (s *Scheduler) Go(name string, job Job) error {
	return s.spawn(func() error {
		if !s.waitReady(s.ctx) {
			return nil
		}
		s.run(s.ctx, name, job)
		return nil
	})
}

// run executes one job run and contains its failures.
func (s *Scheduler) run(ctx context.Context, name string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.ErrorLoggerRaw().Error("Job panicked", "job", name, "panic", r)
		}
	}()
	start := time.Now()
	if err := job(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.ApplicationLogger().Warn("Job failed", "job", name, "error", err, "duration", time.Since(start))
		return
	}
	log.ApplicationLogger().Debug("Job finished", "job", name, "duration", time.Since(start))
}

// Shutdown cancels every job and waits for them to return or for ctx.
// Later calls to Every and Go fail with ErrShutdown.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan error, 1)
	go func() { done <- s.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("wait for jobs: %w", ctx.Err())
	}
}
