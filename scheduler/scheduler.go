// Package scheduler implements the cooperative, single-goroutine task queue
// the dispatch engine assumes: a "post(task)" surface offering two priority
// bands, with a guarantee that tasks run serially on one goroutine.
//
// This is a deliberate generalization away from a worker pool. A pool
// spawns a goroutine per task to parallelize execution across workers;
// here, Run drains both bands on a single goroutine, so posted tasks are
// never executed concurrently with each other. Posting from other
// goroutines is the only supported way to hand work to that loop.
package scheduler

import (
	"context"
	"sync"

	"github.com/ygrebnov/medley/metrics"
)

// Priority selects which band a task is posted to. High-priority tasks are
// always drained ahead of default-priority ones.
type Priority int

const (
	// PriorityDefault is the low/idle band: relay hand-offs requested via
	// the idle-relay flag, and other deferrable continuations.
	PriorityDefault Priority = iota
	// PriorityHigh is reserved for work that must preempt idle work:
	// auto-split next-chunk requests and cancellation terminal frames.
	PriorityHigh
)

// Task is a unit of work posted to the Scheduler. ctx is the Scheduler's
// run context, cancelled when Run returns.
type Task func(ctx context.Context)

// Scheduler is a cooperative, two-priority-band task queue drained by a
// single goroutine via Run. It is safe to Post from any goroutine.
type Scheduler struct {
	high    chan Task
	low     chan Task
	metrics metrics.Provider

	closeOnce sync.Once
	closed    chan struct{}
}

// New constructs a Scheduler. It does not start running until Run is called.
func New(opts ...Option) *Scheduler {
	co := options{highBuffer: 256, defaultBuffer: 256, metrics: metrics.NewNoopProvider()}
	for _, opt := range opts {
		opt(&co)
	}

	return &Scheduler{
		high:    make(chan Task, co.highBuffer),
		low:     make(chan Task, co.defaultBuffer),
		metrics: co.metrics,
		closed:  make(chan struct{}),
	}
}

// Run drains both priority bands on the calling goroutine until ctx is
// cancelled or Close is called. High-priority tasks are always preferred
// over default-priority ones when both are ready.
func (s *Scheduler) Run(ctx context.Context) {
	inflight := s.metrics.UpDownCounter("scheduler_tasks_inflight")
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case t := <-s.high:
			s.run(ctx, t, inflight)
		default:
			select {
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			case t := <-s.high:
				s.run(ctx, t, inflight)
			case t := <-s.low:
				s.run(ctx, t, inflight)
			}
		}
	}
}

func (s *Scheduler) run(ctx context.Context, t Task, inflight metrics.UpDownCounter) {
	inflight.Add(1)
	defer inflight.Add(-1)
	defer func() {
		if recover() != nil {
			s.metrics.Counter("scheduler_task_panics").Add(1)
		}
	}()
	t(ctx)
}

// Step runs at most one queued task (high priority first) without blocking
// and reports whether anything ran. It exists for deterministic,
// sleep-free tests: drive Step/RunUntilIdle between simulated provider
// emissions instead of racing a background Run goroutine.
func (s *Scheduler) Step(ctx context.Context) bool {
	select {
	case t := <-s.high:
		s.run(ctx, t, s.metrics.UpDownCounter("scheduler_tasks_inflight"))
		return true
	default:
	}
	select {
	case t := <-s.low:
		s.run(ctx, t, s.metrics.UpDownCounter("scheduler_tasks_inflight"))
		return true
	default:
	}
	return false
}

// RunUntilIdle steps the scheduler until both bands are empty.
func (s *Scheduler) RunUntilIdle(ctx context.Context) {
	for s.Step(ctx) {
	}
}

// PostHigh enqueues a task on the high-priority band. It does not block:
// a full buffer returns ErrSchedulerFull.
func (s *Scheduler) PostHigh(t Task) error {
	return s.post(s.high, t)
}

// PostDefault enqueues a task on the default-priority band. It does not
// block: a full buffer returns ErrSchedulerFull.
func (s *Scheduler) PostDefault(t Task) error {
	return s.post(s.low, t)
}

func (s *Scheduler) post(ch chan Task, t Task) error {
	select {
	case <-s.closed:
		return ErrSchedulerClosed
	default:
	}

	select {
	case ch <- t:
		return nil
	default:
		return ErrSchedulerFull
	}
}

// Close stops Run and causes subsequent Post calls to fail. Close is safe
// to call more than once and from any goroutine.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}
