package sched

import (
	"context"
	"time"
)

// Runner is the default run-loop driver: it binds a scheduler to the calling
// goroutine, pumps work batches, and blocks between batches until the next
// wake-up time or a wake notification. Embedders with their own run loop
// (UI loops, IPC pumps) implement the same pattern against TakeTask and
// DelayTillNextTask directly.
type Runner struct {
	scheduler *Scheduler
	batchSize int
	wake      chan struct{}
}

// NewRunner creates a driver for s running batches of batchSize tasks.
// It installs itself as the scheduler's wake sink, so it must be created
// before any task is posted.
func NewRunner(s *Scheduler, batchSize int) *Runner {
	if batchSize < 1 {
		panic("sched: runner batch size must be at least 1")
	}
	r := &Runner{
		scheduler: s,
		batchSize: batchSize,
		wake:      make(chan struct{}, 1),
	}
	s.SetWakeSink(r)
	return r
}

// OnWakeUp implements WakeSink. Non-blocking and callable from any
// goroutine; the wake time itself is not needed because the run loop
// recomputes DelayTillNextTask after every wake.
func (r *Runner) OnWakeUp(time.Time) {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run binds the scheduler to the calling goroutine, calls setup to create
// queues and post initial work, then pumps tasks until ctx is canceled.
// The scheduler is shut down before Run returns.
func (r *Runner) Run(ctx context.Context, setup func(*Scheduler)) error {
	s := r.scheduler
	s.BindToCurrentGoroutine()
	s.CompleteInitialization()
	if setup != nil {
		setup(s)
	}
	defer s.Shutdown()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ran := s.RunBatch(r.batchSize)
		if ran == r.batchSize {
			// Batch exhausted with work likely remaining; yield back to
			// the loop so cancellation stays responsive.
			continue
		}

		delay, ok := s.DelayTillNextTask()
		if ok && delay == 0 {
			continue
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		if ok {
			timer = time.NewTimer(delay)
			timerC = timer.C
		}
		select {
		case <-r.wake:
		case <-timerC:
		case <-ctx.Done():
		}
		if timer != nil {
			timer.Stop()
		}
	}
}
