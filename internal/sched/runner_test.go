package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/strand/internal/testutil"
)

func TestNewRunnerValidation(t *testing.T) {
	testutil.MustPanic(t, func() { NewRunner(New(), 0) })
}

func TestRunnerCrossGoroutinePosting(t *testing.T) {
	s := New(WithDebugChecks(true))
	r := NewRunner(s, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ran atomic.Int64
	queueCh := make(chan *TaskQueue, 1)
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, func(s *Scheduler) {
			queueCh <- s.CreateTaskQueue(NewSpec("worker"))
		})
	}()
	q := <-queueCh

	const producers, perProducer = 4, 50
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < perProducer; n++ {
				if !q.PostTask(func() { ran.Add(1) }) {
					t.Error("post rejected while the runner is live")
					return
				}
			}
		}()
	}
	wg.Wait()
	q.PostDelayedTask(func() { ran.Add(1) }, 5*time.Millisecond)

	const want = producers*perProducer + 1
	testutil.Eventually(t, 5*time.Second, func() bool {
		return ran.Load() == want
	}, "runner did not execute all posted tasks")

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
	if s.State() != StateDestroyed {
		t.Fatalf("scheduler state = %v after Run, want destroyed", s.State())
	}
}

func TestRunnerHonorsContextDeadline(t *testing.T) {
	s := New()
	r := NewRunner(s, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := r.Run(ctx, func(s *Scheduler) {
		q := s.CreateTaskQueue(NewSpec("idle"))
		// Far-future work keeps the loop blocking on its timer.
		q.PostDelayedTask(func() {}, time.Hour)
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned %v, want context.DeadlineExceeded", err)
	}
}

func TestRunnerDrainsBacklogInBatches(t *testing.T) {
	s := New()
	r := NewRunner(s, 2)

	ctx, cancel := context.WithCancel(context.Background())
	var got []int
	err := r.Run(ctx, func(s *Scheduler) {
		q := s.CreateTaskQueue(NewSpec("q"))
		for i := 0; i < 7; i++ {
			i := i
			q.PostTask(func() { got = append(got, i) })
		}
		q.PostTask(func() { cancel() })
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
	if len(got) != 7 {
		t.Fatalf("ran %d tasks before cancellation, want 7", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("execution order %v, want ascending across batches", got)
		}
	}
}
