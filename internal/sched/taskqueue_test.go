package sched

import (
	"testing"
	"time"

	"github.com/Iron-Ham/strand/internal/testutil"
)

func TestPostTaskFIFO(t *testing.T) {
	s := newTestScheduler(t)
	q := s.CreateTaskQueue(NewSpec("fifo"))

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		if !q.PostTask(func() { got = append(got, i) }) {
			t.Fatalf("PostTask %d rejected", i)
		}
	}
	if ran := s.RunUntilIdle(); ran != 5 {
		t.Fatalf("RunUntilIdle ran %d tasks, want 5", ran)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("execution order %v, want ascending", got)
		}
	}
}

func TestPostOrderAcrossQueues(t *testing.T) {
	s := newTestScheduler(t)
	a := s.CreateTaskQueue(NewSpec("a"))
	b := s.CreateTaskQueue(NewSpec("b"))

	var got []string
	a.PostTask(func() { got = append(got, "a1") })
	b.PostTask(func() { got = append(got, "b1") })
	b.PostTask(func() { got = append(got, "b2") })
	a.PostTask(func() { got = append(got, "a2") })
	s.RunUntilIdle()

	want := []string{"a1", "b1", "b2", "a2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("execution order %v, want %v", got, want)
		}
	}
}

func TestPostNilTaskPanics(t *testing.T) {
	s := newTestScheduler(t)
	q := s.CreateTaskQueue(NewSpec("q"))
	testutil.MustPanic(t, func() { q.PostTask(nil) })
}

func TestPostTaskWithOptions(t *testing.T) {
	s := newTestScheduler(t)
	q := s.CreateTaskQueue(NewSpec("q"))

	const tag = 7
	q.PostTaskWithOptions(func() {}, PostOptions{TaskType: tag, NonNestable: true})

	sel, ok := s.TakeTask()
	if !ok {
		t.Fatal("expected a runnable task")
	}
	if sel.Queue != q {
		t.Error("selected task should belong to the posting queue")
	}
	if sel.Task.TaskType() != tag {
		t.Errorf("TaskType() = %d, want %d", sel.Task.TaskType(), tag)
	}
	if sel.Task.Nestable() {
		t.Error("task posted NonNestable should not report nestable")
	}
	if sel.Task.PostedFrom().String() == "unknown" {
		t.Error("posted task should carry its posting location")
	}
	if !sel.Task.EnqueueOrder().IsSet() {
		t.Error("selected task should have an enqueue order")
	}
}

func TestPostDelayedTask(t *testing.T) {
	s, clock := newMockScheduler(t)
	q := s.CreateTaskQueue(NewSpec("q"))

	ran := false
	q.PostDelayedTask(func() { ran = true }, 50*time.Millisecond)

	if n := s.RunUntilIdle(); n != 0 {
		t.Fatalf("delayed task ran %d tasks before its delay expired", n)
	}
	if delay, ok := s.DelayTillNextTask(); !ok || delay != 50*time.Millisecond {
		t.Fatalf("DelayTillNextTask = (%v, %v), want (50ms, true)", delay, ok)
	}

	clock.Advance(20 * time.Millisecond)
	if delay, ok := s.DelayTillNextTask(); !ok || delay != 30*time.Millisecond {
		t.Fatalf("DelayTillNextTask = (%v, %v), want (30ms, true)", delay, ok)
	}
	if s.RunUntilIdle() != 0 {
		t.Fatal("task ran before its desired run time")
	}

	clock.Advance(30 * time.Millisecond)
	if s.RunUntilIdle() != 1 || !ran {
		t.Fatal("task should run once the delay expires")
	}
}

func TestDelayedOrderAssignedAtExpiry(t *testing.T) {
	s, clock := newMockScheduler(t)
	q := s.CreateTaskQueue(NewSpec("q"))

	var got []string
	// The delayed task is posted first but only receives its enqueue order
	// when the delay expires, so the later immediate post runs first.
	q.PostDelayedTask(func() { got = append(got, "delayed") }, 10*time.Millisecond)
	q.PostTask(func() { got = append(got, "immediate") })

	clock.Advance(10 * time.Millisecond)
	s.RunUntilIdle()

	if len(got) != 2 || got[0] != "immediate" || got[1] != "delayed" {
		t.Fatalf("execution order %v, want immediate before delayed", got)
	}
}

func TestDelayedTiesPromoteInPostOrder(t *testing.T) {
	s, clock := newMockScheduler(t)
	q := s.CreateTaskQueue(NewSpec("q"))

	var got []string
	q.PostDelayedTask(func() { got = append(got, "first") }, 10*time.Millisecond)
	q.PostDelayedTask(func() { got = append(got, "second") }, 10*time.Millisecond)

	clock.Advance(10 * time.Millisecond)
	s.RunUntilIdle()

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("execution order %v, want post order for equal run times", got)
	}
}

func TestInsertFenceNow(t *testing.T) {
	s := newTestScheduler(t)
	q := s.CreateTaskQueue(NewSpec("q"))

	var got []string
	q.PostTask(func() { got = append(got, "before") })
	q.InsertFence(FenceNow)
	q.PostTask(func() { got = append(got, "after") })

	if !q.HasActiveFence() {
		t.Fatal("HasActiveFence should report true")
	}
	if ran := s.RunUntilIdle(); ran != 1 {
		t.Fatalf("ran %d tasks, want only the pre-fence task", ran)
	}
	if len(got) != 1 || got[0] != "before" {
		t.Fatalf("executed %v, want only the pre-fence task", got)
	}
	if !q.BlockedByFence() {
		t.Fatal("queue with only post-fence work should report blocked")
	}

	q.RemoveFence()
	if q.HasActiveFence() {
		t.Fatal("fence should be gone after RemoveFence")
	}
	s.RunUntilIdle()
	if len(got) != 2 || got[1] != "after" {
		t.Fatalf("executed %v, want the post-fence task to run after removal", got)
	}
}

func TestInsertFenceBeginningOfTime(t *testing.T) {
	s := newTestScheduler(t)
	q := s.CreateTaskQueue(NewSpec("q"))

	ran := 0
	q.PostTask(func() { ran++ })
	q.PostTask(func() { ran++ })
	q.InsertFence(FenceBeginningOfTime)

	if s.RunUntilIdle() != 0 {
		t.Fatal("a beginning-of-time fence must block already queued tasks")
	}
	q.RemoveFence()
	if s.RunUntilIdle() != 2 || ran != 2 {
		t.Fatal("blocked tasks should run in order once the fence is removed")
	}
}

func TestFenceOnlyAffectsItsQueue(t *testing.T) {
	s := newTestScheduler(t)
	fenced := s.CreateTaskQueue(NewSpec("fenced"))
	open := s.CreateTaskQueue(NewSpec("open"))

	fenced.InsertFence(FenceBeginningOfTime)
	ran := false
	fenced.PostTask(func() {})
	open.PostTask(func() { ran = true })

	if s.RunUntilIdle() != 1 || !ran {
		t.Fatal("a fence on one queue must not block others")
	}
}

func TestInsertFenceAt(t *testing.T) {
	s, clock := newMockScheduler(t)
	q := s.CreateTaskQueue(NewSpec("q"))
	start := clock.Now()

	var got []string
	q.PostDelayedTask(func() { got = append(got, "early") }, 10*time.Millisecond)
	q.PostDelayedTask(func() { got = append(got, "late") }, 20*time.Millisecond)
	q.InsertFenceAt(start.Add(15 * time.Millisecond))

	clock.Advance(30 * time.Millisecond)
	if ran := s.RunUntilIdle(); ran != 1 {
		t.Fatalf("ran %d tasks, want only the pre-fence delayed task", ran)
	}
	if len(got) != 1 || got[0] != "early" {
		t.Fatalf("executed %v, want only the task expiring before the fence time", got)
	}
	if !q.HasActiveFence() {
		t.Fatal("promoting a task past the fence time should activate the fence")
	}

	q.RemoveFence()
	s.RunUntilIdle()
	if len(got) != 2 || got[1] != "late" {
		t.Fatalf("executed %v, want the fenced task after removal", got)
	}
}

func TestInsertFenceReplacesExisting(t *testing.T) {
	s := newTestScheduler(t)
	q := s.CreateTaskQueue(NewSpec("q"))

	q.InsertFence(FenceBeginningOfTime)
	ran := false
	q.PostTask(func() { ran = true })
	// Replacing with a FenceNow fence unblocks everything already posted.
	q.InsertFence(FenceNow)

	if s.RunUntilIdle() != 1 || !ran {
		t.Fatal("replacing the fence should unblock earlier tasks")
	}
}

func TestRemoveFenceWithoutFence(t *testing.T) {
	s := newTestScheduler(t)
	q := s.CreateTaskQueue(NewSpec("q"))
	q.RemoveFence() // no-op
	if q.HasActiveFence() || q.BlockedByFence() {
		t.Fatal("queue without a fence should report no fence state")
	}
}

func TestQueueEnabledVoters(t *testing.T) {
	t.Run("no voters means enabled", func(t *testing.T) {
		s := newTestScheduler(t)
		q := s.CreateTaskQueue(NewSpec("q"))
		if !q.IsQueueEnabled() {
			t.Fatal("queue without voters should be enabled")
		}
	})

	t.Run("disable blocks selection", func(t *testing.T) {
		s := newTestScheduler(t)
		q := s.CreateTaskQueue(NewSpec("q"))
		voter := q.CreateQueueEnabledVoter()

		ran := false
		q.PostTask(func() { ran = true })
		voter.SetVoteToEnable(false)

		if q.IsQueueEnabled() {
			t.Fatal("queue should be disabled")
		}
		if s.RunUntilIdle() != 0 {
			t.Fatal("disabled queue must not run tasks")
		}

		voter.SetVoteToEnable(true)
		if s.RunUntilIdle() != 1 || !ran {
			t.Fatal("re-enabled queue should run its backlog")
		}
	})

	t.Run("all voters must agree", func(t *testing.T) {
		s := newTestScheduler(t)
		q := s.CreateTaskQueue(NewSpec("q"))
		v1 := q.CreateQueueEnabledVoter()
		v2 := q.CreateQueueEnabledVoter()

		v1.SetVoteToEnable(false)
		if q.IsQueueEnabled() {
			t.Fatal("one dissenting voter should disable the queue")
		}
		v2.SetVoteToEnable(false)
		v1.SetVoteToEnable(true)
		if q.IsQueueEnabled() {
			t.Fatal("queue should stay disabled while any voter dissents")
		}
		v2.SetVoteToEnable(true)
		if !q.IsQueueEnabled() {
			t.Fatal("queue should be enabled when all voters agree")
		}
	})

	t.Run("destroy withdraws the vote", func(t *testing.T) {
		s := newTestScheduler(t)
		q := s.CreateTaskQueue(NewSpec("q"))
		voter := q.CreateQueueEnabledVoter()

		voter.SetVoteToEnable(false)
		voter.Destroy()
		if !q.IsQueueEnabled() {
			t.Fatal("destroying the dissenting voter should re-enable the queue")
		}
		voter.Destroy() // idempotent
	})

	t.Run("using a destroyed voter panics", func(t *testing.T) {
		s := newTestScheduler(t)
		q := s.CreateTaskQueue(NewSpec("q"))
		voter := q.CreateQueueEnabledVoter()
		voter.Destroy()
		testutil.MustPanic(t, func() { voter.SetVoteToEnable(false) })
	})
}

func TestShutdownTaskQueue(t *testing.T) {
	t.Run("rejects further posting", func(t *testing.T) {
		s := newTestScheduler(t)
		q := s.CreateTaskQueue(NewSpec("q"))
		q.ShutdownTaskQueue()

		if !q.IsShutdown() {
			t.Fatal("IsShutdown should report true")
		}
		if q.PostTask(func() {}) {
			t.Error("PostTask after shutdown should report false")
		}
		if q.PostDelayedTask(func() {}, time.Millisecond) {
			t.Error("PostDelayedTask after shutdown should report false")
		}
		if _, ok := q.PostCancelableDelayedTask(func() {}, time.Millisecond); ok {
			t.Error("PostCancelableDelayedTask after shutdown should report false")
		}
	})

	t.Run("discards queued tasks", func(t *testing.T) {
		s := newTestScheduler(t)
		q := s.CreateTaskQueue(NewSpec("q"))
		for i := 0; i < 3; i++ {
			q.PostTask(func() { t.Error("discarded task must not run") })
		}
		q.PostDelayedTask(func() { t.Error("discarded task must not run") }, time.Millisecond)
		q.ShutdownTaskQueue()

		if s.RunUntilIdle() != 0 {
			t.Fatal("no task should survive queue shutdown")
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		s := newTestScheduler(t)
		q := s.CreateTaskQueue(NewSpec("q"))
		q.ShutdownTaskQueue()
		q.ShutdownTaskQueue()
	})

	t.Run("from a task on the same queue", func(t *testing.T) {
		s := newTestScheduler(t)
		q := s.CreateTaskQueue(NewSpec("q"))

		q.PostTask(func() { q.ShutdownTaskQueue() })
		q.PostTask(func() { t.Error("task queued behind the shutdown must not run") })

		if ran := s.RunUntilIdle(); ran != 1 {
			t.Fatalf("ran %d tasks, want 1", ran)
		}
	})

	t.Run("other queues keep running", func(t *testing.T) {
		s := newTestScheduler(t)
		dead := s.CreateTaskQueue(NewSpec("dead"))
		live := s.CreateTaskQueue(NewSpec("live"))

		ran := false
		live.PostTask(func() { ran = true })
		dead.ShutdownTaskQueue()

		if s.RunUntilIdle() != 1 || !ran {
			t.Fatal("shutting one queue down must not affect others")
		}
	})
}

func TestPostCancelableDelayedTask(t *testing.T) {
	t.Run("cancel before expiry", func(t *testing.T) {
		s, clock := newMockScheduler(t)
		q := s.CreateTaskQueue(NewSpec("q"))

		handle, ok := q.PostCancelableDelayedTask(func() { t.Error("canceled task must not run") }, 10*time.Millisecond)
		if !ok {
			t.Fatal("post rejected")
		}
		handle.Cancel()

		clock.Advance(20 * time.Millisecond)
		if s.RunUntilIdle() != 0 {
			t.Fatal("canceled task ran")
		}
	})

	t.Run("cancel after running is a no-op", func(t *testing.T) {
		s, clock := newMockScheduler(t)
		q := s.CreateTaskQueue(NewSpec("q"))

		ran := false
		handle, _ := q.PostCancelableDelayedTask(func() { ran = true }, 10*time.Millisecond)
		clock.Advance(10 * time.Millisecond)
		if s.RunUntilIdle() != 1 || !ran {
			t.Fatal("task should have run")
		}
		handle.Cancel()
	})

	t.Run("reclaim sweeps canceled tasks", func(t *testing.T) {
		s, _ := newMockScheduler(t)
		q := s.CreateTaskQueue(NewSpec("q"))

		handle, _ := q.PostCancelableDelayedTask(func() {}, time.Hour)
		s.RunUntilIdle() // moves the task into bound-goroutine storage
		handle.Cancel()

		if removed := s.ReclaimMemory(); removed != 1 {
			t.Fatalf("ReclaimMemory removed %d tasks, want 1", removed)
		}
		if removed := s.ReclaimMemory(); removed != 0 {
			t.Fatalf("second sweep removed %d tasks, want 0", removed)
		}
	})
}

func TestSetQueuePriority(t *testing.T) {
	t.Run("returns the creation priority initially", func(t *testing.T) {
		s := newTestScheduler(t)
		q := s.CreateTaskQueue(Spec{Name: "q", Priority: PriorityHigh})
		if got := q.GetQueuePriority(); got != PriorityHigh {
			t.Fatalf("GetQueuePriority() = %v, want high", got)
		}
	})

	t.Run("invalid priority panics", func(t *testing.T) {
		s := newTestScheduler(t)
		q := s.CreateTaskQueue(NewSpec("q"))
		testutil.MustPanic(t, func() { q.SetQueuePriority(PriorityCount) })
	})

	t.Run("raising priority reorders selection", func(t *testing.T) {
		s := newTestScheduler(t)
		normal := s.CreateTaskQueue(NewSpec("normal"))
		low := s.CreateTaskQueue(Spec{Name: "low", Priority: PriorityLow})

		var got []string
		low.PostTask(func() { got = append(got, "low") })
		normal.PostTask(func() { got = append(got, "normal") })

		low.SetQueuePriority(PriorityHighest)
		if got := low.GetQueuePriority(); got != PriorityHighest {
			t.Fatalf("GetQueuePriority() = %v after change, want highest", got)
		}

		s.RunUntilIdle()
		if len(got) != 2 || got[0] != "low" {
			t.Fatalf("execution order %v, want the promoted queue first", got)
		}
	})

	t.Run("queued tasks keep their relative order", func(t *testing.T) {
		s := newTestScheduler(t)
		q := s.CreateTaskQueue(NewSpec("q"))

		var got []int
		for i := 0; i < 3; i++ {
			i := i
			q.PostTask(func() { got = append(got, i) })
		}
		q.SetQueuePriority(PriorityLow)
		q.SetQueuePriority(PriorityHigh)

		s.RunUntilIdle()
		for i, v := range got {
			if v != i {
				t.Fatalf("execution order %v, want ascending despite priority moves", got)
			}
		}
	})

	t.Run("no-op after shutdown", func(t *testing.T) {
		s := newTestScheduler(t)
		q := s.CreateTaskQueue(NewSpec("q"))
		q.ShutdownTaskQueue()
		q.SetQueuePriority(PriorityHigh) // must not touch the selector
	})
}
