package sched

import "testing"

func TestCurrentGoroutineID(t *testing.T) {
	id := currentGoroutineID()
	if id <= 0 {
		t.Fatalf("currentGoroutineID() = %d, want a positive ID", id)
	}
	if again := currentGoroutineID(); again != id {
		t.Fatalf("goroutine ID changed between calls: %d then %d", id, again)
	}

	otherID := make(chan int64)
	go func() { otherID <- currentGoroutineID() }()
	if other := <-otherID; other == id {
		t.Fatal("two goroutines reported the same ID")
	}
}

func TestGoroutineGuardDisabledIsNoOp(t *testing.T) {
	var g goroutineGuard
	g.bind()

	checked := make(chan struct{})
	go func() {
		g.check() // must not panic with checks disabled
		close(checked)
	}()
	<-checked
}

func TestDebugChecksCatchWrongGoroutine(t *testing.T) {
	s := newTestScheduler(t, WithDebugChecks(true))
	q := s.CreateTaskQueue(NewSpec("guarded"))

	// Posting is explicitly cross-goroutine safe.
	posted := make(chan bool)
	go func() { posted <- q.PostTask(func() {}) }()
	if !<-posted {
		t.Fatal("cross-goroutine post should succeed")
	}

	// Bound-goroutine state touched off the bound goroutine panics.
	recovered := make(chan any)
	go func() {
		defer func() { recovered <- recover() }()
		q.InsertFence(FenceNow)
	}()
	if <-recovered == nil {
		t.Fatal("expected a panic from a wrong-goroutine fence insert")
	}

	// The same call on the bound goroutine is fine.
	q.InsertFence(FenceNow)
}

func TestDebugChecksRebindPanics(t *testing.T) {
	var g goroutineGuard
	g.enabled = true
	g.bind()

	recovered := make(chan any)
	go func() {
		defer func() { recovered <- recover() }()
		g.bind()
	}()
	if <-recovered == nil {
		t.Fatal("expected a panic when binding an already bound guard")
	}
}
