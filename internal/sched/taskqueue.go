package sched

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// FencePosition selects where InsertFence takes effect.
type FencePosition int

const (
	// FenceNow blocks every task posted after this instant. Tasks already
	// queued remain runnable.
	FenceNow FencePosition = iota
	// FenceBeginningOfTime blocks every task currently queued, regardless
	// of when it was posted.
	FenceBeginningOfTime
)

// Spec describes a task queue to be created by Scheduler.CreateTaskQueue.
type Spec struct {
	Name     string
	Priority Priority
}

// NewSpec returns a Spec with the default (normal) priority.
func NewSpec(name string) Spec {
	return Spec{Name: name, Priority: PriorityNormal}
}

// PostOptions carries the optional attributes of a posted task. The zero
// value posts an immediate, nestable task with type tag 0.
type PostOptions struct {
	// Delay defers eligibility by this much, converted once at post time
	// to an absolute desired run time using the scheduler's TimeDomain.
	Delay time.Duration
	// NonNestable keeps the task from running inside a nested run loop.
	NonNestable bool
	// TaskType is an opaque caller-defined tag carried on the task.
	TaskType int
}

// TaskQueue is the externally visible handle for one queue of tasks. It owns
// an immediate and a delayed work queue, a current priority, fence state and
// enablement voters.
//
// Posting is safe from any goroutine. Everything else — priority changes,
// fences, voters, shutdown — must happen on the goroutine the owning
// Scheduler is bound to.
type TaskQueue struct {
	name      string
	scheduler *Scheduler

	// Bound-goroutine state.
	priority        Priority
	selectorEnabled bool
	immediateWork   *WorkQueue
	delayedWork     *WorkQueue
	delayedIncoming delayedTaskHeap
	delayedSeq      uint64
	voterCount      int
	enabledVoters   int
	currentFence    EnqueueOrder
	delayedFence    time.Time
	unregistered    bool

	// Cross-goroutine posting state. The critical section covers only the
	// minimal queue mutation so posting never serializes with selection.
	anyThread struct {
		mu                sync.Mutex
		immediateIncoming []Task
		delayedStaging    []Task
		reloadRegistered  bool
		shutdown          bool
	}

	// Diagnostic counters readable from any goroutine.
	statImmediate atomic.Int64
	statDelayed   atomic.Int64
	statIncoming  atomic.Int64
	statPriority  atomic.Int32
	statEnabled   atomic.Bool
	statFenced    atomic.Bool
	statShutdown  atomic.Bool
}

func newTaskQueue(scheduler *Scheduler, spec Spec) *TaskQueue {
	q := &TaskQueue{
		name:            spec.Name,
		scheduler:       scheduler,
		priority:        spec.Priority,
		selectorEnabled: true,
	}
	q.immediateWork = newWorkQueue(q, spec.Name+"/immediate", KindImmediate)
	q.delayedWork = newWorkQueue(q, spec.Name+"/delayed", KindDelayed)
	q.statPriority.Store(int32(spec.Priority))
	q.statEnabled.Store(true)
	return q
}

// Name returns the queue name. Safe from any goroutine.
func (q *TaskQueue) Name() string { return q.name }

// PostTask posts an immediate task. It reports false, without running or
// retaining the task, when the queue has been shut down.
func (q *TaskQueue) PostTask(f TaskFunc) bool {
	return q.post(f, PostOptions{}, 1)
}

// PostNonNestableTask posts an immediate task that must not run inside a
// nested run loop.
func (q *TaskQueue) PostNonNestableTask(f TaskFunc) bool {
	return q.post(f, PostOptions{NonNestable: true}, 1)
}

// PostDelayedTask posts a task that becomes eligible after delay. The task's
// enqueue order is assigned when the delay expires, not at post time.
func (q *TaskQueue) PostDelayedTask(f TaskFunc, delay time.Duration) bool {
	return q.post(f, PostOptions{Delay: delay}, 1)
}

// PostTaskWithOptions posts a task with explicit options.
func (q *TaskQueue) PostTaskWithOptions(f TaskFunc, opts PostOptions) bool {
	return q.post(f, opts, 1)
}

// PostCancelableDelayedTask posts a delayed task and returns a handle that
// can cancel it from any goroutine until it starts running. Canceled tasks
// are dropped at selection time or by the periodic reclaim sweep.
func (q *TaskQueue) PostCancelableDelayedTask(f TaskFunc, delay time.Duration) (TaskHandle, bool) {
	canceled := &atomic.Bool{}
	task := q.makeTask(f, PostOptions{Delay: delay}, 2)
	task.canceled = canceled
	if !q.admit(task) {
		return TaskHandle{}, false
	}
	return TaskHandle{canceled: canceled}, true
}

func (q *TaskQueue) post(f TaskFunc, opts PostOptions, skip int) bool {
	return q.admit(q.makeTask(f, opts, skip+2))
}

func (q *TaskQueue) makeTask(f TaskFunc, opts PostOptions, skip int) Task {
	if f == nil {
		panic("sched: nil task posted to " + q.name)
	}
	return Task{
		run:        f,
		postedFrom: callerLocation(skip),
		taskType:   opts.TaskType,
		delay:      opts.Delay,
		nestable:   !opts.NonNestable,
	}
}

// admit assigns ordering and stores the task in the cross-goroutine incoming
// storage. Reports false when the queue is shut down.
func (q *TaskQueue) admit(task Task) bool {
	now := q.scheduler.timeDomain.Now()
	delayed := task.delay > 0

	q.anyThread.mu.Lock()
	if q.anyThread.shutdown {
		q.anyThread.mu.Unlock()
		return false
	}
	if delayed {
		task.desiredRunTime = now.Add(task.delay)
		q.anyThread.delayedStaging = append(q.anyThread.delayedStaging, task)
	} else {
		task.desiredRunTime = now
		task.enqueueOrder = q.scheduler.orderGen.Next()
		q.anyThread.immediateIncoming = append(q.anyThread.immediateIncoming, task)
	}
	needsRegister := !q.anyThread.reloadRegistered
	q.anyThread.reloadRegistered = true
	q.anyThread.mu.Unlock()

	q.statIncoming.Add(1)
	q.scheduler.onQueueHasIncomingWork(q, task.desiredRunTime, needsRegister)
	return true
}

// reloadIncoming moves cross-goroutine posted tasks into bound-goroutine
// storage: immediate tasks into the immediate work queue, delayed tasks into
// the incoming heap awaiting expiry. Bound goroutine only.
func (q *TaskQueue) reloadIncoming() {
	q.anyThread.mu.Lock()
	immediate := q.anyThread.immediateIncoming
	staged := q.anyThread.delayedStaging
	q.anyThread.immediateIncoming = nil
	q.anyThread.delayedStaging = nil
	q.anyThread.reloadRegistered = false
	q.anyThread.mu.Unlock()

	if q.unregistered {
		return
	}
	for _, task := range immediate {
		q.immediateWork.Push(task)
	}
	for _, task := range staged {
		q.delayedSeq++
		heap.Push(&q.delayedIncoming, delayedTask{Task: task, seq: q.delayedSeq})
	}
	q.statIncoming.Add(-int64(len(immediate) + len(staged)))
	q.updateDepthStats()
}

// moveReadyDelayedTasks promotes expired delayed tasks: each gets an enqueue
// order at expiry and moves into the delayed work queue. Activates a pending
// delayed fence when the first task at or past the fence time is promoted.
func (q *TaskQueue) moveReadyDelayedTasks(now time.Time) {
	for len(q.delayedIncoming) > 0 {
		front := &q.delayedIncoming[0]
		if front.Task.Canceled() {
			heap.Pop(&q.delayedIncoming)
			continue
		}
		if front.Task.desiredRunTime.After(now) {
			break
		}
		item := heap.Pop(&q.delayedIncoming).(delayedTask)
		task := item.Task
		task.enqueueOrder = q.scheduler.orderGen.Next()
		if !q.delayedFence.IsZero() && !task.desiredRunTime.Before(q.delayedFence) {
			q.insertFence(task.enqueueOrder)
		}
		q.delayedWork.Push(task)
	}
	q.updateDepthStats()
}

// nextDelayedWakeTime returns the earliest expiry among pending delayed
// tasks, skipping canceled ones. Bound goroutine only.
func (q *TaskQueue) nextDelayedWakeTime() (time.Time, bool) {
	for len(q.delayedIncoming) > 0 {
		if q.delayedIncoming[0].Task.Canceled() {
			heap.Pop(&q.delayedIncoming)
			continue
		}
		return q.delayedIncoming[0].Task.desiredRunTime, true
	}
	return time.Time{}, false
}

// GetQueuePriority returns the queue's current priority. Bound goroutine
// only; cross-goroutine readers should use Scheduler.Snapshot.
func (q *TaskQueue) GetQueuePriority() Priority {
	q.scheduler.mainGuard.check()
	return q.priority
}

// SetQueuePriority moves the queue to a different priority bucket. Tasks
// already queued keep their enqueue orders, so FIFO within the new bucket is
// preserved. Bound goroutine only.
func (q *TaskQueue) SetQueuePriority(priority Priority) {
	q.scheduler.mainGuard.check()
	if !priority.IsValid() {
		panic("sched: invalid priority for queue " + q.name)
	}
	if q.unregistered || priority == q.priority {
		return
	}
	q.priority = priority
	q.scheduler.selector.SetQueuePriority(q, priority)
	q.statPriority.Store(int32(priority))
}

// CreateQueueEnabledVoter returns a new enablement voter. The queue is
// selectable only while it has zero voters or all voters vote enabled.
// Bound goroutine only.
func (q *TaskQueue) CreateQueueEnabledVoter() *QueueEnabledVoter {
	q.scheduler.mainGuard.check()
	q.voterCount++
	q.enabledVoters++
	return &QueueEnabledVoter{queue: q, enabled: true}
}

// IsQueueEnabled reports whether the voter consensus currently enables the
// queue. Bound goroutine only.
func (q *TaskQueue) IsQueueEnabled() bool {
	q.scheduler.mainGuard.check()
	return q.isEnabled()
}

func (q *TaskQueue) isEnabled() bool {
	return q.voterCount == 0 || q.enabledVoters == q.voterCount
}

// updateSelectorEnabled reconciles set membership after a voter change.
func (q *TaskQueue) updateSelectorEnabled() {
	enabled := q.isEnabled()
	if enabled == q.selectorEnabled {
		return
	}
	q.selectorEnabled = enabled
	q.statEnabled.Store(enabled)
	q.immediateWork.notifySets()
	q.delayedWork.notifySets()
	if enabled {
		q.scheduler.scheduleWork()
	}
}

// InsertFence installs a fence, replacing any existing one. With FenceNow
// the fence takes the next enqueue order, so everything posted afterwards is
// blocked; with FenceBeginningOfTime every queued task is blocked. Bound
// goroutine only.
func (q *TaskQueue) InsertFence(position FencePosition) {
	q.scheduler.mainGuard.check()
	if q.unregistered {
		return
	}
	fence := enqueueOrderBlockingFence
	if position == FenceNow {
		fence = q.scheduler.orderGen.Next()
	}
	q.insertFence(fence)
}

// InsertFenceAt arms a delayed fence: the fence activates when the first
// delayed task with desired run time at or past t is promoted, taking that
// task's enqueue order. Any current fence is removed. Bound goroutine only.
func (q *TaskQueue) InsertFenceAt(t time.Time) {
	q.scheduler.mainGuard.check()
	if q.unregistered {
		return
	}
	q.removeFenceLocked()
	q.delayedFence = t
}

func (q *TaskQueue) insertFence(fence EnqueueOrder) {
	q.currentFence = fence
	q.delayedFence = time.Time{}
	q.immediateWork.InsertFence(fence)
	q.delayedWork.InsertFence(fence)
	q.statFenced.Store(true)
}

// RemoveFence removes the active fence, if any. Tasks blocked behind it
// become selectable in their original order. Bound goroutine only.
func (q *TaskQueue) RemoveFence() {
	q.scheduler.mainGuard.check()
	if q.removeFenceLocked() {
		q.scheduler.scheduleWork()
	}
}

func (q *TaskQueue) removeFenceLocked() bool {
	q.delayedFence = time.Time{}
	if q.currentFence == enqueueOrderNone {
		return false
	}
	q.currentFence = enqueueOrderNone
	unblockedImmediate := q.immediateWork.RemoveFence()
	unblockedDelayed := q.delayedWork.RemoveFence()
	q.statFenced.Store(false)
	return unblockedImmediate || unblockedDelayed
}

// HasActiveFence reports whether a fence is installed. Bound goroutine only.
func (q *TaskQueue) HasActiveFence() bool {
	q.scheduler.mainGuard.check()
	return q.currentFence != enqueueOrderNone
}

// BlockedByFence reports whether a fence currently prevents every queued
// task from running. Bound goroutine only.
func (q *TaskQueue) BlockedByFence() bool {
	q.scheduler.mainGuard.check()
	if q.currentFence == enqueueOrderNone {
		return false
	}
	return q.immediateWork.BlockedByFence() && q.delayedWork.BlockedByFence()
}

// ShutdownTaskQueue tears the queue down gracefully: further posting is
// rejected, queued tasks are discarded, and the queue is removed from the
// scheduler. A task currently executing finishes normally. Idempotent; safe
// to call from a task running on this very queue. Bound goroutine only.
func (q *TaskQueue) ShutdownTaskQueue() {
	q.scheduler.mainGuard.check()

	q.anyThread.mu.Lock()
	q.anyThread.shutdown = true
	q.anyThread.immediateIncoming = nil
	q.anyThread.delayedStaging = nil
	q.anyThread.mu.Unlock()
	q.statIncoming.Store(0)
	q.statShutdown.Store(true)

	if q.unregistered {
		return
	}
	q.unregistered = true
	q.immediateWork.takeAll()
	q.delayedWork.takeAll()
	q.delayedIncoming = nil
	q.updateDepthStats()
	q.scheduler.unregisterQueue(q)
}

// IsShutdown reports whether the queue rejects postings. Safe from any
// goroutine.
func (q *TaskQueue) IsShutdown() bool {
	return q.statShutdown.Load()
}

func (q *TaskQueue) updateDepthStats() {
	q.statImmediate.Store(int64(q.immediateWork.Len()))
	q.statDelayed.Store(int64(q.delayedWork.Len() + len(q.delayedIncoming)))
}

// sweepCanceledTasks drops canceled tasks from the incoming heap and both
// work queues. Bound goroutine only.
func (q *TaskQueue) sweepCanceledTasks() int {
	removed := 0
	kept := q.delayedIncoming[:0]
	for _, item := range q.delayedIncoming {
		if item.Task.Canceled() {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	if removed > 0 {
		q.delayedIncoming = kept
		heap.Init(&q.delayedIncoming)
	}
	removed += q.immediateWork.sweepCanceledTasks()
	removed += q.delayedWork.sweepCanceledTasks()
	if removed > 0 {
		q.updateDepthStats()
	}
	return removed
}

// QueueEnabledVoter is a revocable vote on whether its queue may be
// selected. Votes from all live voters must agree on "enabled" for the
// queue to run; destroying a voter withdraws its vote. Voters model several
// independent owners gating one queue. Bound goroutine only.
type QueueEnabledVoter struct {
	queue     *TaskQueue
	enabled   bool
	destroyed bool
}

// SetVoteToEnable changes this voter's vote. Using a destroyed voter is a
// programming error and panics.
func (v *QueueEnabledVoter) SetVoteToEnable(enabled bool) {
	if v.destroyed {
		panic("sched: SetVoteToEnable on a destroyed voter for queue " + v.queue.name)
	}
	v.queue.scheduler.mainGuard.check()
	if enabled == v.enabled {
		return
	}
	v.enabled = enabled
	if enabled {
		v.queue.enabledVoters++
	} else {
		v.queue.enabledVoters--
	}
	v.queue.updateSelectorEnabled()
}

// Destroy withdraws the vote entirely. Idempotent.
func (v *QueueEnabledVoter) Destroy() {
	if v.destroyed {
		return
	}
	v.queue.scheduler.mainGuard.check()
	v.destroyed = true
	v.queue.voterCount--
	if v.enabled {
		v.queue.enabledVoters--
	}
	v.queue.updateSelectorEnabled()
}

// delayedTask pairs a task with a stable sequence number so tasks sharing a
// desired run time promote in post order.
type delayedTask struct {
	Task Task
	seq  uint64
}

// delayedTaskHeap orders pending delayed tasks by desired run time.
type delayedTaskHeap []delayedTask

func (h delayedTaskHeap) Len() int { return len(h) }

func (h delayedTaskHeap) Less(i, j int) bool {
	ti, tj := h[i].Task.desiredRunTime, h[j].Task.desiredRunTime
	if ti.Equal(tj) {
		return h[i].seq < h[j].seq
	}
	return ti.Before(tj)
}

func (h delayedTaskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *delayedTaskHeap) Push(x any) { *h = append(*h, x.(delayedTask)) }

func (h *delayedTaskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = delayedTask{}
	*h = old[:n-1]
	return item
}
