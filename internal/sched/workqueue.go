package sched

// QueueKind distinguishes the two work queues owned by every TaskQueue.
type QueueKind int

const (
	// KindImmediate holds tasks that are ready to run now.
	KindImmediate QueueKind = iota
	// KindDelayed holds delayed tasks whose delay has expired, in enqueue
	// order. Unexpired tasks live in the owning TaskQueue's incoming heap,
	// not here.
	KindDelayed
)

// String returns "immediate" or "delayed".
func (k QueueKind) String() string {
	if k == KindDelayed {
		return "delayed"
	}
	return "immediate"
}

// WorkQueue is an ordered sequence of admitted tasks belonging to one
// TaskQueue. Tasks are pushed in enqueue order and popped from the front.
// A WorkQueue registers with a WorkQueueSets bucket matching its owner's
// priority whenever its front task is runnable (non-empty and not blocked
// by a fence).
//
// Owned-goroutine only; cross-goroutine posting goes through the TaskQueue's
// incoming storage, never directly here.
type WorkQueue struct {
	owner *TaskQueue
	name  string
	kind  QueueKind

	tasks []Task
	head  int

	sets      *WorkQueueSets
	setIndex  Priority
	heapIndex int

	// fence blocks tasks with enqueueOrder >= fence from selection.
	// Zero means no fence.
	fence EnqueueOrder
}

func newWorkQueue(owner *TaskQueue, name string, kind QueueKind) *WorkQueue {
	return &WorkQueue{
		owner:     owner,
		name:      name,
		kind:      kind,
		heapIndex: -1,
	}
}

// Name returns the queue's diagnostic name.
func (q *WorkQueue) Name() string { return q.name }

// Kind returns whether this is the immediate or delayed work queue.
func (q *WorkQueue) Kind() QueueKind { return q.kind }

// Len returns the number of stored tasks.
func (q *WorkQueue) Len() int { return len(q.tasks) - q.head }

// Empty reports whether the queue holds no tasks.
func (q *WorkQueue) Empty() bool { return q.Len() == 0 }

// FrontTask returns the oldest task without removing it, or nil when empty.
func (q *WorkQueue) FrontTask() *Task {
	if q.Empty() {
		return nil
	}
	return &q.tasks[q.head]
}

// FrontTaskOrder returns the enqueue order of the oldest task.
func (q *WorkQueue) FrontTaskOrder() (EnqueueOrder, bool) {
	if q.Empty() {
		return enqueueOrderNone, false
	}
	return q.tasks[q.head].enqueueOrder, true
}

// Push appends a task. The task must have an assigned enqueue order no
// smaller than the current back of the queue; a violation means admission
// bookkeeping is corrupted and selection ordering can no longer be trusted,
// so it panics.
func (q *WorkQueue) Push(task Task) {
	if !task.enqueueOrder.IsSet() {
		panic("sched: task pushed to " + q.name + " without an enqueue order")
	}
	if n := len(q.tasks); n > q.head && q.tasks[n-1].enqueueOrder > task.enqueueOrder {
		panic("sched: enqueue order went backwards in " + q.name)
	}
	q.tasks = append(q.tasks, task)
	q.notifySets()
}

// TakeTask removes and returns the front task. Panics when empty; the
// selector never picks an empty queue.
func (q *WorkQueue) TakeTask() Task {
	if q.Empty() {
		panic("sched: TakeTask on empty work queue " + q.name)
	}
	task := q.tasks[q.head]
	q.tasks[q.head] = Task{}
	q.head++
	q.maybeCompact()
	q.notifySets()
	return task
}

// maybeCompact reclaims the popped prefix once it dominates the backing
// slice.
func (q *WorkQueue) maybeCompact() {
	if q.head > 16 && q.head >= len(q.tasks)/2 {
		n := copy(q.tasks, q.tasks[q.head:])
		q.tasks = q.tasks[:n]
		q.head = 0
	}
}

// BlockedByFence reports whether an active fence currently prevents the
// front task from being selected. An empty queue with a fence counts as
// blocked: anything pushed behind the fence would be.
func (q *WorkQueue) BlockedByFence() bool {
	if q.fence == enqueueOrderNone {
		return false
	}
	order, ok := q.FrontTaskOrder()
	return !ok || order >= q.fence
}

// hasRunnableFront reports whether the selector may pick this queue.
func (q *WorkQueue) hasRunnableFront() bool {
	return !q.Empty() && !q.BlockedByFence()
}

// InsertFence blocks selection of tasks with enqueue order >= fence.
// Replaces any existing fence.
func (q *WorkQueue) InsertFence(fence EnqueueOrder) {
	if fence == enqueueOrderNone {
		panic("sched: InsertFence with unset order on " + q.name)
	}
	q.fence = fence
	q.notifySets()
}

// RemoveFence clears the fence. Returns true when the front task became
// runnable as a result, so the caller can schedule a wake-up.
func (q *WorkQueue) RemoveFence() bool {
	wasRunnable := q.hasRunnableFront()
	q.fence = enqueueOrderNone
	q.notifySets()
	return !wasRunnable && q.hasRunnableFront()
}

// sweepCanceledTasks drops canceled tasks anywhere in the queue, preserving
// the relative order of the rest. Returns the number removed.
func (q *WorkQueue) sweepCanceledTasks() int {
	kept := q.tasks[:q.head]
	removed := 0
	for _, t := range q.tasks[q.head:] {
		if t.Canceled() {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	if removed == 0 {
		return 0
	}
	q.tasks = kept
	q.maybeCompact()
	q.notifySets()
	return removed
}

// takeAll removes and returns every task, used by queue shutdown.
func (q *WorkQueue) takeAll() []Task {
	tasks := append([]Task(nil), q.tasks[q.head:]...)
	q.tasks = nil
	q.head = 0
	q.notifySets()
	return tasks
}

// notifySets tells the owning WorkQueueSets that this queue's selectable
// state or front task may have changed.
func (q *WorkQueue) notifySets() {
	if q.sets != nil {
		q.sets.onQueueChanged(q)
	}
}
