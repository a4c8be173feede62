package sched

import "container/heap"

// SetObserver is notified when a priority bucket transitions between empty
// and non-empty. The TaskQueueSelector uses these transitions to maintain
// its per-priority starvation bookkeeping. Each transition fires exactly
// once; pushes and pops that do not change bucket emptiness are silent.
type SetObserver interface {
	WorkQueueSetBecameEmpty(priority Priority)
	WorkQueueSetBecameNonEmpty(priority Priority)
}

// WorkQueueSets buckets work queues of one kind by priority and answers
// "which queue in this bucket holds the globally oldest task" in O(1). Each
// bucket is a min-heap keyed by front-task enqueue order, so membership
// updates are O(log n) and the oldest lookup, which runs once per scheduling
// decision, is a root read.
//
// A queue is a member of its bucket exactly while its front task is
// selectable: non-empty, not blocked by a fence, and its owner enabled.
type WorkQueueSets struct {
	name     string
	observer SetObserver
	buckets  [PriorityCount]workQueueHeap
}

func newWorkQueueSets(name string, observer SetObserver) *WorkQueueSets {
	return &WorkQueueSets{name: name, observer: observer}
}

// AddQueue registers a queue under the given priority bucket. The queue must
// not already belong to a WorkQueueSets.
func (s *WorkQueueSets) AddQueue(q *WorkQueue, priority Priority) {
	if q.sets != nil {
		panic("sched: work queue " + q.name + " already belongs to a set")
	}
	if !priority.IsValid() {
		panic("sched: invalid priority for work queue " + q.name)
	}
	q.sets = s
	q.setIndex = priority
	q.heapIndex = -1
	s.onQueueChanged(q)
}

// RemoveQueue unregisters a queue entirely.
func (s *WorkQueueSets) RemoveQueue(q *WorkQueue) {
	if q.sets != s {
		panic("sched: work queue " + q.name + " does not belong to this set")
	}
	s.remove(q)
	q.sets = nil
}

// ChangeSetIndex moves a queue to a different priority bucket. FIFO order
// within the destination bucket is preserved because ordering is always by
// enqueue order, which does not change.
func (s *WorkQueueSets) ChangeSetIndex(q *WorkQueue, priority Priority) {
	if q.sets != s {
		panic("sched: work queue " + q.name + " does not belong to this set")
	}
	if !priority.IsValid() {
		panic("sched: invalid priority for work queue " + q.name)
	}
	s.remove(q)
	q.setIndex = priority
	s.onQueueChanged(q)
}

// GetOldestQueueInSet returns the bucket member whose front task has the
// smallest enqueue order, or nil when the bucket is empty.
func (s *WorkQueueSets) GetOldestQueueInSet(priority Priority) *WorkQueue {
	bucket := s.buckets[priority]
	if len(bucket) == 0 {
		return nil
	}
	return bucket[0]
}

// GetOldestQueueAndOrderInSet returns the oldest queue along with its front
// task's enqueue order.
func (s *WorkQueueSets) GetOldestQueueAndOrderInSet(priority Priority) (*WorkQueue, EnqueueOrder) {
	q := s.GetOldestQueueInSet(priority)
	if q == nil {
		return nil, enqueueOrderNone
	}
	order, ok := q.FrontTaskOrder()
	if !ok {
		panic("sched: empty work queue found in set " + s.name)
	}
	return q, order
}

// IsSetEmpty reports whether the bucket has no selectable queues.
func (s *WorkQueueSets) IsSetEmpty(priority Priority) bool {
	return len(s.buckets[priority]) == 0
}

// onQueueChanged reconciles a queue's bucket membership with its current
// selectable state and re-sorts it when its front task changed.
func (s *WorkQueueSets) onQueueChanged(q *WorkQueue) {
	selectable := q.hasRunnableFront() && (q.owner == nil || q.owner.selectorEnabled)
	switch {
	case selectable && q.heapIndex < 0:
		s.insert(q)
	case !selectable && q.heapIndex >= 0:
		s.remove(q)
	case selectable:
		heap.Fix(&s.buckets[q.setIndex], q.heapIndex)
	}
}

func (s *WorkQueueSets) insert(q *WorkQueue) {
	bucket := &s.buckets[q.setIndex]
	wasEmpty := bucket.Len() == 0
	heap.Push(bucket, q)
	if wasEmpty && s.observer != nil {
		s.observer.WorkQueueSetBecameNonEmpty(q.setIndex)
	}
}

func (s *WorkQueueSets) remove(q *WorkQueue) {
	if q.heapIndex < 0 {
		return
	}
	bucket := &s.buckets[q.setIndex]
	heap.Remove(bucket, q.heapIndex)
	q.heapIndex = -1
	if bucket.Len() == 0 && s.observer != nil {
		s.observer.WorkQueueSetBecameEmpty(q.setIndex)
	}
}

// workQueueHeap is a min-heap of work queues keyed by front-task enqueue
// order. Every member has a runnable front task.
type workQueueHeap []*WorkQueue

func (h workQueueHeap) Len() int { return len(h) }

func (h workQueueHeap) Less(i, j int) bool {
	oi, _ := h[i].FrontTaskOrder()
	oj, _ := h[j].FrontTaskOrder()
	return oi < oj
}

func (h workQueueHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *workQueueHeap) Push(x any) {
	q := x.(*WorkQueue)
	q.heapIndex = len(*h)
	*h = append(*h, q)
}

func (h *workQueueHeap) Pop() any {
	old := *h
	n := len(old)
	q := old[n-1]
	old[n-1] = nil
	q.heapIndex = -1
	*h = old[:n-1]
	return q
}
