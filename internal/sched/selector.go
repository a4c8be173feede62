package sched

// SelectorConfig carries the starvation tuning knobs. The maxima bound how
// many times a runnable priority level may be passed over before it is
// forced to run; larger values mean more tolerance. Control has no knob (it
// always wins) and BestEffort has none either (it is never forced).
//
// The values are tuned constants, not derived quantities; all that matters
// structurally is that lower priorities are more tolerant.
type SelectorConfig struct {
	MaxHighestPriorityStarvationScore int
	MaxHighPriorityStarvationScore    int
	MaxNormalPriorityStarvationScore  int
	MaxLowPriorityStarvationScore     int

	// MaxDelayedStarvationTasks bounds how many consecutive selections a
	// backlog of already-expired delayed tasks may win over pending
	// immediate work at the same priority.
	MaxDelayedStarvationTasks int
}

// DefaultSelectorConfig returns the default tuning.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		MaxHighestPriorityStarvationScore: 3,
		MaxHighPriorityStarvationScore:    5,
		MaxNormalPriorityStarvationScore:  7,
		MaxLowPriorityStarvationScore:     25,
		MaxDelayedStarvationTasks:         3,
	}
}

// neverForced marks a priority level that accumulates no starvation score.
const neverForced = -1

// TaskQueueSelector decides which work queue runs next. Selection is
// priority order with two fairness overrides:
//
//   - Per-priority starvation scores. A runnable level's score increments
//     every time a more urgent level is chosen over it; once the score
//     reaches the level's configured maximum the level wins outright and
//     its score resets. Control bypasses scoring entirely and BestEffort
//     never forces a win.
//   - An immediate-versus-delayed guard. Within the chosen level the older
//     enqueue order wins, except that after MaxDelayedStarvationTasks
//     consecutive delayed wins a pending immediate task is forced.
//
// Selection never fails: an empty, fully fenced, or fully disabled system
// yields nil, which the scheduler reads as "idle until the next wake-up".
//
// Owned-goroutine only.
type TaskQueueSelector struct {
	immediateSets *WorkQueueSets
	delayedSets   *WorkQueueSets

	// active counts non-empty buckets per priority (0..2, one per kind),
	// maintained by the exactly-once set transition callbacks.
	active [PriorityCount]int

	starvation    [PriorityCount]int
	maxStarvation [PriorityCount]int

	delayedStarvation    int
	maxDelayedStarvation int
}

func newTaskQueueSelector(cfg SelectorConfig) *TaskQueueSelector {
	s := &TaskQueueSelector{
		maxDelayedStarvation: cfg.MaxDelayedStarvationTasks,
	}
	s.maxStarvation[PriorityControl] = neverForced
	s.maxStarvation[PriorityHighest] = cfg.MaxHighestPriorityStarvationScore
	s.maxStarvation[PriorityHigh] = cfg.MaxHighPriorityStarvationScore
	s.maxStarvation[PriorityNormal] = cfg.MaxNormalPriorityStarvationScore
	s.maxStarvation[PriorityLow] = cfg.MaxLowPriorityStarvationScore
	s.maxStarvation[PriorityBestEffort] = neverForced
	s.immediateSets = newWorkQueueSets("immediate", s)
	s.delayedSets = newWorkQueueSets("delayed", s)
	return s
}

// AddQueue registers both work queues of a task queue under its priority.
func (s *TaskQueueSelector) AddQueue(q *TaskQueue) {
	s.immediateSets.AddQueue(q.immediateWork, q.priority)
	s.delayedSets.AddQueue(q.delayedWork, q.priority)
}

// RemoveQueue unregisters a task queue's work queues.
func (s *TaskQueueSelector) RemoveQueue(q *TaskQueue) {
	s.immediateSets.RemoveQueue(q.immediateWork)
	s.delayedSets.RemoveQueue(q.delayedWork)
}

// SetQueuePriority moves a task queue's work queues to a new priority
// bucket. Already-queued tasks keep their enqueue orders, so FIFO within
// the destination bucket is preserved.
func (s *TaskQueueSelector) SetQueuePriority(q *TaskQueue, priority Priority) {
	s.immediateSets.ChangeSetIndex(q.immediateWork, priority)
	s.delayedSets.ChangeSetIndex(q.delayedWork, priority)
}

// SelectWorkQueue returns the work queue that should run next, or nil when
// nothing is runnable.
func (s *TaskQueueSelector) SelectWorkQueue() *WorkQueue {
	priority, ok := s.choosePriority()
	if !ok {
		return nil
	}

	immediate, immediateOrder := s.immediateSets.GetOldestQueueAndOrderInSet(priority)
	delayed, delayedOrder := s.delayedSets.GetOldestQueueAndOrderInSet(priority)

	var chosen *WorkQueue
	switch {
	case delayed == nil:
		chosen = immediate
	case immediate == nil:
		chosen = delayed
	case s.delayedStarvation >= s.maxDelayedStarvation:
		// A run of already-expired delayed tasks must not shut out
		// freshly posted immediate work indefinitely.
		chosen = immediate
	case delayedOrder < immediateOrder:
		chosen = delayed
	default:
		chosen = immediate
	}
	if chosen == nil {
		panic("sched: active priority " + priority.String() + " has no selectable queue")
	}

	if chosen.kind == KindDelayed && immediate != nil {
		s.delayedStarvation++
	} else {
		s.delayedStarvation = 0
	}
	s.didSelectPriority(priority)
	return chosen
}

// choosePriority picks the priority level to service.
func (s *TaskQueueSelector) choosePriority() (Priority, bool) {
	// Control is never starved by anything.
	if s.active[PriorityControl] > 0 {
		return PriorityControl, true
	}

	// A level whose patience ran out wins before any higher level. Scan
	// upward from the least urgent so the longest-tolerated level gets
	// its turn first.
	for p := PriorityCount - 1; p > PriorityControl; p-- {
		if s.active[p] > 0 && s.maxStarvation[p] >= 0 && s.starvation[p] >= s.maxStarvation[p] {
			return p, true
		}
	}

	for p := PriorityHighest; p < PriorityCount; p++ {
		if s.active[p] > 0 {
			return p, true
		}
	}
	return 0, false
}

// didSelectPriority resets the chosen level's score and ages every runnable
// level it was chosen over.
func (s *TaskQueueSelector) didSelectPriority(chosen Priority) {
	s.starvation[chosen] = 0
	for p := chosen + 1; p < PriorityCount; p++ {
		if s.active[p] > 0 && s.maxStarvation[p] >= 0 {
			s.starvation[p]++
		}
	}
}

// WorkQueueSetBecameNonEmpty implements SetObserver.
func (s *TaskQueueSelector) WorkQueueSetBecameNonEmpty(priority Priority) {
	s.active[priority]++
	if s.active[priority] > 2 {
		panic("sched: work queue set transition fired twice for " + priority.String())
	}
}

// WorkQueueSetBecameEmpty implements SetObserver.
func (s *TaskQueueSelector) WorkQueueSetBecameEmpty(priority Priority) {
	s.active[priority]--
	if s.active[priority] < 0 {
		panic("sched: work queue set transition fired twice for " + priority.String())
	}
	if s.active[priority] == 0 {
		// A level with no runnable work accrues no patience.
		s.starvation[priority] = 0
	}
}

// hasRunnableWork reports whether any priority level has a selectable queue.
func (s *TaskQueueSelector) hasRunnableWork() bool {
	for p := PriorityControl; p < PriorityCount; p++ {
		if s.active[p] > 0 {
			return true
		}
	}
	return false
}
