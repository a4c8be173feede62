package sched

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/strand/internal/event"
	"github.com/Iron-Ham/strand/internal/logging"
)

// State tracks the scheduler lifecycle. Transitions are one-shot and
// ordered: Unbound → Bound → Active → ShuttingDown → Destroyed.
type State int32

const (
	// StateUnbound is the state after New; the scheduler may be handed to
	// another goroutine but cannot select tasks.
	StateUnbound State = iota
	// StateBound means BindToCurrentGoroutine ran; initialization on the
	// bound goroutine is still pending.
	StateBound
	// StateActive means the scheduler can create queues and select tasks.
	StateActive
	// StateShuttingDown means teardown has started.
	StateShuttingDown
	// StateDestroyed is terminal.
	StateDestroyed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting-down"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// Observer is notified when the bound goroutine enters or exits a nested run
// loop, for embedders that re-enter the run loop from within a task.
type Observer interface {
	OnBeginNestedRunLoop()
	OnExitNestedRunLoop()
}

// TaskTimeObserver receives per-task timing at a configured sampling rate.
// Scheduling decisions never depend on whether observers are present.
type TaskTimeObserver interface {
	WillProcessTask(queueName string, start time.Time)
	DidProcessTask(queueName string, start, end time.Time)
}

// WakeSink is notified whenever the earliest eligible run time may have
// changed. runTime can be in the past, meaning "run immediately". It is
// invoked from arbitrary goroutines and must not block.
type WakeSink interface {
	OnWakeUp(runTime time.Time)
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithTimeDomain installs the clock used to convert delays into absolute run
// times. Defaults to the real clock.
func WithTimeDomain(td TimeDomain) Option {
	return func(s *Scheduler) { s.timeDomain = td }
}

// WithLogger installs a structured logger. Defaults to a no-op logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithBus installs an event bus that receives queue lifecycle, task timing
// and nested-loop events.
func WithBus(bus *event.Bus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// WithSelectorConfig overrides the starvation tuning.
func WithSelectorConfig(cfg SelectorConfig) Option {
	return func(s *Scheduler) { s.selectorCfg = cfg }
}

// WithWakeSink installs the wake notification sink. Must be set before the
// first task is posted.
func WithWakeSink(sink WakeSink) Option {
	return func(s *Scheduler) { s.wakeSink = sink }
}

// WithReclaimInterval sets how often canceled delayed tasks are swept out of
// queues to bound memory. Zero disables periodic sweeping.
func WithReclaimInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.reclaimInterval = d }
}

// WithTaskSampling sets the fraction of tasks reported to time observers and
// the event bus, in [0, 1].
func WithTaskSampling(rate float64) Option {
	return func(s *Scheduler) { s.samplingRate = rate }
}

// WithDebugChecks enables goroutine-affinity assertions on bound-goroutine
// APIs. Off by default; tests turn it on.
func WithDebugChecks(enabled bool) Option {
	return func(s *Scheduler) { s.mainGuard.enabled = enabled }
}

const defaultReclaimInterval = 30 * time.Second

// SelectedTask is a task popped from its work queue, owned by the caller.
type SelectedTask struct {
	Task  Task
	Queue *TaskQueue
}

// Scheduler multiplexes a dynamic set of prioritized task queues onto one
// executing goroutine. Construct with New (possibly on another goroutine),
// hand off, then BindToCurrentGoroutine and CompleteInitialization on the
// goroutine that will execute tasks. Queues are created after that.
//
// The external run-loop driver repeatedly calls RunNextTask (or TakeTask)
// until it reports no work, then DelayTillNextTask to learn how long to
// block. Runner is the in-repo driver.
type Scheduler struct {
	log         *logging.Logger
	bus         *event.Bus
	timeDomain  TimeDomain
	wakeSink    WakeSink
	selectorCfg SelectorConfig

	orderGen  *orderGenerator
	selector  *TaskQueueSelector
	mainGuard goroutineGuard
	state     atomic.Int32

	// Bound-goroutine state.
	queues              map[*TaskQueue]struct{}
	observers           []Observer
	timeObservers       []TaskTimeObserver
	nesting             int
	deferredNonNestable []SelectedTask
	rng                 *rand.Rand
	nextReclaim         time.Time
	haveDelayedWake     bool
	nextDelayedWake     time.Time

	reclaimInterval time.Duration
	samplingRate    float64

	ranTasks  atomic.Bool
	tasksRun  atomic.Uint64
	anyThread struct {
		mu             sync.Mutex
		queuesToReload []*TaskQueue
		liveQueues     []*TaskQueue
	}
}

// New creates an unbound scheduler. Safe to call on any goroutine.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		timeDomain:      RealTimeDomain{},
		log:             logging.NopLogger(),
		selectorCfg:     DefaultSelectorConfig(),
		reclaimInterval: defaultReclaimInterval,
		orderGen:        newOrderGenerator(),
		queues:          make(map[*TaskQueue]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.selector = newTaskQueueSelector(s.selectorCfg)
	return s
}

// State returns the current lifecycle state. Safe from any goroutine.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// SetWakeSink installs the wake notification sink. Must be called before
// the first task is posted; later changes would race with posting.
func (s *Scheduler) SetWakeSink(sink WakeSink) {
	s.wakeSink = sink
}

// BindToCurrentGoroutine binds the scheduler to the calling goroutine, which
// becomes the only goroutine allowed to select and run tasks. One-shot;
// panics if called twice or after teardown started.
func (s *Scheduler) BindToCurrentGoroutine() {
	if !s.state.CompareAndSwap(int32(StateUnbound), int32(StateBound)) {
		panic("sched: BindToCurrentGoroutine called in state " + s.State().String())
	}
	s.mainGuard.bind()
}

// CompleteInitialization finishes two-phase setup on the bound goroutine.
// Queues may be created and tasks selected only after this returns.
func (s *Scheduler) CompleteInitialization() {
	s.mainGuard.check()
	if !s.state.CompareAndSwap(int32(StateBound), int32(StateActive)) {
		panic("sched: CompleteInitialization called in state " + s.State().String())
	}
	s.rng = rand.New(rand.NewSource(s.timeDomain.Now().UnixNano()))
	s.nextReclaim = s.timeDomain.Now().Add(s.reclaimInterval)
	s.log.Debug("scheduler initialized")
}

// CreateTaskQueue creates a new task queue owned by this scheduler. Bound
// goroutine only; the scheduler must be active.
func (s *Scheduler) CreateTaskQueue(spec Spec) *TaskQueue {
	s.mainGuard.check()
	if s.State() != StateActive {
		panic("sched: CreateTaskQueue called in state " + s.State().String())
	}
	if spec.Name == "" {
		panic("sched: task queue spec requires a name")
	}
	if !spec.Priority.IsValid() {
		panic("sched: task queue spec has invalid priority")
	}
	q := newTaskQueue(s, spec)
	s.queues[q] = struct{}{}
	s.selector.AddQueue(q)

	s.anyThread.mu.Lock()
	s.anyThread.liveQueues = append(s.anyThread.liveQueues, q)
	s.anyThread.mu.Unlock()

	s.log.Debug("task queue created", "queue", spec.Name, "priority", spec.Priority.String())
	if s.bus != nil {
		s.bus.Publish(event.NewQueueCreatedEvent(spec.Name, spec.Priority.String()))
	}
	return q
}

// unregisterQueue removes a queue from selection. Called by queue shutdown
// on the bound goroutine.
func (s *Scheduler) unregisterQueue(q *TaskQueue) {
	s.selector.RemoveQueue(q)
	delete(s.queues, q)

	s.anyThread.mu.Lock()
	for i, lq := range s.anyThread.liveQueues {
		if lq == q {
			s.anyThread.liveQueues = append(s.anyThread.liveQueues[:i], s.anyThread.liveQueues[i+1:]...)
			break
		}
	}
	s.anyThread.mu.Unlock()

	s.log.Debug("task queue shut down", "queue", q.name)
	if s.bus != nil {
		s.bus.Publish(event.NewQueueShutdownEvent(q.name))
	}
}

// onQueueHasIncomingWork is called from admit on any goroutine. register is
// true the first time a queue gains incoming work since its last reload.
func (s *Scheduler) onQueueHasIncomingWork(q *TaskQueue, runTime time.Time, register bool) {
	if register {
		s.anyThread.mu.Lock()
		s.anyThread.queuesToReload = append(s.anyThread.queuesToReload, q)
		s.anyThread.mu.Unlock()
	}
	if s.wakeSink != nil {
		s.wakeSink.OnWakeUp(runTime)
	}
}

// scheduleWork signals that previously blocked work may now be runnable.
func (s *Scheduler) scheduleWork() {
	if s.wakeSink != nil {
		s.wakeSink.OnWakeUp(s.timeDomain.Now())
	}
}

// reloadEmptyQueues moves cross-goroutine posted tasks into bound-goroutine
// storage for every queue that registered incoming work.
func (s *Scheduler) reloadEmptyQueues() {
	s.anyThread.mu.Lock()
	toReload := s.anyThread.queuesToReload
	s.anyThread.queuesToReload = nil
	s.anyThread.mu.Unlock()

	for _, q := range toReload {
		q.reloadIncoming()
		if len(q.delayedIncoming) > 0 {
			s.noteDelayedWake(q.delayedIncoming[0].Task.desiredRunTime)
		}
	}
}

func (s *Scheduler) noteDelayedWake(t time.Time) {
	if !s.haveDelayedWake || t.Before(s.nextDelayedWake) {
		s.haveDelayedWake = true
		s.nextDelayedWake = t
	}
}

// promoteReadyDelayedTasks assigns enqueue orders to expired delayed tasks.
// Skipped entirely while no pending delayed task has expired yet.
func (s *Scheduler) promoteReadyDelayedTasks(now time.Time) {
	if !s.haveDelayedWake || now.Before(s.nextDelayedWake) {
		return
	}
	s.haveDelayedWake = false
	for q := range s.queues {
		q.moveReadyDelayedTasks(now)
		if wake, ok := q.nextDelayedWakeTime(); ok {
			s.noteDelayedWake(wake)
		}
	}
}

// TakeTask selects, removes and returns the next runnable task. Ownership
// of the task transfers to the caller, which is expected to run it. Returns
// false when nothing is runnable. Bound goroutine only.
func (s *Scheduler) TakeTask() (SelectedTask, bool) {
	s.mainGuard.check()
	if s.State() != StateActive {
		panic("sched: TakeTask called in state " + s.State().String())
	}
	s.reloadEmptyQueues()
	s.promoteReadyDelayedTasks(s.timeDomain.Now())

	if s.nesting == 0 && len(s.deferredNonNestable) > 0 {
		sel := s.deferredNonNestable[0]
		s.deferredNonNestable = s.deferredNonNestable[1:]
		return sel, true
	}

	for {
		wq := s.selector.SelectWorkQueue()
		if wq == nil {
			return SelectedTask{}, false
		}
		task := wq.TakeTask()
		owner := wq.owner
		owner.updateDepthStats()
		if task.Canceled() {
			continue
		}
		if s.nesting > 0 && !task.nestable {
			// Non-nestable tasks wait out the nested loop.
			s.deferredNonNestable = append(s.deferredNonNestable, SelectedTask{Task: task, Queue: owner})
			continue
		}
		return SelectedTask{Task: task, Queue: owner}, true
	}
}

// RunNextTask selects and executes one task, reporting whether anything ran.
// Bound goroutine only.
func (s *Scheduler) RunNextTask() bool {
	sel, ok := s.TakeTask()
	if !ok {
		s.maybeReclaimMemory(s.timeDomain.Now())
		return false
	}

	sampled := s.samplingRate > 0 && s.rng.Float64() < s.samplingRate
	start := s.timeDomain.Now()
	if sampled {
		for _, o := range s.timeObservers {
			o.WillProcessTask(sel.Queue.name, start)
		}
	}

	sel.Task.Run()

	end := s.timeDomain.Now()
	if sampled {
		for _, o := range s.timeObservers {
			o.DidProcessTask(sel.Queue.name, start, end)
		}
		if s.bus != nil {
			s.bus.Publish(event.NewTaskTimingEvent(sel.Queue.name, sel.Task.PostedFrom().String(), start, end))
		}
	}

	s.ranTasks.Store(true)
	s.tasksRun.Add(1)
	s.maybeReclaimMemory(end)
	return true
}

// RunBatch runs up to n tasks and returns how many ran. Batching trades
// dispatch overhead against fairness with other work sources sharing the
// goroutine.
func (s *Scheduler) RunBatch(n int) int {
	ran := 0
	for ran < n && s.RunNextTask() {
		ran++
	}
	return ran
}

// RunUntilIdle runs tasks until none are runnable, returning the count.
// Intended for tests and simple embedders; a flood of posts can keep this
// from returning.
func (s *Scheduler) RunUntilIdle() int {
	ran := 0
	for s.RunNextTask() {
		ran++
	}
	return ran
}

// DelayTillNextTask reports how long the driver should wait before asking
// for work again: zero with ok true means work is runnable now, a positive
// duration means the next delayed task expires then, and ok false means
// there is no pending work at all. Bound goroutine only.
func (s *Scheduler) DelayTillNextTask() (time.Duration, bool) {
	s.mainGuard.check()
	now := s.timeDomain.Now()
	s.reloadEmptyQueues()
	s.promoteReadyDelayedTasks(now)

	if s.selector.hasRunnableWork() {
		return 0, true
	}
	if s.nesting == 0 && len(s.deferredNonNestable) > 0 {
		return 0, true
	}

	var earliest time.Time
	found := false
	for q := range s.queues {
		wake, ok := q.nextDelayedWakeTime()
		if !ok {
			continue
		}
		if !found || wake.Before(earliest) {
			earliest = wake
			found = true
		}
	}
	if !found {
		return 0, false
	}
	delay := earliest.Sub(now)
	if delay < 0 {
		delay = 0
	}
	return delay, true
}

// RanTasksSinceLastCheck reports whether any task executed since the
// previous call, clearing the flag. Used for quiescence detection. Safe
// from any goroutine.
func (s *Scheduler) RanTasksSinceLastCheck() bool {
	return s.ranTasks.Swap(false)
}

// TasksRun returns the total number of tasks executed. Safe from any
// goroutine.
func (s *Scheduler) TasksRun() uint64 {
	return s.tasksRun.Load()
}

// ReclaimMemory sweeps canceled tasks out of every queue immediately.
// Bound goroutine only.
func (s *Scheduler) ReclaimMemory() int {
	s.mainGuard.check()
	removed := 0
	for q := range s.queues {
		removed += q.sweepCanceledTasks()
	}
	if removed > 0 {
		s.log.Debug("reclaimed canceled tasks", "count", removed)
	}
	return removed
}

func (s *Scheduler) maybeReclaimMemory(now time.Time) {
	if s.reclaimInterval <= 0 || now.Before(s.nextReclaim) {
		return
	}
	s.nextReclaim = now.Add(s.reclaimInterval)
	s.ReclaimMemory()
}

// AddObserver registers a nested-run-loop observer. Bound goroutine only.
func (s *Scheduler) AddObserver(o Observer) {
	s.mainGuard.check()
	s.observers = append(s.observers, o)
}

// AddTaskTimeObserver registers a per-task timing observer. Bound goroutine
// only.
func (s *Scheduler) AddTaskTimeObserver(o TaskTimeObserver) {
	s.mainGuard.check()
	s.timeObservers = append(s.timeObservers, o)
}

// OnBeginNestedRunLoop must be called by embedders that re-enter the run
// loop from inside a running task. While nested, non-nestable tasks are
// deferred until the nested loop exits. Bound goroutine only.
func (s *Scheduler) OnBeginNestedRunLoop() {
	s.mainGuard.check()
	s.nesting++
	for _, o := range s.observers {
		o.OnBeginNestedRunLoop()
	}
	if s.bus != nil {
		s.bus.Publish(event.NewNestedLoopEvent(true, s.nesting))
	}
}

// OnExitNestedRunLoop signals the nested run loop exited. Bound goroutine
// only.
func (s *Scheduler) OnExitNestedRunLoop() {
	s.mainGuard.check()
	if s.nesting == 0 {
		panic("sched: OnExitNestedRunLoop without a matching begin")
	}
	s.nesting--
	for _, o := range s.observers {
		o.OnExitNestedRunLoop()
	}
	if s.bus != nil {
		s.bus.Publish(event.NewNestedLoopEvent(false, s.nesting))
	}
	if s.nesting == 0 && len(s.deferredNonNestable) > 0 {
		s.scheduleWork()
	}
}

// Shutdown tears down the scheduler: every live queue is shut down and the
// state becomes Destroyed. Idempotent. Bound goroutine only.
func (s *Scheduler) Shutdown() {
	s.mainGuard.check()
	if !s.state.CompareAndSwap(int32(StateActive), int32(StateShuttingDown)) {
		return
	}
	for _, q := range s.liveQueueList() {
		q.ShutdownTaskQueue()
	}
	s.state.Store(int32(StateDestroyed))
	s.log.Debug("scheduler destroyed", "tasks_run", s.tasksRun.Load())
}

func (s *Scheduler) liveQueueList() []*TaskQueue {
	s.anyThread.mu.Lock()
	defer s.anyThread.mu.Unlock()
	return append([]*TaskQueue(nil), s.anyThread.liveQueues...)
}

// QueueSnapshot is a point-in-time view of one queue, safe to read from any
// goroutine. Depths are approximate while the scheduler is running.
type QueueSnapshot struct {
	Name           string
	Priority       Priority
	Enabled        bool
	Fenced         bool
	ShutDown       bool
	ImmediateDepth int
	DelayedDepth   int
	IncomingDepth  int
}

// Snapshot returns a diagnostic view of all live queues. Safe from any
// goroutine.
func (s *Scheduler) Snapshot() []QueueSnapshot {
	queues := s.liveQueueList()
	snaps := make([]QueueSnapshot, 0, len(queues))
	for _, q := range queues {
		snaps = append(snaps, QueueSnapshot{
			Name:           q.name,
			Priority:       Priority(q.statPriority.Load()),
			Enabled:        q.statEnabled.Load(),
			Fenced:         q.statFenced.Load(),
			ShutDown:       q.statShutdown.Load(),
			ImmediateDepth: int(q.statImmediate.Load()),
			DelayedDepth:   int(q.statDelayed.Load()),
			IncomingDepth:  int(q.statIncoming.Load()),
		})
	}
	return snaps
}
