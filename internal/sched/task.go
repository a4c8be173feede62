package sched

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// TaskFunc is the unit of work executed by the scheduler. A task runs to
// completion once selected; the scheduler never suspends mid-task.
type TaskFunc func()

// Location records where a task was posted from, for debugging and
// diagnostics output.
type Location struct {
	Function string
	File     string
	Line     int
}

// String formats the location as file:line.
func (l Location) String() string {
	if l.File == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// callerLocation captures the posting call site. skip counts stack frames
// above this function, as in runtime.Caller.
func callerLocation(skip int) Location {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Location{}
	}
	loc := Location{File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		loc.Function = fn.Name()
	}
	return loc
}

// Task is a unit of work plus the metadata the scheduler needs to order and
// account for it. Once admitted to a queue a Task is immutable except for
// cancellation marking. Exactly one work queue owns a Task until it is
// popped for execution.
type Task struct {
	run        TaskFunc
	postedFrom Location
	taskType   int
	delay      time.Duration
	nestable   bool

	// desiredRunTime is the absolute time the task becomes eligible to
	// run. For immediate tasks it is the posting time.
	desiredRunTime time.Time

	// enqueueOrder is assigned at posting time for immediate tasks and at
	// delay expiry for delayed tasks.
	enqueueOrder EnqueueOrder

	// canceled is non-nil only for cancelable tasks.
	canceled *atomic.Bool
}

// EnqueueOrder returns the task's ordering key, or zero if the task has not
// been admitted yet.
func (t *Task) EnqueueOrder() EnqueueOrder { return t.enqueueOrder }

// PostedFrom returns the call site the task was posted from.
func (t *Task) PostedFrom() Location { return t.postedFrom }

// TaskType returns the caller-defined type tag.
func (t *Task) TaskType() int { return t.taskType }

// Nestable reports whether the task may run inside a nested run loop.
func (t *Task) Nestable() bool { return t.nestable }

// DesiredRunTime returns the absolute time the task becomes eligible to run.
func (t *Task) DesiredRunTime() time.Time { return t.desiredRunTime }

// Canceled reports whether the task has been canceled. Canceled tasks are
// dropped at selection time or during reclaim sweeps and never execute.
func (t *Task) Canceled() bool {
	return t.canceled != nil && t.canceled.Load()
}

// Run executes the task body.
func (t *Task) Run() { t.run() }

// TaskHandle cancels a task posted with PostCancelableDelayedTask. Safe to
// call from any goroutine and idempotent. Canceling a task that already ran
// has no effect.
type TaskHandle struct {
	canceled *atomic.Bool
}

// Cancel marks the task canceled.
func (h TaskHandle) Cancel() {
	if h.canceled != nil {
		h.canceled.Store(true)
	}
}
