// Package sched implements a single-goroutine, multi-queue task scheduler.
//
// A Scheduler multiplexes an arbitrary, dynamically changing set of
// prioritized task queues onto one executing goroutine. Producers on any
// goroutine post tasks to a TaskQueue; the goroutine the Scheduler is bound
// to repeatedly asks it for the next task and runs it to completion.
//
// Ordering is driven by a single primitive: every task receives a
// monotonically increasing enqueue order at the moment it becomes eligible
// to run (posting time for immediate tasks, delay expiry for delayed tasks).
// Within a priority level, tasks run in enqueue order. Across priority
// levels, selection is priority-based with per-level starvation bounds so
// that lower priorities cannot be skipped indefinitely.
//
// Queues support runtime priority changes, enable/disable voting, execution
// fences that block tasks at or after a given enqueue order, and graceful
// shutdown. Time is supplied by a pluggable TimeDomain so tests can run on
// virtual time.
package sched
