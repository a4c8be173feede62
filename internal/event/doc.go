// Package event provides a pub-sub event bus for decoupled observation of
// the scheduler.
//
// The scheduler publishes queue lifecycle, sampled task timing, and nested
// run-loop events without knowing who consumes them; the monitor UI and log
// sinks subscribe without touching scheduler internals.
//
// # Main Types
//
//   - [Event]: interface all events implement, providing EventType() and Timestamp()
//   - [Bus]: synchronous pub-sub dispatcher, safe for concurrent use
//   - [Handler]: function type for event handlers (func(Event))
//
// Handlers are called synchronously on the publishing goroutine and are
// protected against panics: a panicking handler does not prevent delivery to
// the remaining handlers. Scheduler events are published from the bound
// goroutine, so handlers must not block it.
//
// Event types follow the pattern "category.action": queue.created,
// queue.shutdown, task.timing, runloop.nested.
package event
