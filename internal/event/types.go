package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "queue.created", "task.timing").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events. Embed it in concrete
// event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// QueueCreatedEvent is emitted when a task queue is created.
type QueueCreatedEvent struct {
	baseEvent
	Queue    string // Queue name
	Priority string // Initial priority name
}

// NewQueueCreatedEvent creates a QueueCreatedEvent.
func NewQueueCreatedEvent(queue, priority string) QueueCreatedEvent {
	return QueueCreatedEvent{
		baseEvent: newBaseEvent("queue.created"),
		Queue:     queue,
		Priority:  priority,
	}
}

// QueueShutdownEvent is emitted when a task queue is shut down and removed
// from its scheduler.
type QueueShutdownEvent struct {
	baseEvent
	Queue string // Queue name
}

// NewQueueShutdownEvent creates a QueueShutdownEvent.
func NewQueueShutdownEvent(queue string) QueueShutdownEvent {
	return QueueShutdownEvent{
		baseEvent: newBaseEvent("queue.shutdown"),
		Queue:     queue,
	}
}

// TaskTimingEvent carries sampled per-task wall-clock timing.
type TaskTimingEvent struct {
	baseEvent
	Queue      string    // Queue the task ran on
	PostedFrom string    // Call site the task was posted from (file:line)
	Start      time.Time // Task start, in the scheduler's time domain
	End        time.Time // Task end, in the scheduler's time domain
}

// NewTaskTimingEvent creates a TaskTimingEvent.
func NewTaskTimingEvent(queue, postedFrom string, start, end time.Time) TaskTimingEvent {
	return TaskTimingEvent{
		baseEvent:  newBaseEvent("task.timing"),
		Queue:      queue,
		PostedFrom: postedFrom,
		Start:      start,
		End:        end,
	}
}

// Duration returns the task's wall-clock run time.
func (e TaskTimingEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// NestedLoopEvent is emitted when the bound goroutine enters or exits a
// nested run loop.
type NestedLoopEvent struct {
	baseEvent
	Entered bool // true on enter, false on exit
	Depth   int  // Nesting depth after the transition
}

// NewNestedLoopEvent creates a NestedLoopEvent.
func NewNestedLoopEvent(entered bool, depth int) NestedLoopEvent {
	return NestedLoopEvent{
		baseEvent: newBaseEvent("runloop.nested"),
		Entered:   entered,
		Depth:     depth,
	}
}
