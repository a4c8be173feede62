package sched

// Priority orders task queues. Smaller values are more urgent. Control
// queues are never starved by anything; BestEffort queues may be starved
// completely. Priority is mutable at runtime via TaskQueue.SetQueuePriority.
type Priority int

const (
	// PriorityControl is for scheduler-internal control tasks. A runnable
	// Control queue always wins selection.
	PriorityControl Priority = iota
	// PriorityHighest is the most urgent user-visible priority.
	PriorityHighest
	// PriorityHigh is for latency-sensitive work.
	PriorityHigh
	// PriorityNormal is the default priority.
	PriorityNormal
	// PriorityLow is for work that can tolerate significant delay.
	PriorityLow
	// PriorityBestEffort runs only when nothing else is runnable. It may
	// never run at all under sustained load.
	PriorityBestEffort

	// PriorityCount is the number of priority levels.
	PriorityCount
)

var priorityNames = map[Priority]string{
	PriorityControl:    "control",
	PriorityHighest:    "highest",
	PriorityHigh:       "high",
	PriorityNormal:     "normal",
	PriorityLow:        "low",
	PriorityBestEffort: "best-effort",
}

var namePriorities = map[string]Priority{
	"control":     PriorityControl,
	"highest":     PriorityHighest,
	"high":        PriorityHigh,
	"normal":      PriorityNormal,
	"low":         PriorityLow,
	"best-effort": PriorityBestEffort,
}

// String returns the priority name, or "unknown" for out-of-range values.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return "unknown"
}

// IsValid reports whether p is one of the defined priority levels.
func (p Priority) IsValid() bool {
	return p >= PriorityControl && p < PriorityCount
}

// ParsePriority converts a priority name to a Priority. Unrecognized names
// parse as PriorityNormal with ok == false.
func ParsePriority(name string) (Priority, bool) {
	if p, ok := namePriorities[name]; ok {
		return p, true
	}
	return PriorityNormal, false
}
