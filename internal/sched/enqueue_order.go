package sched

import "sync/atomic"

// EnqueueOrder is the scheduler-wide ordering key assigned to a task at the
// moment it becomes eligible to run. For any two runnable tasks at the same
// priority, the one with the smaller EnqueueOrder runs first. Wall-clock
// time is never compared once a task has been enqueued.
type EnqueueOrder uint64

const (
	// enqueueOrderNone marks a task that has not been admitted yet
	// (a delayed task whose delay has not expired).
	enqueueOrderNone EnqueueOrder = 0

	// enqueueOrderBlockingFence sorts before every real enqueue order. A
	// fence at this value blocks every task currently in a queue.
	enqueueOrderBlockingFence EnqueueOrder = 1

	// enqueueOrderFirst is the first value a generator hands out.
	enqueueOrderFirst EnqueueOrder = 2
)

// IsSet reports whether the order has been assigned.
func (o EnqueueOrder) IsSet() bool {
	return o != enqueueOrderNone
}

// orderGenerator hands out monotonically increasing enqueue orders. Each
// Scheduler owns its own generator, so independent schedulers in one process
// produce independent sequences. Safe for use from any goroutine.
type orderGenerator struct {
	next atomic.Uint64
}

func newOrderGenerator() *orderGenerator {
	g := &orderGenerator{}
	g.next.Store(uint64(enqueueOrderFirst))
	return g
}

// Next returns the next enqueue order.
func (g *orderGenerator) Next() EnqueueOrder {
	return EnqueueOrder(g.next.Add(1) - 1)
}
