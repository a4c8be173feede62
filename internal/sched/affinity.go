package sched

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"
)

// goroutineGuard enforces that state owned by the bound goroutine is only
// touched from that goroutine. Checks are opt-in (scheduler.debug_checks)
// because capturing the goroutine ID requires a stack dump; with checks
// disabled every method is effectively free.
//
// Cross-goroutine paths never consult the guard; they take the queue's
// posting lock instead.
type goroutineGuard struct {
	enabled bool
	id      atomic.Int64
}

// bind captures the calling goroutine as the owner. Panics if already bound.
func (g *goroutineGuard) bind() {
	if !g.enabled {
		g.id.Store(-1)
		return
	}
	if !g.id.CompareAndSwap(0, currentGoroutineID()) {
		panic("sched: scheduler is already bound to a goroutine")
	}
}

// check panics when called from a goroutine other than the bound one.
// A no-op until bind has been called or when checks are disabled.
func (g *goroutineGuard) check() {
	if !g.enabled {
		return
	}
	bound := g.id.Load()
	if bound <= 0 {
		return
	}
	if currentGoroutineID() != bound {
		panic("sched: main-goroutine-only state accessed from the wrong goroutine")
	}
}

// currentGoroutineID parses the goroutine ID out of the stack header
// ("goroutine N [running]:"). Slow; only used when debug checks are on.
func currentGoroutineID() int64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i > 0 {
		buf = buf[:i]
	}
	id, err := strconv.ParseInt(string(buf), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
