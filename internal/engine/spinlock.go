package engine

import (
	"runtime"
	"sync/atomic"
)

// Spinlock is a minimal busy-wait mutual exclusion gate. It is meant for
// critical sections in the microsecond range (participant-mask and scalar
// updates on a split point) and must never be held across a blocking wait.
// There is no ownership tracking, no reentrancy and no fairness.
type Spinlock struct {
	gate atomic.Int32
}

// Acquire spins until the gate is claimed. Between attempts it yields the
// processor so a hyperthread sibling holding the lock can make progress.
func (l *Spinlock) Acquire() {
	for !l.gate.CompareAndSwap(0, 1) {
		for l.gate.Load() != 0 {
			runtime.Gosched()
		}
	}
}

// Release marks the gate free.
func (l *Spinlock) Release() {
	l.gate.Store(0)
}
