// Package sync provides the kernel's synchronization primitives: spinlocks,
// lock-free counters, a futex-style parking primitive and the counting
// semaphore built on top of them.
package sync

import (
	"sync/atomic"

	"github.com/Oxmose/roOs-sub001/kernel/cpu"
)

// pauseFn is substituted by tests to avoid starving the test scheduler
// while busy-waiting.
var pauseFn = cpu.Pause

// Spinlock implements a lock where each acquirer busy-waits until the lock
// becomes available. It must only guard short, bounded critical sections
// and never be held across a blocking call. Re-acquiring a lock already
// held by the current execution path deadlocks by design: there is no
// owner tracking and no recursion support.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock is acquired by the caller. Between failed
// attempts the lock word is only read, with a low-power spin-wait hint,
// so the cache line is not bounced across cores while the lock is held.
func (l *Spinlock) Acquire() {
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		for atomic.LoadUint32(&l.state) != 0 {
			pauseFn()
		}
	}
}

// TryToAcquire attempts to acquire the lock without spinning and returns
// true if the lock was acquired.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock. Releasing a free lock has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// enterCritical disables maskable interrupts on the calling CPU and
// returns the previous interrupt state so it can be restored.
func enterCritical() bool {
	state := cpu.InterruptsEnabled()
	cpu.DisableInterrupts()
	return state
}

// exitCritical restores the interrupt state captured by enterCritical.
func exitCritical(state bool) {
	if state {
		cpu.EnableInterrupts()
	}
}
