package sync

import (
	"sync/atomic"

	"github.com/Oxmose/roOs-sub001/kernel"
)

// QueuingDiscipline selects the order in which blocked waiters are woken.
type QueuingDiscipline uint8

const (
	// QueuingFIFO wakes waiters in blocking order.
	QueuingFIFO QueuingDiscipline = iota

	// QueuingPriority wakes the highest-priority waiter first; lower
	// numeric values mean higher priority, ties break in FIFO order.
	QueuingPriority
)

var (
	errFutexNil = &kernel.Error{
		Module:  "futex",
		Message: "nil futex handle",
		Code:    kernel.ErrNullPointer,
	}
	errFutexDead = &kernel.Error{
		Module:  "futex",
		Message: "futex was destroyed",
		Code:    kernel.ErrDestroyed,
	}
	errFutexNotBlocked = &kernel.Error{
		Module:  "futex",
		Message: "value changed before parking",
		Code:    kernel.ErrNotBlocked,
	}
	errFutexNoWaiter = &kernel.Error{
		Module:  "futex",
		Message: "no waiter to wake",
		Code:    kernel.ErrNoSuchID,
	}
)

// waiterPriorityFn reports the priority of the calling thread for the
// priority queuing discipline. The scheduler binds it when it attaches;
// the default gives every waiter equal priority.
var waiterPriorityFn = func() uint8 { return 0 }

// SetWaiterPriorityProvider binds the function used to read the calling
// thread's priority when enqueuing on a priority-ordered futex.
func SetWaiterPriorityProvider(fn func() uint8) {
	waiterPriorityFn = fn
}

type futexWaiter struct {
	priority uint8
	wake     chan *kernel.Error
}

// Futex parks callers until the value word moves away from an expected
// value or a wake is posted, avoiding any busy-waiting. It is the blocking
// primitive under the counting semaphore and is usable on its own.
type Futex struct {
	// Word is the watched value. Mutating it is the caller's job; the
	// futex only compares it against the expected value under its lock.
	Word uint32

	lock       Spinlock
	discipline QueuingDiscipline
	alive      bool
	waiters    []futexWaiter
}

// Init prepares the futex with the supplied queuing discipline.
func (f *Futex) Init(discipline QueuingDiscipline) *kernel.Error {
	if f == nil {
		return errFutexNil
	}

	f.lock.Acquire()
	f.discipline = discipline
	f.alive = true
	f.waiters = nil
	f.lock.Release()

	return nil
}

// Wait parks the caller for as long as the value word equals expected.
// It returns nil when released by Wake, ErrNotBlocked when the value had
// already changed so the caller never parked, and ErrDestroyed when the
// futex was destroyed while waiting.
func (f *Futex) Wait(expected uint32) *kernel.Error {
	if f == nil {
		return errFutexNil
	}

	f.lock.Acquire()
	if !f.alive {
		f.lock.Release()
		return errFutexDead
	}

	if atomic.LoadUint32(&f.Word) != expected {
		f.lock.Release()
		return errFutexNotBlocked
	}

	w := futexWaiter{
		priority: waiterPriorityFn(),
		wake:     make(chan *kernel.Error, 1),
	}
	f.waiters = append(f.waiters, w)
	f.lock.Release()

	// Park until a Wake or Destroy posts a result. The channel stands in
	// for the scheduler's thread-parking call.
	return <-w.wake
}

// Wake releases up to count parked waiters according to the queuing
// discipline and returns how many were released. Waking with no waiter
// parked reports ErrNoSuchID.
func (f *Futex) Wake(count uint32) (uint32, *kernel.Error) {
	if f == nil {
		return 0, errFutexNil
	}

	f.lock.Acquire()
	if !f.alive {
		f.lock.Release()
		return 0, errFutexDead
	}

	var woken uint32
	for woken < count && len(f.waiters) > 0 {
		f.dequeue().wake <- nil
		woken++
	}
	f.lock.Release()

	if woken == 0 {
		return 0, errFutexNoWaiter
	}
	return woken, nil
}

// Destroy releases every parked waiter with a failure result and marks
// the futex dead; any further use fails with ErrDestroyed.
func (f *Futex) Destroy() *kernel.Error {
	if f == nil {
		return errFutexNil
	}

	f.lock.Acquire()
	if !f.alive {
		f.lock.Release()
		return errFutexDead
	}

	f.alive = false
	for len(f.waiters) > 0 {
		f.dequeue().wake <- errFutexDead
	}
	f.waiters = nil
	f.lock.Release()

	return nil
}

// dequeue pops the next waiter per the discipline. Caller holds the lock.
func (f *Futex) dequeue() futexWaiter {
	next := 0
	if f.discipline == QueuingPriority {
		for i := 1; i < len(f.waiters); i++ {
			if f.waiters[i].priority < f.waiters[next].priority {
				next = i
			}
		}
	}

	w := f.waiters[next]
	f.waiters = append(f.waiters[:next], f.waiters[next+1:]...)
	return w
}
