package sync

import (
	"sync/atomic"

	"github.com/Oxmose/roOs-sub001/kernel"
	"github.com/Oxmose/roOs-sub001/kernel/kfmt"
)

// semaphoreMaxLevel is the maximal semaphore level.
const semaphoreMaxLevel = 0x7FFFFFFF

// SemaphoreFlag configures a semaphore at Init time.
type SemaphoreFlag uint32

const (
	// SemQueuingFIFO releases blocked waiters in blocking order.
	SemQueuingFIFO SemaphoreFlag = 0x01

	// SemQueuingPriority releases the highest-priority waiter first.
	// Mutually exclusive with SemQueuingFIFO.
	SemQueuingPriority SemaphoreFlag = 0x02

	// SemBinary caps the level at one, giving mutex-like semantics: a
	// post on a full binary semaphore is a no-op, not an error.
	SemBinary SemaphoreFlag = 0x04
)

var (
	errSemNil = &kernel.Error{
		Module:  "semaphore",
		Message: "nil semaphore handle",
		Code:    kernel.ErrNullPointer,
	}
	errSemNotInit = &kernel.Error{
		Module:  "semaphore",
		Message: "semaphore is not initialized",
		Code:    kernel.ErrNotInitialized,
	}
	errSemBadFlags = &kernel.Error{
		Module:  "semaphore",
		Message: "FIFO and priority queuing are mutually exclusive",
		Code:    kernel.ErrIncorrectValue,
	}
	errSemWouldBlock = &kernel.Error{
		Module:  "semaphore",
		Message: "semaphore acquisition would block",
		Code:    kernel.ErrWouldBlock,
	}
	errSemDestroyed = &kernel.Error{
		Module:  "semaphore",
		Message: "semaphore was destroyed while waiting",
		Code:    kernel.ErrDestroyed,
	}
)

// panicFn is substituted by tests.
var panicFn = kfmt.Panic

// Semaphore is a counting synchronization primitive with blocking waiters
// parked on a futex. The level counts available units; while it is zero or
// negative, Wait blocks until a matching Post. The futex word mirrors
// availability (1 while units are available, 0 otherwise) so that parking
// and posting cannot lose a wakeup.
type Semaphore struct {
	level int32
	flags SemaphoreFlag
	lock  Spinlock
	futex Futex
	init  bool
}

// Init sets the starting level and the queuing discipline. For binary
// semaphores any non-zero starting level is clamped to one.
func (s *Semaphore) Init(level int32, flags SemaphoreFlag) *kernel.Error {
	if s == nil {
		return errSemNil
	}

	if flags&SemQueuingFIFO != 0 && flags&SemQueuingPriority != 0 {
		return errSemBadFlags
	}

	if flags&SemBinary != 0 {
		if level != 0 {
			level = 1
		}
	}

	discipline := QueuingFIFO
	if flags&SemQueuingPriority != 0 {
		discipline = QueuingPriority
	}

	s.level = level
	s.flags = flags
	if err := s.futex.Init(discipline); err != nil {
		return err
	}
	if level > 0 {
		atomic.StoreUint32(&s.futex.Word, 1)
	} else {
		atomic.StoreUint32(&s.futex.Word, 0)
	}
	s.init = true

	return nil
}

// Wait acquires one unit, blocking on the futex while none is available.
// It fails with ErrDestroyed if the semaphore is destroyed while waiting
// and with ErrNotInitialized if it was never initialized.
func (s *Semaphore) Wait() *kernel.Error {
	if s == nil {
		return errSemNil
	}

	intState := enterCritical()
	s.lock.Acquire()

	if !s.init {
		s.lock.Release()
		exitCritical(intState)
		return errSemNotInit
	}

	if s.level > 0 {
		s.acquireUnit()
		s.lock.Release()
		exitCritical(intState)
		return nil
	}

	for {
		s.lock.Release()
		err := s.futex.Wait(0)
		s.lock.Acquire()

		if !s.init || (err != nil && err.Code == kernel.ErrDestroyed) {
			s.lock.Release()
			exitCritical(intState)
			return errSemDestroyed
		}

		if err == nil {
			// Woken by a Post, which already transferred one unit to
			// the caller; only the availability word needs syncing.
			if s.level <= 0 {
				atomic.StoreUint32(&s.futex.Word, 0)
			}
			s.lock.Release()
			exitCritical(intState)
			return nil
		}

		// The word moved before the caller parked; race the unit.
		if s.level > 0 {
			s.acquireUnit()
			s.lock.Release()
			exitCritical(intState)
			return nil
		}
	}
}

// TryWait attempts the same acquisition as Wait without ever blocking.
// The level after the attempt is reported through outLevel regardless of
// the outcome; a failed attempt leaves the level unchanged and reports
// ErrWouldBlock.
func (s *Semaphore) TryWait(outLevel *int32) *kernel.Error {
	if s == nil {
		return errSemNil
	}

	s.lock.Acquire()

	if !s.init {
		s.lock.Release()
		return errSemNotInit
	}

	if s.level > 0 {
		s.acquireUnit()
		if outLevel != nil {
			*outLevel = s.level
		}
		s.lock.Release()
		return nil
	}

	if outLevel != nil {
		*outLevel = s.level
	}
	s.lock.Release()

	return errSemWouldBlock
}

// Post releases one unit and wakes exactly one blocked waiter if any is
// parked. Posting a full binary semaphore is a no-op success.
func (s *Semaphore) Post() *kernel.Error {
	if s == nil {
		return errSemNil
	}

	intState := enterCritical()
	s.lock.Acquire()

	if !s.init {
		s.lock.Release()
		exitCritical(intState)
		return errSemNotInit
	}

	if (s.flags&SemBinary == 0 || s.level <= 0) && s.level < semaphoreMaxLevel {
		s.level++
	}

	if s.level > 0 {
		atomic.StoreUint32(&s.futex.Word, 1)

		woken, err := s.futex.Wake(1)
		switch {
		case err == nil && woken == 1:
			// Transfer the freshly posted unit to the woken waiter.
			s.level--
			if s.level <= 0 {
				atomic.StoreUint32(&s.futex.Word, 0)
			}
		case err != nil && err.Code == kernel.ErrNoSuchID:
			// Nothing parked; the unit stays available.
		case err != nil:
			// A waiter is owed a wake that cannot be delivered; the
			// semaphore state can no longer be trusted.
			panicFn(err)
		}
	}

	s.lock.Release()
	exitCritical(intState)

	return nil
}

// Destroy wakes every parked waiter with a failure result and marks the
// semaphore uninitialized. Any use after Destroy fails.
func (s *Semaphore) Destroy() *kernel.Error {
	if s == nil {
		return errSemNil
	}

	s.lock.Acquire()

	if !s.init {
		s.lock.Release()
		return errSemNotInit
	}

	s.init = false
	s.level = semaphoreMaxLevel
	atomic.StoreUint32(&s.futex.Word, 1)
	s.futex.Destroy()

	s.lock.Release()

	return nil
}

// acquireUnit takes one available unit. Caller holds the lock and has
// checked level > 0.
func (s *Semaphore) acquireUnit() {
	s.level--
	if s.level <= 0 {
		atomic.StoreUint32(&s.futex.Word, 0)
	}
}
