// Package thread carries the thread-facing glue between the trap core and
// the external scheduler: the thread record read by the exception bridge,
// the signal kinds it can deliver, and the scheduler call-in points. The
// scheduler policy itself lives outside this core; it binds the hooks at
// boot.
package thread

import (
	"github.com/Oxmose/roOs-sub001/kernel"
	"github.com/Oxmose/roOs-sub001/kernel/kfmt"
	"github.com/Oxmose/roOs-sub001/kernel/vcpu"
)

// SignalKind identifies the signal classes a fault can raise on a thread.
type SignalKind uint8

const (
	// SignalFPE reports arithmetic and floating-point faults.
	SignalFPE SignalKind = iota
	// SignalIll reports invalid instruction streams.
	SignalIll
	// SignalExc reports faults with no more specific class.
	SignalExc
	// SignalSegv reports memory and protection violations.
	SignalSegv
)

// TerminateCause is the reason handed to the scheduler when a thread is
// terminated.
type TerminateCause uint32

// CausePanic marks a thread killed because its fault signal went
// unhandled.
const CausePanic TerminateCause = 1

var (
	errNilThread = &kernel.Error{
		Module:  "thread",
		Message: "null thread handle or missing signal context",
		Code:    kernel.ErrNullPointer,
	}
	errNoScheduler = &kernel.Error{
		Module:  "thread",
		Message: "scheduler not attached",
		Code:    kernel.ErrNotInitialized,
	}

	// ErrSignalUnhandled is how SignalThreadFn reports that the target
	// thread has no handler installed for the signal. The caller applies
	// the default disposition: terminate the thread.
	ErrSignalUnhandled = &kernel.Error{
		Module:  "thread",
		Message: "no handler bound for the signal",
		Code:    kernel.ErrNoSuchID,
	}
)

var panicFn = kfmt.Panic

// Scheduler call-in points. The defaults are fatal: the trap core is not
// usable before the scheduler binds them.
var (
	// SignalThreadFn delivers a signal to a thread.
	SignalThreadFn = func(t *Thread, kind SignalKind) *kernel.Error {
		panicFn(errNoScheduler)
		return errNoScheduler
	}

	// ThreadExitFn terminates the calling thread with a cause and status.
	ThreadExitFn = func(cause TerminateCause, status uint32) {
		panicFn(errNoScheduler)
	}

	// ScheduleNoIntFn re-enters the scheduler with interrupts already
	// masked, optionally re-enabling them once a thread is elected.
	ScheduleNoIntFn = func(enableInts bool) {
		panicFn(errNoScheduler)
	}

	// CurrentThreadFn returns the thread executing on the given CPU.
	CurrentThreadFn = func(cpuID uint8) *Thread {
		panicFn(errNoScheduler)
		return nil
	}
)

// ErrorRecord stores the last fault taken by a thread, read by whoever
// handles the resulting signal.
type ErrorRecord struct {
	ExceptionID     uint32
	InstructionAddr uint64
	VCPU            *vcpu.Context
}

// Thread is the schedulable unit seen by this core. VCPU points at the
// context the next restore will reload; it normally aliases ThreadVCPU and
// is switched to SignalVCPU while a signal handler runs.
type Thread struct {
	ID   uint32
	Name string

	StackBase uintptr
	StackTop  uintptr

	VCPU       *vcpu.Context
	ThreadVCPU *vcpu.Context
	SignalVCPU *vcpu.Context

	ErrorRecord ErrorRecord

	// Priority orders the thread in priority-disciplined wait queues.
	// Lower values are served first.
	Priority uint8
}

// RequestSignal redirects the thread into a signal handler: the live
// register state is copied into the dedicated signal context, the
// instruction pointer is rewritten to handlerAddr, and the active context
// pointer is swapped so the next restore enters the handler instead of
// resuming the thread. The regular context stays intact for the eventual
// return from the handler.
func (t *Thread) RequestSignal(handlerAddr uintptr) *kernel.Error {
	if t == nil || t.VCPU == nil || t.SignalVCPU == nil {
		return errNilThread
	}

	sig := t.SignalVCPU
	*sig = *t.VCPU
	sig.RIP = uint64(handlerAddr)

	// Re-align the handler stack the way a call would leave it.
	sig.RSP = (sig.RSP &^ 0xF) - 8

	t.VCPU = sig
	return nil
}
