package gate

import (
	"github.com/Oxmose/roOs-sub001/kernel"
	"github.com/Oxmose/roOs-sub001/kernel/cpu"
	"github.com/Oxmose/roOs-sub001/kernel/sync"
	"github.com/Oxmose/roOs-sub001/kernel/thread"
	"github.com/Oxmose/roOs-sub001/kernel/vcpu"
)

var errUnhandledException = &kernel.Error{
	Module:  "gate",
	Message: "exception taken with no handler bound",
	Code:    kernel.ErrNoSuchID,
}

// spuriousCount tracks interrupt deliveries that reached the dispatcher
// with no handler bound, including the dedicated spurious line.
var spuriousCount sync.Counter

// SpuriousCount returns how many spurious interrupts were dispatched.
func SpuriousCount() int32 {
	return spuriousCount.Load()
}

// Dispatch is the common trap path every entry stub funnels into. It runs
// the save half of the context protocol on the interrupted thread, routes
// the vector to its handler, then restores whatever context the thread
// points at. The handler may have swapped that pointer, so the restore
// target is re-read after dispatch: this is how signal redirection and
// context switches take effect.
//
// The whole path runs with interrupts masked on the calling CPU; the
// state machine transitions are fatal if the protocol is re-entered.
func Dispatch(frame *vcpu.TrapFrame) {
	cpuID := cpu.CurrentID()
	vector := uint8(frame.Words[0])

	vcpu.BeginSave(cpuID)
	current := thread.CurrentThreadFn(cpuID)
	current.VCPU.SaveFrom(frame)

	vcpu.BeginDispatch(cpuID)
	if vector <= maxExceptionVector {
		handler := exceptionHandlers[vector]
		if handler == nil {
			panicFn(errUnhandledException)
			return
		}
		handler(current)
	} else if handler := interruptHandlers[vector]; handler != nil {
		handler(current)
	} else {
		spuriousCount.Increment()
	}

	vcpu.BeginRestore(cpuID)

	// The handler may have entered the scheduler and elected a different
	// thread; the restore must load whatever thread now owns the CPU.
	current = thread.CurrentThreadFn(cpuID)
	current.VCPU.RestoreInto(frame)
	vcpu.EndTrap(cpuID)
}

// softwareTrapEntry services cpu.RaiseInterrupt. The host stand-in has no
// live register file to push, so the frame carries the vector alone.
func softwareTrapEntry(vector uint8) {
	var frame vcpu.TrapFrame
	frame.Words[0] = uint64(vector)
	Dispatch(&frame)
}
