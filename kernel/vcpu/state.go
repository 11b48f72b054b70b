package vcpu

import (
	"sync/atomic"

	"github.com/Oxmose/roOs-sub001/kernel"
	"github.com/Oxmose/roOs-sub001/kernel/cpu"
)

// TrapState tracks where a logical CPU is inside the trap protocol.
type TrapState uint32

const (
	// Running means the CPU executes regular code, no trap in flight.
	Running TrapState = iota
	// Saving means the entry stub is capturing the interrupted state.
	Saving
	// Dispatching means a registered handler is running.
	Dispatching
	// Restoring means a context is being reloaded for the trap return.
	Restoring
)

var errBadTransition = &kernel.Error{
	Module:  "vcpu",
	Message: "illegal trap state transition",
	Code:    kernel.ErrIncorrectValue,
}

var trapStates [cpu.MaxCPUCount]uint32

// StateOf returns the trap state of the given CPU.
func StateOf(cpuID uint8) TrapState {
	return TrapState(atomic.LoadUint32(&trapStates[cpuID]))
}

func advance(cpuID uint8, from, to TrapState) {
	if int(cpuID) >= cpu.MaxCPUCount ||
		!atomic.CompareAndSwapUint32(&trapStates[cpuID], uint32(from), uint32(to)) {
		panicFn(errBadTransition)
	}
}

// BeginSave moves the CPU from Running to Saving when a trap fires.
func BeginSave(cpuID uint8) { advance(cpuID, Running, Saving) }

// BeginDispatch moves the CPU from Saving to Dispatching once the
// interrupted state is captured.
func BeginDispatch(cpuID uint8) { advance(cpuID, Saving, Dispatching) }

// BeginRestore moves the CPU from Dispatching to Restoring once the
// handler has picked the context to resume.
func BeginRestore(cpuID uint8) { advance(cpuID, Dispatching, Restoring) }

// EndTrap moves the CPU from Restoring back to Running at the privileged
// trap return.
func EndTrap(cpuID uint8) { advance(cpuID, Restoring, Running) }
