package kfmt

import (
	"github.com/Oxmose/roOs-sub001/kernel"
	"github.com/Oxmose/roOs-sub001/kernel/cpu"
)

var (
	// cpuHaltFn and cpuDisableInterruptsFn are substituted by tests.
	cpuHaltFn              = cpu.Halt
	cpuDisableInterruptsFn = cpu.DisableInterrupts

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic reports the supplied error to the active output sink and halts the
// CPU with interrupts disabled. Calls to Panic never return. A kernel that
// reaches this point cannot trust its own state; no attempt at recovery is
// made.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	cpuDisableInterruptsFn()

	Printf("\n----------------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error %d: %s\n", err.Module, int(err.Code), err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n----------------------------------------\n")

	cpuHaltFn()
}
