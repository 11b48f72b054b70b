// Package hal sequences the per-CPU bring-up of the architecture core:
// descriptor tables first, then the trap table, then the fault-to-signal
// bridge, and only then interrupts. The order is load-bearing: a trap
// taken before its table is live has nowhere to go.
package hal

import (
	"github.com/Oxmose/roOs-sub001/kernel"
	"github.com/Oxmose/roOs-sub001/kernel/cpu"
	"github.com/Oxmose/roOs-sub001/kernel/exception"
	"github.com/Oxmose/roOs-sub001/kernel/gate"
	"github.com/Oxmose/roOs-sub001/kernel/gdt"
	"github.com/Oxmose/roOs-sub001/kernel/klog"
)

var errAlreadyBooted = &kernel.Error{
	Module:  "hal",
	Message: "architecture core already brought up",
	Code:    kernel.ErrAlreadyExists,
}

var booted bool

// Init brings the bootstrap CPU online: builds and activates the segment
// and trap tables, installs the exception bridge and enables interrupt
// handling. It must run exactly once, before any secondary CPU starts.
func Init(cpuID uint8, kernelStackTop uintptr) *kernel.Error {
	if booted {
		return errAlreadyBooted
	}

	gdt.BuildSegments()
	gdt.BuildTSS(cpuID, kernelStackTop)
	gdt.LoadTables(cpuID)

	gate.BuildTrapTable()
	gate.LoadTrapTable()

	if err := exception.Init(); err != nil {
		return err
	}

	cpu.EnableInterrupts()
	booted = true
	klog.Success("hal", "CPU %d online", cpuID)
	return nil
}

// InitAP brings a secondary CPU online against the tables the bootstrap
// CPU already built. Only the CPU's own task state is constructed here.
func InitAP(cpuID uint8, kernelStackTop uintptr) {
	gdt.BuildTSS(cpuID, kernelStackTop)
	gdt.LoadTables(cpuID)
	gate.LoadTrapTable()

	cpu.EnableInterrupts()
	klog.Success("hal", "CPU %d online", cpuID)
}
