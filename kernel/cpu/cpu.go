// Package cpu isolates the raw hardware instruction surface (descriptor
// table loads, control registers, port I/O, the interrupt flag) behind a
// small capability set. The rest of the kernel is hardware-instruction-free
// and can run on a host: every capability is reachable through a package
// function var that boot code binds to the real instruction wrappers and
// that tests substitute.
package cpu

import (
	"sync/atomic"

	"github.com/Oxmose/roOs-sub001/kernel"
)

// MaxCPUCount is the maximum number of logical CPUs managed by the kernel.
const MaxCPUCount = 4

// MaxInterruptLine is the highest vector that can be raised as a software
// interrupt.
const MaxInterruptLine = 255

var errInvalidInterruptLine = &kernel.Error{
	Module:  "cpu",
	Message: "requested an invalid interrupt line raise",
	Code:    kernel.ErrUnauthorized,
}

// The host bindings below stand in for the lgdt/lidt/ltr/cli/sti/hlt/in/out
// instruction wrappers. They track just enough state for the rest of the
// core to observe its own side effects.
var (
	loadGDTFn             = hostLoadGDT
	loadIDTFn             = hostLoadIDT
	loadTRFn              = hostLoadTR
	setSegmentRegistersFn = hostSetSegmentRegisters
	readCR2Fn             = hostReadCR2
	haltFn                = hostHalt
	pauseFn               = hostPause
	currentIDFn           = hostCurrentID
	portReadByteFn        = func(port uint16) uint8 { return 0 }
	portWriteByteFn       = func(port uint16, val uint8) {}
	portReadWordFn        = func(port uint16) uint16 { return 0 }
	portWriteWordFn       = func(port uint16, val uint16) {}
	portReadDWordFn       = func(port uint16) uint32 { return 0 }
	portWriteDWordFn      = func(port uint16, val uint32) {}

	// trapEntryFn is bound by the trap table once it is loaded; software
	// interrupt raises are routed through it.
	trapEntryFn func(vector uint8)
)

type hostState struct {
	gdtBase  uintptr
	gdtLimit uint16
	idtBase  uintptr
	idtLimit uint16
	tr       uint16
	codeSel  uint16
	dataSel  uint16
	cr2      uint64

	intFlag [MaxCPUCount]uint32
	halted  uint32
}

var host hostState

func hostLoadGDT(base uintptr, limit uint16) {
	host.gdtBase, host.gdtLimit = base, limit
}

func hostLoadIDT(base uintptr, limit uint16) {
	host.idtBase, host.idtLimit = base, limit
}

func hostLoadTR(sel uint16) { host.tr = sel }

func hostSetSegmentRegisters(code, data uint16) {
	host.codeSel, host.dataSel = code, data
}

func hostReadCR2() uint64 { return host.cr2 }

func hostHalt() { atomic.StoreUint32(&host.halted, 1) }

func hostPause() {}

func hostCurrentID() uint8 { return 0 }

// LoadGDT loads a new global descriptor table located at base with the
// given limit.
func LoadGDT(base uintptr, limit uint16) { loadGDTFn(base, limit) }

// LoadIDT loads a new interrupt descriptor table located at base with the
// given limit.
func LoadIDT(base uintptr, limit uint16) { loadIDTFn(base, limit) }

// LoadTR loads the task register with the supplied TSS selector.
func LoadTR(sel uint16) { loadTRFn(sel) }

// SetSegmentRegisters reloads the code selector (far return) and points the
// data/stack selectors at the supplied data segment.
func SetSegmentRegisters(code, data uint16) { setSegmentRegistersFn(code, data) }

// ReadCR2 returns the faulting address stored in the CR2 register.
func ReadCR2() uint64 { return readCR2Fn() }

// EnableInterrupts enables maskable interrupt handling on the calling CPU.
func EnableInterrupts() {
	atomic.StoreUint32(&host.intFlag[currentIDFn()], 1)
}

// DisableInterrupts disables maskable interrupt handling on the calling CPU.
func DisableInterrupts() {
	atomic.StoreUint32(&host.intFlag[currentIDFn()], 0)
}

// InterruptsEnabled returns the state of the calling CPU's interrupt flag.
func InterruptsEnabled() bool {
	return atomic.LoadUint32(&host.intFlag[currentIDFn()]) == 1
}

// Pause emits a low-power spin-wait hint. Spinlock acquisition loops call
// it between attempts.
func Pause() { pauseFn() }

// Halt stops instruction execution on the calling CPU.
func Halt() { haltFn() }

// CurrentID returns the identifier of the calling logical CPU.
func CurrentID() uint8 { return currentIDFn() }

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8 { return portReadByteFn(port) }

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8) { portWriteByteFn(port, val) }

// PortReadWord reads a uint16 value from the requested port.
func PortReadWord(port uint16) uint16 { return portReadWordFn(port) }

// PortWriteWord writes a uint16 value to the requested port.
func PortWriteWord(port uint16, val uint16) { portWriteWordFn(port, val) }

// PortReadDWord reads a uint32 value from the requested port.
func PortReadDWord(port uint16) uint32 { return portReadDWordFn(port) }

// PortWriteDWord writes a uint32 value to the requested port.
func PortWriteDWord(port uint16, val uint32) { portWriteDWordFn(port, val) }

// AttachTrapEntry binds the software-interrupt entry point. It is invoked
// once by the trap table when it is loaded.
func AttachTrapEntry(entry func(vector uint8)) {
	trapEntryFn = entry
}

// RaiseInterrupt raises a software interrupt on the requested line, as an
// "int imm8" instruction would. The trap table must have been loaded first.
func RaiseInterrupt(line uint32) *kernel.Error {
	if line > MaxInterruptLine || trapEntryFn == nil {
		return errInvalidInterruptLine
	}

	trapEntryFn(uint8(line))
	return nil
}
