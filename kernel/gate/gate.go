// Package gate owns the 256-entry trap dispatch table: the architectural
// gate descriptors, handler registration for exception and interrupt
// vectors, and the common dispatch path every trap entry stub funnels
// into. The table is built once at boot and never relocated.
package gate

import (
	"unsafe"

	"github.com/Oxmose/roOs-sub001/kernel"
	"github.com/Oxmose/roOs-sub001/kernel/cpu"
	"github.com/Oxmose/roOs-sub001/kernel/gdt"
	"github.com/Oxmose/roOs-sub001/kernel/kfmt"
	"github.com/Oxmose/roOs-sub001/kernel/klog"
	"github.com/Oxmose/roOs-sub001/kernel/thread"
)

// gateEntryCount is the number of vectors the architecture defines.
const gateEntryCount = 256

// maxExceptionVector is the last architectural exception vector.
const maxExceptionVector = 31

// Reserved interrupt lines.
const (
	// PanicLine carries the panic IPI that halts the other cores.
	PanicLine uint8 = 0x20
	// SchedulerLine carries the software scheduling request.
	SchedulerLine uint8 = 0x22
	// IPILine carries general inter-processor signaling.
	IPILine uint8 = 0x23
	// SpuriousLine is where the interrupt controller parks spurious
	// deliveries.
	SpuriousLine uint8 = 0xFF
)

// Gate access byte bits and types.
const (
	GatePresent   uint8 = 1 << 7
	GateRing3     uint8 = 3 << 5
	GateInterrupt uint8 = 0xE
	GateTrap      uint8 = 0xF
)

var (
	errBadVector = &kernel.Error{
		Module:  "gate",
		Message: "vector outside the requested handler class",
		Code:    kernel.ErrUnauthorized,
	}
	errHandlerBound = &kernel.Error{
		Module:  "gate",
		Message: "a handler is already bound to this vector",
		Code:    kernel.ErrAlreadyExists,
	}
	errHandlerMissing = &kernel.Error{
		Module:  "gate",
		Message: "no handler bound to this vector",
		Code:    kernel.ErrNoSuchID,
	}
	errTableNotBuilt = &kernel.Error{
		Module:  "gate",
		Message: "attempt to load an unbuilt trap table",
		Code:    kernel.ErrNotInitialized,
	}
	errTableLive = &kernel.Error{
		Module:  "gate",
		Message: "attempt to rebuild an active trap table",
		Code:    kernel.ErrUnauthorized,
	}
	errBadCodeSelector = &kernel.Error{
		Module:  "gate",
		Message: "trap table selector is not a valid code segment",
		Code:    kernel.ErrIncorrectValue,
	}
	errPanicRequest = &kernel.Error{
		Module:  "gate",
		Message: "panic requested through the panic interrupt line",
		Code:    kernel.ErrIncorrectValue,
	}
)

var (
	loadIDTFn         = cpu.LoadIDT
	attachTrapEntryFn = cpu.AttachTrapEntry
	panicFn           = kfmt.Panic
)

// GateDescriptor is the 16-byte long mode interrupt gate: the handler
// offset split across low/mid/high 16/16/32-bit fields, the code segment
// selector, the IST index and the access byte.
type GateDescriptor [2]uint64

// GateInfo is the decoded form of a GateDescriptor.
type GateInfo struct {
	Offset   uint64
	Selector uint16
	IST      uint8
	Access   uint8
}

// EncodeGate packs a handler offset, selector, IST index and access byte
// into the architectural gate format.
func EncodeGate(offset uint64, selector uint16, ist, access uint8) GateDescriptor {
	var d GateDescriptor
	d[0] = offset & 0xFFFF
	d[0] |= uint64(selector) << 16
	d[0] |= uint64(ist&0x7) << 32
	d[0] |= uint64(access) << 40
	d[0] |= (offset >> 16 & 0xFFFF) << 48
	d[1] = offset >> 32
	return d
}

// Decode unpacks the gate fields.
func (d GateDescriptor) Decode() GateInfo {
	return GateInfo{
		Offset:   d[0]&0xFFFF | d[0]>>48<<16 | d[1]<<32,
		Selector: uint16(d[0] >> 16),
		IST:      uint8(d[0] >> 32 & 0x7),
		Access:   uint8(d[0] >> 40),
	}
}

// Handler is invoked on the thread that was executing when the trap
// fired, after its state has been captured.
type Handler func(*thread.Thread)

// Process-wide trap table state, owned by the one-time build routine.
var (
	gates             [gateEntryCount]GateDescriptor
	exceptionHandlers [maxExceptionVector + 1]Handler
	interruptHandlers [gateEntryCount]Handler
	tableBuilt        bool
	tableLive         bool
)

// ipiHandlerFn services the inter-processor line. The CPU management
// layer binds it through SetIPIHandler; until then IPI deliveries are
// accounted as spurious.
var ipiHandlerFn Handler

// SetIPIHandler binds the handler invoked for inter-processor interrupts.
func SetIPIHandler(handler Handler) {
	ipiHandlerFn = handler
}

// stubSlots reserves one fixed-stride entry point per vector. Each gate
// points at its slot so the dispatch path can recover the vector from a
// single parameterized entry instead of 256 duplicated ones.
var stubSlots [gateEntryCount][16]byte

// BuildTrapTable populates all 256 gate entries, each bound to its
// per-vector stub and the kernel 64-bit code selector, and installs the
// default handlers on the reserved lines. A selector that does not
// describe a code segment is fatal: every trap would jump through it.
func BuildTrapTable() {
	if tableLive {
		panicFn(errTableLive)
		return
	}
	if !gdt.Descriptor(gdt.KernelCS64).IsCode() {
		panicFn(errBadCodeSelector)
		return
	}

	for vector := 0; vector < gateEntryCount; vector++ {
		offset := uint64(uintptr(unsafe.Pointer(&stubSlots[vector])))
		gates[vector] = EncodeGate(offset, gdt.KernelCS64, 1, GatePresent|GateInterrupt)
	}

	interruptHandlers[PanicLine] = func(*thread.Thread) { panicFn(errPanicRequest) }
	interruptHandlers[SchedulerLine] = func(*thread.Thread) { thread.ScheduleNoIntFn(true) }
	interruptHandlers[IPILine] = func(th *thread.Thread) {
		if ipiHandlerFn == nil {
			spuriousCount.Increment()
			return
		}
		ipiHandlerFn(th)
	}

	tableBuilt = true
	klog.Success("gate", "trap table built (%d entries)", gateEntryCount)
}

// LoadTrapTable activates the trap table on the calling CPU and binds the
// software-interrupt entry point. Loading an unbuilt table is fatal.
func LoadTrapTable() {
	if !tableBuilt {
		panicFn(errTableNotBuilt)
		return
	}

	base := uintptr(unsafe.Pointer(&gates[0]))
	limit := uint16(gateEntryCount*16 - 1)

	loadIDTFn(base, limit)
	attachTrapEntryFn(softwareTrapEntry)

	tableLive = true
	klog.Success("gate", "trap table active on CPU %d", cpu.CurrentID())
}

// Gate returns a read-only copy of the descriptor bound to a vector.
func Gate(vector uint8) GateDescriptor {
	return gates[vector]
}

// RegisterException binds a handler to an architectural exception vector
// (0-31). Vectors above 31 fail with ErrUnauthorized, double registration
// with ErrAlreadyExists.
func RegisterException(vector uint8, handler Handler) *kernel.Error {
	if vector > maxExceptionVector {
		return errBadVector
	}
	if exceptionHandlers[vector] != nil {
		return errHandlerBound
	}

	exceptionHandlers[vector] = handler
	return nil
}

// RemoveException unbinds the handler of an exception vector.
func RemoveException(vector uint8) *kernel.Error {
	if vector > maxExceptionVector {
		return errBadVector
	}
	if exceptionHandlers[vector] == nil {
		return errHandlerMissing
	}

	exceptionHandlers[vector] = nil
	return nil
}

// RegisterInterrupt binds a handler to an interrupt vector (0x20-0xFF).
// Exception vectors and the reserved lines fail with ErrUnauthorized.
func RegisterInterrupt(vector uint8, handler Handler) *kernel.Error {
	if vector <= maxExceptionVector || reservedLine(vector) {
		return errBadVector
	}
	if interruptHandlers[vector] != nil {
		return errHandlerBound
	}

	interruptHandlers[vector] = handler
	return nil
}

// RemoveInterrupt unbinds the handler of an interrupt vector.
func RemoveInterrupt(vector uint8) *kernel.Error {
	if vector <= maxExceptionVector || reservedLine(vector) {
		return errBadVector
	}
	if interruptHandlers[vector] == nil {
		return errHandlerMissing
	}

	interruptHandlers[vector] = nil
	return nil
}

func reservedLine(vector uint8) bool {
	return vector == PanicLine || vector == SchedulerLine ||
		vector == IPILine || vector == SpuriousLine
}
