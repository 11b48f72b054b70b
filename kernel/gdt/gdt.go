// Package gdt builds and activates the global descriptor table: the flat
// ring 0/ring 3 code and data segments plus one task-state segment per
// logical CPU. The table is filled once at boot and is read-only afterwards
// except for the narrow per-CPU kernel-stack update path.
package gdt

import (
	"unsafe"

	"github.com/Oxmose/roOs-sub001/kernel"
	"github.com/Oxmose/roOs-sub001/kernel/cpu"
	"github.com/Oxmose/roOs-sub001/kernel/kfmt"
	"github.com/Oxmose/roOs-sub001/kernel/klog"
)

// Segment selectors. The layout is fixed: tools and the trap gates encode
// these values directly.
const (
	SelNull     uint16 = 0x00
	KernelCS32  uint16 = 0x08
	KernelDS32  uint16 = 0x10
	KernelCS16  uint16 = 0x18
	KernelDS16  uint16 = 0x20
	KernelCS64  uint16 = 0x28
	KernelDS64  uint16 = 0x30
	UserCS32    uint16 = 0x38
	UserDS32    uint16 = 0x40
	UserCS64    uint16 = 0x48
	UserDS64    uint16 = 0x50
	TSSSegment  uint16 = 0x60
	tssSlotSize        = 16
)

// gdtEntryCount covers the null slot, the ten segment slots and one
// 16-byte (two slot) TSS descriptor per CPU.
const gdtEntryCount = int(TSSSegment)/8 + 2*cpu.MaxCPUCount

// Access byte bits.
const (
	AccessAccessed   uint8 = 1 << 0
	AccessWritable   uint8 = 1 << 1
	AccessGrowDown   uint8 = 1 << 2
	AccessExecutable uint8 = 1 << 3
	AccessCodeData   uint8 = 1 << 4
	AccessRing3      uint8 = 3 << 5
	AccessPresent    uint8 = 1 << 7

	// accessTSS64 marks an available 64-bit TSS system descriptor.
	accessTSS64 uint8 = 0x9
)

// Size/granularity flag bits (descriptor bits 52-55).
const (
	FlagLongMode      uint8 = 1 << 1
	Flag32Bit         uint8 = 1 << 2
	FlagGranularity4K uint8 = 1 << 3
)

// flatLimit covers the full 4 GiB address space with 4K granularity.
const flatLimit uint32 = 0xFFFFF

var (
	errTablesNotBuilt = &kernel.Error{
		Module:  "gdt",
		Message: "attempt to load a partially-initialized descriptor table",
		Code:    kernel.ErrNotInitialized,
	}
	errBadCPU = &kernel.Error{
		Module:  "gdt",
		Message: "CPU identifier out of range",
		Code:    kernel.ErrUnauthorized,
	}
	errTablesLive = &kernel.Error{
		Module:  "gdt",
		Message: "attempt to rebuild an active descriptor table",
		Code:    kernel.ErrUnauthorized,
	}
)

var (
	loadGDTFn             = cpu.LoadGDT
	loadTRFn              = cpu.LoadTR
	setSegmentRegistersFn = cpu.SetSegmentRegisters
	panicFn               = kfmt.Panic
)

// SegmentDescriptor is an 8-byte x86 segment descriptor:
// base[31:24] | flags[23:20] | limit[19:16] | access[15:8] in the high
// dword, base[23:0] | limit[15:0] across the rest.
type SegmentDescriptor uint64

// SegmentInfo is the decoded form of a SegmentDescriptor.
type SegmentInfo struct {
	Base   uint32
	Limit  uint32
	Access uint8
	Flags  uint8
}

// EncodeSegment packs base, limit (20 bits), access byte and flag nibble
// into the architectural descriptor format.
func EncodeSegment(base, limit uint32, access, flags uint8) SegmentDescriptor {
	d := uint64(limit & 0xFFFF)
	d |= uint64(base&0xFFFF) << 16
	d |= uint64((base>>16)&0xFF) << 32
	d |= uint64(access) << 40
	d |= uint64((limit>>16)&0xF) << 48
	d |= uint64(flags&0xF) << 52
	d |= uint64((base>>24)&0xFF) << 56
	return SegmentDescriptor(d)
}

// Decode unpacks the descriptor fields.
func (d SegmentDescriptor) Decode() SegmentInfo {
	v := uint64(d)
	return SegmentInfo{
		Base:   uint32(v>>16&0xFFFF) | uint32(v>>32&0xFF)<<16 | uint32(v>>56&0xFF)<<24,
		Limit:  uint32(v&0xFFFF) | uint32(v>>48&0xF)<<16,
		Access: uint8(v >> 40),
		Flags:  uint8(v >> 52 & 0xF),
	}
}

// IsCode reports whether the descriptor describes a present, executable
// code segment.
func (d SegmentDescriptor) IsCode() bool {
	access := d.Decode().Access
	return access&AccessPresent != 0 &&
		access&AccessCodeData != 0 &&
		access&AccessExecutable != 0
}

// Process-wide descriptor state, owned by the one-time build routines.
var (
	segments      [gdtEntryCount]SegmentDescriptor
	taskStates    [cpu.MaxCPUCount]TaskState
	segmentsBuilt bool
	tssBuilt      [cpu.MaxCPUCount]bool
	tablesLive    bool
)

// BuildSegments fills the segmentation table in place: a null descriptor,
// flat 4 GiB ring 0 and ring 3 code/data segments for 16, 32 and 64-bit
// execution, and the per-CPU TSS descriptors (bound later by BuildTSS).
// It must run exactly once, before LoadTables.
func BuildSegments() {
	if tablesLive {
		panicFn(errTablesLive)
		return
	}

	segments = [gdtEntryCount]SegmentDescriptor{}

	kernelCode := AccessPresent | AccessCodeData | AccessExecutable | AccessWritable
	kernelData := AccessPresent | AccessCodeData | AccessWritable
	userCode := kernelCode | AccessRing3
	userData := kernelData | AccessRing3

	set := func(sel uint16, access, flags uint8) {
		segments[sel/8] = EncodeSegment(0, flatLimit, access, flags)
	}

	set(KernelCS32, kernelCode, Flag32Bit|FlagGranularity4K)
	set(KernelDS32, kernelData, Flag32Bit|FlagGranularity4K)
	set(KernelCS16, kernelCode, FlagGranularity4K)
	set(KernelDS16, kernelData, FlagGranularity4K)
	set(KernelCS64, kernelCode, FlagLongMode)
	set(KernelDS64, kernelData, FlagLongMode)
	set(UserCS32, userCode, Flag32Bit|FlagGranularity4K)
	set(UserDS32, userData, Flag32Bit|FlagGranularity4K)
	set(UserCS64, userCode, FlagLongMode)
	set(UserDS64, userData, FlagLongMode)

	segmentsBuilt = true
	klog.Success("gdt", "segment table built (%d entries)", gdtEntryCount)
}

// BuildTSS installs the task-state block for the given CPU, pointing its
// privileged stack at stackTop, and binds it to the CPU's descriptor pair.
// Each CPU owns its block exclusively; misuse is fatal.
func BuildTSS(cpuID uint8, stackTop uintptr) {
	if int(cpuID) >= cpu.MaxCPUCount {
		panicFn(errBadCPU)
		return
	}
	if !segmentsBuilt {
		panicFn(errTablesNotBuilt)
		return
	}

	ts := &taskStates[cpuID]
	*ts = TaskState{}
	ts.SetRSP0(uint64(stackTop))
	ts.SetIST(1, uint64(stackTop))
	ts.SetIOMapBase(uint16(unsafe.Sizeof(*ts)))

	// A 64-bit TSS descriptor spans two GDT slots: the classic 8 bytes
	// plus the upper half of the base address.
	base := uintptr(unsafe.Pointer(ts))
	limit := uint32(unsafe.Sizeof(*ts) - 1)
	slot := tssSlot(cpuID)
	segments[slot] = EncodeSegment(uint32(base), limit,
		AccessPresent|accessTSS64, 0)
	segments[slot+1] = SegmentDescriptor(uint64(base) >> 32)

	tssBuilt[cpuID] = true
	klog.Success("gdt", "TSS for CPU %d built (stack 0x%x)", cpuID, uint64(stackTop))
}

// LoadTables activates the segmentation table on the calling CPU: loads
// the table, reloads the code/data/stack selectors and the CPU's task
// register. Calling it with a partially-initialized table is fatal, since
// every instruction fetch afterwards depends on the new table.
func LoadTables(cpuID uint8) {
	if int(cpuID) >= cpu.MaxCPUCount {
		panicFn(errBadCPU)
		return
	}
	if !segmentsBuilt || !tssBuilt[cpuID] {
		panicFn(errTablesNotBuilt)
		return
	}

	base := uintptr(unsafe.Pointer(&segments[0]))
	limit := uint16(gdtEntryCount*8 - 1)

	loadGDTFn(base, limit)
	setSegmentRegistersFn(KernelCS64, KernelDS64)
	loadTRFn(TSSSelector(cpuID))

	tablesLive = true
	klog.Success("gdt", "descriptor tables active on CPU %d", cpuID)
}

// SetKernelStack rebinds the privileged stack of the given CPU's TSS. It
// is the only mutation allowed after boot and must only be invoked by the
// owning CPU.
func SetKernelStack(cpuID uint8, stackTop uintptr) {
	if int(cpuID) >= cpu.MaxCPUCount || !tssBuilt[cpuID] {
		panicFn(errBadCPU)
		return
	}

	taskStates[cpuID].SetRSP0(uint64(stackTop))
	taskStates[cpuID].SetIST(1, uint64(stackTop))
}

// Descriptor returns a read-only copy of the descriptor bound to the
// given selector.
func Descriptor(sel uint16) SegmentDescriptor {
	if int(sel/8) >= gdtEntryCount {
		return 0
	}
	return segments[sel/8]
}

// TSSSelector returns the task register selector for the given CPU.
func TSSSelector(cpuID uint8) uint16 {
	return TSSSegment + uint16(cpuID)*tssSlotSize
}

func tssSlot(cpuID uint8) int {
	return int(TSSSegment)/8 + int(cpuID)*2
}
