// Package vcpu defines the virtual CPU context: the complete executable
// state of a thread as captured by a trap and reloaded by the matching
// return. A single field-ordering table drives both the save and the
// restore direction so the two layouts can never drift apart.
package vcpu

import (
	"sync/atomic"

	"github.com/Oxmose/roOs-sub001/kernel"
	"github.com/Oxmose/roOs-sub001/kernel/cpu"
	"github.com/Oxmose/roOs-sub001/kernel/gdt"
	"github.com/Oxmose/roOs-sub001/kernel/kfmt"
)

// fxAreaSize is the size of the FXSAVE floating-point/SIMD region.
const fxAreaSize = 512

// initRFlags enables interrupts (IF) plus the always-one reserved bit.
const initRFlags = 0x202

// rflagsIF is the interrupt enable bit of RFLAGS.
const rflagsIF = 1 << 9

var (
	errNilContext = &kernel.Error{
		Module:  "vcpu",
		Message: "null or already-released context handle",
		Code:    kernel.ErrNullPointer,
	}
	errRestoreLive = &kernel.Error{
		Module:  "vcpu",
		Message: "attempt to restore a live context",
		Code:    kernel.ErrIncorrectValue,
	}
)

var (
	readCR2Fn = cpu.ReadCR2
	panicFn   = kfmt.Panic
)

// Context holds the trap metadata, the general-purpose register file, the
// segment selectors and the FX save area of one schedulable thread. A
// context is either saved (safe to inspect and restore) or live (executing
// on some CPU), never both.
type Context struct {
	Vector    uint64
	ErrorCode uint64
	RIP       uint64
	CS        uint64
	RFlags    uint64

	RSP uint64
	RBP uint64
	RDI uint64
	RSI uint64
	RDX uint64
	RCX uint64
	RBX uint64
	RAX uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	SS uint64
	GS uint64
	FS uint64
	ES uint64
	DS uint64

	FXArea [fxAreaSize]byte

	// 1 while saved, 0 while live. Mutated only through SaveFrom and
	// RestoreInto so a context can migrate between CPUs but can never be
	// restored concurrently on two of them.
	saved uint32

	released uint32
}

// frameWordCount is the number of 64-bit words a trap entry stub pushes.
const frameWordCount = 26

// TrapFrame is the raw register block built by a trap entry stub, in push
// order: the hardware frame (vector, error code, RIP, CS, RFLAGS) followed
// by the general registers and the segment selectors, plus the FX region.
type TrapFrame struct {
	Words [frameWordCount]uint64
	FX    [fxAreaSize]byte
}

// fieldTable binds every trap frame slot to its Context field, in frame
// order. SaveFrom walks it forward, RestoreInto walks the same table in
// the opposite data direction. Reordering an entry here reorders both
// halves of the protocol at once.
var fieldTable = [frameWordCount]func(c *Context) *uint64{
	func(c *Context) *uint64 { return &c.Vector },
	func(c *Context) *uint64 { return &c.ErrorCode },
	func(c *Context) *uint64 { return &c.RIP },
	func(c *Context) *uint64 { return &c.CS },
	func(c *Context) *uint64 { return &c.RFlags },
	func(c *Context) *uint64 { return &c.RSP },
	func(c *Context) *uint64 { return &c.RBP },
	func(c *Context) *uint64 { return &c.RDI },
	func(c *Context) *uint64 { return &c.RSI },
	func(c *Context) *uint64 { return &c.RDX },
	func(c *Context) *uint64 { return &c.RCX },
	func(c *Context) *uint64 { return &c.RBX },
	func(c *Context) *uint64 { return &c.RAX },
	func(c *Context) *uint64 { return &c.R8 },
	func(c *Context) *uint64 { return &c.R9 },
	func(c *Context) *uint64 { return &c.R10 },
	func(c *Context) *uint64 { return &c.R11 },
	func(c *Context) *uint64 { return &c.R12 },
	func(c *Context) *uint64 { return &c.R13 },
	func(c *Context) *uint64 { return &c.R14 },
	func(c *Context) *uint64 { return &c.R15 },
	func(c *Context) *uint64 { return &c.SS },
	func(c *Context) *uint64 { return &c.GS },
	func(c *Context) *uint64 { return &c.FS },
	func(c *Context) *uint64 { return &c.ES },
	func(c *Context) *uint64 { return &c.DS },
}

// SaveFrom captures the trapped register state into the context and marks
// it saved. The frame is a completed snapshot: every register was pushed
// by the entry stub before any of them could be clobbered, so copy order
// here carries no safety weight.
func (c *Context) SaveFrom(frame *TrapFrame) {
	for i, field := range fieldTable {
		*field(c) = frame.Words[i]
	}
	c.FXArea = frame.FX

	atomic.StoreUint32(&c.saved, 1)
}

// RestoreInto rebuilds the trap frame from the context and marks the
// context live. Restoring a context that is already live is fatal: two
// CPUs would otherwise execute the same register state.
func (c *Context) RestoreInto(frame *TrapFrame) {
	if !atomic.CompareAndSwapUint32(&c.saved, 1, 0) {
		panicFn(errRestoreLive)
		return
	}

	for i, field := range fieldTable {
		frame.Words[i] = *field(c)
	}
	frame.FX = c.FXArea
}

// Saved reports whether the context is in the saved state.
func (c *Context) Saved() bool {
	return atomic.LoadUint32(&c.saved) == 1
}

// CreateContext allocates a zeroed context set up to begin execution at
// entry on the given stack: kernel 64-bit selectors, interrupts enabled,
// and the stack pointer aligned to 16 bytes less the return-address slot
// the entry function expects to find.
func CreateContext(entry, stackTop uintptr) (*Context, *kernel.Error) {
	c := &Context{
		RIP:    uint64(entry),
		CS:     uint64(gdt.KernelCS64),
		RFlags: initRFlags,
		RSP:    (uint64(stackTop) &^ 0xF) - 8,
		SS:     uint64(gdt.KernelDS64),
		GS:     uint64(gdt.KernelDS64),
		FS:     uint64(gdt.KernelDS64),
		ES:     uint64(gdt.KernelDS64),
		DS:     uint64(gdt.KernelDS64),
		saved:  1,
	}

	return c, nil
}

// DestroyContext releases a context. Nil handles and double releases fail
// with ErrNullPointer.
func DestroyContext(c *Context) *kernel.Error {
	if c == nil || !atomic.CompareAndSwapUint32(&c.released, 0, 1) {
		return errNilContext
	}

	return nil
}

// InterruptState reports whether the saved flags register has interrupts
// enabled.
func (c *Context) InterruptState() bool {
	return c.RFlags&rflagsIF != 0
}

// InterruptID returns the trap vector that produced this context.
func (c *Context) InterruptID() uint32 {
	return uint32(c.Vector)
}

// IP returns the saved instruction pointer.
func (c *Context) IP() uint64 {
	return c.RIP
}

// FaultingAddress returns the address responsible for the trap: the CR2
// register for paging and segment faults, the saved instruction pointer
// otherwise.
func (c *Context) FaultingAddress() uint64 {
	switch c.Vector {
	case 10, 11, 12, 13, 14: // TSS, segment, stack, GP, page faults
		return readCR2Fn()
	}

	return c.RIP
}
