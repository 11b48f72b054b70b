package vcpu

import (
	"math/rand"
	"testing"

	"github.com/Oxmose/roOs-sub001/kernel"
	"github.com/Oxmose/roOs-sub001/kernel/gdt"
)

func randomFrame(r *rand.Rand) *TrapFrame {
	var frame TrapFrame
	for i := range frame.Words {
		frame.Words[i] = r.Uint64()
	}
	for i := range frame.FX {
		frame.FX[i] = byte(r.Uint32())
	}
	return &frame
}

func TestContextSaveRestoreRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for round := 0; round < 100; round++ {
		in := randomFrame(r)

		var (
			c   Context
			out TrapFrame
		)
		c.SaveFrom(in)
		if !c.Saved() {
			t.Fatal("expected the context to be saved after a capture")
		}

		c.RestoreInto(&out)
		if out != *in {
			t.Fatalf("[round %d] restored frame does not match the captured one", round)
		}
		if c.Saved() {
			t.Fatal("expected the context to be live after a restore")
		}
	}
}

func TestContextRestoreWhileLiveIsFatal(t *testing.T) {
	defer func(origPanic func(interface{})) { panicFn = origPanic }(panicFn)

	var panicked *kernel.Error
	panicFn = func(e interface{}) { panicked = e.(*kernel.Error) }

	var (
		c     Context
		frame TrapFrame
	)
	c.SaveFrom(&frame)
	c.RestoreInto(&frame)

	// The context is now live; a second restore would run the same
	// register state on two CPUs.
	c.RestoreInto(&frame)
	if panicked == nil || panicked.Code != kernel.ErrIncorrectValue {
		t.Fatalf("expected a fatal error restoring a live context; got %v", panicked)
	}
}

func TestCreateContext(t *testing.T) {
	const (
		entry    = uintptr(0xffff800000200000)
		stackTop = uintptr(0xffff800000104567)
	)

	c, err := CreateContext(entry, stackTop)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.RIP != uint64(entry) {
		t.Errorf("expected RIP 0x%x; got 0x%x", entry, c.RIP)
	}
	if c.CS != uint64(gdt.KernelCS64) || c.SS != uint64(gdt.KernelDS64) {
		t.Error("expected the kernel 64-bit selectors")
	}
	if !c.InterruptState() {
		t.Error("expected a fresh context to start with interrupts enabled")
	}
	if !c.Saved() {
		t.Error("expected a fresh context to be in the saved state")
	}

	// The stack lands on a 16-byte boundary minus the return-address slot.
	if (c.RSP+8)%16 != 0 {
		t.Errorf("expected an aligned stack; got RSP 0x%x", c.RSP)
	}
	if delta := uint64(stackTop) - c.RSP; delta > 16+8 {
		t.Errorf("expected RSP within alignment distance of the stack top; got delta %d", delta)
	}

	// An immediate restore transfers control to the entry point.
	var frame TrapFrame
	c.RestoreInto(&frame)
	if frame.Words[2] != uint64(entry) || frame.Words[5] != c.RSP {
		t.Errorf("expected the trap return to enter 0x%x; got RIP 0x%x RSP 0x%x",
			entry, frame.Words[2], frame.Words[5])
	}
}

func TestDestroyContext(t *testing.T) {
	if err := DestroyContext(nil); err == nil || err.Code != kernel.ErrNullPointer {
		t.Errorf("expected ErrNullPointer for a nil handle; got %v", err)
	}

	c, _ := CreateContext(0x1000, 0x2000)
	if err := DestroyContext(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := DestroyContext(c); err == nil || err.Code != kernel.ErrNullPointer {
		t.Errorf("expected ErrNullPointer on a double release; got %v", err)
	}
}

func TestFaultingAddress(t *testing.T) {
	defer func(origReadCR2 func() uint64) { readCR2Fn = origReadCR2 }(readCR2Fn)
	readCR2Fn = func() uint64 { return 0xbadf00d }

	specs := []struct {
		vector uint64
		exp    uint64
	}{
		{0, 0x1234},         // divide error reports the instruction
		{6, 0x1234},         // invalid opcode reports the instruction
		{13, 0xbadf00d},     // general protection reports CR2
		{14, 0xbadf00d},     // page fault reports CR2
		{19, 0x1234},        // SIMD FP reports the instruction
		{0x21, 0x1234},      // interrupts report the interrupted instruction
	}

	for specIndex, spec := range specs {
		c := Context{Vector: spec.vector, RIP: 0x1234}
		if got := c.FaultingAddress(); got != spec.exp {
			t.Errorf("[spec %d] expected faulting address 0x%x; got 0x%x", specIndex, spec.exp, got)
		}
		if c.InterruptID() != uint32(spec.vector) {
			t.Errorf("[spec %d] unexpected interrupt id", specIndex)
		}
	}
}

func TestTrapStateMachine(t *testing.T) {
	defer func(origPanic func(interface{})) {
		panicFn = origPanic
		trapStates = [len(trapStates)]uint32{}
	}(panicFn)

	var fatal int
	panicFn = func(e interface{}) { fatal++ }

	if StateOf(2) != Running {
		t.Fatal("expected CPUs to start in the Running state")
	}

	BeginSave(2)
	BeginDispatch(2)
	BeginRestore(2)
	EndTrap(2)
	if fatal != 0 || StateOf(2) != Running {
		t.Fatalf("expected a clean full cycle; fatal=%d state=%d", fatal, StateOf(2))
	}

	// Skipping the save phase is an illegal transition.
	BeginDispatch(2)
	if fatal != 1 {
		t.Error("expected an out-of-order transition to be fatal")
	}

	// Other CPUs track their state independently.
	BeginSave(0)
	if StateOf(0) != Saving || StateOf(2) != Running {
		t.Error("expected per-CPU trap states to be independent")
	}
}
