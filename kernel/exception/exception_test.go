package exception

import (
	"testing"

	"github.com/Oxmose/roOs-sub001/kernel"
	"github.com/Oxmose/roOs-sub001/kernel/gate"
	"github.com/Oxmose/roOs-sub001/kernel/thread"
	"github.com/Oxmose/roOs-sub001/kernel/vcpu"
)

type signalRecord struct {
	target *thread.Thread
	kind   thread.SignalKind
}

func TestExceptionBridge(t *testing.T) {
	defer func(origCurrent func(uint8) *thread.Thread, origSignal func(*thread.Thread, thread.SignalKind) *kernel.Error, origExit func(thread.TerminateCause, uint32), origPanic func(interface{})) {
		thread.CurrentThreadFn = origCurrent
		thread.SignalThreadFn = origSignal
		thread.ThreadExitFn = origExit
		panicFn = origPanic
	}(thread.CurrentThreadFn, thread.SignalThreadFn, thread.ThreadExitFn, panicFn)

	regular := new(vcpu.Context)
	current := &thread.Thread{
		ID:         3,
		VCPU:       regular,
		ThreadVCPU: regular,
		SignalVCPU: new(vcpu.Context),
	}
	thread.CurrentThreadFn = func(cpuID uint8) *thread.Thread { return current }

	var delivered []signalRecord
	thread.SignalThreadFn = func(th *thread.Thread, kind thread.SignalKind) *kernel.Error {
		delivered = append(delivered, signalRecord{th, kind})
		return nil
	}

	if err := Init(); err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}

	trap := func(vector uint8, rip uint64) {
		var frame vcpu.TrapFrame
		frame.Words[0] = uint64(vector)
		frame.Words[2] = rip
		gate.Dispatch(&frame)
	}

	t.Run("divide by zero end to end", func(t *testing.T) {
		delivered = nil
		trap(DivideError, 0xcafe)

		if len(delivered) != 1 {
			t.Fatalf("expected exactly one signal delivery; got %d", len(delivered))
		}
		if delivered[0].target != current || delivered[0].kind != thread.SignalFPE {
			t.Errorf("expected a floating-point signal on the faulting thread; got %+v", delivered[0])
		}

		rec := current.ErrorRecord
		if rec.ExceptionID != uint32(DivideError) || rec.InstructionAddr != 0xcafe {
			t.Errorf("unexpected error record: %+v", rec)
		}
		if rec.VCPU != current.ThreadVCPU {
			t.Error("expected the error record to reference the faulting context")
		}
	})

	t.Run("signal kinds", func(t *testing.T) {
		specs := []struct {
			vector uint8
			kind   thread.SignalKind
		}{
			{X87FloatingPoint, thread.SignalFPE},
			{SIMDFloatingPoint, thread.SignalFPE},
			{InvalidOpcode, thread.SignalIll},
			{GeneralProtection, thread.SignalSegv},
			{StackFault, thread.SignalSegv},
			{AlignmentCheck, thread.SignalSegv},
			{DoubleFault, thread.SignalExc},
			{MachineCheck, thread.SignalExc},
		}

		for specIndex, spec := range specs {
			delivered = nil
			trap(spec.vector, 0x1000)

			if len(delivered) != 1 || delivered[0].kind != spec.kind {
				t.Errorf("[spec %d] expected signal kind %d for vector %d; got %+v",
					specIndex, spec.kind, spec.vector, delivered)
			}
			if current.ErrorRecord.ExceptionID != uint32(spec.vector) {
				t.Errorf("[spec %d] unexpected recorded exception id %d",
					specIndex, current.ErrorRecord.ExceptionID)
			}
		}
	})

	t.Run("double init", func(t *testing.T) {
		if err := Init(); err == nil || err.Code != kernel.ErrAlreadyExists {
			t.Errorf("expected ErrAlreadyExists on a second init; got %v", err)
		}
	})

	t.Run("remove frees the vector", func(t *testing.T) {
		if err := Remove(Breakpoint); err != nil {
			t.Fatalf("unexpected remove error: %v", err)
		}
		if err := gate.RegisterException(Breakpoint, func(*thread.Thread) {}); err != nil {
			t.Errorf("expected the vector to be free after removal; got %v", err)
		}
	})

	t.Run("unhandled signal terminates the thread", func(t *testing.T) {
		thread.SignalThreadFn = func(*thread.Thread, thread.SignalKind) *kernel.Error {
			return thread.ErrSignalUnhandled
		}

		type exitRecord struct {
			cause  thread.TerminateCause
			status uint32
		}
		var exits []exitRecord
		thread.ThreadExitFn = func(cause thread.TerminateCause, status uint32) {
			exits = append(exits, exitRecord{cause, status})
		}

		trap(InvalidOpcode, 0x3000)

		if len(exits) != 1 {
			t.Fatalf("expected exactly one thread termination; got %d", len(exits))
		}
		if exits[0].cause != thread.CausePanic || exits[0].status != uint32(thread.SignalIll) {
			t.Errorf("expected a panic-cause kill carrying the signal kind; got %+v", exits[0])
		}
	})

	t.Run("delivery failure is fatal", func(t *testing.T) {
		var panicked *kernel.Error
		panicFn = func(e interface{}) { panicked = e.(*kernel.Error) }
		thread.SignalThreadFn = func(*thread.Thread, thread.SignalKind) *kernel.Error {
			return &kernel.Error{Module: "sched", Message: "no such thread", Code: kernel.ErrNoSuchID}
		}

		trap(DivideError, 0x2000)

		if panicked == nil || panicked.Module != "exceptions" {
			t.Fatalf("expected a fatal delivery failure; got %v", panicked)
		}
	})
}
