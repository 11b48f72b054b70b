// Package exception bridges architectural faults to thread signals: each
// handled vector records the fault into the owning thread's error record
// and delivers one of the four signal kinds through the scheduler hook.
// What happens to the signal (handler entry or termination) is the
// scheduler's decision, not this bridge's.
package exception

import (
	"github.com/Oxmose/roOs-sub001/kernel"
	"github.com/Oxmose/roOs-sub001/kernel/gate"
	"github.com/Oxmose/roOs-sub001/kernel/kfmt"
	"github.com/Oxmose/roOs-sub001/kernel/klog"
	"github.com/Oxmose/roOs-sub001/kernel/thread"
)

// Architectural exception vectors handled by the bridge.
const (
	DivideError        uint8 = 0
	Debug              uint8 = 1
	Breakpoint         uint8 = 3
	Overflow           uint8 = 4
	BoundRange         uint8 = 5
	InvalidOpcode      uint8 = 6
	DeviceNotAvailable uint8 = 7
	DoubleFault        uint8 = 8
	CoprocessorOverrun uint8 = 9
	InvalidTSS         uint8 = 10
	SegmentNotPresent  uint8 = 11
	StackFault         uint8 = 12
	GeneralProtection  uint8 = 13
	X87FloatingPoint   uint8 = 16
	AlignmentCheck     uint8 = 17
	MachineCheck       uint8 = 18
	SIMDFloatingPoint  uint8 = 19
	Virtualization     uint8 = 20
	ControlProtection  uint8 = 21
	HypervisorInject   uint8 = 28
	VMMCommunication   uint8 = 29
	Security           uint8 = 30
)

var errSignalDelivery = &kernel.Error{
	Module:  "exceptions",
	Message: "failed to deliver a fault signal to its thread",
	Code:    kernel.ErrIncorrectValue,
}

var panicFn = kfmt.Panic

// signalMap binds every handled vector to the signal kind it raises.
var signalMap = []struct {
	vector uint8
	kind   thread.SignalKind
}{
	{DivideError, thread.SignalFPE},
	{Debug, thread.SignalExc},
	{Breakpoint, thread.SignalExc},
	{Overflow, thread.SignalSegv},
	{BoundRange, thread.SignalSegv},
	{InvalidOpcode, thread.SignalIll},
	{DeviceNotAvailable, thread.SignalExc},
	{DoubleFault, thread.SignalExc},
	{CoprocessorOverrun, thread.SignalExc},
	{InvalidTSS, thread.SignalExc},
	{SegmentNotPresent, thread.SignalSegv},
	{StackFault, thread.SignalSegv},
	{GeneralProtection, thread.SignalSegv},
	{X87FloatingPoint, thread.SignalFPE},
	{AlignmentCheck, thread.SignalSegv},
	{MachineCheck, thread.SignalExc},
	{SIMDFloatingPoint, thread.SignalFPE},
	{Virtualization, thread.SignalExc},
	{ControlProtection, thread.SignalExc},
	{HypervisorInject, thread.SignalExc},
	{VMMCommunication, thread.SignalExc},
	{Security, thread.SignalExc},
}

// Init registers the bridge handler on every handled fault vector.
func Init() *kernel.Error {
	for _, m := range signalMap {
		if err := gate.RegisterException(m.vector, bridgeHandler(m.vector, m.kind)); err != nil {
			return err
		}
	}

	klog.Success("exceptions", "fault-to-signal bridge installed (%d vectors)", len(signalMap))
	return nil
}

// Remove unbinds the bridge from a fault vector.
func Remove(vector uint8) *kernel.Error {
	return gate.RemoveException(vector)
}

// bridgeHandler builds the handler for one fault vector. A fault that
// cannot be signaled to its thread is fatal: the kernel has no way to
// contain a thread it cannot notify.
func bridgeHandler(vector uint8, kind thread.SignalKind) gate.Handler {
	return func(th *thread.Thread) {
		live := th.VCPU
		th.ErrorRecord = thread.ErrorRecord{
			ExceptionID:     uint32(vector),
			InstructionAddr: live.IP(),
			VCPU:            live,
		}

		switch err := thread.SignalThreadFn(th, kind); err {
		case nil:
		case thread.ErrSignalUnhandled:
			// Default disposition: a thread that cannot catch its own
			// fault is killed with the panic cause.
			thread.ThreadExitFn(thread.CausePanic, uint32(kind))
		default:
			klog.Error("exceptions", "cannot signal thread %d for vector %d", th.ID, vector)
			panicFn(errSignalDelivery)
		}
	}
}
