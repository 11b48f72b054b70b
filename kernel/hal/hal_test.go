package hal

import (
	"testing"

	"github.com/Oxmose/roOs-sub001/kernel"
	"github.com/Oxmose/roOs-sub001/kernel/cpu"
	"github.com/Oxmose/roOs-sub001/kernel/gate"
	"github.com/Oxmose/roOs-sub001/kernel/gdt"
)

func TestInit(t *testing.T) {
	if err := Init(0, 0xffff800000104000); err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}

	if !gdt.Descriptor(gdt.KernelCS64).IsCode() {
		t.Error("expected the segment table to be built")
	}
	if info := gate.Gate(0).Decode(); info.Selector != gdt.KernelCS64 {
		t.Error("expected the trap table to be built")
	}
	if !cpu.InterruptsEnabled() {
		t.Error("expected interrupts to be enabled after bring-up")
	}

	// The bridge is installed; a raised fault vector must find a handler.
	if err := gate.RegisterException(0, nil); err == nil || err.Code != kernel.ErrAlreadyExists {
		t.Errorf("expected the fault vectors to be bound; got %v", err)
	}

	InitAP(1, 0xffff800000108000)
	if gdt.TSSSelector(1) != 0x70 {
		t.Errorf("unexpected secondary TSS selector 0x%x", gdt.TSSSelector(1))
	}

	// A second bootstrap init is refused before it can touch the live
	// tables.
	if err := Init(0, 0xffff800000104000); err == nil || err.Code != kernel.ErrAlreadyExists {
		t.Errorf("expected a second bring-up to fail; got %v", err)
	}
}
