package kfmt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Oxmose/roOs-sub001/kernel"
)

func TestPanic(t *testing.T) {
	defer func(origHalt, origCli func()) {
		cpuHaltFn = origHalt
		cpuDisableInterruptsFn = origCli
		outputSink = nil
	}(cpuHaltFn, cpuDisableInterruptsFn)

	var haltCalls, cliCalls int
	cpuHaltFn = func() { haltCalls++ }
	cpuDisableInterruptsFn = func() { cliCalls++ }

	specs := []struct {
		input interface{}
		exp   string
	}{
		{
			&kernel.Error{Module: "GDT", Message: "table not initialized", Code: kernel.ErrNotInitialized},
			"[GDT] unrecoverable error",
		},
		{"something broke", "[rt] unrecoverable error"},
	}

	var buf bytes.Buffer
	for specIndex, spec := range specs {
		buf.Reset()
		outputSink = &buf

		Panic(spec.input)

		if got := buf.String(); !strings.Contains(got, spec.exp) {
			t.Errorf("[spec %d] expected panic output to contain %q; got %q", specIndex, spec.exp, got)
		}
		if !strings.Contains(buf.String(), "kernel panic: system halted") {
			t.Errorf("[spec %d] expected the panic banner", specIndex)
		}
	}

	if haltCalls != len(specs) || cliCalls != len(specs) {
		t.Errorf("expected %d halt/cli calls; got %d/%d", len(specs), haltCalls, cliCalls)
	}
}
