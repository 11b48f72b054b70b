package klog

import (
	"bytes"
	"testing"

	"github.com/Oxmose/roOs-sub001/kernel/kfmt"
)

func TestLeveledOutput(t *testing.T) {
	defer func(orig Level) {
		minLevel = orig
		kfmt.SetOutputSink(nil)
	}(minLevel)

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	SetMinLevel(LevelInfo)
	Debug("SEM", "should be filtered")
	Info("SEM", "level is %d", 3)
	Success("GDT", "tables loaded")
	Error("FUTEX", "no waiter")

	exp := "[INFO] SEM: level is 3\n[OK] GDT: tables loaded\n[ERROR] FUTEX: no waiter\n"
	if got := buf.String(); got != exp {
		t.Errorf("expected output %q; got %q", exp, got)
	}

	buf.Reset()
	SetMinLevel(LevelDebug)
	Debug("SEM", "now visible")
	if got := buf.String(); got != "[DEBUG] SEM: now visible\n" {
		t.Errorf("expected debug record to be emitted; got %q", got)
	}
}
