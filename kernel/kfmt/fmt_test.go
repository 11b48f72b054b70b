package kfmt

import (
	"bytes"
	"testing"
)

func TestFprintf(t *testing.T) {
	specs := []struct {
		format string
		args   []interface{}
		exp    string
	}{
		{"no verbs", nil, "no verbs"},
		{"%s and %s", []interface{}{"foo", []byte("bar")}, "foo and bar"},
		{"%5s|", []interface{}{"ab"}, "   ab|"},
		{"%d %d %d", []interface{}{42, -42, uint8(255)}, "42 -42 255"},
		{"%4d|", []interface{}{7}, "   7|"},
		{"%x", []interface{}{uint32(0xbadf00d)}, "badf00d"},
		{"%8x", []interface{}{uint16(0xff)}, "000000ff"},
		{"%o", []interface{}{uint8(8)}, "10"},
		{"%t %t", []interface{}{true, false}, "true false"},
		{"%c%c%c", []interface{}{byte('f'), 'o', 'o'}, "foo"},
		{"100%%", nil, "100%"},
		{"%d", nil, "(MISSING)"},
		{"", []interface{}{1}, "%!(EXTRA)"},
		{"%s", []interface{}{42}, "%!(WRONGTYPE)"},
		{"%q", []interface{}{1}, "%!(NOVERB)"},
		{"%", nil, "%!(NOVERB)"},
	}

	var buf bytes.Buffer
	for specIndex, spec := range specs {
		buf.Reset()
		Fprintf(&buf, spec.format, spec.args...)
		if got := buf.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}

func TestEarlyPrintfIsDrainedIntoSink(t *testing.T) {
	defer func() {
		outputSink = nil
		earlyBuffer = ringBuffer{}
	}()
	outputSink = nil
	earlyBuffer = ringBuffer{}

	Printf("early %d", 1)

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if got := buf.String(); got != "early 1" {
		t.Errorf("expected early output to be drained into the sink; got %q", got)
	}

	Printf(" late")
	if got := buf.String(); got != "early 1 late" {
		t.Errorf("expected late output to reach the sink directly; got %q", got)
	}
}
