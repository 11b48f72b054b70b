// Package kfmt provides formatted output primitives that are safe to use
// from kernel code: no allocation, no reflection, and a ring buffer that
// captures output emitted before a console sink is attached.
package kfmt

import "io"

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	// scratch buffers shared by the formatting helpers. Trap-path code
	// never calls into kfmt so sharing is safe under the big kernel
	// output lock implied by single-sink usage.
	numBuf  [32]byte
	byteBuf [1]byte

	// earlyBuffer captures Printf output until a sink is attached.
	earlyBuffer ringBuffer

	// outputSink is where Printf sends its output. While nil, output is
	// redirected to earlyBuffer.
	outputSink io.Writer
)

// SetOutputSink attaches w as the target for Printf output and drains any
// early boot output accumulated in the ring buffer into it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyBuffer)
	}
}

// GetOutputSink returns the currently attached output sink or the early
// output ring buffer if no sink has been attached yet.
func GetOutputSink() io.Writer {
	if outputSink != nil {
		return outputSink
	}
	return &earlyBuffer
}

// Printf formats its arguments and writes them to the active output sink.
// The supported verb subset is %s (string and []byte), %c, %t, and %o/%d/%x
// for all built-in integer types. An optional decimal width before the verb
// left-pads the value: with spaces for %s and %d, with zeroes for %x and %o.
func Printf(format string, args ...interface{}) {
	Fprintf(GetOutputSink(), format, args...)
}

// Fprintf behaves like Printf but writes the formatted output to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex int
		width    int
	)

	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' {
			emitByte(w, ch)
			continue
		}

		// Parse "%[width]verb"; a trailing lone % emits a NOVERB marker.
		width = 0
		i++
		for ; i < len(format); i++ {
			ch = format[i]
			if ch >= '0' && ch <= '9' {
				width = width*10 + int(ch-'0')
				continue
			}
			break
		}

		if i == len(format) {
			emit(w, errNoVerb)
			break
		}

		if ch == '%' {
			emitByte(w, '%')
			continue
		}

		if argIndex >= len(args) {
			emit(w, errMissingArg)
			continue
		}

		switch ch {
		case 's':
			fmtString(w, args[argIndex], width)
		case 'c':
			fmtChar(w, args[argIndex])
		case 't':
			fmtBool(w, args[argIndex])
		case 'd':
			fmtInt(w, args[argIndex], 10, width, ' ')
		case 'x':
			fmtInt(w, args[argIndex], 16, width, '0')
		case 'o':
			fmtInt(w, args[argIndex], 8, width, '0')
		default:
			emit(w, errNoVerb)
		}
		argIndex++
	}

	for ; argIndex < len(args); argIndex++ {
		emit(w, errExtraArg)
	}
}

func emit(w io.Writer, p []byte) {
	w.Write(p)
}

func emitByte(w io.Writer, b byte) {
	byteBuf[0] = b
	w.Write(byteBuf[:])
}

func pad(w io.Writer, fill byte, count int) {
	for i := 0; i < count; i++ {
		emitByte(w, fill)
	}
}

func fmtBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	if !ok {
		emit(w, errWrongArgType)
		return
	}
	if b {
		emit(w, trueValue)
	} else {
		emit(w, falseValue)
	}
}

func fmtChar(w io.Writer, v interface{}) {
	switch c := v.(type) {
	case byte:
		emitByte(w, c)
	case rune:
		emitByte(w, byte(c))
	default:
		emit(w, errWrongArgType)
	}
}

func fmtString(w io.Writer, v interface{}, width int) {
	switch s := v.(type) {
	case string:
		pad(w, ' ', width-len(s))
		// Converting the string to []byte would allocate; go one byte at
		// a time instead.
		for i := 0; i < len(s); i++ {
			emitByte(w, s[i])
		}
	case []byte:
		pad(w, ' ', width-len(s))
		emit(w, s)
	default:
		emit(w, errWrongArgType)
	}
}

// fmtInt writes v in the requested base, left-padding to width with fill.
// Negative values are only meaningful in base 10; other bases print the
// two's complement bit pattern.
func fmtInt(w io.Writer, v interface{}, base, width int, fill byte) {
	var (
		uval     uint64
		negative bool
	)

	switch t := v.(type) {
	case uint8:
		uval = uint64(t)
	case uint16:
		uval = uint64(t)
	case uint32:
		uval = uint64(t)
	case uint64:
		uval = t
	case uint:
		uval = uint64(t)
	case uintptr:
		uval = uint64(t)
	case int8:
		uval, negative = toUnsigned(int64(t), base)
	case int16:
		uval, negative = toUnsigned(int64(t), base)
	case int32:
		uval, negative = toUnsigned(int64(t), base)
	case int64:
		uval, negative = toUnsigned(t, base)
	case int:
		uval, negative = toUnsigned(int64(t), base)
	default:
		emit(w, errWrongArgType)
		return
	}

	const digits = "0123456789abcdef"

	pos := len(numBuf)
	for {
		pos--
		numBuf[pos] = digits[uval%uint64(base)]
		uval /= uint64(base)
		if uval == 0 {
			break
		}
	}
	if negative {
		pos--
		numBuf[pos] = '-'
	}

	pad(w, fill, width-(len(numBuf)-pos))
	emit(w, numBuf[pos:])
}

func toUnsigned(v int64, base int) (uint64, bool) {
	if base == 10 && v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}
