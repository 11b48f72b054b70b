package kfmt

import "io"

// earlyBufferSize is the capacity of the early output ring buffer. It is
// sized to hold one 80x25 text console worth of output and must be a power
// of two.
const earlyBufferSize = 2048

// ringBuffer buffers Printf output generated before an output sink is
// attached. When full, the oldest bytes are overwritten.
type ringBuffer struct {
	data  [earlyBufferSize]byte
	start int
	used  int
}

// Write appends the contents of p to the ring buffer, evicting the oldest
// bytes on overflow. It never fails.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.data[(rb.start+rb.used)&(earlyBufferSize-1)] = b
		if rb.used < earlyBufferSize {
			rb.used++
		} else {
			rb.start = (rb.start + 1) & (earlyBufferSize - 1)
		}
	}

	return len(p), nil
}

// Read copies up to len(p) of the oldest buffered bytes into p, returning
// io.EOF once the buffer has been drained.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.used == 0 {
		return 0, io.EOF
	}

	n := 0
	for ; n < len(p) && rb.used > 0; n++ {
		p[n] = rb.data[rb.start]
		rb.start = (rb.start + 1) & (earlyBufferSize - 1)
		rb.used--
	}

	return n, nil
}
