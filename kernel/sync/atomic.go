package sync

import "sync/atomic"

// Counter is a machine-word counter mutated only through fetch-and-add
// primitives. Mutations are linearizable across cores and no torn value is
// ever observable; callers need no external locking.
type Counter struct {
	value int32
}

// Increment atomically adds one to the counter and returns the value the
// counter held before the addition.
func (c *Counter) Increment() int32 {
	return atomic.AddInt32(&c.value, 1) - 1
}

// Decrement atomically subtracts one from the counter and returns the
// value the counter held before the subtraction.
func (c *Counter) Decrement() int32 {
	return atomic.AddInt32(&c.value, -1) + 1
}

// Load returns the current counter value.
func (c *Counter) Load() int32 {
	return atomic.LoadInt32(&c.value)
}
