package sync

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestSpinlock(t *testing.T) {
	// Substitute the pause hint with runtime.Gosched to avoid starving
	// the test scheduler while busy-waiting.
	defer func(origPauseFn func()) { pauseFn = origPauseFn }(pauseFn)
	pauseFn = runtime.Gosched

	var (
		sl         Spinlock
		wg         sync.WaitGroup
		numWorkers = 10
	)

	sl.Acquire()

	if sl.TryToAcquire() != false {
		t.Error("expected TryToAcquire to return false when lock is held")
	}

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			sl.Acquire()
			sl.Release()
			wg.Done()
		}()
	}

	<-time.After(100 * time.Millisecond)
	sl.Release()
	wg.Wait()
}

func TestSpinlockMutualExclusion(t *testing.T) {
	defer func(origPauseFn func()) { pauseFn = origPauseFn }(pauseFn)
	pauseFn = runtime.Gosched

	var (
		sl         Spinlock
		wg         sync.WaitGroup
		numWorkers = 8
		numRounds  = 1000
		shared     int
	)

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			for j := 0; j < numRounds; j++ {
				sl.Acquire()
				// Non-atomic RMW on purpose; only mutual exclusion
				// keeps it consistent.
				shared++
				sl.Release()
			}
			wg.Done()
		}()
	}
	wg.Wait()

	if exp := numWorkers * numRounds; shared != exp {
		t.Errorf("expected shared counter to be %d; got %d", exp, shared)
	}
}
