package engine

import (
	"sync"
	"testing"
)

func TestSpinlockMutualExclusion(t *testing.T) {
	var lock Spinlock
	counter := 0

	const goroutines = 8
	const increments = 10000

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < increments; i++ {
				lock.Acquire()
				counter++
				lock.Release()
			}
		}()
	}
	wg.Wait()

	if counter != goroutines*increments {
		t.Errorf("Lost updates under contention: got %d, want %d", counter, goroutines*increments)
	}
}

func TestSpinlockSequential(t *testing.T) {
	var lock Spinlock

	// Re-acquiring after release must not block.
	for i := 0; i < 3; i++ {
		lock.Acquire()
		lock.Release()
	}
}
