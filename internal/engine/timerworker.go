package engine

import (
	"sync/atomic"
	"time"
)

// timerResolution is the interval between two time checks while a search is
// in progress.
const timerResolution = 5 * time.Millisecond

// TimerWorker wakes on a short fixed period and drives the time-based abort
// check. It never touches split-point state; its only output is the pool's
// stop flag, set inside Pool.checkTime.
type TimerWorker struct {
	workerBase
	pool *Pool
	run  atomic.Bool
}

func newTimerWorker(p *Pool) *TimerWorker {
	t := &TimerWorker{pool: p}
	t.workerBase.init()
	return t
}

// start enables the periodic checks. Called by the main worker once the
// time manager is initialized for the new search.
func (t *TimerWorker) start() {
	t.run.Store(true)
	t.notify()
}

// halt disables the checks; the worker goes back to an indefinite wait.
func (t *TimerWorker) halt() {
	t.run.Store(false)
}

// idleLoop sleeps until a search starts, then polls with a bounded timeout
// instead of an indefinite wait.
func (t *TimerWorker) idleLoop() {
	for !t.exit.Load() {
		t.mu.Lock()
		for !t.exit.Load() && !t.run.Load() {
			t.cond.Wait()
		}
		t.mu.Unlock()

		if !t.exit.Load() && t.run.Load() {
			t.pool.checkTime()
			time.Sleep(timerResolution)
		}
	}
}
