package engine

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dylhunn/dragontoothmg"
)

// Per-worker cache sizes in MB. Small on purpose: there is one of each per
// worker and their whole point is staying contention-free, not capacity.
const (
	pawnTableSizeMB     = 1
	materialTableSizeMB = 1
)

// Options configures a pool at construction time.
type Options struct {
	Threads       int // number of search workers, 1..MaxWorkers
	HashMB        int // transposition table size
	MinSplitDepth int // minimum remaining depth for a node to split
	MoveOverhead  time.Duration
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	threads := runtime.NumCPU()
	if threads > MaxWorkers {
		threads = MaxWorkers
	}
	return Options{
		Threads:       threads,
		HashMB:        64,
		MinSplitDepth: 4,
		MoveOverhead:  30 * time.Millisecond,
	}
}

// SearchInfo is reported to the info callback after each completed depth.
type SearchInfo struct {
	Depth    int
	Score    int
	Nodes    uint64
	Time     time.Duration
	PV       []dragontoothmg.Move
	HashFull int
}

// Pool owns the fixed set of workers: the search workers, the main worker
// that drives the root search and the timer worker. It is constructed once
// at startup and referenced by every worker and every call into the split
// protocol; the registry itself is only mutated at startup and shutdown.
type Pool struct {
	workers []*Worker
	main    *MainWorker
	timer   *TimerWorker

	tt *TranspositionTable
	tm TimeManager

	minSplitDepth int
	slaveLimit    int
	moveOverhead  time.Duration

	// stop is the search-wide abort signal: readable from the deepest
	// recursion without any lock.
	stop atomic.Bool

	// Root search request, installed by StartThinking and owned by the
	// main worker while its thinking flag is set.
	rootPos    dragontoothmg.Board
	rootHashes []uint64
	limits     Limits

	// OnInfo and OnBestMove are invoked from the main worker's goroutine.
	OnInfo     func(SearchInfo)
	OnBestMove func(best dragontoothmg.Move)
}

// NewPool creates the workers and launches their idle loops. The worker
// registry is fixed for the life of the pool: no threads are created or
// destroyed during a search.
func NewPool(opts Options) *Pool {
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	if opts.Threads > MaxWorkers {
		opts.Threads = MaxWorkers
	}
	if opts.MinSplitDepth < 2 {
		opts.MinSplitDepth = 2
	}
	if opts.HashMB < 1 {
		opts.HashMB = 1
	}

	p := &Pool{
		tt:            NewTranspositionTable(opts.HashMB),
		minSplitDepth: opts.MinSplitDepth,
		slaveLimit:    7,
		moveOverhead:  opts.MoveOverhead,
	}

	p.main = newMainWorker(p)
	p.workers = append(p.workers, &p.main.Worker)
	for i := 1; i < opts.Threads; i++ {
		p.workers = append(p.workers, newWorker(p, i))
	}

	p.timer = newTimerWorker(p)
	launch(p.timer, &p.timer.workerBase)
	launch(p.main, &p.main.workerBase)
	for _, w := range p.workers[1:] {
		launch(w, &w.workerBase)
	}
	return p
}

// Exit terminates the workers. The timer goes first because its time checks
// read search state owned by the others. Must not be called while thinking.
func (p *Pool) Exit() {
	p.timer.shutdown()
	p.main.shutdown()
	for _, w := range p.workers[1:] {
		w.shutdown()
	}
}

// Threads returns the number of search workers.
func (p *Pool) Threads() int { return len(p.workers) }

// TT exposes the shared transposition table.
func (p *Pool) TT() *TranspositionTable { return p.tt }

// availableSlave returns an idle worker eligible to join sp, or nil. Workers
// are scanned in index order so recruitment decisions are reproducible.
func (p *Pool) availableSlave(sp *SplitPoint) *Worker {
	for _, w := range p.workers {
		if w.canJoin(sp) {
			return w
		}
	}
	return nil
}

// maxSlavesPerSplitPoint returns the slave cap for a split at the given
// remaining depth. Splitting a shallow subtree buys little: the split
// overhead dominates the work handed out, so shallow splits get a smaller
// fan-out than splits near the root.
func (p *Pool) maxSlavesPerSplitPoint(depth int) int {
	if depth >= 2*p.minSplitDepth {
		return p.slaveLimit
	}
	limit := p.slaveLimit / 2
	if limit < 1 {
		limit = 1
	}
	return limit
}

// MinSplitDepth returns the minimum remaining depth at which the search may
// split a node.
func (p *Pool) MinSplitDepth() int { return p.minSplitDepth }

// NodesSearched returns the total node count across all workers.
func (p *Pool) NodesSearched() uint64 {
	var n uint64
	for _, w := range p.workers {
		n += w.nodes.Load()
	}
	return n
}

// MaxPlyReached returns the deepest ply any worker touched in the last
// search. Diagnostic only.
func (p *Pool) MaxPlyReached() int {
	max := 0
	for _, w := range p.workers {
		if w.maxPly > max {
			max = w.maxPly
		}
	}
	return max
}

// StartThinking installs a new search request and wakes the main worker; it
// returns immediately. Completion is reported through OnBestMove, or waited
// on with Join.
func (p *Pool) StartThinking(pos dragontoothmg.Board, limits Limits, history []uint64) {
	p.main.Join() // finish any previous search first

	p.stop.Store(false)
	p.rootPos = pos
	p.limits = limits
	p.rootHashes = append(p.rootHashes[:0], history...)
	p.tt.NewSearch()
	for _, w := range p.workers {
		w.nodes.Store(0)
		w.maxPly = 0
	}

	// The thinking flag must be set before the wake so the main worker's
	// idle loop cannot miss the request.
	p.main.thinking.Store(true)
	p.main.notify()
}

// AbortSearch requests early termination of the search in progress. It is
// safe to call from any goroutine at any time.
func (p *Pool) AbortSearch() {
	p.stop.Store(true)
}

// Join blocks until the search in progress, if any, has completed.
func (p *Pool) Join() {
	p.main.Join()
}

// Searching reports whether a search is in progress.
func (p *Pool) Searching() bool {
	return p.main.thinking.Load()
}

// checkTime runs on the timer worker at a fixed short interval while a
// search is in progress. Purely advisory: it never touches split-point
// state, only the pool-wide stop flag.
func (p *Pool) checkTime() {
	if !p.main.thinking.Load() || p.stop.Load() {
		return
	}
	if p.limits.Infinite {
		return
	}
	if p.limits.Nodes > 0 && p.NodesSearched() >= p.limits.Nodes {
		p.stop.Store(true)
		return
	}
	if p.tm.maximumTime > 0 && p.tm.Elapsed() >= p.tm.maximumTime-p.moveOverhead {
		p.stop.Store(true)
	}
}
