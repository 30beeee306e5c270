package engine

import (
	"sync"
	"sync/atomic"

	"github.com/dylhunn/dragontoothmg"
)

// Worker pool limits. The participant bitset of a split point is a single
// uint64, so a worker index must fit in 6 bits.
const (
	MaxWorkers              = 64
	MaxSplitPointsPerWorker = 8
)

// workerBase carries the sleep/wake machinery every worker role shares: a
// private mutex and condition variable for idle waits, the exit flag set by
// the pool during shutdown, and the done channel the pool joins on.
type workerBase struct {
	mu   sync.Mutex
	cond *sync.Cond
	exit atomic.Bool
	done chan struct{}
}

func (b *workerBase) init() {
	b.cond = sync.NewCond(&b.mu)
	b.done = make(chan struct{})
}

// notify wakes the worker when there is work to do. Taking the mutex first
// guarantees the wake is not lost between the worker's predicate check and
// its wait.
func (b *workerBase) notify() {
	b.mu.Lock()
	b.cond.Broadcast()
	b.mu.Unlock()
}

// shutdown flags the worker for termination, wakes it and waits for its idle
// loop to return. Any search must already be finished.
func (b *workerBase) shutdown() {
	b.exit.Store(true)
	b.notify()
	<-b.done
}

// idleLooper is the role-specific loop body a worker runs for its lifetime.
type idleLooper interface {
	idleLoop()
}

// launch starts the worker's role loop on its own goroutine.
func launch(w idleLooper, base *workerBase) {
	go func() {
		defer close(base.done)
		w.idleLoop()
	}()
}

// searchFrame is one slot of a worker's search stack. A split point keeps a
// pointer to the master's frame at the split node; the master is parked
// inside split() for the whole parallel search, so participants may read the
// frame freely.
type searchFrame struct {
	ply         int
	staticEval  int
	currentMove dragontoothmg.Move
}

// Worker is a search worker. It owns per-worker evaluation caches (never
// shared, so reads and writes need no locks), a fixed stack of split points
// it currently masters, and the bookkeeping needed to join split points
// created by other workers.
type Worker struct {
	workerBase
	pool *Pool
	idx  int

	// spinlock serializes recruitment: a master claims this worker by
	// taking the lock, re-checking canJoin and then setting searching and
	// activeSplitPoint. The worker detaches itself under the same lock.
	// Speculative lock-free reads of both atomics are allowed.
	spinlock         Spinlock
	searching        atomic.Bool
	activeSplitPoint atomic.Pointer[SplitPoint]
	splitPointsSize  atomic.Int32
	splitPoints      [MaxSplitPointsPerWorker]SplitPoint

	// Per-worker caches and search state.
	pawnTable     *PawnTable
	materialTable *MaterialTable
	orderer       *MoveOrderer
	stack         [MaxPly + 2]searchFrame
	history       []uint64 // position hashes of the line being searched

	nodes  atomic.Uint64 // read by the main worker for info output
	maxPly int           // high-water mark of recursion depth, diagnostic only

	// Root bookkeeping, used only when this worker drives ply 0.
	rootMove dragontoothmg.Move
}

func newWorker(pool *Pool, idx int) *Worker {
	w := &Worker{
		pool:          pool,
		idx:           idx,
		pawnTable:     NewPawnTable(pawnTableSizeMB),
		materialTable: NewMaterialTable(materialTableSizeMB),
		orderer:       NewMoveOrderer(),
	}
	w.workerBase.init()
	return w
}

// idleLoop parks the worker until it is recruited into a split point or the
// pool shuts down.
func (w *Worker) idleLoop() {
	w.splitPointIdleLoop(nil)
}

// splitPointIdleLoop is the shared core of the idle loop. thisSP is non-nil
// only when called from split(): the worker is then the master of thisSP and
// returns as soon as the last slave has retired it, instead of parking
// indefinitely.
func (w *Worker) splitPointIdleLoop(thisSP *SplitPoint) {
	for !w.exit.Load() && !(thisSP != nil && thisSP.slavesMask.Load() == 0) {
		// If this worker has been assigned a split point, search it. A
		// helpful master lands here too: its searching flag is still set
		// when split() enters the idle loop.
		for w.searching.Load() {
			sp := w.activeSplitPoint.Load()

			// Work from a private copy of the split position.
			pos := *sp.pos
			w.searchSplitPoint(sp, &pos)

			// Detach before retiring from the split point, so a master
			// that sees us idle can immediately re-recruit us; the inner
			// loop will pick the new assignment up.
			w.spinlock.Acquire()
			w.searching.Store(false)
			w.activeSplitPoint.Store(nil)
			w.spinlock.Release()

			sp.lock.Acquire()
			sp.removeParticipant(w.idx)
			sp.allSlavesSearching.Store(false)
			last := sp.slavesMask.Load() == 0
			master := sp.master
			sp.lock.Release()

			// Wake the master in case we were the last slave of the split
			// point. After this point sp may be retired and reused under
			// our feet, so it must not be touched again.
			if w != master && last {
				master.notify()
			}

			w.tryLateJoin()
		}

		w.mu.Lock()
		// Masters leave the loop once every slave has retired; everyone
		// else sleeps until recruited or told to exit. The predicates are
		// re-checked under the mutex so a notify sent between the atomic
		// read above and the wait below cannot be lost.
		if thisSP != nil && thisSP.slavesMask.Load() == 0 {
			w.mu.Unlock()
			return
		}
		if !w.searching.Load() && !w.exit.Load() {
			w.cond.Wait()
		}
		w.mu.Unlock()
	}
}

// cutoffOccurred reports whether a beta cutoff has been flagged anywhere on
// this worker's ancestor chain. The reads are lock-free and may be stale;
// that only costs a little extra work, never a wrong result, because the
// aggregated outputs are re-validated under the split point's lock.
func (w *Worker) cutoffOccurred() bool {
	for sp := w.activeSplitPoint.Load(); sp != nil; sp = sp.parent {
		if sp.cutoff.Load() {
			return true
		}
	}
	return false
}

// canJoin reports whether this worker may be recruited as a slave of sp.
// Searching workers are busy, and a worker already in sp's mask is mid
// retirement: booking it again would be erased by its pending mask removal.
// A worker that masters split points of its own may only help a participant
// of its topmost one. That participant stays inside the topmost split point
// for as long as it masters sp, so once the topmost slaves mask empties no
// booking of this master can still be pending and it is free to resume above
// its split.
func (w *Worker) canJoin(sp *SplitPoint) bool {
	if w.searching.Load() {
		return false
	}
	if sp.hasParticipant(w.idx) {
		return false
	}
	size := int(w.splitPointsSize.Load())
	return size == 0 || w.splitPoints[size-1].hasParticipant(sp.master.idx)
}

// split allocates the next free slot of this worker's split stack, recruits
// idle workers from the pool and searches the remaining moves of the current
// node together with them. On return bestValue and bestMove hold the
// aggregated result and the caller resumes single-threaded above the split.
//
// The master does not block right away: it keeps searching inside the split
// point as one more participant, late-joins other split points once its own
// moves run out, and parks only while slaves remain active.
func (w *Worker) split(pos *dragontoothmg.Board, frame *searchFrame, alpha, beta int,
	bestValue *int, bestMove *dragontoothmg.Move, depth, moveCount int,
	picker *MovePicker, nodeType int, cutNode bool) {

	// Both are programming invariants, not runtime conditions.
	if !w.searching.Load() {
		panic("engine: split called on an idle worker")
	}
	size := int(w.splitPointsSize.Load())
	if size >= MaxSplitPointsPerWorker {
		panic("engine: split stack overflow")
	}

	sp := &w.splitPoints[size]
	sp.lock.Acquire() // held through setup and recruitment

	sp.master = w
	sp.parent = w.activeSplitPoint.Load()
	sp.pos = pos
	sp.frame = frame
	sp.history = append([]uint64(nil), w.history...)
	sp.depth = depth
	sp.beta = beta
	sp.nodeType = nodeType
	sp.cutNode = cutNode
	sp.picker = picker
	sp.alpha = alpha
	sp.bestValue = *bestValue
	sp.bestMove = *bestMove
	sp.moveCount = moveCount
	sp.cutoff.Store(false)
	sp.slavesMask.Store(1 << uint(w.idx))
	sp.allSlavesSearching.Store(true)

	// Publish the slot: from here on the pool's slave selection and the
	// late-join scan may see it.
	w.spinlock.Acquire()
	w.splitPointsSize.Store(int32(size + 1))
	w.activeSplitPoint.Store(sp)
	w.spinlock.Release()

	w.recruitSlaves(sp, depth)
	sp.lock.Release()

	// Helpful master: enter the idle loop, which instantly resumes this
	// split point because our searching flag is still set, and return only
	// once every slave has retired it.
	w.splitPointIdleLoop(sp)

	// All participants are done. Read the aggregated outputs back under the
	// lock: a late retiring slave may still be inside its unlock sequence.
	// The slot release is additionally serialized through our own spin lock
	// so it cannot interleave with a recruiter's canJoin re-check.
	sp.lock.Acquire()
	w.spinlock.Acquire()
	w.searching.Store(true)
	w.splitPointsSize.Store(int32(size))
	w.activeSplitPoint.Store(sp.parent)
	w.spinlock.Release()
	*bestValue = sp.bestValue
	*bestMove = sp.bestMove
	sp.lock.Release()
}

// recruitSlaves asks the pool for available slaves until none is left or the
// depth-dependent cap is reached. The caller holds sp.lock. Each recruit is
// claimed under its own spin lock, pointed at the split point and woken.
// Returns the number of slaves recruited.
func (w *Worker) recruitSlaves(sp *SplitPoint, depth int) int {
	recruited := 0
	limit := w.pool.maxSlavesPerSplitPoint(depth)
	for recruited < limit {
		slave := w.pool.availableSlave(sp)
		if slave == nil {
			break
		}
		slave.spinlock.Acquire()
		ok := slave.canJoin(sp)
		if ok {
			sp.addParticipant(slave.idx)
			slave.activeSplitPoint.Store(sp)
			slave.searching.Store(true)
		}
		slave.spinlock.Release()
		if ok {
			recruited++
			slave.notify()
		}
	}
	return recruited
}

// tryLateJoin looks for a published split point this worker may join now
// that it has gone idle mid-search. Preference goes to split points with the
// shortest ancestor chain: the closer to the root, the smaller the chance a
// cutoff above wastes the joined work.
func (w *Worker) tryLateJoin() {
	var best *SplitPoint
	bestLevel := int(^uint(0) >> 1)

	for _, th := range w.pool.workers {
		size := int(th.splitPointsSize.Load()) // local copy, may be stale
		if size == 0 {
			continue
		}
		sp := &th.splitPoints[size-1]
		if !sp.allSlavesSearching.Load() ||
			sp.participantCount()-1 >= w.pool.maxSlavesPerSplitPoint(sp.depth) ||
			!w.canJoin(sp) {
			continue
		}
		level := 0
		for p := th.activeSplitPoint.Load(); p != nil; p = p.parent {
			level++
		}
		if level < bestLevel {
			best, bestLevel = sp, level
		}
	}
	if best == nil {
		return
	}

	// The scan was speculative; re-check everything under the locks.
	best.lock.Acquire()
	if best.allSlavesSearching.Load() &&
		best.participantCount()-1 < w.pool.maxSlavesPerSplitPoint(best.depth) {
		w.spinlock.Acquire()
		if w.canJoin(best) {
			best.addParticipant(w.idx)
			w.activeSplitPoint.Store(best)
			w.searching.Store(true)
		}
		w.spinlock.Release()
	}
	best.lock.Release()
}

// searchSplitPoint runs the shared move loop of a split point. The master
// and every slave execute it; move distribution and all result updates are
// serialized through the split point's lock, while the subtree below each
// move is searched without it.
func (w *Worker) searchSplitPoint(sp *SplitPoint, pos *dragontoothmg.Board) {
	// Each participant searches its own continuation of the master's line.
	savedHistory := w.history
	w.history = append([]uint64(nil), sp.history...)
	defer func() { w.history = savedHistory }()

	ply := sp.frame.ply

	sp.lock.Acquire()
	for !sp.cutoff.Load() && !w.pool.stop.Load() {
		move := sp.picker.NextMove()
		if move == noMove {
			break
		}
		sp.moveCount++
		moveCount := sp.moveCount
		alpha := sp.alpha
		sp.lock.Release()

		value := w.searchSplitMove(sp, pos, move, alpha, moveCount, ply)

		sp.lock.Acquire()
		// A sibling may have proven the bound while we were below; in that
		// case our value is meaningless and must not touch the outputs.
		if sp.cutoff.Load() || w.pool.stop.Load() {
			break
		}
		if value > sp.bestValue {
			sp.bestValue = value
			sp.bestMove = move
			if value > sp.alpha {
				sp.alpha = value
				if value >= sp.beta {
					sp.cutoff.Store(true) // siblings observe this lock-free
				}
			}
		}
	}
	sp.lock.Release()
}

// searchSplitMove searches one move drawn from the split point. The first
// moves of the node were searched by the master before splitting, so every
// move here starts with a zero window and is re-searched on a fail high
// inside an open window.
func (w *Worker) searchSplitMove(sp *SplitPoint, pos *dragontoothmg.Board,
	move dragontoothmg.Move, alpha, moveCount, ply int) int {

	// Reductions depend on the pre-move board state.
	reduce := moveCount > 4 && sp.depth >= 3 &&
		!dragontoothmg.IsCapture(move, pos) && move.Promote() == 0 &&
		!pos.OurKingInCheck()

	unapply := pos.Apply(move)
	w.history = append(w.history, pos.Hash())

	newDepth := sp.depth - 1
	if pos.OurKingInCheck() {
		newDepth++
		reduce = false
	}

	var value int
	if reduce {
		reduction := lmrReductions[min64(sp.depth)][min64(moveCount)]
		if sp.cutNode {
			reduction++
		}
		if reduction < 1 {
			reduction = 1
		}
		reducedDepth := newDepth - reduction
		if reducedDepth < 1 {
			reducedDepth = 1
		}
		value = -w.search(pos, -(alpha + 1), -alpha, reducedDepth, ply+1, true)
		if value <= alpha {
			w.history = w.history[:len(w.history)-1]
			unapply()
			return value
		}
	}

	value = -w.search(pos, -(alpha + 1), -alpha, newDepth, ply+1, !sp.cutNode)
	if value > alpha && value < sp.beta {
		value = -w.search(pos, -sp.beta, -alpha, newDepth, ply+1, false)
	}

	w.history = w.history[:len(w.history)-1]
	unapply()
	return value
}
