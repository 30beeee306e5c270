package engine

import (
	"sync/atomic"
	"time"
)

// MainWorker is the distinguished worker that owns the root of the whole
// search. It participates in the split machinery like any other worker, and
// additionally carries the thinking flag that tells the protocol layer
// whether a search is in progress.
type MainWorker struct {
	Worker
	thinking atomic.Bool
}

func newMainWorker(p *Pool) *MainWorker {
	mw := &MainWorker{}
	mw.pool = p
	mw.idx = 0
	mw.pawnTable = NewPawnTable(pawnTableSizeMB)
	mw.materialTable = NewMaterialTable(materialTableSizeMB)
	mw.orderer = NewMoveOrderer()
	mw.workerBase.init()
	// Born thinking: Join must not return, and StartThinking must not install
	// a request, before the idle loop has parked for the first time.
	mw.thinking.Store(true)
	return mw
}

// idleLoop parks the main worker between searches. A wake with the thinking
// flag set starts a new root search.
func (mw *MainWorker) idleLoop() {
	for {
		mw.mu.Lock()
		mw.thinking.Store(false)
		mw.cond.Broadcast() // release anyone blocked in Join
		for !mw.thinking.Load() && !mw.exit.Load() {
			mw.cond.Wait()
		}
		mw.mu.Unlock()

		if mw.exit.Load() {
			return
		}
		mw.think()
	}
}

// Join blocks the caller until the thinking flag clears. The protocol layer
// uses it to wait for search completion.
func (mw *MainWorker) Join() {
	mw.mu.Lock()
	for mw.thinking.Load() {
		mw.cond.Wait()
	}
	mw.mu.Unlock()
}

// think drives the iterative-deepening root search. It runs on the main
// worker's goroutine while the thinking flag is set and reports depth
// results and the final best move through the pool's callbacks.
func (mw *MainWorker) think() {
	p := mw.pool
	pos := p.rootPos // private root copy
	limits := p.limits

	rootMoves := pos.GenerateLegalMoves()
	if len(rootMoves) == 0 {
		if p.OnBestMove != nil {
			p.OnBestMove(noMove)
		}
		return
	}

	p.tm.Init(limits, pos.Wtomove, int(pos.Fullmoveno))
	p.timer.start()
	defer p.timer.halt()

	mw.history = append(mw.history[:0], p.rootHashes...)
	mw.orderer.NewSearch()
	mw.searching.Store(true)
	defer mw.searching.Store(false)

	maxDepth := MaxPly - 1
	if limits.Depth > 0 && limits.Depth < maxDepth {
		maxDepth = limits.Depth
	}

	var (
		bestMove  = rootMoves[0]
		bestScore = -Infinity
		stability = 0
		started   = time.Now()
	)

	const aspirationWindow = 50

	for depth := 1; depth <= maxDepth && !p.stop.Load(); depth++ {
		alpha, beta := -Infinity, Infinity
		if depth >= 5 && bestScore > -Infinity {
			alpha, beta = bestScore-aspirationWindow, bestScore+aspirationWindow
		}

		var score int
		for {
			score = mw.search(&pos, alpha, beta, depth, 0, false)
			if p.stop.Load() {
				break
			}
			// Widen the failed bound and retry until the score fits.
			if score <= alpha {
				alpha = -Infinity
			} else if score >= beta {
				beta = Infinity
			} else {
				break
			}
		}
		if p.stop.Load() {
			break
		}

		if mw.rootMove != noMove {
			if mw.rootMove == bestMove {
				stability++
			} else {
				stability = 0
			}
			bestMove = mw.rootMove
			bestScore = score
		}

		if p.OnInfo != nil {
			p.OnInfo(SearchInfo{
				Depth:    depth,
				Score:    bestScore,
				Nodes:    p.NodesSearched(),
				Time:     time.Since(started),
				PV:       p.tt.PrincipalVariation(pos, depth),
				HashFull: p.tt.HashFull(),
			})
		}

		// Mate found: deeper iterations cannot change the result.
		if bestScore > MateScore-MaxPly || bestScore < -MateScore+MaxPly {
			break
		}

		if !limits.Infinite && limits.Depth == 0 && limits.Nodes == 0 {
			p.tm.AdjustForStability(stability)
			if p.tm.PastOptimum() {
				break
			}
		}
	}

	if p.OnBestMove != nil {
		p.OnBestMove(bestMove)
	}
}
