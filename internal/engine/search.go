package engine

import (
	"math"

	"github.com/dylhunn/dragontoothmg"
)

// Search constants.
const (
	Infinity  = 30000
	MateScore = 29000
	MaxPly    = 128
)

const noMove = dragontoothmg.Move(0)

// lmrReductions[depth][moveCount] holds precomputed logarithmic late-move
// reductions.
var lmrReductions [64][64]int

func init() {
	for d := 1; d < 64; d++ {
		for m := 1; m < 64; m++ {
			lmrReductions[d][m] = int(21.46 * math.Log(float64(d)) * math.Log(float64(m)) / 1024.0)
		}
	}
}

// search is the recursive alpha-beta search the split machinery parallelizes.
// It runs entirely on one worker; the only cross-thread state it touches is
// the shared transposition table, the pool stop flag and the cutoff flags on
// the worker's ancestor chain.
func (w *Worker) search(pos *dragontoothmg.Board, alpha, beta, depth, ply int, cutNode bool) int {
	if ply > w.maxPly {
		w.maxPly = ply
	}
	if ply >= MaxPly-1 {
		return w.evaluate(pos)
	}

	// Both abort signals are plain flag reads, cheap enough to poll at
	// every node. A stale cutoff read wastes a little work at worst.
	if w.pool.stop.Load() || w.cutoffOccurred() {
		return 0
	}

	w.nodes.Add(1)

	if ply > 0 && w.isRepetition(pos) {
		return 0
	}

	// Transposition table probe.
	var ttMove dragontoothmg.Move
	hash := pos.Hash()
	ttEntry, found := w.pool.tt.Probe(hash)
	if found {
		ttMove = ttEntry.BestMove
		if ply > 0 && int(ttEntry.Depth) >= depth {
			score := AdjustScoreFromTT(int(ttEntry.Score), ply)
			switch ttEntry.Flag {
			case TTExact:
				return score
			case TTLowerBound:
				if score > alpha {
					alpha = score
				}
			case TTUpperBound:
				if score < beta {
					beta = score
				}
			}
			if alpha >= beta {
				return score
			}
		}
	}

	if depth <= 0 {
		return w.quiescence(pos, alpha, beta, ply)
	}

	inCheck := pos.OurKingInCheck()
	staticEval := w.evaluate(pos)

	frame := &w.stack[ply]
	frame.ply = ply
	frame.staticEval = staticEval

	// Reverse futility pruning: a quiet position already far above beta at
	// low remaining depth is not going to fall back under it.
	if !inCheck && ply > 0 && depth <= 6 && beta > -MateScore+MaxPly &&
		staticEval-80*depth >= beta {
		return beta
	}

	picker := NewMovePicker(pos, ttMove, w.orderer, ply)
	if picker.Len() == 0 {
		if inCheck {
			return -MateScore + ply
		}
		return 0
	}

	bestScore := -Infinity
	bestMove := noMove
	moveCount := 0
	flag := TTUpperBound

	for move := picker.NextMove(); move != noMove; move = picker.NextMove() {
		moveCount++
		frame.currentMove = move

		isCapture := dragontoothmg.IsCapture(move, pos)
		isPromotion := move.Promote() != 0

		unapply := pos.Apply(move)
		w.history = append(w.history, pos.Hash())

		// Extend moves that give check. Evasions are not extended as well,
		// or depth would never shrink along a checking sequence.
		extension := 0
		if pos.OurKingInCheck() {
			extension = 1
		}
		newDepth := depth - 1 + extension

		var score int
		switch {
		case moveCount == 1:
			score = -w.search(pos, -beta, -alpha, newDepth, ply+1, false)
		case moveCount > 4 && depth >= 3 && !inCheck && !isCapture && !isPromotion && extension == 0:
			// Late move reduction with a verification re-search.
			reduction := lmrReductions[min64(depth)][min64(moveCount)]
			if cutNode {
				reduction++
			}
			if reduction < 1 {
				reduction = 1
			}
			reducedDepth := newDepth - reduction
			if reducedDepth < 1 {
				reducedDepth = 1
			}
			score = -w.search(pos, -alpha-1, -alpha, reducedDepth, ply+1, true)
			if score > alpha {
				score = -w.search(pos, -beta, -alpha, newDepth, ply+1, false)
			}
		default:
			score = -w.search(pos, -alpha-1, -alpha, newDepth, ply+1, !cutNode)
			if score > alpha && score < beta {
				score = -w.search(pos, -beta, -alpha, newDepth, ply+1, false)
			}
		}

		w.history = w.history[:len(w.history)-1]
		unapply()

		if w.pool.stop.Load() {
			return 0
		}

		if score > bestScore {
			bestScore = score
			bestMove = move
			if score > alpha {
				alpha = score
				flag = TTExact
			}
		}

		if score >= beta {
			w.pool.tt.Store(hash, depth, AdjustScoreToTT(score, ply), TTLowerBound, bestMove)
			if !isCapture && !isPromotion {
				w.orderer.UpdateKillers(move, ply)
				w.orderer.UpdateHistory(move, depth)
			}
			if ply == 0 {
				w.rootMove = bestMove
			}
			return score
		}

		// Qualifying node with remaining moves: hand them to a split point.
		// The picker is then drained by the participants, so the loop above
		// terminates naturally after split returns.
		if len(w.pool.workers) >= 2 &&
			depth >= w.pool.minSplitDepth &&
			(w.activeSplitPoint.Load() == nil || w.activeSplitPoint.Load().allSlavesSearching.Load()) &&
			int(w.splitPointsSize.Load()) < MaxSplitPointsPerWorker {

			nodeType := nodeNonPV
			if ply == 0 {
				nodeType = nodeRoot
			} else if beta-alpha > 1 {
				nodeType = nodePV
			}
			w.split(pos, frame, alpha, beta, &bestScore, &bestMove, depth, moveCount, picker, nodeType, cutNode)

			if w.pool.stop.Load() || w.cutoffOccurred() {
				return 0
			}
			if bestScore >= beta {
				w.pool.tt.Store(hash, depth, AdjustScoreToTT(bestScore, ply), TTLowerBound, bestMove)
				if ply == 0 {
					w.rootMove = bestMove
				}
				return bestScore
			}
			if bestScore > alpha {
				alpha = bestScore
				flag = TTExact
			}
		}
	}

	if ply == 0 && bestMove != noMove {
		w.rootMove = bestMove
	}

	w.pool.tt.Store(hash, depth, AdjustScoreToTT(bestScore, ply), flag, bestMove)
	return bestScore
}

// quiescence searches captures and promotions until the position is quiet,
// to keep the horizon effect out of the static evaluation.
func (w *Worker) quiescence(pos *dragontoothmg.Board, alpha, beta, ply int) int {
	if ply > w.maxPly {
		w.maxPly = ply
	}
	if ply >= MaxPly-1 {
		return w.evaluate(pos)
	}
	if w.pool.stop.Load() {
		return 0
	}

	w.nodes.Add(1)

	standPat := w.evaluate(pos)
	if standPat >= beta {
		return beta
	}
	if standPat > alpha {
		alpha = standPat
	}

	picker := NewCapturePicker(pos)
	for move := picker.NextMove(); move != noMove; move = picker.NextMove() {
		// Delta pruning: even winning the victim outright cannot lift the
		// score near alpha.
		if standPat+pieceValue[capturedPiece(pos, move)]+200 < alpha && move.Promote() == 0 {
			continue
		}

		unapply := pos.Apply(move)
		score := -w.quiescence(pos, -beta, -alpha, ply+1)
		unapply()

		if score >= beta {
			return beta
		}
		if score > alpha {
			alpha = score
		}
	}

	return alpha
}

// isRepetition reports whether the current position already occurred on the
// line being searched (or in the game history leading to the root).
func (w *Worker) isRepetition(pos *dragontoothmg.Board) bool {
	hash := pos.Hash()
	count := 0
	for _, h := range w.history {
		if h == hash {
			count++
			if count >= 2 {
				return true
			}
		}
	}
	return false
}

func min64(v int) int {
	if v > 63 {
		return 63
	}
	return v
}
