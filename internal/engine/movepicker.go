package engine

import "github.com/dylhunn/dragontoothmg"

// Move ordering score bands. The exact values only matter relative to each
// other.
const (
	scoreTTMove    = 1 << 24
	scoreCapture   = 1 << 20
	scorePromotion = 1 << 19
	scoreKiller1   = 1 << 18
	scoreKiller2   = 1<<18 - 1
)

// MovePicker hands out the legal moves of one position in a good-first order.
// A picker is shared between split point participants, so all its methods
// after construction must be called with the owning split point's lock held.
type MovePicker struct {
	moves  []dragontoothmg.Move
	scores []int
	cur    int
}

// NewMovePicker generates and scores all legal moves. The hash move goes
// first, then captures by MVV-LVA, promotions, killers and finally quiet
// moves by history score.
func NewMovePicker(pos *dragontoothmg.Board, ttMove dragontoothmg.Move, orderer *MoveOrderer, ply int) *MovePicker {
	moves := pos.GenerateLegalMoves()
	mp := &MovePicker{
		moves:  moves,
		scores: make([]int, len(moves)),
	}
	k1, k2 := orderer.Killers(ply)
	for i, m := range moves {
		switch {
		case m == ttMove:
			mp.scores[i] = scoreTTMove
		case dragontoothmg.IsCapture(m, pos):
			victim := capturedPiece(pos, m)
			attacker := pieceTypeOn(pos, m.From())
			mp.scores[i] = scoreCapture + pieceValue[victim]*16 - pieceValue[attacker]/8
		case m.Promote() != 0:
			mp.scores[i] = scorePromotion + pieceValue[m.Promote()]
		case m == k1:
			mp.scores[i] = scoreKiller1
		case m == k2:
			mp.scores[i] = scoreKiller2
		default:
			mp.scores[i] = orderer.HistoryScore(m)
		}
	}
	return mp
}

// NewCapturePicker builds a picker over captures and promotions only, for
// quiescence search.
func NewCapturePicker(pos *dragontoothmg.Board) *MovePicker {
	all := pos.GenerateLegalMoves()
	mp := &MovePicker{}
	for _, m := range all {
		if dragontoothmg.IsCapture(m, pos) {
			victim := capturedPiece(pos, m)
			attacker := pieceTypeOn(pos, m.From())
			mp.moves = append(mp.moves, m)
			mp.scores = append(mp.scores, scoreCapture+pieceValue[victim]*16-pieceValue[attacker]/8)
		} else if m.Promote() != 0 {
			mp.moves = append(mp.moves, m)
			mp.scores = append(mp.scores, scorePromotion+pieceValue[m.Promote()])
		}
	}
	return mp
}

// NextMove returns the highest-scored move not yet handed out, or the zero
// move once the picker is exhausted.
func (mp *MovePicker) NextMove() dragontoothmg.Move {
	if mp.cur >= len(mp.moves) {
		return noMove
	}
	best := mp.cur
	for i := mp.cur + 1; i < len(mp.moves); i++ {
		if mp.scores[i] > mp.scores[best] {
			best = i
		}
	}
	mp.moves[mp.cur], mp.moves[best] = mp.moves[best], mp.moves[mp.cur]
	mp.scores[mp.cur], mp.scores[best] = mp.scores[best], mp.scores[mp.cur]
	m := mp.moves[mp.cur]
	mp.cur++
	return m
}

// Len returns the total number of moves the picker was built with.
func (mp *MovePicker) Len() int { return len(mp.moves) }

// pieceTypeOn identifies the piece of the side to move sitting on sq, or the
// opponent's piece if the mover has none there.
func pieceTypeOn(pos *dragontoothmg.Board, sq uint8) dragontoothmg.Piece {
	mask := uint64(1) << sq
	for _, bb := range []*dragontoothmg.Bitboards{&pos.White, &pos.Black} {
		switch {
		case bb.Pawns&mask != 0:
			return dragontoothmg.Pawn
		case bb.Knights&mask != 0:
			return dragontoothmg.Knight
		case bb.Bishops&mask != 0:
			return dragontoothmg.Bishop
		case bb.Rooks&mask != 0:
			return dragontoothmg.Rook
		case bb.Queens&mask != 0:
			return dragontoothmg.Queen
		case bb.Kings&mask != 0:
			return dragontoothmg.King
		}
	}
	return dragontoothmg.Piece(0)
}

// capturedPiece returns the victim of a capture. An en passant capture lands
// on an empty square, in which case the victim is a pawn.
func capturedPiece(pos *dragontoothmg.Board, m dragontoothmg.Move) dragontoothmg.Piece {
	victim := pieceTypeOn(pos, m.To())
	if victim == dragontoothmg.Piece(0) {
		return dragontoothmg.Pawn
	}
	return victim
}
