package engine

import (
	"math/bits"

	"github.com/dylhunn/dragontoothmg"
)

// Piece values indexed by dragontoothmg.Piece. pieceValue is used for move
// ordering and pruning margins; the Mg/Eg pairs feed the tapered material
// evaluation.
var (
	pieceValue   = [7]int{0, 100, 320, 330, 500, 950, 0}
	pieceValueMg = [7]int{0, 100, 320, 330, 500, 950, 0}
	pieceValueEg = [7]int{0, 125, 320, 330, 530, 960, 0}
)

// Game phase weights, 24 at the starting position.
var phaseWeight = [7]int{0, 0, 1, 1, 2, 4, 0}

const (
	totalPhase = 24
	tempoBonus = 10

	bishopPairMg = 40
	bishopPairEg = 55

	doubledPawnMg  = 12
	doubledPawnEg  = 24
	isolatedPawnMg = 15
	isolatedPawnEg = 10
)

// passedPawnEg indexed by rank from the pawn's own side.
var passedPawnEg = [8]int{0, 10, 18, 30, 50, 80, 120, 0}

// Piece-square tables from white's point of view, square a1 = 0 with rank 1
// in the first row. Black uses the vertically mirrored square.
var pstMg = [7][64]int{
	{},
	{ // pawn
		-20, 0, 0, 0, 0, 0, 0, -20,
		-20, 0, 0, 0, 0, 0, 0, -20,
		-20, 0, 0, 0, 0, 0, 0, -20,
		-20, 0, 0, 0, 0, 0, 0, -20,
		-20, 0, 0, 0, 0, 0, 0, -20,
		-20, 0, 0, 0, 0, 0, 0, -20,
		-20, 0, 0, 0, 0, 0, 0, -20,
		-20, 0, 0, 0, 0, 0, 0, -20,
	},
	{ // knight
		-134, -99, -75, -63, -63, -75, -99, -134,
		-78, -43, -19, -7, -7, -19, -43, -78,
		-59, -24, 0, 12, 12, 0, -24, -59,
		-18, 17, 41, 53, 53, 41, 17, -18,
		-20, 15, 39, 51, 51, 39, 15, -20,
		0, 35, 59, 71, 71, 59, 35, 0,
		-54, -19, 5, 17, 17, 5, -19, -54,
		-190, -55, -31, -19, -19, -31, -55, -190,
	},
	{ // bishop
		-40, -40, -35, -30, -30, -35, -40, -40,
		-17, 0, -4, 0, 0, -4, 0, -17,
		-13, -4, 8, 4, 4, 8, -4, -13,
		-8, 0, 4, 17, 17, 4, 0, -8,
		-8, 0, 4, 17, 17, 4, 0, -8,
		-13, -4, 8, 4, 4, 8, -4, -13,
		-17, 0, -4, 0, 0, -4, 0, -17,
		-17, -17, -13, -8, -8, -13, -17, -17,
	},
	{ // rook
		-12, -7, -2, 2, 2, -2, -7, -12,
		-12, -7, -2, 2, 2, -2, -7, -12,
		-12, -7, -2, 2, 2, -2, -7, -12,
		-12, -7, -2, 2, 2, -2, -7, -12,
		-12, -7, -2, 2, 2, -2, -7, -12,
		-12, -7, -2, 2, 2, -2, -7, -12,
		-12, -7, -2, 2, 2, -2, -7, -12,
		-12, -7, -2, 2, 2, -2, -7, -12,
	},
	{ // queen
		8, 8, 8, 8, 8, 8, 8, 8,
		8, 8, 8, 8, 8, 8, 8, 8,
		8, 8, 8, 8, 8, 8, 8, 8,
		8, 8, 8, 8, 8, 8, 8, 8,
		8, 8, 8, 8, 8, 8, 8, 8,
		8, 8, 8, 8, 8, 8, 8, 8,
		8, 8, 8, 8, 8, 8, 8, 8,
		8, 8, 8, 8, 8, 8, 8, 8,
	},
	{ // king
		298, 332, 273, 225, 225, 273, 332, 298,
		287, 321, 262, 214, 214, 262, 321, 287,
		224, 258, 199, 151, 151, 199, 258, 224,
		196, 230, 171, 123, 123, 171, 230, 196,
		173, 207, 148, 100, 100, 148, 207, 173,
		146, 180, 121, 73, 73, 121, 180, 146,
		119, 153, 94, 46, 46, 94, 153, 119,
		98, 132, 73, 25, 25, 73, 132, 98,
	},
}

var pstEg = [7][64]int{
	{},
	{}, // pawn
	{ // knight
		-98, -83, -51, -16, -16, -51, -83, -98,
		-68, -53, -21, 14, 14, -21, -53, -68,
		-53, -38, -6, 29, 29, -6, -38, -53,
		-42, -27, 5, 40, 40, 5, -27, -42,
		-42, -27, 5, 40, 40, 5, -27, -42,
		-53, -38, -6, 29, 29, -6, -38, -53,
		-68, -53, -21, 14, 14, -21, -53, -68,
		-98, -83, -51, -16, -16, -51, -83, -98,
	},
	{ // bishop
		-59, -42, -35, -26, -26, -35, -42, -59,
		-42, -26, -18, -11, -11, -18, -26, -42,
		-35, -18, -11, -4, -4, -11, -18, -35,
		-26, -11, -4, 4, 4, -4, -11, -26,
		-26, -11, -4, 4, 4, -4, -11, -26,
		-35, -18, -11, -4, -4, -11, -18, -35,
		-42, -26, -18, -11, -11, -18, -26, -42,
		-59, -42, -35, -26, -26, -35, -42, -59,
	},
	{ // rook
		3, 3, 3, 3, 3, 3, 3, 3,
		3, 3, 3, 3, 3, 3, 3, 3,
		3, 3, 3, 3, 3, 3, 3, 3,
		3, 3, 3, 3, 3, 3, 3, 3,
		3, 3, 3, 3, 3, 3, 3, 3,
		3, 3, 3, 3, 3, 3, 3, 3,
		3, 3, 3, 3, 3, 3, 3, 3,
		3, 3, 3, 3, 3, 3, 3, 3,
	},
	{ // queen
		-80, -54, -42, -30, -30, -42, -54, -80,
		-54, -30, -18, -6, -6, -18, -30, -54,
		-42, -18, -6, 6, 6, -6, -18, -42,
		-30, -6, 6, 18, 18, 6, -6, -30,
		-30, -6, 6, 18, 18, 6, -6, -30,
		-42, -18, -6, 6, 6, -6, -18, -42,
		-54, -30, -18, -6, -6, -18, -30, -54,
		-80, -54, -42, -30, -30, -42, -54, -80,
	},
	{ // king
		27, 81, 108, 116, 116, 108, 81, 27,
		74, 128, 155, 163, 163, 155, 128, 74,
		111, 165, 192, 200, 200, 192, 165, 111,
		135, 189, 216, 224, 224, 216, 189, 135,
		135, 189, 216, 224, 224, 216, 189, 135,
		111, 165, 192, 200, 200, 192, 165, 111,
		74, 128, 155, 163, 163, 155, 128, 74,
		27, 81, 108, 116, 116, 108, 81, 27,
	},
}

// evaluate scores pos from the side to move's point of view, in centipawns.
// Material and pawn structure terms are cached in the worker's private
// tables.
func (w *Worker) evaluate(pos *dragontoothmg.Board) int {
	mg, eg, phase := w.materialScore(pos)

	for piece := dragontoothmg.Piece(dragontoothmg.Pawn); piece <= dragontoothmg.King; piece++ {
		for bb := pieceBitboard(&pos.White, piece); bb != 0; bb &= bb - 1 {
			sq := bits.TrailingZeros64(bb)
			mg += pstMg[piece][sq]
			eg += pstEg[piece][sq]
		}
		for bb := pieceBitboard(&pos.Black, piece); bb != 0; bb &= bb - 1 {
			sq := bits.TrailingZeros64(bb) ^ 56
			mg -= pstMg[piece][sq]
			eg -= pstEg[piece][sq]
		}
	}

	pmg, peg := w.pawnScore(pos)
	mg += pmg
	eg += peg

	if phase > totalPhase {
		phase = totalPhase
	}
	score := (mg*phase + eg*(totalPhase-phase)) / totalPhase

	if !pos.Wtomove {
		score = -score
	}
	return score + tempoBonus
}

// materialScore returns the white-minus-black material balance and the game
// phase, cached by material signature.
func (w *Worker) materialScore(pos *dragontoothmg.Board) (mg, eg, phase int) {
	key := materialKey(pos)
	if mg, eg, phase, found := w.materialTable.Probe(key); found {
		return mg, eg, phase
	}

	for piece := dragontoothmg.Piece(dragontoothmg.Pawn); piece <= dragontoothmg.Queen; piece++ {
		wc := bits.OnesCount64(pieceBitboard(&pos.White, piece))
		bc := bits.OnesCount64(pieceBitboard(&pos.Black, piece))
		mg += (wc - bc) * pieceValueMg[piece]
		eg += (wc - bc) * pieceValueEg[piece]
		phase += (wc + bc) * phaseWeight[piece]
	}
	if bits.OnesCount64(pos.White.Bishops) >= 2 {
		mg += bishopPairMg
		eg += bishopPairEg
	}
	if bits.OnesCount64(pos.Black.Bishops) >= 2 {
		mg -= bishopPairMg
		eg -= bishopPairEg
	}

	w.materialTable.Store(key, mg, eg, phase)
	return mg, eg, phase
}

// pawnScore returns the white-minus-black pawn structure score, cached by
// pawn signature.
func (w *Worker) pawnScore(pos *dragontoothmg.Board) (mg, eg int) {
	key := pawnKey(pos)
	if mg, eg, found := w.pawnTable.Probe(key); found {
		return mg, eg
	}

	wmg, weg := sidePawnScore(pos.White.Pawns, pos.Black.Pawns, false)
	bmg, beg := sidePawnScore(pos.Black.Pawns, pos.White.Pawns, true)
	mg, eg = wmg-bmg, weg-beg

	w.pawnTable.Store(key, mg, eg)
	return mg, eg
}

func sidePawnScore(own, their uint64, black bool) (mg, eg int) {
	for bb := own; bb != 0; bb &= bb - 1 {
		sq := bits.TrailingZeros64(bb)
		file := sq & 7
		fileMask := uint64(0x0101010101010101) << file

		if own&fileMask&^(uint64(1)<<sq) != 0 {
			mg -= doubledPawnMg
			eg -= doubledPawnEg
		}
		if own&adjacentFiles(file) == 0 {
			mg -= isolatedPawnMg
			eg -= isolatedPawnEg
		}
		if their&passedSpan(sq, black) == 0 {
			rank := sq >> 3
			if black {
				rank = 7 - rank
			}
			eg += passedPawnEg[rank]
			mg += passedPawnEg[rank] / 3
		}
	}
	return mg, eg
}

func adjacentFiles(file int) uint64 {
	var mask uint64
	if file > 0 {
		mask |= uint64(0x0101010101010101) << (file - 1)
	}
	if file < 7 {
		mask |= uint64(0x0101010101010101) << (file + 1)
	}
	return mask
}

// passedSpan covers the squares an enemy pawn could block or capture from,
// ahead of a pawn on sq.
func passedSpan(sq int, black bool) uint64 {
	file, rank := sq&7, sq>>3
	span := (uint64(0x0101010101010101) << file) | adjacentFiles(file)
	if black {
		span &= uint64(1)<<(rank*8) - 1
	} else {
		span &= ^uint64(0) << ((rank + 1) * 8)
	}
	return span
}

func pieceBitboard(bb *dragontoothmg.Bitboards, piece dragontoothmg.Piece) uint64 {
	switch piece {
	case dragontoothmg.Pawn:
		return bb.Pawns
	case dragontoothmg.Knight:
		return bb.Knights
	case dragontoothmg.Bishop:
		return bb.Bishops
	case dragontoothmg.Rook:
		return bb.Rooks
	case dragontoothmg.Queen:
		return bb.Queens
	case dragontoothmg.King:
		return bb.Kings
	}
	return 0
}

// mix64 is the finalizer of splitmix64, used to derive cache keys from raw
// bitboard words.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

func pawnKey(pos *dragontoothmg.Board) uint64 {
	return mix64(pos.White.Pawns) ^ mix64(^pos.Black.Pawns)
}

func materialKey(pos *dragontoothmg.Board) uint64 {
	var packed uint64
	for piece := dragontoothmg.Piece(dragontoothmg.Pawn); piece <= dragontoothmg.Queen; piece++ {
		packed = packed<<6 | uint64(bits.OnesCount64(pieceBitboard(&pos.White, piece)))
		packed = packed<<6 | uint64(bits.OnesCount64(pieceBitboard(&pos.Black, piece)))
	}
	return mix64(packed)
}
