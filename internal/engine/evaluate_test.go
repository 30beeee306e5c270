package engine

import (
	"testing"

	"github.com/dylhunn/dragontoothmg"
)

func TestEvaluateStartposSymmetric(t *testing.T) {
	w := newWorker(nil, 0)

	pos := dragontoothmg.ParseFen(dragontoothmg.Startpos)
	whiteView := w.evaluate(&pos)

	// Mirror the side to move: the symmetric position must evaluate to the
	// same value, the tempo bonus included.
	mirrored := dragontoothmg.ParseFen("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b KQkq - 0 1")
	blackView := w.evaluate(&mirrored)

	if whiteView != blackView {
		t.Errorf("Start position asymmetric: white view %d, black view %d", whiteView, blackView)
	}
	if whiteView != tempoBonus {
		t.Errorf("Start position evaluates to %d, want tempo bonus %d", whiteView, tempoBonus)
	}
}

func TestEvaluateMaterialAdvantage(t *testing.T) {
	w := newWorker(nil, 0)

	// White is up a clean rook.
	pos := dragontoothmg.ParseFen("6k1/5ppp/8/8/8/8/5PPP/4R1K1 w - - 0 1")
	score := w.evaluate(&pos)
	if score < 300 {
		t.Errorf("Rook-up position scores %d for the side to move, want a clear advantage", score)
	}

	// From the opponent's perspective the same material deficit is negative.
	posBlack := dragontoothmg.ParseFen("6k1/5ppp/8/8/8/8/5PPP/4R1K1 b - - 0 1")
	if scoreBlack := w.evaluate(&posBlack); scoreBlack > -300 {
		t.Errorf("Rook-down side scores %d, want a clear deficit", scoreBlack)
	}
}

func TestEvaluateBishopPair(t *testing.T) {
	w := newWorker(nil, 0)

	pair := dragontoothmg.ParseFen("4k3/8/8/8/8/8/8/2B1KB2 w - - 0 1")
	single := dragontoothmg.ParseFen("4k3/8/8/8/8/8/8/2B1K3 w - - 0 1")

	if w.evaluate(&pair) <= w.evaluate(&single) {
		t.Error("Two bishops do not evaluate above one bishop")
	}
}

func TestPawnStructurePenalties(t *testing.T) {
	// Doubled and isolated pawns score below a healthy structure of the
	// same material.
	healthyOwn := uint64(1)<<8 | uint64(1)<<9 // a2, b2
	doubledOwn := uint64(1)<<8 | uint64(1)<<16 // a2, a3

	hmg, heg := sidePawnScore(healthyOwn, 0, false)
	dmg, deg := sidePawnScore(doubledOwn, 0, false)

	if dmg >= hmg || deg >= heg {
		t.Errorf("Doubled isolated pawns (%d,%d) not below connected pawns (%d,%d)", dmg, deg, hmg, heg)
	}
}

func TestPassedPawnDetection(t *testing.T) {
	// White pawn on e5; black pawn on d6 blocks the capture square, so the
	// e-pawn is not passed. Remove it and the e-pawn is.
	own := uint64(1) << 36   // e5
	their := uint64(1) << 43 // d6

	_, egBlocked := sidePawnScore(own, their, false)
	_, egFree := sidePawnScore(own, 0, false)

	if egFree <= egBlocked {
		t.Errorf("Passed pawn eg score %d not above non-passed %d", egFree, egBlocked)
	}
}

func TestCacheKeysDiscriminate(t *testing.T) {
	start := dragontoothmg.ParseFen(dragontoothmg.Startpos)
	afterE4 := dragontoothmg.ParseFen("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1")
	noQueen := dragontoothmg.ParseFen("rnb1kbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")

	if pawnKey(&start) == pawnKey(&afterE4) {
		t.Error("Pawn key identical before and after a pawn move")
	}
	if materialKey(&start) == materialKey(&noQueen) {
		t.Error("Material key identical with and without the black queen")
	}
	// Moving a pawn does not change the material signature.
	if materialKey(&start) != materialKey(&afterE4) {
		t.Error("Material key changed by a non-capturing pawn move")
	}
}

func TestPawnTable(t *testing.T) {
	pt := NewPawnTable(1)

	key := uint64(0x1234567890abcdef)
	if _, _, found := pt.Probe(key); found {
		t.Error("Hit on an empty pawn table")
	}

	pt.Store(key, -15, -20)
	mg, eg, found := pt.Probe(key)
	if !found {
		t.Fatal("Miss after store")
	}
	if mg != -15 || eg != -20 {
		t.Errorf("Got mg=%d eg=%d, want -15, -20", mg, eg)
	}

	pt.Clear()
	if _, _, found := pt.Probe(key); found {
		t.Error("Hit after clear")
	}
}

func TestMaterialTable(t *testing.T) {
	mt := NewMaterialTable(1)

	key := uint64(0xfeedface12345678)
	if _, _, _, found := mt.Probe(key); found {
		t.Error("Hit on an empty material table")
	}

	mt.Store(key, 120, 95, 17)
	mg, eg, phase, found := mt.Probe(key)
	if !found {
		t.Fatal("Miss after store")
	}
	if mg != 120 || eg != 95 || phase != 17 {
		t.Errorf("Got mg=%d eg=%d phase=%d, want 120, 95, 17", mg, eg, phase)
	}
}
