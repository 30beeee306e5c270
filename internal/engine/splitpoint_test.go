package engine

import "testing"

func TestParticipantBitset(t *testing.T) {
	sp := &SplitPoint{}

	if sp.participantCount() != 0 {
		t.Fatalf("New split point has %d participants, want 0", sp.participantCount())
	}

	sp.addParticipant(0)
	sp.addParticipant(5)
	sp.addParticipant(63)

	if sp.participantCount() != 3 {
		t.Errorf("Got %d participants, want 3", sp.participantCount())
	}
	for _, idx := range []int{0, 5, 63} {
		if !sp.hasParticipant(idx) {
			t.Errorf("Worker %d missing from mask", idx)
		}
	}
	if sp.hasParticipant(7) {
		t.Error("Worker 7 reported present but was never added")
	}

	// Adding twice must not corrupt the count.
	sp.addParticipant(5)
	if sp.participantCount() != 3 {
		t.Errorf("Double add changed count to %d", sp.participantCount())
	}

	sp.removeParticipant(5)
	if sp.hasParticipant(5) {
		t.Error("Worker 5 still present after removal")
	}
	if sp.participantCount() != 2 {
		t.Errorf("Got %d participants after removal, want 2", sp.participantCount())
	}

	// Removing an absent worker is a no-op.
	sp.removeParticipant(5)
	if sp.participantCount() != 2 {
		t.Error("Removing an absent worker changed the mask")
	}
}

func TestCanJoinHelpfulMasterRule(t *testing.T) {
	joiner := newWorker(nil, 1)
	other := newWorker(nil, 2)
	sp := &SplitPoint{master: other}

	// An idle worker with no split points of its own may join anything.
	if !joiner.canJoin(sp) {
		t.Error("Idle worker rejected a joinable split point")
	}

	// A searching worker is never available.
	joiner.searching.Store(true)
	if joiner.canJoin(sp) {
		t.Error("Searching worker reported joinable")
	}
	joiner.searching.Store(false)

	// A worker still in sp's mask is mid retirement: booking it again would
	// be erased by its pending mask removal.
	sp.addParticipant(joiner.idx)
	if joiner.canJoin(sp) {
		t.Error("Worker rejoined a split point it has not retired from yet")
	}
	sp.removeParticipant(joiner.idx)

	// A master may only help workers participating in its topmost split
	// point; other is not inside it here.
	joiner.splitPointsSize.Store(1)
	joiner.splitPoints[0].slavesMask.Store(1 << uint(joiner.idx))
	if joiner.canJoin(sp) {
		t.Error("Master helped a worker outside its topmost split point")
	}

	// Once other participates there, helping it is allowed.
	joiner.splitPoints[0].addParticipant(other.idx)
	if !joiner.canJoin(sp) {
		t.Error("Master refused to help a participant of its own split point")
	}
}

func TestCanJoinProtectsResumingMaster(t *testing.T) {
	// A master whose slaves have all retired is about to take back its slot:
	// topmost mask empty, searching flag clear, active pointer nil. Booking
	// it now would be wiped when it restores its state, leaving the
	// recruiter's mask bit set forever.
	master := newWorker(nil, 1)
	master.splitPointsSize.Store(1)
	master.splitPoints[0].master = master
	master.splitPoints[0].slavesMask.Store(0)

	recruiter := newWorker(nil, 2)
	recruiter.searching.Store(true)
	sp := &recruiter.splitPoints[0]
	sp.master = recruiter
	sp.slavesMask.Store(1 << uint(recruiter.idx))

	if master.canJoin(sp) {
		t.Error("Resuming master reported joinable; the booking would be lost")
	}
}

func TestCutoffOccurredWalksAncestors(t *testing.T) {
	w := newWorker(nil, 2)

	root := &SplitPoint{}
	mid := &SplitPoint{parent: root}
	leaf := &SplitPoint{parent: mid}
	w.activeSplitPoint.Store(leaf)

	if w.cutoffOccurred() {
		t.Fatal("Cutoff reported with no flag set")
	}

	// A cutoff far above the worker's split point must be visible.
	root.cutoff.Store(true)
	if !w.cutoffOccurred() {
		t.Error("Cutoff at the chain root not observed")
	}

	root.cutoff.Store(false)
	leaf.cutoff.Store(true)
	if !w.cutoffOccurred() {
		t.Error("Cutoff at the active split point not observed")
	}
}

func TestCutoffDoesNotCrossSiblingChains(t *testing.T) {
	// Two workers nested three levels deep on separate branches. A cutoff
	// anywhere on one chain must be invisible to the other.
	shared := &SplitPoint{}
	midA := &SplitPoint{parent: shared}
	leafA := &SplitPoint{parent: midA}
	midB := &SplitPoint{parent: shared}
	leafB := &SplitPoint{parent: midB}

	wA := newWorker(nil, 1)
	wB := newWorker(nil, 2)
	wA.activeSplitPoint.Store(leafA)
	wB.activeSplitPoint.Store(leafB)

	leafA.cutoff.Store(true)
	if !wA.cutoffOccurred() {
		t.Error("Worker A missed the cutoff on its own chain")
	}
	if wB.cutoffOccurred() {
		t.Error("Cutoff on branch A leaked to branch B")
	}

	midA.cutoff.Store(true)
	if wB.cutoffOccurred() {
		t.Error("Mid-level cutoff on branch A leaked to branch B")
	}

	// A cutoff at the shared ancestor reaches both.
	shared.cutoff.Store(true)
	if !wA.cutoffOccurred() || !wB.cutoffOccurred() {
		t.Error("Cutoff at the shared ancestor not seen by both branches")
	}
}
