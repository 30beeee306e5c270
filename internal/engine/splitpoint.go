package engine

import (
	"math/bits"
	"sync/atomic"

	"github.com/dylhunn/dragontoothmg"
)

// Node type of the position a split point was created at.
const (
	nodeRoot = iota
	nodePV
	nodeNonPV
)

// SplitPoint stores the state shared by the workers searching in parallel
// below the same node. It lives in a fixed slot of the master's split stack;
// the slot is reused on the next split at that depth, and parent references
// from slot to slot form each worker's ancestor chain.
type SplitPoint struct {
	// Immutable after setup. The master writes these fields before any
	// slave is recruited, and a slave observes them only after the
	// recruitment handshake (slave spin lock, then wake), so they are
	// always fully visible to participants.
	master   *Worker
	parent   *SplitPoint
	pos      *dragontoothmg.Board // master's board at the split node; each participant copies it
	frame    *searchFrame
	history  []uint64 // position hashes from root to the split node
	depth    int
	beta     int
	nodeType int
	cutNode  bool
	picker   *MovePicker // single owner; moves are drawn only under lock

	// Shared mutable state. Writes happen only under lock. The atomics may
	// additionally be read without the lock as approximate fast-path
	// signals; anything irrevocable is re-checked under the lock first.
	lock               Spinlock
	slavesMask         atomic.Uint64 // bit per participating worker index
	allSlavesSearching atomic.Bool
	cutoff             atomic.Bool

	// Guarded by lock, reads included.
	alpha     int
	bestValue int // non-decreasing until cutoff is set
	bestMove  dragontoothmg.Move
	moveCount int
}

// participantCount returns the number of workers inside the split point,
// master included.
func (sp *SplitPoint) participantCount() int {
	return bits.OnesCount64(sp.slavesMask.Load())
}

// hasParticipant reports whether the worker with the given index is inside
// the split point.
func (sp *SplitPoint) hasParticipant(idx int) bool {
	return sp.slavesMask.Load()&(1<<uint(idx)) != 0
}

// addParticipant and removeParticipant must be called with sp.lock held.
func (sp *SplitPoint) addParticipant(idx int) {
	sp.slavesMask.Store(sp.slavesMask.Load() | 1<<uint(idx))
}

func (sp *SplitPoint) removeParticipant(idx int) {
	sp.slavesMask.Store(sp.slavesMask.Load() &^ (1 << uint(idx)))
}
