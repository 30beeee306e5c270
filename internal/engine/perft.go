package engine

import (
	"runtime"
	"sync/atomic"

	"github.com/dylhunn/dragontoothmg"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// Perft counts the leaf nodes of the legal move tree to the given depth.
func Perft(pos *dragontoothmg.Board, depth int) uint64 {
	if depth <= 0 {
		return 1
	}
	moves := pos.GenerateLegalMoves()
	if depth == 1 {
		return uint64(len(moves))
	}
	var nodes uint64
	for _, m := range moves {
		unapply := pos.Apply(m)
		nodes += Perft(pos, depth-1)
		unapply()
	}
	return nodes
}

// PerftParallel splits the root moves across goroutines. Each goroutine
// works on its own copy of the position.
func PerftParallel(pos dragontoothmg.Board, depth int) uint64 {
	if depth <= 1 {
		return Perft(&pos, depth)
	}

	var total atomic.Uint64
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())

	for _, m := range pos.GenerateLegalMoves() {
		move := m
		child := pos
		child.Apply(move)
		g.Go(func() error {
			total.Add(Perft(&child, depth-1))
			return nil
		})
	}
	_ = g.Wait()

	return total.Load()
}

// DivideEntry is the node count below one root move.
type DivideEntry struct {
	Move  string
	Nodes uint64
}

// Divide returns the perft breakdown per root move, sorted by move notation
// for stable output.
func Divide(pos dragontoothmg.Board, depth int) []DivideEntry {
	var entries []DivideEntry
	for _, m := range pos.GenerateLegalMoves() {
		child := pos
		child.Apply(m)
		entries = append(entries, DivideEntry{
			Move:  m.String(),
			Nodes: Perft(&child, depth-1),
		})
	}
	slices.SortFunc(entries, func(a, b DivideEntry) bool {
		return a.Move < b.Move
	})
	return entries
}
