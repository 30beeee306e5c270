package engine

import (
	"sync"
	"sync/atomic"

	"github.com/dylhunn/dragontoothmg"
)

// TTFlag indicates the type of bound stored in the transposition table.
type TTFlag uint8

const (
	TTExact      TTFlag = iota // Exact score
	TTLowerBound               // Failed high (beta cutoff)
	TTUpperBound               // Failed low
)

// Number of shards for TT locking (power of 2 for fast modulo)
const ttShardCount = 256
const ttShardMask = ttShardCount - 1

// TTEntry represents an entry in the transposition table.
type TTEntry struct {
	Key      uint64             // Full 64-bit Zobrist hash for verification
	BestMove dragontoothmg.Move // Best move found
	Score    int16              // Score (bounded by flag)
	Depth    int8               // Search depth
	Flag     TTFlag             // Type of bound
	Age      uint8              // Generation for replacement
}

// TranspositionTable is a hash table for storing search results, shared by
// all workers of a pool. Uses sharded locking for thread-safety.
type TranspositionTable struct {
	entries []TTEntry
	shards  [ttShardCount]sync.RWMutex
	size    uint64
	mask    uint64
	age     atomic.Uint32

	hits   atomic.Uint64
	probes atomic.Uint64
}

// NewTranspositionTable creates a transposition table with the given size in MB.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	entrySize := uint64(16)
	numEntries := (uint64(sizeMB) * 1024 * 1024) / entrySize

	numEntries = roundDownToPowerOf2(numEntries)

	return &TranspositionTable{
		entries: make([]TTEntry, numEntries),
		size:    numEntries,
		mask:    numEntries - 1,
	}
}

// roundDownToPowerOf2 rounds n down to the nearest power of 2.
func roundDownToPowerOf2(n uint64) uint64 {
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return (n + 1) >> 1
}

func (tt *TranspositionTable) shardIndex(idx uint64) int {
	return int(idx & ttShardMask)
}

// Probe looks up a position in the transposition table.
func (tt *TranspositionTable) Probe(hash uint64) (TTEntry, bool) {
	tt.probes.Add(1)

	idx := hash & tt.mask
	shard := tt.shardIndex(idx)

	tt.shards[shard].RLock()
	entry := tt.entries[idx]
	tt.shards[shard].RUnlock()

	// The full 64-bit key eliminates index collisions.
	if entry.Key == hash && entry.Depth > 0 {
		tt.hits.Add(1)
		return entry, true
	}

	return TTEntry{}, false
}

// Store saves a position in the transposition table.
// Replacement prefers entries of the current generation and greater depth.
func (tt *TranspositionTable) Store(hash uint64, depth int, score int, flag TTFlag, bestMove dragontoothmg.Move) {
	idx := hash & tt.mask
	shard := tt.shardIndex(idx)

	tt.shards[shard].Lock()
	entry := &tt.entries[idx]

	currentAge := uint8(tt.age.Load())
	if entry.Age != currentAge || depth >= int(entry.Depth) {
		entry.Key = hash
		entry.BestMove = bestMove
		entry.Score = int16(score)
		entry.Depth = int8(depth)
		entry.Flag = flag
		entry.Age = currentAge
	}
	tt.shards[shard].Unlock()
}

// NewSearch increments the age counter for a new search.
func (tt *TranspositionTable) NewSearch() {
	tt.age.Add(1)
}

// Clear clears the transposition table.
func (tt *TranspositionTable) Clear() {
	for i := range tt.entries {
		tt.entries[i] = TTEntry{}
	}
	tt.age.Store(0)
	tt.hits.Store(0)
	tt.probes.Store(0)
}

// HashFull returns the permille of the table used by the current search,
// estimated from the first 1000 entries.
func (tt *TranspositionTable) HashFull() int {
	used := 0
	sampleSize := 1000
	if uint64(sampleSize) > tt.size {
		sampleSize = int(tt.size)
	}

	currentAge := uint8(tt.age.Load())
	for i := 0; i < sampleSize; i++ {
		if tt.entries[i].Depth > 0 && tt.entries[i].Age == currentAge {
			used++
		}
	}

	return (used * 1000) / sampleSize
}

// HitRate returns the cache hit rate as a percentage.
func (tt *TranspositionTable) HitRate() float64 {
	probes := tt.probes.Load()
	if probes == 0 {
		return 0
	}
	return float64(tt.hits.Load()) / float64(probes) * 100
}

// Size returns the number of entries in the table.
func (tt *TranspositionTable) Size() uint64 {
	return tt.size
}

// PrincipalVariation reconstructs the best line from the table, starting at
// pos. The walk stops at the first position without a stored best move, at
// an illegal stored move, or when the line repeats.
func (tt *TranspositionTable) PrincipalVariation(pos dragontoothmg.Board, maxLen int) []dragontoothmg.Move {
	var pv []dragontoothmg.Move
	seen := make(map[uint64]bool)

	for len(pv) < maxLen {
		hash := pos.Hash()
		if seen[hash] {
			break
		}
		seen[hash] = true

		entry, found := tt.Probe(hash)
		if !found || entry.BestMove == noMove {
			break
		}
		legal := false
		for _, m := range pos.GenerateLegalMoves() {
			if m == entry.BestMove {
				legal = true
				break
			}
		}
		if !legal {
			break
		}
		pv = append(pv, entry.BestMove)
		pos.Apply(entry.BestMove)
	}

	return pv
}

// Mate scores are stored relative to the probing node, so they need a ply
// adjustment in both directions.
func AdjustScoreFromTT(score int, ply int) int {
	if score > MateScore-MaxPly {
		return score - ply
	}
	if score < -MateScore+MaxPly {
		return score + ply
	}
	return score
}

func AdjustScoreToTT(score int, ply int) int {
	if score > MateScore-MaxPly {
		return score + ply
	}
	if score < -MateScore+MaxPly {
		return score - ply
	}
	return score
}
