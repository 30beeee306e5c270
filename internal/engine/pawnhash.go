package engine

// PawnEntry stores a cached pawn structure evaluation.
type PawnEntry struct {
	Key     uint64
	MgScore int16
	EgScore int16
}

// PawnTable caches pawn structure evaluations. Every worker owns a private
// instance, so access needs no locking.
type PawnTable struct {
	entries []PawnEntry
	mask    uint64
}

// NewPawnTable creates a pawn hash table with the given size in MB, rounded
// down to a power of two entries.
func NewPawnTable(sizeMB int) *PawnTable {
	entrySize := 12
	numEntries := (sizeMB * 1024 * 1024) / entrySize

	size := 1
	for size*2 <= numEntries {
		size *= 2
	}

	return &PawnTable{
		entries: make([]PawnEntry, size),
		mask:    uint64(size - 1),
	}
}

// Probe looks up a cached pawn structure evaluation.
func (pt *PawnTable) Probe(key uint64) (mg, eg int, found bool) {
	entry := &pt.entries[key&pt.mask]
	if entry.Key == key {
		return int(entry.MgScore), int(entry.EgScore), true
	}
	return 0, 0, false
}

// Store saves a pawn structure evaluation, always replacing.
func (pt *PawnTable) Store(key uint64, mg, eg int) {
	entry := &pt.entries[key&pt.mask]
	entry.Key = key
	entry.MgScore = int16(mg)
	entry.EgScore = int16(eg)
}

// Clear wipes the table.
func (pt *PawnTable) Clear() {
	for i := range pt.entries {
		pt.entries[i] = PawnEntry{}
	}
}
