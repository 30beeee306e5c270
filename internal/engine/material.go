package engine

// MaterialEntry stores a cached material balance and game phase.
type MaterialEntry struct {
	Key     uint64
	MgScore int16
	EgScore int16
	Phase   int8
}

// MaterialTable caches material evaluations keyed by piece count signature.
// Like the pawn table it is private to one worker.
type MaterialTable struct {
	entries []MaterialEntry
	mask    uint64
}

// NewMaterialTable creates a material hash table with the given size in MB,
// rounded down to a power of two entries.
func NewMaterialTable(sizeMB int) *MaterialTable {
	entrySize := 16
	numEntries := (sizeMB * 1024 * 1024) / entrySize

	size := 1
	for size*2 <= numEntries {
		size *= 2
	}

	return &MaterialTable{
		entries: make([]MaterialEntry, size),
		mask:    uint64(size - 1),
	}
}

// Probe looks up a cached material evaluation.
func (mt *MaterialTable) Probe(key uint64) (mg, eg, phase int, found bool) {
	entry := &mt.entries[key&mt.mask]
	if entry.Key == key {
		return int(entry.MgScore), int(entry.EgScore), int(entry.Phase), true
	}
	return 0, 0, 0, false
}

// Store saves a material evaluation, always replacing.
func (mt *MaterialTable) Store(key uint64, mg, eg, phase int) {
	entry := &mt.entries[key&mt.mask]
	entry.Key = key
	entry.MgScore = int16(mg)
	entry.EgScore = int16(eg)
	entry.Phase = int8(phase)
}

// Clear wipes the table.
func (mt *MaterialTable) Clear() {
	for i := range mt.entries {
		mt.entries[i] = MaterialEntry{}
	}
}
