package engine

import "github.com/dylhunn/dragontoothmg"

// MoveOrderer holds the quiet-move ordering heuristics of one worker. Each
// worker owns its own instance, so no locking is needed.
type MoveOrderer struct {
	killers [MaxPly + 2][2]dragontoothmg.Move
	history [64][64]int
}

func NewMoveOrderer() *MoveOrderer {
	return &MoveOrderer{}
}

// NewSearch decays state between searches. Killers are stale across root
// positions and get cleared; history is halved so recent games still bias
// ordering without dominating it.
func (o *MoveOrderer) NewSearch() {
	for i := range o.killers {
		o.killers[i][0] = noMove
		o.killers[i][1] = noMove
	}
	for from := 0; from < 64; from++ {
		for to := 0; to < 64; to++ {
			o.history[from][to] /= 2
		}
	}
}

// Killers returns the two killer moves recorded at ply.
func (o *MoveOrderer) Killers(ply int) (dragontoothmg.Move, dragontoothmg.Move) {
	return o.killers[ply][0], o.killers[ply][1]
}

// UpdateKillers records a quiet move that produced a beta cutoff.
func (o *MoveOrderer) UpdateKillers(m dragontoothmg.Move, ply int) {
	if o.killers[ply][0] != m {
		o.killers[ply][1] = o.killers[ply][0]
		o.killers[ply][0] = m
	}
}

// UpdateHistory rewards a quiet cutoff move proportionally to the depth it
// was found at.
func (o *MoveOrderer) UpdateHistory(m dragontoothmg.Move, depth int) {
	o.history[m.From()][m.To()] += depth * depth
	if o.history[m.From()][m.To()] > scoreKiller2-1 {
		o.history[m.From()][m.To()] = scoreKiller2 - 1
	}
}

// HistoryScore returns the ordering score of a quiet move.
func (o *MoveOrderer) HistoryScore(m dragontoothmg.Move) int {
	return o.history[m.From()][m.To()]
}
