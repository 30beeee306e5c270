package engine

import "time"

// Sides for the Limits.Time and Limits.Inc arrays.
const (
	White = 0
	Black = 1
)

// Limits describes the bounds the protocol layer puts on one search.
type Limits struct {
	Time      [2]time.Duration // remaining clock time per side
	Inc       [2]time.Duration // increment per move per side
	MovesToGo int              // moves until next time control (0 = sudden death)
	MoveTime  time.Duration    // fixed time per move, overrides the clock
	Depth     int              // maximum search depth
	Nodes     uint64           // maximum nodes to search
	Infinite  bool             // search until stopped
}

// TimeManager converts the clock situation into an optimum and a maximum
// budget for the move. The optimum is where iterative deepening stops
// starting new iterations; the maximum is the hard abort enforced by the
// timer worker.
type TimeManager struct {
	baseOptimum time.Duration
	optimumTime time.Duration
	maximumTime time.Duration
	startTime   time.Time
}

// Init sets the budgets for a new search. moveNo is the game's full move
// number, used to estimate how many moves remain in sudden death.
func (tm *TimeManager) Init(limits Limits, whiteToMove bool, moveNo int) {
	tm.startTime = time.Now()

	if limits.MoveTime > 0 {
		tm.baseOptimum = limits.MoveTime
		tm.optimumTime = limits.MoveTime
		tm.maximumTime = limits.MoveTime
		return
	}

	us := Black
	if whiteToMove {
		us = White
	}

	if limits.Infinite || limits.Time[us] == 0 {
		tm.baseOptimum = 0
		tm.optimumTime = 0
		tm.maximumTime = 0
		return
	}

	timeLeft := limits.Time[us]
	inc := limits.Inc[us]

	mtg := limits.MovesToGo
	if mtg == 0 {
		// Sudden death: assume fewer remaining moves as the game goes on.
		mtg = 50 - moveNo/2
		if mtg < 10 {
			mtg = 10
		}
		if mtg > 50 {
			mtg = 50
		}
	}

	baseTime := timeLeft/time.Duration(mtg) + inc*9/10
	tm.baseOptimum = baseTime
	tm.optimumTime = baseTime

	maximum := tm.optimumTime * 5
	if ceiling := timeLeft * 8 / 10; maximum > ceiling {
		maximum = ceiling
	}
	tm.maximumTime = maximum

	if tm.optimumTime < 10*time.Millisecond {
		tm.optimumTime = 10 * time.Millisecond
		tm.baseOptimum = tm.optimumTime
	}
	if tm.maximumTime < 50*time.Millisecond {
		tm.maximumTime = 50 * time.Millisecond
	}
}

// Elapsed returns the time since Init.
func (tm *TimeManager) Elapsed() time.Duration {
	return time.Since(tm.startTime)
}

// OptimumTime returns the current target time for this move.
func (tm *TimeManager) OptimumTime() time.Duration {
	return tm.optimumTime
}

// MaximumTime returns the hard limit for this move. Zero means unmanaged.
func (tm *TimeManager) MaximumTime() time.Duration {
	return tm.maximumTime
}

// PastOptimum reports whether the optimum budget is spent. Always false for
// unmanaged searches.
func (tm *TimeManager) PastOptimum() bool {
	return tm.optimumTime > 0 && tm.Elapsed() >= tm.optimumTime
}

// AdjustForStability rescales the optimum from its base according to how many
// consecutive iterations kept the same best move. A stable best move deserves
// less time, an unstable one slightly more.
func (tm *TimeManager) AdjustForStability(stability int) {
	if tm.baseOptimum == 0 {
		return
	}
	var pct time.Duration
	switch {
	case stability >= 6:
		pct = 40
	case stability >= 4:
		pct = 60
	case stability >= 2:
		pct = 80
	case stability == 0:
		pct = 130
	default:
		pct = 100
	}
	tm.optimumTime = tm.baseOptimum * pct / 100
	if tm.maximumTime > 0 && tm.optimumTime > tm.maximumTime {
		tm.optimumTime = tm.maximumTime
	}
}
