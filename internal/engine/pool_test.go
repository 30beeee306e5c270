package engine

import (
	"testing"
	"time"

	"github.com/dylhunn/dragontoothmg"
)

func testOptions(threads int) Options {
	return Options{
		Threads:       threads,
		HashMB:        8,
		MinSplitDepth: 4,
		MoveOverhead:  10 * time.Millisecond,
	}
}

// manualPool builds a pool skeleton without launching any goroutines, for
// structural tests of the selection and recruitment logic.
func manualPool(threads int) *Pool {
	p := &Pool{
		minSplitDepth: 4,
		slaveLimit:    7,
	}
	for i := 0; i < threads; i++ {
		p.workers = append(p.workers, newWorker(p, i))
	}
	return p
}

func TestMaxSlavesPerSplitPoint(t *testing.T) {
	p := &Pool{minSplitDepth: 4, slaveLimit: 7}

	if got := p.maxSlavesPerSplitPoint(8); got != 7 {
		t.Errorf("Deep split cap = %d, want 7", got)
	}
	if got := p.maxSlavesPerSplitPoint(20); got != 7 {
		t.Errorf("Very deep split cap = %d, want 7", got)
	}
	if got := p.maxSlavesPerSplitPoint(4); got != 3 {
		t.Errorf("Shallow split cap = %d, want 3", got)
	}
	if got := p.maxSlavesPerSplitPoint(7); got != 3 {
		t.Errorf("Split cap just below threshold = %d, want 3", got)
	}

	// The cap never drops to zero, or splitting would be pointless.
	tight := &Pool{minSplitDepth: 4, slaveLimit: 1}
	if got := tight.maxSlavesPerSplitPoint(4); got != 1 {
		t.Errorf("Minimum cap = %d, want 1", got)
	}
}

func TestAvailableSlaveSelection(t *testing.T) {
	p := manualPool(4)
	sp := &SplitPoint{}

	// All workers are idle: selection walks index order.
	if got := p.availableSlave(sp); got != p.workers[0] {
		t.Fatalf("Selected worker %d, want 0", got.idx)
	}

	p.workers[0].searching.Store(true)
	p.workers[1].searching.Store(true)
	if got := p.availableSlave(sp); got != p.workers[2] {
		t.Fatalf("Selected worker %d, want 2", got.idx)
	}

	for _, w := range p.workers {
		w.searching.Store(true)
	}
	if got := p.availableSlave(sp); got != nil {
		t.Fatalf("Selected worker %d from a fully busy pool", got.idx)
	}
}

func TestRecruitSlavesCountsAndClaims(t *testing.T) {
	run := func(t *testing.T, threads, depth, want int) {
		p := manualPool(threads)
		master := p.workers[0]
		master.searching.Store(true)

		sp := &master.splitPoints[0]
		sp.master = master
		sp.depth = depth
		sp.slavesMask.Store(1 << uint(master.idx))
		sp.allSlavesSearching.Store(true)

		sp.lock.Acquire()
		got := master.recruitSlaves(sp, depth)
		sp.lock.Release()

		if got != want {
			t.Errorf("Recruited %d slaves, want %d", got, want)
		}
		if sp.participantCount() != want+1 {
			t.Errorf("Mask holds %d participants, want %d", sp.participantCount(), want+1)
		}
		for _, w := range p.workers[1:] {
			if sp.hasParticipant(w.idx) {
				if !w.searching.Load() || w.activeSplitPoint.Load() != sp {
					t.Errorf("Recruited worker %d not fully claimed", w.idx)
				}
			} else if w.searching.Load() {
				t.Errorf("Unrecruited worker %d marked searching", w.idx)
			}
		}
	}

	t.Run("FewerIdleThanCap", func(t *testing.T) {
		run(t, 4, 10, 3) // 3 idle workers, cap 7
	})
	t.Run("MoreIdleThanCap", func(t *testing.T) {
		run(t, 10, 10, 7) // 9 idle workers, cap 7
	})
	t.Run("ShallowDepthHalvesCap", func(t *testing.T) {
		run(t, 10, 4, 3) // 9 idle workers, cap 7/2
	})
	t.Run("NoIdleWorkers", func(t *testing.T) {
		run(t, 1, 10, 0)
	})
}

func TestRecruitSkipsResumingMaster(t *testing.T) {
	p := manualPool(3)

	// Worker 1 looks idle but still owns a split slot whose slaves have all
	// retired; it is about to set searching and release the slot.
	resuming := p.workers[1]
	resuming.splitPointsSize.Store(1)
	resuming.splitPoints[0].master = resuming
	resuming.splitPoints[0].slavesMask.Store(0)

	master := p.workers[0]
	master.searching.Store(true)
	sp := &master.splitPoints[0]
	sp.master = master
	sp.depth = 10
	sp.slavesMask.Store(1 << uint(master.idx))

	sp.lock.Acquire()
	got := master.recruitSlaves(sp, sp.depth)
	sp.lock.Release()

	// Worker 2 is genuinely idle and gets recruited; worker 1 must be left
	// untouched or its state restore would discard the assignment and leave
	// its bit stuck in sp's mask.
	if got != 1 {
		t.Fatalf("Recruited %d slaves, want 1", got)
	}
	if sp.hasParticipant(resuming.idx) {
		t.Error("Resuming master was booked into the split point")
	}
	if resuming.searching.Load() || resuming.activeSplitPoint.Load() != nil {
		t.Error("Recruitment touched the resuming master's state")
	}
	if !sp.hasParticipant(p.workers[2].idx) {
		t.Error("Idle worker 2 was not recruited")
	}
}

func TestPoolLifecycle(t *testing.T) {
	p := NewPool(testOptions(2))
	defer p.Exit()

	if p.Threads() != 2 {
		t.Fatalf("Pool has %d workers, want 2", p.Threads())
	}

	pos := dragontoothmg.ParseFen(dragontoothmg.Startpos)

	bestCh := make(chan dragontoothmg.Move, 1)
	p.OnBestMove = func(m dragontoothmg.Move) { bestCh <- m }

	p.StartThinking(pos, Limits{Depth: 4}, []uint64{pos.Hash()})
	p.Join()

	select {
	case best := <-bestCh:
		legal := false
		for _, m := range pos.GenerateLegalMoves() {
			if m == best {
				legal = true
				break
			}
		}
		if !legal {
			t.Errorf("Best move %s is not legal in the start position", best.String())
		}
	default:
		t.Fatal("Join returned before the best move was reported")
	}

	if p.NodesSearched() == 0 {
		t.Error("No nodes counted after a depth 4 search")
	}
	if p.Searching() {
		t.Error("Pool still reports searching after Join")
	}

	// Every split started during the search must have been wound down.
	for _, w := range p.workers {
		if w.activeSplitPoint.Load() != nil {
			t.Errorf("Worker %d still has an active split point after Join", w.idx)
		}
		if n := w.splitPointsSize.Load(); n != 0 {
			t.Errorf("Worker %d has %d split slots in use after Join", w.idx, n)
		}
	}
}

func TestAbortSearchStopsInfinite(t *testing.T) {
	p := NewPool(testOptions(2))
	defer p.Exit()

	pos := dragontoothmg.ParseFen(dragontoothmg.Startpos)

	done := make(chan dragontoothmg.Move, 1)
	p.OnBestMove = func(m dragontoothmg.Move) { done <- m }

	p.StartThinking(pos, Limits{Infinite: true}, []uint64{pos.Hash()})
	time.Sleep(50 * time.Millisecond)
	p.AbortSearch()
	p.Join()

	select {
	case best := <-done:
		if best == noMove {
			t.Error("Aborted search returned no move for the start position")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Search did not stop after AbortSearch")
	}
}

func TestNodesLimitStops(t *testing.T) {
	p := NewPool(testOptions(1))
	defer p.Exit()

	pos := dragontoothmg.ParseFen(dragontoothmg.Startpos)
	p.StartThinking(pos, Limits{Nodes: 5000}, []uint64{pos.Hash()})

	deadline := time.After(10 * time.Second)
	joined := make(chan struct{})
	go func() {
		p.Join()
		close(joined)
	}()
	select {
	case <-joined:
	case <-deadline:
		t.Fatal("Node-limited search did not terminate")
	}

	// The limit is enforced at timer resolution, so allow generous slack.
	if n := p.NodesSearched(); n > 5_000_000 {
		t.Errorf("Searched %d nodes, far beyond the 5000 node limit", n)
	}
}

func TestSplitInvariantsUnderLoad(t *testing.T) {
	p := NewPool(testOptions(4))
	defer p.Exit()

	// Run a real multi-threaded search while a sampler observes published
	// split points under their locks. At every observation point the
	// participant mask must respect the fan-out cap and agree with each
	// worker's own view of its assignment.
	pos := dragontoothmg.ParseFen("r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1")

	stopSampling := make(chan struct{})
	violations := make(chan string, 4)
	report := func(msg string) {
		select {
		case violations <- msg:
		default:
		}
	}

	go func() {
		for {
			select {
			case <-stopSampling:
				return
			default:
			}
			for _, master := range p.workers {
				size := int(master.splitPointsSize.Load())
				if size == 0 {
					continue
				}
				sp := &master.splitPoints[size-1]

				sp.lock.Acquire()
				if sp.participantCount() > p.slaveLimit+1 {
					report("participant count exceeds fan-out cap")
				}
				for _, w := range p.workers {
					// Lock order everywhere: split point, then worker.
					w.spinlock.Acquire()
					assigned := w.activeSplitPoint.Load() == sp && w.searching.Load()
					inMask := sp.hasParticipant(w.idx)
					w.spinlock.Release()
					if assigned && !inMask {
						report("worker assigned to a split point it is not a participant of")
					}
				}
				sp.lock.Release()
			}
		}
	}()

	p.StartThinking(pos, Limits{Depth: 8}, []uint64{pos.Hash()})
	p.Join()
	close(stopSampling)

	select {
	case v := <-violations:
		t.Error(v)
	default:
	}
}
