// Package uci implements the Universal Chess Interface protocol on top of
// the worker pool.
package uci

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dylhunn/dragontoothmg"

	"github.com/hailam/kingfisher/internal/engine"
	"github.com/hailam/kingfisher/internal/storage"
)

const (
	engineName   = "Kingfisher"
	engineAuthor = "Kingfisher Team"
)

// Handler owns the protocol state: the current position, its hash history
// for repetition detection, the pool executing searches and the persisted
// options.
type Handler struct {
	pool  *engine.Pool
	opts  engine.Options
	store *storage.Storage // nil when persistence is unavailable

	pos    dragontoothmg.Board
	hashes []uint64

	// Written from the main worker's goroutine via the pool callbacks,
	// read here only after the search has been joined.
	searchStart time.Time
	lastDepth   int
}

// New creates a protocol handler and its worker pool. store may be nil.
func New(opts engine.Options, store *storage.Storage) *Handler {
	h := &Handler{
		opts:  opts,
		store: store,
	}
	h.pool = engine.NewPool(opts)
	h.installCallbacks()
	h.resetPosition()
	return h
}

// Close shuts the pool down. The store is owned by the caller.
func (h *Handler) Close() {
	h.pool.AbortSearch()
	h.pool.Join()
	h.pool.Exit()
}

func (h *Handler) installCallbacks() {
	h.pool.OnInfo = func(info engine.SearchInfo) {
		h.lastDepth = info.Depth
		h.sendInfo(info)
	}
	h.pool.OnBestMove = func(best dragontoothmg.Move) {
		if best == 0 {
			fmt.Println("bestmove 0000")
		} else {
			fmt.Printf("bestmove %s\n", best.String())
		}
		if h.store != nil {
			err := h.store.RecordSearch(h.pool.NodesSearched(), h.lastDepth, time.Since(h.searchStart))
			if err != nil {
				fmt.Fprintf(os.Stderr, "info string stats not recorded: %v\n", err)
			}
		}
	}
}

func (h *Handler) resetPosition() {
	h.pos = dragontoothmg.ParseFen(dragontoothmg.Startpos)
	h.hashes = []uint64{h.pos.Hash()}
}

// Run reads commands from stdin until quit or EOF. A search in progress is
// aborted before returning.
func (h *Handler) Run() {
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "uci":
			h.handleUCI()
		case "isready":
			fmt.Println("readyok")
		case "ucinewgame":
			h.handleNewGame()
		case "position":
			h.handlePosition(args)
		case "go":
			h.handleGo(args)
		case "stop":
			h.handleStop()
		case "quit":
			h.handleStop()
			return
		case "setoption":
			h.handleSetOption(args)
		// Debug commands
		case "d":
			fmt.Println(h.pos.ToFen())
		case "perft":
			h.handlePerft(args, false)
		case "divide":
			h.handlePerft(args, true)
		case "bench":
			h.handleBench(args)
		}
	}
	h.handleStop()
}

func (h *Handler) handleUCI() {
	fmt.Printf("id name %s\n", engineName)
	fmt.Printf("id author %s\n", engineAuthor)
	fmt.Println()
	fmt.Printf("option name Threads type spin default %d min 1 max %d\n", h.opts.Threads, engine.MaxWorkers)
	fmt.Printf("option name Hash type spin default %d min 1 max 4096\n", h.opts.HashMB)
	fmt.Printf("option name MinSplitDepth type spin default %d min 2 max 12\n", h.opts.MinSplitDepth)
	fmt.Printf("option name MoveOverhead type spin default %d min 0 max 5000\n", h.opts.MoveOverhead.Milliseconds())
	fmt.Println("uciok")
}

func (h *Handler) handleNewGame() {
	h.handleStop()
	h.pool.TT().Clear()
	h.resetPosition()
}

// handlePosition parses and sets up a position.
// Formats:
//   - position startpos [moves ...]
//   - position fen <fen> [moves ...]
func (h *Handler) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	movesAt := len(args)
	for i, arg := range args {
		if arg == "moves" {
			movesAt = i
			break
		}
	}

	switch args[0] {
	case "startpos":
		h.resetPosition()
	case "fen":
		if movesAt < 2 {
			return
		}
		fen := strings.Join(args[1:movesAt], " ")
		if len(strings.Fields(fen)) < 4 {
			fmt.Fprintf(os.Stderr, "info string invalid FEN: %q\n", fen)
			return
		}
		h.pos = dragontoothmg.ParseFen(fen)
		h.hashes = []uint64{h.pos.Hash()}
	default:
		return
	}

	for _, moveStr := range args[min(movesAt+1, len(args)):] {
		move, ok := h.parseMove(moveStr)
		if !ok {
			fmt.Fprintf(os.Stderr, "info string invalid move: %s\n", moveStr)
			return
		}
		h.pos.Apply(move)
		h.hashes = append(h.hashes, h.pos.Hash())
	}
}

// parseMove converts a UCI move string into a legal move of the current
// position.
func (h *Handler) parseMove(moveStr string) (dragontoothmg.Move, bool) {
	move, err := dragontoothmg.ParseMove(moveStr)
	if err != nil {
		return 0, false
	}
	for _, legal := range h.pos.GenerateLegalMoves() {
		if legal == move {
			return move, true
		}
	}
	return 0, false
}

// handleGo parses the limits and hands the search to the pool. The reply
// arrives asynchronously through the bestmove callback.
func (h *Handler) handleGo(args []string) {
	if h.pool.Searching() {
		return
	}

	var limits engine.Limits

	for i := 0; i < len(args); i++ {
		var arg string
		if i+1 < len(args) {
			arg = args[i+1]
		}
		switch args[i] {
		case "depth":
			limits.Depth, _ = strconv.Atoi(arg)
			i++
		case "nodes":
			limits.Nodes, _ = strconv.ParseUint(arg, 10, 64)
			i++
		case "movetime":
			limits.MoveTime = parseMillis(arg)
			i++
		case "wtime":
			limits.Time[engine.White] = parseMillis(arg)
			i++
		case "btime":
			limits.Time[engine.Black] = parseMillis(arg)
			i++
		case "winc":
			limits.Inc[engine.White] = parseMillis(arg)
			i++
		case "binc":
			limits.Inc[engine.Black] = parseMillis(arg)
			i++
		case "movestogo":
			limits.MovesToGo, _ = strconv.Atoi(arg)
			i++
		case "infinite":
			limits.Infinite = true
		}
	}

	h.searchStart = time.Now()
	h.lastDepth = 0
	h.pool.StartThinking(h.pos, limits, h.hashes)
}

func parseMillis(s string) time.Duration {
	ms, _ := strconv.Atoi(s)
	return time.Duration(ms) * time.Millisecond
}

// sendInfo outputs one search info line in UCI format.
func (h *Handler) sendInfo(info engine.SearchInfo) {
	var parts []string

	parts = append(parts, fmt.Sprintf("depth %d", info.Depth))

	if info.Score > engine.MateScore-engine.MaxPly {
		mateIn := (engine.MateScore - info.Score + 1) / 2
		parts = append(parts, fmt.Sprintf("score mate %d", mateIn))
	} else if info.Score < -engine.MateScore+engine.MaxPly {
		mateIn := -(engine.MateScore + info.Score + 1) / 2
		parts = append(parts, fmt.Sprintf("score mate %d", mateIn))
	} else {
		parts = append(parts, fmt.Sprintf("score cp %d", info.Score))
	}

	parts = append(parts, fmt.Sprintf("nodes %d", info.Nodes))
	parts = append(parts, fmt.Sprintf("time %d", info.Time.Milliseconds()))

	if info.Time > 0 {
		nps := uint64(float64(info.Nodes) / info.Time.Seconds())
		parts = append(parts, fmt.Sprintf("nps %d", nps))
	}

	if info.HashFull > 0 {
		parts = append(parts, fmt.Sprintf("hashfull %d", info.HashFull))
	}

	if len(info.PV) > 0 {
		pv := make([]string, len(info.PV))
		for i, m := range info.PV {
			pv[i] = m.String()
		}
		parts = append(parts, "pv "+strings.Join(pv, " "))
	}

	fmt.Printf("info %s\n", strings.Join(parts, " "))
}

// handleStop aborts a running search and waits for its bestmove.
func (h *Handler) handleStop() {
	h.pool.AbortSearch()
	h.pool.Join()
}

// handleSetOption processes "setoption name <name> [value <value>]".
// Threads, Hash and MinSplitDepth rebuild the pool, which is only safe
// between searches.
func (h *Handler) handleSetOption(args []string) {
	var nameParts, valueParts []string
	target := &nameParts
	for _, arg := range args {
		switch arg {
		case "name":
			target = &nameParts
		case "value":
			target = &valueParts
		default:
			*target = append(*target, arg)
		}
	}
	name := strings.ToLower(strings.Join(nameParts, " "))
	value := strings.Join(valueParts, " ")

	h.handleStop()

	rebuild := false
	switch name {
	case "threads":
		if n, err := strconv.Atoi(value); err == nil && n >= 1 && n <= engine.MaxWorkers {
			h.opts.Threads = n
			rebuild = true
		}
	case "hash":
		if n, err := strconv.Atoi(value); err == nil && n >= 1 {
			h.opts.HashMB = n
			rebuild = true
		}
	case "minsplitdepth":
		if n, err := strconv.Atoi(value); err == nil && n >= 2 {
			h.opts.MinSplitDepth = n
			rebuild = true
		}
	case "moveoverhead":
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			h.opts.MoveOverhead = time.Duration(n) * time.Millisecond
			rebuild = true
		}
	default:
		return
	}

	if rebuild {
		h.pool.Exit()
		h.pool = engine.NewPool(h.opts)
		h.installCallbacks()
	}

	if h.store != nil {
		err := h.store.SaveOptions(&storage.EngineOptions{
			Threads:       h.opts.Threads,
			HashMB:        h.opts.HashMB,
			MinSplitDepth: h.opts.MinSplitDepth,
			MoveOverhead:  h.opts.MoveOverhead,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "info string options not saved: %v\n", err)
		}
	}
}

// handlePerft counts leaf nodes under the current position, optionally with
// the per-move breakdown.
func (h *Handler) handlePerft(args []string, divide bool) {
	depth := 5
	if len(args) > 0 {
		if d, err := strconv.Atoi(args[0]); err == nil && d > 0 {
			depth = d
		}
	}

	start := time.Now()
	if divide {
		var total uint64
		for _, entry := range engine.Divide(h.pos, depth) {
			fmt.Printf("%s: %d\n", entry.Move, entry.Nodes)
			total += entry.Nodes
		}
		fmt.Printf("Nodes: %d\n", total)
	} else {
		nodes := engine.PerftParallel(h.pos, depth)
		elapsed := time.Since(start)
		fmt.Printf("Nodes: %d\n", nodes)
		fmt.Printf("Time: %v\n", elapsed)
		if elapsed > 0 {
			fmt.Printf("NPS: %.0f\n", float64(nodes)/elapsed.Seconds())
		}
	}
}

// Positions used by the bench command, a mix of openings, middlegames and
// endgames.
var benchPositions = []string{
	dragontoothmg.Startpos,
	"r1bqkbnr/pppp1ppp/2n5/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R b KQkq - 3 3",
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	"r4rk1/1pp1qppp/p1np1n2/2b1p1B1/2B1P1b1/P1NP1N2/1PP1QPPP/R4RK1 w - - 0 10",
	"8/8/1p6/p1p2k2/P1P2p2/1P3P2/4K3/8 b - - 0 1",
}

// handleBench searches a fixed set of positions to a fixed depth and prints
// total node throughput.
func (h *Handler) handleBench(args []string) {
	depth := 8
	if len(args) > 0 {
		if d, err := strconv.Atoi(args[0]); err == nil && d > 0 {
			depth = d
		}
	}

	savedPos, savedHashes := h.pos, h.hashes

	var totalNodes uint64
	start := time.Now()
	for i, fen := range benchPositions {
		fmt.Printf("\nPosition %d/%d\n", i+1, len(benchPositions))
		h.pos = dragontoothmg.ParseFen(fen)
		h.hashes = []uint64{h.pos.Hash()}

		h.searchStart = time.Now()
		h.pool.StartThinking(h.pos, engine.Limits{Depth: depth}, h.hashes)
		h.pool.Join()
		totalNodes += h.pool.NodesSearched()
	}
	elapsed := time.Since(start)

	h.pos, h.hashes = savedPos, savedHashes

	fmt.Printf("\nTotal nodes: %d\n", totalNodes)
	fmt.Printf("Total time:  %v\n", elapsed)
	if elapsed > 0 {
		fmt.Printf("Nodes/sec:   %.0f\n", float64(totalNodes)/elapsed.Seconds())
	}
}
