package main

import (
	"flag"
	"log"
	"os"
	"runtime/pprof"

	"github.com/hailam/kingfisher/internal/engine"
	"github.com/hailam/kingfisher/internal/storage"
	"github.com/hailam/kingfisher/internal/uci"
)

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")

func main() {
	flag.Parse()

	// Start CPU profiling if requested (via flag or environment variable)
	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		log.Printf("CPU profiling enabled, writing to %s", profilePath)
	}

	opts := engine.DefaultOptions()

	// Persisted options survive restarts. The engine still works without
	// the store, GUIs just have to re-send their setoptions.
	store, err := storage.NewStorage()
	if err != nil {
		log.Printf("Warning: persistent storage unavailable: %v", err)
		store = nil
	} else {
		defer store.Close()

		saved, err := store.LoadOptions(&storage.EngineOptions{
			Threads:       opts.Threads,
			HashMB:        opts.HashMB,
			MinSplitDepth: opts.MinSplitDepth,
			MoveOverhead:  opts.MoveOverhead,
		})
		if err != nil {
			log.Printf("Warning: saved options not loaded: %v", err)
		} else {
			opts.Threads = saved.Threads
			opts.HashMB = saved.HashMB
			opts.MinSplitDepth = saved.MinSplitDepth
			opts.MoveOverhead = saved.MoveOverhead
		}
	}

	protocol := uci.New(opts, store)
	defer protocol.Close()
	protocol.Run()
}
