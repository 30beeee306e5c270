package storage

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Storage keys
const (
	keyOptions = "options"
	keyStats   = "stats"
)

// EngineOptions stores the UCI options the user has set, so they survive
// engine restarts.
type EngineOptions struct {
	Threads       int           `json:"threads"`
	HashMB        int           `json:"hash_mb"`
	MinSplitDepth int           `json:"min_split_depth"`
	MoveOverhead  time.Duration `json:"move_overhead"`
	LastUsed      time.Time     `json:"last_used"`
}

// SearchStats accumulates lifetime search statistics across sessions.
type SearchStats struct {
	Searches  uint64        `json:"searches"`
	Nodes     uint64        `json:"nodes"`
	MaxDepth  int           `json:"max_depth"`
	ThinkTime time.Duration `json:"think_time"`
}

// Storage wraps BadgerDB for persistent storage.
type Storage struct {
	db *badger.DB
}

// NewStorage opens the database in the platform data directory.
func NewStorage() (*Storage, error) {
	dbDir, err := GetDatabaseDir()
	if err != nil {
		return nil, err
	}
	return Open(dbDir)
}

// Open opens the database at an explicit directory.
func Open(dir string) (*Storage, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveOptions persists the current engine options.
func (s *Storage) SaveOptions(opts *EngineOptions) error {
	opts.LastUsed = time.Now()

	data, err := json.Marshal(opts)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyOptions), data)
	})
}

// LoadOptions loads persisted engine options. Missing keys leave the passed
// defaults untouched.
func (s *Storage) LoadOptions(defaults *EngineOptions) (*EngineOptions, error) {
	opts := *defaults

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyOptions))
		if err == badger.ErrKeyNotFound {
			return nil // Use defaults
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &opts)
		})
	})

	return &opts, err
}

// SaveStats persists search statistics.
func (s *Storage) SaveStats(stats *SearchStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyStats), data)
	})
}

// LoadStats loads search statistics, returning zeros if none were saved.
func (s *Storage) LoadStats() (*SearchStats, error) {
	stats := &SearchStats{}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyStats))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, stats)
		})
	})

	return stats, err
}

// RecordSearch folds one completed search into the lifetime statistics.
func (s *Storage) RecordSearch(nodes uint64, depth int, thinkTime time.Duration) error {
	stats, err := s.LoadStats()
	if err != nil {
		return err
	}

	stats.Searches++
	stats.Nodes += nodes
	stats.ThinkTime += thinkTime
	if depth > stats.MaxDepth {
		stats.MaxDepth = depth
	}

	return s.SaveStats(stats)
}
