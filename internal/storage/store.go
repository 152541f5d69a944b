package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
)

// Store is the log-structured engine: it composes the segment Log with the
// in-memory Index and implements get/set/remove semantics plus compaction.
//
// Reads run concurrently without coordination. Writes and compaction are
// serialized by a single writer lock around the append + index update pair,
// so concurrent writers can never interleave an append with another writer's
// index update.
type Store struct {
	log    *Log
	index  *Index
	config Config
	logger *slog.Logger

	// Writer lock: Set, Remove, and compaction.
	mu sync.Mutex

	// staleBytes counts log bytes no longer reachable from the index. It is
	// monotonically non-decreasing between compactions and resets to zero
	// when one completes.
	staleBytes  atomic.Int64
	compactions atomic.Uint64
	closed      atomic.Bool
}

// Config configures the store.
type Config struct {
	// SegmentSize is the rotation threshold for the active segment.
	SegmentSize int64
	// SyncMode determines when appends are synced to disk.
	SyncMode SyncMode
	// CompactionRatio is the fraction of total on-disk bytes that must be
	// stale before compaction triggers.
	CompactionRatio float64
	// CompactionMinBytes is the minimum stale byte count before compaction
	// is considered at all, so small logs are not rewritten constantly.
	CompactionMinBytes int64
	// Logger receives structured diagnostics. Nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() Config {
	return Config{
		SegmentSize:        4 * 1024 * 1024, // 4MB
		SyncMode:           SyncAlways,
		CompactionRatio:    0.4,
		CompactionMinBytes: 1024 * 1024, // 1MB
	}
}

// Open creates or opens a store at the given directory, rebuilding the index
// by replaying all segments.
func Open(dir string, config Config) (*Store, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	lg, err := OpenLog(dir, config.SegmentSize, config.SyncMode)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	index := NewIndex()
	stale, err := index.Rebuild(lg.Replay())
	if err != nil {
		lg.Close()
		return nil, fmt.Errorf("rebuild index: %w", err)
	}

	s := &Store{
		log:    lg,
		index:  index,
		config: config,
		logger: logger,
	}
	s.staleBytes.Store(stale)

	logger.Info("store opened",
		"dir", dir,
		"keys", index.Len(),
		"segments", lg.Segments(),
		"stale_bytes", stale)
	return s, nil
}

// Get returns the value for a key, with found reporting whether the key
// exists. A location that went stale under a concurrent compaction is
// re-resolved through the index; a tombstone at the pointed-to location is
// corruption, never a normal miss.
func (s *Store) Get(key string) (string, bool, error) {
	if s.closed.Load() {
		return "", false, ErrClosed
	}

	for {
		loc, ok := s.index.Get(key)
		if !ok {
			return "", false, nil
		}

		cmd, err := s.log.ReadAt(loc)
		if errors.Is(err, ErrStaleLocation) {
			continue
		}
		if err != nil {
			// A read that slipped past the closed check while Close was
			// releasing the segment files sees them closed.
			if s.closed.Load() || errors.Is(err, os.ErrClosed) {
				return "", false, ErrClosed
			}
			return "", false, fmt.Errorf("get %q: %w", key, err)
		}
		if cmd.Tombstone {
			return "", false, fmt.Errorf("get %q: %w: index points at a tombstone", key, ErrCorruptRecord)
		}
		return cmd.Value, true, nil
	}
}

// Set durably appends a Set command, then points the index at it. The
// superseded record, if any, becomes stale.
func (s *Store) Set(key, value string) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loc, err := s.log.Append(Command{Key: key, Value: value})
	if err != nil {
		if s.closed.Load() || errors.Is(err, os.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("set %q: %w", key, err)
	}

	if prior, ok := s.index.Get(key); ok {
		s.staleBytes.Add(prior.Length)
	}
	s.index.Put(key, loc)

	s.maybeCompact()
	return nil
}

// Remove appends a tombstone and deletes the index entry. Removing a key
// that has no index entry fails with ErrKeyNotFound. Both the superseded Set
// and the tombstone itself count as stale immediately: the tombstone carries
// no live value and is only needed during replay to suppress resurrection of
// the old Set.
func (s *Store) Remove(key string) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prior, ok := s.index.Get(key)
	if !ok {
		return ErrKeyNotFound
	}

	loc, err := s.log.Append(Command{Key: key, Tombstone: true})
	if err != nil {
		if s.closed.Load() || errors.Is(err, os.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("remove %q: %w", key, err)
	}

	s.index.Delete(key)
	s.staleBytes.Add(prior.Length + loc.Length)

	s.maybeCompact()
	return nil
}

// maybeCompact runs compaction when the stale fraction crosses the
// configured threshold. Caller holds the writer lock. A failure leaves the
// old segments authoritative and never fails the mutation that triggered
// it; the mutation itself is already durable.
func (s *Store) maybeCompact() {
	stale := s.staleBytes.Load()
	if stale < s.config.CompactionMinBytes {
		return
	}
	if float64(stale) < s.config.CompactionRatio*float64(s.log.TotalSize()) {
		return
	}
	if err := s.compact(); err != nil {
		s.logger.Error("compaction failed", "error", err)
	}
}

// Compact forces a compaction run regardless of thresholds.
func (s *Store) Compact() error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compact()
}

// compact rewrites all live entries into a fresh segment, swaps the index to
// the new locations, then drops every older generation. Caller holds the
// writer lock; reads proceed concurrently throughout and retry through the
// index if they raced the swap. An interruption before the new segment is
// installed leaves the old segments authoritative.
func (s *Store) compact() error {
	entries := s.index.Entries()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	before := s.log.TotalSize()
	compacted, gen, err := s.log.Compact(entries)
	if err != nil {
		return fmt.Errorf("compaction: %w", err)
	}

	s.index.Swap(compacted)
	if err := s.log.DropBelow(gen); err != nil {
		return fmt.Errorf("compaction: %w", err)
	}

	s.staleBytes.Store(0)
	s.compactions.Add(1)

	s.logger.Info("compaction complete",
		"segment", gen,
		"live_keys", len(entries),
		"bytes_before", before,
		"bytes_after", s.log.TotalSize())
	return nil
}

// Stats returns current statistics.
func (s *Store) Stats() Stats {
	return Stats{
		Keys:        s.index.Len(),
		Segments:    s.log.Segments(),
		TotalBytes:  s.log.TotalSize(),
		StaleBytes:  s.staleBytes.Load(),
		Compactions: s.compactions.Load(),
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Keys        int
	Segments    int
	TotalBytes  int64
	StaleBytes  int64
	Compactions uint64
}

// Close releases all segment files. Further operations fail with ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Close()
}
