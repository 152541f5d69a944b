package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// SyncMode determines when appends are synced to disk.
type SyncMode int

const (
	// SyncAlways fsyncs after every append. Append does not return until the
	// record is durable. This is the default.
	SyncAlways SyncMode = iota
	// SyncNone leaves syncing to the OS (benchmarks and tests only).
	SyncNone
)

// Log is the segment store: durable, ordered, append-only storage of
// commands organized into generation-numbered segment files.
//
// Appends and rotation are serialized by the owning Store's writer lock.
// ReadAt may be called concurrently with appends and with compaction; the
// internal RWMutex only guards the segment table itself.
type Log struct {
	dir      string
	segSize  int64
	syncMode SyncMode

	mu       sync.RWMutex
	segments map[uint64]*segment
	active   *segment
	nextGen  uint64
}

// OpenLog scans dir for existing segments and opens them, creating the first
// segment if the directory is empty. Leftover temporary files from an
// interrupted compaction are discarded: the old generations they were meant
// to replace remain authoritative.
func OpenLog(dir string, segSize int64, syncMode SyncMode) (*Log, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	gens, err := scanLogDir(dir)
	if err != nil {
		return nil, err
	}

	l := &Log{
		dir:      dir,
		segSize:  segSize,
		syncMode: syncMode,
		segments: make(map[uint64]*segment),
		nextGen:  1,
	}

	for _, gen := range gens {
		seg, err := openSegment(dir, gen)
		if err != nil {
			l.Close()
			return nil, err
		}
		l.segments[gen] = seg
		l.active = seg
		l.nextGen = gen + 1
	}

	// Start a fresh generation if the directory was empty or the highest
	// segment is already at the rotation threshold.
	if l.active == nil || l.active.size.Load() >= l.segSize {
		if err := l.rotate(); err != nil {
			l.Close()
			return nil, err
		}
	}

	return l, nil
}

// scanLogDir returns all segment generations in dir in ascending order and
// removes stale *.tmp files.
func scanLogDir(dir string) ([]uint64, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan log directory: %w", err)
	}

	var gens []uint64
	for _, ent := range dirents {
		name := ent.Name()
		if strings.HasSuffix(name, tmpSuffix) {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return nil, fmt.Errorf("discard partial compaction file %s: %w", name, err)
			}
			continue
		}
		if !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		gen, err := strconv.ParseUint(strings.TrimSuffix(name, segmentSuffix), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unrecognized segment file name %s: %w", name, err)
		}
		gens = append(gens, gen)
	}

	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens, nil
}

// Append serializes a command, writes it to the active segment, and syncs it
// according to the SyncMode before returning. Rotation happens first when the
// active segment has reached the size threshold. On error the caller must not
// assume the append happened.
func (l *Log) Append(cmd Command) (Location, error) {
	data := encodeCommand(cmd)

	if size := l.active.size.Load(); size > 0 && size+int64(len(data)) > l.segSize {
		if err := l.rotate(); err != nil {
			return Location{}, err
		}
	}

	seg := l.active
	offset, err := seg.append(data)
	if err != nil {
		return Location{}, err
	}
	if l.syncMode == SyncAlways {
		if err := seg.sync(); err != nil {
			return Location{}, fmt.Errorf("sync segment %d: %w", seg.gen, err)
		}
	}

	return Location{Gen: seg.gen, Offset: offset, Length: int64(len(data))}, nil
}

// rotate seals the active segment and opens a new one with the next
// generation number.
func (l *Log) rotate() error {
	if l.active != nil {
		if err := l.active.sync(); err != nil {
			return fmt.Errorf("seal segment %d: %w", l.active.gen, err)
		}
	}

	seg, err := createSegment(l.dir, l.nextGen)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.segments[seg.gen] = seg
	l.active = seg
	l.nextGen = seg.gen + 1
	l.mu.Unlock()
	return nil
}

// ReadAt reads the command at a location. It returns ErrStaleLocation if the
// generation has been dropped by compaction since the location was resolved,
// and ErrCorruptRecord if the bytes do not decode to a valid command.
func (l *Log) ReadAt(loc Location) (Command, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seg, ok := l.segments[loc.Gen]
	if !ok {
		return Command{}, ErrStaleLocation
	}
	return seg.readAt(loc.Offset, loc.Length)
}

// TotalSize returns the total number of bytes across all segments.
func (l *Log) TotalSize() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total int64
	for _, seg := range l.segments {
		total += seg.size.Load()
	}
	return total
}

// Segments returns the number of segment files, including the active one.
func (l *Log) Segments() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.segments)
}

// Compact writes the given live entries into a single fresh segment and
// returns their new locations. The new segment is written to a temporary
// file, synced, and atomically renamed: an interruption at any point leaves
// the old generations authoritative. A new active segment above the compacted
// one is opened for subsequent appends.
//
// The caller must hold the writer lock and must swap its index to the
// returned locations before calling DropBelow.
func (l *Log) Compact(entries []IndexEntry) ([]IndexEntry, uint64, error) {
	gen := l.nextGen
	tmpPath := filepath.Join(l.dir, segmentName(gen)+tmpSuffix)

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("create compaction file: %w", err)
	}

	compacted := make([]IndexEntry, 0, len(entries))
	var offset int64
	for _, ent := range entries {
		cmd, err := l.ReadAt(ent.Loc)
		if err != nil {
			file.Close()
			os.Remove(tmpPath)
			return nil, 0, fmt.Errorf("compact %q: %w", ent.Key, err)
		}
		data := encodeCommand(cmd)
		if _, err := file.Write(data); err != nil {
			file.Close()
			os.Remove(tmpPath)
			return nil, 0, fmt.Errorf("write compaction file: %w", err)
		}
		compacted = append(compacted, IndexEntry{
			Key: ent.Key,
			Loc: Location{Gen: gen, Offset: offset, Length: int64(len(data))},
		})
		offset += int64(len(data))
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return nil, 0, fmt.Errorf("sync compaction file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, 0, err
	}

	finalPath := filepath.Join(l.dir, segmentName(gen))
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return nil, 0, fmt.Errorf("install compacted segment %d: %w", gen, err)
	}
	if err := syncDir(l.dir); err != nil {
		return nil, 0, err
	}

	reopened, err := os.OpenFile(finalPath, os.O_RDWR, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("reopen compacted segment %d: %w", gen, err)
	}
	seg := &segment{gen: gen, path: finalPath, file: reopened}
	seg.size.Store(offset)

	l.mu.Lock()
	l.segments[gen] = seg
	l.nextGen = gen + 1
	l.mu.Unlock()

	// Appends after the compaction land above the compacted data.
	if err := l.rotate(); err != nil {
		return nil, 0, err
	}

	return compacted, gen, nil
}

// DropBelow removes and deletes every segment older than gen. In-flight
// reads against those generations finish first: removal waits for the
// segment table's read lock, and any read that resolved its location before
// the index swap retries after seeing ErrStaleLocation.
func (l *Log) DropBelow(gen uint64) error {
	l.mu.Lock()
	var dropped []*segment
	for g, seg := range l.segments {
		if g < gen {
			dropped = append(dropped, seg)
			delete(l.segments, g)
		}
	}
	l.mu.Unlock()

	for _, seg := range dropped {
		if err := seg.remove(); err != nil {
			return fmt.Errorf("drop segment %d: %w", seg.gen, err)
		}
	}
	return nil
}

// Close closes all segment files. The segment table stays in place so an
// operation racing Close fails with a closed-file error instead of a
// dangling lookup.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, seg := range l.segments {
		if err := seg.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// syncDir fsyncs a directory so renames within it are durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
