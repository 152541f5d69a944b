package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
)

const (
	segmentSuffix = ".seg"
	tmpSuffix     = ".tmp"
)

// segmentName returns the file name for a generation, e.g. "000042.seg".
func segmentName(gen uint64) string {
	return fmt.Sprintf("%06d%s", gen, segmentSuffix)
}

// segment is a single append-only log file. Only the highest generation
// accepts appends; sealed segments are read-only. Reads use pread and are
// safe for concurrent readers; appends are serialized by the Log.
type segment struct {
	gen  uint64
	path string
	file *os.File

	// size is the committed tail offset. Only the single writer advances
	// it, but stats and replay read it concurrently.
	size atomic.Int64
}

// createSegment creates an empty segment file for a new generation.
func createSegment(dir string, gen uint64) (*segment, error) {
	path := filepath.Join(dir, segmentName(gen))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create segment %d: %w", gen, err)
	}
	return &segment{gen: gen, path: path, file: file}, nil
}

// openSegment opens an existing segment, scanning its records to find the
// last valid command boundary. Trailing bytes that fail to decode (a torn
// write from a crash) are truncated rather than rejecting the segment.
func openSegment(dir string, gen uint64) (*segment, error) {
	path := filepath.Join(dir, segmentName(gen))
	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open segment %d: %w", gen, err)
	}

	valid, err := scanSegment(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size() > valid {
		if err := file.Truncate(valid); err != nil {
			file.Close()
			return nil, fmt.Errorf("truncate segment %d at %d: %w", gen, valid, err)
		}
	}

	seg := &segment{gen: gen, path: path, file: file}
	seg.size.Store(valid)
	return seg, nil
}

// scanSegment walks the records in a segment file and returns the offset of
// the last valid command boundary.
func scanSegment(file *os.File) (int64, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var offset int64
	for {
		_, n, err := readCommand(reader)
		if err == io.EOF {
			return offset, nil
		}
		if errors.Is(err, ErrCorruptRecord) {
			// Torn tail: everything before this boundary stays authoritative.
			return offset, nil
		}
		if err != nil {
			return 0, err
		}
		offset += n
	}
}

// append writes an encoded record at the tail and returns its offset.
// Durability is the caller's concern (see Log.Append and SyncMode).
func (s *segment) append(data []byte) (int64, error) {
	offset := s.size.Load()
	if _, err := s.file.WriteAt(data, offset); err != nil {
		return 0, fmt.Errorf("append to segment %d: %w", s.gen, err)
	}
	s.size.Store(offset + int64(len(data)))
	return offset, nil
}

// readAt reads and decodes the command at the given offset.
func (s *segment) readAt(offset, length int64) (Command, error) {
	buf := make([]byte, length)
	if _, err := s.file.ReadAt(buf, offset); err != nil {
		return Command{}, fmt.Errorf("read segment %d at %d: %w", s.gen, offset, err)
	}
	return decodeCommand(buf)
}

func (s *segment) sync() error {
	return s.file.Sync()
}

func (s *segment) close() error {
	return s.file.Close()
}

// remove closes the segment and deletes its file.
func (s *segment) remove() error {
	if err := s.file.Close(); err != nil {
		return err
	}
	return os.Remove(s.path)
}
