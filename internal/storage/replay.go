package storage

import (
	"bufio"
	"io"
	"sort"
)

// Replay streams every command across all segments in ascending
// (generation, offset) order. It is finite and not restartable; the index is
// rebuilt from one replay at engine open.
type Replay struct {
	segments []*segment
	idx      int
	reader   *bufio.Reader
	offset   int64

	cmd Command
	loc Location
	err error
}

// Replay returns an iterator over the whole log.
func (l *Log) Replay() *Replay {
	l.mu.RLock()
	segments := make([]*segment, 0, len(l.segments))
	for _, seg := range l.segments {
		segments = append(segments, seg)
	}
	l.mu.RUnlock()

	sort.Slice(segments, func(i, j int) bool { return segments[i].gen < segments[j].gen })
	return &Replay{segments: segments, idx: -1}
}

// Next advances to the next command. It returns false at the end of the log
// or on error; check Err afterwards.
func (r *Replay) Next() bool {
	for {
		if r.err != nil {
			return false
		}
		if r.reader == nil {
			r.idx++
			if r.idx >= len(r.segments) {
				return false
			}
			seg := r.segments[r.idx]
			r.reader = bufio.NewReaderSize(io.NewSectionReader(seg.file, 0, seg.size.Load()), 64*1024)
			r.offset = 0
		}

		cmd, n, err := readCommand(r.reader)
		if err == io.EOF {
			r.reader = nil
			continue
		}
		if err != nil {
			r.err = err
			return false
		}

		r.cmd = cmd
		r.loc = Location{Gen: r.segments[r.idx].gen, Offset: r.offset, Length: n}
		r.offset += n
		return true
	}
}

// Command returns the command at the current position.
func (r *Replay) Command() Command { return r.cmd }

// Location returns the location of the current command.
func (r *Replay) Location() Location { return r.loc }

// Err returns the first error encountered during iteration.
func (r *Replay) Err() error { return r.err }
