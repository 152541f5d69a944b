package storage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Command is a single log record: either a Set carrying a value or a Remove
// tombstone. Commands are immutable once written.
//
// Record format (little-endian):
//   - CRC32 checksum (4 bytes, covers everything after itself)
//   - Key length (4 bytes)
//   - Value length (4 bytes, 0xFFFFFFFF for a tombstone)
//   - Key (variable)
//   - Value (variable, absent for a tombstone)
type Command struct {
	Key       string
	Value     string
	Tombstone bool
}

const (
	commandHeaderSize = 12 // checksum + key length + value length
	tombstoneLen      = ^uint32(0)

	// MaxKeySize and MaxValueSize bound a single record. Lengths beyond these
	// are rejected as corruption rather than allocated.
	MaxKeySize   = 1 << 20 // 1MB
	MaxValueSize = 1 << 26 // 64MB
)

// Location identifies a command inside the log.
type Location struct {
	Gen    uint64
	Offset int64
	Length int64
}

// encodedLen returns the on-disk size of the command.
func (c Command) encodedLen() int {
	n := commandHeaderSize + len(c.Key)
	if !c.Tombstone {
		n += len(c.Value)
	}
	return n
}

// encodeCommand serializes a command into the record format.
func encodeCommand(c Command) []byte {
	buf := make([]byte, c.encodedLen())

	binary.LittleEndian.PutUint32(buf[4:], uint32(len(c.Key)))
	if c.Tombstone {
		binary.LittleEndian.PutUint32(buf[8:], tombstoneLen)
	} else {
		binary.LittleEndian.PutUint32(buf[8:], uint32(len(c.Value)))
	}
	copy(buf[commandHeaderSize:], c.Key)
	if !c.Tombstone {
		copy(buf[commandHeaderSize+len(c.Key):], c.Value)
	}

	binary.LittleEndian.PutUint32(buf[0:], crc32.ChecksumIEEE(buf[4:]))
	return buf
}

// decodeCommand deserializes a full record, verifying its checksum.
func decodeCommand(buf []byte) (Command, error) {
	if len(buf) < commandHeaderSize {
		return Command{}, fmt.Errorf("%w: record truncated at %d bytes", ErrCorruptRecord, len(buf))
	}

	checksum := binary.LittleEndian.Uint32(buf[0:])
	if crc32.ChecksumIEEE(buf[4:]) != checksum {
		return Command{}, fmt.Errorf("%w: checksum mismatch", ErrCorruptRecord)
	}

	keyLen := binary.LittleEndian.Uint32(buf[4:])
	valueLen := binary.LittleEndian.Uint32(buf[8:])

	cmd := Command{Tombstone: valueLen == tombstoneLen}

	want := commandHeaderSize + int(keyLen)
	if !cmd.Tombstone {
		want += int(valueLen)
	}
	if len(buf) != want {
		return Command{}, fmt.Errorf("%w: record length %d, want %d", ErrCorruptRecord, len(buf), want)
	}

	cmd.Key = string(buf[commandHeaderSize : commandHeaderSize+keyLen])
	if !cmd.Tombstone {
		cmd.Value = string(buf[commandHeaderSize+keyLen:])
	}
	return cmd, nil
}

// readCommand reads the next command from a buffered stream, returning the
// number of bytes consumed. io.EOF at a record boundary means a clean end of
// segment; any partial or invalid record is reported as ErrCorruptRecord so
// the caller can truncate at the previous boundary.
func readCommand(r *bufio.Reader) (Command, int64, error) {
	header := make([]byte, commandHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return Command{}, 0, io.EOF
		}
		return Command{}, 0, fmt.Errorf("%w: partial record header", ErrCorruptRecord)
	}

	keyLen := binary.LittleEndian.Uint32(header[4:])
	valueLen := binary.LittleEndian.Uint32(header[8:])
	if keyLen > MaxKeySize || (valueLen != tombstoneLen && valueLen > MaxValueSize) {
		return Command{}, 0, fmt.Errorf("%w: implausible record lengths", ErrCorruptRecord)
	}

	bodyLen := int(keyLen)
	if valueLen != tombstoneLen {
		bodyLen += int(valueLen)
	}

	buf := make([]byte, commandHeaderSize+bodyLen)
	copy(buf, header)
	if _, err := io.ReadFull(r, buf[commandHeaderSize:]); err != nil {
		return Command{}, 0, fmt.Errorf("%w: partial record body", ErrCorruptRecord)
	}

	cmd, err := decodeCommand(buf)
	if err != nil {
		return Command{}, 0, err
	}
	return cmd, int64(len(buf)), nil
}
