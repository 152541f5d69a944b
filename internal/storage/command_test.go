package storage

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestCommand_RoundTrip(t *testing.T) {
	commands := []Command{
		{Key: "a", Value: "1"},
		{Key: "hello", Value: "world"},
		{Key: "empty-value", Value: ""},
		{Key: "gone", Tombstone: true},
		{Key: "binary", Value: string([]byte{0, 1, 2, 255})},
	}

	for _, cmd := range commands {
		data := encodeCommand(cmd)
		if len(data) != cmd.encodedLen() {
			t.Errorf("%q: encoded %d bytes, encodedLen says %d", cmd.Key, len(data), cmd.encodedLen())
		}

		decoded, err := decodeCommand(data)
		if err != nil {
			t.Fatalf("decode %q: %v", cmd.Key, err)
		}
		if decoded != cmd {
			t.Errorf("round-trip mismatch: got %+v, want %+v", decoded, cmd)
		}
	}
}

func TestCommand_DecodeCorrupt(t *testing.T) {
	data := encodeCommand(Command{Key: "k", Value: "v"})

	// Flip a payload byte so the checksum no longer matches.
	corrupted := append([]byte(nil), data...)
	corrupted[len(corrupted)-1] ^= 0xFF

	if _, err := decodeCommand(corrupted); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord for checksum mismatch, got %v", err)
	}

	// Truncated header.
	if _, err := decodeCommand(data[:commandHeaderSize-1]); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord for short record, got %v", err)
	}

	// Truncated body.
	if _, err := decodeCommand(data[:len(data)-1]); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord for truncated body, got %v", err)
	}
}

func TestCommand_ReadStream(t *testing.T) {
	var buf bytes.Buffer
	want := []Command{
		{Key: "a", Value: "1"},
		{Key: "b", Tombstone: true},
		{Key: "c", Value: "3"},
	}
	for _, cmd := range want {
		buf.Write(encodeCommand(cmd))
	}

	reader := bufio.NewReader(&buf)
	for i, expect := range want {
		cmd, n, err := readCommand(reader)
		if err != nil {
			t.Fatalf("read command %d: %v", i, err)
		}
		if cmd != expect {
			t.Errorf("command %d: got %+v, want %+v", i, cmd, expect)
		}
		if n != int64(expect.encodedLen()) {
			t.Errorf("command %d: consumed %d bytes, want %d", i, n, expect.encodedLen())
		}
	}

	if _, _, err := readCommand(reader); err != io.EOF {
		t.Errorf("expected io.EOF at stream end, got %v", err)
	}
}

func TestCommand_ReadPartialTail(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(encodeCommand(Command{Key: "a", Value: "1"}))
	full := encodeCommand(Command{Key: "b", Value: "2"})
	buf.Write(full[:len(full)-3]) // torn write

	reader := bufio.NewReader(&buf)
	if _, _, err := readCommand(reader); err != nil {
		t.Fatalf("first record should read cleanly: %v", err)
	}
	if _, _, err := readCommand(reader); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord for torn record, got %v", err)
	}
}
