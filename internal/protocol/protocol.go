// Package protocol implements the binary wire format between client and
// server: one length-delimited, checksummed frame per Request or Response.
//
// Frame format (little-endian):
//   - CRC32 checksum (4 bytes, covers the payload)
//   - Payload length (4 bytes)
//   - Payload (variable)
//
// A request payload is an op byte followed by a length-prefixed key and, for
// Set, a length-prefixed value. A response payload is a status byte followed
// by a length-prefixed value (ok with value) or message (err). Round-trips
// are exact for every valid variant. Malformed input fails with
// ErrMalformedFrame, which is fatal to the connection but never to the
// process.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Op identifies a request variant.
type Op byte

const (
	OpGet Op = iota + 1
	OpSet
	OpRemove
)

// Status identifies a response variant.
type Status byte

const (
	// StatusOK is a successful response with no value (Set, Remove).
	StatusOK Status = iota + 1
	// StatusValue is a successful Get carrying the value.
	StatusValue
	// StatusNotFound is a successful Get for an absent key.
	StatusNotFound
	// StatusErr carries a failure message from the server.
	StatusErr
)

// Request is one client command.
type Request struct {
	Op    Op
	Key   string
	Value string // Set only
}

// Response is the server's reply to one Request.
type Response struct {
	Status Status
	Value  string // StatusValue only
	Err    string // StatusErr only
}

const (
	frameHeaderSize = 8 // checksum + payload length

	// MaxFrameSize bounds a single frame. A length prefix beyond this is
	// treated as a malformed frame rather than allocated.
	MaxFrameSize = 1 << 26 // 64MB
)

// ErrMalformedFrame is returned on truncated, oversized, or corrupt input.
var ErrMalformedFrame = errors.New("malformed protocol frame")

// WriteRequest encodes a request as a single frame.
func WriteRequest(w io.Writer, req Request) error {
	switch req.Op {
	case OpGet, OpSet, OpRemove:
	default:
		return fmt.Errorf("%w: unknown op %d", ErrMalformedFrame, req.Op)
	}

	payload := make([]byte, 0, 1+4+len(req.Key)+4+len(req.Value))
	payload = append(payload, byte(req.Op))
	payload = appendString(payload, req.Key)
	if req.Op == OpSet {
		payload = appendString(payload, req.Value)
	}
	return writeFrame(w, payload)
}

// ReadRequest decodes a single request frame. io.EOF before any byte of a
// frame means the peer closed cleanly between round-trips.
func ReadRequest(r io.Reader) (Request, error) {
	payload, err := readFrame(r)
	if err != nil {
		return Request{}, err
	}
	if len(payload) < 1 {
		return Request{}, fmt.Errorf("%w: empty request payload", ErrMalformedFrame)
	}

	req := Request{Op: Op(payload[0])}
	rest := payload[1:]

	req.Key, rest, err = takeString(rest)
	if err != nil {
		return Request{}, err
	}

	switch req.Op {
	case OpGet, OpRemove:
	case OpSet:
		req.Value, rest, err = takeString(rest)
		if err != nil {
			return Request{}, err
		}
	default:
		return Request{}, fmt.Errorf("%w: unknown op %d", ErrMalformedFrame, payload[0])
	}

	if len(rest) != 0 {
		return Request{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformedFrame, len(rest))
	}
	return req, nil
}

// WriteResponse encodes a response as a single frame.
func WriteResponse(w io.Writer, resp Response) error {
	payload := make([]byte, 0, 1+4+len(resp.Value)+len(resp.Err))
	payload = append(payload, byte(resp.Status))
	switch resp.Status {
	case StatusOK, StatusNotFound:
	case StatusValue:
		payload = appendString(payload, resp.Value)
	case StatusErr:
		payload = appendString(payload, resp.Err)
	default:
		return fmt.Errorf("%w: unknown status %d", ErrMalformedFrame, resp.Status)
	}
	return writeFrame(w, payload)
}

// ReadResponse decodes a single response frame.
func ReadResponse(r io.Reader) (Response, error) {
	payload, err := readFrame(r)
	if err != nil {
		return Response{}, err
	}
	if len(payload) < 1 {
		return Response{}, fmt.Errorf("%w: empty response payload", ErrMalformedFrame)
	}

	resp := Response{Status: Status(payload[0])}
	rest := payload[1:]

	switch resp.Status {
	case StatusOK, StatusNotFound:
	case StatusValue:
		resp.Value, rest, err = takeString(rest)
		if err != nil {
			return Response{}, err
		}
	case StatusErr:
		resp.Err, rest, err = takeString(rest)
		if err != nil {
			return Response{}, err
		}
	default:
		return Response{}, fmt.Errorf("%w: unknown status %d", ErrMalformedFrame, payload[0])
	}

	if len(rest) != 0 {
		return Response{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformedFrame, len(rest))
	}
	return resp, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	header := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint32(header[0:], crc32.ChecksumIEEE(payload))
	binary.LittleEndian.PutUint32(header[4:], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: truncated frame header", ErrMalformedFrame)
	}

	checksum := binary.LittleEndian.Uint32(header[0:])
	length := binary.LittleEndian.Uint32(header[4:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds limit", ErrMalformedFrame, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: truncated frame payload", ErrMalformedFrame)
	}
	if crc32.ChecksumIEEE(payload) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrMalformedFrame)
	}
	return payload, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func takeString(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, fmt.Errorf("%w: truncated length prefix", ErrMalformedFrame)
	}
	n := binary.LittleEndian.Uint32(buf)
	if uint32(len(buf)-4) < n {
		return "", nil, fmt.Errorf("%w: string length %d exceeds payload", ErrMalformedFrame, n)
	}
	return string(buf[4 : 4+n]), buf[4+n:], nil
}
