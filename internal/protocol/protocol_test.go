package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestRequest_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"get", Request{Op: OpGet, Key: "hello"}},
		{"set", Request{Op: OpSet, Key: "hello", Value: "world"}},
		{"remove", Request{Op: OpRemove, Key: "hello"}},
		{"empty value", Request{Op: OpSet, Key: "k", Value: ""}},
		{"binary key", Request{Op: OpGet, Key: "\x00\xff\n\t"}},
		{"large value", Request{Op: OpSet, Key: "big", Value: strings.Repeat("x", 1<<16)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteRequest(&buf, tt.req); err != nil {
				t.Fatal(err)
			}
			got, err := ReadRequest(&buf)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.req {
				t.Errorf("got %+v, want %+v", got, tt.req)
			}
			if buf.Len() != 0 {
				t.Errorf("%d bytes left after decoding one frame", buf.Len())
			}
		})
	}
}

func TestResponse_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		resp Response
	}{
		{"ok", Response{Status: StatusOK}},
		{"value", Response{Status: StatusValue, Value: "world"}},
		{"empty value", Response{Status: StatusValue, Value: ""}},
		{"not found", Response{Status: StatusNotFound}},
		{"err", Response{Status: StatusErr, Err: "Key not found"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteResponse(&buf, tt.resp); err != nil {
				t.Fatal(err)
			}
			got, err := ReadResponse(&buf)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.resp {
				t.Errorf("got %+v, want %+v", got, tt.resp)
			}
		})
	}
}

func TestRequest_Pipelined(t *testing.T) {
	var buf bytes.Buffer
	reqs := []Request{
		{Op: OpSet, Key: "a", Value: "1"},
		{Op: OpGet, Key: "a"},
		{Op: OpRemove, Key: "a"},
	}
	for _, req := range reqs {
		if err := WriteRequest(&buf, req); err != nil {
			t.Fatal(err)
		}
	}
	for i, want := range reqs {
		got, err := ReadRequest(&buf)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if got != want {
			t.Errorf("frame %d: got %+v, want %+v", i, got, want)
		}
	}
	if _, err := ReadRequest(&buf); err != io.EOF {
		t.Errorf("expected io.EOF at stream end, got %v", err)
	}
}

func TestReadRequest_CleanClose(t *testing.T) {
	if _, err := ReadRequest(bytes.NewReader(nil)); err != io.EOF {
		t.Errorf("empty stream: expected io.EOF, got %v", err)
	}
}

func TestReadRequest_Malformed(t *testing.T) {
	valid := func() []byte {
		var buf bytes.Buffer
		if err := WriteRequest(&buf, Request{Op: OpSet, Key: "key", Value: "value"}); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}

	tests := []struct {
		name    string
		corrupt func([]byte) []byte
	}{
		{"flipped payload byte", func(b []byte) []byte {
			b[len(b)-1] ^= 0xff
			return b
		}},
		{"flipped checksum", func(b []byte) []byte {
			b[0] ^= 0xff
			return b
		}},
		{"truncated header", func(b []byte) []byte {
			return b[:5]
		}},
		{"truncated payload", func(b []byte) []byte {
			return b[:len(b)-3]
		}},
		{"oversized length prefix", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[4:], MaxFrameSize+1)
			return b
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := tt.corrupt(valid())
			if _, err := ReadRequest(bytes.NewReader(frame)); !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("expected ErrMalformedFrame, got %v", err)
			}
		})
	}
}

func TestReadRequest_BadPayload(t *testing.T) {
	frame := func(payload []byte) []byte {
		var buf bytes.Buffer
		if err := writeFrame(&buf, payload); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}

	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"unknown op", []byte{99, 1, 0, 0, 0, 'k'}},
		{"truncated key length", []byte{byte(OpGet), 1, 0}},
		{"key length exceeds payload", []byte{byte(OpGet), 200, 0, 0, 0, 'k'}},
		{"set missing value", []byte{byte(OpSet), 1, 0, 0, 0, 'k'}},
		{"trailing bytes", append([]byte{byte(OpGet), 1, 0, 0, 0, 'k'}, 0xAA)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadRequest(bytes.NewReader(frame(tt.payload))); !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("expected ErrMalformedFrame, got %v", err)
			}
		})
	}
}

func TestReadResponse_BadPayload(t *testing.T) {
	frame := func(payload []byte) []byte {
		var buf bytes.Buffer
		if err := writeFrame(&buf, payload); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}

	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"unknown status", []byte{99}},
		{"value missing string", []byte{byte(StatusValue)}},
		{"trailing bytes", append([]byte{byte(StatusOK)}, 0xAA)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadResponse(bytes.NewReader(frame(tt.payload))); !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("expected ErrMalformedFrame, got %v", err)
			}
		})
	}
}

func TestWriteRequest_UnknownOp(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRequest(&buf, Request{Op: 0, Key: "k"}); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("expected ErrMalformedFrame, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("rejected request still wrote %d bytes", buf.Len())
	}
}
