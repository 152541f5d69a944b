// Package client implements the network client for the key-value protocol:
// one request/response round-trip per call over a buffered TCP stream.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"net"

	"github.com/matteso1/kevel/internal/protocol"
)

// ErrRemote wraps a failure message returned by the server.
var ErrRemote = errors.New("server error")

// Client is a connection to a kevel server. It is not safe for concurrent
// use; callers needing concurrency open one client per goroutine.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

// Dial connects to a server.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}, nil
}

// Get returns the value for a key, with found reporting existence.
func (c *Client) Get(key string) (string, bool, error) {
	resp, err := c.roundTrip(protocol.Request{Op: protocol.OpGet, Key: key})
	if err != nil {
		return "", false, err
	}
	switch resp.Status {
	case protocol.StatusValue:
		return resp.Value, true, nil
	case protocol.StatusNotFound:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("%w: unexpected get response status %d", protocol.ErrMalformedFrame, resp.Status)
	}
}

// Set stores a key-value pair on the server.
func (c *Client) Set(key, value string) error {
	resp, err := c.roundTrip(protocol.Request{Op: protocol.OpSet, Key: key, Value: value})
	if err != nil {
		return err
	}
	if resp.Status != protocol.StatusOK {
		return fmt.Errorf("%w: unexpected set response status %d", protocol.ErrMalformedFrame, resp.Status)
	}
	return nil
}

// Remove deletes a key on the server. Removing an absent key fails with an
// ErrRemote carrying the server's message.
func (c *Client) Remove(key string) error {
	resp, err := c.roundTrip(protocol.Request{Op: protocol.OpRemove, Key: key})
	if err != nil {
		return err
	}
	if resp.Status != protocol.StatusOK {
		return fmt.Errorf("%w: unexpected remove response status %d", protocol.ErrMalformedFrame, resp.Status)
	}
	return nil
}

// roundTrip sends one request and reads one response, translating error
// responses into ErrRemote.
func (c *Client) roundTrip(req protocol.Request) (protocol.Response, error) {
	if err := protocol.WriteRequest(c.writer, req); err != nil {
		return protocol.Response{}, err
	}
	if err := c.writer.Flush(); err != nil {
		return protocol.Response{}, err
	}

	resp, err := protocol.ReadResponse(c.reader)
	if err != nil {
		return protocol.Response{}, err
	}
	if resp.Status == protocol.StatusErr {
		return protocol.Response{}, fmt.Errorf("%w: %s", ErrRemote, resp.Err)
	}
	return resp, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
