// Package kevel exposes the embeddable surface of the key-value engine: the
// log-structured store for in-process use and the network client for talking
// to a kevel server. Server wiring lives in cmd/kevel-server.
package kevel

import (
	"github.com/matteso1/kevel/internal/client"
	"github.com/matteso1/kevel/internal/storage"
)

// Store is the embeddable log-structured key-value engine.
type Store = storage.Store

// Config configures a Store.
type Config = storage.Config

// Stats reports a Store's runtime statistics.
type Stats = storage.Stats

// Errors surfaced by Store operations.
var (
	ErrKeyNotFound   = storage.ErrKeyNotFound
	ErrCorruptRecord = storage.ErrCorruptRecord
	ErrClosed        = storage.ErrClosed
)

// DefaultConfig returns production-ready store defaults.
func DefaultConfig() Config {
	return storage.DefaultConfig()
}

// Open creates or opens a store in the given directory.
func Open(dir string, config Config) (*Store, error) {
	return storage.Open(dir, config)
}

// Client is a connection to a kevel server.
type Client = client.Client

// ErrRemote wraps a failure message returned by a server.
var ErrRemote = client.ErrRemote

// Dial connects to a kevel server.
func Dial(addr string) (*Client, error) {
	return client.Dial(addr)
}
