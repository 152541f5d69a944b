package storage

import "errors"

var (
	// ErrKeyNotFound is returned by Remove when the key has no index entry.
	ErrKeyNotFound = errors.New("key not found")

	// ErrCorruptRecord is returned when log bytes do not decode to a valid command.
	ErrCorruptRecord = errors.New("corrupt log record")

	// ErrStaleLocation is returned by Log.ReadAt when the generation has been
	// compacted away. Callers re-resolve the key through the index and retry.
	ErrStaleLocation = errors.New("stale log location")

	// ErrClosed is returned on any operation against a closed store.
	ErrClosed = errors.New("store is closed")
)
