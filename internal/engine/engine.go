package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/matteso1/kevel/internal/storage"
)

// Engine is the capability contract every storage backend satisfies.
// Implementations must be safe for concurrent use.
type Engine interface {
	// Set durably stores a key-value pair.
	Set(key, value string) error
	// Get returns the value for a key, with found reporting existence.
	Get(key string) (value string, found bool, err error)
	// Remove deletes a key. Removing an absent key fails with
	// storage.ErrKeyNotFound.
	Remove(key string) error
	// Close releases the backend's resources.
	Close() error
}

var (
	_ Engine = (*storage.Store)(nil)
	_ Engine = (*LevelDB)(nil)
)

// Kind selects a concrete backend.
type Kind string

const (
	// KindKevel is the log-structured engine from internal/storage.
	KindKevel Kind = "kevel"
	// KindLevelDB is the LevelDB-backed engine.
	KindLevelDB Kind = "leveldb"
)

var (
	// ErrUnknownEngine is returned for an unrecognized engine kind.
	ErrUnknownEngine = errors.New("unknown engine kind")

	// ErrEngineMismatch is returned when a data directory was created by a
	// different engine kind. Failing fast here protects the existing data.
	ErrEngineMismatch = errors.New("data directory belongs to a different engine")
)

// markerFile records which engine kind owns a data directory.
const markerFile = "ENGINE"

// ParseKind validates an engine kind supplied by configuration.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case KindKevel:
		return KindKevel, nil
	case KindLevelDB:
		return KindLevelDB, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEngine, s)
	}
}

// Open opens the selected backend at dir. The directory remembers which kind
// first created it; reopening with a different kind fails before any data is
// touched.
func Open(kind Kind, dir string, logger *slog.Logger) (Engine, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if err := checkMarker(dir, kind); err != nil {
		return nil, err
	}

	switch kind {
	case KindKevel:
		config := storage.DefaultConfig()
		config.Logger = logger
		return storage.Open(dir, config)
	case KindLevelDB:
		return OpenLevelDB(filepath.Join(dir, "leveldb"))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, kind)
	}
}

// checkMarker verifies the directory's engine marker, writing it on first
// open.
func checkMarker(dir string, kind Kind) error {
	path := filepath.Join(dir, markerFile)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(kind), 0644); err != nil {
			return fmt.Errorf("write engine marker: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read engine marker: %w", err)
	}

	if existing := Kind(strings.TrimSpace(string(data))); existing != kind {
		return fmt.Errorf("%w: directory has %q, requested %q", ErrEngineMismatch, existing, kind)
	}
	return nil
}
