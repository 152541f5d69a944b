package engine

import (
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/matteso1/kevel/internal/storage"
)

// LevelDB adapts a LevelDB database to the Engine contract. Its on-disk
// format is LevelDB's own; this wrapper only translates the capability
// calls. Writes are synced so durability matches the log-structured engine.
type LevelDB struct {
	db *leveldb.DB

	// Serializes Remove's existence check with its delete so two concurrent
	// removers of the same key cannot both report success.
	mu sync.Mutex
}

var syncWrites = &opt.WriteOptions{Sync: true}

// OpenLevelDB opens or creates a LevelDB database at the given path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

// Set durably stores a key-value pair.
func (e *LevelDB) Set(key, value string) error {
	if err := e.db.Put([]byte(key), []byte(value), syncWrites); err != nil {
		return fmt.Errorf("leveldb set %q: %w", key, err)
	}
	return nil
}

// Get returns the value for a key, with found reporting existence.
func (e *LevelDB) Get(key string) (string, bool, error) {
	data, err := e.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("leveldb get %q: %w", key, err)
	}
	return string(data), true, nil
}

// Remove deletes a key, failing with storage.ErrKeyNotFound when the key is
// absent so both engines expose the same remove semantics.
func (e *LevelDB) Remove(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	has, err := e.db.Has([]byte(key), nil)
	if err != nil {
		return fmt.Errorf("leveldb remove %q: %w", key, err)
	}
	if !has {
		return storage.ErrKeyNotFound
	}
	if err := e.db.Delete([]byte(key), syncWrites); err != nil {
		return fmt.Errorf("leveldb remove %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (e *LevelDB) Close() error {
	return e.db.Close()
}
