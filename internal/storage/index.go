package storage

import "sync"

// IndexEntry pairs a key with the location of its most recent Set.
type IndexEntry struct {
	Key string
	Loc Location
}

// Index is the in-memory mapping from key to the location of its latest Set
// command. It has no persistence of its own and is always reconstructible by
// replaying the log. Lookups may run concurrently; mutation is serialized by
// the Store's writer lock, with the internal RWMutex keeping readers
// consistent.
type Index struct {
	mu      sync.RWMutex
	entries map[string]Location
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]Location)}
}

// Rebuild consumes a replay in log order: Sets insert or overwrite, Removes
// delete. Last write wins. It returns the number of stale bytes observed
// (superseded Sets, orphaned Sets, and every tombstone) so the store's stale
// counter survives a reopen.
func (ix *Index) Rebuild(replay *Replay) (int64, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var stale int64
	for replay.Next() {
		cmd, loc := replay.Command(), replay.Location()
		if prior, ok := ix.entries[cmd.Key]; ok {
			stale += prior.Length
		}
		if cmd.Tombstone {
			delete(ix.entries, cmd.Key)
			stale += loc.Length
		} else {
			ix.entries[cmd.Key] = loc
		}
	}
	return stale, replay.Err()
}

// Get returns the location for a key, if any.
func (ix *Index) Get(key string) (Location, bool) {
	ix.mu.RLock()
	loc, ok := ix.entries[key]
	ix.mu.RUnlock()
	return loc, ok
}

// Put inserts or overwrites the entry for a key.
func (ix *Index) Put(key string, loc Location) {
	ix.mu.Lock()
	ix.entries[key] = loc
	ix.mu.Unlock()
}

// Delete removes the entry for a key, reporting whether one existed.
func (ix *Index) Delete(key string) bool {
	ix.mu.Lock()
	_, ok := ix.entries[key]
	delete(ix.entries, key)
	ix.mu.Unlock()
	return ok
}

// Len returns the number of live keys.
func (ix *Index) Len() int {
	ix.mu.RLock()
	n := len(ix.entries)
	ix.mu.RUnlock()
	return n
}

// Entries returns a snapshot of all live entries.
func (ix *Index) Entries() []IndexEntry {
	ix.mu.RLock()
	entries := make([]IndexEntry, 0, len(ix.entries))
	for key, loc := range ix.entries {
		entries = append(entries, IndexEntry{Key: key, Loc: loc})
	}
	ix.mu.RUnlock()
	return entries
}

// Swap atomically replaces the locations of the given entries. Keys absent
// from the index are skipped; compaction only ever moves entries it
// snapshotted under the writer lock, so nothing else can have changed.
func (ix *Index) Swap(entries []IndexEntry) {
	ix.mu.Lock()
	for _, ent := range entries {
		if _, ok := ix.entries[ent.Key]; ok {
			ix.entries[ent.Key] = ent.Loc
		}
	}
	ix.mu.Unlock()
}
