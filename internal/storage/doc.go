// Package storage implements a log-structured key-value storage engine.
//
// Writes are appended as immutable commands to generation-numbered segment
// files; an in-memory index maps each live key to the location of its most
// recent Set. Compaction rewrites live data into a fresh segment and drops
// the superseded generations to reclaim space.
//
// Architecture:
//
//	┌────────────────────────────────────────────────────────────────┐
//	│                           Store                                │
//	├────────────────────────────────────────────────────────────────┤
//	│  Write Path:  Set/Remove → Log.Append → Index update           │
//	│  Read Path:   Get → Index lookup → Log.ReadAt                  │
//	├────────────────────────────────────────────────────────────────┤
//	│  Compaction:  live index entries → new segment → drop old gens │
//	└────────────────────────────────────────────────────────────────┘
//
// Key components:
//   - Command: a Set or Remove record, binary encoded with a CRC32 checksum
//   - Log: the segment store: append, random-access read, rotation, replay
//   - Index: in-memory key → Location map, rebuilt by replay at open
//   - Store: composes Log and Index into the engine API and runs compaction
package storage
