package storage

import (
	"os"
	"testing"
)

func TestIndex_BasicOperations(t *testing.T) {
	ix := NewIndex()

	ix.Put("a", Location{Gen: 1, Offset: 0, Length: 10})
	ix.Put("b", Location{Gen: 1, Offset: 10, Length: 12})

	if loc, ok := ix.Get("a"); !ok || loc.Offset != 0 {
		t.Errorf("get a: got %+v, ok=%v", loc, ok)
	}
	if _, ok := ix.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}

	// Overwrite
	ix.Put("a", Location{Gen: 2, Offset: 0, Length: 10})
	if loc, _ := ix.Get("a"); loc.Gen != 2 {
		t.Errorf("expected overwrite to win, got gen %d", loc.Gen)
	}

	if !ix.Delete("a") {
		t.Error("delete of existing key should report true")
	}
	if ix.Delete("a") {
		t.Error("delete of absent key should report false")
	}
	if ix.Len() != 1 {
		t.Errorf("expected 1 live key, got %d", ix.Len())
	}
}

func TestIndex_RebuildLastWriteWins(t *testing.T) {
	dir, err := os.MkdirTemp("", "kevel-index-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	l, err := OpenLog(dir, 1024*1024, SyncAlways)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	history := []Command{
		{Key: "a", Value: "1"},
		{Key: "b", Value: "2"},
		{Key: "a", Value: "3"},         // supersedes a=1
		{Key: "b", Tombstone: true},    // removes b
		{Key: "c", Tombstone: true},    // remove without prior set
		{Key: "c", Value: "resurrect"}, // set after remove
	}
	var locs []Location
	for _, cmd := range history {
		loc, err := l.Append(cmd)
		if err != nil {
			t.Fatal(err)
		}
		locs = append(locs, loc)
	}

	ix := NewIndex()
	stale, err := ix.Rebuild(l.Replay())
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := ix.Get("b"); ok {
		t.Error("removed key b should have no entry")
	}
	if loc, ok := ix.Get("a"); !ok || loc != locs[2] {
		t.Errorf("a should point at its last set, got %+v", loc)
	}
	if loc, ok := ix.Get("c"); !ok || loc != locs[5] {
		t.Errorf("c should point at the set after its remove, got %+v", loc)
	}

	// Stale: superseded a=1, removed b=2, and both tombstones.
	want := locs[0].Length + locs[1].Length + locs[3].Length + locs[4].Length
	if stale != want {
		t.Errorf("rebuild reported %d stale bytes, want %d", stale, want)
	}
}
