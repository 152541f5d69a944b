package kevel_test

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"testing"

	"github.com/matteso1/kevel"
	"github.com/matteso1/kevel/internal/engine"
	"github.com/matteso1/kevel/internal/pool"
	"github.com/matteso1/kevel/internal/server"
)

// Integration tests verify end-to-end behavior across components.

func TestE2E_EmbeddedLifecycle(t *testing.T) {
	dir, err := os.MkdirTemp("", "kevel-e2e-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	s, err := kevel.Open(dir, kevel.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Set("a", "1"); err != nil {
		t.Fatal(err)
	}
	if value, _, _ := s.Get("a"); value != "1" {
		t.Fatalf("got %q, want 1", value)
	}

	if err := s.Set("a", "2"); err != nil {
		t.Fatal(err)
	}
	if value, _, _ := s.Get("a"); value != "2" {
		t.Fatalf("got %q, want 2", value)
	}

	if err := s.Remove("a"); err != nil {
		t.Fatal(err)
	}
	if _, found, err := s.Get("a"); err != nil || found {
		t.Fatalf("after remove: found=%v err=%v", found, err)
	}

	if err := s.Remove("a"); !errors.Is(err, kevel.ErrKeyNotFound) {
		t.Fatalf("second remove: expected ErrKeyNotFound, got %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening reproduces the final state.
	s, err = kevel.Open(dir, kevel.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, found, err := s.Get("a"); err != nil || found {
		t.Errorf("after reopen: found=%v err=%v", found, err)
	}
	if err := s.Remove("a"); !errors.Is(err, kevel.ErrKeyNotFound) {
		t.Errorf("remove after reopen: expected ErrKeyNotFound, got %v", err)
	}
}

func TestE2E_ClientServer(t *testing.T) {
	dir, err := os.MkdirTemp("", "kevel-e2e-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	eng, err := engine.Open(engine.KindKevel, dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	p, err := pool.New("stealing", 4)
	if err != nil {
		t.Fatal(err)
	}

	srv := server.New(eng, p, server.Config{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve(ln) }()

	c, err := kevel.Dial(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Set("a", "1"); err != nil {
		t.Fatal(err)
	}
	if value, _, _ := c.Get("a"); value != "1" {
		t.Fatalf("got %q, want 1", value)
	}
	if err := c.Set("a", "2"); err != nil {
		t.Fatal(err)
	}
	if value, _, _ := c.Get("a"); value != "2" {
		t.Fatalf("got %q, want 2", value)
	}
	if err := c.Remove("a"); err != nil {
		t.Fatal(err)
	}
	if _, found, err := c.Get("a"); err != nil || found {
		t.Fatalf("after remove: found=%v err=%v", found, err)
	}
	if err := c.Remove("a"); !errors.Is(err, kevel.ErrRemote) {
		t.Fatalf("second remove: expected ErrRemote, got %v", err)
	}

	c.Close()
	srv.Shutdown()
	if err := <-serveDone; err != nil {
		t.Fatal(err)
	}
	if err := eng.Close(); err != nil {
		t.Fatal(err)
	}

	// The state written over the network survives a fresh embedded open.
	s, err := kevel.Open(dir, kevel.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, found, err := s.Get("a"); err != nil || found {
		t.Errorf("after reopen: found=%v err=%v", found, err)
	}
}

func TestE2E_CompactionUnderLoad(t *testing.T) {
	dir, err := os.MkdirTemp("", "kevel-e2e-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	config := kevel.DefaultConfig()
	config.SegmentSize = 4096
	config.CompactionMinBytes = 8192
	config.CompactionRatio = 0.4
	s, err := kevel.Open(dir, config)
	if err != nil {
		t.Fatal(err)
	}

	// A write-heavy churn over a small key space, with concurrent readers.
	stop := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for i := 0; i < 32; i++ {
					if _, _, err := s.Get(fmt.Sprintf("key-%02d", i)); err != nil {
						t.Errorf("get: %v", err)
						return
					}
				}
			}
		}()
	}

	final := make(map[string]string)
	for round := 0; round < 50; round++ {
		for i := 0; i < 32; i++ {
			key := fmt.Sprintf("key-%02d", i)
			value := fmt.Sprintf("round-%02d-%02d", round, i)
			if err := s.Set(key, value); err != nil {
				t.Fatal(err)
			}
			final[key] = value
		}
	}
	close(stop)
	readers.Wait()

	if s.Stats().Compactions == 0 {
		t.Error("expected compaction to have run under churn")
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = kevel.Open(dir, config)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for key, want := range final {
		value, found, err := s.Get(key)
		if err != nil {
			t.Fatal(err)
		}
		if !found || value != want {
			t.Errorf("%s: got %q found=%v, want %q", key, value, found, want)
		}
	}
}
