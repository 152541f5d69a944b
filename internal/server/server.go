// Package server accepts client connections and serves the key-value
// protocol, dispatching each decoded request to a worker pool so a slow or
// blocking client never stalls other connections.
package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/matteso1/kevel/internal/engine"
	"github.com/matteso1/kevel/internal/metrics"
	"github.com/matteso1/kevel/internal/pool"
	"github.com/matteso1/kevel/internal/protocol"
	"github.com/matteso1/kevel/internal/storage"
)

// Config configures the server's collaborators. Both handles are explicit so
// tests can run servers in isolation; nil values disable them.
type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Server owns the accept loop and the per-connection readers. The accept
// loop and readers only decode framing and enqueue work; all engine calls
// run on the worker pool.
type Server struct {
	engine  engine.Engine
	pool    pool.Pool
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool

	wg sync.WaitGroup // connection readers
}

// New creates a server over the given engine and worker pool.
func New(eng engine.Engine, p pool.Pool, config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		engine:  eng,
		pool:    p,
		logger:  logger,
		metrics: config.Metrics,
		conns:   make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds addr and runs the accept loop until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve runs the accept loop on the given listener. It returns nil once
// Shutdown closes the listener.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting connections, closes the remaining ones, waits for
// their readers, then drains the worker pool. Engine mutations already
// dispatched run to completion before Shutdown returns.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.pool.Shutdown()
	s.logger.Info("server stopped")
}

// track registers a live connection, refusing it when shutting down.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// handleConn decodes one request per round-trip and hands it to the pool,
// waiting for the response to be written before decoding the next frame.
// Protocol errors close this connection only.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	defer s.untrack(conn)

	peer := conn.RemoteAddr().String()
	s.logger.Debug("connection opened", "remote_addr", peer)
	if s.metrics != nil {
		s.metrics.ConnectionOpened()
		defer s.metrics.ConnectionClosed()
	}

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		req, err := protocol.ReadRequest(reader)
		if err == io.EOF {
			s.logger.Debug("connection closed", "remote_addr", peer)
			return
		}
		if err != nil {
			s.logger.Warn("dropping connection", "remote_addr", peer, "error", err)
			return
		}

		var writeErr error
		done := make(chan struct{})
		s.pool.Spawn(func() {
			defer close(done)
			resp := s.handle(req)
			if err := protocol.WriteResponse(writer, resp); err != nil {
				writeErr = err
				return
			}
			writeErr = writer.Flush()
		})
		<-done

		if writeErr != nil {
			// The client went away; the engine mutation, if any, already
			// completed. Only this connection's response is lost.
			s.logger.Debug("response write failed", "remote_addr", peer, "error", writeErr)
			return
		}
	}
}

// handle executes one request against the engine and builds the response.
// A remove of a missing key is an expected failure, surfaced to the client
// without logging; storage errors are logged and counted.
func (s *Server) handle(req protocol.Request) protocol.Response {
	start := time.Now()

	switch req.Op {
	case protocol.OpGet:
		value, found, err := s.engine.Get(req.Key)
		if err != nil {
			return s.failure("get", req.Key, err)
		}
		if s.metrics != nil {
			s.metrics.RecordGet(time.Since(start))
		}
		if !found {
			return protocol.Response{Status: protocol.StatusNotFound}
		}
		return protocol.Response{Status: protocol.StatusValue, Value: value}

	case protocol.OpSet:
		if err := s.engine.Set(req.Key, req.Value); err != nil {
			return s.failure("set", req.Key, err)
		}
		if s.metrics != nil {
			s.metrics.RecordSet(time.Since(start))
		}
		return protocol.Response{Status: protocol.StatusOK}

	case protocol.OpRemove:
		if err := s.engine.Remove(req.Key); err != nil {
			if errors.Is(err, storage.ErrKeyNotFound) {
				return protocol.Response{Status: protocol.StatusErr, Err: err.Error()}
			}
			return s.failure("remove", req.Key, err)
		}
		if s.metrics != nil {
			s.metrics.RecordRemove(time.Since(start))
		}
		return protocol.Response{Status: protocol.StatusOK}
	}

	// ReadRequest only produces the ops above.
	return protocol.Response{Status: protocol.StatusErr, Err: "unsupported operation"}
}

// failure logs a storage failure and converts it to an error response.
func (s *Server) failure(op, key string, err error) protocol.Response {
	s.logger.Error("request failed", "op", op, "key", key, "error", err)
	if s.metrics != nil {
		s.metrics.RecordError()
	}
	return protocol.Response{Status: protocol.StatusErr, Err: err.Error()}
}
