// Package cluster runs pair accumulation on remote worker nodes. The
// coordinator side is a TCP Server holding the connected workers and a
// Dispatcher that ships user blocks to them; the worker side is Client.
package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"moviesims/internal/logging"
	"moviesims/pkg/tcp"
	"moviesims/pkg/types"
)

var (
	// ErrWorkerGone is returned when a worker disconnects or is unknown.
	ErrWorkerGone = errors.New("cluster: worker not connected")
	// ErrSendQueueFull means the worker's outgoing queue is saturated.
	ErrSendQueueFull = errors.New("cluster: worker send queue full")
	// ErrHandshake is returned when a peer does not complete HELLO/ACK.
	ErrHandshake = errors.New("cluster: handshake failed")
)

const (
	handshakeTimeout = 10 * time.Second
	sendQueueSize    = 16
	incomingSize     = 100
)

// Worker is one connected worker node as the coordinator sees it.
type Worker struct {
	ID          string
	Addr        string
	Concurrency int
	State       types.WorkerState
	LastSeen    time.Time

	conn   net.Conn
	sendCh chan types.Message
	done   chan struct{}
}

// Done is closed once the worker's connection is gone.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Server accepts worker connections and fans their messages into Incoming.
type Server struct {
	// Incoming carries every non-heartbeat message received from a worker.
	Incoming chan types.Envelope

	registry Registry
	log      *log.Logger

	mu      sync.RWMutex
	workers map[string]*Worker
}

// NewServer returns an empty server. reg may be nil.
func NewServer(reg Registry) *Server {
	return &Server{
		Incoming: make(chan types.Envelope, incomingSize),
		registry: reg,
		log:      logging.WithPrefix("coord"),
		workers:  make(map[string]*Worker),
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("cluster: listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. It always closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("listening for workers", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("cluster: accept: %w", err)
		}
		s.log.Debug("new connection", "remote", conn.RemoteAddr().String())
		go s.handleConnection(ctx, conn)
	}
}

// handshake waits for HELLO and answers with an ACK carrying a fresh worker id.
func (s *Server) handshake(conn net.Conn) (*Worker, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	msg, err := tcp.ReadMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: reading HELLO: %w", ErrHandshake, err)
	}
	if msg.Type != types.MsgHello {
		return nil, fmt.Errorf("%w: expected HELLO, got %q", ErrHandshake, msg.Type)
	}
	var hello types.Hello
	if err := json.Unmarshal(msg.Data, &hello); err != nil {
		return nil, fmt.Errorf("%w: parsing HELLO: %w", ErrHandshake, err)
	}

	id := uuid.New().String()
	ack, err := types.NewMessage(types.MsgAck, types.Ack{WorkerID: id})
	if err != nil {
		return nil, err
	}
	if err := tcp.WriteMessage(conn, ack); err != nil {
		return nil, fmt.Errorf("%w: sending ACK: %w", ErrHandshake, err)
	}

	return &Worker{
		ID:          id,
		Addr:        conn.RemoteAddr().String(),
		Concurrency: hello.Concurrency,
		State:       types.WorkerIdle,
		LastSeen:    time.Now(),
		conn:        conn,
		sendCh:      make(chan types.Message, sendQueueSize),
		done:        make(chan struct{}),
	}, nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	w, err := s.handshake(conn)
	if err != nil {
		s.log.Warn("rejected connection", "remote", conn.RemoteAddr().String(), "err", err)
		return
	}

	s.mu.Lock()
	s.workers[w.ID] = w
	s.mu.Unlock()
	s.register(ctx, w)
	s.log.Info("worker registered", "worker", w.ID, "addr", w.Addr, "concurrency", w.Concurrency)

	connCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.drop(w)
	}()
	go s.writeLoop(connCtx, w)

	// closing the connection unblocks the read below on shutdown
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		msg, err := tcp.ReadMessage(conn)
		if err != nil {
			if connCtx.Err() == nil {
				s.log.Info("worker disconnected", "worker", w.ID, "err", err)
			}
			return
		}

		if msg.Type == types.MsgHeartbeat {
			s.heartbeat(connCtx, w, msg)
			continue
		}

		select {
		case s.Incoming <- types.Envelope{WorkerID: w.ID, Msg: msg}:
		case <-connCtx.Done():
			return
		}
	}
}

// writeLoop is the only writer on the connection once the handshake is done.
func (s *Server) writeLoop(ctx context.Context, w *Worker) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-w.sendCh:
			if err := tcp.WriteMessage(w.conn, msg); err != nil {
				s.log.Warn("write to worker failed", "worker", w.ID, "err", err)
				w.conn.Close()
				return
			}
		}
	}
}

func (s *Server) heartbeat(ctx context.Context, w *Worker, msg types.Message) {
	var hb types.Heartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		s.log.Warn("bad heartbeat", "worker", w.ID, "err", err)
		return
	}

	now := time.Now()
	s.mu.Lock()
	w.LastSeen = now
	state := w.State
	s.mu.Unlock()

	if s.registry != nil {
		if err := s.registry.Touch(ctx, w.ID, state, now); err != nil {
			s.log.Warn("registry refresh failed", "worker", w.ID, "err", err)
		}
	}
}

func (s *Server) register(ctx context.Context, w *Worker) {
	if s.registry == nil {
		return
	}
	info := WorkerInfo{ID: w.ID, Addr: w.Addr, Concurrency: w.Concurrency, State: w.State, LastSeen: w.LastSeen}
	if err := s.registry.Register(ctx, info); err != nil {
		s.log.Warn("registry write failed", "worker", w.ID, "err", err)
	}
}

func (s *Server) drop(w *Worker) {
	s.mu.Lock()
	delete(s.workers, w.ID)
	w.State = types.WorkerDisconnected
	s.mu.Unlock()
	close(w.done)

	if s.registry != nil {
		// the connection context is already gone
		ctx, cancel := context.WithTimeout(context.Background(), redisWriteTimeout)
		defer cancel()
		if err := s.registry.Remove(ctx, w.ID); err != nil {
			s.log.Warn("registry removal failed", "worker", w.ID, "err", err)
		}
	}
}

// Send queues msg for the worker without blocking.
func (s *Server) Send(id string, msg types.Message) error {
	w, ok := s.Worker(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkerGone, id)
	}
	select {
	case <-w.done:
		return fmt.Errorf("%w: %s", ErrWorkerGone, id)
	default:
	}
	select {
	case w.sendCh <- msg:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrSendQueueFull, id)
	}
}

// Worker returns a connected worker by id.
func (s *Server) Worker(id string) (*Worker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[id]
	return w, ok
}

// SetState updates a worker's state. Unknown ids are ignored.
func (s *Server) SetState(id string, state types.WorkerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[id]; ok {
		w.State = state
	}
}

// IdleWorkers returns the ids of idle workers, sorted.
func (s *Server) IdleWorkers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.workers))
	for id, w := range s.workers {
		if w.State == types.WorkerIdle {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// WorkerCount is the number of connected workers.
func (s *Server) WorkerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workers)
}

// Snapshot lists every connected worker, sorted by id.
func (s *Server) Snapshot() []WorkerInfo {
	s.mu.RLock()
	out := make([]WorkerInfo, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, WorkerInfo{
			ID:          w.ID,
			Addr:        w.Addr,
			Concurrency: w.Concurrency,
			State:       w.State,
			LastSeen:    w.LastSeen,
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WaitForWorkers blocks until at least n workers are connected.
func (s *Server) WaitForWorkers(ctx context.Context, n int) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for s.WorkerCount() < n {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
