package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"moviesims/internal/engine"
	"moviesims/internal/logging"
	"moviesims/pkg/tcp"
	"moviesims/pkg/types"
)

// ClientState is the lifecycle of a worker connection.
type ClientState int32

const (
	StDisconnected ClientState = iota
	StHandshaking
	StReady
	StWorking
)

// Client is the worker side of the cluster protocol.
type Client struct {
	ID          string
	Concurrency int
	// HeartbeatInterval defaults to 5s.
	HeartbeatInterval time.Duration

	conn   net.Conn
	connMu sync.Mutex
	state  atomic.Int32
	busy   atomic.Bool
	log    *log.Logger
}

// NewClient returns a disconnected client. concurrency < 1 uses every CPU.
func NewClient(concurrency int) *Client {
	if concurrency < 1 {
		concurrency = runtime.NumCPU()
	}
	return &Client{
		Concurrency:       concurrency,
		HeartbeatInterval: 5 * time.Second,
		log:               logging.WithPrefix("worker"),
	}
}

// State reports the current lifecycle state.
func (c *Client) State() ClientState { return ClientState(c.state.Load()) }

// Dial connects to the coordinator and completes the handshake.
func (c *Client) Dial(ctx context.Context, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("cluster: dialing %s: %w", addr, err)
	}
	if _, err := c.HandShake(conn); err != nil {
		conn.Close()
		return err
	}
	return nil
}

// HandShake sends HELLO on conn and waits for the ACK with the assigned id.
func (c *Client) HandShake(conn net.Conn) (string, error) {
	c.state.Store(int32(StHandshaking))

	hello, err := types.NewMessage(types.MsgHello, types.Hello{Concurrency: c.Concurrency})
	if err != nil {
		return "", err
	}
	if err := tcp.WriteMessage(conn, hello); err != nil {
		c.state.Store(int32(StDisconnected))
		return "", fmt.Errorf("%w: sending HELLO: %w", ErrHandshake, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	msg, err := tcp.ReadMessage(conn)
	if err != nil {
		c.state.Store(int32(StDisconnected))
		return "", fmt.Errorf("%w: reading ACK: %w", ErrHandshake, err)
	}
	if msg.Type != types.MsgAck {
		c.state.Store(int32(StDisconnected))
		return "", fmt.Errorf("%w: expected ACK, got %q", ErrHandshake, msg.Type)
	}
	var ack types.Ack
	if err := json.Unmarshal(msg.Data, &ack); err != nil {
		c.state.Store(int32(StDisconnected))
		return "", fmt.Errorf("%w: parsing ACK: %w", ErrHandshake, err)
	}
	if ack.WorkerID == "" {
		c.state.Store(int32(StDisconnected))
		return "", fmt.Errorf("%w: ACK without worker_id", ErrHandshake)
	}

	c.ID = ack.WorkerID
	c.conn = conn
	c.state.Store(int32(StReady))
	c.log = c.log.With("id", c.ID)
	return c.ID, nil
}

func (c *Client) send(msg types.Message) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return errors.New("cluster: client not connected")
	}
	return tcp.WriteMessage(c.conn, msg)
}

// Run serves tasks and sends heartbeats until ctx is cancelled or the
// coordinator hangs up. Cancellation returns nil.
func (c *Client) Run(ctx context.Context) error {
	if c.conn == nil || c.ID == "" {
		return errors.New("cluster: Run before handshake")
	}
	defer c.state.Store(int32(StDisconnected))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.heartbeatLoop(gctx) })
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		c.conn.Close()
		return nil
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Client) heartbeatLoop(ctx context.Context) error {
	interval := c.HeartbeatInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			msg, err := types.NewMessage(types.MsgHeartbeat, types.Heartbeat{WorkerID: c.ID, Busy: c.busy.Load()})
			if err != nil {
				return err
			}
			if err := c.send(msg); err != nil {
				return fmt.Errorf("cluster: heartbeat: %w", err)
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	for {
		msg, err := tcp.ReadMessage(c.conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("cluster: reading from coordinator: %w", err)
		}

		switch msg.Type {
		case types.MsgTask:
			var task types.Task
			if err := json.Unmarshal(msg.Data, &task); err != nil {
				c.log.Warn("bad TASK", "err", err)
				continue
			}
			if err := c.handleTask(ctx, task); err != nil {
				return err
			}
		default:
			c.log.Debug("ignoring message", "type", msg.Type)
		}
	}
}

// handleTask accumulates one block and answers with its partial table.
func (c *Client) handleTask(ctx context.Context, task types.Task) error {
	c.busy.Store(true)
	c.state.Store(int32(StWorking))
	defer func() {
		c.busy.Store(false)
		c.state.Store(int32(StReady))
	}()

	t0 := time.Now()
	res := types.Result{JobID: task.JobID, TaskID: task.TaskID, WorkerID: c.ID}
	table, err := engine.LocalExecutor{Workers: c.Concurrency}.Accumulate(ctx, task.Users)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		res.Error = err.Error()
	} else {
		res.Pairs = table.Entries()
	}
	c.log.Debug("task done", "task", task.TaskID, "users", len(task.Users), "pairs", len(res.Pairs), "took", time.Since(t0))

	msg, err := types.NewMessage(types.MsgResult, res)
	if err != nil {
		return err
	}
	if err := c.send(msg); err != nil {
		return fmt.Errorf("cluster: sending result: %w", err)
	}
	return nil
}
