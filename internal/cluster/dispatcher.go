package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"moviesims/internal/engine"
	"moviesims/internal/logging"
	"moviesims/pkg/types"
)

var (
	// ErrNoWorkers is returned when no idle worker is connected and local
	// fallback is disabled.
	ErrNoWorkers = errors.New("cluster: no idle workers")
	// ErrTaskTimeout means a worker did not answer a task in time.
	ErrTaskTimeout = errors.New("cluster: task timed out")
	// ErrRemote wraps an error reported by a worker in its RESULT.
	ErrRemote = errors.New("cluster: worker reported error")
)

// Dispatcher is an engine.Executor that accumulates user blocks on remote
// workers. Partial tables are merged in block order, so the outcome does not
// depend on which worker handled which block.
type Dispatcher struct {
	server    *Server
	timeout   time.Duration
	blockSize int
	// LocalFallback runs the whole job in process when no worker is idle.
	LocalFallback bool

	log *log.Logger

	mu      sync.Mutex
	pending map[string]chan types.Result
}

// NewDispatcher starts consuming srv.Incoming until ctx is cancelled.
// blockSize 0 picks one automatically.
func NewDispatcher(ctx context.Context, srv *Server, timeout time.Duration, blockSize int) *Dispatcher {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	d := &Dispatcher{
		server:    srv,
		timeout:   timeout,
		blockSize: blockSize,
		log:       logging.WithPrefix("dispatch"),
		pending:   make(map[string]chan types.Result),
	}
	go d.processIncoming(ctx)
	return d
}

// Accumulate implements engine.Executor.
func (d *Dispatcher) Accumulate(ctx context.Context, users []types.UserRatings) (*engine.PairTable, error) {
	idle := d.server.IdleWorkers()
	if len(idle) == 0 {
		if !d.LocalFallback {
			return nil, ErrNoWorkers
		}
		d.log.Warn("no idle workers, accumulating locally")
		return engine.LocalExecutor{Workers: 1, BlockSize: d.blockSize}.Accumulate(ctx, users)
	}

	blocks := engine.ChunkUsers(users, engine.BlockSizeFor(len(users), len(idle), d.blockSize))
	jobID := uuid.New().String()
	d.log.Info("dispatching job", "job", jobID, "users", len(users), "blocks", len(blocks), "workers", len(idle))

	partials := make([]*engine.PairTable, len(blocks))
	next := make(chan int)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(next)
		for i := range blocks {
			select {
			case next <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for _, wid := range idle {
		g.Go(func() error {
			d.server.SetState(wid, types.WorkerBusy)
			defer d.server.SetState(wid, types.WorkerIdle)

			remote := true
			for i := range next {
				if remote {
					pt, err := d.runTask(gctx, wid, jobID, blocks[i])
					if err == nil {
						partials[i] = pt
						continue
					}
					if gctx.Err() != nil {
						return gctx.Err()
					}
					d.log.Warn("task failed, accumulating block locally", "job", jobID, "worker", wid, "block", i, "err", err)
					// a worker that is gone or silent gets no further tasks
					if !errors.Is(err, ErrRemote) {
						remote = false
					}
				}
				partials[i] = engine.AccumulateBlock(blocks[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	global := engine.NewPairTable()
	for _, p := range partials {
		global.Merge(p)
	}
	d.log.Info("job merged", "job", jobID, "pair_keys", global.Len())
	return global, nil
}

// runTask sends one block to a worker and waits for its RESULT.
func (d *Dispatcher) runTask(ctx context.Context, workerID, jobID string, users []types.UserRatings) (*engine.PairTable, error) {
	w, ok := d.server.Worker(workerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkerGone, workerID)
	}

	taskID := uuid.New().String()
	msg, err := types.NewMessage(types.MsgTask, types.Task{JobID: jobID, TaskID: taskID, Users: users})
	if err != nil {
		return nil, err
	}

	ch := make(chan types.Result, 1)
	d.mu.Lock()
	d.pending[taskID] = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, taskID)
		d.mu.Unlock()
	}()

	if err := d.server.Send(workerID, msg); err != nil {
		return nil, err
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrRemote, res.Error)
		}
		pt := engine.NewPairTable()
		pt.MergeEntries(res.Pairs)
		return pt, nil
	case <-w.Done():
		return nil, fmt.Errorf("%w: %s", ErrWorkerGone, workerID)
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", ErrTaskTimeout, d.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// processIncoming routes RESULT messages to the task waiting for them.
func (d *Dispatcher) processIncoming(ctx context.Context) {
	for {
		var env types.Envelope
		select {
		case <-ctx.Done():
			return
		case env = <-d.server.Incoming:
		}

		switch env.Msg.Type {
		case types.MsgResult:
			var res types.Result
			if err := json.Unmarshal(env.Msg.Data, &res); err != nil {
				d.log.Warn("bad RESULT", "worker", env.WorkerID, "err", err)
				continue
			}
			d.mu.Lock()
			ch, ok := d.pending[res.TaskID]
			d.mu.Unlock()
			if !ok {
				d.log.Debug("late or unknown result dropped", "task", res.TaskID, "worker", env.WorkerID)
				continue
			}
			select {
			case ch <- res:
			default:
			}
		default:
			d.log.Debug("ignoring message", "type", env.Msg.Type, "worker", env.WorkerID)
		}
	}
}
