package httpapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"moviesims/internal/engine"
	"moviesims/internal/logging"
)

// ErrRunInProgress is returned by Start while another run is active.
var ErrRunInProgress = errors.New("httpapi: a run is already in progress")

// RunFunc performs one full pipeline run.
type RunFunc func(ctx context.Context) (*engine.Report, engine.Stats, error)

// RunState is the lifecycle of a run.
type RunState string

const (
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
)

// Run is the public view of one run.
type Run struct {
	ID       string        `json:"id"`
	State    RunState      `json:"state"`
	Started  time.Time     `json:"started"`
	Finished *time.Time    `json:"finished,omitempty"`
	Stats    *engine.Stats `json:"stats,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Runner executes at most one run at a time and keeps the latest report.
type Runner struct {
	fn   RunFunc
	base context.Context

	mu     sync.RWMutex
	runs   map[string]*Run
	active string
	latest *engine.Report
	wg     sync.WaitGroup
}

// NewRunner runs fn on contexts derived from base.
func NewRunner(base context.Context, fn RunFunc) *Runner {
	return &Runner{fn: fn, base: base, runs: make(map[string]*Run)}
}

// Start launches a run in the background and returns its id.
func (r *Runner) Start() (string, error) {
	r.mu.Lock()
	if r.active != "" {
		r.mu.Unlock()
		return "", ErrRunInProgress
	}
	id := uuid.New().String()
	r.runs[id] = &Run{ID: id, State: RunRunning, Started: time.Now()}
	r.active = id
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		rep, st, err := r.fn(r.base)
		r.finish(id, rep, st, err)
	}()
	return id, nil
}

func (r *Runner) finish(id string, rep *engine.Report, st engine.Stats, err error) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.runs[id]
	run.Finished = &now
	run.Stats = &st
	r.active = ""
	if err != nil {
		run.State = RunFailed
		run.Error = err.Error()
		logging.Error("run failed", "run", id, "err", err)
		return
	}
	run.State = RunSucceeded
	r.latest = rep
	logging.Info("run finished", "run", id, "records", st.Records)
}

// Get returns a copy of the run.
func (r *Runner) Get(id string) (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// Latest is the report of the most recent successful run, or nil.
func (r *Runner) Latest() *engine.Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Wait blocks until every started run has finished.
func (r *Runner) Wait() { r.wg.Wait() }
