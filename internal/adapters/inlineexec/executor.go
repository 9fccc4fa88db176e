// Package inlineexec is an in-process executor for development and tests. Submitted work is
// queued in memory and run by a Worker in the same process.
package inlineexec

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/domain/model"
)

// Runner executes one delivery. service.TaskRunner implements it.
type Runner interface {
	Run(ctx context.Context, d core.Delivery) error
}

type pending struct {
	delivery  core.Delivery
	notBefore time.Time
}

// Executor is an in-memory core.Executor.
type Executor struct {
	mu       sync.Mutex
	queue    []pending
	statuses map[string]*model.ExecutorStatus
	notify   chan struct{}
	now      func() time.Time
}

var _ core.Executor = (*Executor)(nil)

// New creates an empty Executor. now defaults to time.Now.
func New(now func() time.Time) *Executor {
	if now == nil {
		now = time.Now
	}
	return &Executor{
		statuses: make(map[string]*model.ExecutorStatus),
		notify:   make(chan struct{}, 1),
		now:      now,
	}
}

// Submit queues the request and returns a new handle.
func (e *Executor) Submit(_ context.Context, req core.SubmitRequest) (string, error) {
	if req.Kind == "" {
		return "", errors.New("kind is required")
	}
	handle := uuid.NewString()
	md := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		md[k] = v
	}

	e.mu.Lock()
	e.queue = append(e.queue, pending{
		delivery: core.Delivery{
			Handle:     handle,
			Kind:       req.Kind,
			Parameters: req.Parameters.Clone(),
			Metadata:   md,
		},
		notBefore: e.now().Add(req.Delay),
	})
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
	return handle, nil
}

// QueryStatus returns the last status set for handle, or unknown.
func (e *Executor) QueryStatus(_ context.Context, handle string) (*model.ExecutorStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.statuses[handle]
	if !ok {
		return &model.ExecutorStatus{State: model.ExecutorStateUnknown}, nil
	}
	cp := *st
	cp.Info = append(json.RawMessage(nil), st.Info...)
	return &cp, nil
}

// SetStatus records the status for handle.
func (e *Executor) SetStatus(_ context.Context, handle string, state model.ExecutorState, info json.RawMessage) error {
	if !state.Valid() {
		return errors.New("invalid executor state: " + string(state))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses[handle] = &model.ExecutorStatus{
		State:     state,
		Info:      append(json.RawMessage(nil), info...),
		UpdatedAt: e.now(),
	}
	return nil
}

// Pending returns the number of queued deliveries.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// take pops the first delivery due at now. ignoreDelay pops the head regardless.
func (e *Executor) take(ignoreDelay bool) (core.Delivery, time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return core.Delivery{}, 0, false
	}
	now := e.now()
	next := time.Duration(-1)
	for i, p := range e.queue {
		if ignoreDelay || !p.notBefore.After(now) {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			return p.delivery, 0, true
		}
		if wait := p.notBefore.Sub(now); next < 0 || wait < next {
			next = wait
		}
	}
	return core.Delivery{}, next, false
}

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	Executor *Executor // Required
	Runner   Runner    // Required
	Logger   *slog.Logger
	// Concurrency is the number of goroutines Run starts. Defaults to 1.
	Concurrency int
}

// Worker drains an Executor's queue through a Runner.
type Worker struct {
	exec        *Executor
	runner      Runner
	logger      *slog.Logger
	concurrency int
}

// NewWorker creates a Worker.
func NewWorker(opts WorkerOptions) (*Worker, error) {
	if opts.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("runner is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Worker{
		exec:        opts.Executor,
		runner:      opts.Runner,
		logger:      logger.With("component", "inline_worker"),
		concurrency: opts.Concurrency,
	}, nil
}

// Drain runs every queued delivery synchronously, ignoring submission delays, until the
// queue is empty. It returns the number of deliveries run and the first runner error.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	var (
		n        int
		firstErr error
	)
	for ctx.Err() == nil {
		d, _, ok := w.exec.take(true)
		if !ok {
			break
		}
		n++
		if err := w.runner.Run(ctx, d); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return n, firstErr
}

// Run processes deliveries as they become due until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := range w.concurrency {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()
	return nil
}

func (w *Worker) loop(ctx context.Context, id int) {
	const idle = time.Second
	for {
		d, wait, ok := w.exec.take(false)
		if ok {
			if err := w.runner.Run(ctx, d); err != nil {
				w.logger.WarnContext(ctx, "delivery failed", "worker", id, "handle", d.Handle, "error", err)
			}
			continue
		}
		if wait <= 0 || wait > idle {
			wait = idle
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-w.exec.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}
