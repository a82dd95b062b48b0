// Package pool runs queued tasks on a fixed number of worker goroutines and
// supports a cooperative stop that lets in-flight tasks finish while tasks
// still waiting in the queue are skipped.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNoTaskFunction is returned by Launch when no task function is set.
	ErrNoTaskFunction = errors.New("pool: task function not set")
	// ErrNotLaunched is returned when work is queued before Launch.
	ErrNotLaunched = errors.New("pool: not launched")
	// ErrClosed is returned once the pool has drained and shut down.
	ErrClosed = errors.New("pool: closed")
)

// TaskFunc processes one queued item.
type TaskFunc[T, R any] func(ctx context.Context, data T) (R, error)

// CompletedFunc observes a successful task. It runs on the worker goroutine
// before the task stops counting as in flight, so work it queues keeps the
// pool from draining. Its context carries the pool's values but neither the
// task deadline nor the cancellation of the launch context.
type CompletedFunc[T, R any] func(ctx context.Context, data T, result R)

// Config controls concurrency and per-task deadlines.
type Config struct {
	MaxConcurrency int
	// Timeout bounds a single task. Zero disables the deadline.
	Timeout time.Duration
}

// State is the lifecycle phase of a Pool.
type State string

// Pool states.
const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDraining State = "draining"
	StateClosed   State = "closed"
)

// Stats is a snapshot of task accounting.
type Stats struct {
	Queued    int
	InFlight  int
	Succeeded int
	Failed    int
	Skipped   int
}

// Pool is a bounded FIFO worker pool.
type Pool[T, R any] struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []T
	inFlight  int
	launched  bool
	stopping  bool
	closed    bool
	task      TaskFunc[T, R]
	completed CompletedFunc[T, R]
	onStarted func(T)
	onFailed  func(T, error)
	onSkipped func(T)
	stats     Stats

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// New returns an idle pool.
func New[T, R any](cfg Config, logger *zap.Logger) *Pool[T, R] {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool[T, R]{cfg: cfg, logger: logger}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// SetTaskFunction installs the task handler. After Launch the new handler is
// used for every task dequeued from then on.
func (p *Pool[T, R]) SetTaskFunction(fn TaskFunc[T, R]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.task = fn
}

// SetTaskCompletedCallback installs the success callback.
func (p *Pool[T, R]) SetTaskCompletedCallback(fn CompletedFunc[T, R]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = fn
}

// OnTaskStarted registers a hook called before each task runs.
func (p *Pool[T, R]) OnTaskStarted(fn func(T)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStarted = fn
}

// OnTaskFailed registers a hook called when a task returns an error or panics.
func (p *Pool[T, R]) OnTaskFailed(fn func(T, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFailed = fn
}

// OnTaskSkipped registers a hook called for each queued task dropped
// because the pool was stopping when it was dequeued.
func (p *Pool[T, R]) OnTaskSkipped(fn func(T)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSkipped = fn
}

// Launch starts the workers. Calling it again on a running pool is a no-op.
// Cancelling ctx stops the pool.
func (p *Pool[T, R]) Launch(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return ErrClosed
	case p.launched:
		return nil
	case p.task == nil:
		return ErrNoTaskFunction
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.launched = true
	for i := 0; i < p.cfg.MaxConcurrency; i++ {
		p.wg.Add(1)
		go p.work()
	}
	go p.watch(ctx)
	p.logger.Debug("pool launched", zap.Int("workers", p.cfg.MaxConcurrency))
	return nil
}

// Queue appends data to the FIFO. It reports false without error when the
// pool is stopping and the item was dropped.
func (p *Pool[T, R]) Queue(data T) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return false, ErrClosed
	case !p.launched:
		return false, ErrNotLaunched
	case p.stopping:
		return false, nil
	}
	p.queue = append(p.queue, data)
	p.stats.Queued++
	p.cond.Broadcast()
	return true, nil
}

// Stop asks the pool to wind down. Running tasks complete; queued tasks are
// skipped without calling the task function.
func (p *Pool[T, R]) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopping {
		return
	}
	p.stopping = true
	p.logger.Debug("pool stopping", zap.Int("queued", len(p.queue)), zap.Int("in_flight", p.inFlight))
	p.cond.Broadcast()
}

// Wait blocks until the queue is empty and no task is running, then shuts
// the workers down. Later Queue calls return ErrClosed.
func (p *Pool[T, R]) Wait() error {
	p.mu.Lock()
	if !p.launched {
		p.mu.Unlock()
		return ErrNotLaunched
	}
	for !p.closed && (len(p.queue) > 0 || p.inFlight > 0) {
		p.cond.Wait()
	}
	alreadyClosed := p.closed
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	if !alreadyClosed {
		close(p.done)
		p.cancel()
	}
	return nil
}

// Stopping reports whether Stop has been called.
func (p *Pool[T, R]) Stopping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

// State returns the lifecycle phase.
func (p *Pool[T, R]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return StateClosed
	case !p.launched:
		return StateIdle
	case p.stopping:
		return StateDraining
	default:
		return StateRunning
	}
}

// Stats returns a snapshot of the counters.
func (p *Pool[T, R]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.InFlight = p.inFlight
	return s
}

func (p *Pool[T, R]) watch(parent context.Context) {
	select {
	case <-parent.Done():
		p.Stop()
	case <-p.done:
	}
}

func (p *Pool[T, R]) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		var zero T
		data := p.queue[0]
		p.queue[0] = zero
		p.queue = p.queue[1:]
		p.inFlight++
		skip := p.stopping
		task, completed := p.task, p.completed
		started, failed, skipped := p.onStarted, p.onFailed, p.onSkipped
		p.mu.Unlock()

		var res outcome
		if skip {
			if skipped != nil {
				skipped(data)
			}
			res = outcomeSkipped
		} else {
			res = p.run(data, task, completed, started, failed)
		}

		p.mu.Lock()
		switch res {
		case outcomeSkipped:
			p.stats.Skipped++
		case outcomeFailed:
			p.stats.Failed++
		default:
			p.stats.Succeeded++
		}
		p.inFlight--
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailed
	outcomeSkipped
)

func (p *Pool[T, R]) run(
	data T,
	task TaskFunc[T, R],
	completed CompletedFunc[T, R],
	started func(T),
	failed func(T, error),
) outcome {
	if started != nil {
		started(data)
	}
	ctx := p.ctx
	cancel := func() {}
	if p.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
	}
	defer cancel()

	result, err := p.invoke(ctx, task, data)
	if err != nil {
		if failed != nil {
			failed(data, err)
		}
		return outcomeFailed
	}
	if completed != nil {
		completed(context.WithoutCancel(p.ctx), data, result)
	}
	return outcomeSucceeded
}

func (p *Pool[T, R]) invoke(ctx context.Context, task TaskFunc[T, R], data T) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", zap.Any("panic", r))
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return task(ctx, data)
}
