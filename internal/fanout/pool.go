package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrPoolClosed is returned by Submit after Close has been called.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a unit of work executed by a pool worker.
type Task func()

// Config sizes a Pool. It is passed explicitly at construction; there is no
// package level pool.
type Config struct {
	// Workers is the fixed number of worker goroutines.
	Workers int

	// QueueSize bounds tasks accepted but not yet picked up by a worker.
	// Submit blocks while the queue is full.
	QueueSize int
}

// Pool is a fixed-size worker pool behind a bounded admission queue.
//
// Submit never drops work and never grows the queue: when every worker is
// busy and the queue is full, the submitter blocks until a slot frees up or
// its context ends.
type Pool struct {
	tasks  chan Task
	group  *errgroup.Group
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool

	running atomic.Int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the logger used for worker diagnostics.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// NewPool starts cfg.Workers workers. Non-positive sizes fall back to one
// worker and a queue of one.
func NewPool(cfg Config, opts ...PoolOption) *Pool {
	workers := max(cfg.Workers, 1)
	queue := max(cfg.QueueSize, 1)

	p := &Pool{
		tasks: make(chan Task, queue),
		group: &errgroup.Group{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	for i := range workers {
		p.group.Go(func() error {
			p.work(i)
			return nil
		})
	}
	return p
}

// work runs tasks until the queue is closed and drained.
func (p *Pool) work(id int) {
	for task := range p.tasks {
		p.run(id, task)
	}
}

// run executes one task, turning a panic into a log line so that a broken
// task cannot take a worker down with it.
func (p *Pool) run(id int, task Task) {
	p.running.Add(1)
	defer p.running.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker task panicked", "worker", id, "panic", fmt.Sprint(r))
		}
	}()
	task()
}

// Submit enqueues task, blocking while the admission queue is full.
// It returns ctx.Err() if ctx ends first and ErrPoolClosed after Close.
// Submit must not be called from a task running on the same pool.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int {
	return len(p.tasks)
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Close stops accepting tasks, lets workers finish everything already
// queued and waits for them. It is safe to call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	return p.group.Wait()
}
