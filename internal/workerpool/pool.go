// Package workerpool runs connection tasks on a fixed set of goroutines.
//
// Tasks are queued FIFO behind a mutex and a condition variable. The reactor
// goroutine submits and a worker picks the task up; the reactor never blocks on
// task execution.
//
// Lifecycle:
//  1. New creates the pool. Tasks submitted now are retained.
//  2. Start launches the workers, which begin draining the queue.
//  3. Stop wakes every worker and waits for in-flight tasks to return.
//     Tasks still queued at that point are dropped.
package workerpool

import (
	"errors"
	"runtime"
	"sync"
)

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = errors.New("workerpool: pool stopped")

// Task is a unit of work. Each submitted task runs at most once.
type Task func()

// PanicHandler receives the value recovered from a panicking task.
type PanicHandler func(recovered any)

// Pool is a fixed-size FIFO worker pool.
//
// Thread safety:
// All methods are safe for concurrent use. Stop must not be called from
// within a task.
type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Task
	head     int
	workers  int
	started  bool
	stopped  bool
	wg       sync.WaitGroup
	onPanic  PanicHandler
	inFlight int
}

// Option configures a Pool.
type Option func(*Pool)

// WithPanicHandler installs a handler for task panics. Without one a panicking
// task is recovered and ignored so the worker keeps running.
func WithPanicHandler(h PanicHandler) Option {
	return func(p *Pool) {
		p.onPanic = h
	}
}

// New creates a stopped pool with the given number of workers.
//
// workers <= 0 selects runtime.NumCPU()+1.
func New(workers int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU() + 1
	}
	p := &Pool{workers: workers}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Calling Start more than once is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.stopped {
		return
	}
	p.started = true

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker()
	}
}

// Submit enqueues a task.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return nil
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()

	p.cond.Signal()
	return nil
}

// Stop marks the pool closed, wakes all workers and waits for them to exit.
//
// Workers finish the task they are running; queued tasks are discarded.
// Stop is idempotent.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.stopped = true
	dropped := p.queue[p.head:]
	for i := range dropped {
		dropped[i] = nil
	}
	p.queue = nil
	p.head = 0
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) - p.head
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for !p.stopped && p.head == len(p.queue) {
			p.cond.Wait()
		}
		if p.stopped {
			p.mu.Unlock()
			return
		}

		task := p.pop()
		p.inFlight++
		p.mu.Unlock()

		p.run(task)

		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}
}

// pop removes the oldest task. The caller holds p.mu and the queue is not
// empty. Once more than half of the backing array is consumed the live tail
// moves to the front, so a queue that never drains keeps a bounded array.
func (p *Pool) pop() Task {
	task := p.queue[p.head]
	p.queue[p.head] = nil
	p.head++

	switch {
	case p.head == len(p.queue):
		p.queue = p.queue[:0]
		p.head = 0
	case p.head > len(p.queue)/2:
		n := copy(p.queue, p.queue[p.head:])
		for i := n; i < len(p.queue); i++ {
			p.queue[i] = nil
		}
		p.queue = p.queue[:n]
		p.head = 0
	}
	return task
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(r)
		}
	}()
	task()
}
