package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
)

// DefaultWorkers is the decode pool size.
const DefaultWorkers = 6

// queueSize is how many tasks may wait for a worker before Post blocks.
const queueSize = 1024

// ErrClosed is returned by Post after Close.
var ErrClosed = errors.New("worker pool closed")

// Task is the future of one posted job. Exactly one of its result or
// cancellation is ever observed.
type Task[T any] struct {
	ID string

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	run       func(context.Context) (T, error)
	done      chan struct{}
	value     T
	err       error
}

// Done is closed once the task has a result. It is never closed for a
// task cancelled before it finished.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Result blocks until the task finishes or ctx ends.
func (t *Task[T]) Result(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-t.ctx.Done():
		select {
		case <-t.done:
			return t.value, t.err
		default:
		}
		var zero T
		return zero, t.ctx.Err()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel withdraws the task. A cancelled task never delivers.
func (t *Task[T]) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

func (t *Task[T]) Cancelled() bool {
	return t.cancelled.Load()
}

// Pool runs tasks on a fixed number of goroutines in posting order.
type Pool[T any] struct {
	mu      sync.Mutex
	queue   chan *Task[T]
	wg      sync.WaitGroup
	closed  bool
	posting sync.WaitGroup
	pending sync.WaitGroup
	ids     *shortid.Shortid
}

// NewPool starts workers goroutines. Zero means DefaultWorkers.
func NewPool[T any](workers int) *Pool[T] {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ids, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		// only fails for an invalid alphabet
		panic(err)
	}
	p := &Pool[T]{queue: make(chan *Task[T], queueSize), ids: ids}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

// Post queues fn. The returned task can be awaited or cancelled. While the
// queue is full Post waits for room or for ctx to end.
func (p *Pool[T]) Post(ctx context.Context, fn func(context.Context) (T, error)) (*Task[T], error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	id, err := p.ids.Generate()
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.posting.Add(1)
	p.pending.Add(1)
	p.mu.Unlock()
	defer p.posting.Done()

	tctx, cancel := context.WithCancel(ctx)
	t := &Task[T]{ID: id, ctx: tctx, cancel: cancel, run: fn, done: make(chan struct{})}
	select {
	case p.queue <- t:
		return t, nil
	case <-ctx.Done():
		cancel()
		p.pending.Done()
		return nil, ctx.Err()
	}
}

func (p *Pool[T]) work() {
	defer p.wg.Done()
	for t := range p.queue {
		p.runTask(t)
	}
}

func (p *Pool[T]) runTask(t *Task[T]) {
	defer p.pending.Done()
	defer t.cancel()
	if t.Cancelled() || t.ctx.Err() != nil {
		log.WithField("task", t.ID).Trace("skipping cancelled task")
		return
	}
	v, err := t.run(t.ctx)
	if t.Cancelled() || t.ctx.Err() != nil {
		return
	}
	t.value, t.err = v, err
	close(t.done)
}

// Wait blocks until every posted task has run or been skipped.
func (p *Pool[T]) Wait() {
	p.pending.Wait()
}

// Close stops accepting tasks, lets blocked posters finish, drains the queue
// and waits for the workers.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.posting.Wait()
	close(p.queue)
	p.wg.Wait()
}
