// Package pool implements the local executor: a fixed set of worker goroutines
// fed by a bounded queue.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Executor = (*Pool)(nil)

// Options sizes a Pool.
type Options struct {
	// Workers is the number of items executed concurrently. Defaults to the CPU count.
	Workers int
	// QueueSize bounds the number of items waiting for a worker. Defaults to 2*Workers.
	QueueSize int
	// Backpressure selects what Submit does on a full queue: block (default) or reject.
	Backpressure string
}

// Stats is a point-in-time view of a Pool.
type Stats struct {
	Queued    int
	PeakQueue int
	Running   int
	Completed int64
	Failed    int64
}

// Pool executes work items on a fixed number of goroutines.
// A failing or panicking item only fails its own handle; the pool keeps serving.
type Pool struct {
	opts  Options
	queue chan *Handle

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup

	nextID    atomic.Uint64
	running   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	peakQueue atomic.Int64
}

// New creates a Pool and starts its workers.
func New(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = domain.DefaultJobs()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 2 * opts.Workers
	}
	if opts.Backpressure == "" {
		opts.Backpressure = domain.BackpressureBlock
	}

	p := &Pool{
		opts:  opts,
		queue: make(chan *Handle, opts.QueueSize),
	}
	p.wg.Add(opts.Workers)
	for range opts.Workers {
		go p.worker()
	}
	return p
}

// Submit enqueues the item.
// With blocking backpressure it waits for room until ctx is done; otherwise a full queue
// returns ErrQueueFull. The queue never holds more than QueueSize items.
func (p *Pool) Submit(ctx context.Context, item *domain.WorkItem) (ports.Handle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, domain.ErrExecutorClosed
	}

	if item.ID == 0 {
		item.ID = p.nextID.Add(1)
	}
	h := newHandle(ctx, item)

	if p.opts.Backpressure == domain.BackpressureReject {
		select {
		case p.queue <- h:
		default:
			return nil, zerr.With(zerr.Wrap(domain.ErrQueueFull, "submit rejected"), "queue_size", p.opts.QueueSize)
		}
	} else {
		select {
		case p.queue <- h:
		case <-ctx.Done():
			return nil, zerr.Wrap(ctx.Err(), "submit cancelled while queue was full")
		}
	}

	p.recordQueueLen()
	return h, nil
}

// Shutdown stops intake and waits for queued and running items to finish, or for ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.closeOnce.Do(func() {
			p.mu.Lock()
			p.closed = true
			close(p.queue)
			p.mu.Unlock()
		})
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return zerr.Wrap(ctx.Err(), "executor shutdown interrupted")
	}
}

// QueueLen returns the number of items waiting for a worker.
func (p *Pool) QueueLen() int {
	return len(p.queue)
}

// QueueCap returns the queue bound.
func (p *Pool) QueueCap() int {
	return cap(p.queue)
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.opts.Workers
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Queued:    len(p.queue),
		PeakQueue: int(p.peakQueue.Load()),
		Running:   int(p.running.Load()),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) recordQueueLen() {
	n := int64(len(p.queue))
	for {
		peak := p.peakQueue.Load()
		if n <= peak || p.peakQueue.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for h := range p.queue {
		p.run(h)
	}
}

func (p *Pool) run(h *Handle) {
	h.start()
	p.running.Add(1)
	score, err := p.execute(h)
	p.running.Add(-1)

	if err != nil {
		p.failed.Add(1)
	} else {
		p.completed.Add(1)
	}
	h.complete(score, err)
}

// execute runs the item's runner. The utility wrapper already turns utility panics
// into evaluation errors; the recover here is a last guard for other runners and
// keeps a worker goroutine alive whatever the runner does.
func (p *Pool) execute(h *Handle) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			score = 0
			err = zerr.With(zerr.Wrap(domain.ErrWorkPanicked, fmt.Sprint(r)), "work_item", h.id)
		}
	}()

	// Items abandoned by a cancelled run are not started.
	if err := h.ctx.Err(); err != nil {
		return 0, err
	}
	if h.item.Run == nil {
		return 0, zerr.With(zerr.New("work item has no runner"), "work_item", h.id)
	}
	return h.item.Run(h.ctx)
}
