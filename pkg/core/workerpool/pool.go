// Package workerpool bounds the CPU-heavy stages of the speech pipeline.
// Transcription and synthesis run on a fixed set of workers so a burst of
// sessions degrades into queueing instead of unbounded goroutine growth.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrClosed indicates the pool no longer accepts work.
	ErrClosed = errors.New("workerpool: closed")
	// ErrQueueFull indicates the queue is saturated.
	ErrQueueFull = errors.New("workerpool: queue is full")
	// ErrKeyBusy indicates the per-key outstanding limit was hit.
	ErrKeyBusy = errors.New("workerpool: key has too many outstanding jobs")
)

// Stats is a snapshot of pool counters, exposed through the health
// endpoint.
type Stats struct {
	Workers    int   `json:"workers"`
	Submitted  int64 `json:"submitted"`
	Completed  int64 `json:"completed"`
	Rejected   int64 `json:"rejected"`
	InFlight   int64 `json:"in_flight"`
	QueueDepth int   `json:"queue_depth"`
}

type job struct {
	ctx  context.Context
	key  string
	fn   func() error
	done chan error
}

// Pool is a fixed-size worker pool with a bounded FIFO queue and an
// optional per-key outstanding cap.
type Pool struct {
	workers   int
	maxPerKey int
	queue     chan job
	wg        sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	inFlight  atomic.Int64
	closed    atomic.Bool

	mu          sync.Mutex
	outstanding map[string]int
}

// New starts a pool of the given size. workers < 1 selects 2, capacity < 1
// selects 64. maxPerKey caps outstanding jobs sharing a key; <= 0 disables
// the cap.
func New(workers, capacity, maxPerKey int) *Pool {
	if workers < 1 {
		workers = 2
	}
	if capacity < 1 {
		capacity = 64
	}
	p := &Pool{
		workers:     workers,
		maxPerKey:   maxPerKey,
		queue:       make(chan job, capacity),
		outstanding: make(map[string]int),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Do runs fn on a pool worker and blocks until it finishes or ctx is done.
// Jobs whose context is already cancelled when a worker picks them up are
// skipped. Enqueueing never blocks: a full queue rejects immediately so the
// caller can fail the utterance instead of stalling its read loop.
func (p *Pool) Do(ctx context.Context, key string, fn func() error) error {
	if p.maxPerKey > 0 {
		if !p.reserve(key) {
			p.rejected.Add(1)
			return ErrKeyBusy
		}
	}

	j := job{ctx: ctx, key: key, fn: fn, done: make(chan error, 1)}
	if err := p.enqueue(j); err != nil {
		p.release(key)
		p.rejected.Add(1)
		return err
	}
	p.submitted.Add(1)

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		// The worker will still drain the job; the result is discarded.
		return ctx.Err()
	}
}

// enqueue is serialized with Drain's close of the queue, so a submit racing
// shutdown rejects instead of sending on a closed channel.
func (p *Pool) enqueue(j job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return ErrClosed
	}
	select {
	case p.queue <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Drain waits for queued and in-flight work, then stops the workers.
func (p *Pool) Drain(ctx context.Context) error {
	for len(p.queue) > 0 || p.inFlight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	p.mu.Lock()
	if p.closed.CompareAndSwap(false, true) {
		close(p.queue)
	}
	p.mu.Unlock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:    p.workers,
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Rejected:   p.rejected.Load(),
		InFlight:   p.inFlight.Load(),
		QueueDepth: len(p.queue),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.queue {
		p.inFlight.Add(1)
		if err := j.ctx.Err(); err != nil {
			j.done <- err
		} else {
			j.done <- j.fn()
		}
		p.release(j.key)
		p.completed.Add(1)
		p.inFlight.Add(-1)
	}
}

func (p *Pool) reserve(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outstanding[key] >= p.maxPerKey {
		return false
	}
	p.outstanding[key]++
	return true
}

func (p *Pool) release(key string) {
	if p.maxPerKey <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := p.outstanding[key]; n <= 1 {
		delete(p.outstanding, key)
	} else {
		p.outstanding[key] = n - 1
	}
}
