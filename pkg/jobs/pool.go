package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 3

// ErrPoolClosed is returned by Submit after Shutdown has begun.
var ErrPoolClosed = errors.New("worker pool closed")

// Pool is a fixed set of background execution slots fed by an unbounded
// FIFO queue. Submit never blocks the caller and never rejects work while
// the pool is open; under sustained overload the queue grows without bound,
// which is a documented risk, not one this pool solves.
//
// There is no cooperative cancellation for a running closure: the pool
// passes its base context through, and a closure that owns a subprocess is
// expected to watch that context itself.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	workers int
	wg      sync.WaitGroup
	logger  zerolog.Logger
}

// NewPool starts a pool with the given number of worker goroutines.
// A non-positive size falls back to DefaultWorkers.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	p := &Pool{
		workers: workers,
		logger:  log.With().Str("component", "pool").Logger(),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

// Submit enqueues a closure for execution. It returns immediately; the
// closure runs as soon as a worker slot frees up.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	p.queue = append(p.queue, task)
	p.cond.Signal()
	return nil
}

// QueueDepth returns the number of closures waiting for a slot.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Shutdown stops intake and waits for the workers to drain the queue and
// finish in-flight closures, or for ctx to expire, whichever comes first.
// Running closures are never forcibly killed.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info().Msg("Worker pool drained")
		return nil
	case <-ctx.Done():
		p.logger.Warn().Err(ctx.Err()).Msg("Worker pool shutdown timed out; abandoning in-flight work")
		return ctx.Err()
	}
}

func (p *Pool) worker(slot int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(slot, task)
	}
}

// run executes one closure with a panic guard so a misbehaving pipeline
// can never take down a worker slot.
func (p *Pool) run(slot int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Int("slot", slot).Str("panic", fmt.Sprint(r)).Msg("Recovered panic in worker closure")
		}
	}()
	task()
}
