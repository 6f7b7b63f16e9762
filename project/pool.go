package project

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("projection pool closed")

// Pool runs projection blocks on a fixed set of goroutines, so a fit-transform
// over many shards reuses the same workers instead of spawning per block.
type Pool struct {
	workers  int
	taskCh   chan func()
	stopCh   chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
	submitMu sync.RWMutex
}

// NewPool starts a pool with the given number of workers. Nonpositive counts
// fall back to GOMAXPROCS.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		workers: workers,
		taskCh:  make(chan func(), workers*2),
		stopCh:  make(chan struct{}),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p
}

// Workers returns the worker count.
func (p *Pool) Workers() int { return p.workers }

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			// Drain queued tasks before exiting.
			for {
				select {
				case task, ok := <-p.taskCh:
					if !ok {
						return
					}
					task()
				default:
					return
				}
			}
		case task, ok := <-p.taskCh:
			if !ok {
				return
			}
			task()
		}
	}
}

// Submit enqueues one task, blocking for queue space. It returns ErrPoolClosed
// after Close and the context error if ctx ends first.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case p.taskCh <- task:
		return nil
	case <-p.stopCh:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the workers after draining queued tasks. Idempotent.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.submitMu.Lock()
	close(p.stopCh)
	close(p.taskCh)
	p.submitMu.Unlock()

	p.wg.Wait()
}
