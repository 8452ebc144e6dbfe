// Package parallel runs image passes of the software device across
// goroutines, one horizontal band of rows per work item.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// MinBandRows is the smallest band handed to a worker. Images shorter than
// two bands run on the calling goroutine.
const MinBandRows = 16

// WorkerPool is a fixed set of goroutines consuming work items from a
// shared queue.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int
	queue   chan func()
	wg      sync.WaitGroup
	running atomic.Bool
	closeMu sync.RWMutex
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &WorkerPool{
		workers: workers,
		queue:   make(chan func(), workers*4),
	}
	p.running.Store(true)
	p.wg.Add(workers)
	for range workers {
		go func() {
			defer p.wg.Done()
			for fn := range p.queue {
				fn()
			}
		}()
	}
	return p
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// ExecuteAll runs every work item and waits for all of them. After Close
// the items run on the calling goroutine.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var done sync.WaitGroup
	done.Add(len(work))
	for _, fn := range work {
		p.queue <- func() {
			defer done.Done()
			fn()
		}
	}
	done.Wait()
}

// ForBands splits rows [0, height) into contiguous bands and calls fn for
// each band in parallel. Bands never overlap, so fn may write its rows
// without synchronization.
func (p *WorkerPool) ForBands(height int, fn func(y0, y1 int)) {
	if height <= 0 {
		return
	}
	bands := min(p.workers*2, height/MinBandRows)
	if bands < 2 {
		fn(0, height)
		return
	}
	work := make([]func(), 0, bands)
	for b := range bands {
		y0 := height * b / bands
		y1 := height * (b + 1) / bands
		work = append(work, func() { fn(y0, y1) })
	}
	p.ExecuteAll(work)
}

// Close stops the workers after queued work completes.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.closeMu.Lock()
	close(p.queue)
	p.closeMu.Unlock()
	p.wg.Wait()
}
