package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"
)

func TestWorkerPoolCreate(t *testing.T) {
	tests := []struct {
		workers int
		want    int
	}{
		{4, 4},
		{0, runtime.GOMAXPROCS(0)},
		{-5, runtime.GOMAXPROCS(0)},
	}
	for _, tt := range tests {
		pool := NewWorkerPool(tt.workers)
		if pool.Workers() != tt.want {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want %d", tt.workers, pool.Workers(), tt.want)
		}
		pool.Close()
	}
}

func TestWorkerPoolExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	pool.ExecuteAll(work)
	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPoolAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()

	ran := false
	pool.ExecuteAll([]func(){func() { ran = true }})
	if !ran {
		t.Error("ExecuteAll after Close did not run the work inline")
	}
}

func TestForBandsCoversEveryRowOnce(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()

	for _, h := range []int{0, 1, 15, 16, 33, 100, 1000} {
		rows := make([]int32, h)
		pool.ForBands(h, func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				atomic.AddInt32(&rows[y], 1)
			}
		})
		for y, n := range rows {
			if n != 1 {
				t.Errorf("height %d: row %d visited %d times", h, y, n)
			}
		}
	}
}
