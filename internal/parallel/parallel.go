// Package parallel splits index ranges across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how work is split.
type Config struct {
	Workers  int // Goroutines to use; <= 1 runs inline.
	MinChunk int // Smallest range handed to a goroutine.
}

// DefaultConfig uses one worker per CPU.
func DefaultConfig() Config {
	return Config{
		Workers:  runtime.NumCPU(),
		MinChunk: 256,
	}
}

// Chunks calls fn on disjoint half-open ranges [lo, hi) covering [0, n).
//
// Ranges are processed concurrently; fn must only touch state owned by its
// range. Work smaller than one chunk, or a single worker, runs inline on
// the calling goroutine.
func Chunks(n int, cfg Config, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	minChunk := max(cfg.MinChunk, 1)
	if cfg.Workers <= 1 || n <= minChunk {
		fn(0, n)
		return
	}

	size := max((n+cfg.Workers-1)/cfg.Workers, minChunk)

	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(lo, hi)
		}()
	}
	wg.Wait()
}

// For calls fn(i) for every i in [0, n).
func For(n int, cfg Config, fn func(i int)) {
	Chunks(n, cfg, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			fn(i)
		}
	})
}
