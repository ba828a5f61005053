// Package parallel splits CPU kernel loops across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Workers  int // Upper bound on goroutines per call; <= 1 runs inline.
	MinChunk int // Minimum iterations handed to one goroutine.
}

// DefaultConfig uses one worker per schedulable CPU.
//
// Kernel loops here iterate over whole samples or output planes, so a chunk
// of one iteration already amortizes the goroutine.
func DefaultConfig() Config {
	return Config{
		Workers:  runtime.GOMAXPROCS(0),
		MinChunk: 1,
	}
}

// Sequential returns a Config that never spawns goroutines.
func Sequential() Config {
	return Config{Workers: 1, MinChunk: 1}
}

// ForRange partitions [0, n) into contiguous chunks and calls f(start, end)
// for each, concurrently when cfg allows. It returns after every chunk is done.
func ForRange(n int, cfg Config, f func(start, end int)) {
	if n <= 0 {
		return
	}
	minChunk := max(cfg.MinChunk, 1)
	workers := min(cfg.Workers, (n+minChunk-1)/minChunk)
	if workers <= 1 {
		f(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(start, end)
	}
	wg.Wait()
}

// For executes f(i) for i in [0, n).
func For(n int, cfg Config, f func(i int)) {
	ForRange(n, cfg, func(start, end int) {
		for i := start; i < end; i++ {
			f(i)
		}
	})
}

// ForBatch iterates the flattened batch*channels plane index, the common
// pattern for per-plane pooling and normalization kernels.
func ForBatch(batch, channels int, cfg Config, f func(b, c int)) {
	For(batch*channels, cfg, func(k int) {
		f(k/channels, k%channels)
	})
}
