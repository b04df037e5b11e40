// Package parallel splits index ranges across worker goroutines for the
// tensor kernels.
package parallel

import (
	"runtime"
	"sync"

	"github.com/born-ml/forge/internal/envconfig"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig uses FORGE_NUM_THREADS workers, or one per CPU when it is
// unset.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	if v := envconfig.NumThreads(); v > 0 {
		n = int(min(v, 1024)) //nolint:gosec // G115: clamped above.
	}
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// WithMinChunk returns a copy of cfg with a different minimum chunk size.
func (cfg Config) WithMinChunk(size int) Config {
	cfg.MinChunkSize = size
	return cfg
}

// For executes f(i) for i in [0, n). It runs sequentially when parallelism
// is disabled or n is below the minimum chunk size. f must be safe to call
// concurrently for distinct i.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || cfg.NumWorkers < 2 || n < max(cfg.MinChunkSize, 2) {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}
