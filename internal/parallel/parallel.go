// Package parallel splits element ranges into contiguous chunks and runs them
// on a bounded set of goroutines.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls how a range is split.
type Config struct {
	Workers      int // Number of chunks to run concurrently, <= 0 means DefaultWorkers.
	MinChunkSize int // Minimum elements per chunk to avoid goroutine overhead.
}

// DefaultWorkers returns the number of logical CPUs.
func DefaultWorkers() int {
	return runtime.NumCPU()
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	return Config{
		Workers:      DefaultWorkers(),
		MinChunkSize: 64, // Typical cache line aware chunk.
	}
}

// Range is the half-open element interval [Start, End).
type Range struct {
	Start int
	End   int
}

// Len returns the number of elements in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Chunks splits [0, n) into at most cfg.Workers contiguous, non-overlapping
// ranges covering every element. Chunk sizes differ by at most one.
func (cfg Config) Chunks(n int) []Range {
	if n <= 0 {
		return nil
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if cfg.MinChunkSize > 1 {
		workers = min(workers, max(n/cfg.MinChunkSize, 1))
	}
	workers = min(workers, n)

	chunks := make([]Range, workers)
	size, rest := n/workers, n%workers
	start := 0
	for i := range chunks {
		end := start + size
		if i < rest {
			end++
		}
		chunks[i] = Range{Start: start, End: end}
		start = end
	}
	return chunks
}

// Chunks splits [0, n) into at most workers ranges with no minimum size.
func Chunks(n, workers int) []Range {
	return Config{Workers: workers}.Chunks(n)
}

// For runs f once per chunk of [0, n) and waits for all of them.
// A single chunk runs on the calling goroutine. The first error is returned
// after every chunk has finished.
func For(n int, f func(start, end int) error, cfg Config) error {
	chunks := cfg.Chunks(n)
	switch len(chunks) {
	case 0:
		return nil
	case 1:
		return f(chunks[0].Start, chunks[0].End)
	}

	var g errgroup.Group
	for _, r := range chunks {
		g.Go(func() error {
			return f(r.Start, r.End)
		})
	}
	return g.Wait()
}
