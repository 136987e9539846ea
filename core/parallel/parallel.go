// Package parallel splits row ranges across goroutines.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Parallelize divides items into contiguous ranges, one per worker, and runs
// fn on every range concurrently. workers <= 0 means GOMAXPROCS. The first
// error returned by fn is returned once all ranges are done.
func Parallelize(items, workers int, fn func(start, end int) error) error {
	if items <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > items {
		workers = items
	}

	// ceiling division
	chunkSize := (items + workers - 1) / workers

	var g errgroup.Group
	for start := 0; start < items; start += chunkSize {
		end := min(start+chunkSize, items)
		g.Go(func() error { return fn(start, end) })
	}
	return g.Wait()
}

// ParallelizeWithThreshold runs fn sequentially over the whole range when
// items does not exceed threshold, and like Parallelize otherwise.
func ParallelizeWithThreshold(items, threshold, workers int, fn func(start, end int) error) error {
	if items <= threshold {
		if items <= 0 {
			return nil
		}
		return fn(0, items)
	}
	return Parallelize(items, workers, fn)
}
