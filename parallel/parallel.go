// Package parallel is the N-way parallel-for external collaborator the
// core's concurrency model treats as opaque. It is grounded on
// golang.org/x/sync/errgroup's use for bounded fan-out in
// blobstore.CachingStore's run fetcher.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// For runs fn(i) for every i in [0, n) across up to workers goroutines at
// once, joining on completion. It returns the first error encountered, if
// any, after every launched call has finished. workers <= 0 defaults to
// GOMAXPROCS.
func For(workers, n int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return fn(i)
		})
	}
	return g.Wait()
}
