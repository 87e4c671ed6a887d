// Package bridge offloads blocking work (lock acquisition, synchronous store
// calls) from a caller that must stay responsive to a fixed pool of worker
// goroutines, and hands the result back through a channel.
//
// The caller selects on the result and on its context. It never executes the
// work itself, so the number of goroutines blocked inside a store is bounded
// by the number of workers no matter how many callers issue I/O.
//
// Failure Modes:
//
//   - ErrClosed: the bridge was closed before a worker accepted the job.
//   - ErrPanicked: the work panicked. The panic is recovered with
//     github.com/sourcegraph/conc/panics and returned as an error; the
//     process keeps running.
//   - ctx.Err(): the caller stopped waiting.
//
// Cancellation:
//
//	A job that was not yet accepted by a worker is never started. A job that
//	was accepted runs to completion even if the caller gave up. Work that takes
//	a lock must therefore take and release it inside the job, which is how the
//	vfs package uses the bridge.
//
// Metrics (VictoriaMetrics):
//
//	kvfs_bridge_inflight_jobs, kvfs_bridge_panics_total, kvfs_bridge_detached_total
//
// Usage Example:
//
//	b := bridge.New(8)
//	defer b.Close()
//
//	value, err := bridge.Run(ctx, b, func() ([]byte, error) {
//	    v, _, err := s.Get("users.db")
//	    return v, err
//	})
package bridge
