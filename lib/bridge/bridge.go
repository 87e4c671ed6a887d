package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/sourcegraph/conc/panics"
)

var (
	log = logger.GetLogger("bridge")

	// ErrClosed is returned by Run when the bridge was closed before a worker accepted the job.
	ErrClosed = errors.New("bridge: closed")
	// ErrPanicked is returned by Run when the work function panicked.
	// The returned error wraps the recovered value and the stack of the panic.
	ErrPanicked = errors.New("bridge: work panicked")

	inflightJobs = metrics.GetOrCreateCounter("kvfs_bridge_inflight_jobs")
	panickedJobs = metrics.GetOrCreateCounter("kvfs_bridge_panics_total")
	detachedJobs = metrics.GetOrCreateCounter("kvfs_bridge_detached_total")
)

// Bridge runs blocking work on a fixed set of worker goroutines.
// A caller of Run waits on a result channel and its context, it never runs the work itself.
type Bridge struct {
	jobs      chan func()
	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool
	workers   int
}

// result is what a job hands back to the waiting caller.
type result[T any] struct {
	value T
	err   error
}

// New starts a bridge with the given number of workers.
// A value <= 0 uses runtime.NumCPU().
func New(workers int) *Bridge {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	b := &Bridge{
		// unbuffered: a send only succeeds once a worker has taken the job,
		// so a job is never stranded in a queue when the bridge closes
		jobs:    make(chan func()),
		quit:    make(chan struct{}),
		workers: workers,
	}
	b.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go b.worker()
	}
	log.Debugf("started bridge with %d workers", workers)
	return b
}

func (b *Bridge) worker() {
	defer b.wg.Done()
	for {
		select {
		case job := <-b.jobs:
			job()
		case <-b.quit:
			return
		}
	}
}

// Workers returns the number of worker goroutines.
func (b *Bridge) Workers() int {
	return b.workers
}

// Close stops accepting work and waits until all running jobs finished.
// Close is idempotent.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.quit)
	})
	b.wg.Wait()
	return nil
}

// Run executes work on one of the bridge's workers and returns its result.
//
// The calling goroutine only waits. If ctx is done before a worker accepted the
// job, the work never runs and ctx.Err() is returned. If ctx is done after the
// job was accepted, Run returns ctx.Err() right away and the job runs to
// completion in the background; its result is discarded.
//
// A panic inside work is recovered and returned as an error wrapping ErrPanicked.
func Run[T any](ctx context.Context, b *Bridge, work func() (T, error)) (T, error) {
	var zero T
	done, err := dispatch(ctx, b, work)
	if err != nil {
		return zero, err
	}
	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		detachedJobs.Inc()
		return zero, ctx.Err()
	}
}

// RunSettled is Run for work whose effect the caller must know about.
// ctx only bounds the wait for a worker: once the job was accepted RunSettled
// waits for it to finish, so the returned value and error describe what the
// work actually did.
func RunSettled[T any](ctx context.Context, b *Bridge, work func() (T, error)) (T, error) {
	var zero T
	done, err := dispatch(ctx, b, work)
	if err != nil {
		return zero, err
	}
	r := <-done
	return r.value, r.err
}

// Do is Run for work without a result value.
func Do(ctx context.Context, b *Bridge, work func() error) error {
	_, err := Run(ctx, b, func() (struct{}, error) {
		return struct{}{}, work()
	})
	return err
}

// DoSettled is RunSettled for work without a result value.
func DoSettled(ctx context.Context, b *Bridge, work func() error) error {
	_, err := RunSettled(ctx, b, func() (struct{}, error) {
		return struct{}{}, work()
	})
	return err
}

// dispatch hands work to a worker. It returns once a worker accepted the job,
// the bridge closed or ctx is done.
func dispatch[T any](ctx context.Context, b *Bridge, work func() (T, error)) (<-chan result[T], error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// buffered so a detached job can always deliver and exit
	done := make(chan result[T], 1)
	job := func() {
		inflightJobs.Inc()
		defer inflightJobs.Dec()

		var r result[T]
		var pc panics.Catcher
		pc.Try(func() {
			r.value, r.err = work()
		})
		if rec := pc.Recovered(); rec != nil {
			panickedJobs.Inc()
			log.Errorf("recovered panic in bridged work: %v", rec.Value)
			r = result[T]{err: fmt.Errorf("%w: %w", ErrPanicked, rec.AsError())}
		}
		done <- r
	}

	select {
	case b.jobs <- job:
		return done, nil
	case <-b.quit:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
