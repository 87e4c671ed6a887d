package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsResult(t *testing.T) {
	b := New(2)
	defer b.Close()

	v, err := Run(context.Background(), b, func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	wantErr := errors.New("store failed")
	_, err = Run(context.Background(), b, func() (int, error) {
		return 0, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestRunRecoversPanic(t *testing.T) {
	b := New(1)
	defer b.Close()

	_, err := Run(context.Background(), b, func() (string, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPanicked)
	assert.Contains(t, err.Error(), "boom")

	// the worker survives the panic
	v, err := Run(context.Background(), b, func() (string, error) {
		return "still alive", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "still alive", v)
}

func TestRunAfterClose(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "Close must be idempotent")

	ran := false
	err := Do(context.Background(), b, func() error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, ran)
}

func TestCanceledBeforeDispatch(t *testing.T) {
	b := New(1)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	err := Do(ctx, b, func() error {
		ran.Store(true)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran.Load(), "work must not start for an already canceled context")
}

func TestAbandonedJobRunsToCompletion(t *testing.T) {
	b := New(1)
	defer b.Close()

	release := make(chan struct{})
	finished := make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Do(ctx, b, func() error {
		<-release
		close(finished)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("detached job did not finish")
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	const workers = 3
	b := New(workers)
	defer b.Close()
	assert.Equal(t, workers, b.Workers())

	var running, maxRunning atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = Do(context.Background(), b, func() error {
				n := running.Add(1)
				for {
					m := maxRunning.Load()
					if n <= m || maxRunning.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxRunning.Load(), int32(workers))
	assert.Greater(t, maxRunning.Load(), int32(0))
}

func TestCloseWaitsForRunningJobs(t *testing.T) {
	b := New(1)

	started := make(chan struct{})
	var finished atomic.Bool
	go func() {
		_ = Do(context.Background(), b, func() error {
			close(started)
			time.Sleep(20 * time.Millisecond)
			finished.Store(true)
			return nil
		})
	}()

	<-started
	require.NoError(t, b.Close())
	assert.True(t, finished.Load(), "Close must wait for the running job")
}

func TestSettledWaitsForAcceptedJob(t *testing.T) {
	b := New(1)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	n, err := RunSettled(ctx, b, func() (int, error) {
		time.Sleep(50 * time.Millisecond)
		return 42, nil
	})
	require.NoError(t, err, "an accepted job reports its own result")
	assert.Equal(t, 42, n)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)

	wantErr := errors.New("write failed")
	err = DoSettled(context.Background(), b, func() error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
}

func TestSettledCanceledBeforeDispatch(t *testing.T) {
	b := New(1)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	err := DoSettled(ctx, b, func() error {
		ran.Store(true)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran.Load())
}
