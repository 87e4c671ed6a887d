package vfs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kvfs/lib/bridge"
)

// MaxFileSize is the largest file the vfs accepts. It is the value size limit of bbolt.
const MaxFileSize int64 = 1<<31 - 2

// kvFile is an IFile backed by a single store key.
type kvFile struct {
	vfs      *kvVFS
	txn      *Transaction
	name     string
	readOnly bool
	closed   atomic.Bool

	lockMu    sync.Mutex
	lockOwner []byte
}

var _ IFile = (*kvFile)(nil)

func (f *kvFile) Name() string {
	return f.name
}

func (f *kvFile) check(op string) error {
	if f.closed.Load() {
		return newError(CodeClosed, op, f.name, nil)
	}
	return nil
}

func (f *kvFile) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := f.check("read"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, newError(CodeInvalid, "read", f.name, nil)
	}
	if len(p) == 0 {
		return 0, nil
	}
	start := time.Now()

	want := int64(len(p))
	chunk, err := bridge.Run(ctx, f.vfs.bridge, func() ([]byte, error) {
		data, found, err := f.txn.Get(f.name)
		if err != nil || !found || off >= int64(len(data)) {
			return nil, err
		}
		end := off + want
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		return data[off:end], nil
	})
	// the caller's buffer is only touched here, never by a worker
	n := copy(p, chunk)
	err = fromBridge("read", f.name, err)
	observe(readOps, readBytes, readDuration, start, n, err)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (f *kvFile) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := f.check("write"); err != nil {
		return 0, err
	}
	if f.readOnly {
		return 0, newError(CodeReadOnly, "write", f.name, nil)
	}
	if off < 0 || off > MaxFileSize-int64(len(p)) {
		return 0, newError(CodeInvalid, "write", f.name, nil)
	}
	start := time.Now()

	data := append([]byte(nil), p...)
	err := bridge.DoSettled(ctx, f.vfs.bridge, func() error {
		return f.txn.Update(f.name, func(old []byte, _ bool) ([]byte, error) {
			return splice(old, data, off), nil
		})
	})
	err = fromBridge("write", f.name, err)
	observe(writeOps, writeBytes, writeDuration, start, len(p), err)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// splice writes data into old at off and returns the result. Bytes between the
// old end and off are zero. old is modified in place when it is large enough.
// Empty data leaves old as it is.
func splice(old, data []byte, off int64) []byte {
	if len(data) == 0 {
		if old == nil {
			return []byte{}
		}
		return old
	}
	end := off + int64(len(data))
	if end <= int64(len(old)) {
		copy(old[off:], data)
		return old
	}
	buf := make([]byte, end)
	copy(buf, old)
	copy(buf[off:], data)
	return buf
}

func (f *kvFile) Size(ctx context.Context) (int64, error) {
	if err := f.check("size"); err != nil {
		return 0, err
	}
	size, err := bridge.Run(ctx, f.vfs.bridge, func() (int64, error) {
		data, _, err := f.txn.Get(f.name)
		return int64(len(data)), err
	})
	if err != nil {
		return 0, fromBridge("size", f.name, err)
	}
	return size, nil
}

func (f *kvFile) Truncate(ctx context.Context, size int64) error {
	if err := f.check("truncate"); err != nil {
		return err
	}
	if f.readOnly {
		return newError(CodeReadOnly, "truncate", f.name, nil)
	}
	if size < 0 || size > MaxFileSize {
		return newError(CodeInvalid, "truncate", f.name, nil)
	}
	err := bridge.DoSettled(ctx, f.vfs.bridge, func() error {
		return f.txn.Update(f.name, func(old []byte, _ bool) ([]byte, error) {
			if size <= int64(len(old)) {
				return old[:size], nil
			}
			buf := make([]byte, size)
			copy(buf, old)
			return buf, nil
		})
	})
	return fromBridge("truncate", f.name, err)
}

func (f *kvFile) Sync(ctx context.Context) error {
	if err := f.check("sync"); err != nil {
		return err
	}
	return fromBridge("sync", f.name, bridge.Do(ctx, f.vfs.bridge, f.txn.Sync))
}

func (f *kvFile) Lock(ctx context.Context) error {
	if err := f.check("lock"); err != nil {
		return err
	}
	f.lockMu.Lock()
	defer f.lockMu.Unlock()
	if f.lockOwner != nil {
		return nil
	}

	type acquired struct {
		owner []byte
		ok    bool
	}
	// a lock taken by an accepted job is always recorded, so Close releases it
	res, err := bridge.RunSettled(ctx, f.vfs.bridge, func() (acquired, error) {
		owner, ok, err := f.txn.TryLock(f.name)
		return acquired{owner, ok}, err
	})
	if err != nil {
		return fromBridge("lock", f.name, err)
	}
	if !res.ok {
		return newError(CodeBusy, "lock", f.name, nil)
	}
	f.lockOwner = res.owner
	return nil
}

func (f *kvFile) Unlock(ctx context.Context) error {
	if err := f.check("unlock"); err != nil {
		return err
	}
	return f.unlock(ctx)
}

func (f *kvFile) unlock(ctx context.Context) error {
	f.lockMu.Lock()
	defer f.lockMu.Unlock()
	if f.lockOwner == nil {
		return nil
	}
	owner := f.lockOwner
	released, err := bridge.RunSettled(ctx, f.vfs.bridge, func() (bool, error) {
		return f.txn.ReleaseLock(f.name, owner)
	})
	if err != nil {
		return fromBridge("unlock", f.name, err)
	}
	if !released {
		log.Warningf("lock of %q was taken over by another owner", f.name)
	}
	f.lockOwner = nil
	return nil
}

// Close releases a held lock and the handle's transaction reference.
func (f *kvFile) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	defer openFiles.Dec()
	defer f.txn.release()

	if err := f.unlock(context.Background()); err != nil {
		log.Warningf("failed to release lock of %q on close: %v", f.name, err)
		return err
	}
	return nil
}
