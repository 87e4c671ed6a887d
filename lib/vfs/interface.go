package vfs

import (
	"context"
	"strings"
)

// LockKeyPrefix is the key prefix under which file locks are stored.
// File names must not start with it.
const LockKeyPrefix = "__lock__/"

// OpenOptions are the flags of an Open call.
type OpenOptions struct {
	Create    bool // create the file if it does not exist (lazily, on first write)
	ReadOnly  bool // the handle rejects writes, the file must exist
	Exclusive bool // with Create: fail if the file already exists
}

// IVFS is a virtual file system: it maps file names to handles.
type IVFS interface {
	// Name returns the name the vfs was created with.
	Name() string
	// Open returns a handle for the named file. No payload I/O happens at open time,
	// only an existence probe when opts requires one (ReadOnly, Exclusive, no Create).
	Open(ctx context.Context, name string, opts OpenOptions) (IFile, error)
	// Delete removes the named file. Deleting a missing file is not an error.
	Delete(ctx context.Context, name string) error
	// Exists reports whether the named file exists.
	Exists(ctx context.Context, name string) (bool, error)
	// List returns the names of all files in ascending order.
	List(ctx context.Context) ([]string, error)
	// Close releases the vfs's reference on its transaction.
	// Handles that are still open keep working until they are closed.
	Close() error
}

// IFile is an open file. It has no cursor, every call is addressed by offset.
type IFile interface {
	// Name returns the file name.
	Name() string
	// ReadAt reads up to len(p) bytes starting at off. Reading at or beyond the
	// end of the file returns 0 and no error, a read crossing the end returns
	// the available bytes and no error.
	ReadAt(ctx context.Context, p []byte, off int64) (n int, err error)
	// WriteAt writes p at off, extending the file and zero filling any gap.
	// It returns len(p) on success; on error nothing was written. ctx only
	// bounds the wait for a bridge worker, a write that started is finished and
	// its outcome returned.
	WriteAt(ctx context.Context, p []byte, off int64) (n int, err error)
	// Size returns the current file size. A file that was never written has size 0.
	Size(ctx context.Context) (int64, error)
	// Truncate shrinks the file or extends it with zeros. ctx is handled as in WriteAt.
	Truncate(ctx context.Context, size int64) error
	// Sync flushes the store if it supports it.
	Sync(ctx context.Context) error
	// Lock takes the exclusive lock of the file without waiting (CodeBusy if held elsewhere).
	// ctx is handled as in WriteAt, a lock that was taken is always held by the handle.
	Lock(ctx context.Context) error
	// Unlock releases a lock taken with Lock. Unlocking an unlocked handle is a no-op.
	Unlock(ctx context.Context) error
	// Close releases the handle. Close is idempotent.
	Close() error
}

// validName checks a file name.
func validName(name string) bool {
	return name != "" && !strings.HasPrefix(name, LockKeyPrefix)
}

// lockKey returns the store key of the lock of a file.
func lockKey(name string) string {
	return LockKeyPrefix + name
}
