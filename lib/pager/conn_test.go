package pager

import (
	"bytes"
	"context"
	"testing"

	"github.com/ValentinKolb/kvfs/lib/store/lstore"
	"github.com/ValentinKolb/kvfs/lib/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPageSize = 512

func newRegistry(t *testing.T) *vfs.Registry {
	t.Helper()
	v, err := vfs.NewKVVFS("kv1", lstore.NewLocalStore(), vfs.Options{Workers: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })

	reg := vfs.NewRegistry()
	require.NoError(t, reg.Register("kv1", v, true))
	return reg
}

func openConn(t *testing.T, reg *vfs.Registry, flags Flags) *Conn {
	t.Helper()
	c, err := Open(context.Background(), reg, "users.db", flags, "", WithPageSize(testPageSize))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func page(b byte) []byte {
	return bytes.Repeat([]byte{b}, testPageSize)
}

func TestCreateWritesHeader(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	c := openConn(t, reg, OpenReadWrite|OpenCreate)

	assert.Equal(t, testPageSize, c.PageSize())
	count, err := c.PageCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	v, _ := reg.Default()
	f, err := v.Open(ctx, "users.db", vfs.OpenOptions{ReadOnly: true})
	require.NoError(t, err)
	defer f.Close()

	header := make([]byte, testPageSize)
	n, err := f.ReadAt(ctx, header, 0)
	require.NoError(t, err)
	require.Equal(t, testPageSize, n)
	assert.Equal(t, []byte(headerMagic), header[:len(headerMagic)])
	assert.Equal(t, []byte{0, 0, 2, 0}, header[len(headerMagic):headerSize])
}

func TestWriteCommitRead(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	c := openConn(t, reg, OpenReadWrite|OpenCreate)

	require.NoError(t, c.Begin(ctx))
	require.NoError(t, c.WritePage(ctx, 1, page(1)))
	require.NoError(t, c.WritePage(ctx, 3, page(3)))

	// staged pages are visible on the connection
	got, err := c.ReadPage(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, page(3), got)
	require.NoError(t, c.Commit(ctx))

	// a second connection sees the committed file
	other, err := Open(ctx, reg, "users.db", OpenReadOnly, "kv1")
	require.NoError(t, err)
	defer other.Close()
	assert.Equal(t, testPageSize, other.PageSize(), "the header page size wins over the option")

	count, err := other.PageCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	for pgno, want := range map[uint32][]byte{1: page(1), 2: page(0), 3: page(3)} {
		got, err := other.ReadPage(ctx, pgno)
		require.NoError(t, err)
		assert.Equal(t, want, got, "page %d", pgno)
	}

	_, err = other.ReadPage(ctx, 4)
	assert.ErrorIs(t, err, ErrPageRange)
	_, err = other.ReadPage(ctx, 0)
	assert.ErrorIs(t, err, ErrPageRange)
}

func TestRollback(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	c := openConn(t, reg, OpenReadWrite|OpenCreate)

	require.NoError(t, c.Begin(ctx))
	require.NoError(t, c.WritePage(ctx, 1, page(7)))
	require.NoError(t, c.Rollback(ctx))

	count, err := c.PageCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.ErrorIs(t, c.Rollback(ctx), ErrNoWriteTxn)
	assert.ErrorIs(t, c.Commit(ctx), ErrNoWriteTxn)
	assert.ErrorIs(t, c.WritePage(ctx, 1, page(1)), ErrNoWriteTxn)
}

func TestWriteTxnErrors(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	c := openConn(t, reg, OpenReadWrite|OpenCreate)

	require.NoError(t, c.Begin(ctx))
	assert.ErrorIs(t, c.Begin(ctx), ErrTxnActive)
	assert.ErrorIs(t, c.WritePage(ctx, 1, make([]byte, 10)), ErrPageSize)
	assert.ErrorIs(t, c.WritePage(ctx, 0, page(1)), ErrPageRange)

	// a second connection cannot start a write transaction
	c2 := openConn(t, reg, OpenReadWrite)
	err := c2.Begin(ctx)
	assert.True(t, vfs.IsCode(err, vfs.CodeBusy), "got %v", err)

	require.NoError(t, c.Commit(ctx))
	require.NoError(t, c2.Begin(ctx))
	require.NoError(t, c2.Rollback(ctx))
}

func TestTruncate(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	c := openConn(t, reg, OpenReadWrite|OpenCreate)

	require.NoError(t, c.Begin(ctx))
	for pgno := uint32(1); pgno <= 4; pgno++ {
		require.NoError(t, c.WritePage(ctx, pgno, page(byte(pgno))))
	}
	require.NoError(t, c.Commit(ctx))

	require.NoError(t, c.Begin(ctx))
	require.NoError(t, c.Truncate(ctx, 2))
	count, err := c.PageCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	require.NoError(t, c.Commit(ctx))

	count, err = c.PageCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	got, err := c.ReadPage(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, page(2), got)

	assert.ErrorIs(t, c.Truncate(ctx, 1), ErrNoWriteTxn)
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)

	_, err := Open(ctx, reg, "users.db", OpenReadOnly, "")
	assert.True(t, vfs.IsCode(err, vfs.CodeNotFound), "got %v", err)

	_, err = Open(ctx, reg, "users.db", OpenReadOnly|OpenReadWrite, "")
	assert.ErrorIs(t, err, ErrBadFlags)
	_, err = Open(ctx, reg, "users.db", OpenCreate, "")
	assert.ErrorIs(t, err, ErrBadFlags)
	_, err = Open(ctx, reg, "users.db", OpenReadOnly|OpenCreate, "")
	assert.ErrorIs(t, err, ErrBadFlags)

	_, err = Open(ctx, reg, "users.db", OpenReadWrite|OpenCreate, "", WithPageSize(1000))
	assert.ErrorIs(t, err, ErrPageSize)

	_, err = Open(ctx, reg, "users.db", OpenReadWrite|OpenCreate, "kv2")
	assert.True(t, vfs.IsCode(err, vfs.CodeNotFound), "got %v", err)

	// a file that was not written by the pager
	v, _ := reg.Default()
	f, err := v.Open(ctx, "garbage.db", vfs.OpenOptions{Create: true})
	require.NoError(t, err)
	_, err = f.WriteAt(ctx, []byte("definitely not a header"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(ctx, reg, "garbage.db", OpenReadWrite, "")
	assert.ErrorIs(t, err, ErrBadHeader)
}

func TestReadOnlyConn(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	rw := openConn(t, reg, OpenReadWrite|OpenCreate)
	require.NoError(t, rw.Close())

	ro := openConn(t, reg, OpenReadOnly)
	assert.ErrorIs(t, ro.Begin(ctx), ErrReadOnly)
}

func TestCloseReleasesLock(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	c1 := openConn(t, reg, OpenReadWrite|OpenCreate)
	c2 := openConn(t, reg, OpenReadWrite)

	require.NoError(t, c1.Begin(ctx))
	require.NoError(t, c1.WritePage(ctx, 1, page(9)))
	require.NoError(t, c1.Close())
	require.NoError(t, c1.Close())

	_, err := c1.ReadPage(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)

	// the staged page was dropped and the lock released
	require.NoError(t, c2.Begin(ctx))
	count, err := c2.PageCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	require.NoError(t, c2.Rollback(ctx))
}

func TestCommitWithCanceledContextReleasesLock(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	c1 := openConn(t, reg, OpenReadWrite|OpenCreate)
	c2 := openConn(t, reg, OpenReadWrite)

	require.NoError(t, c1.Begin(ctx))
	require.NoError(t, c1.WritePage(ctx, 1, page(5)))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	err := c1.Commit(canceled)
	assert.ErrorIs(t, err, context.Canceled)

	// the failed commit ended the write transaction and released the lock
	assert.ErrorIs(t, c1.Rollback(ctx), ErrNoWriteTxn)
	require.NoError(t, c2.Begin(ctx))
	require.NoError(t, c2.Rollback(ctx))
}
