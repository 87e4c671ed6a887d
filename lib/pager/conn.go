package pager

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ValentinKolb/kvfs/lib/vfs"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("pager")

// Flags select how a database file is opened.
type Flags uint8

const (
	OpenReadOnly Flags = 1 << iota
	OpenReadWrite
	OpenCreate
)

const (
	DefaultPageSize = 4096
	MinPageSize     = 512
	MaxPageSize     = 65536

	headerMagic = "kvfs pager v1\x00"
	headerSize  = len(headerMagic) + 4
)

var (
	ErrPageRange  = errors.New("pager: page number out of range")
	ErrPageSize   = errors.New("pager: data does not match the page size")
	ErrNoWriteTxn = errors.New("pager: no write transaction")
	ErrTxnActive  = errors.New("pager: write transaction already active")
	ErrReadOnly   = errors.New("pager: connection is read only")
	ErrBadHeader  = errors.New("pager: not a kvfs pager file")
	ErrBadFlags   = errors.New("pager: invalid open flags")
	ErrClosed     = errors.New("pager: connection is closed")
)

type options struct {
	pageSize int
}

// Option configures Open.
type Option func(*options)

// WithPageSize sets the page size of a newly created file. Existing files
// keep the page size stored in their header.
func WithPageSize(size int) Option {
	return func(o *options) {
		o.pageSize = size
	}
}

func validPageSize(size int) bool {
	return size >= MinPageSize && size <= MaxPageSize && size&(size-1) == 0
}

// Conn is a page oriented connection to one database file of a vfs.
//
// Page 0 holds the header, data pages are numbered from 1. Writes are buffered
// in the write transaction and reach the file on Commit, while the file lock
// is held.
type Conn struct {
	file     vfs.IFile
	path     string
	pageSize int
	readOnly bool

	mu       sync.Mutex
	closed   bool
	inWrite  bool
	dirty    map[uint32][]byte
	truncate int64 // pending page count, -1 if none
}

// Open resolves vfsName in reg (empty for the default vfs), opens path in it
// and returns a connection. A new file gets a header with the configured page
// size, an existing file must have a valid header.
func Open(ctx context.Context, reg *vfs.Registry, path string, flags Flags, vfsName string, opts ...Option) (*Conn, error) {
	o := options{pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(&o)
	}
	if !validPageSize(o.pageSize) {
		return nil, fmt.Errorf("%w: %d", ErrPageSize, o.pageSize)
	}

	readOnly := flags&OpenReadOnly != 0
	if readOnly == (flags&OpenReadWrite != 0) || (readOnly && flags&OpenCreate != 0) {
		return nil, fmt.Errorf("%w: %b", ErrBadFlags, flags)
	}

	v, err := reg.Find(vfsName)
	if err != nil {
		return nil, err
	}
	f, err := v.Open(ctx, path, vfs.OpenOptions{
		Create:   flags&OpenCreate != 0,
		ReadOnly: readOnly,
	})
	if err != nil {
		return nil, err
	}

	c := &Conn{
		file:     f,
		path:     path,
		readOnly: readOnly,
		truncate: -1,
	}
	if err := c.init(ctx, o.pageSize); err != nil {
		_ = f.Close()
		return nil, err
	}
	log.Debugf("opened %q in vfs %q (page size %d, read only %t)", path, v.Name(), c.pageSize, readOnly)
	return c, nil
}

// init reads the header or writes it for an empty file.
func (c *Conn) init(ctx context.Context, pageSize int) error {
	size, err := c.file.Size(ctx)
	if err != nil {
		return err
	}

	if size == 0 {
		if c.readOnly {
			return fmt.Errorf("%w: %q is empty", ErrBadHeader, c.path)
		}
		page := make([]byte, pageSize)
		copy(page, headerMagic)
		binary.BigEndian.PutUint32(page[len(headerMagic):], uint32(pageSize))
		if _, err := c.file.WriteAt(ctx, page, 0); err != nil {
			return err
		}
		c.pageSize = pageSize
		return nil
	}

	header := make([]byte, headerSize)
	n, err := c.file.ReadAt(ctx, header, 0)
	if err != nil {
		return err
	}
	if n < headerSize || !bytes.Equal(header[:len(headerMagic)], []byte(headerMagic)) {
		return fmt.Errorf("%w: %q", ErrBadHeader, c.path)
	}
	stored := int(binary.BigEndian.Uint32(header[len(headerMagic):]))
	if !validPageSize(stored) {
		return fmt.Errorf("%w: %q has page size %d", ErrBadHeader, c.path, stored)
	}
	c.pageSize = stored
	return nil
}

// PageSize returns the page size of the file.
func (c *Conn) PageSize() int {
	return c.pageSize
}

func (c *Conn) offset(pgno uint32) int64 {
	return int64(pgno) * int64(c.pageSize)
}

// storedPages returns the number of data pages in the file.
func (c *Conn) storedPages(ctx context.Context) (uint32, error) {
	size, err := c.file.Size(ctx)
	if err != nil {
		return 0, err
	}
	pages := (size + int64(c.pageSize) - 1) / int64(c.pageSize)
	if pages <= 1 {
		return 0, nil
	}
	return uint32(pages - 1), nil
}

// pageCount includes the pending changes of the write transaction. c.mu must be held.
func (c *Conn) pageCount(ctx context.Context) (uint32, error) {
	count, err := c.storedPages(ctx)
	if err != nil {
		return 0, err
	}
	if c.truncate >= 0 {
		count = uint32(c.truncate)
	}
	for pgno := range c.dirty {
		if pgno > count {
			count = pgno
		}
	}
	return count, nil
}

// PageCount returns the number of data pages, including pages written in the
// current write transaction.
func (c *Conn) PageCount(ctx context.Context) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	return c.pageCount(ctx)
}

// ReadPage returns a copy of page pgno. A page the file only partially covers
// is zero filled.
func (c *Conn) ReadPage(ctx context.Context, pgno uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	count, err := c.pageCount(ctx)
	if err != nil {
		return nil, err
	}
	if pgno < 1 || pgno > count {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageRange, pgno, count)
	}

	page := make([]byte, c.pageSize)
	if data, ok := c.dirty[pgno]; ok {
		copy(page, data)
		return page, nil
	}
	// pages between a pending truncation and a later dirty page are zero
	if c.truncate >= 0 && int64(pgno) > c.truncate {
		return page, nil
	}
	if _, err := c.file.ReadAt(ctx, page, c.offset(pgno)); err != nil {
		return nil, err
	}
	return page, nil
}

// Begin starts a write transaction by taking the exclusive lock of the file.
// It fails with a vfs CodeBusy error if another connection holds the lock.
func (c *Conn) Begin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ErrClosed
	case c.readOnly:
		return ErrReadOnly
	case c.inWrite:
		return ErrTxnActive
	}

	if err := c.file.Lock(ctx); err != nil {
		return err
	}
	c.inWrite = true
	c.dirty = make(map[uint32][]byte)
	c.truncate = -1
	return nil
}

// WritePage stages data as the new content of page pgno. Writing past the end
// grows the file.
func (c *Conn) WritePage(ctx context.Context, pgno uint32, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ErrClosed
	case !c.inWrite:
		return ErrNoWriteTxn
	case len(data) != c.pageSize:
		return fmt.Errorf("%w: expected %d, got %d", ErrPageSize, c.pageSize, len(data))
	case pgno < 1:
		return fmt.Errorf("%w: %d", ErrPageRange, pgno)
	}
	c.dirty[pgno] = append([]byte(nil), data...)
	return nil
}

// Truncate stages shrinking or growing the file to the given number of data pages.
func (c *Conn) Truncate(ctx context.Context, pages uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ErrClosed
	case !c.inWrite:
		return ErrNoWriteTxn
	}
	for pgno := range c.dirty {
		if pgno > pages {
			delete(c.dirty, pgno)
		}
	}
	c.truncate = int64(pages)
	return nil
}

// Commit writes the staged pages in ascending order, syncs the file and
// releases the lock. If writing fails the lock is still released and the
// file may contain a part of the transaction. The lock is released even if
// ctx is done.
func (c *Conn) Commit(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ErrClosed
	case !c.inWrite:
		return ErrNoWriteTxn
	}
	defer func() {
		err = errors.Join(err, c.endWrite(context.WithoutCancel(ctx)))
	}()

	if c.truncate >= 0 {
		if err := c.file.Truncate(ctx, c.offset(uint32(c.truncate))+int64(c.pageSize)); err != nil {
			return err
		}
	}

	pages := make([]uint32, 0, len(c.dirty))
	for pgno := range c.dirty {
		pages = append(pages, pgno)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i] < pages[j] })
	for _, pgno := range pages {
		if _, err := c.file.WriteAt(ctx, c.dirty[pgno], c.offset(pgno)); err != nil {
			return err
		}
	}
	if err := c.file.Sync(ctx); err != nil {
		return err
	}
	log.Debugf("committed %d pages to %q", len(pages), c.path)
	return nil
}

// Rollback drops the staged pages and releases the lock.
func (c *Conn) Rollback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ErrClosed
	case !c.inWrite:
		return ErrNoWriteTxn
	}
	return c.endWrite(context.WithoutCancel(ctx))
}

// endWrite clears the write transaction. c.mu must be held.
func (c *Conn) endWrite(ctx context.Context) error {
	c.inWrite = false
	c.dirty = nil
	c.truncate = -1
	if err := c.file.Unlock(ctx); err != nil {
		log.Warningf("failed to unlock %q: %v", c.path, err)
		return err
	}
	return nil
}

// Close rolls back an active write transaction and closes the file.
// Close is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.inWrite = false
	c.dirty = nil
	// closing the file releases its lock
	return c.file.Close()
}
