package lstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/ValentinKolb/kvfs/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum        = "KVFSMEM\x00" // Snapshot format identifier
	snapshotVersion = 1             // Snapshot format version
)

// --------------------------------------------------------------------------
// Store structure
// --------------------------------------------------------------------------

// MemStore is an in-memory store.IStore. Besides the interface methods it can
// write a snapshot of its content to an io.Writer and restore it again.
type MemStore struct {
	data   *xsync.MapOf[string, []byte]
	closed atomic.Bool
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
func NewLocalStore() store.IStore {
	return NewMemStore()
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		data: xsync.NewMapOf[string, []byte](),
	}
}

// cloneBytes returns a copy of b that does not share memory with it.
// A nil input stays nil, an empty input becomes an empty non-nil slice.
func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *MemStore) Set(key string, value []byte) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	v := cloneBytes(value)
	if v == nil {
		v = []byte{}
	}
	s.data.Store(key, v)
	return nil
}

func (s *MemStore) SetIfUnset(key string, value []byte) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	s.data.LoadOrCompute(key, func() []byte {
		v := cloneBytes(value)
		if v == nil {
			v = []byte{}
		}
		return v
	})
	return nil
}

func (s *MemStore) Delete(key string) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	s.data.Delete(key)
	return nil
}

func (s *MemStore) Get(key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, store.ErrClosed
	}
	val, ok := s.data.Load(key)
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(val), true, nil
}

func (s *MemStore) Has(key string) (bool, error) {
	if s.closed.Load() {
		return false, store.ErrClosed
	}
	_, ok := s.data.Load(key)
	return ok, nil
}

func (s *MemStore) Keys(prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	keys := make([]string, 0)
	s.data.Range(func(key string, _ []byte) bool {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	sort.Strings(keys)
	return keys, nil
}

func (s *MemStore) Close() error {
	s.closed.Store(true)
	return nil
}

// Len returns the number of stored keys.
func (s *MemStore) Len() int {
	return s.data.Size()
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes a snapshot of the store to w.
// Concurrent reading and writing is allowed during Save, the snapshot is fuzzy
// with respect to writes that happen while it is taken.
func (s *MemStore) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	type entry struct {
		key   string
		value []byte
	}
	var entries []entry
	s.data.Range(func(key string, value []byte) bool {
		entries = append(entries, entry{key, cloneBytes(value)})
		return true
	})

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(snapshotVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, e := range entries {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(e.key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(e.key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(e.value))); err != nil {
			return err
		}
		if _, err := bw.Write(e.value); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load replaces the content of the store with the snapshot read from r.
//
// Thread-safety: Load must not run concurrently with other operations.
func (s *MemStore) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid snapshot format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %d (expected %d)", version, snapshotVersion)
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	data := xsync.NewMapOf[string, []byte]()
	for i := uint64(0); i < count; i++ {
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return err
		}

		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}
		value := make([]byte, valueLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return err
		}

		data.Store(string(key), value)
	}

	s.data = data
	return nil
}
