package bstore

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kvfs/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"go.etcd.io/bbolt"
)

var (
	log = logger.GetLogger("store")

	// bucketName is the single bucket all keys live in
	bucketName = []byte("kvfs")
)

// openTimeout bounds how long Open waits for the file lock held by another process.
const openTimeout = 5 * time.Second

// storeImpl wraps a bbolt.DB. Every interface call runs in its own bbolt
// transaction, so each call is atomic and durable once it returns.
type storeImpl struct {
	db     *bbolt.DB
	closed atomic.Bool
}

// NewBoltStore opens (or creates) the bbolt file at path and returns a store backed by it.
func NewBoltStore(path string) (store.IStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	// Initialize the bucket
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
	}

	log.Infof("opened bolt store at %s", path)
	return &storeImpl{db: db}, nil
}

// wrap converts bbolt errors into store errors.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return store.ErrClosed
	}
	return store.NewError(store.RetCInternalError, err.Error())
}

// update executes a read-write transaction
func (s *storeImpl) update(fn func(b *bbolt.Bucket) error) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return wrap(s.db.Update(func(tx *bbolt.Tx) error {
		return fn(tx.Bucket(bucketName))
	}))
}

// view executes a read-only transaction
func (s *storeImpl) view(fn func(b *bbolt.Bucket) error) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return wrap(s.db.View(func(tx *bbolt.Tx) error {
		return fn(tx.Bucket(bucketName))
	}))
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return s.update(func(b *bbolt.Bucket) error {
		return b.Put([]byte(key), value)
	})
}

func (s *storeImpl) SetIfUnset(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return s.update(func(b *bbolt.Bucket) error {
		if b.Get([]byte(key)) != nil {
			return nil
		}
		return b.Put([]byte(key), value)
	})
}

func (s *storeImpl) Delete(key string) error {
	return s.update(func(b *bbolt.Bucket) error {
		return b.Delete([]byte(key))
	})
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	var result []byte
	var found bool
	err := s.view(func(b *bbolt.Bucket) error {
		value := b.Get([]byte(key))
		if value == nil {
			return nil
		}
		// Copy required: bbolt values are only valid during the transaction
		result = make([]byte, len(value))
		copy(result, value)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, found, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	var found bool
	err := s.view(func(b *bbolt.Bucket) error {
		found = b.Get([]byte(key)) != nil
		return nil
	})
	return found, err
}

func (s *storeImpl) Keys(prefix string) ([]string, error) {
	keys := make([]string, 0)
	p := []byte(prefix)
	err := s.view(func(b *bbolt.Bucket) error {
		c := b.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *storeImpl) Sync() error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return wrap(s.db.Sync())
}

func (s *storeImpl) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return wrap(s.db.Close())
}
