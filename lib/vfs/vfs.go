package vfs

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/ValentinKolb/kvfs/lib/bridge"
	"github.com/ValentinKolb/kvfs/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("vfs")

// Options configure a vfs created with NewKVVFS.
type Options struct {
	// Bridge runs the store calls. If nil the vfs starts its own bridge with
	// Workers workers and closes it when the transaction ends.
	Bridge  *bridge.Bridge
	Workers int
	// PerKeyLocks is passed on to the transaction.
	PerKeyLocks bool
}

// kvVFS is an IVFS that stores each file as one key of a store.
type kvVFS struct {
	name   string
	txn    *Transaction
	bridge *bridge.Bridge
	closed atomic.Bool
}

var _ IVFS = (*kvVFS)(nil)

// NewKVVFS creates a vfs over s. All handles opened from it share one transaction.
func NewKVVFS(name string, s store.IStore, opts Options) (IVFS, error) {
	if name == "" {
		return nil, newError(CodeInvalid, "new", name, nil)
	}
	txn, err := NewTransaction(s, TxnOptions{PerKeyLocks: opts.PerKeyLocks})
	if err != nil {
		return nil, err
	}

	v := &kvVFS{
		name:   name,
		txn:    txn,
		bridge: opts.Bridge,
	}
	if v.bridge == nil {
		b := bridge.New(opts.Workers)
		v.bridge = b
		txn.onEnd = func() {
			_ = b.Close()
		}
	}
	log.Infof("created vfs %q (bridge workers: %d, per key locks: %t)", name, v.bridge.Workers(), opts.PerKeyLocks)
	return v, nil
}

func (v *kvVFS) Name() string {
	return v.name
}

func (v *kvVFS) check(op, name string) error {
	if v.closed.Load() {
		return newError(CodeClosed, op, v.name, nil)
	}
	if !validName(name) {
		return newError(CodeInvalid, op, name, nil)
	}
	return nil
}

func (v *kvVFS) Open(ctx context.Context, name string, opts OpenOptions) (IFile, error) {
	if err := v.check("open", name); err != nil {
		return nil, err
	}
	if opts.ReadOnly && opts.Create {
		return nil, newError(CodeInvalid, "open", name, nil)
	}
	if err := v.txn.acquire(); err != nil {
		return nil, newError(CodeAcquire, "open", name, err)
	}

	// create without exclusive opens lazily, every other mode needs to know
	// whether the file exists
	if !opts.Create || opts.Exclusive {
		exists, err := bridge.Run(ctx, v.bridge, func() (bool, error) {
			return v.txn.Has(name)
		})
		switch {
		case err != nil:
			v.txn.release()
			return nil, fromBridge("open", name, err)
		case !exists && !opts.Create:
			v.txn.release()
			return nil, newError(CodeNotFound, "open", name, nil)
		case exists && opts.Exclusive:
			v.txn.release()
			return nil, newError(CodeExists, "open", name, nil)
		}
	}

	openFiles.Inc()
	log.Debugf("opened %q in vfs %q (read only: %t)", name, v.name, opts.ReadOnly)
	return &kvFile{
		vfs:      v,
		txn:      v.txn,
		name:     name,
		readOnly: opts.ReadOnly,
	}, nil
}

func (v *kvVFS) Delete(ctx context.Context, name string) error {
	if err := v.check("delete", name); err != nil {
		return err
	}
	err := bridge.DoSettled(ctx, v.bridge, func() error {
		return v.txn.Delete(name)
	})
	return fromBridge("delete", name, err)
}

func (v *kvVFS) Exists(ctx context.Context, name string) (bool, error) {
	if err := v.check("exists", name); err != nil {
		return false, err
	}
	found, err := bridge.Run(ctx, v.bridge, func() (bool, error) {
		return v.txn.Has(name)
	})
	if err != nil {
		return false, fromBridge("exists", name, err)
	}
	return found, nil
}

func (v *kvVFS) List(ctx context.Context) ([]string, error) {
	if v.closed.Load() {
		return nil, newError(CodeClosed, "list", v.name, nil)
	}
	keys, err := bridge.Run(ctx, v.bridge, func() ([]string, error) {
		return v.txn.Keys("")
	})
	if err != nil {
		return nil, fromBridge("list", v.name, err)
	}

	names := keys[:0]
	for _, k := range keys {
		if !strings.HasPrefix(k, LockKeyPrefix) {
			names = append(names, k)
		}
	}
	return names, nil
}

// Close drops the vfs's transaction reference. Open handles keep the
// transaction alive until they are closed.
func (v *kvVFS) Close() error {
	if v.closed.Swap(true) {
		return nil
	}
	log.Infof("closing vfs %q", v.name)
	v.txn.release()
	return nil
}
