package dstore

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/kvfs/lib/store"
	"github.com/ValentinKolb/kvfs/lib/store/dstore/internal"
	"github.com/ValentinKolb/kvfs/lib/store/lstore"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// KVStateMachine is a state machine implementation for Dragonboat RAFT.
// The replicated state is an lstore.MemStore.
type KVStateMachine struct {
	replicaID uint64
	shardID   uint64
	data      *lstore.MemStore
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
func CreateStateMachineFactory() func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &KVStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			data:      lstore.NewMemStore(),
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding MemStore method.
func (fsm *KVStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTGet:
		val, ok, err := fsm.data.Get(q.Key)
		if err != nil {
			return nil, err
		}
		return internal.QueryResult{
			Value: val,
			Ok:    ok,
		}, nil
	case internal.QueryTHas:
		return fsm.data.Has(q.Key)
	case internal.QueryTKeys:
		return fsm.data.Keys(q.Key)
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update applies write commands to the MemStore.
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *KVStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}

		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
			continue
		}

		var err error
		switch cmd.Type {
		case internal.CommandTSet:
			err = fsm.data.Set(cmd.Key, cmd.Value)
		case internal.CommandTSetIfUnset:
			err = fsm.data.SetIfUnset(cmd.Key, cmd.Value)
		case internal.CommandTDelete:
			err = fsm.data.Delete(cmd.Key)
		default:
			entries[idx].Result = sm.Result{
				Value: uint64(store.RetCInvalidOperation),
				Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
			}
			continue
		}

		if err != nil {
			entries[idx].Result = errorResult(err)
			continue
		}
		entries[idx].Result = sm.Result{
			Value: uint64(store.RetCSuccess),
			Data:  []byte(fmt.Sprintf("%s: key=%s", cmd.Type, cmd.Key)),
		}
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// errorResult keeps the return code of store errors so that clients see the same code the replica saw.
func errorResult(err error) sm.Result {
	var se *store.Error
	if errors.As(err, &se) {
		return sm.Result{Value: uint64(se.Code), Data: []byte(se.Msg)}
	}
	return sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(err.Error())}
}

// PrepareSnapshot is not used. We don't need to prepare anything since we use fuzzy snapshotting
func (fsm *KVStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy snapshot of the MemStore to the writer
func (fsm *KVStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	return fsm.data.Save(writer)
}

// RecoverFromSnapshot replaces the MemStore content with the snapshot.
func (fsm *KVStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	return fsm.data.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *KVStateMachine) Close() error {
	return fsm.data.Close()
}
