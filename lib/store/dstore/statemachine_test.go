package dstore

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/kvfs/lib/store"
	"github.com/ValentinKolb/kvfs/lib/store/dstore/internal"
	storetesting "github.com/ValentinKolb/kvfs/lib/store/testing"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// machineStore drives a KVStateMachine directly, the way a single replica
// applies committed entries, so the conformance suite can run without a NodeHost.
type machineStore struct {
	fsm   sm.IConcurrentStateMachine
	mu    sync.Mutex // dragonboat never calls Update concurrently
	index uint64
}

func newMachineStore() *machineStore {
	return &machineStore{fsm: CreateStateMachineFactory()(1, 1)}
}

func (m *machineStore) apply(cmd internal.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index++
	entries, err := m.fsm.Update([]sm.Entry{{Index: m.index, Cmd: cmd.Serialize()}})
	if err != nil {
		return err
	}
	return resultToError(entries[0].Result)
}

func (m *machineStore) Set(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return m.apply(internal.Command{Type: internal.CommandTSet, Key: key, Value: value})
}

func (m *machineStore) SetIfUnset(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return m.apply(internal.Command{Type: internal.CommandTSetIfUnset, Key: key, Value: value})
}

func (m *machineStore) Delete(key string) error {
	return m.apply(internal.Command{Type: internal.CommandTDelete, Key: key})
}

func (m *machineStore) Get(key string) ([]byte, bool, error) {
	res, err := m.fsm.Lookup(internal.Query{Type: internal.QueryTGet, Key: key})
	if err != nil {
		return nil, false, err
	}
	qr := res.(internal.QueryResult)
	return qr.Value, qr.Ok, nil
}

func (m *machineStore) Has(key string) (bool, error) {
	res, err := m.fsm.Lookup(internal.Query{Type: internal.QueryTHas, Key: key})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (m *machineStore) Keys(prefix string) ([]string, error) {
	res, err := m.fsm.Lookup(internal.Query{Type: internal.QueryTKeys, Key: prefix})
	if err != nil {
		return nil, err
	}
	return res.([]string), nil
}

func (m *machineStore) Close() error {
	return m.fsm.Close()
}

func TestStateMachine(t *testing.T) {
	storetesting.RunStoreTests(t, "StateMachine", func() store.IStore {
		return newMachineStore()
	})
}

func TestUpdateRejectsInvalidEntries(t *testing.T) {
	fsm := CreateStateMachineFactory()(1, 1)
	defer fsm.Close()

	entries, err := fsm.Update([]sm.Entry{
		{Index: 1, Cmd: nil},
		{Index: 2, Cmd: []byte{1, 2}},
		{Index: 3, Cmd: (&internal.Command{Type: internal.CommandType(42), Key: "k"}).Serialize()},
		{Index: 4, Cmd: (&internal.Command{Type: internal.CommandTSet, Key: "k", Value: []byte("v")}).Serialize()},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	expected := []store.RetCode{
		store.RetCInvalidOperation,
		store.RetCInternalError,
		store.RetCInvalidOperation,
		store.RetCSuccess,
	}
	for i, want := range expected {
		if got := store.RetCode(entries[i].Result.Value); got != want {
			t.Errorf("entry %d: result code %s, want %s", i, got, want)
		}
	}
}

func TestLookupRejectsUnknownQuery(t *testing.T) {
	fsm := CreateStateMachineFactory()(1, 1)
	defer fsm.Close()

	if _, err := fsm.Lookup("not a query"); err == nil {
		t.Errorf("expected error for invalid query type")
	}
	if _, err := fsm.Lookup(internal.Query{Type: internal.QueryType(99)}); err == nil {
		t.Errorf("expected error for unknown query operation")
	}
}

func TestSnapshotRecovery(t *testing.T) {
	src := newMachineStore()
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("file-%02d.db", i)
		if err := src.Set(key, bytes.Repeat([]byte{byte(i)}, i*10)); err != nil {
			t.Fatalf("Set(%s) failed: %v", key, err)
		}
	}

	var buf bytes.Buffer
	ctx, err := src.fsm.PrepareSnapshot()
	if err != nil {
		t.Fatalf("PrepareSnapshot failed: %v", err)
	}
	if err := src.fsm.SaveSnapshot(ctx, &buf, nil, nil); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	dst := newMachineStore()
	if err := dst.fsm.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatalf("RecoverFromSnapshot failed: %v", err)
	}

	keys, _ := dst.Keys("file-")
	if len(keys) != 20 {
		t.Fatalf("expected 20 keys after recovery, got %d", len(keys))
	}
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("file-%02d.db", i)
		value, ok, _ := dst.Get(key)
		if !ok || !bytes.Equal(value, bytes.Repeat([]byte{byte(i)}, i*10)) {
			t.Errorf("key %s not recovered correctly", key)
		}
	}
}
