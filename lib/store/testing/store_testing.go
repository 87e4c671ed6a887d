package testing

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/kvfs/lib/store"
)

// RunStoreTests runs a comprehensive test suite for an IStore implementation.
func RunStoreTests(t *testing.T, name string, factory store.Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("EmptyValue", func(t *testing.T) {
			testEmptyValue(t, factory())
		})

		t.Run("SetIfUnset", func(t *testing.T) {
			testSetIfUnset(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Keys", func(t *testing.T) {
			testKeys(t, factory())
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, factory())
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, s store.IStore) {
	defer s.Close()

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	if err := s.Set(testKey, testValue1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, exists, err := s.Get(testKey)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	if err := s.Set(testKey, testValue2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	result, _, _ = s.Get(testKey)
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists, err = s.Get("nonexistent-key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _, _ := s.Get(testKey)
	retrievedValue[0] = 'X'
	originalValue, _, _ := s.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	input := []byte("caller-owned")
	_ = s.Set("copy-key", input)
	input[0] = 'X'
	stored, _, _ := s.Get("copy-key")
	if !bytes.Equal(stored, []byte("caller-owned")) {
		t.Errorf("Set should copy the value, got %s", stored)
	}
}

func testEmptyValue(t *testing.T, s store.IStore) {
	defer s.Close()

	if err := s.Set("empty", []byte{}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, exists, err := s.Get("empty")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !exists {
		t.Errorf("Expected empty value to exist")
	}
	if len(value) != 0 {
		t.Errorf("Expected empty value, got %d bytes", len(value))
	}
	if ok, _ := s.Has("empty"); !ok {
		t.Errorf("Has should report keys with empty values")
	}
}

func testSetIfUnset(t *testing.T, s store.IStore) {
	defer s.Close()

	if err := s.SetIfUnset("key", []byte("first")); err != nil {
		t.Fatalf("SetIfUnset failed: %v", err)
	}
	if err := s.SetIfUnset("key", []byte("second")); err != nil {
		t.Fatalf("SetIfUnset on existing key should not fail: %v", err)
	}

	value, _, _ := s.Get("key")
	if !bytes.Equal(value, []byte("first")) {
		t.Errorf("SetIfUnset must not overwrite, got %s", value)
	}
}

func testDelete(t *testing.T, s store.IStore) {
	defer s.Close()

	_ = s.Set("key", []byte("value"))
	if err := s.Delete("key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if ok, _ := s.Has("key"); ok {
		t.Errorf("Expected key to be gone after Delete")
	}
	if _, ok, _ := s.Get("key"); ok {
		t.Errorf("Expected Get to miss after Delete")
	}
	if err := s.Delete("never-existed"); err != nil {
		t.Errorf("Deleting a missing key should not fail: %v", err)
	}
}

func testKeys(t *testing.T, s store.IStore) {
	defer s.Close()

	for _, k := range []string{"db/b", "db/a", "other", "db/c"} {
		_ = s.Set(k, []byte(k))
	}

	keys, err := s.Keys("db/")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	want := []string{"db/a", "db/b", "db/c"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Errorf("Keys(db/) = %v, want %v", keys, want)
	}

	all, _ := s.Keys("")
	if len(all) != 4 {
		t.Errorf("Keys(\"\") returned %d keys, want 4", len(all))
	}
}

func testClose(t *testing.T, s store.IStore) {
	_ = s.Set("key", []byte("value"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := s.Set("key", []byte("value")); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Set after Close: expected ErrClosed, got %v", err)
	}
	if _, _, err := s.Get("key"); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Get after Close: expected ErrClosed, got %v", err)
	}
	if _, err := s.Has("key"); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Has after Close: expected ErrClosed, got %v", err)
	}
}

func testConcurrent(t *testing.T, s store.IStore) {
	defer s.Close()

	numWorkers := 8
	numKeys := 50

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < numKeys; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", w, i)
				if err := s.Set(key, []byte(key)); err != nil {
					t.Errorf("Set(%s) failed: %v", key, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	keys, err := s.Keys("worker-")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != numWorkers*numKeys {
		t.Errorf("expected %d keys, got %d", numWorkers*numKeys, len(keys))
	}
	for _, k := range keys {
		v, ok, _ := s.Get(k)
		if !ok || string(v) != k {
			t.Errorf("key %s has value %q", k, v)
		}
	}
}
