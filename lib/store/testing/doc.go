// Package testing provides a conformance suite for store.IStore implementations.
//
// Every backend runs the same suite from its own package test:
//
//	func Test(t *testing.T) {
//		storetesting.RunStoreTests(t, "BoltStore", func() store.IStore {
//			s, _ := bstore.NewBoltStore(filepath.Join(t.TempDir(), "kvfs.db"))
//			return s
//		})
//	}
//
// The factory is called once per sub test, so every sub test starts with an
// empty store. The suite closes the store itself.
package testing
