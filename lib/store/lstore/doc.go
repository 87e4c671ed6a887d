// Package lstore implements a local, in-memory, single-node key-value store based on the
// store.IStore interface. Data is stored entirely in memory and is not persisted between
// process restarts unless a snapshot is written with Save.
//
// Key Features:
//   - Pure in-memory storage backed by a concurrent xsync map
//   - Values are copied on the way in and on the way out, callers never share memory with the store
//   - Snapshot support (Save / Load) with a small versioned binary format
//   - Thread-safe operations for concurrent access
//
// Snapshot Format:
//
//	magic "KVFSMEM\x00" | version (uint8) | count (uint64)
//	count x ( keyLen (uint32) | key | valueLen (uint32) | value )
//
//	All integers are little endian.
//
// The distributed store (dstore) uses a MemStore as the state of every replica
// and relies on Save / Load for its RAFT snapshots.
//
// Usage Example:
//
//	s := lstore.NewLocalStore()
//	_ = s.Set("users.db", page)
//	value, exists, err := s.Get("users.db")
package lstore
