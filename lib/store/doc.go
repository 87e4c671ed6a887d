// Package store provides the key-value storage abstraction the virtual file
// system is built on. Every logical file is a single key whose value is the
// complete file payload.
//
// Key Components:
//
//   - IStore Interface: The core abstraction for whole-value key-value access
//     (Get, Set, SetIfUnset, Delete, Has, Keys). All backends share this
//     interface, so the vfs package and the lock manager work with any of them.
//
//   - Error System: A structured error type carrying a RetCode, so callers can
//     tell an internal failure from an unsupported operation or a closed store.
//
//   - Syncer: An optional interface for backends that can flush to stable storage.
//
// Implementations:
//
//   - Local Store (lstore): In-memory, single node, backed by an xsync map.
//     Supports snapshotting to an io.Writer, which the distributed store uses
//     for its RAFT snapshots.
//
//   - Bolt Store (bstore): Durable, single node, backed by a bbolt file.
//
//   - Distributed Store (dstore): Replicated over the Dragonboat RAFT library
//     with an lstore as the state of each replica.
//
// The testing package (lib/store/testing) contains a conformance suite every
// implementation is run against.
package store
