// Package internal provides the communication protocol structures and serialization
// logic for the dstore package.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
//   - Command System: Write operations (Set, SetIfUnset, Delete). Commands are
//     serialized and proposed to the RAFT cluster, then applied by every replica.
//
//   - Query System: Read operations (Get, Has, Keys). Queries are executed
//     locally on the state machine and therefore do not require serialization.
//
// Command Format:
//
//	- 1 byte: Command type
//	- 4 bytes: Key length (uint32, big endian)
//	- N bytes: Key data
//	- M bytes: Value data (the rest of the entry; empty for Delete)
package internal
