// Package dstore implements a distributed, fault-tolerant key-value store using
// the Dragonboat RAFT consensus library. It provides a strongly consistent implementation
// of the store.IStore interface, so a virtual file system built on it is replicated
// across every node of the shard.
//
// Architecture:
//
//   - Store Client: Implements store.IStore. Writes are serialized into commands
//     and proposed with SyncPropose, reads are sent with SyncRead.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine whose state is an
//     lstore.MemStore. Committed commands are applied in log order on every replica.
//
//   - Communication Protocol: Command and Query structures in the internal package.
//
// Write Operations:
//
//	Set, SetIfUnset and Delete follow this flow:
//
//	1. The operation is serialized into a Command
//	2. The Command is proposed to the RAFT cluster via SyncPropose
//	3. Once committed, the command is applied by the state machine on each node
//	4. The result code is returned to the client as a *store.Error (nil on success)
//
//	A file write in the vfs package is one Set of the merged payload, so a
//	committed write replaces the whole file value atomically on every replica.
//
// Read Operations:
//
//	Get, Has and Keys use SyncRead, which guarantees the read observes every
//	write committed before it started.
//
// Error Handling and Retries:
//
//   - System Busy: When Dragonboat returns ErrSystemBusy, the operation is retried
//     after a short delay, up to five attempts.
//
//   - Timeouts: Every proposal and read is bounded by the configured timeout.
//
// Snapshotting and Recovery:
//
//	Snapshots are fuzzy: SaveSnapshot streams MemStore.Save while writes continue,
//	RecoverFromSnapshot replaces the MemStore content. Log entries committed after
//	the snapshot are replayed on top of it by Dragonboat.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(conf.ToNodeHostConfig())
//	if err != nil { ... }
//
//	err = nh.StartConcurrentReplica(
//	    conf.ClusterMembers,
//	    false,
//	    dstore.CreateStateMachineFactory(),
//	    conf.ToDragonboatConfig(shardID))
//	if err != nil { ... }
//
//	s := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
package dstore
