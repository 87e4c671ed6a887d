// Package lockmgr implements a locking mechanism on top of any store.IStore.
// The vfs package uses it for the exclusive file lock of a handle, so the lock
// is visible to every process that shares the same store (for a dstore backend
// that is every node of the cluster).
//
// The lock manager only ever stores in the provided IStore and has no other internal
// state. Therefore it is safe to be created multiple times on the same store.
//
// Implementation Approach:
//
//	- Lock Acquisition: Attempts to create the lock key using SetIfUnset, which
//	  guarantees that only one requester can successfully create the key.
//	  The value contains a randomly generated owner ID that identifies the
//	  lock holder.
//
//	- Lock Verification: A SetIfUnset is followed by a Get to confirm the lock
//	  was acquired by checking that the stored value matches the owner ID.
//
//	- Safe Release: ReleaseLock verifies that the requester is the owner of the
//	  lock by comparing owner IDs before deleting the key.
//
// Acquisition never waits. A caller that did not get the lock decides itself
// whether to retry.
//
// Usage Example:
//
//	lm := lockmgr.NewLockManager(s)
//
//	acquired, ownerID, err := lm.AcquireLock("__lock__/users.db")
//	if err != nil {
//	    // Handle error
//	}
//	if acquired {
//	    // ...
//	    released, err := lm.ReleaseLock("__lock__/users.db", ownerID)
//	}
package lockmgr
