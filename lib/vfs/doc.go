// Package vfs exposes a key-value store as a set of random access files.
//
// Every file is one key of a store.IStore and its value is the whole file
// content. A write at an offset reads the current value, splices the new bytes
// in (zero filling any gap) and stores the result, all while the transaction
// lock is held. Reads past the end of a file return fewer bytes, never an error.
//
// Key Components:
//
//   - IVFS (NewKVVFS): Opens file handles by name, and deletes, probes and
//     lists files.
//
//   - IFile: A handle with ReadAt/WriteAt and the other calls a database
//     engine needs (Size, Truncate, Sync, Lock, Unlock). It has no cursor.
//
//   - Transaction: The reference counted handle on the store that every IVFS
//     and IFile of one vfs share. Each handle holds one reference; when the
//     last one is released the transaction ends. A panic inside a store call
//     poisons the transaction.
//
//   - Registry: Names vfs instances and knows the default one. It is created
//     at bootstrap and passed to whoever opens files.
//
// All store calls run on a bridge.Bridge. The calling goroutine waits on the
// bridge and its context and never blocks inside the store itself.
//
// Every failure is returned as a *Error with a Code:
//
//	if vfs.IsCode(err, vfs.CodeNotFound) { ... }
//	if errors.Is(err, &vfs.Error{Code: vfs.CodeBusy}) { ... }
//
// Usage Example:
//
//	v, err := vfs.NewKVVFS("kv1", lstore.NewLocalStore(), vfs.Options{Workers: 4})
//	if err != nil {
//	    // Handle error
//	}
//	defer v.Close()
//
//	f, err := v.Open(ctx, "users.db", vfs.OpenOptions{Create: true})
//	if err != nil {
//	    // Handle error
//	}
//	defer f.Close()
//
//	_, err = f.WriteAt(ctx, []byte("hello"), 0)
//	buf := make([]byte, 5)
//	n, err := f.ReadAt(ctx, buf, 0)
package vfs
