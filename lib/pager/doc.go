// Package pager is the page oriented interface a database engine uses to
// store its file in a vfs. It resolves the vfs through a vfs.Registry, so the
// engine only names the file and, optionally, the vfs.
//
// File Layout:
//
//	page 0    header: magic "kvfs pager v1\x00" | page size (uint32, big endian), zero padded
//	page 1..n data pages
//
// The page count is derived from the file size. A page the file only partly
// covers reads as zero filled.
//
// Write Transactions:
//
//	Begin takes the exclusive lock of the file (vfs CodeBusy if another
//	connection holds it). WritePage and Truncate are staged in memory, Commit
//	applies them in page order, syncs the file and releases the lock. Rollback
//	drops them. Reads on the connection see its own staged pages.
//
// Usage Example:
//
//	c, err := pager.Open(ctx, reg, "users.db", pager.OpenReadWrite|pager.OpenCreate, "kv1")
//	if err != nil {
//	    // Handle error
//	}
//	defer c.Close()
//
//	if err := c.Begin(ctx); err != nil {
//	    // Handle error
//	}
//	_ = c.WritePage(ctx, 1, page)
//	err = c.Commit(ctx)
package pager
