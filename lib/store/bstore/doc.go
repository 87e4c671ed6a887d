// Package bstore implements a durable, single-node store.IStore on top of
// bbolt (go.etcd.io/bbolt).
//
// All keys live in a single bucket. Every interface call runs in its own bbolt
// transaction: writes use db.Update, reads use db.View. A write is therefore
// durable once it returns, and a value is never partially replaced.
//
// bbolt only allows one writer at a time and takes an exclusive file lock, so
// a bolt file can be opened by one process only. Open waits up to five seconds
// for that lock before giving up.
//
// Values returned by Get are copies; bbolt's memory-mapped data is only valid
// inside a transaction.
package bstore
