// Package common holds the configuration and logging setup shared by the
// kvfs command line and the library packages.
//
// Key Components:
//
//   - Config: All settings of a kvfs process (store backend, RAFT parameters
//     for the distributed store, vfs settings, log level). Provides helpers to
//     convert to the Dragonboat shard and NodeHost configurations and a
//     String method that prints the configuration as a table.
//
//   - Logger: A custom implementation of Dragonboat's logger.ILogger. Every
//     package declares its logger with logger.GetLogger("<pkg>"); InitLoggers
//     installs the factory and sets the level of all of them.
package common
