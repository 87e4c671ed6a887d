// Package cmd implements the command-line interface of kvfs. It provides a
// hierarchical command structure to work with the files of a vfs and to try
// out the store backends.
//
// The package is organized into several subpackages:
//
//   - fs: File operations (ls, cat, import, export, rm, stat)
//   - demo: Runs a short walk through the vfs and the pager
//   - bench: Page read and write benchmarks through the pager
//   - util: Shared utilities for command-line processing, configuration and bootstrap (internal use)
//
// See kvfs -help for a list of all commands.
package cmd
